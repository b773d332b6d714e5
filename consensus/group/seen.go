package group

import (
	"sync"

	"github.com/ethereum/go-ethereum/crypto"
	mapset "github.com/deckarep/golang-set"
)

// SeenSet deduplicates inbound frames by content hash. Gossipsub
// delivers at-least-once, so the same ANNOUNCE/CHALLENGE/COLLECTIVESIG
// frame can reach OnMessage more than once for one genuinely-new
// event; re-running signature verification and state-machine checks
// on an exact repeat is wasted work this guards against up front.
type SeenSet struct {
	mu   sync.Mutex
	seen mapset.Set
}

// NewSeenSet returns an empty SeenSet.
func NewSeenSet() *SeenSet {
	return &SeenSet{seen: mapset.NewSet()}
}

// Add reports whether frame is new, and records it if so: true on the
// first sighting of this exact frame, false on any
// repeat.
func (s *SeenSet) Add(frame []byte) bool {
	h := crypto.Keccak256Hash(frame)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seen.Contains(h) {
		return false
	}
	s.seen.Add(h)
	return true
}
