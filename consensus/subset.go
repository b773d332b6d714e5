package consensus

import (
	"crypto/sha256"
	"encoding/binary"
	"math/rand"

	"github.com/dedis/kyber"

	"github.com/shardlabs/shard-consensus/consensus/group"
	"github.com/shardlabs/shard-consensus/crypto"
)

// subset is one of the leader's racing second-round cohorts. Round one
// and round two reuse the same struct: commitMap/commitPointMap are
// cleared and repopulated between rounds, while participants (set from
// the round-one responders) carries over into round two.
type subset struct {
	state SubsetState

	// round-local commit bookkeeping, cleared between round one and
	// round two
	commitMap      *group.Bitmap
	commitPointMap map[uint16]crypto.CommitPoint

	// participants is fixed at the completion of each round to that
	// round's full responder set. Round one's value gates FINALCOMMIT
	// eligibility in round two (a backup must have responded in round
	// one to re-commit); round two's value becomes the bitmap shipped
	// in FINALCOLLECTIVESIG.
	participants *group.Bitmap

	responseByID map[uint16]crypto.Response

	aggCommit kyber.Point
	aggKey    kyber.Point
	challenge crypto.Challenge
	chalScal  kyber.Scalar

	// message is the proposal in round one, and the round-one
	// collective signature's byte encoding in round two
	message []byte

	collectiveSig crypto.Signature
}

func newSubset(n int) *subset {
	return &subset{
		state:          SubsetAnnounceDone,
		commitMap:      group.NewBitmap(n),
		commitPointMap: make(map[uint16]crypto.CommitPoint),
		responseByID:   make(map[uint16]crypto.Response),
	}
}

// resetForRoundTwo clears the round-one commit and response bookkeeping
// so the subset's commitMap/commitPointMap/responseByID can be
// repopulated by FINALCOMMIT/FINALRESPONSE, while participants (the
// round-one responder set FINALCOMMIT eligibility is checked against)
// is left intact.
func (s *subset) resetForRoundTwo(n int) {
	s.commitMap = group.NewBitmap(n)
	s.commitPointMap = make(map[uint16]crypto.CommitPoint)
	s.responseByID = make(map[uint16]crypto.Response)
}

// subsetSeed derives a deterministic 64-bit seed from the block hash
// and subset index, per the recommended resolution of the shuffle-seed
// open question: auditable, but unpredictable before commits close
// since it depends on the block hash.
func subsetSeed(blockHash [32]byte, index int) int64 {
	h := sha256.New()
	h.Write(blockHash[:])
	var idx [4]byte
	binary.BigEndian.PutUint32(idx[:], uint32(index))
	h.Write(idx[:])
	sum := h.Sum(nil)
	return int64(binary.BigEndian.Uint64(sum[:8]))
}

// shuffleCommitters performs a deterministic Fisher-Yates shuffle of
// committer, seeded from subsetSeed, and returns the first k entries.
// The input slice is not mutated; shuffling operates on a copy.
func shuffleCommitters(committer []uint16, k int, seed int64) []uint16 {
	cp := make([]uint16, len(committer))
	copy(cp, committer)
	rnd := rand.New(rand.NewSource(seed))
	for i := len(cp) - 1; i > 0; i-- {
		j := rnd.Intn(i + 1)
		cp[i], cp[j] = cp[j], cp[i]
	}
	if k > len(cp) {
		k = len(cp)
	}
	return cp[:k]
}
