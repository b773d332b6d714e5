// Package p2p provides the peer addressing and transport abstraction
// the consensus core sends and receives frames over. The core never
// touches a socket directly: it calls Transport.Unicast/Multicast and
// is fed raw frames through a callback registered at construction.
package p2p

import (
	"fmt"

	"github.com/dedis/kyber"
)

// Peer identifies one committee member: its libp2p peer id (used to
// address Transport.Unicast) and the public key used to verify
// everything it signs. IP/Port are retained for display and for
// transports that address by socket rather than libp2p peer id.
type Peer struct {
	ID     string
	IP     string
	Port   string
	PubKey kyber.Point
}

// String renders a peer for logging.
func (p Peer) String() string {
	if p.ID != "" {
		return p.ID
	}
	return fmt.Sprintf("%s:%s", p.IP, p.Port)
}
