package consensus

import (
	"context"
	"sync"

	"github.com/dedis/kyber"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/shardlabs/shard-consensus/consensus/group"
	"github.com/shardlabs/shard-consensus/crypto"
	"github.com/shardlabs/shard-consensus/p2p"
)

// CompletionFunc is invoked at most once per instance, on either role,
// when the collective signature is final.
type CompletionFunc func(proposal []byte, bitmap *group.Bitmap, sig crypto.Signature)

// common holds everything identical between the leader and backup
// sides of one instance: its identity in the wire namespace, the
// committee vector, signing material, and the collaborators (network,
// logging) neither role owns.
type common struct {
	mu sync.Mutex

	consensusID uint32
	blockHash   [32]byte
	class       byte
	instruction byte

	myID      uint16
	privKey   kyber.Scalar
	pubKey    kyber.Point
	committee []p2p.Peer // length N, index-aligned with every bitmap in the protocol

	transport p2p.Transport
	cfg       Config
	log       zerolog.Logger

	state State

	onComplete CompletionFunc

	seen *group.SeenSet
}

func newCommon(consensusID uint32, blockHash [32]byte, class, instruction byte, myID uint16, privKey kyber.Scalar, committee []p2p.Peer, transport p2p.Transport, cfg Config) common {
	return common{
		consensusID: consensusID,
		blockHash:   blockHash,
		class:       class,
		instruction: instruction,
		myID:        myID,
		privKey:     privKey,
		pubKey:      committee[myID].PubKey,
		committee:   committee,
		transport:   transport,
		cfg:         cfg,
		state:       Initial,
		seen:        group.NewSeenSet(),
		log: log.With().
			Uint32("consensus_id", consensusID).
			Uint16("my_id", myID).
			Logger(),
	}
}

// n is the committee size.
func (c *common) n() int { return len(c.committee) }

func (c *common) pubKeyOf(id uint16) kyber.Point {
	return c.committee[id].PubKey
}

// sign signs body with this instance's own key.
func (c *common) sign(body []byte) (crypto.Signature, error) {
	return crypto.Sign(c.privKey, c.pubKey, body)
}

// verifySig checks a message signature under the claimed sender's key.
func (c *common) verifySig(sig crypto.Signature, body []byte, senderID uint16) bool {
	if int(senderID) >= c.n() {
		return false
	}
	return crypto.Verify(sig, body, c.pubKeyOf(senderID))
}

// reject logs why an inbound message was silently dropped and returns
// false, the uniform response every handler gives a rejected message.
// action names the message kind being handled (e.g. "commit",
// "final_challenge"); state is the instance's own state at rejection
// time, both carried as structured fields alongside the error.
func (c *common) reject(err error, action string) bool {
	c.log.Debug().Err(err).Str("action", action).Str("state", c.state.String()).Msg("rejecting message")
	return false
}

func (c *common) multicastAll(ctx context.Context, frame []byte) {
	if err := c.transport.Multicast(ctx, c.committee, frame); err != nil {
		c.log.Debug().Err(err).Msg("multicast failed")
	}
}

func (c *common) multicastTo(ctx context.Context, ids []int, frame []byte) {
	peers := make([]p2p.Peer, 0, len(ids))
	for _, i := range ids {
		peers = append(peers, c.committee[i])
	}
	if err := c.transport.Multicast(ctx, peers, frame); err != nil {
		c.log.Debug().Err(err).Msg("multicast failed")
	}
}

func (c *common) unicast(ctx context.Context, id uint16, frame []byte) {
	if err := c.transport.Unicast(ctx, c.committee[id], frame); err != nil {
		c.log.Debug().Err(err).Uint16("to", id).Msg("unicast failed")
	}
}
