package wire

import "github.com/shardlabs/shard-consensus/crypto"

// Announce is the leader's round-one proposal broadcast.
//
// Body layout: consensus_id(4) ‖ block_hash(32) ‖ leader_id(2) ‖
// proposal(var) ‖ leader_sig(64).
type Announce struct {
	ConsensusID uint32
	BlockHash   [32]byte
	LeaderID    uint16
	Proposal    []byte
	LeaderSig   crypto.Signature
}

const announceFixedLen = 4 + 32 + 2 // before the variable-length proposal

// SignedBody returns the bytes the leader signature covers: everything
// in the body up to (not including) the signature itself.
func (a *Announce) SignedBody() []byte {
	body := make([]byte, announceFixedLen+len(a.Proposal))
	putUint32(body[0:4], a.ConsensusID)
	copy(body[4:36], a.BlockHash[:])
	putUint16(body[36:38], a.LeaderID)
	copy(body[38:], a.Proposal)
	return body
}

// Encode assembles the full wire frame, [class][instruction][type]‖body.
func (a *Announce) Encode(class, instruction byte) []byte {
	signed := a.SignedBody()
	out := make([]byte, prefixLen+len(signed)+crypto.SignatureSize)
	out[0], out[1], out[2] = class, instruction, TypeAnnounce
	copy(out[prefixLen:], signed)
	copy(out[prefixLen+len(signed):], a.LeaderSig[:])
	return out
}

// DecodeAnnounce parses and structurally validates an ANNOUNCE frame.
// It does not verify the embedded signature; the caller (which holds
// the committee's public keys) does that.
func DecodeAnnounce(frame []byte, class, instruction byte, consensusID uint32, blockHash [32]byte) (*Announce, error) {
	h, body, err := parseHeader(frame)
	if err != nil {
		return nil, err
	}
	if err := checkHeader(h, class, instruction, TypeAnnounce); err != nil {
		return nil, err
	}
	if len(body) < announceFixedLen+crypto.SignatureSize {
		return nil, ErrTooShort
	}
	a := &Announce{}
	a.ConsensusID = getUint32(body[0:4])
	copy(a.BlockHash[:], body[4:36])
	a.LeaderID = getUint16(body[36:38])
	proposalLen := len(body) - announceFixedLen - crypto.SignatureSize
	a.Proposal = append([]byte(nil), body[announceFixedLen:announceFixedLen+proposalLen]...)
	copy(a.LeaderSig[:], body[announceFixedLen+proposalLen:])
	if err := checkInstance(a.ConsensusID, consensusID, a.BlockHash, blockHash); err != nil {
		return nil, err
	}
	return a, nil
}
