package wire

import "github.com/shardlabs/shard-consensus/crypto"

// Challenge is the leader's round challenge, identical in layout for
// CHALLENGE and FINALCHALLENGE (only the type byte differs).
//
// Body layout: consensus_id(4) ‖ block_hash(32) ‖ leader_id(2) ‖
// subset_id(1) ‖ agg_commit(33) ‖ agg_key(33) ‖ challenge(32) ‖
// leader_sig(64).
type Challenge struct {
	ConsensusID uint32
	BlockHash   [32]byte
	LeaderID    uint16
	SubsetID    uint8
	AggCommit   crypto.CommitPoint
	AggKey      crypto.PublicKey
	Challenge   crypto.Challenge
	LeaderSig   crypto.Signature
}

const challengeFixedLen = 4 + 32 + 2 + 1 + crypto.CommitPointSize + crypto.PublicKeySize + crypto.ChallengeSize

// SignedBody returns the bytes the leader signature covers.
func (c *Challenge) SignedBody() []byte {
	body := make([]byte, challengeFixedLen)
	off := 0
	putUint32(body[off:off+4], c.ConsensusID)
	off += 4
	copy(body[off:off+32], c.BlockHash[:])
	off += 32
	putUint16(body[off:off+2], c.LeaderID)
	off += 2
	body[off] = c.SubsetID
	off++
	copy(body[off:off+crypto.CommitPointSize], c.AggCommit[:])
	off += crypto.CommitPointSize
	copy(body[off:off+crypto.PublicKeySize], c.AggKey[:])
	off += crypto.PublicKeySize
	copy(body[off:off+crypto.ChallengeSize], c.Challenge[:])
	return body
}

func (c *Challenge) encode(class, instruction, typeByte byte) []byte {
	signed := c.SignedBody()
	out := make([]byte, prefixLen+len(signed)+crypto.SignatureSize)
	out[0], out[1], out[2] = class, instruction, typeByte
	copy(out[prefixLen:], signed)
	copy(out[prefixLen+len(signed):], c.LeaderSig[:])
	return out
}

// Encode assembles a CHALLENGE frame.
func (c *Challenge) Encode(class, instruction byte) []byte {
	return c.encode(class, instruction, TypeChallenge)
}

// EncodeFinal assembles a FINALCHALLENGE frame.
func (c *Challenge) EncodeFinal(class, instruction byte) []byte {
	return c.encode(class, instruction, TypeFinalChallenge)
}

func decodeChallenge(frame []byte, class, instruction, typeByte byte, consensusID uint32, blockHash [32]byte) (*Challenge, error) {
	h, body, err := parseHeader(frame)
	if err != nil {
		return nil, err
	}
	if err := checkHeader(h, class, instruction, typeByte); err != nil {
		return nil, err
	}
	if len(body) != challengeFixedLen+crypto.SignatureSize {
		return nil, ErrTooShort
	}
	c := &Challenge{}
	off := 0
	c.ConsensusID = getUint32(body[off : off+4])
	off += 4
	copy(c.BlockHash[:], body[off:off+32])
	off += 32
	c.LeaderID = getUint16(body[off : off+2])
	off += 2
	c.SubsetID = body[off]
	off++
	copy(c.AggCommit[:], body[off:off+crypto.CommitPointSize])
	off += crypto.CommitPointSize
	copy(c.AggKey[:], body[off:off+crypto.PublicKeySize])
	off += crypto.PublicKeySize
	copy(c.Challenge[:], body[off:off+crypto.ChallengeSize])
	off += crypto.ChallengeSize
	copy(c.LeaderSig[:], body[off:])
	if err := checkInstance(c.ConsensusID, consensusID, c.BlockHash, blockHash); err != nil {
		return nil, err
	}
	return c, nil
}

// DecodeChallenge parses and structurally validates a CHALLENGE frame.
func DecodeChallenge(frame []byte, class, instruction byte, consensusID uint32, blockHash [32]byte) (*Challenge, error) {
	return decodeChallenge(frame, class, instruction, TypeChallenge, consensusID, blockHash)
}

// DecodeFinalChallenge parses and structurally validates a FINALCHALLENGE frame.
func DecodeFinalChallenge(frame []byte, class, instruction byte, consensusID uint32, blockHash [32]byte) (*Challenge, error) {
	return decodeChallenge(frame, class, instruction, TypeFinalChallenge, consensusID, blockHash)
}
