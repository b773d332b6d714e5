package wire

import "github.com/shardlabs/shard-consensus/crypto"

// Commit is a backup's round-one commitment.
//
// Body layout: consensus_id(4) ‖ block_hash(32) ‖ backup_id(2) ‖
// commit_point(33) ‖ sender_sig(64).
type Commit struct {
	ConsensusID uint32
	BlockHash   [32]byte
	BackupID    uint16
	CommitPoint crypto.CommitPoint
	Sig         crypto.Signature
}

const commitFixedLen = 4 + 32 + 2 + crypto.CommitPointSize

// SignedBody returns the bytes the sender signature covers.
func (c *Commit) SignedBody() []byte {
	body := make([]byte, commitFixedLen)
	putUint32(body[0:4], c.ConsensusID)
	copy(body[4:36], c.BlockHash[:])
	putUint16(body[36:38], c.BackupID)
	copy(body[38:38+crypto.CommitPointSize], c.CommitPoint[:])
	return body
}

// Encode assembles the full wire frame.
func (c *Commit) Encode(class, instruction byte) []byte {
	signed := c.SignedBody()
	out := make([]byte, prefixLen+len(signed)+crypto.SignatureSize)
	out[0], out[1], out[2] = class, instruction, TypeCommit
	copy(out[prefixLen:], signed)
	copy(out[prefixLen+len(signed):], c.Sig[:])
	return out
}

// DecodeCommit parses and structurally validates a COMMIT frame.
func DecodeCommit(frame []byte, class, instruction byte, consensusID uint32, blockHash [32]byte) (*Commit, error) {
	h, body, err := parseHeader(frame)
	if err != nil {
		return nil, err
	}
	if err := checkHeader(h, class, instruction, TypeCommit); err != nil {
		return nil, err
	}
	if len(body) != commitFixedLen+crypto.SignatureSize {
		return nil, ErrTooShort
	}
	c := &Commit{}
	c.ConsensusID = getUint32(body[0:4])
	copy(c.BlockHash[:], body[4:36])
	c.BackupID = getUint16(body[36:38])
	copy(c.CommitPoint[:], body[38:38+crypto.CommitPointSize])
	copy(c.Sig[:], body[commitFixedLen:])
	if err := checkInstance(c.ConsensusID, consensusID, c.BlockHash, blockHash); err != nil {
		return nil, err
	}
	return c, nil
}
