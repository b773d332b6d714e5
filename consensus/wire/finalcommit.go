package wire

import "github.com/shardlabs/shard-consensus/crypto"

// FinalCommit is a backup's round-two (re-)commitment, scoped to the
// subset it participated in during round one.
//
// Body layout: consensus_id(4) ‖ block_hash(32) ‖ backup_id(2) ‖
// subset_id(1) ‖ commit_point(33) ‖ sender_sig(64).
type FinalCommit struct {
	ConsensusID uint32
	BlockHash   [32]byte
	BackupID    uint16
	SubsetID    uint8
	CommitPoint crypto.CommitPoint
	Sig         crypto.Signature
}

const finalCommitFixedLen = 4 + 32 + 2 + 1 + crypto.CommitPointSize

// SignedBody returns the bytes the sender signature covers.
func (c *FinalCommit) SignedBody() []byte {
	body := make([]byte, finalCommitFixedLen)
	putUint32(body[0:4], c.ConsensusID)
	copy(body[4:36], c.BlockHash[:])
	putUint16(body[36:38], c.BackupID)
	body[38] = c.SubsetID
	copy(body[39:39+crypto.CommitPointSize], c.CommitPoint[:])
	return body
}

// Encode assembles the full wire frame.
func (c *FinalCommit) Encode(class, instruction byte) []byte {
	signed := c.SignedBody()
	out := make([]byte, prefixLen+len(signed)+crypto.SignatureSize)
	out[0], out[1], out[2] = class, instruction, TypeFinalCommit
	copy(out[prefixLen:], signed)
	copy(out[prefixLen+len(signed):], c.Sig[:])
	return out
}

// DecodeFinalCommit parses and structurally validates a FINALCOMMIT frame.
func DecodeFinalCommit(frame []byte, class, instruction byte, consensusID uint32, blockHash [32]byte) (*FinalCommit, error) {
	h, body, err := parseHeader(frame)
	if err != nil {
		return nil, err
	}
	if err := checkHeader(h, class, instruction, TypeFinalCommit); err != nil {
		return nil, err
	}
	if len(body) != finalCommitFixedLen+crypto.SignatureSize {
		return nil, ErrTooShort
	}
	c := &FinalCommit{}
	c.ConsensusID = getUint32(body[0:4])
	copy(c.BlockHash[:], body[4:36])
	c.BackupID = getUint16(body[36:38])
	c.SubsetID = body[38]
	copy(c.CommitPoint[:], body[39:39+crypto.CommitPointSize])
	copy(c.Sig[:], body[finalCommitFixedLen:])
	if err := checkInstance(c.ConsensusID, consensusID, c.BlockHash, blockHash); err != nil {
		return nil, err
	}
	return c, nil
}
