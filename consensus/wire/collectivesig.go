package wire

import (
	"github.com/shardlabs/shard-consensus/consensus/group"
	"github.com/shardlabs/shard-consensus/crypto"
)

// CollectiveSig carries an aggregated signature and the participation
// bitmap it was aggregated over. Identical layout for COLLECTIVESIG
// and FINALCOLLECTIVESIG (only the type byte differs).
//
// Body layout: consensus_id(4) ‖ block_hash(32) ‖ leader_id(2) ‖
// subset_id(1) ‖ bitmap(var) ‖ collective_sig(64) ‖ leader_sig(64).
type CollectiveSig struct {
	ConsensusID   uint32
	BlockHash     [32]byte
	LeaderID      uint16
	SubsetID      uint8
	Bitmap        *group.Bitmap
	CollectiveSig crypto.Signature
	LeaderSig     crypto.Signature
}

const collectiveSigFixedLen = 4 + 32 + 2 + 1

// SignedBody returns the bytes the leader signature covers.
func (c *CollectiveSig) SignedBody() []byte {
	bitmapBytes := c.Bitmap.MarshalBinary()
	body := make([]byte, collectiveSigFixedLen+len(bitmapBytes)+crypto.SignatureSize)
	off := 0
	putUint32(body[off:off+4], c.ConsensusID)
	off += 4
	copy(body[off:off+32], c.BlockHash[:])
	off += 32
	putUint16(body[off:off+2], c.LeaderID)
	off += 2
	body[off] = c.SubsetID
	off++
	copy(body[off:off+len(bitmapBytes)], bitmapBytes)
	off += len(bitmapBytes)
	copy(body[off:off+crypto.SignatureSize], c.CollectiveSig[:])
	return body
}

func (c *CollectiveSig) encode(class, instruction, typeByte byte) []byte {
	signed := c.SignedBody()
	out := make([]byte, prefixLen+len(signed)+crypto.SignatureSize)
	out[0], out[1], out[2] = class, instruction, typeByte
	copy(out[prefixLen:], signed)
	copy(out[prefixLen+len(signed):], c.LeaderSig[:])
	return out
}

// Encode assembles a COLLECTIVESIG frame.
func (c *CollectiveSig) Encode(class, instruction byte) []byte {
	return c.encode(class, instruction, TypeCollectiveSig)
}

// EncodeFinal assembles a FINALCOLLECTIVESIG frame.
func (c *CollectiveSig) EncodeFinal(class, instruction byte) []byte {
	return c.encode(class, instruction, TypeFinalCollectiveSig)
}

func decodeCollectiveSig(frame []byte, class, instruction, typeByte byte, consensusID uint32, blockHash [32]byte) (*CollectiveSig, error) {
	h, body, err := parseHeader(frame)
	if err != nil {
		return nil, err
	}
	if err := checkHeader(h, class, instruction, typeByte); err != nil {
		return nil, err
	}
	if len(body) < collectiveSigFixedLen+2+crypto.SignatureSize*2 {
		return nil, ErrTooShort
	}
	c := &CollectiveSig{}
	off := 0
	c.ConsensusID = getUint32(body[off : off+4])
	off += 4
	copy(c.BlockHash[:], body[off:off+32])
	off += 32
	c.LeaderID = getUint16(body[off : off+2])
	off += 2
	c.SubsetID = body[off]
	off++
	bitmap, n, err := group.UnmarshalBitmap(body[off:])
	if err != nil {
		return nil, err
	}
	c.Bitmap = bitmap
	off += n
	if len(body)-off != crypto.SignatureSize*2 {
		return nil, ErrTooShort
	}
	copy(c.CollectiveSig[:], body[off:off+crypto.SignatureSize])
	off += crypto.SignatureSize
	copy(c.LeaderSig[:], body[off:])
	if err := checkInstance(c.ConsensusID, consensusID, c.BlockHash, blockHash); err != nil {
		return nil, err
	}
	return c, nil
}

// DecodeCollectiveSig parses and structurally validates a COLLECTIVESIG frame.
func DecodeCollectiveSig(frame []byte, class, instruction byte, consensusID uint32, blockHash [32]byte) (*CollectiveSig, error) {
	return decodeCollectiveSig(frame, class, instruction, TypeCollectiveSig, consensusID, blockHash)
}

// DecodeFinalCollectiveSig parses and structurally validates a FINALCOLLECTIVESIG frame.
func DecodeFinalCollectiveSig(frame []byte, class, instruction byte, consensusID uint32, blockHash [32]byte) (*CollectiveSig, error) {
	return decodeCollectiveSig(frame, class, instruction, TypeFinalCollectiveSig, consensusID, blockHash)
}
