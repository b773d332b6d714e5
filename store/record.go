package store

import (
	"encoding/binary"
	"fmt"

	"github.com/shardlabs/shard-consensus/consensus/group"
	"github.com/shardlabs/shard-consensus/crypto"
)

// encodeRecord lays a Record out as:
//   [4 block_hash_len=32][32 block_hash][4 proposal_len][proposal]
//   [bitmap wire form][64 sig]
// consensus id is not included: it is the store key, not record
// content.
func encodeRecord(r Record) []byte {
	bitmap := r.Bitmap.MarshalBinary()

	buf := make([]byte, 0, 4+32+4+len(r.Proposal)+len(bitmap)+crypto.SignatureSize)
	var scratch [4]byte

	binary.BigEndian.PutUint32(scratch[:], uint32(len(r.BlockHash)))
	buf = append(buf, scratch[:]...)
	buf = append(buf, r.BlockHash[:]...)

	binary.BigEndian.PutUint32(scratch[:], uint32(len(r.Proposal)))
	buf = append(buf, scratch[:]...)
	buf = append(buf, r.Proposal...)

	buf = append(buf, bitmap...)
	buf = append(buf, r.Sig[:]...)
	return buf
}

func decodeRecord(consensusID uint32, data []byte) (Record, error) {
	if len(data) < 4 {
		return Record{}, fmt.Errorf("store: record too short (%d bytes)", len(data))
	}
	hashLen := binary.BigEndian.Uint32(data[0:4])
	data = data[4:]
	if hashLen != 32 || len(data) < 32 {
		return Record{}, fmt.Errorf("store: malformed block hash length %d", hashLen)
	}
	var r Record
	r.ConsensusID = consensusID
	copy(r.BlockHash[:], data[:32])
	data = data[32:]

	if len(data) < 4 {
		return Record{}, fmt.Errorf("store: record truncated before proposal length")
	}
	propLen := binary.BigEndian.Uint32(data[0:4])
	data = data[4:]
	if uint32(len(data)) < propLen {
		return Record{}, fmt.Errorf("store: record truncated in proposal body")
	}
	r.Proposal = append([]byte(nil), data[:propLen]...)
	data = data[propLen:]

	bitmap, n, err := group.UnmarshalBitmap(data)
	if err != nil {
		return Record{}, fmt.Errorf("store: decoding bitmap: %w", err)
	}
	r.Bitmap = bitmap
	data = data[n:]

	if len(data) != crypto.SignatureSize {
		return Record{}, fmt.Errorf("store: trailing signature has wrong length %d, want %d", len(data), crypto.SignatureSize)
	}
	copy(r.Sig[:], data)
	return r, nil
}
