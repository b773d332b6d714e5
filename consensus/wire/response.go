package wire

import "github.com/shardlabs/shard-consensus/crypto"

// Response is a backup's round response, identical in layout for
// RESPONSE and FINALRESPONSE (only the type byte differs).
//
// Body layout: consensus_id(4) ‖ block_hash(32) ‖ backup_id(2) ‖
// subset_id(1) ‖ response(32) ‖ sender_sig(64).
type Response struct {
	ConsensusID uint32
	BlockHash   [32]byte
	BackupID    uint16
	SubsetID    uint8
	Response    crypto.Response
	Sig         crypto.Signature
}

const responseFixedLen = 4 + 32 + 2 + 1 + crypto.ResponseSize

// SignedBody returns the bytes the sender signature covers.
func (r *Response) SignedBody() []byte {
	body := make([]byte, responseFixedLen)
	off := 0
	putUint32(body[off:off+4], r.ConsensusID)
	off += 4
	copy(body[off:off+32], r.BlockHash[:])
	off += 32
	putUint16(body[off:off+2], r.BackupID)
	off += 2
	body[off] = r.SubsetID
	off++
	copy(body[off:off+crypto.ResponseSize], r.Response[:])
	return body
}

func (r *Response) encode(class, instruction, typeByte byte) []byte {
	signed := r.SignedBody()
	out := make([]byte, prefixLen+len(signed)+crypto.SignatureSize)
	out[0], out[1], out[2] = class, instruction, typeByte
	copy(out[prefixLen:], signed)
	copy(out[prefixLen+len(signed):], r.Sig[:])
	return out
}

// Encode assembles a RESPONSE frame.
func (r *Response) Encode(class, instruction byte) []byte {
	return r.encode(class, instruction, TypeResponse)
}

// EncodeFinal assembles a FINALRESPONSE frame.
func (r *Response) EncodeFinal(class, instruction byte) []byte {
	return r.encode(class, instruction, TypeFinalResponse)
}

func decodeResponse(frame []byte, class, instruction, typeByte byte, consensusID uint32, blockHash [32]byte) (*Response, error) {
	h, body, err := parseHeader(frame)
	if err != nil {
		return nil, err
	}
	if err := checkHeader(h, class, instruction, typeByte); err != nil {
		return nil, err
	}
	if len(body) != responseFixedLen+crypto.SignatureSize {
		return nil, ErrTooShort
	}
	r := &Response{}
	off := 0
	r.ConsensusID = getUint32(body[off : off+4])
	off += 4
	copy(r.BlockHash[:], body[off:off+32])
	off += 32
	r.BackupID = getUint16(body[off : off+2])
	off += 2
	r.SubsetID = body[off]
	off++
	copy(r.Response[:], body[off:off+crypto.ResponseSize])
	off += crypto.ResponseSize
	copy(r.Sig[:], body[off:])
	if err := checkInstance(r.ConsensusID, consensusID, r.BlockHash, blockHash); err != nil {
		return nil, err
	}
	return r, nil
}

// DecodeResponse parses and structurally validates a RESPONSE frame.
func DecodeResponse(frame []byte, class, instruction byte, consensusID uint32, blockHash [32]byte) (*Response, error) {
	return decodeResponse(frame, class, instruction, TypeResponse, consensusID, blockHash)
}

// DecodeFinalResponse parses and structurally validates a FINALRESPONSE frame.
func DecodeFinalResponse(frame []byte, class, instruction byte, consensusID uint32, blockHash [32]byte) (*Response, error) {
	return decodeResponse(frame, class, instruction, TypeFinalResponse, consensusID, blockHash)
}
