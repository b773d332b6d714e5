// Package wire implements the fixed-offset frame codec: every
// consensus frame is [class][instruction][type][body], and each
// message type has a fixed body layout. Encoders/decoders here are
// pure functions over []byte — no state-machine logic, no signature
// verification (the consensus layer holds the committee keys needed
// for that and performs it after a frame decodes structurally).
package wire

import (
	"encoding/binary"

	"github.com/pkg/errors"
	"github.com/shardlabs/shard-consensus/crypto"
)

// Message type bytes.
const (
	TypeAnnounce           byte = 0x01
	TypeCommit             byte = 0x02
	TypeChallenge          byte = 0x03
	TypeResponse           byte = 0x04
	TypeCollectiveSig      byte = 0x05
	TypeFinalCommit        byte = 0x06
	TypeFinalChallenge     byte = 0x07
	TypeFinalResponse      byte = 0x08
	TypeFinalCollectiveSig byte = 0x09
)

const prefixLen = 3 // class, instruction, type

// Errors returned by the decoders. A caller that sees any of these
// drops the frame silently; they never propagate as protocol errors.
var (
	ErrTooShort       = errors.New("wire: frame shorter than its fixed prefix")
	ErrWrongNamespace = errors.New("wire: class/instruction byte mismatch")
	ErrWrongType      = errors.New("wire: unexpected message type byte")
	ErrWrongInstance  = errors.New("wire: consensus id or block hash mismatch")
)

// Header is the common 3-byte namespace/type prefix.
type Header struct {
	Class       byte
	Instruction byte
	Type        byte
}

func parseHeader(frame []byte) (Header, []byte, error) {
	if len(frame) < prefixLen {
		return Header{}, nil, ErrTooShort
	}
	return Header{Class: frame[0], Instruction: frame[1], Type: frame[2]}, frame[prefixLen:], nil
}

// checkHeader validates the namespace and type byte of a decoded frame.
func checkHeader(h Header, class, instruction, wantType byte) error {
	if h.Class != class || h.Instruction != instruction {
		return ErrWrongNamespace
	}
	if h.Type != wantType {
		return ErrWrongType
	}
	return nil
}

func putUint32(b []byte, v uint32) { binary.BigEndian.PutUint32(b, v) }
func getUint32(b []byte) uint32    { return binary.BigEndian.Uint32(b) }
func putUint16(b []byte, v uint16) { binary.BigEndian.PutUint16(b, v) }
func getUint16(b []byte) uint16    { return binary.BigEndian.Uint16(b) }

// checkInstance validates the consensus id and block hash embedded in
// a decoded body against the instance this decoder is running for.
func checkInstance(gotID, wantID uint32, gotHash, wantHash [32]byte) error {
	if gotID != wantID || gotHash != wantHash {
		return ErrWrongInstance
	}
	return nil
}

// SignatureSize re-exports crypto.SignatureSize for body-length math
// in the per-message files without importing crypto twice in callers.
const SignatureSize = crypto.SignatureSize

// PeekConsensusID reads the consensus id out of a raw frame without
// validating its type or signature. Every message body begins with
// consensus_id(4) right after the 3-byte prefix, so a transport-level
// dispatcher can use this to route a frame to the right instance
// before handing it to that instance's own type-specific decoder.
func PeekConsensusID(frame []byte) (uint32, error) {
	if len(frame) < prefixLen+4 {
		return 0, ErrTooShort
	}
	return getUint32(frame[prefixLen : prefixLen+4]), nil
}
