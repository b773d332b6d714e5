package config

import (
	"encoding/binary"
	"fmt"

	"github.com/btcsuite/btcutil/base58"
)

// EncodePeerID renders a committee member's numeric index as a short
// base58 string. The [peers] section of a config file is keyed by the
// plain decimal index, not by this form.
func EncodePeerID(index uint16) string {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], index)
	return base58.Encode(b[:])
}

// DecodePeerID is the inverse of EncodePeerID.
func DecodePeerID(s string) (uint16, error) {
	b := base58.Decode(s)
	if len(b) != 2 {
		return 0, fmt.Errorf("config: %q is not a valid peer id", s)
	}
	return binary.BigEndian.Uint16(b), nil
}
