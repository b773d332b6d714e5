// Package crypto wraps the Schnorr group arithmetic the consensus core
// signs and aggregates over. It is deliberately narrow: key generation,
// commitment, challenge derivation, response computation, and the two
// verification predicates the consensus state machines call out to.
package crypto

import (
	"github.com/dedis/kyber"
	"github.com/dedis/kyber/group/nist"
)

// Suite is the elliptic curve group every commit point, public key,
// challenge and response is drawn from. NIST P-256 is picked over the
// teacher's Ed25519Curve because its compressed point encoding is
// exactly 33 bytes and its scalar encoding is exactly 32 bytes, which
// is what the wire format fixes commit points / public keys and
// challenges / responses to.
var Suite = nist.NewBlakeSHA256P256()

const (
	// CommitPointSize is the wire width of a commit point and of a
	// public key: a compressed NIST P-256 point.
	CommitPointSize = 33
	// PublicKeySize is the wire width of a committee public key.
	PublicKeySize = CommitPointSize
	// ChallengeSize is the wire width of a challenge scalar.
	ChallengeSize = 32
	// ResponseSize is the wire width of a response scalar.
	ResponseSize = 32
	// SignatureSize is challenge(32) ‖ response(32).
	SignatureSize = ChallengeSize + ResponseSize
)

func marshalPoint(p kyber.Point) ([]byte, error) {
	return p.MarshalBinary()
}

func unmarshalPoint(b []byte) (kyber.Point, error) {
	p := Suite.Point()
	if err := p.UnmarshalBinary(b); err != nil {
		return nil, err
	}
	return p, nil
}

func marshalScalar(s kyber.Scalar) ([]byte, error) {
	return s.MarshalBinary()
}

func unmarshalScalar(b []byte) (kyber.Scalar, error) {
	s := Suite.Scalar()
	if err := s.UnmarshalBinary(b); err != nil {
		return nil, err
	}
	return s, nil
}
