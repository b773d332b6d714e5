package crypto

import (
	"io"

	"github.com/dedis/kyber"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
)

// ErrUninitializedPoint is returned by aggregation helpers when the
// accumulated point is the group identity, i.e. no valid contribution
// was ever added to it.
var ErrUninitializedPoint = errors.New("crypto: aggregated point is uninitialized")

// GenerateKeyPair draws a fresh long-term private/public key pair from
// Suite.RandomStream(); rnd is not read.
func GenerateKeyPair(rnd io.Reader) (kyber.Scalar, kyber.Point, error) {
	priv := Suite.Scalar().Pick(Suite.RandomStream())
	_ = rnd // unused: the scalar is drawn from Suite.RandomStream()
	pub := Suite.Point().Mul(priv, nil)
	return priv, pub, nil
}

// MarshalPrivateKey encodes a private scalar to its wire form, for a
// process to persist its own long-term key between restarts.
func MarshalPrivateKey(priv kyber.Scalar) ([]byte, error) {
	return marshalScalar(priv)
}

// UnmarshalPrivateKey decodes a wire-form private scalar.
func UnmarshalPrivateKey(b []byte) (kyber.Scalar, error) {
	return unmarshalScalar(b)
}

// MarshalPublicKey encodes a public key to its wire form.
func MarshalPublicKey(pub kyber.Point) (PublicKey, error) {
	b, err := marshalPoint(pub)
	if err != nil {
		return PublicKey{}, err
	}
	var out PublicKey
	if len(b) != PublicKeySize {
		return PublicKey{}, errors.Errorf("crypto: unexpected public key length %d", len(b))
	}
	copy(out[:], b)
	return out, nil
}

// UnmarshalPublicKey decodes a wire-form public key back to a point.
func UnmarshalPublicKey(k PublicKey) (kyber.Point, error) {
	return unmarshalPoint(k[:])
}

// MarshalCommitPoint encodes a commit point to its wire form.
func MarshalCommitPoint(p kyber.Point) (CommitPoint, error) {
	b, err := marshalPoint(p)
	if err != nil {
		return CommitPoint{}, err
	}
	var out CommitPoint
	if len(b) != CommitPointSize {
		return CommitPoint{}, errors.Errorf("crypto: unexpected commit point length %d", len(b))
	}
	copy(out[:], b)
	return out, nil
}

// UnmarshalCommitPoint decodes a wire-form commit point back to a point.
func UnmarshalCommitPoint(c CommitPoint) (kyber.Point, error) {
	return unmarshalPoint(c[:])
}

// NewCommitment draws a fresh per-round secret scalar r and its public
// commitment point r*G.
func NewCommitment() (secret kyber.Scalar, point kyber.Point) {
	secret = Suite.Scalar().Pick(Suite.RandomStream())
	point = Suite.Point().Mul(secret, nil)
	return secret, point
}

// DeriveChallenge computes H(message || aggregated_commit ||
// aggregated_key) and reduces it into a scalar challenge.
func DeriveChallenge(message []byte, aggCommit, aggKey kyber.Point) (kyber.Scalar, Challenge, error) {
	commitBytes, err := marshalPoint(aggCommit)
	if err != nil {
		return nil, Challenge{}, errors.Wrap(err, "marshal aggregated commit")
	}
	keyBytes, err := marshalPoint(aggKey)
	if err != nil {
		return nil, Challenge{}, errors.Wrap(err, "marshal aggregated key")
	}
	h := ethcrypto.Keccak256(message, commitBytes, keyBytes)
	scalar := Suite.Scalar().SetBytes(h)
	encoded, err := marshalScalar(scalar)
	if err != nil {
		return nil, Challenge{}, errors.Wrap(err, "marshal challenge scalar")
	}
	var c Challenge
	copy(c[:], encoded)
	return scalar, c, nil
}

// ComputeResponse computes r + challenge*privkey mod q.
func ComputeResponse(secret, challenge, priv kyber.Scalar) (kyber.Scalar, Response, error) {
	cx := Suite.Scalar().Mul(challenge, priv)
	resp := Suite.Scalar().Add(secret, cx)
	encoded, err := marshalScalar(resp)
	if err != nil {
		return nil, Response{}, err
	}
	var r Response
	copy(r[:], encoded)
	return resp, r, nil
}

// UnmarshalResponse decodes a wire-form response back to a scalar, for
// aggregating responses collected across a subset.
func UnmarshalResponse(r Response) (kyber.Scalar, error) {
	return unmarshalScalar(r[:])
}

// MarshalResponse encodes a scalar (typically an aggregated response)
// back to its wire form.
func MarshalResponse(s kyber.Scalar) (Response, error) {
	b, err := marshalScalar(s)
	if err != nil {
		return Response{}, err
	}
	var out Response
	if len(b) != ResponseSize {
		return Response{}, errors.Errorf("crypto: unexpected response length %d", len(b))
	}
	copy(out[:], b)
	return out, nil
}

// VerifyResponse checks that response*G == commitPoint + challenge*pub,
// the per-backup first-round check the leader performs on RESPONSE.
func VerifyResponse(response Response, challenge kyber.Scalar, pub, commitPoint kyber.Point) bool {
	s, err := unmarshalScalar(response[:])
	if err != nil {
		return false
	}
	lhs := Suite.Point().Mul(s, nil)
	rhs := Suite.Point().Add(commitPoint, Suite.Point().Mul(challenge, pub))
	return lhs.Equal(rhs)
}

// Sign produces a Schnorr (challenge, response) signature over message
// under priv/pub. Used for every per-message leader_sig/sender_sig as
// well as, with an aggregated key and aggregated response, a collective
// signature.
func Sign(priv kyber.Scalar, pub kyber.Point, message []byte) (Signature, error) {
	secret, r := NewCommitment()
	_, c, err := DeriveChallenge(message, r, pub)
	if err != nil {
		return Signature{}, err
	}
	cScalar, err := unmarshalScalar(c[:])
	if err != nil {
		return Signature{}, err
	}
	_, resp, err := ComputeResponse(secret, cScalar, priv)
	if err != nil {
		return Signature{}, err
	}
	return NewSignature(c, resp), nil
}

// Verify checks a Schnorr (challenge, response) signature: it
// recomputes R' = s*G - c*pub and accepts iff H(message, R', pub) ==
// c. The same function verifies both ordinary per-message signatures
// (pub = signer's key) and collective signatures (pub = aggregated
// key over the participation bitmap).
func Verify(sig Signature, message []byte, pub kyber.Point) bool {
	c := sig.Challenge()
	r := sig.Response()
	cScalar, err := unmarshalScalar(c[:])
	if err != nil {
		return false
	}
	rScalar, err := unmarshalScalar(r[:])
	if err != nil {
		return false
	}
	sg := Suite.Point().Mul(rScalar, nil)
	cp := Suite.Point().Mul(cScalar, pub)
	rPrime := Suite.Point().Sub(sg, cp)
	_, gotChallenge, err := DeriveChallenge(message, rPrime, pub)
	if err != nil {
		return false
	}
	return gotChallenge == c
}

// AggregatePoints sums a slice of elliptic-curve points. It returns
// ErrUninitializedPoint if points is empty or sums to the identity.
func AggregatePoints(points []kyber.Point) (kyber.Point, error) {
	if len(points) == 0 {
		return nil, ErrUninitializedPoint
	}
	acc := Suite.Point().Null()
	for _, p := range points {
		acc = Suite.Point().Add(acc, p)
	}
	if acc.Equal(Suite.Point().Null()) {
		return nil, ErrUninitializedPoint
	}
	return acc, nil
}

// AggregateScalars sums a slice of scalars mod q.
func AggregateScalars(scalars []kyber.Scalar) kyber.Scalar {
	acc := Suite.Scalar().Zero()
	for _, s := range scalars {
		acc = Suite.Scalar().Add(acc, s)
	}
	return acc
}
