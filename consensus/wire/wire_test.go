package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shardlabs/shard-consensus/consensus/group"
	"github.com/shardlabs/shard-consensus/crypto"
)

const (
	testClass       byte = 0x11
	testInstruction byte = 0x22
)

var testBlockHash = [32]byte{1, 2, 3, 4, 5}

func fillSig(b byte) crypto.Signature {
	var s crypto.Signature
	for i := range s {
		s[i] = b
	}
	return s
}

func fillCommitPoint(b byte) crypto.CommitPoint {
	var c crypto.CommitPoint
	for i := range c {
		c[i] = b
	}
	return c
}

func fillPublicKey(b byte) crypto.PublicKey {
	var k crypto.PublicKey
	for i := range k {
		k[i] = b
	}
	return k
}

func fillChallenge(b byte) crypto.Challenge {
	var c crypto.Challenge
	for i := range c {
		c[i] = b
	}
	return c
}

func fillResponse(b byte) crypto.Response {
	var r crypto.Response
	for i := range r {
		r[i] = b
	}
	return r
}

func TestAnnounceRoundTrip(t *testing.T) {
	a := &Announce{
		ConsensusID: 7,
		BlockHash:   testBlockHash,
		LeaderID:    2,
		Proposal:    []byte("new block proposal bytes"),
		LeaderSig:   fillSig(0xAA),
	}
	frame := a.Encode(testClass, testInstruction)

	got, err := DecodeAnnounce(frame, testClass, testInstruction, 7, testBlockHash)
	require.NoError(t, err)
	assert.Equal(t, a, got)
}

func TestAnnounceDecodeRejectsWrongInstance(t *testing.T) {
	a := &Announce{ConsensusID: 7, BlockHash: testBlockHash, LeaderID: 2, Proposal: []byte("x"), LeaderSig: fillSig(1)}
	frame := a.Encode(testClass, testInstruction)

	_, err := DecodeAnnounce(frame, testClass, testInstruction, 8, testBlockHash)
	assert.Equal(t, ErrWrongInstance, err)
}

func TestAnnounceDecodeRejectsWrongNamespace(t *testing.T) {
	a := &Announce{ConsensusID: 7, BlockHash: testBlockHash, LeaderID: 2, Proposal: []byte("x"), LeaderSig: fillSig(1)}
	frame := a.Encode(testClass, testInstruction)

	_, err := DecodeAnnounce(frame, testClass, testInstruction+1, 7, testBlockHash)
	assert.Equal(t, ErrWrongNamespace, err)
}

func TestAnnounceDecodeRejectsTooShort(t *testing.T) {
	_, err := DecodeAnnounce([]byte{testClass, testInstruction}, testClass, testInstruction, 7, testBlockHash)
	assert.Equal(t, ErrTooShort, err)
}

func TestCommitRoundTrip(t *testing.T) {
	c := &Commit{
		ConsensusID: 3,
		BlockHash:   testBlockHash,
		BackupID:    5,
		CommitPoint: fillCommitPoint(0x01),
		Sig:         fillSig(0x02),
	}
	frame := c.Encode(testClass, testInstruction)

	got, err := DecodeCommit(frame, testClass, testInstruction, 3, testBlockHash)
	require.NoError(t, err)
	assert.Equal(t, c, got)
}

func TestCommitDecodeRejectsWrongType(t *testing.T) {
	c := &Commit{ConsensusID: 3, BlockHash: testBlockHash, BackupID: 5, CommitPoint: fillCommitPoint(1), Sig: fillSig(2)}
	frame := c.Encode(testClass, testInstruction)

	_, err := DecodeFinalCommit(frame, testClass, testInstruction, 3, testBlockHash)
	assert.Equal(t, ErrWrongType, err)
}

func TestFinalCommitRoundTrip(t *testing.T) {
	c := &FinalCommit{
		ConsensusID: 4,
		BlockHash:   testBlockHash,
		BackupID:    1,
		SubsetID:    2,
		CommitPoint: fillCommitPoint(0x03),
		Sig:         fillSig(0x04),
	}
	frame := c.Encode(testClass, testInstruction)

	got, err := DecodeFinalCommit(frame, testClass, testInstruction, 4, testBlockHash)
	require.NoError(t, err)
	assert.Equal(t, c, got)
}

func TestChallengeRoundTripBothRounds(t *testing.T) {
	ch := &Challenge{
		ConsensusID: 9,
		BlockHash:   testBlockHash,
		LeaderID:    0,
		SubsetID:    1,
		AggCommit:   fillCommitPoint(0x05),
		AggKey:      fillPublicKey(0x06),
		Challenge:   fillChallenge(0x07),
		LeaderSig:   fillSig(0x08),
	}

	frame := ch.Encode(testClass, testInstruction)
	got, err := DecodeChallenge(frame, testClass, testInstruction, 9, testBlockHash)
	require.NoError(t, err)
	assert.Equal(t, ch, got)

	finalFrame := ch.EncodeFinal(testClass, testInstruction)
	gotFinal, err := DecodeFinalChallenge(finalFrame, testClass, testInstruction, 9, testBlockHash)
	require.NoError(t, err)
	assert.Equal(t, ch, gotFinal)

	// cross-decoding must fail: a CHALLENGE frame is not a FINALCHALLENGE frame
	_, err = DecodeFinalChallenge(frame, testClass, testInstruction, 9, testBlockHash)
	assert.Equal(t, ErrWrongType, err)
}

func TestResponseRoundTripBothRounds(t *testing.T) {
	r := &Response{
		ConsensusID: 11,
		BlockHash:   testBlockHash,
		BackupID:    3,
		SubsetID:    0,
		Response:    fillResponse(0x09),
		Sig:         fillSig(0x0A),
	}

	frame := r.Encode(testClass, testInstruction)
	got, err := DecodeResponse(frame, testClass, testInstruction, 11, testBlockHash)
	require.NoError(t, err)
	assert.Equal(t, r, got)

	finalFrame := r.EncodeFinal(testClass, testInstruction)
	gotFinal, err := DecodeFinalResponse(finalFrame, testClass, testInstruction, 11, testBlockHash)
	require.NoError(t, err)
	assert.Equal(t, r, gotFinal)
}

func TestCollectiveSigRoundTripBothRounds(t *testing.T) {
	bm := group.NewBitmap(7)
	bm.Set(0)
	bm.Set(3)
	bm.Set(6)

	cs := &CollectiveSig{
		ConsensusID:   22,
		BlockHash:     testBlockHash,
		LeaderID:      0,
		SubsetID:      2,
		Bitmap:        bm,
		CollectiveSig: fillSig(0x0B),
		LeaderSig:     fillSig(0x0C),
	}

	frame := cs.Encode(testClass, testInstruction)
	got, err := DecodeCollectiveSig(frame, testClass, testInstruction, 22, testBlockHash)
	require.NoError(t, err)
	assert.Equal(t, cs.Bitmap.Indices(), got.Bitmap.Indices())
	assert.Equal(t, cs.CollectiveSig, got.CollectiveSig)
	assert.Equal(t, cs.LeaderSig, got.LeaderSig)
	assert.Equal(t, cs.SubsetID, got.SubsetID)

	finalFrame := cs.EncodeFinal(testClass, testInstruction)
	gotFinal, err := DecodeFinalCollectiveSig(finalFrame, testClass, testInstruction, 22, testBlockHash)
	require.NoError(t, err)
	assert.Equal(t, cs.Bitmap.Indices(), gotFinal.Bitmap.Indices())

	_, err = DecodeCollectiveSig(finalFrame, testClass, testInstruction, 22, testBlockHash)
	assert.Equal(t, ErrWrongType, err)
}

func TestPeekConsensusIDReadsAnnounceAndCommit(t *testing.T) {
	a := &Announce{ConsensusID: 42, BlockHash: testBlockHash, LeaderID: 0, Proposal: []byte("p"), LeaderSig: fillSig(1)}
	got, err := PeekConsensusID(a.Encode(testClass, testInstruction))
	require.NoError(t, err)
	assert.Equal(t, uint32(42), got)

	c := &Commit{ConsensusID: 43, BlockHash: testBlockHash, BackupID: 1, CommitPoint: fillCommitPoint(1), Sig: fillSig(1)}
	got, err = PeekConsensusID(c.Encode(testClass, testInstruction))
	require.NoError(t, err)
	assert.Equal(t, uint32(43), got)
}

func TestPeekConsensusIDRejectsTooShort(t *testing.T) {
	_, err := PeekConsensusID([]byte{testClass, testInstruction, TypeAnnounce, 0, 0})
	assert.Equal(t, ErrTooShort, err)
}

func TestSignedBodyExcludesSignature(t *testing.T) {
	a1 := &Announce{ConsensusID: 1, BlockHash: testBlockHash, LeaderID: 0, Proposal: []byte("p"), LeaderSig: fillSig(0x01)}
	a2 := &Announce{ConsensusID: 1, BlockHash: testBlockHash, LeaderID: 0, Proposal: []byte("p"), LeaderSig: fillSig(0x02)}

	assert.Equal(t, a1.SignedBody(), a2.SignedBody())
}
