package consensus

import (
	"context"
	"testing"
	"time"

	"github.com/dedis/kyber"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shardlabs/shard-consensus/consensus/wire"
	"github.com/shardlabs/shard-consensus/crypto"
	"github.com/shardlabs/shard-consensus/p2p"
)

// noopTransport discards every send; these tests drive the leader
// directly through OnMessage and only need its internal state, not an
// actual delivered network.
type noopTransport struct{}

func (noopTransport) Unicast(ctx context.Context, p p2p.Peer, frame []byte) error     { return nil }
func (noopTransport) Multicast(ctx context.Context, p []p2p.Peer, frame []byte) error { return nil }

type testKey struct {
	Priv kyber.Scalar
	Pub  kyber.Point
}

func newTestLeader(t *testing.T, n int, cfg Config) (*Leader, []p2p.Peer, []testKey) {
	t.Helper()
	committee := make([]p2p.Peer, n)
	keys := make([]testKey, n)
	for i := 0; i < n; i++ {
		priv, pub, err := crypto.GenerateKeyPair(nil)
		require.NoError(t, err)
		keys[i] = testKey{Priv: priv, Pub: pub}
		committee[i] = p2p.Peer{PubKey: pub}
	}
	var blockHash [32]byte
	l := NewLeader(1, blockHash, 0xA0, 0x01, 0, keys[0].Priv, committee, noopTransport{}, cfg, nil)
	return l, committee, keys
}

func signedCommit(t *testing.T, l *Leader, keys []testKey, backupID uint16) *wire.Commit {
	t.Helper()
	_, point := crypto.NewCommitment()
	cp, err := crypto.MarshalCommitPoint(point)
	require.NoError(t, err)
	c := &wire.Commit{ConsensusID: l.consensusID, BlockHash: l.blockHash, BackupID: backupID, CommitPoint: cp}
	sig, err := crypto.Sign(keys[backupID].Priv, keys[backupID].Pub, c.SignedBody())
	require.NoError(t, err)
	c.Sig = sig
	return c
}

func TestLeaderAcceptCommitRejectsBeforeAnnounce(t *testing.T) {
	cfg := DefaultConfig()
	l, _, keys := newTestLeader(t, 3, cfg)

	c := signedCommit(t, l, keys, 1)
	ok := l.OnMessage(context.Background(), c.Encode(l.class, l.instruction), p2p.Peer{})
	assert.False(t, ok, "commit before ANNOUNCE must be rejected")
}

func TestLeaderAcceptCommitRejectsDuplicateSender(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CommitWindow = time.Hour
	l, _, keys := newTestLeader(t, 3, cfg)
	require.True(t, l.StartConsensus(context.Background(), []byte("proposal")))

	c := signedCommit(t, l, keys, 1)
	frame := c.Encode(l.class, l.instruction)
	assert.True(t, l.OnMessage(context.Background(), frame, p2p.Peer{}))
	assert.False(t, l.OnMessage(context.Background(), frame, p2p.Peer{}), "duplicate commit from the same backup must be rejected")
}

func TestLeaderAcceptCommitRejectsBadSignature(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CommitWindow = time.Hour
	l, _, keys := newTestLeader(t, 3, cfg)
	require.True(t, l.StartConsensus(context.Background(), []byte("proposal")))

	c := signedCommit(t, l, keys, 1)
	c.Sig[0] ^= 0xFF // corrupt the signature
	ok := l.OnMessage(context.Background(), c.Encode(l.class, l.instruction), p2p.Peer{})
	assert.False(t, ok, "commit with a bad signature must be rejected")
}

func TestLeaderAcceptCommitRejectsOutOfRangeBackupID(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CommitWindow = time.Hour
	l, _, keys := newTestLeader(t, 3, cfg)
	require.True(t, l.StartConsensus(context.Background(), []byte("proposal")))

	_, point := crypto.NewCommitment()
	cp, err := crypto.MarshalCommitPoint(point)
	require.NoError(t, err)
	c := &wire.Commit{ConsensusID: l.consensusID, BlockHash: l.blockHash, BackupID: 99, CommitPoint: cp}
	sig, err := crypto.Sign(keys[1].Priv, keys[1].Pub, c.SignedBody())
	require.NoError(t, err)
	c.Sig = sig

	ok := l.OnMessage(context.Background(), c.Encode(l.class, l.instruction), p2p.Peer{})
	assert.False(t, ok, "commit from an out-of-range backup id must be rejected")
}

func TestLeaderClosesWindowBelowQuorumAndIgnoresLateCommits(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CommitWindow = time.Millisecond
	cfg.ToleranceFraction = 1.0 // numForConsensus(3, 1.0) == 3: more commits than the 2 backups can send
	l, _, keys := newTestLeader(t, 3, cfg)
	require.True(t, l.StartConsensus(context.Background(), []byte("proposal")))

	c1 := signedCommit(t, l, keys, 1)
	l.OnMessage(context.Background(), c1.Encode(l.class, l.instruction), p2p.Peer{})

	time.Sleep(5 * time.Millisecond) // let the commit timer fire and close the window below quorum

	l.mu.Lock()
	state := l.state
	l.mu.Unlock()
	assert.Equal(t, Error, state, "closing the window below quorum must error the instance out")

	// id 2 never committed in time; it must be silently ignored now
	// that the window is closed, rather than reopening anything.
	c2 := signedCommit(t, l, keys, 2)
	ok := l.OnMessage(context.Background(), c2.Encode(l.class, l.instruction), p2p.Peer{})
	assert.False(t, ok, "a commit arriving after the window closes must be ignored")
}

func TestLeaderErrorsOutWhenEveryRacingSubsetFails(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NumConsensusSets = 2
	l, _, _ := newTestLeader(t, 3, cfg)
	l.state = ChallengeDone
	l.subsets = []*subset{{state: SubsetChallengeDone}, {state: SubsetChallengeDone}}

	l.subsets[0].state = SubsetError
	l.failSubset(0)
	assert.Equal(t, ChallengeDone, l.state, "one live subset remaining must not error the instance out")

	l.subsets[1].state = SubsetError
	l.failSubset(1)
	assert.Equal(t, Error, l.state, "every subset failing must error the whole instance out")
}
