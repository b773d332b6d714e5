package consensus_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/dedis/kyber"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shardlabs/shard-consensus/consensus"
	"github.com/shardlabs/shard-consensus/consensus/group"
	"github.com/shardlabs/shard-consensus/crypto"
	"github.com/shardlabs/shard-consensus/p2p"
)

const (
	e2eClass       byte = 0xC0
	e2eInstruction byte = 0x01
)

type completion struct {
	proposal []byte
	bitmap   *group.Bitmap
	sig      crypto.Signature
}

type keyPair struct {
	priv kyber.Scalar
	pub  kyber.Point
}

// buildCommittee generates n real Schnorr keypairs and the matching
// committee slice, with peer ids "<prefix>-0".."<prefix>-(n-1)".
func buildCommittee(t *testing.T, prefix string, n int) ([]p2p.Peer, []keyPair) {
	t.Helper()
	committee := make([]p2p.Peer, n)
	keys := make([]keyPair, n)
	for i := 0; i < n; i++ {
		priv, pub, err := crypto.GenerateKeyPair(nil)
		require.NoError(t, err)
		keys[i] = keyPair{priv: priv, pub: pub}
		committee[i] = p2p.Peer{ID: fmt.Sprintf("%s-%d", prefix, i), PubKey: pub}
	}
	return committee, keys
}

func TestConsensusEndToEndFullParticipation(t *testing.T) {
	const n = 4 // id 0 = leader, ids 1..3 = backups
	blockHash := [32]byte{7, 7, 7}
	const consensusID = uint32(42)

	committee, keys := buildCommittee(t, "peer", n)
	net := newFakeNetwork()

	cfg := consensus.Config{
		CommitWindow:      50 * time.Millisecond,
		NumConsensusSets:  1,
		ToleranceFraction: 0.8, // numForConsensus(4, 0.8) == 3, full backup participation
	}

	leaderDone := make(chan completion, 1)
	leaderTransport := net.transportFor(committee[0])
	leader := consensus.NewLeader(consensusID, blockHash, e2eClass, e2eInstruction, 0, keys[0].priv, committee, leaderTransport, cfg, func(proposal []byte, bitmap *group.Bitmap, sig crypto.Signature) {
		leaderDone <- completion{proposal: proposal, bitmap: bitmap, sig: sig}
	})
	net.register(committee[0].ID, func(frame []byte, from p2p.Peer) { leader.OnMessage(context.Background(), frame, from) })

	backupDone := make([]chan completion, n)
	validator := func(proposal []byte) bool { return true }
	for i := 1; i < n; i++ {
		backupDone[i] = make(chan completion, 1)
		ch := backupDone[i]
		transport := net.transportFor(committee[i])
		b := consensus.NewBackup(consensusID, blockHash, e2eClass, e2eInstruction, uint16(i), keys[i].priv, committee, 0, validator, transport, cfg, func(proposal []byte, bitmap *group.Bitmap, sig crypto.Signature) {
			ch <- completion{proposal: proposal, bitmap: bitmap, sig: sig}
		})
		net.register(committee[i].ID, func(frame []byte, from p2p.Peer) { b.OnMessage(context.Background(), frame, from) })
	}

	proposal := []byte("block 100 header")
	ok := leader.StartConsensus(context.Background(), proposal)
	require.True(t, ok)

	var leaderResult completion
	select {
	case leaderResult = <-leaderDone:
	case <-time.After(2 * time.Second):
		t.Fatal("leader never completed")
	}
	assert.Equal(t, proposal, leaderResult.proposal)
	assert.Equal(t, []int{1, 2, 3}, leaderResult.bitmap.Indices())
	assert.True(t, leaderResult.sig.Initialized())

	for i := 1; i < n; i++ {
		select {
		case got := <-backupDone[i]:
			assert.Equal(t, proposal, got.proposal)
			assert.Equal(t, leaderResult.bitmap.Indices(), got.bitmap.Indices())
			assert.Equal(t, leaderResult.sig, got.sig)
		case <-time.After(2 * time.Second):
			t.Fatalf("backup %d never completed", i)
		}
	}
}

func TestConsensusEndToEndBelowQuorum(t *testing.T) {
	const n = 4
	blockHash := [32]byte{8, 8, 8}
	const consensusID = uint32(43)

	committee, keys := buildCommittee(t, "quorum-peer", n)
	net := newFakeNetwork()
	cfg := consensus.Config{
		CommitWindow:      30 * time.Millisecond,
		NumConsensusSets:  1,
		ToleranceFraction: 0.8, // numForConsensus(4, 0.8) == 3, but only 1 backup will commit
	}

	leaderDone := make(chan completion, 1)
	leaderTransport := net.transportFor(committee[0])
	leader := consensus.NewLeader(consensusID, blockHash, e2eClass, e2eInstruction, 0, keys[0].priv, committee, leaderTransport, cfg, func(proposal []byte, bitmap *group.Bitmap, sig crypto.Signature) {
		leaderDone <- completion{proposal: proposal, bitmap: bitmap, sig: sig}
	})
	net.register(committee[0].ID, func(frame []byte, from p2p.Peer) { leader.OnMessage(context.Background(), frame, from) })

	// Only backup 1 participates; backups 2 and 3 never respond at all
	// (as if offline), so the committed count stays below quorum.
	backupDone := make(chan completion, 1)
	validator := func(proposal []byte) bool { return true }
	transport := net.transportFor(committee[1])
	b := consensus.NewBackup(consensusID, blockHash, e2eClass, e2eInstruction, 1, keys[1].priv, committee, 0, validator, transport, cfg, func(proposal []byte, bitmap *group.Bitmap, sig crypto.Signature) {
		backupDone <- completion{proposal: proposal, bitmap: bitmap, sig: sig}
	})
	net.register(committee[1].ID, func(frame []byte, from p2p.Peer) { b.OnMessage(context.Background(), frame, from) })

	proposal := []byte("block 101 header")
	ok := leader.StartConsensus(context.Background(), proposal)
	require.True(t, ok)

	select {
	case <-leaderDone:
		t.Fatal("leader completed despite insufficient committers")
	case <-backupDone:
		t.Fatal("backup completed despite insufficient committers")
	case <-time.After(300 * time.Millisecond):
		// expected: the commit window closes below quorum and the
		// instance errors out silently, no CHALLENGE is ever emitted
	}
}

func TestConsensusEndToEndNonParticipantsConverge(t *testing.T) {
	const n = 5 // id 0 = leader, ids 1..4 = backups
	blockHash := [32]byte{10, 10, 10}
	const consensusID = uint32(45)

	committee, keys := buildCommittee(t, "extra-peer", n)
	net := newFakeNetwork()

	cfg := consensus.Config{
		CommitWindow:      50 * time.Millisecond,
		NumConsensusSets:  1,
		ToleranceFraction: 0.5, // numForConsensus(5, 0.5) == 2: only 2 of the 4 committers race
	}

	leaderDone := make(chan completion, 1)
	leaderTransport := net.transportFor(committee[0])
	leader := consensus.NewLeader(consensusID, blockHash, e2eClass, e2eInstruction, 0, keys[0].priv, committee, leaderTransport, cfg, func(proposal []byte, bitmap *group.Bitmap, sig crypto.Signature) {
		leaderDone <- completion{proposal: proposal, bitmap: bitmap, sig: sig}
	})
	net.register(committee[0].ID, func(frame []byte, from p2p.Peer) { leader.OnMessage(context.Background(), frame, from) })

	// All four backups commit, but only two are selected into the one
	// racing subset; the other two never see a single CHALLENGE.
	backupDone := make([]chan completion, n)
	validator := func(proposal []byte) bool { return true }
	for i := 1; i < n; i++ {
		backupDone[i] = make(chan completion, 1)
		ch := backupDone[i]
		transport := net.transportFor(committee[i])
		b := consensus.NewBackup(consensusID, blockHash, e2eClass, e2eInstruction, uint16(i), keys[i].priv, committee, 0, validator, transport, cfg, func(proposal []byte, bitmap *group.Bitmap, sig crypto.Signature) {
			ch <- completion{proposal: proposal, bitmap: bitmap, sig: sig}
		})
		net.register(committee[i].ID, func(frame []byte, from p2p.Peer) { b.OnMessage(context.Background(), frame, from) })
	}

	proposal := []byte("block 103 header")
	ok := leader.StartConsensus(context.Background(), proposal)
	require.True(t, ok)

	var leaderResult completion
	select {
	case leaderResult = <-leaderDone:
	case <-time.After(2 * time.Second):
		t.Fatal("leader never completed")
	}
	assert.Len(t, leaderResult.bitmap.Indices(), 2, "only the selected subset should be in the final bitmap")

	// Every committer converges to DONE with the identical final
	// signature over FINALCOLLECTIVESIG, whether or not it was one of
	// the two subset members actually raced through both rounds.
	for i := 1; i < n; i++ {
		select {
		case got := <-backupDone[i]:
			assert.Equal(t, proposal, got.proposal)
			assert.Equal(t, leaderResult.bitmap.Indices(), got.bitmap.Indices())
			assert.Equal(t, leaderResult.sig, got.sig)
		case <-time.After(2 * time.Second):
			t.Fatalf("backup %d never completed despite the leader finishing", i)
		}
	}
}

func TestConsensusEndToEndRejectingValidator(t *testing.T) {
	const n = 4
	blockHash := [32]byte{9, 9, 9}
	const consensusID = uint32(44)

	committee, keys := buildCommittee(t, "reject-peer", n)
	net := newFakeNetwork()
	cfg := consensus.Config{
		CommitWindow:      30 * time.Millisecond,
		NumConsensusSets:  1,
		ToleranceFraction: 0.667, // numForConsensus(4, 0.667) == 2
	}

	leaderDone := make(chan completion, 1)
	leaderTransport := net.transportFor(committee[0])
	leader := consensus.NewLeader(consensusID, blockHash, e2eClass, e2eInstruction, 0, keys[0].priv, committee, leaderTransport, cfg, func(proposal []byte, bitmap *group.Bitmap, sig crypto.Signature) {
		leaderDone <- completion{proposal: proposal, bitmap: bitmap, sig: sig}
	})
	net.register(committee[0].ID, func(frame []byte, from p2p.Peer) { leader.OnMessage(context.Background(), frame, from) })

	// backup 1 rejects every proposal; backups 2 and 3 accept. Quorum
	// (2) is still reachable from the two accepting backups.
	rejecting := func(proposal []byte) bool { return false }
	accepting := func(proposal []byte) bool { return true }
	validators := map[int]consensus.Validator{1: rejecting, 2: accepting, 3: accepting}

	backupDone := make(map[int]chan completion)
	for i := 1; i < n; i++ {
		backupDone[i] = make(chan completion, 1)
		ch := backupDone[i]
		transport := net.transportFor(committee[i])
		b := consensus.NewBackup(consensusID, blockHash, e2eClass, e2eInstruction, uint16(i), keys[i].priv, committee, 0, validators[i], transport, cfg, func(proposal []byte, bitmap *group.Bitmap, sig crypto.Signature) {
			ch <- completion{proposal: proposal, bitmap: bitmap, sig: sig}
		})
		net.register(committee[i].ID, func(frame []byte, from p2p.Peer) { b.OnMessage(context.Background(), frame, from) })
	}

	proposal := []byte("block 102 header")
	ok := leader.StartConsensus(context.Background(), proposal)
	require.True(t, ok)

	select {
	case got := <-leaderDone:
		assert.Equal(t, []int{2, 3}, got.bitmap.Indices())
	case <-time.After(2 * time.Second):
		t.Fatal("leader never completed despite reachable quorum among accepting backups")
	}

	select {
	case <-backupDone[1]:
		t.Fatal("rejecting backup must never complete a round")
	case <-time.After(200 * time.Millisecond):
	}
}
