// Command shardconsensusd runs one committee member of a shard's
// two-round Schnorr consensus over a libp2p transport, with its
// completed rounds persisted to an on-disk block store and its health,
// status, and metrics exposed over HTTP. The propose subcommand leads
// one instance; no subcommand starts a backup instance, so inbound
// frames reach only instances this process itself started.
package main

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io/ioutil"
	"os"
	"os/signal"
	"time"

	"github.com/btcsuite/btcutil/base58"
	"github.com/dedis/kyber"
	"github.com/fatih/color"
	libp2pcrypto "github.com/libp2p/go-libp2p-crypto"
	peerstore "github.com/libp2p/go-libp2p-peerstore"
	multiaddr "github.com/multiformats/go-multiaddr"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	cli "gopkg.in/urfave/cli.v1"

	"github.com/shardlabs/shard-consensus/api"
	"github.com/shardlabs/shard-consensus/consensus/wire"
	"github.com/shardlabs/shard-consensus/crypto"
	"github.com/shardlabs/shard-consensus/host"
	"github.com/shardlabs/shard-consensus/internal/config"
	applog "github.com/shardlabs/shard-consensus/internal/log"
	"github.com/shardlabs/shard-consensus/metrics"
	"github.com/shardlabs/shard-consensus/p2p"
	"github.com/shardlabs/shard-consensus/store"
)

var configFlags = []cli.Flag{
	cli.StringFlag{Name: "config", Value: "shardconsensus.ini", Usage: "path to the committee/tunables ini file"},
	cli.StringFlag{Name: "listen", Value: "/ip4/0.0.0.0/tcp/9000", Usage: "libp2p listen multiaddr"},
	cli.StringFlag{Name: "topic", Value: "shard-consensus", Usage: "gossipsub topic name for multicast traffic"},
	cli.StringFlag{Name: "http-addr", Value: "127.0.0.1:8080", Usage: "address for the /healthz, /status, /metrics server"},
	cli.StringFlag{Name: "store-backend", Value: string(store.BackendLevelDB), Usage: "leveldb or badger"},
	cli.StringFlag{Name: "store-dir", Value: "shardconsensus-data", Usage: "block store directory"},
	cli.StringFlag{Name: "priv-key-file", Value: "shardconsensus.key", Usage: "file holding this node's wire-form Schnorr private key; generated and written here if absent"},
	cli.StringFlag{Name: "log-level", Value: "info"},
	cli.StringFlag{Name: "log-file", Value: ""},
	cli.BoolFlag{Name: "log-console", Usage: "human-readable console logging instead of JSON"},
}

func main() {
	app := cli.NewApp()
	app.Name = "shardconsensusd"
	app.Usage = "run one committee member of a shard's consensus core"
	app.Commands = []cli.Command{
		{
			Name:  "run",
			Usage: "start the transport, block store, and status server without starting a consensus instance",
			Flags: configFlags,
			Action: func(c *cli.Context) error {
				return run(c, nil)
			},
		},
		{
			Name:  "propose",
			Usage: "start as leader and drive one consensus instance over --proposal-file",
			Flags: append(append([]cli.Flag{}, configFlags...),
				cli.Uint64Flag{Name: "consensus-id", Usage: "consensus id for the instance this node will lead"},
				cli.StringFlag{Name: "proposal-file", Usage: "path to the proposal body to announce"},
			),
			Action: func(c *cli.Context) error {
				proposal, err := ioutil.ReadFile(c.String("proposal-file"))
				if err != nil {
					return errors.Wrap(err, "reading proposal file")
				}
				return run(c, &leaderRequest{
					consensusID: uint32(c.Uint64("consensus-id")),
					proposal:    proposal,
				})
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("shardconsensusd: %v", err))
		os.Exit(1)
	}
}

// leaderRequest, when non-nil, tells run to drive one instance as
// leader immediately after wiring up the transport, instead of only
// sitting idle waiting to be dispatched to as a backup.
type leaderRequest struct {
	consensusID uint32
	proposal    []byte
}

func run(c *cli.Context, lead *leaderRequest) error {
	applog.New(applog.Config{
		Level:    c.String("log-level"),
		FilePath: c.String("log-file"),
		Console:  c.Bool("log-console"),
	})

	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return errors.Wrap(err, "loading config")
	}

	privKey, pubKey, err := loadOrCreatePrivateKey(c.String("priv-key-file"))
	if err != nil {
		return errors.Wrap(err, "loading private key")
	}

	committee, self, err := buildCommittee(cfg)
	if err != nil {
		return errors.Wrap(err, "building committee from config")
	}
	committee[self].PubKey = pubKey

	bs, err := store.Open(store.Backend(c.String("store-backend")), c.String("store-dir"))
	if err != nil {
		return errors.Wrap(err, "opening block store")
	}
	defer bs.Close()

	h, err := host.New(bs)
	if err != nil {
		return errors.Wrap(err, "building host")
	}

	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	if err != nil {
		return errors.Wrap(err, "registering metrics")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.PollHost(ctx, 15*time.Second)

	listenAddr, err := multiaddr.NewMultiaddr(c.String("listen"))
	if err != nil {
		return errors.Wrap(err, "parsing listen multiaddr")
	}
	identity, _, err := libp2pcrypto.GenerateKeyPair(libp2pcrypto.Ed25519, -1)
	if err != nil {
		return errors.Wrap(err, "generating libp2p identity")
	}

	onFrame := func(frame []byte, from p2p.Peer) {
		consensusID, err := wire.PeekConsensusID(frame)
		if err != nil {
			log.Debug().Err(err).Str("peer", from.String()).Msg("shardconsensusd: dropping frame too short to carry a consensus id")
			return
		}
		if !h.Dispatch(ctx, consensusID, frame, from) {
			log.Debug().Uint32("consensus_id", consensusID).Str("peer", from.String()).Msg("shardconsensusd: no instance running for this consensus id")
		}
	}
	transport, err := p2p.NewHost(ctx, identity, listenAddr, c.String("topic"), nil, onFrame)
	if err != nil {
		return errors.Wrap(err, "starting libp2p host")
	}

	srv := api.NewServer(c.String("http-addr"), statusAdapter{h}, reg, api.Options{}, os.Stdout)
	go func() {
		if err := srv.ListenAndServe(); err != nil {
			log.Error().Err(err).Msg("shardconsensusd: status server stopped")
		}
	}()

	color.Green("shardconsensusd up: peer=%s index=%d committee_size=%d listen=%s http=%s",
		transport.ID(), self, len(committee), c.String("listen"), c.String("http-addr"))

	if lead != nil {
		blockHash := sha256.Sum256(lead.proposal)
		if _, err := h.StartLeader(ctx, lead.consensusID, blockHash, 0, 0,
			uint16(self), privKey, committee, transport, cfg.Consensus, lead.proposal); err != nil {
			return errors.Wrap(err, "starting leader instance")
		}
		color.Cyan("leading consensus id %d over %d bytes of proposal", lead.consensusID, len(lead.proposal))
	}

	waitForSignal()
	return nil
}

func waitForSignal() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	<-sig
}

// statusAdapter satisfies api.StatusProvider by converting host.Status
// to api.Status at the one place both packages meet, so neither
// package needs to import the other's types.
type statusAdapter struct{ h *host.Host }

func (s statusAdapter) Status() (api.Status, error) {
	st, err := s.h.Status()
	if err != nil {
		return api.Status{}, err
	}
	return api.Status{InFlight: st.InFlight, LatestStore: st.LatestStore, HasLatest: st.HasLatest}, nil
}

// buildCommittee decodes every [peers] entry in cfg into a p2p.Peer
// (multiaddr resolved to a libp2p peer id, and its base58 Schnorr
// public key unmarshaled), returning the full committee slice and the
// index of cfg.MyIndex within it.
func buildCommittee(cfg config.Config) ([]p2p.Peer, int, error) {
	peers := make([]p2p.Peer, len(cfg.Peers))
	self := -1
	for i, pc := range cfg.Peers {
		maddr, err := multiaddr.NewMultiaddr(pc.Addr)
		if err != nil {
			return nil, 0, errors.Wrapf(err, "peer %d: parsing multiaddr %q", pc.Index, pc.Addr)
		}
		info, err := peerstore.InfoFromP2pAddr(maddr)
		if err != nil {
			return nil, 0, errors.Wrapf(err, "peer %d: extracting libp2p peer info", pc.Index)
		}

		pub, err := decodePublicKey(pc.PubKey)
		if err != nil {
			return nil, 0, errors.Wrapf(err, "peer %d: decoding public key", pc.Index)
		}

		peers[i] = p2p.Peer{ID: info.ID.Pretty(), PubKey: pub}
		if pc.Index == cfg.MyIndex {
			self = i
		}
	}
	if self < 0 {
		return nil, 0, errors.Errorf("my_index %d does not match any entry under [peers]", cfg.MyIndex)
	}
	return peers, self, nil
}

// decodePublicKey decodes a base58 committee public key from a config
// file entry into the kyber.Point the consensus core verifies
// signatures against.
func decodePublicKey(b58 string) (kyber.Point, error) {
	raw := base58.Decode(b58)
	if len(raw) != crypto.PublicKeySize {
		return nil, errors.Errorf("decoded public key is %d bytes, want %d", len(raw), crypto.PublicKeySize)
	}
	var pk crypto.PublicKey
	copy(pk[:], raw)
	return crypto.UnmarshalPublicKey(pk)
}

// loadOrCreatePrivateKey reads a wire-form Schnorr scalar from path,
// generating and persisting a fresh keypair there if it doesn't exist
// yet, so a restarted process keeps the same committee identity.
func loadOrCreatePrivateKey(path string) (kyber.Scalar, kyber.Point, error) {
	raw, err := ioutil.ReadFile(path)
	if err == nil {
		priv, uerr := crypto.UnmarshalPrivateKey(raw)
		if uerr != nil {
			return nil, nil, errors.Wrap(uerr, "malformed private key file")
		}
		return priv, crypto.Suite.Point().Mul(priv, nil), nil
	}
	if !os.IsNotExist(err) {
		return nil, nil, err
	}

	priv, pub, err := crypto.GenerateKeyPair(rand.Reader)
	if err != nil {
		return nil, nil, errors.Wrap(err, "generating keypair")
	}
	raw, err = crypto.MarshalPrivateKey(priv)
	if err != nil {
		return nil, nil, errors.Wrap(err, "marshaling generated private key")
	}
	if err := ioutil.WriteFile(path, raw, 0600); err != nil {
		return nil, nil, errors.Wrap(err, "persisting generated private key")
	}
	log.Info().Str("path", path).Msg("shardconsensusd: generated a new committee identity")
	return priv, pub, nil
}
