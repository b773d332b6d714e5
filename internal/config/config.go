// Package config loads the tunable constants a shardconsensusd process
// runs with: the commit window, subset count, tolerance fraction, and
// the committee member list, from an ini file, with env var overrides
// and optional hot-reload when the file changes on disk.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/iancoleman/strcase"
	"gopkg.in/ini.v1"

	"github.com/shardlabs/shard-consensus/consensus"
)

// EnvPrefix is prepended to every upper-snake-case key when looking
// for an environment variable override, e.g. commit_window under
// [consensus] becomes SHARDCONSENSUS_COMMIT_WINDOW.
const EnvPrefix = "SHARDCONSENSUS"

// PeerConfig is one committee member as written in the config file: a
// committee index, its libp2p multiaddr, and its base58-encoded
// Schnorr public key, written "<index> = <multiaddr>|<base58 pubkey>"
// under [peers].
type PeerConfig struct {
	Index  uint16
	Addr   string
	PubKey string
}

// Config is the full set of process tunables loaded from disk.
type Config struct {
	Consensus consensus.Config
	MyIndex   uint16
	Peers     []PeerConfig
}

// Load reads path (an ini file) and applies any SHARDCONSENSUS_*
// environment overrides on top of it.
func Load(path string) (Config, error) {
	f, err := ini.Load(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: loading %s: %w", path, err)
	}
	return fromFile(f)
}

func fromFile(f *ini.File) (Config, error) {
	cfg := consensus.DefaultConfig()
	sec := f.Section("consensus")

	if v, ok := lookup(sec, "commit_window"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: commit_window: %w", err)
		}
		cfg.CommitWindow = d
	}
	if v, ok := lookup(sec, "num_consensus_sets"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: num_consensus_sets: %w", err)
		}
		cfg.NumConsensusSets = n
	}
	if v, ok := lookup(sec, "tolerance_fraction"); ok {
		fr, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return Config{}, fmt.Errorf("config: tolerance_fraction: %w", err)
		}
		cfg.ToleranceFraction = fr
	}

	myIndex, err := strconv.ParseUint(strings.TrimSpace(sec.Key("my_index").String()), 10, 16)
	if err != nil {
		return Config{}, fmt.Errorf("config: my_index: %w", err)
	}

	peersSec := f.Section("peers")
	keys := peersSec.Keys()
	peers := make([]PeerConfig, 0, len(keys))
	for _, k := range keys {
		index, err := strconv.ParseUint(k.Name(), 10, 16)
		if err != nil {
			return Config{}, fmt.Errorf("config: peer key %q is not a committee index: %w", k.Name(), err)
		}
		addr, pubKey, err := splitPeerValue(k.String())
		if err != nil {
			return Config{}, fmt.Errorf("config: peer %d: %w", index, err)
		}
		peers = append(peers, PeerConfig{Index: uint16(index), Addr: addr, PubKey: pubKey})
	}

	return Config{
		Consensus: cfg,
		MyIndex:   uint16(myIndex),
		Peers:     peers,
	}, nil
}

// splitPeerValue parses a "<multiaddr>|<base58 pubkey>" peers value.
func splitPeerValue(v string) (addr, pubKey string, err error) {
	parts := strings.SplitN(v, "|", 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("expected \"<multiaddr>|<base58 pubkey>\", got %q", v)
	}
	return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]), nil
}

// lookup reads key from an env var named EnvPrefix + "_" +
// SCREAMING_SNAKE_CASE(key) if one is set, which overrides the file;
// otherwise it reads key from sec.
func lookup(sec *ini.Section, key string) (string, bool) {
	envKey := EnvPrefix + "_" + strcase.ToScreamingSnake(key)
	if v, ok := os.LookupEnv(envKey); ok {
		return v, true
	}
	if sec.HasKey(key) {
		return strings.TrimSpace(sec.Key(key).String()), true
	}
	return "", false
}
