package p2p

import (
	"bufio"
	"context"
	"fmt"
	"sync"

	libp2p "github.com/libp2p/go-libp2p"
	crypto "github.com/libp2p/go-libp2p-crypto"
	discovery "github.com/libp2p/go-libp2p-discovery"
	host "github.com/libp2p/go-libp2p-host"
	dht "github.com/libp2p/go-libp2p-kad-dht"
	net "github.com/libp2p/go-libp2p-net"
	peer "github.com/libp2p/go-libp2p-peer"
	peerstore "github.com/libp2p/go-libp2p-peerstore"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	multiaddr "github.com/multiformats/go-multiaddr"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// OnFrame is invoked once per inbound frame, with the address of the
// peer that sent it. The core registers exactly one of these.
type OnFrame func(frame []byte, from Peer)

// Transport is the narrow contract the consensus core requires from
// its network layer: best-effort unicast and multicast of opaque
// bytes. Both calls hand bytes to the underlying stack and return;
// they never block on consensus state.
type Transport interface {
	Unicast(ctx context.Context, peer Peer, frame []byte) error
	Multicast(ctx context.Context, peers []Peer, frame []byte) error
}

// protocolID namespaces the stream protocol used for unicast sends so
// this host's consensus traffic doesn't collide with other libp2p
// protocols sharing the same process.
const protocolID = "/shard-consensus/frame/1.0.0"

// Host wraps a libp2p host, a kademlia DHT for peer discovery, and a
// gossip topic for multicast, exposing them through the Transport
// interface the consensus core consumes.
type Host struct {
	host   host.Host
	dht    *dht.IpfsDHT
	topic  *pubsub.Topic
	sub    *pubsub.Subscription
	ps     *pubsub.PubSub
	onRecv OnFrame

	mu sync.Mutex
}

// NewHost starts a libp2p host listening on listenAddr, joins the
// kademlia DHT rooted at bootstrap peers, and subscribes to the given
// gossip topic for multicast traffic.
func NewHost(ctx context.Context, priv crypto.PrivKey, listenAddr multiaddr.Multiaddr, topicName string, bootstrap []peerstore.PeerInfo, onRecv OnFrame) (*Host, error) {
	h, err := libp2p.New(ctx, libp2p.ListenAddrs(listenAddr), libp2p.Identity(priv))
	if err != nil {
		return nil, errors.Wrap(err, "p2p: failed to start libp2p host")
	}

	kad, err := dht.New(ctx, h)
	if err != nil {
		return nil, errors.Wrap(err, "p2p: failed to start kademlia dht")
	}
	if err := kad.Bootstrap(ctx); err != nil {
		log.Warn().Err(err).Msg("p2p: dht bootstrap returned an error, continuing")
	}
	for _, pi := range bootstrap {
		h.Peerstore().AddAddrs(pi.ID, pi.Addrs, peerstore.PermanentAddrTTL)
		if err := h.Connect(ctx, pi); err != nil {
			log.Warn().Err(err).Str("peer", pi.ID.Pretty()).Msg("p2p: failed to dial bootstrap peer")
		}
	}
	routingDiscovery := discovery.NewRoutingDiscovery(kad)
	discovery.Advertise(ctx, routingDiscovery, topicName)

	ps, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		return nil, errors.Wrap(err, "p2p: failed to start gossipsub")
	}
	topic, err := ps.Join(topicName)
	if err != nil {
		return nil, errors.Wrap(err, "p2p: failed to join gossip topic")
	}
	sub, err := topic.Subscribe()
	if err != nil {
		return nil, errors.Wrap(err, "p2p: failed to subscribe to gossip topic")
	}

	hst := &Host{
		host:   h,
		dht:    kad,
		topic:  topic,
		sub:    sub,
		ps:     ps,
		onRecv: onRecv,
	}

	h.SetStreamHandler(protocolID, hst.handleStream)
	go hst.pumpGossip(ctx)

	return hst, nil
}

// ID returns this host's own peer identity, for use in Peer{} values
// constructed locally (e.g. the instance's own committee entry).
func (h *Host) ID() string { return h.host.ID().Pretty() }

func (h *Host) handleStream(s net.Stream) {
	defer s.Close()
	r := bufio.NewReader(s)
	frame, err := readFrame(r)
	if err != nil {
		log.Debug().Err(err).Msg("p2p: dropping malformed unicast stream")
		return
	}
	h.onRecv(frame, Peer{ID: s.Conn().RemotePeer().Pretty()})
}

func (h *Host) pumpGossip(ctx context.Context) {
	for {
		msg, err := h.sub.Next(ctx)
		if err != nil {
			log.Debug().Err(err).Msg("p2p: gossip subscription closed")
			return
		}
		if msg.GetFrom() == h.host.ID() {
			continue
		}
		h.onRecv(msg.GetData(), Peer{ID: msg.GetFrom().Pretty()})
	}
}

// Unicast opens a direct stream to peer and writes frame, length
// prefixed, per readFrame's expectations on the receiving side. The
// peer must already be known to this host's peerstore (discovered via
// the DHT or supplied as a bootstrap address).
func (h *Host) Unicast(ctx context.Context, p Peer, frame []byte) error {
	pid, err := peer.IDB58Decode(p.ID)
	if err != nil {
		return errors.Wrap(err, "p2p: malformed peer id")
	}
	s, err := h.host.NewStream(ctx, pid, protocolID)
	if err != nil {
		return errors.Wrap(err, "p2p: failed to open unicast stream")
	}
	defer s.Close()
	return writeFrame(s, frame)
}

// Multicast publishes frame once to the gossip topic; libp2p's mesh
// fans it out to every subscribed peer, which for consensus traffic
// is exactly the committee. The peers argument is accepted for
// interface symmetry with Unicast but unused by the gossip transport:
// topic membership, not an explicit peer list, determines delivery.
func (h *Host) Multicast(ctx context.Context, _ []Peer, frame []byte) error {
	if err := h.topic.Publish(ctx, frame); err != nil {
		return errors.Wrap(err, "p2p: failed to publish to gossip topic")
	}
	return nil
}

func writeFrame(s net.Stream, frame []byte) error {
	length := uint32(len(frame))
	header := []byte{byte(length >> 24), byte(length >> 16), byte(length >> 8), byte(length)}
	if _, err := s.Write(header); err != nil {
		return errors.Wrap(err, "p2p: failed to write frame header")
	}
	if _, err := s.Write(frame); err != nil {
		return errors.Wrap(err, "p2p: failed to write frame body")
	}
	return nil
}

func readFrame(r *bufio.Reader) ([]byte, error) {
	header := make([]byte, 4)
	if _, err := readFull(r, header); err != nil {
		return nil, err
	}
	length := uint32(header[0])<<24 | uint32(header[1])<<16 | uint32(header[2])<<8 | uint32(header[3])
	if length > 1<<24 {
		return nil, fmt.Errorf("p2p: frame length %d exceeds sanity bound", length)
	}
	body := make([]byte, length)
	if _, err := readFull(r, body); err != nil {
		return nil, err
	}
	return body, nil
}

func readFull(r *bufio.Reader, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		m, err := r.Read(buf[n:])
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}
