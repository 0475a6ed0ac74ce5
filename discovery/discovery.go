// Package discovery implements UDP broadcast presence: receivers announce
// their transfer address on the LAN, senders collect the announcements
// into a peer list.
package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kahva/goferry/logger"
)

const (
	TypeHello = "hello"

	DefaultHelloInterval = 2 * time.Second

	// A peer silent for staleAfter beyond the hello interval is dropped.
	staleAfter = 2 * time.Second
)

var ErrMalformedMessage = errors.New("malformed discovery message")

// Message is the JSON hello broadcast on the discovery port. Addr is the
// announcer's TCP transfer address.
type Message struct {
	Type string `json:"type"`
	Addr string `json:"addr"`
	Name string `json:"name"`
}

func (m *Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

func ParseMessage(data []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if m.Type != TypeHello {
		return nil, fmt.Errorf("%w: unknown type %q", ErrMalformedMessage, m.Type)
	}
	if m.Name == "" {
		return nil, fmt.Errorf("%w: missing name", ErrMalformedMessage)
	}
	if m.Addr == "" {
		return nil, fmt.Errorf("%w: missing addr", ErrMalformedMessage)
	}
	return &m, nil
}

// Peer is one announced device on the LAN.
type Peer struct {
	Name     string
	Addr     string
	LastSeen time.Time
}

// Broadcaster both announces and listens on the discovery port. With an
// empty announce address it only listens, which is what the sender side
// runs while picking a peer.
type Broadcaster struct {
	addr     string
	announce string
	interval time.Duration
	name     string
	log      logger.Logger

	conn *net.UDPConn

	mu    sync.Mutex
	peers map[string]*Peer
}

// New returns a broadcaster that announces `announce` as its transfer
// address in hello messages on `addr`.
func New(addr, announce string, log logger.Logger) *Broadcaster {
	return &Broadcaster{
		addr:     addr,
		announce: announce,
		interval: DefaultHelloInterval,
		name:     Hostname(),
		log:      log,
		peers:    make(map[string]*Peer),
	}
}

// NewListener returns a listen-only broadcaster: it collects peers but
// never announces itself.
func NewListener(addr string, log logger.Logger) *Broadcaster {
	return New(addr, "", log)
}

// Start runs the announce ticker and the read loop until ctx is done.
func (b *Broadcaster) Start(ctx context.Context) error {
	udpAddr, err := net.ResolveUDPAddr("udp4", b.addr)
	if err != nil {
		return err
	}

	conn, err := net.ListenUDP("udp4", udpAddr)
	if err != nil {
		return err
	}
	b.mu.Lock()
	b.conn = conn
	b.mu.Unlock()

	if b.announce != "" {
		file, err := conn.File()
		if err != nil {
			conn.Close()
			return err
		}
		err = setBroadcast(file.Fd())
		file.Close()
		if err != nil {
			conn.Close()
			return err
		}

		go b.announceLoop(ctx, udpAddr.Port)
	}

	go b.pruneLoop(ctx)

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	return b.readLoop(ctx)
}

// Addr reports the bound discovery address, nil before Start.
func (b *Broadcaster) Addr() net.Addr {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.conn == nil {
		return nil
	}
	return b.conn.LocalAddr()
}

// Peers snapshots the current peer list, sorted by name.
func (b *Broadcaster) Peers() []Peer {
	b.mu.Lock()
	defer b.mu.Unlock()

	peers := make([]Peer, 0, len(b.peers))
	for _, p := range b.peers {
		peers = append(peers, *p)
	}
	sort.Slice(peers, func(i, j int) bool { return peers[i].Name < peers[j].Name })
	return peers
}

func (b *Broadcaster) announceLoop(ctx context.Context, port int) {
	dst := &net.UDPAddr{IP: net.IPv4bcast, Port: port}

	hello := &Message{Type: TypeHello, Addr: b.announce, Name: b.name}
	encoded, err := hello.Encode()
	if err != nil {
		b.log.WithErr(err).Error("failed to encode hello")
		return
	}

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		if _, err := b.conn.WriteToUDP(encoded, dst); err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			b.log.WithErr(err).Warn("failed to write hello")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (b *Broadcaster) pruneLoop(ctx context.Context) {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.prune()
		}
	}
}

func (b *Broadcaster) readLoop(ctx context.Context) error {
	buf := make([]byte, 1024)

	for {
		n, remote, err := b.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			b.log.WithErr(err).Warn("discovery read error")
			continue
		}

		msg, err := ParseMessage(buf[:n])
		if err != nil {
			b.log.WithStr("from", remote.String()).WithErr(err).Debug("dropped datagram")
			continue
		}
		if msg.Name == b.name {
			continue
		}

		b.mu.Lock()
		if p, ok := b.peers[msg.Name]; ok {
			p.Addr = msg.Addr
			p.LastSeen = time.Now()
		} else {
			b.peers[msg.Name] = &Peer{Name: msg.Name, Addr: msg.Addr, LastSeen: time.Now()}
			b.log.WithStr("peer", msg.Name).WithStr("addr", msg.Addr).Info("peer discovered")
		}
		b.mu.Unlock()
	}
}

func (b *Broadcaster) prune() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for name, p := range b.peers {
		if time.Since(p.LastSeen) > b.interval+staleAfter {
			delete(b.peers, name)
			b.log.WithStr("peer", name).Info("peer expired")
		}
	}
}

// Hostname names this device in hello messages, with a uuid fallback so
// two anonymous hosts never collide.
func Hostname() string {
	hn, err := os.Hostname()
	if err != nil {
		return fmt.Sprintf("unknown-%s", uuid.NewString())
	}
	return hn
}
