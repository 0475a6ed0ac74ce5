package discovery

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/kahva/goferry/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() logger.Logger {
	log := logger.New()
	log.InitWriter(io.Discard)
	return log
}

func TestParseMessage(t *testing.T) {
	tests := []struct {
		name string
		data string
		ok   bool
	}{
		{name: "valid hello", data: `{"type":"hello","addr":"192.168.1.5:5001","name":"laptop"}`, ok: true},
		{name: "not json", data: `hello there`, ok: false},
		{name: "unknown type", data: `{"type":"goodbye","addr":"a:1","name":"x"}`, ok: false},
		{name: "missing name", data: `{"type":"hello","addr":"a:1"}`, ok: false},
		{name: "missing addr", data: `{"type":"hello","name":"x"}`, ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := ParseMessage([]byte(tt.data))
			if !tt.ok {
				assert.ErrorIs(t, err, ErrMalformedMessage)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, TypeHello, msg.Type)
			assert.NotEmpty(t, msg.Name)
			assert.NotEmpty(t, msg.Addr)
		})
	}
}

func TestMessageRoundTrip(t *testing.T) {
	msg := &Message{Type: TypeHello, Addr: "10.0.0.7:5001", Name: "desktop"}

	encoded, err := msg.Encode()
	require.NoError(t, err)

	decoded, err := ParseMessage(encoded)
	require.NoError(t, err)
	assert.Equal(t, msg, decoded)
}

func TestHostname(t *testing.T) {
	assert.NotEmpty(t, Hostname())
}

func TestPrune(t *testing.T) {
	b := NewListener(":0", testLogger())

	b.mu.Lock()
	b.peers["fresh"] = &Peer{Name: "fresh", Addr: "a:1", LastSeen: time.Now()}
	b.peers["stale"] = &Peer{Name: "stale", Addr: "b:1", LastSeen: time.Now().Add(-time.Minute)}
	b.mu.Unlock()

	b.prune()

	peers := b.Peers()
	require.Len(t, peers, 1)
	assert.Equal(t, "fresh", peers[0].Name)
}

func TestListenerCollectsPeers(t *testing.T) {
	b := NewListener("127.0.0.1:0", testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- b.Start(ctx)
	}()

	require.Eventually(t, func() bool { return b.Addr() != nil }, 2*time.Second, 10*time.Millisecond)

	conn, err := net.Dial("udp4", b.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	send := func(msg *Message) {
		encoded, err := msg.Encode()
		require.NoError(t, err)
		_, err = conn.Write(encoded)
		require.NoError(t, err)
	}

	send(&Message{Type: TypeHello, Addr: "192.168.1.5:5001", Name: "laptop"})
	require.Eventually(t, func() bool { return len(b.Peers()) == 1 }, 2*time.Second, 10*time.Millisecond)

	// A repeated hello updates the peer in place.
	send(&Message{Type: TypeHello, Addr: "192.168.1.9:5001", Name: "laptop"})
	require.Eventually(t, func() bool {
		peers := b.Peers()
		return len(peers) == 1 && peers[0].Addr == "192.168.1.9:5001"
	}, 2*time.Second, 10*time.Millisecond)

	// Our own hello is ignored.
	send(&Message{Type: TypeHello, Addr: "127.0.0.1:5001", Name: Hostname()})
	// Garbage is dropped without disturbing the list.
	_, err = conn.Write([]byte("not a hello"))
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	assert.Len(t, b.Peers(), 1)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("broadcaster did not stop")
	}
}
