package transport

import (
	"sync"
	"testing"
	"time"

	"github.com/opensyria/pownode/peerprotocol"
)

// waitFor polls cond until it reports true or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}

func newEchoServer(t *testing.T) *Server {
	t.Helper()
	srv := NewServer(nil)
	srv.SetDispatcher(func(peerID string, raw []byte) (peerprotocol.Message, error) {
		msg, err := peerprotocol.DecodeMessage(raw)
		if err != nil {
			return nil, err
		}
		if _, ok := msg.(*peerprotocol.GetTip); ok {
			return &peerprotocol.Tip{Height: 7}, nil
		}
		return nil, nil
	})
	if err := srv.Listen("127.0.0.1:0"); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	go srv.Serve()
	t.Cleanup(func() { srv.Close() })
	return srv
}

func TestServerRepliesToClient(t *testing.T) {
	srv := newEchoServer(t)
	addr := srv.listener.Addr().String()

	var replyMu sync.Mutex
	var reply *peerprotocol.Tip
	client := NewServer(func(peerID string, raw []byte) (peerprotocol.Message, error) {
		msg, err := peerprotocol.DecodeMessage(raw)
		if err != nil {
			return nil, err
		}
		if tip, ok := msg.(*peerprotocol.Tip); ok {
			replyMu.Lock()
			reply = tip
			replyMu.Unlock()
		}
		return nil, nil
	})
	if err := client.Dial(addr); err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	waitFor(t, func() bool {
		client.mu.Lock()
		defer client.mu.Unlock()
		return len(client.conns) == 1
	})

	var conn *Conn
	client.mu.Lock()
	for _, c := range client.conns {
		conn = c
	}
	client.mu.Unlock()

	if err := conn.Send(&peerprotocol.GetTip{}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	waitFor(t, func() bool {
		srv.mu.Lock()
		defer srv.mu.Unlock()
		return len(srv.conns) == 1
	})

	waitFor(t, func() bool {
		replyMu.Lock()
		defer replyMu.Unlock()
		return reply != nil
	})
	replyMu.Lock()
	defer replyMu.Unlock()
	if reply.Height != 7 {
		t.Fatalf("reply Tip.Height = %d, want 7", reply.Height)
	}
}

func TestBroadcastSkipsExcludedPeer(t *testing.T) {
	srv := newEchoServer(t)
	addr := srv.listener.Addr().String()

	var receivedMu sync.Mutex
	received := make(map[string]int)
	recorder := func(name string) Dispatcher {
		return func(peerID string, raw []byte) (peerprotocol.Message, error) {
			receivedMu.Lock()
			received[name]++
			receivedMu.Unlock()
			return nil, nil
		}
	}

	one := NewServer(recorder("one"))
	if err := one.Dial(addr); err != nil {
		t.Fatalf("Dial(one): %v", err)
	}
	t.Cleanup(func() { one.Close() })
	two := NewServer(recorder("two"))
	if err := two.Dial(addr); err != nil {
		t.Fatalf("Dial(two): %v", err)
	}
	t.Cleanup(func() { two.Close() })

	waitFor(t, func() bool {
		srv.mu.Lock()
		defer srv.mu.Unlock()
		return len(srv.conns) == 2
	})

	srv.mu.Lock()
	var peerIDs []string
	for id := range srv.conns {
		peerIDs = append(peerIDs, id)
	}
	srv.mu.Unlock()

	// The server keys each connection by the remote address, which is the
	// client's local address; use it to find the client behind peerIDs[0].
	localAddr := func(s *Server) string {
		s.mu.Lock()
		defer s.mu.Unlock()
		for _, c := range s.conns {
			return c.conn.LocalAddr().String()
		}
		return ""
	}
	waitFor(t, func() bool { return localAddr(one) != "" && localAddr(two) != "" })
	var excluded, other string
	switch peerIDs[0] {
	case localAddr(one):
		excluded, other = "one", "two"
	case localAddr(two):
		excluded, other = "two", "one"
	default:
		t.Fatalf("peer %s matches neither client", peerIDs[0])
	}

	srv.Broadcast(&peerprotocol.Tip{Height: 1}, peerIDs[0])

	waitFor(t, func() bool {
		receivedMu.Lock()
		defer receivedMu.Unlock()
		return received[other] == 1
	})
	receivedMu.Lock()
	got := received[excluded]
	receivedMu.Unlock()
	if got != 0 {
		t.Fatalf("excluded peer received %d broadcast frames, want 0", got)
	}

	// Broadcast to live peers leaves every connection open.
	srv.mu.Lock()
	count := len(srv.conns)
	srv.mu.Unlock()
	if count != 2 {
		t.Fatalf("server conns = %d after Broadcast, want 2 (Broadcast must not close connections)", count)
	}
}
