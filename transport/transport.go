// Package transport carries peerprotocol messages over plain TCP
// connections. It plays the role netadapter/grpcserver plays in the
// teacher repo — accept a connection, hand it a per-connection loop, drop
// it from the live set when the loop ends — but speaks peerprotocol's own
// length-prefixed binary frames instead of grpc+protobuf, since the wire
// format this node uses is peerprotocol.EncodeMessage, not a .proto schema.
package transport

import (
	"encoding/binary"
	"io"
	"net"
	"sync"

	"github.com/opensyria/pownode/chaincfg"
	"github.com/opensyria/pownode/logger"
	"github.com/opensyria/pownode/peerprotocol"
	"github.com/pkg/errors"
)

var log, _ = logger.Get(logger.SubsystemTags.PEER)

// Dispatcher handles one inbound frame (the encoded message, length prefix
// removed) and optionally produces a reply to send back to the same peer.
// It is satisfied by peerprotocol.Handler.HandleRaw.
type Dispatcher func(peerID string, raw []byte) (peerprotocol.Message, error)

// Conn wraps one peer connection: the net.Conn plus a write mutex, since
// Send is called both from the accept loop (replies) and from gossip
// broadcasts running on other goroutines.
type Conn struct {
	ID   string
	conn net.Conn
	mu   sync.Mutex
}

// Send frames and writes msg to the peer. Safe for concurrent use.
func (c *Conn) Send(msg peerprotocol.Message) error {
	raw, err := peerprotocol.EncodeMessage(msg)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(raw)))
	if _, err := c.conn.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err = c.conn.Write(raw)
	return err
}

func (c *Conn) Close() error { return c.conn.Close() }

// Server accepts inbound peer connections and dials outbound ones,
// reading length-prefixed peerprotocol frames off each and handing them to
// a Dispatcher. It tracks live connections so Broadcast can reach all of
// them, mirroring netadapter's connectionIDs bookkeeping without the
// grpc/router machinery that bookkeeping exists to support there.
type Server struct {
	dispatch Dispatcher

	mu    sync.Mutex
	conns map[string]*Conn

	listener net.Listener
}

// NewServer constructs a Server. dispatch may be nil at construction time
// and filled in later with SetDispatcher — the peerprotocol.Handler that
// supplies it typically needs the Server itself as its Broadcaster first.
func NewServer(dispatch Dispatcher) *Server {
	return &Server{
		dispatch: dispatch,
		conns:    make(map[string]*Conn),
	}
}

// SetDispatcher assigns the handler called for every decoded frame. Must
// be called before Serve/Dial start delivering connections.
func (s *Server) SetDispatcher(dispatch Dispatcher) {
	s.dispatch = dispatch
}

// Listen starts accepting inbound connections on addr. It returns once the
// listener is bound; Serve runs the accept loop.
func (s *Server) Listen(addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrap(err, "failed to listen for peer connections")
	}
	s.listener = l
	return nil
}

// Serve runs the accept loop until the listener is closed.
func (s *Server) Serve() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return err
		}
		go s.handleConn(conn.RemoteAddr().String(), conn)
	}
}

// Close stops accepting new connections and closes every live one.
func (s *Server) Close() error {
	if s.listener != nil {
		s.listener.Close()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.conns {
		c.Close()
	}
	return nil
}

// Dial opens an outbound connection to addr and begins reading from it
// alongside the inbound connections.
func (s *Server) Dial(addr string) error {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return errors.Wrap(err, "failed to dial peer")
	}
	go s.handleConn(addr, conn)
	return nil
}

// Broadcast sends msg to every live peer except excludePeerID, satisfying
// peerprotocol.Broadcaster. A peer whose send fails is dropped; its read
// loop will notice the closed connection and unregister it.
func (s *Server) Broadcast(msg peerprotocol.Message, excludePeerID string) {
	s.mu.Lock()
	targets := make([]*Conn, 0, len(s.conns))
	for id, c := range s.conns {
		if id == excludePeerID {
			continue
		}
		targets = append(targets, c)
	}
	s.mu.Unlock()

	for _, c := range targets {
		if err := c.Send(msg); err != nil {
			log.Debugf("broadcast to %s failed: %s", c.ID, err)
			c.Close()
		}
	}
}

func (s *Server) handleConn(peerID string, netConn net.Conn) {
	c := &Conn{ID: peerID, conn: netConn}
	s.mu.Lock()
	s.conns[peerID] = c
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.conns, peerID)
		s.mu.Unlock()
		netConn.Close()
	}()

	for {
		raw, err := readFrame(netConn)
		if err != nil {
			if err != io.EOF {
				log.Debugf("peer %s read error: %s", peerID, err)
			}
			return
		}
		reply, err := s.dispatch(peerID, raw)
		if err != nil {
			log.Debugf("peer %s message rejected: %s", peerID, err)
			continue
		}
		if reply != nil {
			if err := c.Send(reply); err != nil {
				log.Debugf("peer %s reply send failed: %s", peerID, err)
				return
			}
		}
	}
}

func readFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	frameLen := binary.LittleEndian.Uint32(lenBuf[:])
	if frameLen > chaincfg.MaxWireBytes {
		return nil, errors.New("frame exceeds MaxWireBytes")
	}
	buf := make([]byte, frameLen)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
