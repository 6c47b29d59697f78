// Package ws implements the network link over persistent websocket
// connections. A node dials the private peer endpoint of another node and
// identifies itself with the host query parameter. Either side can then
// send on the connection.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/ardanlabs/ledger/foundation/blockchain/network"
	"github.com/ardanlabs/ledger/foundation/blockchain/peer"
	"github.com/gorilla/websocket"
)

// DefaultPath is the route the private mux serves the peer endpoint on.
const DefaultPath = "/v1/node/peer"

const (
	inboxBuffer  = 100
	writeTimeout = 10 * time.Second
)

// EventHandler defines a function that is called when events
// occur in the processing of connections.
type EventHandler func(v string, args ...any)

// Config represents the configuration required to construct a link.
type Config struct {
	Self             peer.Peer
	Peers            *peer.Set
	Path             string
	HandshakeTimeout time.Duration
	EvHandler        EventHandler
}

// Link maintains one websocket connection per peer.
type Link struct {
	self      peer.Peer
	peers     *peer.Set
	path      string
	dialer    websocket.Dialer
	upgrader  websocket.Upgrader
	evHandler EventHandler

	mu    sync.Mutex
	conns map[peer.Peer]*conn

	inbox chan network.Envelope
	done  chan struct{}
	once  sync.Once
	wg    sync.WaitGroup
}

// conn serializes writes on a websocket connection. Gorilla supports one
// concurrent reader and one concurrent writer.
type conn struct {
	ws  *websocket.Conn
	wmu sync.Mutex
}

func (c *conn) write(ctx context.Context, msg network.Message) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(writeTimeout)
	}
	c.ws.SetWriteDeadline(deadline)

	return c.ws.WriteJSON(msg)
}

// New constructs a link for the node.
func New(cfg Config) *Link {
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	path := cfg.Path
	if path == "" {
		path = DefaultPath
	}

	peers := cfg.Peers
	if peers == nil {
		peers = peer.NewSet()
	}

	handshake := cfg.HandshakeTimeout
	if handshake == 0 {
		handshake = 5 * time.Second
	}

	return &Link{
		self:      cfg.Self,
		peers:     peers,
		path:      path,
		dialer:    websocket.Dialer{HandshakeTimeout: handshake},
		upgrader:  websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		evHandler: ev,
		conns:     make(map[peer.Peer]*conn),
		inbox:     make(chan network.Envelope, inboxBuffer),
		done:      make(chan struct{}),
	}
}

// Self returns the peer this link belongs to.
func (l *Link) Self() peer.Peer {
	return l.self
}

// Send writes the message to the peer, dialing the peer when no connection
// exists. A failed write on an existing connection is retried once on a new
// connection.
func (l *Link) Send(ctx context.Context, to peer.Peer, msg network.Message) error {
	select {
	case <-l.done:
		return network.ErrClosed
	default:
	}

	for attempt := 0; attempt < 2; attempt++ {
		c, err := l.connection(ctx, to)
		if err != nil {
			return err
		}

		if err := c.write(ctx, msg); err != nil {
			l.evHandler("ws: Send: peer[%s]: write: %s", to, err)
			l.drop(to, c)
			continue
		}

		return nil
	}

	return fmt.Errorf("send to %s: connection lost", to)
}

// Broadcast sends the message to every known peer except self. Failures to
// reach a peer do not stop the broadcast, the last error is returned.
func (l *Link) Broadcast(ctx context.Context, msg network.Message) error {
	var lastErr error
	for _, p := range l.peers.Copy(l.self.Host) {
		if err := l.Send(ctx, p, msg); err != nil {
			l.evHandler("ws: Broadcast: WARNING: peer[%s]: %s", p, err)
			lastErr = err
		}
	}

	return lastErr
}

// Receive returns the channel inbound messages are delivered on.
func (l *Link) Receive() <-chan network.Envelope {
	return l.inbox
}

// Close closes every connection and waits for the readers of the dialed
// connections to finish.
func (l *Link) Close() error {
	l.once.Do(func() {
		close(l.done)

		l.mu.Lock()
		for p, c := range l.conns {
			c.ws.Close()
			delete(l.conns, p)
		}
		l.mu.Unlock()
	})

	l.wg.Wait()
	return nil
}

// Accept upgrades an inbound request from a peer and reads from the
// connection until it is closed. The dialing node is identified by the host
// query parameter and added to the known peers.
func (l *Link) Accept(w http.ResponseWriter, r *http.Request) error {
	host := r.URL.Query().Get("host")
	if host == "" {
		return errors.New("host query parameter missing")
	}

	ws, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("upgrade: %w", err)
	}

	from := peer.New(host)
	c := &conn{ws: ws}

	// When both nodes dial at the same time the first connection is kept
	// for writing. Both are still read from.
	l.mu.Lock()
	if _, exists := l.conns[from]; !exists {
		l.conns[from] = c
	}
	l.mu.Unlock()

	if l.peers.Add(from) {
		l.evHandler("ws: Accept: new peer[%s]", from)
	}

	l.read(from, c)

	return nil
}

// =============================================================================

// connection returns the connection to the peer, dialing when required.
func (l *Link) connection(ctx context.Context, to peer.Peer) (*conn, error) {
	l.mu.Lock()
	c, exists := l.conns[to]
	l.mu.Unlock()

	if exists {
		return c, nil
	}

	u := url.URL{
		Scheme:   "ws",
		Host:     to.Host,
		Path:     l.path,
		RawQuery: url.Values{"host": {l.self.Host}}.Encode(),
	}

	ws, _, err := l.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", to, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	select {
	case <-l.done:
		ws.Close()
		return nil, network.ErrClosed
	default:
	}

	if existing, exists := l.conns[to]; exists {
		ws.Close()
		return existing, nil
	}

	c = &conn{ws: ws}
	l.conns[to] = c

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.read(to, c)
	}()

	l.evHandler("ws: connection: dialed peer[%s]", to)

	return c, nil
}

// read delivers inbound messages until the connection fails or the link is
// closed.
func (l *Link) read(from peer.Peer, c *conn) {
	defer l.drop(from, c)

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			select {
			case <-l.done:
			default:
				l.evHandler("ws: read: peer[%s]: %s", from, err)
			}
			return
		}

		// A malformed message is dropped, the connection stays up.
		var msg network.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			l.evHandler("ws: read: WARNING: peer[%s]: malformed message: %s", from, err)
			continue
		}

		select {
		case l.inbox <- network.Envelope{From: from, Message: msg}:
		case <-l.done:
			return
		}
	}
}

// drop closes the connection and forgets it if it is still the registered
// connection for the peer.
func (l *Link) drop(p peer.Peer, c *conn) {
	c.ws.Close()

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.conns[p] == c {
		delete(l.conns, p)
	}
}
