// Package gateway is the per-process realtime delivery edge: it upgrades
// client sockets, gates them on a bearer credential, tracks their topic
// subscriptions, and fans bus payloads out to every subscribed socket.
package gateway

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"slotcal/internal/auth"
	appLog "slotcal/internal/log"
	"slotcal/internal/notify"
)

const (
	writeTimeout     = 10 * time.Second
	handshakeTimeout = 10 * time.Second
	pingInterval     = 30 * time.Second

	// resubscribeMax caps the backoff of the supervised subscribe loop.
	resubscribeMax = 30 * time.Second
)

// Gateway owns this process's socket sessions and its bus subscription.
type Gateway struct {
	verifier auth.Verifier
	sub      notify.Subscriber
	upgrader websocket.Upgrader

	mu       sync.RWMutex
	sessions map[string]*session
}

// New builds a gateway. The verifier gates new connections; the subscriber
// is the shared broadcast channel this process listens on.
func New(verifier auth.Verifier, sub notify.Subscriber) *Gateway {
	return &Gateway{
		verifier: verifier,
		sub:      sub,
		sessions: make(map[string]*session),
	}
}

// session is one authenticated socket connection.
type session struct {
	id     string
	userID int64
	wc     *websocket.Conn
	send   chan Frame

	mu     sync.Mutex
	subs   map[string]bool
	closed bool
}

// HandleWS upgrades the connection and runs its read loop. A connection is
// UNAUTHENTICATED until its first frame: a CONNECT carrying a valid bearer
// credential. Missing or invalid credentials close the connection with no
// response; there is no retry inside the gateway. Once AUTHENTICATED, all
// further frames pass without credential checks.
func (g *Gateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	wc, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		appLog.Warn("ws upgrade failed", "err", err)
		return
	}

	userID, err := g.awaitConnect(wc)
	if err != nil {
		appLog.Warn("ws connect rejected", "remote", wc.RemoteAddr().String(), "err", err)
		_ = wc.Close()
		return
	}

	s := &session{
		id:     uuid.New().String(),
		userID: userID,
		wc:     wc,
		send:   make(chan Frame, 32),
		subs:   make(map[string]bool),
	}

	g.register(s)
	s.send <- Frame{Command: CmdConnected}
	appLog.Info("ws session connected", "session", s.id, "user_id", userID)

	go s.writePump()
	g.readLoop(s)

	g.unregister(s)
	appLog.Info("ws session closed", "session", s.id, "user_id", userID)
}

// awaitConnect reads the first frame and validates the bearer credential.
func (g *Gateway) awaitConnect(wc *websocket.Conn) (int64, error) {
	_ = wc.SetReadDeadline(time.Now().Add(handshakeTimeout))
	defer wc.SetReadDeadline(time.Time{})

	var f Frame
	if err := wc.ReadJSON(&f); err != nil {
		return 0, err
	}
	if f.Command != CmdConnect {
		return 0, errFirstFrame
	}

	token := auth.FromBearer(f.Headers[authorizationHeader])
	if token == "" {
		return 0, auth.ErrInvalidToken
	}
	return g.verifier.Verify(token)
}

var errFirstFrame = firstFrameError{}

type firstFrameError struct{}

func (firstFrameError) Error() string { return "first frame must be CONNECT" }

// readLoop consumes frames from an authenticated session until it
// disconnects.
func (g *Gateway) readLoop(s *session) {
	for {
		var f Frame
		if err := s.wc.ReadJSON(&f); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				appLog.Debug("ws read ended", "session", s.id, "err", err)
			}
			return
		}

		switch f.Command {
		case CmdSubscribe:
			if f.Destination == "" {
				s.trySend(Frame{Command: CmdError, Message: "subscribe requires a destination"})
				continue
			}
			s.mu.Lock()
			s.subs[f.Destination] = true
			s.mu.Unlock()
		case CmdUnsubscribe:
			s.mu.Lock()
			delete(s.subs, f.Destination)
			s.mu.Unlock()
		case CmdDisconnect:
			return
		default:
			// Unknown frames pass unchecked once authenticated.
		}
	}
}

// Listen runs the per-process bus subscriber loop until ctx is canceled.
// The subscription itself is wrapped in a supervised retry: when the channel
// drops, Listen backs off and resubscribes rather than dying.
func (g *Gateway) Listen(ctx context.Context) error {
	backoff := time.Second
	for {
		ch, err := g.sub.Subscribe(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			appLog.Warn("bus subscribe failed; retrying", "backoff", backoff.String(), "err", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			if backoff *= 2; backoff > resubscribeMax {
				backoff = resubscribeMax
			}
			continue
		}

		backoff = time.Second
		for payload := range ch {
			g.route(payload)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		appLog.Warn("bus subscription dropped; resubscribing")
	}
}

// route parses one bus payload, infers its variant, and re-publishes it to
// the matching subscription topic. Malformed payloads are logged and
// dropped: no retry, no dead-letter.
func (g *Gateway) route(payload []byte) {
	msg, err := notify.Decode(payload)
	if err != nil {
		appLog.Warn("dropping undecodable sync payload", "err", err)
		return
	}
	g.deliver(msg.Destination(), payload)
}

// deliver fans one payload out to every session subscribed to the exact
// destination string.
func (g *Gateway) deliver(destination string, payload []byte) {
	g.mu.RLock()
	targets := make([]*session, 0, len(g.sessions))
	for _, s := range g.sessions {
		targets = append(targets, s)
	}
	g.mu.RUnlock()

	frame := Frame{Command: CmdMessage, Destination: destination, Body: payload}
	for _, s := range targets {
		s.mu.Lock()
		subscribed := s.subs[destination]
		s.mu.Unlock()
		if subscribed {
			s.trySend(frame)
		}
	}
}

// SessionCount reports the number of connected sessions (for tests and
// health reporting).
func (g *Gateway) SessionCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.sessions)
}

func (g *Gateway) register(s *session) {
	g.mu.Lock()
	g.sessions[s.id] = s
	g.mu.Unlock()
}

func (g *Gateway) unregister(s *session) {
	g.mu.Lock()
	delete(g.sessions, s.id)
	g.mu.Unlock()

	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.send)
	}
	s.mu.Unlock()
}

// trySend queues a frame without blocking; a session that cannot keep up
// loses frames, matching the bus's no-ack fan-out semantics.
func (s *session) trySend(f Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.send <- f:
	default:
		appLog.Warn("ws session send buffer full; dropping frame", "session", s.id, "destination", f.Destination)
	}
}

// writePump serializes all writes for one session and keeps the connection
// alive with pings.
func (s *session) writePump() {
	t := time.NewTicker(pingInterval)
	defer t.Stop()
	defer s.wc.Close()

	for {
		select {
		case f, ok := <-s.send:
			if !ok {
				_ = s.wc.SetWriteDeadline(time.Now().Add(writeTimeout))
				_ = s.wc.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			_ = s.wc.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.wc.WriteJSON(f); err != nil {
				return
			}
		case <-t.C:
			_ = s.wc.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.wc.WriteMessage(websocket.PingMessage, []byte{}); err != nil {
				return
			}
		}
	}
}
