package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"slotcal/internal/auth"
	"slotcal/internal/notify"
)

func newTestGateway(t *testing.T) (*Gateway, *auth.TokenService, *notify.MemoryBus) {
	t.Helper()
	tokens, err := auth.NewTokenService("gw-test-secret", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	bus := notify.NewMemoryBus()
	return New(tokens, bus), tokens, bus
}

func dialTestServer(t *testing.T, gw *Gateway) (*websocket.Conn, func()) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(gw.HandleWS))
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	wc, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		srv.Close()
		t.Fatalf("dial: %v", err)
	}
	return wc, func() {
		wc.Close()
		srv.Close()
	}
}

func readFrame(t *testing.T, wc *websocket.Conn) (Frame, error) {
	t.Helper()
	_ = wc.SetReadDeadline(time.Now().Add(2 * time.Second))
	var f Frame
	err := wc.ReadJSON(&f)
	return f, err
}

func connectFrame(token string) Frame {
	f := Frame{Command: CmdConnect}
	if token != "" {
		f.Headers = map[string]string{"Authorization": "Bearer " + token}
	}
	return f
}

func TestConnectWithoutCredentialIsRejected(t *testing.T) {
	gw, _, _ := newTestGateway(t)
	wc, done := dialTestServer(t, gw)
	defer done()

	if err := wc.WriteJSON(connectFrame("")); err != nil {
		t.Fatalf("write CONNECT: %v", err)
	}

	// The server closes the connection with no response frame.
	if f, err := readFrame(t, wc); err == nil {
		t.Errorf("expected closed connection, got frame %+v", f)
	}
	if gw.SessionCount() != 0 {
		t.Errorf("sessions = %d, want 0", gw.SessionCount())
	}
}

func TestConnectWithInvalidTokenIsRejected(t *testing.T) {
	gw, _, _ := newTestGateway(t)
	wc, done := dialTestServer(t, gw)
	defer done()

	if err := wc.WriteJSON(connectFrame("v1.1.999.bogus")); err != nil {
		t.Fatalf("write CONNECT: %v", err)
	}

	if f, err := readFrame(t, wc); err == nil {
		t.Errorf("expected closed connection, got frame %+v", f)
	}
}

func TestConnectRequiresConnectFirst(t *testing.T) {
	gw, tokens, _ := newTestGateway(t)
	wc, done := dialTestServer(t, gw)
	defer done()

	// A SUBSCRIBE before CONNECT must be rejected even with a valid token
	// available.
	_ = tokens.Mint(9)
	sub := Frame{Command: CmdSubscribe, Destination: "/sub/groups/1/date/month?year=2025&month=6"}
	if err := wc.WriteJSON(sub); err != nil {
		t.Fatalf("write SUBSCRIBE: %v", err)
	}

	if f, err := readFrame(t, wc); err == nil {
		t.Errorf("expected closed connection, got frame %+v", f)
	}
}

func TestConnectSubscribeDeliver(t *testing.T) {
	gw, tokens, bus := newTestGateway(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go gw.Listen(ctx)

	wc, done := dialTestServer(t, gw)
	defer done()

	if err := wc.WriteJSON(connectFrame(tokens.Mint(9))); err != nil {
		t.Fatalf("write CONNECT: %v", err)
	}

	f, err := readFrame(t, wc)
	if err != nil {
		t.Fatalf("read CONNECTED: %v", err)
	}
	if f.Command != CmdConnected {
		t.Fatalf("first server frame = %q, want CONNECTED", f.Command)
	}

	dest := "/sub/groups/42/date/month?year=2025&month=6"
	if err := wc.WriteJSON(Frame{Command: CmdSubscribe, Destination: dest}); err != nil {
		t.Fatalf("write SUBSCRIBE: %v", err)
	}

	// There is no subscribe ack, so publish until the frame arrives.
	payload := []byte(`{"groupId":42,"year":2025,"month":6}`)
	deadline := time.Now().Add(3 * time.Second)
	got := make(chan Frame, 1)
	go func() {
		for {
			var mf Frame
			_ = wc.SetReadDeadline(deadline)
			if err := wc.ReadJSON(&mf); err != nil {
				return
			}
			if mf.Command == CmdMessage {
				got <- mf
				return
			}
		}
	}()

	for time.Now().Before(deadline) {
		_ = bus.Publish(ctx, payload)
		select {
		case mf := <-got:
			if mf.Destination != dest {
				t.Errorf("destination = %q, want %q", mf.Destination, dest)
			}
			if string(mf.Body) != string(payload) {
				t.Errorf("body = %s, want %s", mf.Body, payload)
			}
			return
		case <-time.After(50 * time.Millisecond):
		}
	}
	t.Fatal("no MESSAGE frame delivered to subscriber")
}

func TestDeliverMatchesExactDestination(t *testing.T) {
	gw, tokens, _ := newTestGateway(t)

	wc, done := dialTestServer(t, gw)
	defer done()

	if err := wc.WriteJSON(connectFrame(tokens.Mint(9))); err != nil {
		t.Fatalf("write CONNECT: %v", err)
	}
	if f, err := readFrame(t, wc); err != nil || f.Command != CmdConnected {
		t.Fatalf("CONNECTED handshake failed: %v %+v", err, f)
	}

	if err := wc.WriteJSON(Frame{Command: CmdSubscribe, Destination: "/sub/groups/42/slots/7"}); err != nil {
		t.Fatalf("write SUBSCRIBE: %v", err)
	}

	// Give the read loop a moment to register the subscription, then route
	// a payload for a different topic.
	time.Sleep(100 * time.Millisecond)
	gw.route([]byte(`{"groupId":42,"year":2025,"month":6}`))

	_ = wc.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	var f Frame
	if err := wc.ReadJSON(&f); err == nil && f.Command == CmdMessage {
		t.Errorf("received MESSAGE for unsubscribed topic %q", f.Destination)
	}
}

func TestRoutePriorityDetailOverDay(t *testing.T) {
	gw, tokens, _ := newTestGateway(t)

	wc, done := dialTestServer(t, gw)
	defer done()

	if err := wc.WriteJSON(connectFrame(tokens.Mint(9))); err != nil {
		t.Fatalf("write CONNECT: %v", err)
	}
	if f, err := readFrame(t, wc); err != nil || f.Command != CmdConnected {
		t.Fatalf("CONNECTED handshake failed: %v %+v", err, f)
	}

	// Subscribed to the detail topic only; a payload that carries both
	// slotId and date fields must route as a detail sync.
	if err := wc.WriteJSON(Frame{Command: CmdSubscribe, Destination: "/sub/groups/42/slots/7"}); err != nil {
		t.Fatalf("write SUBSCRIBE: %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	gw.route([]byte(`{"groupId":42,"slotId":7,"year":2025,"month":6,"day":5}`))

	f, err := readFrame(t, wc)
	if err != nil {
		t.Fatalf("no frame delivered: %v", err)
	}
	if f.Command != CmdMessage || f.Destination != "/sub/groups/42/slots/7" {
		t.Errorf("frame = %+v, want MESSAGE on the detail topic", f)
	}
}

func TestRouteDropsMalformedPayloads(t *testing.T) {
	gw, _, _ := newTestGateway(t)

	// Must not panic or deliver anything; the payload is logged and dropped.
	gw.route([]byte(`{{{`))
	gw.route([]byte(`{"slotId":7}`))
	gw.route([]byte(`{"year":2025,"month":6}`))
}
