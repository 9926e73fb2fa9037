package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/concord-im/concord/internal/proto"
)

func dialGateway(t *testing.T, ctx context.Context, ts *testServer) *websocket.Conn {
	t.Helper()

	wsURL := strings.Replace(ts.URL, "http", "ws", 1) + "/gateway"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial gateway: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "done") })
	return conn
}

// readEvent reads one frame and returns its variant name and payload.
func readEvent(t *testing.T, ctx context.Context, conn *websocket.Conn) (string, json.RawMessage) {
	t.Helper()

	msgType, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read gateway frame: %v", err)
	}
	if msgType != websocket.MessageText {
		t.Fatalf("unexpected frame type %v", msgType)
	}

	var decoded map[string]json.RawMessage
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("decode frame %s: %v", data, err)
	}
	if len(decoded) != 1 {
		t.Fatalf("frame does not carry exactly one variant: %s", data)
	}
	for name, payload := range decoded {
		return name, payload
	}
	return "", nil
}

func sendHandshake(t *testing.T, ctx context.Context, conn *websocket.Conn, token string) {
	t.Helper()

	frame, err := json.Marshal(map[string]proto.Handshake{"Handshake": {Token: token}})
	if err != nil {
		t.Fatalf("marshal handshake: %v", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, frame); err != nil {
		t.Fatalf("write handshake: %v", err)
	}
}

func TestGatewayHandshakeFlow(t *testing.T) {
	ts := startTestServer(t)
	token, userID := ts.registerUser(t, "alice", "secret1")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialGateway(t, ctx, ts)

	name, _ := readEvent(t, ctx, conn)
	if name != proto.EventHandshakeStart {
		t.Fatalf("first frame = %s, want %s", name, proto.EventHandshakeStart)
	}

	sendHandshake(t, ctx, conn, token)

	name, payload := readEvent(t, ctx, conn)
	if name != proto.EventHandshakeComplete {
		t.Fatalf("frame = %s, want %s", name, proto.EventHandshakeComplete)
	}
	var complete struct {
		User proto.User `json:"user"`
	}
	if err := json.Unmarshal(payload, &complete); err != nil {
		t.Fatalf("decode complete payload: %v", err)
	}
	if complete.User.ID != userID || complete.User.Username != "alice" {
		t.Fatalf("unexpected handshake user: %+v", complete.User)
	}

	waitFor(t, func() bool { return ts.registry.HasSessions(userID) })
	waitFor(t, func() bool {
		user, err := ts.store.GetUser(context.Background(), userID)
		return err == nil && user.GatewayConnected
	})
}

func TestGatewayDeliversMessages(t *testing.T) {
	ts := startTestServer(t)
	aliceToken, aliceID := ts.registerUser(t, "alice", "secret1")
	bobToken, bobID := ts.registerUser(t, "bob", "secret1")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialGateway(t, ctx, ts)
	readEvent(t, ctx, conn) // HandshakeStart
	sendHandshake(t, ctx, conn, bobToken)
	readEvent(t, ctx, conn) // HandshakeComplete
	waitFor(t, func() bool { return ts.registry.HasSessions(bobID) })

	var channel proto.ChannelResponse
	if status := ts.postJSON(t, "/api/channels", aliceToken, CreateChannelRequest{
		Name:     "dm",
		Location: proto.ChannelLocation{Kind: proto.ChannelLocationDM, Members: []string{bobID}},
	}, &channel); status != http.StatusCreated {
		t.Fatalf("create channel status %d", status)
	}

	name, payload := readEvent(t, ctx, conn)
	if name != proto.EventChannelCreate {
		t.Fatalf("frame = %s, want %s", name, proto.EventChannelCreate)
	}

	if status := ts.postJSON(t, "/api/messages", aliceToken, CreateMessageRequest{
		ChannelID: channel.Channel.ID,
		Content:   "hello bob",
	}, nil); status != http.StatusCreated {
		t.Fatalf("create message status %d", status)
	}

	name, payload = readEvent(t, ctx, conn)
	if name != proto.EventMessageCreate {
		t.Fatalf("frame = %s, want %s", name, proto.EventMessageCreate)
	}
	var msg proto.MessageResponse
	if err := json.Unmarshal(payload, &msg); err != nil {
		t.Fatalf("decode message payload: %v", err)
	}
	if msg.Message.Content != "hello bob" || msg.Author == nil || msg.Author.ID != aliceID {
		t.Fatalf("unexpected message payload: %+v", msg)
	}
	if msg.Channel.ID != channel.Channel.ID {
		t.Fatalf("payload channel %s, want %s", msg.Channel.ID, channel.Channel.ID)
	}
}

func TestGatewayEagerHandshakeStillSeesStartFirst(t *testing.T) {
	ts := startTestServer(t)
	token, _ := ts.registerUser(t, "alice", "secret1")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Send the handshake immediately, without waiting for any frame; the
	// handshake-started frame must still arrive ahead of the reply.
	conn := dialGateway(t, ctx, ts)
	sendHandshake(t, ctx, conn, token)

	name, _ := readEvent(t, ctx, conn)
	if name != proto.EventHandshakeStart {
		t.Fatalf("first frame = %s, want %s", name, proto.EventHandshakeStart)
	}
	name, _ = readEvent(t, ctx, conn)
	if name != proto.EventHandshakeComplete {
		t.Fatalf("second frame = %s, want %s", name, proto.EventHandshakeComplete)
	}
}

func TestGatewayBinaryFrameEndsConnection(t *testing.T) {
	ts := startTestServer(t)
	token, userID := ts.registerUser(t, "alice", "secret1")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialGateway(t, ctx, ts)
	readEvent(t, ctx, conn) // HandshakeStart
	sendHandshake(t, ctx, conn, token)
	readEvent(t, ctx, conn) // HandshakeComplete
	waitFor(t, func() bool { return ts.registry.HasSessions(userID) })

	// Binary frames are not part of the protocol; the server tears the
	// connection down.
	if err := conn.Write(ctx, websocket.MessageBinary, []byte{0x01, 0x02}); err != nil {
		t.Fatalf("write binary: %v", err)
	}

	waitFor(t, func() bool { return !ts.registry.HasSessions(userID) })
	if _, _, err := conn.Read(ctx); err == nil {
		t.Fatal("expected the connection to be closed")
	}
}

func TestGatewayInvalidTokenIsSilent(t *testing.T) {
	ts := startTestServer(t)
	token, userID := ts.registerUser(t, "alice", "secret1")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialGateway(t, ctx, ts)
	readEvent(t, ctx, conn) // HandshakeStart

	// Neither garbage frames nor bad tokens elicit a reply or end the
	// connection.
	if err := conn.Write(ctx, websocket.MessageText, []byte("not json at all")); err != nil {
		t.Fatalf("write garbage: %v", err)
	}
	sendHandshake(t, ctx, conn, "bogus-token")

	sendHandshake(t, ctx, conn, token)
	name, _ := readEvent(t, ctx, conn)
	if name != proto.EventHandshakeComplete {
		t.Fatalf("frame = %s, want %s", name, proto.EventHandshakeComplete)
	}
	waitFor(t, func() bool { return ts.registry.HasSessions(userID) })
}

func TestGatewayDisconnectCleansUp(t *testing.T) {
	ts := startTestServer(t)
	token, userID := ts.registerUser(t, "alice", "secret1")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialGateway(t, ctx, ts)
	readEvent(t, ctx, conn) // HandshakeStart
	sendHandshake(t, ctx, conn, token)
	readEvent(t, ctx, conn) // HandshakeComplete
	waitFor(t, func() bool { return ts.registry.HasSessions(userID) })

	conn.Close(websocket.StatusNormalClosure, "bye")

	waitFor(t, func() bool { return !ts.registry.HasSessions(userID) })
	waitFor(t, func() bool {
		user, err := ts.store.GetUser(context.Background(), userID)
		return err == nil && !user.GatewayConnected
	})
}

func TestGatewayTwoSessionsSameUser(t *testing.T) {
	ts := startTestServer(t)
	aliceToken, _ := ts.registerUser(t, "alice", "secret1")
	bobToken, bobID := ts.registerUser(t, "bob", "secret1")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn1 := dialGateway(t, ctx, ts)
	conn2 := dialGateway(t, ctx, ts)
	for _, conn := range []*websocket.Conn{conn1, conn2} {
		readEvent(t, ctx, conn) // HandshakeStart
		sendHandshake(t, ctx, conn, bobToken)
		readEvent(t, ctx, conn) // HandshakeComplete
	}
	waitFor(t, func() bool { return len(ts.registry.SessionsFor(bobID)) == 2 })

	if status := ts.postJSON(t, "/api/channels", aliceToken, CreateChannelRequest{
		Name:     "dm",
		Location: proto.ChannelLocation{Kind: proto.ChannelLocationDM, Members: []string{bobID}},
	}, nil); status != http.StatusCreated {
		t.Fatalf("create channel status %d", status)
	}

	for i, conn := range []*websocket.Conn{conn1, conn2} {
		if name, _ := readEvent(t, ctx, conn); name != proto.EventChannelCreate {
			t.Fatalf("conn %d: frame = %s, want %s", i+1, name, proto.EventChannelCreate)
		}
	}
}

// waitFor polls until cond holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
