package http

import (
	"context"
	"errors"
	stdhttp "net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"github.com/concord-im/concord/internal/core"
	"github.com/concord-im/concord/internal/metrics"
	"github.com/concord-im/concord/internal/proto"
	"github.com/concord-im/concord/internal/store"
	"github.com/concord-im/concord/internal/utils"
)

// WSHandler upgrades HTTP connections into gateway sessions and runs the
// per-connection read/write loops.
type WSHandler struct {
	registry  *core.Registry
	handshake *core.Handshake
	users     store.UserStore
	log       *zerolog.Logger
}

// NewWSHandler builds the gateway endpoint handler.
func NewWSHandler(registry *core.Registry, handshake *core.Handshake, users store.UserStore, logger *zerolog.Logger) *WSHandler {
	return &WSHandler{
		registry:  registry,
		handshake: handshake,
		users:     users,
		log:       logger,
	}
}

// ServeHTTP handles GET /gateway. The handler is mounted outside the gin
// router: the upgrade must hijack a pristine ResponseWriter, and gin's wrapper
// refuses to hijack once a status has been written.
func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	metrics.GatewayConnections.Inc()
	defer metrics.GatewayConnections.Dec()

	sess := core.NewSession(utils.NewSessionID())
	h.log.Debug().Str("session_id", sess.ID).Msg("gateway connection open")

	// Queue the handshake-start frame before the read loop exists, so even a
	// client that handshakes immediately sees it as the first frame.
	if frame, err := proto.HandshakeStartEvent().Encode(); err == nil {
		sess.Send(frame)
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.writeLoop(ctx, conn, sess)
	}()
	go func() {
		errCh <- h.readLoop(ctx, conn, sess)
	}()

	err = <-errCh
	cancel()
	sess.Close()
	<-errCh

	h.teardown(sess)

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if s := websocket.CloseStatus(err); s != 0 {
			status = s
		}
		if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway {
			h.log.Debug().Err(err).Str("session_id", sess.ID).Msg("gateway connection closed with error")
		}
	}
	conn.Close(status, reason)
}

// readLoop consumes client frames. Only handshake frames mean anything;
// undecodable text frames are dropped, non-text frames end the connection.
func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, sess *core.Session) error {
	for {
		msgType, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		if msgType != websocket.MessageText {
			return errors.New("unexpected binary frame")
		}

		ev, err := proto.DecodeReceived(data)
		if err != nil {
			h.log.Debug().Err(err).Str("session_id", sess.ID).Msg("discarding inbound frame")
			continue
		}

		if reply := h.handshake.Handle(ctx, sess, ev.Handshake.Token); reply != nil {
			if err := h.users.SetGatewayConnected(ctx, sess.UserID(), true); err != nil {
				h.log.Warn().Err(err).Str("user_id", sess.UserID()).Msg("failed to flag user connected")
			}
		}
	}
}

// writeLoop drains the session queue into the socket.
func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, sess *core.Session) error {
	for {
		frame, err := sess.Next(ctx)
		if err != nil {
			if errors.Is(err, core.ErrSessionClosed) {
				return nil
			}
			return err
		}
		if err := conn.Write(ctx, websocket.MessageText, frame); err != nil {
			metrics.WriteFailures.Inc()
			h.log.Warn().Err(err).Str("session_id", sess.ID).Msg("ws write failed")
			return err
		}
	}
}

// teardown removes the session from the registry and clears the user's
// connected flag once their last session is gone.
func (h *WSHandler) teardown(sess *core.Session) {
	userID := sess.UserID()
	if userID == "" {
		return
	}
	h.registry.Remove(userID, sess.ID)
	if !h.registry.HasSessions(userID) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.users.SetGatewayConnected(ctx, userID, false); err != nil {
			h.log.Warn().Err(err).Str("user_id", userID).Msg("failed to clear connected flag")
		}
	}
	h.log.Debug().Str("session_id", sess.ID).Str("user_id", userID).Msg("gateway session removed")
}
