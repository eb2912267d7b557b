package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/prepdash/battle-backend/internal/battle"
	"github.com/prepdash/battle-backend/internal/identity"
	"github.com/prepdash/battle-backend/internal/registry"
	"github.com/prepdash/battle-backend/internal/types"
)

const (
	writeTimeout     = 3 * time.Second
	handshakeTimeout = 10 * time.Second
)

// Clients have nothing to say between join_battle and leave_battle, so an
// idle read is the normal state of a healthy connection, not transport
// loss. Liveness is probed server-side instead: a missed pong closes the
// connection, which surfaces as a read error. Vars so tests can shorten
// the cadence.
var (
	pingInterval = 20 * time.Second
	pingTimeout  = 10 * time.Second
)

// Handler upgrades /ws connections and binds each to one battle. Events
// flow through a per-connection outbox channel, so a connection sees
// session transitions in exactly the order they occurred. A dropped
// transport promptly degrades the participant to Disconnected.
func Handler(reg *registry.Registry, ident identity.Resolver, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		// First frame must be the join_battle handshake.
		hello, err := readClientMessage(r.Context(), conn, handshakeTimeout)
		if err != nil || hello.Type != "join_battle" || hello.BattleID == "" {
			writeError(r.Context(), conn, "expected join_battle")
			return
		}

		userID := ""
		if hello.ParticipantID != "" {
			id, err := ident.Resolve(r.Context(), hello.ParticipantID)
			if err != nil {
				writeError(r.Context(), conn, "unknown participant")
				return
			}
			userID = id.UserID
		}

		session, err := reg.Get(r.Context(), hello.BattleID)
		if err != nil {
			writeError(r.Context(), conn, "battle not found")
			return
		}

		clientID := uuid.NewString()
		out := make(chan battle.Event, 16)
		if err := session.Bind(r.Context(), clientID, userID, out); err != nil {
			writeError(r.Context(), conn, err.Error())
			return
		}
		// Required side effect of transport loss: the session learns
		// about it.
		defer session.Unbind(clientID, userID)

		log.Debug("connection bound",
			zap.String("battle_id", hello.BattleID),
			zap.String("client_id", clientID),
			zap.String("user_id", userID),
		)

		// Initial snapshot so late joiners see the current state
		// before the event stream.
		if view, err := session.View(r.Context()); err == nil {
			snap := types.SnapshotFromView(view)
			writeMessage(r.Context(), conn, types.ServerMessage{Type: "snapshot", Snapshot: &snap})
		}

		// Writer goroutine: drains the outbox until the session closes
		// it (slow-client drop or shutdown) or the request ends.
		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go func() {
			for e := range out {
				ev := e
				writeMessage(writeCtx, conn, types.ServerMessage{Type: "event", Event: &ev})
			}
		}()

		// Keepalive: pings need the concurrent Read below to receive the
		// pong. Closing the conn on a failed ping unblocks that Read, so
		// the deferred Unbind runs.
		go func() {
			ticker := time.NewTicker(pingInterval)
			defer ticker.Stop()
			for {
				select {
				case <-writeCtx.Done():
					return
				case <-ticker.C:
					pctx, cancel := context.WithTimeout(writeCtx, pingTimeout)
					err := conn.Ping(pctx)
					cancel()
					if err != nil {
						conn.Close(websocket.StatusPolicyViolation, "keepalive timeout")
						return
					}
				}
			}
		}()

		for {
			cm, err := readClientMessage(r.Context(), conn, 0)
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
					return
				}
				// Anything else counts as a disconnect; the
				// deferred Unbind tells the session.
				return
			}

			switch cm.Type {
			case "leave_battle":
				if userID != "" {
					leaveCtx, cancel := context.WithTimeout(r.Context(), writeTimeout)
					_ = session.Leave(leaveCtx, userID)
					cancel()
				}
				return
			default:
				writeError(r.Context(), conn, "unknown type")
			}
		}
	}
}

// readClientMessage reads one frame. timeout 0 means block until the
// connection or request dies.
func readClientMessage(ctx context.Context, conn *websocket.Conn, timeout time.Duration) (types.ClientMessage, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	_, data, err := conn.Read(ctx)
	if err != nil {
		return types.ClientMessage{}, err
	}
	var cm types.ClientMessage
	if err := json.Unmarshal(data, &cm); err != nil {
		return types.ClientMessage{}, err
	}
	return cm, nil
}

func writeMessage(ctx context.Context, conn *websocket.Conn, msg types.ServerMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_ = conn.Write(wctx, websocket.MessageText, payload)
}

func writeError(ctx context.Context, conn *websocket.Conn, reason string) {
	writeMessage(ctx, conn, types.ServerMessage{Type: "error", Error: reason})
}
