package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/tmplstore/billing/internal/handler"
	"github.com/tmplstore/billing/internal/session"
	"github.com/tmplstore/billing/internal/verify"
)

const writeWait = 10 * time.Second

// VerifyHandler streams verification states over a WebSocket.
type VerifyHandler struct {
	verifier *verify.Verifier
	upgrader websocket.Upgrader
	log      logrus.FieldLogger
}

// NewVerifyHandler creates a VerifyHandler. With no allowed origins every origin is
// accepted and CORS is left to the HTTP layer.
func NewVerifyHandler(v *verify.Verifier, allowedOrigins []string, log logrus.FieldLogger) *VerifyHandler {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return &VerifyHandler{
		verifier: v,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return len(allowed) == 0 || origin == "" || allowed[origin]
			},
		},
		log: log.WithField("component", "verify_ws"),
	}
}

// Handle upgrades to a WebSocket and pushes each state as JSON until a terminal state.
// URL: /ws/payments/{orderId}/verify?token=JWT_TOKEN
// Closing the socket cancels the verification.
func (h *VerifyHandler) Handle(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")
	if orderID == "" {
		handler.JSON(w, http.StatusBadRequest, map[string]string{"error": "order id is required"})
		return
	}

	sess := session.FromRequest(r)
	if sess.Credential() == "" {
		handler.JSON(w, http.StatusUnauthorized, map[string]interface{}{"error": "token required", "clearCredential": true})
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	log := h.log.WithField("order_id", orderID)
	log.Info("🔌 verification stream connected")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Any read error means the client went away.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	v := h.verifier.Start(ctx, orderID, sess)
	for s := range v.States() {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(s); err != nil {
			log.WithError(err).Debug("stream write failed, cancelling verification")
			cancel()
			continue
		}
		if s.Kind.Terminal() {
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(s.Kind)))
		}
	}

	<-v.Done()
	log.WithField("state", v.Final().Kind).Info("verification stream closed")
}
