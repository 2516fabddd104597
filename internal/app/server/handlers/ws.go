package handlers

import (
	"context"
	"net/http"
	"slices"

	"chatterbox/internal/app/server/ws"
	"chatterbox/internal/core/contracts"
	"chatterbox/pkg/logging"
	"chatterbox/pkg/middleware"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Gateway is the part of the event gateway the transport drives.
type Gateway interface {
	Connect(ctx context.Context, c contracts.Client) error
	Disconnect(ctx context.Context, connID string)
	HandleEvent(ctx context.Context, c contracts.Client, raw []byte) error
}

type WSHandler struct {
	gateway  Gateway
	upgrader websocket.Upgrader
}

func NewWSHandler(gateway Gateway, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		gateway: gateway,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

// originChecker returns nil for an empty list, which leaves gorilla's
// same-host check in place. "*" allows every origin.
func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return nil
	}
	if slices.Contains(allowed, "*") {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		// Non-browser clients send no Origin.
		return origin == "" || slices.Contains(allowed, origin)
	}
}

// Handler upgrades an authenticated request. The auth middleware has already
// rejected requests without a valid credential, so no unauthenticated socket
// ever reaches the gateway.
func (s *WSHandler) Handler(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())
	span := trace.SpanFromContext(r.Context())
	identityID, ok := middleware.UserID(r.Context())
	if !ok {
		log.ErrorContext(r.Context(), "ws handler - unauthorised missing user_id")
		http.Error(w, "Unauthorized: User ID missing", http.StatusUnauthorized)
		return
	}
	span.SetAttributes(attribute.String("user.id", identityID))

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.ErrorContext(r.Context(), "ws handler - upgrade - ws upgrade failed", logging.Err(err))
		return
	}
	// The session outlives the HTTP request context once hijacked.
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	connID := uuid.NewString()
	log = log.With(logging.Connection(connID), logging.Identity(identityID))
	socket := ws.NewWebSocket(ctx, log, conn)
	client := ws.NewClient(ctx, socket, connID, identityID)
	defer client.Close()

	if err := s.gateway.Connect(ctx, client); err != nil {
		log.ErrorContext(ctx, "ws handler - connect failed", logging.Err(err))
		return
	}
	defer s.gateway.Disconnect(context.WithoutCancel(ctx), connID)
	log.InfoContext(ctx, "ws handler - ws connection established")

	// Frames are handled inline so each connection's events apply in order.
	socket.ReadLoop(func(data []byte) {
		if err := s.gateway.HandleEvent(ctx, client, data); err != nil {
			log.DebugContext(ctx, "ws handler - handle event - rejected", logging.Err(err))
		}
	})
	log.InfoContext(ctx, "ws handler - ws connection closed")
}
