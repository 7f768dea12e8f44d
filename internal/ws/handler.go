package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"clips-service/internal/auth"
	"clips-service/internal/gql"
	"clips-service/internal/observability"
	"clips-service/internal/pubsub"
	"clips-service/internal/telemetry"
)

var upgrader = websocket.Upgrader{
	CheckOrigin:  func(r *http.Request) bool { return true },
	Subprotocols: []string{"graphql-ws"},
}

// GraphQLWSHandler upgrades connections and runs one session per connection.
type GraphQLWSHandler struct {
	executor *gql.Executor
	registry *pubsub.Registry
	tokens   *auth.TokenManager
	audit    *telemetry.AuditEmitter

	outboundBuffer int
	keepAlive      time.Duration
}

// NewGraphQLWSHandler constructs a GraphQLWSHandler.
func NewGraphQLWSHandler(executor *gql.Executor, registry *pubsub.Registry, tokens *auth.TokenManager, audit *telemetry.AuditEmitter, outboundBuffer int, keepAlive time.Duration) *GraphQLWSHandler {
	return &GraphQLWSHandler{
		executor:       executor,
		registry:       registry,
		tokens:         tokens,
		audit:          audit,
		outboundBuffer: outboundBuffer,
		keepAlive:      keepAlive,
	}
}

// Handle upgrades the connection and services it until close.
func (h *GraphQLWSHandler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("clips-service/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	// Fallback credential for clients that cannot set the init payload.
	upgradeToken := c.Query("token")

	requestID := observability.RequestIDFromRequest(c.Request)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	session := NewSession(conn, h.executor, h.registry, h.tokens, upgradeToken, h.outboundBuffer, h.keepAlive)
	h.audit.Emit(ctx, "INFO", "websocket connected", requestID, nil)

	go func() {
		session.Run()
		h.audit.Emit(context.Background(), "INFO", "websocket disconnected", requestID, nil)
	}()
}
