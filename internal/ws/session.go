package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"clips-service/internal/auth"
	"clips-service/internal/gql"
	"clips-service/internal/observability"
	"clips-service/internal/pubsub"
)

var (
	errSessionClosed = errors.New("session closed")
	errQueueFull     = errors.New("outbound queue full")
)

// wsConn is the subset of *websocket.Conn the session uses.
type wsConn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

type operation struct {
	id           string
	cancel       context.CancelFunc
	subscription bool
}

// Session multiplexes GraphQL operations over one websocket connection.
// Queries and mutations each run in their own goroutine; subscriptions are
// registered with the registry and stay alive until stopped or the
// connection closes. A single writer goroutine drains the bounded outbound
// queue, so frames for one operation keep the order they were produced in.
type Session struct {
	id       string
	conn     wsConn
	executor *gql.Executor
	registry *pubsub.Registry
	tokens   *auth.TokenManager

	// fallback credential from the upgrade request query string
	upgradeToken string

	keepAlive time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	outbound chan []byte

	closeOnce sync.Once

	mu          sync.Mutex
	identity    *auth.Identity
	initialized bool
	ops         map[string]*operation
}

// NewSession wraps one accepted websocket connection.
func NewSession(conn wsConn, executor *gql.Executor, registry *pubsub.Registry, tokens *auth.TokenManager, upgradeToken string, outboundBuffer int, keepAlive time.Duration) *Session {
	if outboundBuffer <= 0 {
		outboundBuffer = 256
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		id:           uuid.NewString(),
		conn:         conn,
		executor:     executor,
		registry:     registry,
		tokens:       tokens,
		upgradeToken: upgradeToken,
		keepAlive:    keepAlive,
		ctx:          ctx,
		cancel:       cancel,
		outbound:     make(chan []byte, outboundBuffer),
		ops:          make(map[string]*operation),
	}
}

// ID returns the connection identifier.
func (s *Session) ID() string {
	return s.id
}

// Run services the connection until it closes.
func (s *Session) Run() {
	observability.IncWSActive()
	observability.IncWSEvent("ws_connect")
	defer func() {
		s.close()
		observability.DecWSActive()
		observability.IncWSEvent("ws_disconnect")
	}()

	go s.writeLoop()
	s.readLoop()
}

func (s *Session) readLoop() {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.IncWSEvent("ws_error")
			}
			return
		}

		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			s.sendProtocolError("", "malformed frame")
			continue
		}

		switch frame.Type {
		case MsgConnectionInit:
			s.handleInit(frame)
		case MsgStart:
			s.handleStart(frame)
		case MsgStop:
			s.handleStop(frame)
		case MsgConnectionTerminate:
			s.close()
			return
		default:
			s.sendProtocolError(frame.ID, "unknown message type "+frame.Type)
		}
	}
}

// handleInit runs the connect hook: resolve the caller identity from the
// init payload or the upgrade request. A present but invalid credential
// fails the connection; no credential means an anonymous session.
func (s *Session) handleInit(frame Frame) {
	var payload InitPayload
	if len(frame.Payload) > 0 {
		if err := json.Unmarshal(frame.Payload, &payload); err != nil {
			s.failConnection("malformed connection_init payload")
			return
		}
	}

	token := bearerToken(payload.Authorization)
	if token == "" {
		token = payload.Token
	}
	if token == "" {
		token = s.upgradeToken
	}

	s.mu.Lock()
	if s.initialized {
		s.mu.Unlock()
		s.sendProtocolError("", "connection already initialized")
		return
	}
	if token != "" {
		identity, err := s.tokens.ValidateToken(token)
		if err != nil {
			s.mu.Unlock()
			s.failConnection("invalid token")
			return
		}
		s.identity = &identity
	}
	s.initialized = true
	s.mu.Unlock()

	_ = s.send(Frame{Type: MsgConnectionAck})
	_ = s.send(Frame{Type: MsgKeepAlive})
	if s.keepAlive > 0 {
		go s.keepAliveLoop()
	}
}

func (s *Session) handleStart(frame Frame) {
	if !s.isInitialized() {
		s.sendProtocolError(frame.ID, "connection not initialized")
		return
	}
	if frame.ID == "" {
		s.sendProtocolError("", "start frame requires an operation id")
		return
	}

	var payload StartPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		s.sendProtocolError(frame.ID, "malformed start payload")
		return
	}

	s.mu.Lock()
	if _, exists := s.ops[frame.ID]; exists {
		s.mu.Unlock()
		s.sendProtocolError(frame.ID, "operation id already active")
		return
	}
	opCtx, opCancel := context.WithCancel(s.ctx)
	if s.identity != nil {
		opCtx = auth.WithIdentity(opCtx, *s.identity)
	}
	op := &operation{id: frame.ID, cancel: opCancel}
	s.ops[frame.ID] = op
	s.mu.Unlock()

	kind, _, err := s.executor.ClassifyOperation(payload.Query, payload.OperationName)
	if err != nil {
		s.sendOperationError(frame.ID, err.Error())
		s.terminateOperation(frame.ID)
		return
	}

	if kind == gql.OperationSubscription {
		// Register synchronously so an event published right after this
		// frame is handled cannot miss the new subscriber.
		groups, transform, err := s.executor.Subscribe(opCtx, payload.Query, payload.OperationName, payload.Variables)
		if err != nil {
			s.sendOperationError(frame.ID, err.Error())
			s.terminateOperation(frame.ID)
			return
		}
		op.subscription = true
		for _, group := range groups {
			if _, err := s.registry.Register(group, s.id, frame.ID, s, transform); err != nil {
				s.sendOperationError(frame.ID, err.Error())
				s.terminateOperation(frame.ID)
				return
			}
		}
		return
	}

	// Queries and mutations run to completion concurrently with other
	// operations on this connection.
	go func() {
		defer opCancel()
		result := s.executor.Execute(opCtx, payload.Query, payload.Variables, payload.OperationName)
		if !s.operationActive(frame.ID) {
			return
		}
		body, err := json.Marshal(result)
		if err != nil {
			s.sendOperationError(frame.ID, "failed to encode result")
		} else {
			_ = s.send(Frame{ID: frame.ID, Type: MsgData, Payload: body})
		}
		// Retire before the complete frame so the id is free for reuse the
		// moment the client sees it.
		s.retire(frame.ID)
		_ = s.send(Frame{ID: frame.ID, Type: MsgComplete})
	}()
}

func (s *Session) handleStop(frame Frame) {
	if !s.isInitialized() {
		s.sendProtocolError(frame.ID, "connection not initialized")
		return
	}
	if frame.ID == "" {
		s.sendProtocolError("", "stop frame requires an operation id")
		return
	}
	if !s.operationActive(frame.ID) {
		s.sendProtocolError(frame.ID, "unknown operation id")
		return
	}
	s.terminateOperation(frame.ID)
	_ = s.send(Frame{ID: frame.ID, Type: MsgComplete})
}

// SendData delivers one data frame for a subscription operation. It
// implements pubsub.Sink.
func (s *Session) SendData(opID string, payload map[string]interface{}) error {
	if !s.operationActive(opID) {
		return errors.New("operation " + opID + " not active")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return s.send(Frame{ID: opID, Type: MsgData, Payload: body})
}

func (s *Session) send(frame Frame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	select {
	case <-s.ctx.Done():
		return errSessionClosed
	case s.outbound <- data:
		return nil
	default:
		log.Printf("ws slow consumer, dropping connection conn=%s", s.id)
		observability.IncWSEvent("slow_consumer")
		s.close()
		return errQueueFull
	}
}

func (s *Session) sendProtocolError(opID, message string) {
	observability.IncWSEvent("protocol_error")
	s.sendOperationError(opID, message)
}

func (s *Session) sendOperationError(opID, message string) {
	body, _ := json.Marshal(ErrorPayload{Message: message})
	_ = s.send(Frame{ID: opID, Type: MsgError, Payload: body})
}

// failConnection reports a fatal connect error and closes the connection.
// The terminal frame is written directly: no frames precede a failed init,
// so this cannot race the writer, and close cancelling the writer cannot
// drop it.
func (s *Session) failConnection(message string) {
	body, _ := json.Marshal(ErrorPayload{Message: message})
	data, err := json.Marshal(Frame{Type: MsgConnectionError, Payload: body})
	if err == nil {
		_ = s.conn.WriteMessage(websocket.TextMessage, data)
	}
	s.close()
}

func (s *Session) writeLoop() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case data := <-s.outbound:
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.close()
				return
			}
		}
	}
}

func (s *Session) keepAliveLoop() {
	ticker := time.NewTicker(s.keepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			_ = s.send(Frame{Type: MsgKeepAlive})
		}
	}
}

func (s *Session) isInitialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialized
}

func (s *Session) operationActive(opID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ops[opID]
	return ok
}

// retire removes a completed query/mutation operation id.
func (s *Session) retire(opID string) {
	s.mu.Lock()
	delete(s.ops, opID)
	s.mu.Unlock()
}

// terminateOperation cancels an operation and removes its registrations
// atomically with its retirement, so no delivery can slip in afterwards.
func (s *Session) terminateOperation(opID string) {
	s.mu.Lock()
	op, ok := s.ops[opID]
	if ok {
		delete(s.ops, opID)
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	op.cancel()
	s.registry.UnregisterOperation(s.id, opID)
}

// close tears the session down: every operation is cancelled and every
// registration owned by this connection is removed.
func (s *Session) close() {
	s.closeOnce.Do(func() {
		s.cancel()
		s.mu.Lock()
		ops := make([]*operation, 0, len(s.ops))
		for _, op := range s.ops {
			ops = append(ops, op)
		}
		s.ops = make(map[string]*operation)
		s.mu.Unlock()
		for _, op := range ops {
			op.cancel()
		}
		s.registry.UnregisterConn(s.id)
		_ = s.conn.Close()
	})
}

func bearerToken(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}
