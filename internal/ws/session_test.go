package ws

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"clips-service/internal/auth"
	"clips-service/internal/gql"
	"clips-service/internal/mocks"
	"clips-service/internal/models"
	"clips-service/internal/pubsub"
)

// fakeConn stands in for *websocket.Conn. Frames the test feeds into
// incoming are what the client "sent"; written records what the session
// sent back.
type fakeConn struct {
	incoming  chan []byte
	closed    chan struct{}
	closeOnce sync.Once

	mu      sync.Mutex
	written []Frame
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		incoming: make(chan []byte, 16),
		closed:   make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case data := <-c.incoming:
		return websocket.TextMessage, data, nil
	case <-c.closed:
		return 0, nil, &websocket.CloseError{Code: websocket.CloseNormalClosure}
	}
}

func (c *fakeConn) WriteMessage(messageType int, data []byte) error {
	select {
	case <-c.closed:
		return errors.New("connection closed")
	default:
	}
	var frame Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		return err
	}
	c.mu.Lock()
	c.written = append(c.written, frame)
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *fakeConn) clientSend(t *testing.T, frame Frame) {
	t.Helper()
	data, err := json.Marshal(frame)
	require.NoError(t, err)
	c.incoming <- data
}

func (c *fakeConn) hasFrame(matches func(Frame) bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, frame := range c.written {
		if matches(frame) {
			return true
		}
	}
	return false
}

func waitForFrame(t *testing.T, conn *fakeConn, matches func(Frame) bool) {
	t.Helper()
	require.Eventually(t, func() bool { return conn.hasFrame(matches) }, 2*time.Second, 5*time.Millisecond)
}

func rawPayload(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

type sessionEnv struct {
	conn       *fakeConn
	session    *Session
	registry   *pubsub.Registry
	dispatcher *pubsub.Dispatcher
	tokens     *auth.TokenManager

	users *mocks.UserRepositoryMock
	clips *mocks.ClipRepositoryMock
	votes *mocks.VoteRepositoryMock
}

func newSessionEnv(t *testing.T, upgradeToken string) *sessionEnv {
	t.Helper()

	registry := pubsub.NewRegistry()
	dispatcher := pubsub.NewDispatcher(registry)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go dispatcher.Run(ctx)

	env := &sessionEnv{
		registry:   registry,
		dispatcher: dispatcher,
		tokens:     auth.NewTokenManager("test-secret", time.Hour),
		users:      new(mocks.UserRepositoryMock),
		clips:      new(mocks.ClipRepositoryMock),
		votes:      new(mocks.VoteRepositoryMock),
	}

	executor, err := gql.NewExecutor(&gql.Resolver{
		Users:      env.users,
		Clips:      env.clips,
		Votes:      env.votes,
		Tokens:     env.tokens,
		Dispatcher: dispatcher,
	})
	require.NoError(t, err)

	env.conn = newFakeConn()
	env.session = NewSession(env.conn, executor, registry, env.tokens, upgradeToken, 16, 0)
	go env.session.Run()
	t.Cleanup(env.session.close)
	return env
}

func (e *sessionEnv) initSession(t *testing.T, token string) {
	t.Helper()
	frame := Frame{Type: MsgConnectionInit}
	if token != "" {
		frame.Payload = rawPayload(t, InitPayload{Token: token})
	}
	e.conn.clientSend(t, frame)
	waitForFrame(t, e.conn, func(f Frame) bool { return f.Type == MsgConnectionAck })
}

func (e *sessionEnv) start(t *testing.T, opID, query string) {
	t.Helper()
	e.conn.clientSend(t, Frame{ID: opID, Type: MsgStart, Payload: rawPayload(t, StartPayload{Query: query})})
}

func TestInitAcknowledged(t *testing.T) {
	env := newSessionEnv(t, "")
	env.initSession(t, "")

	waitForFrame(t, env.conn, func(f Frame) bool { return f.Type == MsgKeepAlive })
	require.False(t, env.conn.isClosed())
}

func TestInitInvalidTokenFailsConnection(t *testing.T) {
	env := newSessionEnv(t, "")

	env.conn.clientSend(t, Frame{Type: MsgConnectionInit, Payload: rawPayload(t, InitPayload{Token: "garbage"})})

	waitForFrame(t, env.conn, func(f Frame) bool {
		return f.Type == MsgConnectionError && strings.Contains(string(f.Payload), "invalid token")
	})
	require.Eventually(t, env.conn.isClosed, 2*time.Second, 5*time.Millisecond)
}

func TestInitTokenResolvesIdentity(t *testing.T) {
	env := newSessionEnv(t, "")
	env.users.On("GetUser", mock.Anything, 42).
		Return(models.User{ID: 42, Username: "alice"}, nil).Once()

	token, err := env.tokens.IssueToken(42, "alice")
	require.NoError(t, err)
	env.initSession(t, token)

	env.start(t, "q1", `query { currentUser { id username } }`)

	waitForFrame(t, env.conn, func(f Frame) bool {
		return f.ID == "q1" && f.Type == MsgData && strings.Contains(string(f.Payload), "alice")
	})
	waitForFrame(t, env.conn, func(f Frame) bool { return f.ID == "q1" && f.Type == MsgComplete })
	env.users.AssertExpectations(t)
}

func TestUpgradeTokenFallback(t *testing.T) {
	tokens := auth.NewTokenManager("test-secret", time.Hour)
	token, err := tokens.IssueToken(42, "alice")
	require.NoError(t, err)

	env := newSessionEnv(t, token)
	env.users.On("GetUser", mock.Anything, 42).
		Return(models.User{ID: 42, Username: "alice"}, nil).Once()

	// connection_init without credentials falls back to the upgrade token.
	env.initSession(t, "")
	env.start(t, "q1", `query { currentUser { username } }`)

	waitForFrame(t, env.conn, func(f Frame) bool {
		return f.ID == "q1" && f.Type == MsgData && strings.Contains(string(f.Payload), "alice")
	})
}

func TestQueryRunsToCompletionAndRetiresID(t *testing.T) {
	env := newSessionEnv(t, "")
	env.users.On("ListUsers", mock.Anything).
		Return([]models.User{{ID: 1, Username: "alice"}}, nil).Twice()

	env.initSession(t, "")
	env.start(t, "q1", `query { users { id username } }`)
	waitForFrame(t, env.conn, func(f Frame) bool { return f.ID == "q1" && f.Type == MsgComplete })

	// The id is free for reuse once the operation completed.
	env.start(t, "q1", `query { users { id username } }`)
	waitForFrame(t, env.conn, func(f Frame) bool {
		return f.ID == "q1" && f.Type == MsgData && strings.Contains(string(f.Payload), "alice")
	})
	env.users.AssertExpectations(t)
}

func TestDuplicateOperationIDRejected(t *testing.T) {
	env := newSessionEnv(t, "")
	env.initSession(t, "")

	env.start(t, "sub1", `subscription { onNewClip { event } }`)
	require.Eventually(t, func() bool {
		return len(env.registry.SubscribersOf(pubsub.GroupNewClips)) == 1
	}, 2*time.Second, 5*time.Millisecond)

	env.start(t, "sub1", `subscription { onNewClip { event } }`)
	waitForFrame(t, env.conn, func(f Frame) bool {
		return f.ID == "sub1" && f.Type == MsgError && strings.Contains(string(f.Payload), "already active")
	})
	// The original subscription survives.
	require.Len(t, env.registry.SubscribersOf(pubsub.GroupNewClips), 1)
	require.False(t, env.conn.isClosed())
}

func TestStopUnknownOperationIsNonFatal(t *testing.T) {
	env := newSessionEnv(t, "")
	env.initSession(t, "")

	env.conn.clientSend(t, Frame{ID: "nope", Type: MsgStop})
	waitForFrame(t, env.conn, func(f Frame) bool {
		return f.ID == "nope" && f.Type == MsgError && strings.Contains(string(f.Payload), "unknown operation id")
	})
	require.False(t, env.conn.isClosed())
}

func TestSubscriptionDeliveryAndStop(t *testing.T) {
	env := newSessionEnv(t, "")
	env.initSession(t, "")

	env.start(t, "sub1", `subscription { onNewClip { event } }`)
	require.Eventually(t, func() bool {
		return len(env.registry.SubscribersOf(pubsub.GroupNewClips)) == 1
	}, 2*time.Second, 5*time.Millisecond)

	env.dispatcher.Publish(pubsub.GroupNewClips, pubsub.Payload{"event": gql.NewClipMessage})
	waitForFrame(t, env.conn, func(f Frame) bool {
		return f.ID == "sub1" && f.Type == MsgData && strings.Contains(string(f.Payload), gql.NewClipMessage)
	})

	env.conn.clientSend(t, Frame{ID: "sub1", Type: MsgStop})
	waitForFrame(t, env.conn, func(f Frame) bool { return f.ID == "sub1" && f.Type == MsgComplete })
	require.Eventually(t, func() bool {
		return len(env.registry.SubscribersOf(pubsub.GroupNewClips)) == 0
	}, 2*time.Second, 5*time.Millisecond)
}

func TestTerminateCleansUpRegistrations(t *testing.T) {
	env := newSessionEnv(t, "")
	env.initSession(t, "")

	env.start(t, "sub1", `subscription { onNewClip { event } }`)
	require.Eventually(t, func() bool {
		return len(env.registry.SubscribersOf(pubsub.GroupNewClips)) == 1
	}, 2*time.Second, 5*time.Millisecond)

	env.conn.clientSend(t, Frame{Type: MsgConnectionTerminate})

	require.Eventually(t, env.conn.isClosed, 2*time.Second, 5*time.Millisecond)
	require.Empty(t, env.registry.SubscribersOf(pubsub.GroupNewClips))
}

func TestSubscribingToUnknownFieldFailsOperation(t *testing.T) {
	env := newSessionEnv(t, "")
	env.initSession(t, "")

	env.start(t, "sub1", `subscription { onSomethingElse { event } }`)
	waitForFrame(t, env.conn, func(f Frame) bool { return f.ID == "sub1" && f.Type == MsgError })
	require.Empty(t, env.registry.SubscribersOf(pubsub.GroupNewClips))
	require.False(t, env.conn.isClosed())
}

func TestStartBeforeInitRejected(t *testing.T) {
	// The upgrade token is invalid, so skipping connection_init must not
	// let the client run operations without the connect hook ever seeing it.
	env := newSessionEnv(t, "garbage")

	env.start(t, "q1", `query { users { username } }`)

	waitForFrame(t, env.conn, func(f Frame) bool {
		return f.ID == "q1" && f.Type == MsgError && strings.Contains(string(f.Payload), "not initialized")
	})
	require.False(t, env.conn.hasFrame(func(f Frame) bool { return f.Type == MsgData }))
	env.users.AssertNotCalled(t, "ListUsers", mock.Anything)
	require.Empty(t, env.registry.SubscribersOf(pubsub.GroupNewClips))
}

func TestStopBeforeInitRejected(t *testing.T) {
	env := newSessionEnv(t, "")

	env.conn.clientSend(t, Frame{ID: "q1", Type: MsgStop})

	waitForFrame(t, env.conn, func(f Frame) bool {
		return f.ID == "q1" && f.Type == MsgError && strings.Contains(string(f.Payload), "not initialized")
	})
	require.False(t, env.conn.isClosed())
}

func TestRepeatedInitRejected(t *testing.T) {
	env := newSessionEnv(t, "")
	env.initSession(t, "")

	env.conn.clientSend(t, Frame{Type: MsgConnectionInit})

	waitForFrame(t, env.conn, func(f Frame) bool {
		return f.Type == MsgError && strings.Contains(string(f.Payload), "already initialized")
	})
	require.False(t, env.conn.isClosed())
}

// stallingConn never completes a write until the connection closes,
// standing in for a client that stops reading.
type stallingConn struct {
	*fakeConn
}

func (c *stallingConn) WriteMessage(messageType int, data []byte) error {
	<-c.closed
	return errors.New("connection closed")
}

func TestSlowConsumerDisconnected(t *testing.T) {
	registry := pubsub.NewRegistry()
	dispatcher := pubsub.NewDispatcher(registry)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go dispatcher.Run(ctx)

	executor, err := gql.NewExecutor(&gql.Resolver{
		Users:      new(mocks.UserRepositoryMock),
		Clips:      new(mocks.ClipRepositoryMock),
		Votes:      new(mocks.VoteRepositoryMock),
		Tokens:     auth.NewTokenManager("test-secret", time.Hour),
		Dispatcher: dispatcher,
	})
	require.NoError(t, err)

	conn := &stallingConn{fakeConn: newFakeConn()}
	session := NewSession(conn, executor, registry, auth.NewTokenManager("test-secret", time.Hour), "", 4, 0)
	go session.Run()
	t.Cleanup(session.close)

	conn.clientSend(t, Frame{Type: MsgConnectionInit})
	payload, err := json.Marshal(StartPayload{Query: `subscription { onNewClip { event } }`})
	require.NoError(t, err)
	conn.clientSend(t, Frame{ID: "sub1", Type: MsgStart, Payload: payload})
	require.Eventually(t, func() bool {
		return len(registry.SubscribersOf(pubsub.GroupNewClips)) == 1
	}, 2*time.Second, 5*time.Millisecond)

	// The writer is stalled, so a burst larger than the outbound buffer
	// must trip the overflow policy and drop the connection.
	for i := 0; i < 10; i++ {
		dispatcher.Publish(pubsub.GroupNewClips, pubsub.Payload{"event": gql.NewClipMessage})
	}

	require.Eventually(t, conn.isClosed, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		return len(registry.SubscribersOf(pubsub.GroupNewClips)) == 0
	}, 2*time.Second, 5*time.Millisecond)
}

func TestMalformedFrameIsNonFatal(t *testing.T) {
	env := newSessionEnv(t, "")
	env.initSession(t, "")

	env.conn.incoming <- []byte("{not json")
	waitForFrame(t, env.conn, func(f Frame) bool {
		return f.Type == MsgError && strings.Contains(string(f.Payload), "malformed frame")
	})
	require.False(t, env.conn.isClosed())
}
