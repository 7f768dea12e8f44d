package gql

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"clips-service/internal/auth"
	"clips-service/internal/mocks"
	"clips-service/internal/pubsub"
)

func testTokens() *auth.TokenManager {
	return auth.NewTokenManager("test-secret", time.Hour)
}

func newTestExecutor(t *testing.T, users *mocks.UserRepositoryMock, clips *mocks.ClipRepositoryMock, votes *mocks.VoteRepositoryMock, dispatcher *pubsub.Dispatcher) *Executor {
	t.Helper()
	executor, err := NewExecutor(&Resolver{
		Users:      users,
		Clips:      clips,
		Votes:      votes,
		Tokens:     testTokens(),
		Dispatcher: dispatcher,
	})
	require.NoError(t, err)
	return executor
}

func TestClassifyOperation(t *testing.T) {
	executor := newTestExecutor(t, new(mocks.UserRepositoryMock), new(mocks.ClipRepositoryMock), new(mocks.VoteRepositoryMock), nil)

	kind, fields, err := executor.ClassifyOperation(`query { users { id } }`, "")
	require.NoError(t, err)
	require.Equal(t, OperationQuery, kind)
	require.Equal(t, []string{"users"}, fields)

	kind, _, err = executor.ClassifyOperation(`mutation { createClip(url: "http://x") { id } }`, "")
	require.NoError(t, err)
	require.Equal(t, OperationMutation, kind)

	kind, fields, err = executor.ClassifyOperation(`subscription { onNewClip { event } }`, "")
	require.NoError(t, err)
	require.Equal(t, OperationSubscription, kind)
	require.Equal(t, []string{"onNewClip"}, fields)
}

func TestClassifyOperationByName(t *testing.T) {
	executor := newTestExecutor(t, new(mocks.UserRepositoryMock), new(mocks.ClipRepositoryMock), new(mocks.VoteRepositoryMock), nil)

	doc := `
		query ListUsers { users { id } }
		subscription WatchClips { onNewClip { event } }
	`
	kind, _, err := executor.ClassifyOperation(doc, "WatchClips")
	require.NoError(t, err)
	require.Equal(t, OperationSubscription, kind)

	_, _, err = executor.ClassifyOperation(doc, "Nope")
	require.Error(t, err)
}

func TestClassifyOperationParseError(t *testing.T) {
	executor := newTestExecutor(t, new(mocks.UserRepositoryMock), new(mocks.ClipRepositoryMock), new(mocks.VoteRepositoryMock), nil)

	_, _, err := executor.ClassifyOperation(`query {`, "")
	require.Error(t, err)
}

func TestSubscribeResolvesGroupsAndTransform(t *testing.T) {
	executor := newTestExecutor(t, new(mocks.UserRepositoryMock), new(mocks.ClipRepositoryMock), new(mocks.VoteRepositoryMock), nil)

	groups, transform, err := executor.Subscribe(context.Background(), `subscription { onNewClip { event } }`, "", nil)
	require.NoError(t, err)
	require.Equal(t, []string{pubsub.GroupNewClips}, groups)

	payload, err := transform(pubsub.Payload{"event": NewClipMessage})
	require.NoError(t, err)
	require.Equal(t, map[string]interface{}{
		"data": map[string]interface{}{
			"onNewClip": map[string]interface{}{"event": NewClipMessage},
		},
	}, payload)
}

func TestSubscribeTransformSkipsEmptyEvent(t *testing.T) {
	executor := newTestExecutor(t, new(mocks.UserRepositoryMock), new(mocks.ClipRepositoryMock), new(mocks.VoteRepositoryMock), nil)

	_, transform, err := executor.Subscribe(context.Background(), `subscription { onNewClip { event } }`, "", nil)
	require.NoError(t, err)

	_, err = transform(pubsub.Payload{})
	require.ErrorIs(t, err, pubsub.ErrSkip)
}

func TestSubscribeRejectsUnknownField(t *testing.T) {
	executor := newTestExecutor(t, new(mocks.UserRepositoryMock), new(mocks.ClipRepositoryMock), new(mocks.VoteRepositoryMock), nil)

	_, _, err := executor.Subscribe(context.Background(), `subscription { onSomethingElse { event } }`, "", nil)
	require.Error(t, err)
}

func TestSubscribeRejectsNonSubscription(t *testing.T) {
	executor := newTestExecutor(t, new(mocks.UserRepositoryMock), new(mocks.ClipRepositoryMock), new(mocks.VoteRepositoryMock), nil)

	_, _, err := executor.Subscribe(context.Background(), `query { users { id } }`, "", nil)
	require.Error(t, err)
}
