package gql

import (
	"context"

	"github.com/graphql-go/graphql"

	"clips-service/internal/pubsub"
)

// NewClipMessage is the notification text delivered to onNewClip subscribers.
const NewClipMessage = "New clip was created"

// SubscriptionHandler binds one root subscription field to its group
// membership and its per-event transform.
type SubscriptionHandler struct {
	// Field declares the subscription in the schema.
	Field *graphql.Field

	// Subscribe runs when a client starts the subscription and returns the
	// groups the operation joins.
	Subscribe func(ctx context.Context, args map[string]interface{}) ([]string, error)

	// Transform resolves the payload one subscriber receives for a published
	// event. Returning pubsub.ErrSkip suppresses delivery to that subscriber.
	Transform func(ctx context.Context, args map[string]interface{}, payload pubsub.Payload) (map[string]interface{}, error)
}

func (b *builder) subscriptionHandlers() map[string]*SubscriptionHandler {
	return map[string]*SubscriptionHandler{
		"onNewClip": b.onNewClip(),
	}
}

func (b *builder) onNewClip() *SubscriptionHandler {
	return &SubscriptionHandler{
		Field: &graphql.Field{
			Type: b.clipEventType,
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				return p.Source, nil
			},
		},
		Subscribe: func(ctx context.Context, args map[string]interface{}) ([]string, error) {
			return []string{pubsub.GroupNewClips}, nil
		},
		Transform: func(ctx context.Context, args map[string]interface{}, payload pubsub.Payload) (map[string]interface{}, error) {
			event, _ := payload["event"].(string)
			if event == "" {
				// Nothing to show this subscriber.
				return nil, pubsub.ErrSkip
			}
			return map[string]interface{}{
				"data": map[string]interface{}{
					"onNewClip": map[string]interface{}{"event": event},
				},
			}, nil
		},
	}
}
