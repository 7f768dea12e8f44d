package gql

import (
	"errors"
	"strconv"

	"github.com/graphql-go/graphql"

	"clips-service/internal/auth"
	"clips-service/internal/pubsub"
	"clips-service/internal/repositories"
)

var (
	ErrInvalidClip  = errors.New("Invalid clip.")
	ErrAlreadyVoted = errors.New("User already voted for this clip.")
)

func (b *builder) clipQueries() graphql.Fields {
	return graphql.Fields{
		"clips": &graphql.Field{
			Type: graphql.NewList(b.clipType),
			Args: graphql.FieldConfigArgument{
				"search": &graphql.ArgumentConfig{Type: graphql.String},
				"first":  &graphql.ArgumentConfig{Type: graphql.Int},
				"skip":   &graphql.ArgumentConfig{Type: graphql.Int},
			},
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				search, _ := p.Args["search"].(string)
				first, _ := p.Args["first"].(int)
				skip, _ := p.Args["skip"].(int)
				return b.r.Clips.ListClips(p.Context, search, first, skip)
			},
		},
		"votes": &graphql.Field{
			Type: graphql.NewList(b.voteType),
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				return b.r.Votes.ListVotes(p.Context)
			},
		},
	}
}

func (b *builder) clipMutations() graphql.Fields {
	return graphql.Fields{
		"createClip": &graphql.Field{
			Type: b.clipType,
			Args: graphql.FieldConfigArgument{
				"url":         &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				"description": &graphql.ArgumentConfig{Type: graphql.String},
			},
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				identity, ok := auth.IdentityFromContext(p.Context)
				if !ok {
					return nil, ErrNotLoggedIn
				}
				url, _ := p.Args["url"].(string)
				description, _ := p.Args["description"].(string)

				clip, err := b.r.Clips.CreateClip(p.Context, url, description, identity.UserID)
				if err != nil {
					return nil, err
				}

				// The insert is durable at this point; notify subscribers once.
				b.r.Dispatcher.Publish(pubsub.GroupNewClips, pubsub.Payload{
					"event": NewClipMessage,
				})
				b.r.emitAudit(p.Context, "INFO", "clip created")
				return clip, nil
			},
		},
		"createClipVote": &graphql.Field{
			Type: b.voteType,
			Args: graphql.FieldConfigArgument{
				"clipId": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.ID)},
			},
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				identity, ok := auth.IdentityFromContext(p.Context)
				if !ok {
					return nil, ErrNotLoggedIn
				}
				clipID, err := clipIDArg(p.Args["clipId"])
				if err != nil {
					return nil, ErrInvalidClip
				}

				if _, err := b.r.Clips.GetClip(p.Context, clipID); err != nil {
					if errors.Is(err, repositories.ErrClipNotFound) {
						return nil, ErrInvalidClip
					}
					return nil, err
				}

				vote, err := b.r.Votes.CreateVote(p.Context, identity.UserID, clipID)
				if err != nil {
					if errors.Is(err, repositories.ErrAlreadyVoted) {
						return nil, ErrAlreadyVoted
					}
					return nil, err
				}
				b.r.emitAudit(p.Context, "INFO", "clip vote created")
				return vote, nil
			},
		},
	}
}

func clipIDArg(arg interface{}) (int, error) {
	switch v := arg.(type) {
	case int:
		return v, nil
	case string:
		return strconv.Atoi(v)
	default:
		return 0, errors.New("invalid clip id")
	}
}
