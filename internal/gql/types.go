package gql

import (
	"github.com/graphql-go/graphql"

	"clips-service/internal/models"
)

// builder assembles the schema types and per-domain resolver tables.
type builder struct {
	r *Resolver

	userType      *graphql.Object
	clipType      *graphql.Object
	voteType      *graphql.Object
	clipEventType *graphql.Object
	tokenType     *graphql.Object
	verifyType    *graphql.Object
}

func (b *builder) buildTypes() {
	b.userType = graphql.NewObject(graphql.ObjectConfig{
		Name: "User",
		Fields: graphql.Fields{
			"id":       &graphql.Field{Type: graphql.NewNonNull(graphql.ID)},
			"username": &graphql.Field{Type: graphql.String},
			"email":    &graphql.Field{Type: graphql.String},
		},
	})

	b.clipType = graphql.NewObject(graphql.ObjectConfig{
		Name: "Clip",
		Fields: graphql.Fields{
			"id":          &graphql.Field{Type: graphql.NewNonNull(graphql.ID)},
			"url":         &graphql.Field{Type: graphql.String},
			"description": &graphql.Field{Type: graphql.String},
			"postedBy": &graphql.Field{
				Type: b.userType,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					clip, ok := p.Source.(models.Clip)
					if !ok {
						return nil, nil
					}
					return b.r.Users.GetUser(p.Context, clip.PostedByID)
				},
			},
			"clipVotesCount": &graphql.Field{
				Type: graphql.Int,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					clip, ok := p.Source.(models.Clip)
					if !ok {
						return 0, nil
					}
					return b.r.Clips.CountVotesForClip(p.Context, clip.ID)
				},
			},
		},
	})

	b.voteType = graphql.NewObject(graphql.ObjectConfig{
		Name: "ClipVote",
		Fields: graphql.Fields{
			"id": &graphql.Field{Type: graphql.NewNonNull(graphql.ID)},
			"user": &graphql.Field{
				Type: b.userType,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					vote, ok := p.Source.(models.ClipVote)
					if !ok {
						return nil, nil
					}
					return b.r.Users.GetUser(p.Context, vote.UserID)
				},
			},
			"clip": &graphql.Field{
				Type: b.clipType,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					vote, ok := p.Source.(models.ClipVote)
					if !ok {
						return nil, nil
					}
					return b.r.Clips.GetClip(p.Context, vote.ClipID)
				},
			},
		},
	})

	// Cyclic fields are attached after both sides exist.
	b.userType.AddFieldConfig("clips", &graphql.Field{
		Type: graphql.NewList(b.clipType),
		Resolve: func(p graphql.ResolveParams) (interface{}, error) {
			user, ok := p.Source.(models.User)
			if !ok {
				return nil, nil
			}
			return b.r.Clips.ListClipsForUser(p.Context, user.ID)
		},
	})
	b.clipType.AddFieldConfig("clipVotes", &graphql.Field{
		Type: graphql.NewList(b.voteType),
		Resolve: func(p graphql.ResolveParams) (interface{}, error) {
			clip, ok := p.Source.(models.Clip)
			if !ok {
				return nil, nil
			}
			return b.r.Clips.ListVotesForClip(p.Context, clip.ID)
		},
	})

	b.clipEventType = graphql.NewObject(graphql.ObjectConfig{
		Name: "ClipEvent",
		Fields: graphql.Fields{
			"event": &graphql.Field{Type: graphql.String},
		},
	})

	b.tokenType = graphql.NewObject(graphql.ObjectConfig{
		Name: "TokenPayload",
		Fields: graphql.Fields{
			"token": &graphql.Field{Type: graphql.String},
		},
	})

	b.verifyType = graphql.NewObject(graphql.ObjectConfig{
		Name: "TokenVerification",
		Fields: graphql.Fields{
			"userId":   &graphql.Field{Type: graphql.Int},
			"username": &graphql.Field{Type: graphql.String},
		},
	})
}
