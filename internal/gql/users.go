package gql

import (
	"errors"

	"github.com/graphql-go/graphql"

	"clips-service/internal/auth"
)

// Error messages surfaced to GraphQL clients.
var (
	ErrNotLoggedIn        = errors.New("Not logged in.")
	ErrInvalidCredentials = errors.New("Please enter valid credentials.")
)

func (b *builder) userQueries() graphql.Fields {
	return graphql.Fields{
		"users": &graphql.Field{
			Type: graphql.NewList(b.userType),
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				return b.r.Users.ListUsers(p.Context)
			},
		},
		"currentUser": &graphql.Field{
			Type: b.userType,
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				identity, ok := auth.IdentityFromContext(p.Context)
				if !ok {
					return nil, ErrNotLoggedIn
				}
				return b.r.Users.GetUser(p.Context, identity.UserID)
			},
		},
	}
}

func (b *builder) userMutations() graphql.Fields {
	return graphql.Fields{
		"createUser": &graphql.Field{
			Type: b.userType,
			Args: graphql.FieldConfigArgument{
				"username": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				"password": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				"email":    &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
			},
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				username, _ := p.Args["username"].(string)
				password, _ := p.Args["password"].(string)
				email, _ := p.Args["email"].(string)

				hash, err := auth.HashPassword(password)
				if err != nil {
					return nil, err
				}
				user, err := b.r.Users.CreateUser(p.Context, username, hash, email)
				if err != nil {
					return nil, err
				}
				b.r.emitAudit(p.Context, "INFO", "user created")
				return user, nil
			},
		},
		"tokenAuth": &graphql.Field{
			Type: b.tokenType,
			Args: graphql.FieldConfigArgument{
				"username": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				"password": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
			},
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				username, _ := p.Args["username"].(string)
				password, _ := p.Args["password"].(string)

				user, err := b.r.Users.GetUserByUsername(p.Context, username)
				if err != nil || !auth.CheckPassword(user.PasswordHash, password) {
					return nil, ErrInvalidCredentials
				}
				token, err := b.r.Tokens.IssueToken(user.ID, user.Username)
				if err != nil {
					return nil, err
				}
				return map[string]interface{}{"token": token}, nil
			},
		},
		"verifyToken": &graphql.Field{
			Type: b.verifyType,
			Args: graphql.FieldConfigArgument{
				"token": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
			},
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				token, _ := p.Args["token"].(string)
				identity, err := b.r.Tokens.ValidateToken(token)
				if err != nil {
					return nil, err
				}
				return map[string]interface{}{
					"userId":   identity.UserID,
					"username": identity.Username,
				}, nil
			},
		},
		"refreshToken": &graphql.Field{
			Type: b.tokenType,
			Args: graphql.FieldConfigArgument{
				"token": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
			},
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				token, _ := p.Args["token"].(string)
				refreshed, err := b.r.Tokens.RefreshToken(token)
				if err != nil {
					return nil, err
				}
				return map[string]interface{}{"token": refreshed}, nil
			},
		},
	}
}
