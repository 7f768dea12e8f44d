package gql

import (
	"context"
	"errors"
	"fmt"

	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/language/ast"
	"github.com/graphql-go/graphql/language/parser"

	"clips-service/internal/auth"
	"clips-service/internal/pubsub"
	"clips-service/internal/repositories"
	"clips-service/internal/telemetry"
)

// Resolver holds the collaborators the resolver layer reads and writes.
type Resolver struct {
	Users      repositories.UserRepository
	Clips      repositories.ClipRepository
	Votes      repositories.VoteRepository
	Tokens     *auth.TokenManager
	Dispatcher *pubsub.Dispatcher
	Audit      *telemetry.AuditEmitter
}

func (r *Resolver) emitAudit(ctx context.Context, level, text string) {
	if r.Audit == nil {
		return
	}
	var userID *int64
	if identity, ok := auth.IdentityFromContext(ctx); ok {
		value := int64(identity.UserID)
		userID = &value
	}
	r.Audit.Emit(ctx, level, text, "", userID)
}

// OperationKind classifies a parsed GraphQL operation.
type OperationKind string

const (
	OperationQuery        OperationKind = "query"
	OperationMutation     OperationKind = "mutation"
	OperationSubscription OperationKind = "subscription"
)

// Executor executes queries and mutations against the composed schema and
// resolves subscription documents to their registered handlers.
type Executor struct {
	schema        graphql.Schema
	subscriptions map[string]*SubscriptionHandler
}

// NewExecutor composes the root Query, Mutation and Subscription types by
// merging the per-domain resolver tables and builds the schema.
func NewExecutor(r *Resolver) (*Executor, error) {
	b := &builder{r: r}
	b.buildTypes()

	queries := graphql.Fields{}
	mergeFields(queries, b.userQueries(), b.clipQueries())

	mutations := graphql.Fields{}
	mergeFields(mutations, b.userMutations(), b.clipMutations())

	handlers := b.subscriptionHandlers()
	subscriptions := graphql.Fields{}
	for name, handler := range handlers {
		subscriptions[name] = handler.Field
	}

	schema, err := graphql.NewSchema(graphql.SchemaConfig{
		Query:        graphql.NewObject(graphql.ObjectConfig{Name: "Query", Fields: queries}),
		Mutation:     graphql.NewObject(graphql.ObjectConfig{Name: "Mutation", Fields: mutations}),
		Subscription: graphql.NewObject(graphql.ObjectConfig{Name: "Subscription", Fields: subscriptions}),
	})
	if err != nil {
		return nil, fmt.Errorf("build schema: %w", err)
	}

	return &Executor{schema: schema, subscriptions: handlers}, nil
}

func mergeFields(dst graphql.Fields, tables ...graphql.Fields) {
	for _, table := range tables {
		for name, field := range table {
			dst[name] = field
		}
	}
}

// Execute runs a query or mutation document to completion.
func (e *Executor) Execute(ctx context.Context, query string, variables map[string]interface{}, operationName string) *graphql.Result {
	return graphql.Do(graphql.Params{
		Schema:         e.schema,
		RequestString:  query,
		VariableValues: variables,
		OperationName:  operationName,
		Context:        ctx,
	})
}

// ClassifyOperation parses the document and reports the operation kind and
// its root field names.
func (e *Executor) ClassifyOperation(query, operationName string) (OperationKind, []string, error) {
	doc, err := parser.Parse(parser.ParseParams{Source: query})
	if err != nil {
		return "", nil, fmt.Errorf("parse query: %w", err)
	}

	var op *ast.OperationDefinition
	for _, def := range doc.Definitions {
		opDef, ok := def.(*ast.OperationDefinition)
		if !ok {
			continue
		}
		if operationName == "" || (opDef.Name != nil && opDef.Name.Value == operationName) {
			op = opDef
			break
		}
	}
	if op == nil {
		return "", nil, errors.New("no matching operation in document")
	}

	var fields []string
	if op.SelectionSet != nil {
		for _, sel := range op.SelectionSet.Selections {
			if field, ok := sel.(*ast.Field); ok {
				fields = append(fields, field.Name.Value)
			}
		}
	}
	return OperationKind(op.Operation), fields, nil
}

// Subscribe resolves a subscription document to the groups it joins and the
// transform invoked per delivery. The returned transform captures ctx, so a
// subscriber is always resolved against its own operation context.
func (e *Executor) Subscribe(ctx context.Context, query, operationName string, variables map[string]interface{}) ([]string, pubsub.TransformFunc, error) {
	kind, fields, err := e.ClassifyOperation(query, operationName)
	if err != nil {
		return nil, nil, err
	}
	if kind != OperationSubscription {
		return nil, nil, fmt.Errorf("operation is a %s, not a subscription", kind)
	}
	if len(fields) != 1 {
		return nil, nil, errors.New("subscription must select exactly one root field")
	}

	handler, ok := e.subscriptions[fields[0]]
	if !ok {
		return nil, nil, fmt.Errorf("unknown subscription field %q", fields[0])
	}

	groups, err := handler.Subscribe(ctx, variables)
	if err != nil {
		return nil, nil, err
	}
	for _, group := range groups {
		if !pubsub.ValidGroup(group) {
			return nil, nil, pubsub.ErrUnknownGroup
		}
	}

	transform := func(payload pubsub.Payload) (map[string]interface{}, error) {
		return handler.Transform(ctx, variables, payload)
	}
	return groups, transform, nil
}
