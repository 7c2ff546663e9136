package types

import "context"

type ActorType string

const ActorTypeUser ActorType = "user"

// Actor is a signed-in caller as resolved from a session token. ID is the
// identity provider's subject and matches profiles.user_id.
type Actor struct {
	ID        string
	Type      ActorType
	Email     string
	SessionID string
}

type ctxKey int

const (
	actorKey ctxKey = iota
	requestIDKey
)

func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// GetActor reports the caller attached by the auth middleware, if any.
func GetActor(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorKey).(Actor)
	return actor, ok
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// GetRequestID returns "" outside an HTTP request.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
