package middleware

import "context"

type contextKey string

const (
	ctxAccountID    contextKey = "account_id"
	ctxAccountEmail contextKey = "account_email"
)

func WithAccountID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, ctxAccountID, id)
}

func AccountIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(ctxAccountID).(int64)
	return id, ok
}

func WithAccountEmail(ctx context.Context, email string) context.Context {
	return context.WithValue(ctx, ctxAccountEmail, email)
}

func AccountEmailFromContext(ctx context.Context) (string, bool) {
	email, ok := ctx.Value(ctxAccountEmail).(string)
	return email, ok
}
