package auth

import "context"

// ctxKey is an unexported type for context keys defined in this package.
type ctxKey string

const identityKey ctxKey = "identity"

// WithIdentity stores the authenticated account id on the context.
func WithIdentity(ctx context.Context, accountID string) context.Context {
	if ctx == nil || accountID == "" {
		return ctx
	}
	return context.WithValue(ctx, identityKey, accountID)
}

// IdentityFromContext returns the authenticated account id and whether the
// request carries one.
func IdentityFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	accountID, ok := ctx.Value(identityKey).(string)
	if !ok || accountID == "" {
		return "", false
	}
	return accountID, true
}
