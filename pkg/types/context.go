package types

import "context"

type contextKey int

const (
	userKey contextKey = iota
	domainKey
)

// WithUser returns a context carrying the acting user.
func WithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userKey, u)
}

// UserFromContext returns the acting user, or nil when none is set.
func UserFromContext(ctx context.Context) *User {
	u, _ := ctx.Value(userKey).(*User)
	return u
}

// RequireUser returns the acting user or ErrNoUser.
func RequireUser(ctx context.Context) (*User, error) {
	u := UserFromContext(ctx)
	if u == nil {
		return nil, ErrNoUser
	}
	return u, nil
}

// WithDomain returns a context carrying the current domain, used by the
// license gate.
func WithDomain(ctx context.Context, domain string) context.Context {
	return context.WithValue(ctx, domainKey, domain)
}

// DomainFromContext returns the current domain or "".
func DomainFromContext(ctx context.Context) string {
	d, _ := ctx.Value(domainKey).(string)
	return d
}
