package shared

import "context"

type sessionKey struct{}

// ContextWithSession returns ctx carrying sess.
func ContextWithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, sess)
}

// SessionFromContext returns the request's session, or nil outside the
// session middleware. Session methods used by handlers tolerate nil.
func SessionFromContext(ctx context.Context) *Session {
	if sess, ok := ctx.Value(sessionKey{}).(*Session); ok {
		return sess
	}
	return nil
}
