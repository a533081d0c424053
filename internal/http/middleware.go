package http

import (
	"context"
	"errors"
	"net/http"

	"thinkpay/internal/auth"
	"thinkpay/internal/ledger"
	tplog "thinkpay/internal/log"
	"thinkpay/internal/services"
)

type contextKey string

const (
	identityKey contextKey = "identity"
	tokenKey    contextKey = "token"
)

type sessionHandler func(w http.ResponseWriter, r *http.Request, s *services.Session)

// authenticated resolves the bearer token to an identity and stores both
// in the request context.
func (s *Server) authenticated(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			UnauthorizedError("missing bearer token").Write(w)
			return
		}
		id, err := s.deps.Auth.CurrentIdentity(r.Context(), token)
		if errors.Is(err, auth.ErrInvalidToken) {
			UnauthorizedError("invalid or expired token").Write(w)
			return
		}
		if err != nil {
			writeError(w, r, err)
			return
		}

		ctx := context.WithValue(r.Context(), identityKey, id)
		ctx = context.WithValue(ctx, tokenKey, token)
		ctx = tplog.IntoContext(ctx, tplog.FromContext(ctx).With(tplog.FieldUserID, id.UserID))
		next(w, r.WithContext(ctx))
	})
}

// withSession is authenticated plus the session of the identity. A token
// whose profile no longer exists is treated as signed out.
func (s *Server) withSession(next sessionHandler) http.Handler {
	return s.authenticated(func(w http.ResponseWriter, r *http.Request) {
		id := identityFrom(r.Context())
		sess, err := s.deps.Sessions.Get(r.Context(), id.UserID)
		if errors.Is(err, ledger.ErrNotFound) {
			UnauthorizedError("identity no longer exists").Write(w)
			return
		}
		if err != nil {
			writeError(w, r, err)
			return
		}
		next(w, r, sess)
	})
}

func identityFrom(ctx context.Context) auth.Identity {
	id, _ := ctx.Value(identityKey).(auth.Identity)
	return id
}

func tokenFrom(ctx context.Context) string {
	t, _ := ctx.Value(tokenKey).(string)
	return t
}
