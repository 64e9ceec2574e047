package server

import (
	"errors"
	"net/http"

	"github.com/tjfontaine/workflow-gateway/internal/auth"
	"github.com/tjfontaine/workflow-gateway/internal/domain"
)

// Caller-facing auth messages.
const (
	MessageInvalidCredentials = "Invalid credentials"
	MessageNotAuthenticated   = "Authentication credentials were not provided."
)

// AuthMiddleware resolves the bearer credential into a caller and injects it
// into the request context. Requests without an Authorization header proceed
// as anonymous; a presented credential that fails validation is rejected
// with 401. A nil authenticator treats every request as anonymous.
func AuthMiddleware(authenticator *auth.Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if authenticator == nil {
				next.ServeHTTP(w, r.WithContext(auth.ContextWithCaller(r.Context(), domain.Anonymous())))
				return
			}

			credential, err := auth.ExtractBearer(r)
			if errors.Is(err, auth.ErrNoCredentials) {
				next.ServeHTTP(w, r.WithContext(auth.ContextWithCaller(r.Context(), domain.Anonymous())))
				return
			}
			if err != nil {
				rejectCredentials(w, r, err)
				return
			}

			caller, err := authenticator.Authenticate(credential)
			if err != nil {
				rejectCredentials(w, r, err)
				return
			}

			AddLogField(r.Context(), "user_id", caller.ID)
			next.ServeHTTP(w, r.WithContext(auth.ContextWithCaller(r.Context(), caller)))
		})
	}
}

func rejectCredentials(w http.ResponseWriter, r *http.Request, cause error) {
	AddLogField(r.Context(), "auth_error", cause.Error())
	w.Header().Set("WWW-Authenticate", `Bearer realm="workflow-gateway"`)
	WriteError(w, r, domain.ErrAuthentication(MessageInvalidCredentials))
}

// RequireCaller rejects anonymous callers with 403.
func RequireCaller(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !auth.CallerFromContext(r.Context()).Authenticated {
			WriteError(w, r, domain.ErrPermission(MessageNotAuthenticated))
			return
		}
		next.ServeHTTP(w, r)
	})
}
