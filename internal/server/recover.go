package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
)

// RecovererMiddleware turns handler panics into a JSON 500 response.
// http.ErrAbortHandler is re-panicked so net/http can abort the connection.
func RecovererMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rvr := recover()
				if rvr == nil {
					return
				}
				if rvr == http.ErrAbortHandler {
					panic(rvr)
				}

				logger.ErrorContext(r.Context(), "panic recovered",
					slog.String("request_id", GetRequestID(r.Context())),
					slog.String("panic", fmt.Sprint(rvr)),
					slog.String("stack", string(debug.Stack())),
				)

				if r.Header.Get("Connection") != "Upgrade" {
					WriteError(w, r, fmt.Errorf("panic: %v", rvr))
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
