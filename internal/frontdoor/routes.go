package frontdoor

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tjfontaine/workflow-gateway/internal/server"
)

// Mount registers regs on r. Authenticated routes are guarded by
// server.RequireCaller ahead of rateLimit, so refused callers never spend
// budget. A nil rateLimit leaves RateLimited routes unwrapped.
func Mount(r chi.Router, regs []HandlerRegistration, rateLimit func(http.Handler) http.Handler) {
	for _, reg := range regs {
		var h http.Handler = reg.Handler
		if reg.RateLimited && rateLimit != nil {
			h = rateLimit(h)
		}
		if reg.Authenticated {
			h = server.RequireCaller(h)
		}

		method := reg.Method
		if method == "" {
			method = http.MethodPost
		}
		r.Method(method, reg.Path, h)
	}
}
