package workflow

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/tjfontaine/workflow-gateway/internal/domain"
)

// Registry maps workflow slugs to webhook URLs. It is immutable after
// construction and safe for concurrent use without locking.
type Registry struct {
	routes map[string]string
}

// NewRegistry validates and copies the slug to URL mapping.
func NewRegistry(webhooks map[string]string) (*Registry, error) {
	routes := make(map[string]string, len(webhooks))
	for slug, raw := range webhooks {
		if slug == "" {
			return nil, fmt.Errorf("webhook registry: empty slug")
		}
		// "." is the config key delimiter.
		if strings.Contains(slug, ".") {
			return nil, fmt.Errorf("webhook registry: slug %q must not contain \".\"", slug)
		}
		u, err := url.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("webhook registry: slug %q: %w", slug, err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return nil, fmt.Errorf("webhook registry: slug %q: unsupported scheme %q", slug, u.Scheme)
		}
		if u.Host == "" {
			return nil, fmt.Errorf("webhook registry: slug %q: missing host", slug)
		}
		routes[slug] = raw
	}
	return &Registry{routes: routes}, nil
}

// Resolve returns the webhook URL for slug using an exact, case-sensitive
// match. Unknown slugs yield a not-found APIError.
func (r *Registry) Resolve(slug string) (string, error) {
	target, ok := r.routes[slug]
	if !ok {
		return "", domain.ErrNotFound(fmt.Sprintf("Workflow '%s' not found", slug))
	}
	return target, nil
}

// Has reports whether slug is registered.
func (r *Registry) Has(slug string) bool {
	_, ok := r.routes[slug]
	return ok
}

// Slugs returns the registered slugs in sorted order.
func (r *Registry) Slugs() []string {
	slugs := make([]string, 0, len(r.routes))
	for slug := range r.routes {
		slugs = append(slugs, slug)
	}
	sort.Strings(slugs)
	return slugs
}

// Len returns the number of registered workflows.
func (r *Registry) Len() int {
	return len(r.routes)
}
