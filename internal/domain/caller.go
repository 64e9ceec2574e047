package domain

// AnonymousName is the display name used for unauthenticated callers.
const AnonymousName = "anonymous"

// DefaultEmail is reported by /me for callers without an email address.
const DefaultEmail = "user@example.com"

// Caller is the identity attached to an inbound request.
type Caller struct {
	Authenticated bool
	ID            string
	Name          string
	Email         string
}

// Anonymous returns the caller used when no credentials were presented.
func Anonymous() Caller {
	return Caller{Name: AnonymousName}
}

// UserID returns the caller id, or nil for anonymous callers.
func (c Caller) UserID() *string {
	if !c.Authenticated {
		return nil
	}
	id := c.ID
	return &id
}

// UserName returns the caller display name, or "anonymous".
func (c Caller) UserName() string {
	if !c.Authenticated {
		return AnonymousName
	}
	return c.Name
}

// EmailOrDefault returns the caller email, or a placeholder when none is set.
func (c Caller) EmailOrDefault() string {
	if c.Email == "" {
		return DefaultEmail
	}
	return c.Email
}
