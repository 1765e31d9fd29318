// Package auth defines the request-scoped authentication context built once
// by the authorization middleware. Handlers receive their identity and
// credentials only through this value, never from the raw request.
package auth

// Context is the immutable credential bundle for one authorized request.
type Context struct {
	Subject      string
	AccessToken  string
	RefreshToken string
	IDToken      string
	Brand        string
	roles        []string
}

// NewContext copies roles so later mutation of the source slice cannot leak
// into the request.
func NewContext(subject, accessToken, refreshToken, idToken, brand string, roles []string) *Context {
	copied := make([]string, len(roles))
	copy(copied, roles)
	return &Context{
		Subject:      subject,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		IDToken:      idToken,
		Brand:        brand,
		roles:        copied,
	}
}

// Roles returns a defensive copy of the caller's role set.
func (c *Context) Roles() []string {
	out := make([]string, len(c.roles))
	copy(out, c.roles)
	return out
}

// HasRole reports membership of one role.
func (c *Context) HasRole(role string) bool {
	for _, have := range c.roles {
		if have == role {
			return true
		}
	}
	return false
}
