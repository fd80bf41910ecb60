package transport

import "net/http"

// Authenticator applies credentials to outgoing requests.
type Authenticator interface {
	Apply(req *http.Request)
}

// NoAuth implements no authentication.
type NoAuth struct{}

// Apply implements the Authenticator interface for NoAuth.
func (a *NoAuth) Apply(_ *http.Request) {}

// BearerAuth sends "Authorization: Bearer <token>".
type BearerAuth struct {
	Token string
}

// Apply implements the Authenticator interface for BearerAuth.
func (a *BearerAuth) Apply(req *http.Request) {
	if a.Token != "" {
		req.Header.Set("Authorization", "Bearer "+a.Token)
	}
}

// HeaderAuth sends a value in a custom header, such as the relay's shared
// secret or admin key.
type HeaderAuth struct {
	Header string
	Value  string
}

// Apply implements the Authenticator interface for HeaderAuth.
func (a *HeaderAuth) Apply(req *http.Request) {
	if a.Header != "" && a.Value != "" {
		req.Header.Set(a.Header, a.Value)
	}
}

// MultiAuth applies each authenticator in order.
type MultiAuth []Authenticator

// Apply implements the Authenticator interface for MultiAuth.
func (m MultiAuth) Apply(req *http.Request) {
	for _, a := range m {
		if a != nil {
			a.Apply(req)
		}
	}
}
