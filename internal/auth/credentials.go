package auth

import "net/http"

// Credentials are attached by the admin client to every API request.
// An API key takes precedence over basic credentials.
type Credentials struct {
	APIKey   string
	Username string
	Password string
}

// IsZero reports whether no credentials are configured.
func (c Credentials) IsZero() bool {
	return c.APIKey == "" && c.Username == ""
}

// Apply sets the authentication headers on req.
func (c Credentials) Apply(req *http.Request) {
	switch {
	case c.APIKey != "":
		req.Header.Set(APIKeyHeader, c.APIKey)
	case c.Username != "":
		req.SetBasicAuth(c.Username, c.Password)
	}
}

// Header returns the authentication headers, for transports that take
// headers up front (the websocket dialer).
func (c Credentials) Header() http.Header {
	req := &http.Request{Header: make(http.Header)}
	c.Apply(req)
	return req.Header
}
