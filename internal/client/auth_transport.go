package client

import (
	"net/http"

	"github.com/wolfeidau/planpoker/internal/auth"
)

// authTransport adds the caller identity to every request.
type authTransport struct {
	base     http.RoundTripper
	token    string
	userID   string
	userName string
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())

	if t.token != "" {
		req.Header.Set("Authorization", "Bearer "+t.token)
	}
	if t.userID != "" {
		req.Header.Set(auth.HeaderUserID, t.userID)
	}
	if t.userName != "" {
		req.Header.Set(auth.HeaderUserName, t.userName)
	}

	return t.base.RoundTrip(req)
}
