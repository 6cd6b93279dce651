package clients

import (
	"net/http"

	"golang.org/x/oauth2"
)

// bearerSource returns a token source for the orchestrator-issued access
// token, or nil when none is configured. The token is never refreshed here.
func bearerSource(accessToken string) oauth2.TokenSource {
	if accessToken == "" {
		return nil
	}
	return oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	})
}

// authorize sets the Authorization header on req. The header lives on the
// request rather than in the transport, so net/http drops it when a redirect
// leaves the original host.
func authorize(req *http.Request, src oauth2.TokenSource) error {
	if src == nil {
		return nil
	}
	tok, err := src.Token()
	if err != nil {
		return err
	}
	tok.SetAuthHeader(req)
	return nil
}
