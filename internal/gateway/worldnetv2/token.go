package worldnetv2

import (
	"context"
	"time"

	ierr "github.com/paybridge/paybridge/internal/errors"
	"github.com/paybridge/paybridge/internal/gateway/token"
	"github.com/paybridge/paybridge/internal/httpclient"
)

// sharedTokens is the process-wide token store for the WorldNet gateway
// type. All adapter instances share it unless a test injects its own.
var sharedTokens = token.NewStore(nil)

type authenticateResponse struct {
	Token            string   `json:"token"`
	AllowedTerminals []string `json:"allowedTerminals"`
	// ExpiresIn is declared by the server in hours.
	ExpiresIn int `json:"expiresIn"`
}

func (g *Gateway) bearerToken(ctx context.Context) (*token.Token, error) {
	return g.tokens.Fetch(ctx, g.cfg.MerchantAPIKey, g.fetchToken)
}

// fetchToken performs the login call. On success the caller stores the
// result; on failure nothing is cached, so a later call retries the login.
func (g *Gateway) fetchToken(ctx context.Context) (*token.Token, error) {
	resp, err := g.client.Send(ctx, &httpclient.Request{
		Method: "GET",
		URL:    g.baseURL() + "/account/authenticate",
		Headers: map[string]string{
			"Accept":        "application/json",
			"Authorization": "Basic " + g.cfg.MerchantAPIKey,
		},
	})
	if err != nil {
		if httpErr, ok := httpclient.IsHTTPError(err); ok {
			return nil, ierr.NewError("worldnet login rejected").
				WithHintf("Authentication endpoint returned status %d", httpErr.StatusCode).
				Mark(ierr.ErrAuthentication)
		}
		return nil, err
	}

	var parsed authenticateResponse
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		return nil, ierr.WithError(err).
			WithHint("WorldNet returned a malformed authentication response").
			Mark(ierr.ErrAuthentication)
	}
	if parsed.Token == "" {
		return nil, ierr.NewError("worldnet login returned no token").
			Mark(ierr.ErrAuthentication)
	}
	if len(parsed.AllowedTerminals) == 0 || parsed.AllowedTerminals[0] == "" {
		// Fatal for this credential; do not retry in a loop.
		return nil, ierr.NewError("worldnet login returned no terminal").
			WithHint("The merchant account has no allowed terminals").
			Mark(ierr.ErrTerminalMissing)
	}

	g.logger.Infow("authenticated with worldnet",
		"terminal", parsed.AllowedTerminals[0],
		"expires_in_hours", parsed.ExpiresIn)

	return &token.Token{
		Value:     parsed.Token,
		Terminal:  parsed.AllowedTerminals[0],
		ExpiresAt: time.Now().Add(time.Duration(parsed.ExpiresIn) * time.Hour),
	}, nil
}
