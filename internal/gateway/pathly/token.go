package pathly

import (
	"context"
	"time"

	ierr "github.com/paybridge/paybridge/internal/errors"
	"github.com/paybridge/paybridge/internal/gateway/token"
	"github.com/paybridge/paybridge/internal/httpclient"
)

// sharedTokens is the process-wide token store for the Pathly gateway
// type. All adapter instances share it unless a test injects its own.
var sharedTokens = token.NewStore(nil)

type tokenResponse struct {
	Data struct {
		Token string `json:"token"`
		// ExpiresIn is declared by the server in seconds.
		ExpiresIn int64 `json:"expires_in"`
	} `json:"data"`
}

func (g *Gateway) bearerToken(ctx context.Context) (*token.Token, error) {
	return g.tokens.Fetch(ctx, g.cfg.SecretKey, g.fetchToken)
}

func (g *Gateway) fetchToken(ctx context.Context) (*token.Token, error) {
	payload, err := json.Marshal(map[string]string{
		"merchant_id": g.cfg.MerchantID,
		"key":         g.cfg.SecretKey,
	})
	if err != nil {
		return nil, ierr.WithError(err).Mark(ierr.ErrInternal)
	}

	resp, err := g.client.Send(ctx, &httpclient.Request{
		Method: "POST",
		URL:    g.baseURL() + "/jwt/token",
		Headers: map[string]string{
			"Accept": "application/json",
		},
		Body: payload,
	})
	if err != nil {
		if httpErr, ok := httpclient.IsHTTPError(err); ok {
			return nil, ierr.NewError("pathly login rejected").
				WithHintf("Authentication endpoint returned status %d", httpErr.StatusCode).
				Mark(ierr.ErrAuthentication)
		}
		return nil, err
	}

	var parsed tokenResponse
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Pathly returned a malformed authentication response").
			Mark(ierr.ErrAuthentication)
	}
	if parsed.Data.Token == "" {
		return nil, ierr.NewError("pathly login returned no token").
			Mark(ierr.ErrAuthentication)
	}

	g.logger.Infow("authenticated with pathly",
		"expires_in_seconds", parsed.Data.ExpiresIn)

	return &token.Token{
		Value:     parsed.Data.Token,
		ExpiresAt: time.Now().Add(time.Duration(parsed.Data.ExpiresIn) * time.Second),
	}, nil
}
