package contentapi

import (
	"context"
	"errors"
	"fmt"

	"github.com/geopulse/harvester/pkg/common/logger"
	"github.com/geopulse/harvester/pkg/settings"
	"golang.org/x/oauth2"
)

// ExchangeToken trades the persisted authorization code for a bearer token
// and stores it in settings for subsequent API calls.
func (c *Client) ExchangeToken(ctx context.Context) (string, error) {
	code, err := c.settings.Get(ctx, settings.KeyAPICode)
	if err != nil {
		return "", fmt.Errorf("reading authorization code: %w", err)
	}

	conf := &oauth2.Config{
		ClientID:     c.clientID,
		ClientSecret: c.clientSecret,
		RedirectURL:  c.redirectURL,
		Scopes:       []string{"public_content"},
		Endpoint: oauth2.Endpoint{
			AuthURL:  c.baseURL + "/oauth/authorize",
			TokenURL: c.baseURL + "/oauth/access_token",
		},
	}

	logger.Log.Info("exchanging authorization code for access token")
	exchangeCtx := context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	token, err := conf.Exchange(exchangeCtx, code)

	// A RetrieveError means the token endpoint answered, so the call still
	// counts against the quota.
	var retrieveErr *oauth2.RetrieveError
	if err == nil || errors.As(err, &retrieveErr) {
		if recErr := c.quota.RecordCall(ctx); recErr != nil {
			logger.Log.WithError(recErr).Warn("failed to record quota entry")
		}
	}
	if err != nil {
		return "", fmt.Errorf("token exchange: %w", err)
	}

	if err := c.settings.Set(ctx, settings.KeyAccessToken, token.AccessToken); err != nil {
		return "", fmt.Errorf("storing access token: %w", err)
	}

	logger.Log.Info("access token obtained and stored")
	return token.AccessToken, nil
}
