package providers

import (
	"context"
	"encoding/json"

	"golang.org/x/oauth2"

	"mailbridge/models"
)

// OAuthEndpoint names one OAuth application the service exchanges refresh
// tokens against.
type OAuthEndpoint struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
}

// OAuthCredentials is the credentials payload stored on REST-backed
// accounts.
type OAuthCredentials struct {
	RefreshToken string `json:"refresh_token"`
}

// OAuthTokenProvider exchanges stored refresh tokens for short-lived access
// tokens through golang.org/x/oauth2. It keeps no token cache; the oauth2
// transport already reuses tokens within one client's lifetime, and clients
// are single-use.
type OAuthTokenProvider struct {
	google    OAuthEndpoint
	microsoft OAuthEndpoint
}

func NewOAuthTokenProvider(google, microsoft OAuthEndpoint) *OAuthTokenProvider {
	return &OAuthTokenProvider{google: google, microsoft: microsoft}
}

// AccessToken exchanges the account's refresh token for an access token. A
// missing or rejected refresh token surfaces as EmptyRefreshTokenError so
// the sync service can stop the account.
func (p *OAuthTokenProvider) AccessToken(ctx context.Context, account *models.Account) (string, error) {
	var creds OAuthCredentials
	if err := json.Unmarshal([]byte(account.Credentials), &creds); err != nil {
		return "", &ValidationError{Message: "malformed account credentials: " + err.Error()}
	}
	if creds.RefreshToken == "" {
		return "", &EmptyRefreshTokenError{Email: account.Email}
	}

	var ep OAuthEndpoint
	switch account.ConnectionType {
	case models.ConnectionGmail:
		ep = p.google
	case models.ConnectionOutlook:
		ep = p.microsoft
	default:
		return "", &ValidationError{Message: "account type does not use OAuth tokens"}
	}

	conf := &oauth2.Config{
		ClientID:     ep.ClientID,
		ClientSecret: ep.ClientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: ep.TokenURL},
	}

	token, err := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: creds.RefreshToken}).Token()
	if err != nil {
		if isNetworkErr(err) {
			return "", connErr("token refresh", err)
		}
		return "", &EmptyRefreshTokenError{Email: account.Email}
	}

	return token.AccessToken, nil
}
