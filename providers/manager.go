package providers

import (
	"context"
	"fmt"
	"time"

	"mailbridge/models"
)

// TokenProvider supplies OAuth access tokens for REST-backed accounts. Token
// refresh is owned by this collaborator; clients react to expired-token
// errors instead of retrying with stale credentials. An exhausted or revoked
// refresh token surfaces as EmptyRefreshTokenError.
type TokenProvider interface {
	AccessToken(ctx context.Context, account *models.Account) (string, error)
}

// ClientFactory builds protocol clients per unit of work. Services depend on
// this rather than the concrete Manager so tests can substitute fakes.
type ClientFactory interface {
	CreateClient(ctx context.Context, account *models.Account) (Client, error)
}

// defaultTimeout bounds every dial and request a client makes.
const defaultTimeout = 30 * time.Second

// Manager constructs the protocol client matching an account's connection
// type. Clients are built fresh per logical unit of work and never cached:
// a token can be invalidated between two requests, and a cached client
// would keep authenticating with stale credentials.
type Manager struct {
	tokens  TokenProvider
	timeout time.Duration
}

// NewManager creates a client manager backed by the given token provider.
func NewManager(tokens TokenProvider) *Manager {
	return &Manager{tokens: tokens, timeout: defaultTimeout}
}

// CreateClient returns a client bound to the account for one unit of work.
func (m *Manager) CreateClient(ctx context.Context, account *models.Account) (Client, error) {
	switch account.ConnectionType {
	case models.ConnectionIMAP:
		settings, err := account.IMAPSettings()
		if err != nil {
			return nil, &ValidationError{Message: fmt.Sprintf("invalid IMAP credentials for %s: %v", account.Email, err)}
		}
		return newIMAPClient(settings, m.timeout)
	case models.ConnectionGmail:
		token, err := m.tokens.AccessToken(ctx, account)
		if err != nil {
			return nil, translateTokenErr(account, err)
		}
		return newGmailClient(ctx, token, m.timeout)
	case models.ConnectionOutlook:
		token, err := m.tokens.AccessToken(ctx, account)
		if err != nil {
			return nil, translateTokenErr(account, err)
		}
		return newOutlookClient(token, m.timeout), nil
	default:
		return nil, &ValidationError{Message: fmt.Sprintf("unknown connection type %q", account.ConnectionType)}
	}
}

// translateTokenErr maps token provider failures into the taxonomy. A
// provider that cannot refresh reports that directly; anything network-like
// stays retryable.
func translateTokenErr(account *models.Account, err error) error {
	if IsEmptyRefreshToken(err) {
		return err
	}
	if isNetworkErr(err) {
		return connErr("token refresh", err)
	}
	return &EmptyRefreshTokenError{Email: account.Email}
}
