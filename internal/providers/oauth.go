package providers

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"

	"github.com/justestif/coretet/internal/apperr"
)

const (
	oauthStateTTL = 5 * time.Minute

	// DriveScope grants read access to the user's Drive files and quota.
	DriveScope = "https://www.googleapis.com/auth/drive.readonly"
)

// ErrInvalidState is returned when an OAuth callback carries an unknown or
// expired state value.
var ErrInvalidState = errors.New("invalid or expired oauth state")

type pendingAuth struct {
	userID    string
	createdAt time.Time
}

// GoogleOAuth runs the Google consent flow and persists the resulting tokens.
// Pending states are held in memory and expire after five minutes.
type GoogleOAuth struct {
	config     *oauth2.Config
	tokens     TokenStore
	httpClient *http.Client

	mu      sync.Mutex
	pending map[string]pendingAuth
	now     func() time.Time
}

// NewGoogleOAuth creates the consent flow for the given client credentials.
// redirectURL must point at the provider callback route.
func NewGoogleOAuth(clientID, clientSecret, redirectURL string, tokens TokenStore, httpClient *http.Client) *GoogleOAuth {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &GoogleOAuth{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       []string{DriveScope},
			Endpoint:     endpoints.Google,
		},
		tokens:     tokens,
		httpClient: httpClient,
		pending:    make(map[string]pendingAuth),
		now:        time.Now,
	}
}

// Configured reports whether client credentials are present.
func (g *GoogleOAuth) Configured() bool {
	return g.config.ClientID != "" && g.config.ClientSecret != ""
}

// AuthURL starts a consent flow for userID and returns the URL to send the
// user to.
func (g *GoogleOAuth) AuthURL(userID string) (string, error) {
	if !g.Configured() {
		return "", fmt.Errorf("google oauth: %w", apperr.ErrNotImplemented)
	}
	state, err := generateOAuthState()
	if err != nil {
		return "", fmt.Errorf("generating oauth state: %w", err)
	}

	g.mu.Lock()
	g.gcLocked()
	g.pending[state] = pendingAuth{userID: userID, createdAt: g.now()}
	g.mu.Unlock()

	return g.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce), nil
}

// Complete validates state, exchanges code for a token and stores it.
// It returns the user the flow was started for.
func (g *GoogleOAuth) Complete(ctx context.Context, state, code string) (string, error) {
	g.mu.Lock()
	p, ok := g.pending[state]
	delete(g.pending, state)
	g.mu.Unlock()

	if !ok || g.now().Sub(p.createdAt) > oauthStateTTL {
		return "", ErrInvalidState
	}
	if strings.TrimSpace(code) == "" {
		return "", fmt.Errorf("%w: missing authorization code", apperr.ErrValidation)
	}

	token, err := g.config.Exchange(g.clientContext(ctx), code)
	if err != nil {
		return "", fmt.Errorf("%w: exchanging code: %v", apperr.ErrUpstream, err)
	}
	if err := g.tokens.Save(ctx, p.userID, GoogleDrive, token); err != nil {
		return "", fmt.Errorf("%w: saving token: %v", apperr.ErrUpstream, err)
	}
	return p.userID, nil
}

// Client returns an HTTP client that authorizes with token and refreshes it
// as needed, writing refreshed tokens back to the store.
func (g *GoogleOAuth) Client(userID string, token *oauth2.Token) *http.Client {
	// Refreshes outlive any single request, so they use a background context.
	ctx := g.clientContext(context.Background())
	src := &persistingTokenSource{
		base:   g.config.TokenSource(ctx, token),
		tokens: g.tokens,
		userID: userID,
		last:   token.AccessToken,
	}
	client := oauth2.NewClient(ctx, oauth2.ReuseTokenSource(token, src))
	client.Timeout = g.httpClient.Timeout
	return client
}

func (g *GoogleOAuth) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, g.httpClient)
}

func (g *GoogleOAuth) gcLocked() {
	now := g.now()
	for state, p := range g.pending {
		if now.Sub(p.createdAt) > oauthStateTTL {
			delete(g.pending, state)
		}
	}
}

// persistingTokenSource saves each newly minted token.
type persistingTokenSource struct {
	base   oauth2.TokenSource
	tokens TokenStore
	userID string

	mu   sync.Mutex
	last string
}

func (s *persistingTokenSource) Token() (*oauth2.Token, error) {
	token, err := s.base.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if token.AccessToken != s.last {
		s.last = token.AccessToken
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.tokens.Save(ctx, s.userID, GoogleDrive, token); err != nil {
			return nil, fmt.Errorf("saving refreshed token: %w", err)
		}
	}
	return token, nil
}

// generateOAuthState creates a random state string for OAuth.
func generateOAuthState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
