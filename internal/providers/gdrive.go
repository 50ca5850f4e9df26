package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	driveBaseURL  = "https://www.googleapis.com/drive/v3"
	googleRevoke  = "https://oauth2.googleapis.com/revoke"
	driveAudioQ   = "mimeType contains 'audio/' and trashed = false"
	drivePageSize = 100
	driveMaxPages = 20
)

// ErrRateLimited is returned when Drive keeps rate limiting after retries.
var ErrRateLimited = errors.New("rate limit exceeded")

// Drive is the Google Drive provider for one user. Connect requires a token
// previously stored by the consent flow.
type Drive struct {
	userID    string
	oauth     *GoogleOAuth
	tokens    TokenStore
	limiter   *rate.Limiter
	baseURL   string
	revokeURL string
	delays    []time.Duration

	mu     sync.Mutex
	client *http.Client
	token  *oauth2.Token
}

var _ Provider = (*Drive)(nil)

// DriveOption configures a Drive.
type DriveOption func(*Drive)

// WithLimiter shares a rate limiter across Drive instances.
func WithLimiter(l *rate.Limiter) DriveOption {
	return func(d *Drive) {
		if l != nil {
			d.limiter = l
		}
	}
}

// WithDriveBaseURL overrides the Drive API base URL.
func WithDriveBaseURL(u string) DriveOption {
	return func(d *Drive) { d.baseURL = u }
}

// WithRevokeURL overrides the token revocation endpoint.
func WithRevokeURL(u string) DriveOption {
	return func(d *Drive) { d.revokeURL = u }
}

// WithRetryDelays sets the backoff between retries of rate-limited calls.
func WithRetryDelays(delays ...time.Duration) DriveOption {
	return func(d *Drive) { d.delays = delays }
}

// NewDrive creates the Google Drive provider for userID.
func NewDrive(userID string, oauth *GoogleOAuth, tokens TokenStore, opts ...DriveOption) *Drive {
	d := &Drive{
		userID:    userID,
		oauth:     oauth,
		tokens:    tokens,
		limiter:   rate.NewLimiter(rate.Limit(5), 1),
		baseURL:   driveBaseURL,
		revokeURL: googleRevoke,
		delays:    []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Drive) Name() Name { return GoogleDrive }

// Connect loads the stored token and verifies it with a quota call.
func (d *Drive) Connect(ctx context.Context) error {
	token, err := d.tokens.Load(ctx, d.userID, GoogleDrive)
	if err != nil {
		return fmt.Errorf("loading token: %w", err)
	}
	if token == nil {
		return ErrAuthorizationRequired
	}

	// A cheap authorized call proves the token still works
	client := d.oauth.Client(d.userID, token)
	if _, err := d.about(ctx, client); err != nil {
		return fmt.Errorf("verifying drive access: %w", err)
	}

	d.mu.Lock()
	d.client = client
	d.token = token
	d.mu.Unlock()
	return nil
}

// Disconnect forgets the client, revokes the token (best effort) and
// deletes it from the store.
func (d *Drive) Disconnect(ctx context.Context) error {
	d.mu.Lock()
	token := d.token
	d.client = nil
	d.token = nil
	d.mu.Unlock()

	// Never connected in this session: fall back to the stored token
	if token == nil {
		stored, err := d.tokens.Load(ctx, d.userID, GoogleDrive)
		if err == nil {
			token = stored
		}
	}
	if token != nil {
		d.revoke(ctx, token)
	}

	if err := d.tokens.Delete(ctx, d.userID, GoogleDrive); err != nil {
		return fmt.Errorf("deleting token: %w", err)
	}
	return nil
}

func (d *Drive) IsConnected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.client != nil
}

func (d *Drive) authed() (*http.Client, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.client == nil {
		return nil, ErrNotConnected
	}
	return d.client, nil
}

// Quota returns the storage usage reported by Drive.
func (d *Drive) Quota(ctx context.Context) (*Quota, error) {
	client, err := d.authed()
	if err != nil {
		return nil, err
	}
	return d.about(ctx, client)
}

// List returns the user's non-trashed audio files.
func (d *Drive) List(ctx context.Context) ([]File, error) {
	client, err := d.authed()
	if err != nil {
		return nil, err
	}

	files := []File{}
	pageToken := ""
	for page := 0; page < driveMaxPages; page++ {
		params := url.Values{
			"q":        {driveAudioQ},
			"fields":   {"nextPageToken,files(id,name,mimeType,size,modifiedTime)"},
			"pageSize": {strconv.Itoa(drivePageSize)},
			"orderBy":  {"modifiedTime desc"},
		}
		if pageToken != "" {
			params.Set("pageToken", pageToken)
		}

		var resp driveFilesResponse
		if err := d.get(ctx, client, "/files", params, &resp); err != nil {
			return nil, fmt.Errorf("listing drive files: %w", err)
		}
		for _, f := range resp.Files {
			files = append(files, f.toFile())
		}
		if resp.NextPageToken == "" {
			break
		}
		pageToken = resp.NextPageToken
	}
	return files, nil
}

func (d *Drive) about(ctx context.Context, client *http.Client) (*Quota, error) {
	var resp driveAboutResponse
	if err := d.get(ctx, client, "/about", url.Values{"fields": {"storageQuota"}}, &resp); err != nil {
		return nil, fmt.Errorf("fetching drive quota: %w", err)
	}
	used, err := parseDriveInt(resp.StorageQuota.Usage)
	if err != nil {
		return nil, fmt.Errorf("parsing usage: %w", err)
	}
	total, err := parseDriveInt(resp.StorageQuota.Limit)
	if err != nil {
		return nil, fmt.Errorf("parsing limit: %w", err)
	}
	return &Quota{Used: used, Total: total}, nil
}

func (d *Drive) revoke(ctx context.Context, token *oauth2.Token) {
	value := token.RefreshToken
	if value == "" {
		value = token.AccessToken
	}
	if value == "" {
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.revokeURL+"?"+url.Values{"token": {value}}.Encode(), nil)
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := d.oauth.httpClient.Do(req)
	if err != nil {
		return
	}
	resp.Body.Close()
}

// get performs a GET request, retrying on rate limits with backoff
// (1s, 2s, 4s by default).
func (d *Drive) get(ctx context.Context, client *http.Client, path string, params url.Values, out any) error {
	reqURL := d.baseURL + path + "?" + params.Encode()

	var lastErr error
	for attempt := 0; attempt <= len(d.delays); attempt++ {
		// Wait before retry (skip on first attempt)
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d.delays[attempt-1]):
			}
		}

		err := d.doSingleRequest(ctx, client, reqURL, out)
		if err == nil {
			return nil
		}
		// Only rate limits are worth retrying
		if errors.Is(err, ErrRateLimited) {
			lastErr = err
			continue
		}

		// Non-retryable error
		return err
	}
	return lastErr
}

func (d *Drive) doSingleRequest(ctx context.Context, client *http.Client, reqURL string, out any) error {
	if err := d.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("waiting for rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}

	// Drive reports rate limits as 429 or as 403 with a reason
	if resp.StatusCode != http.StatusOK {
		var apiErr driveError
		_ = json.Unmarshal(body, &apiErr)
		if resp.StatusCode == http.StatusTooManyRequests || apiErr.rateLimited() {
			return ErrRateLimited
		}
		return fmt.Errorf("drive API error %d: %s", resp.StatusCode, apiErr.Error.Message)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	return nil
}

// Drive API wire types. Int64 fields are encoded as strings.

type driveAboutResponse struct {
	StorageQuota struct {
		Limit string `json:"limit"`
		Usage string `json:"usage"`
	} `json:"storageQuota"`
}

type driveFile struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	MimeType     string    `json:"mimeType"`
	Size         string    `json:"size"`
	ModifiedTime time.Time `json:"modifiedTime"`
}

func (f driveFile) toFile() File {
	size, _ := parseDriveInt(f.Size)
	return File{
		ID:         f.ID,
		Name:       f.Name,
		MimeType:   f.MimeType,
		Size:       size,
		ModifiedAt: f.ModifiedTime,
	}
}

type driveFilesResponse struct {
	NextPageToken string      `json:"nextPageToken"`
	Files         []driveFile `json:"files"`
}

type driveError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Errors  []struct {
			Reason string `json:"reason"`
		} `json:"errors"`
	} `json:"error"`
}

func (e driveError) rateLimited() bool {
	for _, r := range e.Error.Errors {
		if r.Reason == "rateLimitExceeded" || r.Reason == "userRateLimitExceeded" {
			return true
		}
	}
	return false
}

func parseDriveInt(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseInt(s, 10, 64)
}
