package providers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

type googleFake struct {
	srv         *httptest.Server
	aboutCalls  atomic.Int32
	rateLimited atomic.Int32 // number of about calls to reject with 429
	revoked     atomic.Value
	lastAuth    atomic.Value
}

func newGoogleFake(t *testing.T) *googleFake {
	t.Helper()
	g := &googleFake{}
	mux := http.NewServeMux()

	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		w.Header().Set("Content-Type", "application/json")
		switch r.Form.Get("grant_type") {
		case "authorization_code":
			if r.Form.Get("code") != "good-code" {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
				return
			}
			_, _ = w.Write([]byte(`{"access_token":"exchanged","token_type":"Bearer","refresh_token":"r1","expires_in":3600}`))
		case "refresh_token":
			_, _ = w.Write([]byte(`{"access_token":"fresh","token_type":"Bearer","expires_in":3600}`))
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	})

	mux.HandleFunc("/drive/about", func(w http.ResponseWriter, r *http.Request) {
		g.aboutCalls.Add(1)
		g.lastAuth.Store(r.Header.Get("Authorization"))
		if r.Header.Get("Authorization") == "Bearer revoked" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":{"code":401,"message":"Invalid Credentials"}}`))
			return
		}
		if g.rateLimited.Load() > 0 {
			g.rateLimited.Add(-1)
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"error":{"code":403,"message":"slow down","errors":[{"reason":"userRateLimitExceeded"}]}}`))
			return
		}
		_, _ = w.Write([]byte(`{"storageQuota":{"limit":"1000","usage":"250"}}`))
	})

	mux.HandleFunc("/drive/files", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("q") != driveAudioQ {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if r.URL.Query().Get("pageToken") == "" {
			_, _ = w.Write([]byte(`{"nextPageToken":"p2","files":[{"id":"f1","name":"a.mp3","mimeType":"audio/mpeg","size":"100","modifiedTime":"2024-01-02T03:04:05Z"}]}`))
			return
		}
		_, _ = w.Write([]byte(`{"files":[{"id":"f2","name":"b.wav","mimeType":"audio/wav","size":"200"}]}`))
	})

	mux.HandleFunc("/revoke", func(w http.ResponseWriter, r *http.Request) {
		g.revoked.Store(r.URL.Query().Get("token"))
	})

	g.srv = httptest.NewServer(mux)
	t.Cleanup(g.srv.Close)
	return g
}

func (g *googleFake) oauth(tokens TokenStore) *GoogleOAuth {
	o := NewGoogleOAuth("client-id", "client-secret", g.srv.URL+"/providers/google_drive/callback", tokens, g.srv.Client())
	o.config.Endpoint = oauth2.Endpoint{
		AuthURL:   g.srv.URL + "/auth",
		TokenURL:  g.srv.URL + "/token",
		AuthStyle: oauth2.AuthStyleInParams,
	}
	return o
}

func (g *googleFake) drive(userID string, o *GoogleOAuth, tokens TokenStore) *Drive {
	return NewDrive(userID, o, tokens,
		WithDriveBaseURL(g.srv.URL+"/drive"),
		WithRevokeURL(g.srv.URL+"/revoke"),
		WithRetryDelays(time.Millisecond, time.Millisecond),
		WithLimiter(rate.NewLimiter(rate.Inf, 1)),
	)
}

func TestDrive_ConnectRequiresToken(t *testing.T) {
	g := newGoogleFake(t)
	tokens := NewFileTokenStore(t.TempDir())
	d := g.drive("u1", g.oauth(tokens), tokens)

	err := d.Connect(context.Background())
	if !errors.Is(err, ErrAuthorizationRequired) {
		t.Fatalf("Connect() error = %v, want ErrAuthorizationRequired", err)
	}
	if d.IsConnected() {
		t.Error("IsConnected() = true after failed connect")
	}
}

func TestDrive_QuotaAndList(t *testing.T) {
	g := newGoogleFake(t)
	tokens := NewFileTokenStore(t.TempDir())
	ctx := context.Background()
	_ = tokens.Save(ctx, "u1", GoogleDrive, &oauth2.Token{
		AccessToken: "tok", TokenType: "Bearer", Expiry: time.Now().Add(time.Hour),
	})
	d := g.drive("u1", g.oauth(tokens), tokens)

	if _, err := d.Quota(ctx); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Quota() before connect error = %v, want ErrNotConnected", err)
	}

	if err := d.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if got := g.lastAuth.Load(); got != "Bearer tok" {
		t.Errorf("Authorization = %v, want Bearer tok", got)
	}

	q, err := d.Quota(ctx)
	if err != nil {
		t.Fatalf("Quota() error = %v", err)
	}
	if q.Used != 250 || q.Total != 1000 {
		t.Errorf("Quota() = %+v", q)
	}

	files, err := d.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(files) != 2 || files[0].ID != "f1" || files[1].Size != 200 {
		t.Errorf("List() = %+v", files)
	}
	if !files[0].ModifiedAt.Equal(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)) {
		t.Errorf("ModifiedAt = %v", files[0].ModifiedAt)
	}
}

func TestDrive_ConnectRejectsBadToken(t *testing.T) {
	g := newGoogleFake(t)
	tokens := NewFileTokenStore(t.TempDir())
	ctx := context.Background()
	_ = tokens.Save(ctx, "u1", GoogleDrive, &oauth2.Token{
		AccessToken: "revoked", TokenType: "Bearer", Expiry: time.Now().Add(time.Hour),
	})
	d := g.drive("u1", g.oauth(tokens), tokens)

	if err := d.Connect(ctx); err == nil {
		t.Fatal("Connect() with a rejected token should fail")
	}
	if d.IsConnected() {
		t.Error("IsConnected() = true")
	}
}

func TestDrive_RetriesRateLimit(t *testing.T) {
	g := newGoogleFake(t)
	tokens := NewFileTokenStore(t.TempDir())
	ctx := context.Background()
	_ = tokens.Save(ctx, "u1", GoogleDrive, &oauth2.Token{
		AccessToken: "tok", TokenType: "Bearer", Expiry: time.Now().Add(time.Hour),
	})
	d := g.drive("u1", g.oauth(tokens), tokens)

	g.rateLimited.Store(2)
	if err := d.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if calls := g.aboutCalls.Load(); calls != 3 {
		t.Errorf("about calls = %d, want 3", calls)
	}

	g.rateLimited.Store(10)
	if _, err := d.Quota(ctx); !errors.Is(err, ErrRateLimited) {
		t.Errorf("Quota() error = %v, want ErrRateLimited", err)
	}
}

func TestDrive_RefreshPersistsToken(t *testing.T) {
	g := newGoogleFake(t)
	tokens := NewFileTokenStore(t.TempDir())
	ctx := context.Background()
	_ = tokens.Save(ctx, "u1", GoogleDrive, &oauth2.Token{
		AccessToken:  "stale",
		TokenType:    "Bearer",
		RefreshToken: "r1",
		Expiry:       time.Now().Add(-time.Hour),
	})
	d := g.drive("u1", g.oauth(tokens), tokens)

	if err := d.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if got := g.lastAuth.Load(); got != "Bearer fresh" {
		t.Errorf("Authorization = %v, want Bearer fresh", got)
	}

	stored, err := tokens.Load(ctx, "u1", GoogleDrive)
	if err != nil || stored == nil {
		t.Fatalf("Load() = %v, %v", stored, err)
	}
	if stored.AccessToken != "fresh" {
		t.Errorf("stored AccessToken = %q, want fresh", stored.AccessToken)
	}
}

func TestDrive_Disconnect(t *testing.T) {
	g := newGoogleFake(t)
	tokens := NewFileTokenStore(t.TempDir())
	ctx := context.Background()
	_ = tokens.Save(ctx, "u1", GoogleDrive, &oauth2.Token{
		AccessToken: "tok", RefreshToken: "r1", TokenType: "Bearer", Expiry: time.Now().Add(time.Hour),
	})
	d := g.drive("u1", g.oauth(tokens), tokens)

	if err := d.Connect(ctx); err != nil {
		t.Fatal(err)
	}
	if err := d.Disconnect(ctx); err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}
	if d.IsConnected() {
		t.Error("IsConnected() = true after Disconnect()")
	}
	if got := g.revoked.Load(); got != "r1" {
		t.Errorf("revoked token = %v, want r1", got)
	}
	if tok, _ := tokens.Load(ctx, "u1", GoogleDrive); tok != nil {
		t.Error("token still stored after Disconnect()")
	}
}

func TestGoogleOAuth_Flow(t *testing.T) {
	g := newGoogleFake(t)
	tokens := NewFileTokenStore(t.TempDir())
	o := g.oauth(tokens)
	ctx := context.Background()

	raw, err := o.AuthURL("u1")
	if err != nil {
		t.Fatalf("AuthURL() error = %v", err)
	}
	u, _ := url.Parse(raw)
	state := u.Query().Get("state")
	if state == "" {
		t.Fatal("auth url has no state")
	}
	if u.Query().Get("access_type") != "offline" {
		t.Errorf("access_type = %q, want offline", u.Query().Get("access_type"))
	}
	if u.Query().Get("scope") != DriveScope {
		t.Errorf("scope = %q", u.Query().Get("scope"))
	}

	userID, err := o.Complete(ctx, state, "good-code")
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if userID != "u1" {
		t.Errorf("Complete() user = %q, want u1", userID)
	}

	tok, _ := tokens.Load(ctx, "u1", GoogleDrive)
	if tok == nil || tok.AccessToken != "exchanged" {
		t.Errorf("stored token = %+v", tok)
	}

	// States are single use.
	if _, err := o.Complete(ctx, state, "good-code"); !errors.Is(err, ErrInvalidState) {
		t.Errorf("reused state error = %v, want ErrInvalidState", err)
	}
}

func TestGoogleOAuth_ExpiredState(t *testing.T) {
	g := newGoogleFake(t)
	o := g.oauth(NewFileTokenStore(t.TempDir()))

	raw, _ := o.AuthURL("u1")
	u, _ := url.Parse(raw)

	o.now = func() time.Time { return time.Now().Add(10 * time.Minute) }
	if _, err := o.Complete(context.Background(), u.Query().Get("state"), "good-code"); !errors.Is(err, ErrInvalidState) {
		t.Errorf("error = %v, want ErrInvalidState", err)
	}
}

func TestGoogleOAuth_BadCode(t *testing.T) {
	g := newGoogleFake(t)
	o := g.oauth(NewFileTokenStore(t.TempDir()))

	raw, _ := o.AuthURL("u1")
	u, _ := url.Parse(raw)
	if _, err := o.Complete(context.Background(), u.Query().Get("state"), "bad-code"); err == nil {
		t.Error("Complete() with a rejected code should fail")
	}
}

func TestGoogleOAuth_NotConfigured(t *testing.T) {
	o := NewGoogleOAuth("", "", "", NewFileTokenStore(t.TempDir()), nil)
	if _, err := o.AuthURL("u1"); err == nil {
		t.Error("AuthURL() without credentials should fail")
	}
}

func TestDriveWireTypes(t *testing.T) {
	var resp driveAboutResponse
	if err := json.Unmarshal([]byte(`{"storageQuota":{"usage":"5"}}`), &resp); err != nil {
		t.Fatal(err)
	}
	total, err := parseDriveInt(resp.StorageQuota.Limit)
	if err != nil || total != 0 {
		t.Errorf("unlimited quota total = %d, %v; want 0", total, err)
	}
}
