package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/oauth2"
)

// newTestLineProvider points a LineProvider at local test servers instead of
// LINE's real endpoints. Same-package access lets us swap the endpoint and
// profile URL directly.
func newTestLineProvider(tokenURL, profileURL string) *LineProvider {
	return &LineProvider{
		config: &oauth2.Config{
			ClientID:     "channel-id",
			ClientSecret: "channel-secret",
			RedirectURL:  "http://localhost:4000/api/auth/line/callback",
			Scopes:       []string{"profile", "openid", "email"},
			Endpoint:     oauth2.Endpoint{AuthURL: "http://line.test/authorize", TokenURL: tokenURL},
		},
		httpClient: &http.Client{Timeout: 5 * time.Second},
		profileURL: profileURL,
	}
}

func TestAuthURL_CarriesStateAndParams(t *testing.T) {
	p := newTestLineProvider("http://line.test/token", "http://line.test/profile")

	got := p.AuthURL("state-xyz")

	for _, want := range []string{
		"response_type=code",
		"client_id=channel-id",
		"state=state-xyz",
		"bot_prompt=aggressive",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("AuthURL() = %q, missing %q", got, want)
		}
	}
}

func TestExchangeCode_Success(t *testing.T) {
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("token endpoint called with %s, want POST", r.Method)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"line-access-token","token_type":"Bearer","expires_in":3600}`))
	}))
	defer tokenSrv.Close()

	p := newTestLineProvider(tokenSrv.URL, "unused")

	token, err := p.ExchangeCode(context.Background(), "auth-code")
	if err != nil {
		t.Fatalf("ExchangeCode() error = %v", err)
	}
	if token != "line-access-token" {
		t.Errorf("ExchangeCode() = %q, want %q", token, "line-access-token")
	}
}

func TestExchangeCode_ProviderError(t *testing.T) {
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
	}))
	defer tokenSrv.Close()

	p := newTestLineProvider(tokenSrv.URL, "unused")

	if _, err := p.ExchangeCode(context.Background(), "bad-code"); err == nil {
		t.Error("ExchangeCode() should fail when the provider rejects the code")
	}
}

func TestProfile_Success(t *testing.T) {
	profileSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer line-access-token" {
			t.Errorf("Authorization header = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"userId":"U1234567890abcdef","displayName":"Taro"}`))
	}))
	defer profileSrv.Close()

	p := newTestLineProvider("unused", profileSrv.URL)

	profile, err := p.Profile(context.Background(), "line-access-token")
	if err != nil {
		t.Fatalf("Profile() error = %v", err)
	}
	if profile.UserID != "U1234567890abcdef" {
		t.Errorf("Profile() UserID = %q", profile.UserID)
	}
	if profile.DisplayName != "Taro" {
		t.Errorf("Profile() DisplayName = %q", profile.DisplayName)
	}
}

func TestProfile_MissingUserIDFailsClosed(t *testing.T) {
	profileSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"displayName":"NoID"}`))
	}))
	defer profileSrv.Close()

	p := newTestLineProvider("unused", profileSrv.URL)

	if _, err := p.Profile(context.Background(), "token"); err == nil {
		t.Error("Profile() should fail when the response has no user ID")
	}
}
