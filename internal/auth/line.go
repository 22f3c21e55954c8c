package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// LINE Login v2.1 endpoints.
// https://developers.line.biz/en/docs/line-login/integrate-line-login/
var lineEndpoint = oauth2.Endpoint{
	AuthURL:  "https://access.line.me/oauth2/v2.1/authorize",
	TokenURL: "https://api.line.me/oauth2/v2.1/token",
}

const lineProfileURL = "https://api.line.me/v2/profile"

// LineProfile is the portion of the LINE profile API response we care about.
//
// UserID is LINE's stable user identifier (format "U" + 32 hex chars) — it
// never changes for a given account and is what we key Authentication rows on.
// LINE does not expose the user's email through this endpoint, which is why
// OAuth-created accounts get a synthetic placeholder email.
type LineProfile struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	PictureURL  string `json:"pictureUrl"`
}

// LineProvider wraps golang.org/x/oauth2 for the LINE authorization-code flow.
//
// OAUTH 2.0 AUTHORIZATION CODE FLOW:
// 1. Your server redirects the user to LINE's authorization endpoint,
//    with your channel ID and the requested scopes.
// 2. The user approves (or denies) the request on LINE.
// 3. LINE redirects back to your callback URL with a short-lived "code".
// 4. Your server exchanges the code for an access token (server-to-server call).
// 5. Your server uses the access token to fetch the LINE profile.
//
// The code-for-token exchange happens server-to-server using the channel
// secret; the access token never touches the browser.
//
// The two network steps are separate methods (ExchangeCode, Profile) so the
// callback handler can report distinct failure classes for each.
type LineProvider struct {
	config     *oauth2.Config
	httpClient *http.Client
	profileURL string // swapped for a test server in line_test.go
}

// NewLineProvider creates a LineProvider with the given channel credentials.
//
// You get the channel ID and secret from the LINE Developers console.
// callbackURL must match the callback registered there exactly.
//
// Scopes we request:
//   - "profile" — the user's ID, display name, and picture
//   - "openid" / "email" — ID-token claims (email only if the user consented)
//
// Outbound calls carry a 10 second timeout — an unresponsive provider must
// not hold a callback request open indefinitely.
func NewLineProvider(channelID, channelSecret, callbackURL string) *LineProvider {
	return &LineProvider{
		config: &oauth2.Config{
			ClientID:     channelID,
			ClientSecret: channelSecret,
			RedirectURL:  callbackURL,
			Scopes:       []string{"profile", "openid", "email"},
			Endpoint:     lineEndpoint,
		},
		httpClient: &http.Client{Timeout: 10 * time.Second},
		profileURL: lineProfileURL,
	}
}

// AuthURL returns the URL to redirect the user to for authorization.
//
// STATE PARAMETER:
// The state is a random string we generate and store in a cookie before
// redirecting. When LINE calls back, we verify the returned state matches
// our cookie. This prevents CSRF attacks where an attacker tricks a victim's
// browser into completing an OAuth flow for the attacker's account.
//
// bot_prompt=aggressive asks LINE to offer adding the channel's bot as a
// friend during login.
func (p *LineProvider) AuthURL(state string) string {
	return p.config.AuthCodeURL(state,
		oauth2.SetAuthURLParam("bot_prompt", "aggressive"),
	)
}

// ExchangeCode trades the authorization code for an access token.
//
// This makes a POST to LINE's token endpoint (grant_type=authorization_code)
// using the channel secret. A response without an access token is an error —
// the callback fails closed.
func (p *LineProvider) ExchangeCode(ctx context.Context, code string) (string, error) {
	// oauth2 reads its HTTP client from the context; this is how the
	// package injects the timeout (and how tests inject a fake server).
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)

	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return "", fmt.Errorf("auth: exchanging LINE code: %w", err)
	}
	if token.AccessToken == "" {
		return "", fmt.Errorf("auth: LINE token response has no access token")
	}

	return token.AccessToken, nil
}

// Profile fetches the LINE profile for an access token.
// Fails closed if the response has no user ID.
func (p *LineProvider) Profile(ctx context.Context, accessToken string) (*LineProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.profileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("auth: building LINE profile request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("auth: calling LINE profile API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("auth: LINE profile API returned status %d", resp.StatusCode)
	}

	var profile LineProfile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, fmt.Errorf("auth: decoding LINE profile response: %w", err)
	}

	if profile.UserID == "" {
		return nil, fmt.Errorf("auth: LINE returned a profile without a user ID")
	}

	return &profile, nil
}
