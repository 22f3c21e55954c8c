package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/rs/xid"
	"github.com/sakif/postmarket/internal/apperror"
	"github.com/sakif/postmarket/internal/auth"
	"github.com/sakif/postmarket/internal/model"
	"github.com/sakif/postmarket/internal/service"
)

// stateCookieName holds the single-use anti-CSRF value during a LINE login
// round trip. 300 seconds is plenty for the user to approve on LINE's side.
const (
	stateCookieName   = "line_state"
	stateCookieMaxAge = 300
)

// LineProvider is what the auth handler needs from the OAuth side: the
// authorize URL, the code exchange, and the profile fetch. *auth.LineProvider
// implements it; tests substitute a fake to drive the callback without a
// network.
type LineProvider interface {
	AuthURL(state string) string
	ExchangeCode(ctx context.Context, code string) (string, error)
	Profile(ctx context.Context, accessToken string) (*auth.LineProfile, error)
}

// AuthHandler manages password auth, session management, and the LINE OAuth
// flow.
//
// HANDLER RESPONSIBILITIES:
//   - HandleSignup / HandleLogin → password auth, set the session cookie
//   - HandleMe                   → current user (null when anonymous)
//   - HandleLogout               → clear the session cookie
//   - HandleLineLogin            → redirect the browser to LINE with a state cookie
//   - HandleLineCallback         → verify state, exchange code, resolve user, issue session
type AuthHandler struct {
	svc         *service.AuthService
	line        LineProvider
	frontendURL string // base URL of the web client, for OAuth redirects
	logger      *slog.Logger
}

// NewAuthHandler creates an AuthHandler. All dependencies are injected here;
// the handler has no knowledge of how they're constructed.
func NewAuthHandler(svc *service.AuthService, line LineProvider, frontendURL string, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		svc:         svc,
		line:        line,
		frontendURL: frontendURL,
		logger:      logger,
	}
}

// credentialsRequest is the body of both signup and login requests.
type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// userResponse wraps a user the way the frontend expects: {"user": {...}}.
// The User field stays a pointer so an anonymous /me serialises as
// {"user": null} rather than an empty object.
type userResponse struct {
	User *model.User `json:"user"`
}

// HandleSignup registers a new email+password account.
//
// HTTP: POST /api/auth/signup  {"email","password","name"}
// On success the session cookie is set and the new user returned.
func (h *AuthHandler) HandleSignup(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperror.ValidationFailed("", "invalid JSON body"))
		return
	}

	result, err := h.svc.Signup(r.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		writeError(w, err)
		return
	}

	h.setSessionCookie(w, result.Token)
	writeJSON(w, http.StatusOK, userResponse{User: result.User})
}

// HandleLogin authenticates email+password credentials.
//
// HTTP: POST /api/auth/login  {"email","password"}
// Every failure mode is the same 401 — see AuthService.Login.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperror.ValidationFailed("", "invalid JSON body"))
		return
	}

	result, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	h.setSessionCookie(w, result.Token)
	writeJSON(w, http.StatusOK, userResponse{User: result.User})
}

// HandleMe returns the currently authenticated user, or {"user": null}.
//
// HTTP: GET /api/auth/me
// Auth: Optional — this route answers 200 either way so the frontend can
// probe authentication state on load without handling a 401.
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusOK, userResponse{User: nil})
		return
	}

	user, err := h.svc.GetUserByID(r.Context(), identity.UserID)
	if err != nil {
		// A valid token for a since-deleted user is still "no user".
		writeJSON(w, http.StatusOK, userResponse{User: nil})
		return
	}

	writeJSON(w, http.StatusOK, userResponse{User: user})
}

// HandleLogout clears the session cookie.
//
// HTTP: POST /api/auth/logout
//
// Since sessions are stateless JWTs, "logout" just means deleting the
// client-side cookie. The token itself remains cryptographically valid until
// its expiry — there is no server-side revocation list. Accepted limitation
// of pure-bearer sessions.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1, // tells the browser to delete the cookie immediately
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
}

// HandleLineLogin starts the LINE OAuth flow.
//
// HTTP: GET /api/auth/line
//
// CSRF PROTECTION VIA STATE:
// We generate a random state string and store it in a short-lived cookie.
// When LINE calls back, HandleLineCallback verifies the returned state
// matches. This proves the callback belongs to a flow this server started.
func (h *AuthHandler) HandleLineLogin(w http.ResponseWriter, r *http.Request) {
	// Random, unguessable state value
	state := xid.New().String()

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		MaxAge:   stateCookieMaxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.line.AuthURL(state), http.StatusFound)
}

// HandleLineCallback completes the LINE OAuth flow.
//
// HTTP: GET /api/auth/line/callback?code=xxx&state=yyy
//
// FLOW:
//  1. Read the state cookie and clear it — single use, regardless of outcome
//  2. Fail closed on missing code/state or a state mismatch
//  3. Exchange the code for an access token, fetch the LINE profile
//  4. Resolve (or create) the local user, issue the session cookie
//  5. Redirect to the frontend's /line-callback landing page
//
// Every failure redirects to the frontend login page with an opaque error
// code. The detailed cause is logged here and never shown to the browser.
func (h *AuthHandler) HandleLineCallback(w http.ResponseWriter, r *http.Request) {
	savedState := ""
	if cookie, err := r.Cookie(stateCookieName); err == nil {
		savedState = cookie.Value
	}

	// Clear the state cookie before anything can fail
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")

	if code == "" || state == "" || state != savedState {
		h.logger.Warn("LINE callback: missing or mismatched state")
		h.redirectLoginError(w, r, "line_auth_failed")
		return
	}

	accessToken, err := h.line.ExchangeCode(r.Context(), code)
	if err != nil {
		h.logger.Error("LINE callback: token exchange failed", slog.String("error", err.Error()))
		h.redirectLoginError(w, r, "line_token_failed")
		return
	}

	profile, err := h.line.Profile(r.Context(), accessToken)
	if err != nil {
		h.logger.Error("LINE callback: profile fetch failed", slog.String("error", err.Error()))
		h.redirectLoginError(w, r, "line_profile_failed")
		return
	}

	result, err := h.svc.LoginWithLine(r.Context(), profile)
	if err != nil {
		h.logger.Error("LINE callback: identity resolution failed", slog.String("error", err.Error()))
		h.redirectLoginError(w, r, "line_auth_error")
		return
	}

	h.setSessionCookie(w, result.Token)
	http.Redirect(w, r, h.frontendURL+"/line-callback", http.StatusFound)
}

// redirectLoginError sends the browser back to the frontend login page with
// an opaque error code.
func (h *AuthHandler) redirectLoginError(w http.ResponseWriter, r *http.Request, code string) {
	http.Redirect(w, r, h.frontendURL+"/login?error="+code, http.StatusFound)
}

// setSessionCookie stores the session JWT.
//
// HttpOnly = JavaScript cannot read this cookie (XSS protection).
// SameSite=Lax = sent on top-level navigations but not cross-site POSTs.
// No MaxAge — the cookie lives for the browser session; the real expiry is
// the signed one inside the token, enforced by the verifier.
// Secure should be true in production (HTTPS only); false here for local dev.
func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
