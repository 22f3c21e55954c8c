package handler_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/sakif/postmarket/internal/auth"
	"github.com/sakif/postmarket/internal/handler"
	"github.com/sakif/postmarket/internal/model"
	"github.com/sakif/postmarket/internal/repository/sqlite"
	"github.com/sakif/postmarket/internal/search"
	"github.com/sakif/postmarket/internal/service"
)

const testFrontendURL = "http://localhost:3000"

// fakeLineProvider stands in for the real LINE OAuth client. It counts
// ExchangeCode calls so tests can assert that a rejected callback never
// reached the provider.
type fakeLineProvider struct {
	ExchangeCalls int
	Prof          *auth.LineProfile
	ExchangeErr   error
	ProfileErr    error
}

func (f *fakeLineProvider) AuthURL(state string) string {
	return "https://access.line.me/oauth2/v2.1/authorize?state=" + state
}

func (f *fakeLineProvider) ExchangeCode(ctx context.Context, code string) (string, error) {
	f.ExchangeCalls++
	if f.ExchangeErr != nil {
		return "", f.ExchangeErr
	}
	return "line-access-token", nil
}

func (f *fakeLineProvider) Profile(ctx context.Context, accessToken string) (*auth.LineProfile, error) {
	if f.ProfileErr != nil {
		return nil, f.ProfileErr
	}
	return f.Prof, nil
}

// fakeSearcher returns canned search results without touching the network.
type fakeSearcher struct {
	results []model.SearchItem
	err     error
}

func (f *fakeSearcher) Search(ctx context.Context, keyword string) ([]model.SearchItem, error) {
	if f.err != nil {
		return nil, f.err
	}
	if keyword == "" {
		return []model.SearchItem{}, nil
	}
	return f.results, nil
}

var _ search.Searcher = (*fakeSearcher)(nil)

// testApp wires the full handler stack — real services, real in-memory
// SQLite — behind the same routes the server registers. Only the two
// outbound dependencies (LINE, item search) are faked.
type testApp struct {
	router   *chi.Mux
	line     *fakeLineProvider
	searcher *fakeSearcher
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	tokens, err := auth.NewTokenService("test-secret-at-least-16-chars!!")
	require.NoError(t, err)
	passwords := auth.NewPasswordServiceForTest(4)

	line := &fakeLineProvider{Prof: &auth.LineProfile{UserID: "U_default", DisplayName: "Line User"}}
	searcher := &fakeSearcher{}

	authService := service.NewAuthService(db, tokens, passwords, logger)
	postService := service.NewPostService(db, logger)
	itemService := service.NewItemService(db, db, searcher, logger)

	authHandler := handler.NewAuthHandler(authService, line, testFrontendURL, logger)
	postHandler := handler.NewPostHandler(postService, logger)
	itemHandler := handler.NewItemHandler(itemService, logger)

	requireAuth := auth.RequireAuth(tokens)
	optionalAuth := auth.OptionalAuth(tokens)

	router := chi.NewRouter()
	router.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/signup", authHandler.HandleSignup)
			r.Post("/login", authHandler.HandleLogin)
			r.Post("/logout", authHandler.HandleLogout)
			r.With(optionalAuth).Get("/me", authHandler.HandleMe)
			r.Get("/line", authHandler.HandleLineLogin)
			r.Get("/line/callback", authHandler.HandleLineCallback)
		})
		r.Route("/posts", func(r chi.Router) {
			r.Get("/", postHandler.HandleList)
			r.Get("/{id}", postHandler.HandleGet)
			r.With(requireAuth).Post("/", postHandler.HandleCreate)
			r.With(requireAuth).Delete("/{id}", postHandler.HandleDelete)
		})
		r.Route("/items", func(r chi.Router) {
			r.Get("/search", itemHandler.HandleSearch)
			r.With(requireAuth).Post("/", itemHandler.HandleCreate)
			r.With(requireAuth).Delete("/{id}", itemHandler.HandleDelete)
		})
	})

	return &testApp{router: router, line: line, searcher: searcher}
}

// do runs one request through the router. Cookies are optional.
func (a *testApp) do(method, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rr := httptest.NewRecorder()
	a.router.ServeHTTP(rr, req)
	return rr
}

// signup registers a user and returns their session cookie.
func (a *testApp) signup(t *testing.T, email, name string) *http.Cookie {
	t.Helper()

	rr := a.do(http.MethodPost, "/api/auth/signup",
		`{"email":"`+email+`","password":"pw123456","name":"`+name+`"}`)
	require.Equal(t, http.StatusOK, rr.Code, "signup body: %s", rr.Body.String())

	cookie := sessionCookie(rr)
	require.NotNil(t, cookie, "signup did not set a session cookie")
	return cookie
}

// sessionCookie extracts the "token" cookie from a response, or nil.
func sessionCookie(rr *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rr.Result().Cookies() {
		if c.Name == auth.SessionCookieName {
			return c
		}
	}
	return nil
}

// decodeBody unmarshals the recorder's JSON body into out.
func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, out any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), out), "body: %s", rr.Body.String())
}
