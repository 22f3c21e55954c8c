package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/sakif/postmarket/internal/apperror"
	"github.com/sakif/postmarket/internal/auth"
	"github.com/sakif/postmarket/internal/model"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================

// fakeUserRepo is an in-memory implementation of repository.UserRepository.
// Using a fake (not a mock framework) keeps tests dependency-free and easy
// to read — you can see exactly what the fake does.
type fakeUserRepo struct {
	users   map[int64]*model.User
	byEmail map[string]*model.User
	auths   map[string]*model.Authentication // keyed by provider+"/"+uid → row
	nextID  int64

	// The two flags simulate losing a race against a concurrent first-time
	// callback: the first find misses, the create hits the unique
	// constraint, and only the retry find sees the winner's row.
	missFindOnce         bool
	forceCreateDuplicate bool
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{
		users:   make(map[int64]*model.User),
		byEmail: make(map[string]*model.User),
		auths:   make(map[string]*model.Authentication),
		nextID:  1,
	}
}

func (f *fakeUserRepo) CreateUser(ctx context.Context, user *model.User) error {
	if _, exists := f.byEmail[user.Email]; exists {
		return apperror.Duplicate("user")
	}
	user.ID = f.nextID
	f.nextID++
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	copied := *user
	f.users[user.ID] = &copied
	f.byEmail[user.Email] = &copied
	return nil
}

func (f *fakeUserRepo) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	copied := *u
	return &copied, nil
}

func (f *fakeUserRepo) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	u, ok := f.byEmail[email]
	if !ok {
		return nil, apperror.NotFound("user", 0)
	}
	copied := *u
	return &copied, nil
}

func (f *fakeUserRepo) GetUserByAuthentication(ctx context.Context, provider, uid string) (*model.User, error) {
	if f.missFindOnce {
		f.missFindOnce = false
		return nil, apperror.NotFound("user", 0)
	}
	a, ok := f.auths[provider+"/"+uid]
	if !ok {
		return nil, apperror.NotFound("user", 0)
	}
	return f.GetUserByID(ctx, a.UserID)
}

func (f *fakeUserRepo) CreateUserWithAuthentication(ctx context.Context, user *model.User, authRecord *model.Authentication) error {
	if f.forceCreateDuplicate {
		f.forceCreateDuplicate = false
		return apperror.Duplicate("authentication")
	}
	key := authRecord.Provider + "/" + authRecord.UID
	if _, exists := f.auths[key]; exists {
		return apperror.Duplicate("authentication")
	}
	if err := f.CreateUser(ctx, user); err != nil {
		return err
	}
	authRecord.ID = f.nextID
	f.nextID++
	authRecord.UserID = user.ID
	copied := *authRecord
	f.auths[key] = &copied
	return nil
}

func (f *fakeUserRepo) LinkLine(ctx context.Context, userID int64, lineUserID string) error {
	u, ok := f.users[userID]
	if !ok {
		return apperror.NotFound("user", userID)
	}
	u.LineUserID = lineUserID
	u.LineLogin = true
	return nil
}

// newTestAuthService returns an AuthService wired with fake dependencies.
func newTestAuthService(t *testing.T, repo *fakeUserRepo) *AuthService {
	t.Helper()

	ts, err := auth.NewTokenService("test-secret-at-least-16-chars!!")
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}

	// Cost 4 is bcrypt minimum — makes tests fast
	ps := auth.NewPasswordServiceForTest(4)

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewAuthService(repo, ts, ps, logger)
}

func lineProfile(uid, name string) *auth.LineProfile {
	return &auth.LineProfile{UserID: uid, DisplayName: name}
}

// =========================================================================
// SIGNUP TESTS
// =========================================================================

func TestSignup_Success(t *testing.T) {
	repo := newFakeUserRepo()
	svc := newTestAuthService(t, repo)

	result, err := svc.Signup(context.Background(), "alice@example.com", "s3cret", "Alice")
	if err != nil {
		t.Fatalf("Signup() error = %v", err)
	}

	if result.User.ID == 0 {
		t.Error("Signup() did not assign a user ID")
	}
	if result.Token == "" {
		t.Error("Signup() returned empty token")
	}

	// The stored credential must verify against the original password.
	stored := repo.byEmail["alice@example.com"]
	if stored.PasswordHash == "" || stored.PasswordHash == "s3cret" {
		t.Fatalf("stored hash looks wrong: %q", stored.PasswordHash)
	}
	if err := auth.NewPasswordServiceForTest(4).Verify(stored.PasswordHash, "s3cret"); err != nil {
		t.Errorf("stored hash does not verify against the password: %v", err)
	}
}

func TestSignup_MissingFields(t *testing.T) {
	svc := newTestAuthService(t, newFakeUserRepo())

	for name, args := range map[string][3]string{
		"no email":    {"", "pw", "Alice"},
		"no password": {"a@example.com", "", "Alice"},
		"no name":     {"a@example.com", "pw", ""},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Signup(context.Background(), args[0], args[1], args[2])
			if !errors.Is(err, apperror.ErrValidation) {
				t.Errorf("Signup() error = %v, want ErrValidation", err)
			}
		})
	}
}

func TestSignup_DuplicateEmail(t *testing.T) {
	repo := newFakeUserRepo()
	svc := newTestAuthService(t, repo)

	if _, err := svc.Signup(context.Background(), "bob@example.com", "pw1", "Bob"); err != nil {
		t.Fatalf("first Signup() error = %v", err)
	}

	_, err := svc.Signup(context.Background(), "bob@example.com", "pw2", "Bobby")
	if !errors.Is(err, apperror.ErrDuplicate) {
		t.Fatalf("second Signup() error = %v, want ErrDuplicate", err)
	}
	if len(repo.users) != 1 {
		t.Errorf("duplicate signup created a row: %d users", len(repo.users))
	}
}

// =========================================================================
// LOGIN TESTS
// =========================================================================

func TestLogin_Success(t *testing.T) {
	repo := newFakeUserRepo()
	svc := newTestAuthService(t, repo)

	signedUp, err := svc.Signup(context.Background(), "carol@example.com", "pw", "Carol")
	if err != nil {
		t.Fatalf("Signup() error = %v", err)
	}

	result, err := svc.Login(context.Background(), "carol@example.com", "pw")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	// The issued session must verify back to the same user id.
	ts, _ := auth.NewTokenService("test-secret-at-least-16-chars!!")
	identity, err := ts.Validate(result.Token)
	if err != nil {
		t.Fatalf("Validate(issued token) error = %v", err)
	}
	if identity.UserID != signedUp.User.ID {
		t.Errorf("token UserID = %d, want %d", identity.UserID, signedUp.User.ID)
	}
}

// Wrong password, unknown email, and an OAuth-only account must all fail
// with the identical invalid-credentials error.
func TestLogin_AllFailuresIdentical(t *testing.T) {
	repo := newFakeUserRepo()
	svc := newTestAuthService(t, repo)

	if _, err := svc.Signup(context.Background(), "dave@example.com", "right", "Dave"); err != nil {
		t.Fatalf("Signup() error = %v", err)
	}
	// An OAuth-only account: LINE login, no password hash.
	if _, err := svc.LoginWithLine(context.Background(), lineProfile("Uoauth", "OAuth Olly")); err != nil {
		t.Fatalf("LoginWithLine() error = %v", err)
	}

	cases := map[string][2]string{
		"wrong password":     {"dave@example.com", "wrong"},
		"unknown email":      {"nobody@example.com", "whatever"},
		"oauth-only account": {"line_Uoauth@line.local", "anything"},
	}

	var messages []string
	for name, creds := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Login(context.Background(), creds[0], creds[1])
			if !errors.Is(err, apperror.ErrInvalidCredentials) {
				t.Fatalf("Login() error = %v, want ErrInvalidCredentials", err)
			}
			messages = append(messages, err.Error())
		})
	}

	for i := 1; i < len(messages); i++ {
		if messages[i] != messages[0] {
			t.Errorf("failure messages differ: %q vs %q", messages[i], messages[0])
		}
	}
}

// =========================================================================
// LINE LOGIN TESTS
// =========================================================================

func TestLoginWithLine_FirstLoginCreatesUserAndAuthentication(t *testing.T) {
	repo := newFakeUserRepo()
	svc := newTestAuthService(t, repo)

	result, err := svc.LoginWithLine(context.Background(), lineProfile("U111", "Taro"))
	if err != nil {
		t.Fatalf("LoginWithLine() error = %v", err)
	}

	if len(repo.users) != 1 || len(repo.auths) != 1 {
		t.Fatalf("want exactly 1 user and 1 authentication, got %d/%d", len(repo.users), len(repo.auths))
	}

	user := result.User
	if user.Email != "line_U111@line.local" {
		t.Errorf("synthetic email = %q", user.Email)
	}
	if user.Name != "Taro" {
		t.Errorf("name = %q, want Taro", user.Name)
	}
	if !user.LineLogin || user.LineUserID != "U111" {
		t.Errorf("LINE linkage not set: lineLogin=%v lineUserID=%q", user.LineLogin, user.LineUserID)
	}
	if result.Token == "" {
		t.Error("LoginWithLine() returned empty token")
	}
}

func TestLoginWithLine_SecondLoginReusesUser(t *testing.T) {
	repo := newFakeUserRepo()
	svc := newTestAuthService(t, repo)

	first, err := svc.LoginWithLine(context.Background(), lineProfile("U222", "Hanako"))
	if err != nil {
		t.Fatalf("first LoginWithLine() error = %v", err)
	}

	second, err := svc.LoginWithLine(context.Background(), lineProfile("U222", "Hanako"))
	if err != nil {
		t.Fatalf("second LoginWithLine() error = %v", err)
	}

	if second.User.ID != first.User.ID {
		t.Errorf("second login resolved user %d, want %d", second.User.ID, first.User.ID)
	}
	if len(repo.users) != 1 || len(repo.auths) != 1 {
		t.Errorf("second login created rows: %d users, %d auths", len(repo.users), len(repo.auths))
	}
}

func TestLoginWithLine_BackfillsLegacyLink(t *testing.T) {
	repo := newFakeUserRepo()
	svc := newTestAuthService(t, repo)

	// A legacy row: authentication exists but the user record was linked
	// before line_user_id existed.
	user := &model.User{Email: "legacy@example.com", Name: "Legacy"}
	authRecord := &model.Authentication{Provider: "line", UID: "U333"}
	if err := repo.CreateUserWithAuthentication(context.Background(), user, authRecord); err != nil {
		t.Fatalf("seeding legacy user: %v", err)
	}

	result, err := svc.LoginWithLine(context.Background(), lineProfile("U333", "Legacy"))
	if err != nil {
		t.Fatalf("LoginWithLine() error = %v", err)
	}

	if result.User.ID != user.ID {
		t.Fatalf("resolved user %d, want %d", result.User.ID, user.ID)
	}
	stored := repo.users[user.ID]
	if stored.LineUserID != "U333" || !stored.LineLogin {
		t.Errorf("backfill did not run: lineUserID=%q lineLogin=%v", stored.LineUserID, stored.LineLogin)
	}
	if len(repo.users) != 1 {
		t.Errorf("backfill created a user: %d users", len(repo.users))
	}
}

// Two concurrent first-time callbacks race on the create; the loser must
// retry the find path and resolve the winner's user, not error out and not
// create a second user.
func TestLoginWithLine_CreateRaceRetriesFind(t *testing.T) {
	repo := newFakeUserRepo()
	svc := newTestAuthService(t, repo)

	// The winner's rows are already committed, but our snapshot of the
	// world predates them: the first find misses, the create collides.
	winner := &model.User{Email: "line_U444@line.local", Name: "Winner", LineUserID: "U444", LineLogin: true}
	if err := repo.CreateUserWithAuthentication(context.Background(), winner,
		&model.Authentication{Provider: "line", UID: "U444"}); err != nil {
		t.Fatalf("seeding winner: %v", err)
	}
	repo.missFindOnce = true
	repo.forceCreateDuplicate = true

	result, err := svc.LoginWithLine(context.Background(), lineProfile("U444", "Loser"))
	if err != nil {
		t.Fatalf("LoginWithLine() after race error = %v", err)
	}
	if result.User.ID != winner.ID {
		t.Errorf("race resolved user %d, want winner %d", result.User.ID, winner.ID)
	}
	if len(repo.users) != 1 {
		t.Errorf("race produced %d users, want 1", len(repo.users))
	}
}
