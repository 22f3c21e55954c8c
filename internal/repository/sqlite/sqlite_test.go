package sqlite

import (
	"context"
	"testing"

	"github.com/sakif/postmarket/internal/model"
)

// newTestDB opens a fresh in-memory database with the schema applied.
// Each test gets its own — no shared state, no cleanup files.
func newTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := New(":memory:")
	if err != nil {
		t.Fatalf("New(:memory:): %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// seedUser inserts a password user and returns it with the ID populated.
func seedUser(t *testing.T, db *DB, email, name string) *model.User {
	t.Helper()

	user := &model.User{Email: email, Name: name, PasswordHash: "hash"}
	if err := db.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("seeding user %s: %v", email, err)
	}
	return user
}

// seedPost inserts a post for the given owner.
func seedPost(t *testing.T, db *DB, userID int64, title string) *model.Post {
	t.Helper()

	post := &model.Post{Title: title, Content: "content of " + title, UserID: userID}
	if err := db.CreatePost(context.Background(), post); err != nil {
		t.Fatalf("seeding post %s: %v", title, err)
	}
	return post
}
