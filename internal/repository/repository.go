package repository

import (
	"context"

	"github.com/sakif/postmarket/internal/model"
)

// UserRepository persists user accounts and their external identity links.
//
// CreateUser and CreateUserWithAuthentication surface uniqueness violations
// as apperror.ErrDuplicate — callers never see raw driver errors.
type UserRepository interface {
	// CreateUser inserts a password-based user (email must be unique).
	CreateUser(ctx context.Context, user *model.User) error

	GetUserByID(ctx context.Context, id int64) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)

	// GetUserByAuthentication finds the user linked to (provider, uid),
	// or apperror.ErrNotFound if no such link exists.
	GetUserByAuthentication(ctx context.Context, provider, uid string) (*model.User, error)

	// CreateUserWithAuthentication inserts a user and its authentication
	// record in one transaction — neither row is ever observable without
	// the other.
	CreateUserWithAuthentication(ctx context.Context, user *model.User, auth *model.Authentication) error

	// LinkLine backfills line_user_id on a user that already has an
	// authentication row but predates the column. Idempotent.
	LinkLine(ctx context.Context, userID int64, lineUserID string) error
}

// PostRepository persists posts.
type PostRepository interface {
	CreatePost(ctx context.Context, post *model.Post) error
	// GetPostByID returns the bare post row (no author or items preloaded).
	GetPostByID(ctx context.Context, id int64) (*model.Post, error)
	// GetPostDetail returns the post with its author and attached items.
	GetPostDetail(ctx context.Context, id int64) (*model.Post, error)
	// ListPosts returns all posts, newest first, with authors and items.
	ListPosts(ctx context.Context) ([]model.Post, error)
	DeletePost(ctx context.Context, id int64) error
}

// ItemRepository persists items attached to posts.
type ItemRepository interface {
	CreateItem(ctx context.Context, item *model.Item) error
	GetItemByID(ctx context.Context, id int64) (*model.Item, error)
	DeleteItem(ctx context.Context, id int64) error
}
