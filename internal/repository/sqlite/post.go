package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sakif/postmarket/internal/apperror"
	"github.com/sakif/postmarket/internal/model"
	"github.com/sakif/postmarket/internal/repository"
)

// compile-time check that *DB implements repository.PostRepository
var _ repository.PostRepository = (*DB)(nil)

// CreatePost inserts a new post. The caller sets Title, Content, and UserID;
// the repository fills ID and timestamps (pointer receiver so the caller's
// struct ends up fully populated).
func (db *DB) CreatePost(ctx context.Context, post *model.Post) error {
	now := time.Now()
	post.CreatedAt = now
	post.UpdatedAt = now

	res, err := db.conn.ExecContext(ctx,
		`INSERT INTO posts (title, content, user_id, likes_count, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		post.Title,
		post.Content,
		post.UserID,
		post.LikesCount,
		post.CreatedAt,
		post.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting post: %w", err)
	}

	post.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: reading inserted post id: %w", err)
	}

	return nil
}

// GetPostByID retrieves the bare post row — no author, no items.
// This is the cheap lookup the ownership checks use.
func (db *DB) GetPostByID(ctx context.Context, id int64) (*model.Post, error) {
	var p model.Post
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, title, content, user_id, likes_count, created_at, updated_at
		 FROM posts WHERE id = ?`, id,
	).Scan(&p.ID, &p.Title, &p.Content, &p.UserID, &p.LikesCount, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("post", id)
		}
		return nil, fmt.Errorf("sqlite: getting post %d: %w", id, err)
	}
	return &p, nil
}

// GetPostDetail retrieves a post with its author and attached items.
func (db *DB) GetPostDetail(ctx context.Context, id int64) (*model.Post, error) {
	post, err := db.GetPostByID(ctx, id)
	if err != nil {
		return nil, err
	}

	user, err := db.GetUserByID(ctx, post.UserID)
	if err != nil {
		return nil, err
	}
	post.User = user

	items, err := db.itemsForPosts(ctx, []int64{post.ID})
	if err != nil {
		return nil, err
	}
	post.Items = items[post.ID]
	if post.Items == nil {
		post.Items = []model.Item{}
	}

	return post, nil
}

// ListPosts returns all posts, newest first, with authors and items attached.
//
// TWO QUERIES, NOT N+1:
// We fetch the posts (joined with their authors) in one query, then all the
// items for those posts in a second query, and stitch them together in Go.
// A per-post item query would be an N+1 — fine at three posts, painful at
// three thousand.
func (db *DB) ListPosts(ctx context.Context) ([]model.Post, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT p.id, p.title, p.content, p.user_id, p.likes_count, p.created_at, p.updated_at,
		        u.id, u.email, u.name, u.line_login, u.created_at, u.updated_at
		 FROM posts p
		 JOIN users u ON u.id = p.user_id
		 ORDER BY p.created_at DESC, p.id DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing posts: %w", err)
	}
	defer rows.Close()

	var posts []model.Post
	var ids []int64
	for rows.Next() {
		var p model.Post
		var u model.User
		err := rows.Scan(
			&p.ID, &p.Title, &p.Content, &p.UserID, &p.LikesCount, &p.CreatedAt, &p.UpdatedAt,
			&u.ID, &u.Email, &u.Name, &u.LineLogin, &u.CreatedAt, &u.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning post row: %w", err)
		}
		p.User = &u
		p.Items = []model.Item{}
		posts = append(posts, p)
		ids = append(ids, p.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating post rows: %w", err)
	}

	if len(posts) == 0 {
		return []model.Post{}, nil
	}

	itemsByPost, err := db.itemsForPosts(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range posts {
		if items, ok := itemsByPost[posts[i].ID]; ok {
			posts[i].Items = items
		}
	}

	return posts, nil
}

// DeletePost removes a post by ID. Items cascade via the foreign key.
// Returns apperror.ErrNotFound if no row was deleted.
func (db *DB) DeletePost(ctx context.Context, id int64) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM posts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting post %d: %w", id, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking delete of post %d: %w", id, err)
	}
	if affected == 0 {
		return apperror.NotFound("post", id)
	}

	return nil
}

// itemsForPosts loads items for a set of post IDs, grouped by post.
func (db *DB) itemsForPosts(ctx context.Context, postIDs []int64) (map[int64][]model.Item, error) {
	if len(postIDs) == 0 {
		return map[int64][]model.Item{}, nil
	}

	// Build the IN (?, ?, ...) placeholder list. The values go through
	// parameters as usual — only the placeholder count is dynamic.
	placeholders := make([]byte, 0, len(postIDs)*2)
	args := make([]any, 0, len(postIDs))
	for i, id := range postIDs {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
		args = append(args, id)
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, name, price, image_url, rakuten_item_id, post_id, user_id, created_at
		 FROM items WHERE post_id IN (`+string(placeholders)+`) ORDER BY id`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing items for posts: %w", err)
	}
	defer rows.Close()

	byPost := make(map[int64][]model.Item)
	for rows.Next() {
		var it model.Item
		err := rows.Scan(&it.ID, &it.Name, &it.Price, &it.ImageURL, &it.RakutenItemID, &it.PostID, &it.UserID, &it.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning item row: %w", err)
		}
		byPost[it.PostID] = append(byPost[it.PostID], it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating item rows: %w", err)
	}

	return byPost, nil
}
