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

// compile-time check that *DB implements repository.ItemRepository
var _ repository.ItemRepository = (*DB)(nil)

// CreateItem attaches an item to a post. The caller sets everything except
// ID and CreatedAt. The foreign key on post_id means attaching to a deleted
// post fails at the database, not silently.
func (db *DB) CreateItem(ctx context.Context, item *model.Item) error {
	item.CreatedAt = time.Now()

	res, err := db.conn.ExecContext(ctx,
		`INSERT INTO items (name, price, image_url, rakuten_item_id, post_id, user_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		item.Name,
		item.Price,
		item.ImageURL,
		item.RakutenItemID,
		item.PostID,
		item.UserID,
		item.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting item: %w", err)
	}

	item.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: reading inserted item id: %w", err)
	}

	return nil
}

// GetItemByID retrieves an item by ID.
// Returns apperror.ErrNotFound if no item exists with that ID.
func (db *DB) GetItemByID(ctx context.Context, id int64) (*model.Item, error) {
	var it model.Item
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, name, price, image_url, rakuten_item_id, post_id, user_id, created_at
		 FROM items WHERE id = ?`, id,
	).Scan(&it.ID, &it.Name, &it.Price, &it.ImageURL, &it.RakutenItemID, &it.PostID, &it.UserID, &it.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("item", id)
		}
		return nil, fmt.Errorf("sqlite: getting item %d: %w", id, err)
	}
	return &it, nil
}

// DeleteItem removes an item by ID.
// Returns apperror.ErrNotFound if no row was deleted.
func (db *DB) DeleteItem(ctx context.Context, id int64) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting item %d: %w", id, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking delete of item %d: %w", id, err)
	}
	if affected == 0 {
		return apperror.NotFound("item", id)
	}

	return nil
}
