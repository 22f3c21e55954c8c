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

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

const userColumns = `id, email, name, password_hash, line_user_id, line_login, created_at, updated_at`

// scanUser reads one user row. Works for both sql.Row and sql.Rows via the
// shared Scan signature.
func scanUser(row interface{ Scan(...any) error }) (*model.User, error) {
	var u model.User
	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.Name,
		&u.PasswordHash,
		&u.LineUserID,
		&u.LineLogin,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateUser inserts a password-based user.
//
// The UNIQUE constraint on email is the duplicate check — we don't pre-query.
// A violation comes back as apperror.ErrDuplicate so the service layer can
// surface "user already exists" without knowing about SQLite.
func (db *DB) CreateUser(ctx context.Context, user *model.User) error {
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	res, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (email, name, password_hash, line_user_id, line_login, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		user.Email,
		user.Name,
		user.PasswordHash,
		user.LineUserID,
		user.LineLogin,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Duplicate("user")
		}
		return fmt.Errorf("sqlite: inserting user: %w", err)
	}

	// LastInsertId is well-defined for SQLite AUTOINCREMENT keys.
	user.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: reading inserted user id: %w", err)
	}

	return nil
}

// GetUserByID retrieves a user by their internal ID.
// Returns apperror.ErrNotFound if no user exists with that ID.
func (db *DB) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	u, err := scanUser(db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id,
	))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("sqlite: getting user %d: %w", id, err)
	}
	return u, nil
}

// GetUserByEmail retrieves a user by email (the password-login lookup key).
func (db *DB) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	u, err := scanUser(db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, email,
	))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user", 0)
		}
		return nil, fmt.Errorf("sqlite: getting user by email: %w", err)
	}
	return u, nil
}

// GetUserByAuthentication finds the local user linked to a provider account.
// This is the returning-OAuth-user lookup: (provider, uid) is UNIQUE, so the
// join yields at most one row.
func (db *DB) GetUserByAuthentication(ctx context.Context, provider, uid string) (*model.User, error) {
	u, err := scanUser(db.conn.QueryRowContext(ctx,
		`SELECT u.id, u.email, u.name, u.password_hash, u.line_user_id, u.line_login, u.created_at, u.updated_at
		 FROM users u
		 JOIN authentications a ON a.user_id = u.id
		 WHERE a.provider = ? AND a.uid = ?`,
		provider, uid,
	))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user", 0)
		}
		return nil, fmt.Errorf("sqlite: getting user by authentication (%s): %w", provider, err)
	}
	return u, nil
}

// CreateUserWithAuthentication inserts a user together with its authentication
// record in a single transaction.
//
// INVARIANT: no user with line_login set may ever exist without a matching
// authentications row (and vice versa). The transaction is what holds that —
// if either insert fails, both roll back.
//
// A unique violation on EITHER insert (synthetic email collision or a
// concurrent callback racing on (provider, uid)) is reported as
// apperror.ErrDuplicate; the caller retries the find path.
func (db *DB) CreateUserWithAuthentication(ctx context.Context, user *model.User, auth *model.Authentication) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning transaction: %w", err)
	}
	// Rollback is a no-op after Commit — safe to always defer.
	defer tx.Rollback()

	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	res, err := tx.ExecContext(ctx,
		`INSERT INTO users (email, name, password_hash, line_user_id, line_login, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		user.Email,
		user.Name,
		user.PasswordHash,
		user.LineUserID,
		user.LineLogin,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Duplicate("user")
		}
		return fmt.Errorf("sqlite: inserting user: %w", err)
	}

	user.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: reading inserted user id: %w", err)
	}

	auth.UserID = user.ID
	auth.CreatedAt = now

	res, err = tx.ExecContext(ctx,
		`INSERT INTO authentications (user_id, provider, uid, line_user_id, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		auth.UserID,
		auth.Provider,
		auth.UID,
		auth.LineUserID,
		auth.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Duplicate("authentication")
		}
		return fmt.Errorf("sqlite: inserting authentication: %w", err)
	}

	auth.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: reading inserted authentication id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing user+authentication: %w", err)
	}

	return nil
}

// LinkLine backfills line_user_id (and the line_login flag) on a user that
// was linked before the column existed. Running it twice is harmless — it
// writes the same values.
func (db *DB) LinkLine(ctx context.Context, userID int64, lineUserID string) error {
	_, err := db.conn.ExecContext(ctx,
		`UPDATE users SET line_user_id = ?, line_login = 1, updated_at = ? WHERE id = ?`,
		lineUserID, time.Now(), userID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: linking LINE id to user %d: %w", userID, err)
	}
	return nil
}
