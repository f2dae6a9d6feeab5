package queries

import (
	"context"
	"database/sql"
)

const userColumns = `id, username, email, password_hash, role, subdomain, federation_id, is_active, settings,
	display_name, summary, public_key, created_at, updated_at, last_login`

func scanUser(row interface{ Scan(...any) error }) (User, error) {
	var i User
	err := row.Scan(
		&i.ID,
		&i.Username,
		&i.Email,
		&i.PasswordHash,
		&i.Role,
		&i.Subdomain,
		&i.FederationID,
		&i.IsActive,
		&i.Settings,
		&i.DisplayName,
		&i.Summary,
		&i.PublicKey,
		&i.CreatedAt,
		&i.UpdatedAt,
		&i.LastLogin,
	)
	return i, err
}

const createUser = `INSERT INTO users (
	username, email, password_hash, role, subdomain, federation_id, is_active, settings,
	display_name, summary, public_key, private_key, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?, ?, ?, ?, ?, ?)`

type CreateUserParams struct {
	Username     string
	Email        string
	PasswordHash string
	Role         string
	Subdomain    sql.NullString
	FederationID string
	Settings     string
	DisplayName  string
	Summary      string
	PublicKey    string
	PrivateKey   string
	CreatedAt    int64
}

func (q *Queries) CreateUser(ctx context.Context, arg CreateUserParams) (int64, error) {
	res, err := q.db.ExecContext(ctx, createUser,
		arg.Username,
		arg.Email,
		arg.PasswordHash,
		arg.Role,
		arg.Subdomain,
		arg.FederationID,
		arg.Settings,
		arg.DisplayName,
		arg.Summary,
		arg.PublicKey,
		arg.PrivateKey,
		arg.CreatedAt,
		arg.CreatedAt,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

const getUserByID = `SELECT ` + userColumns + ` FROM users WHERE id = ?`

func (q *Queries) GetUserByID(ctx context.Context, id int64) (User, error) {
	return scanUser(q.db.QueryRowContext(ctx, getUserByID, id))
}

const getUserByUsername = `SELECT ` + userColumns + ` FROM users WHERE username = ?`

func (q *Queries) GetUserByUsername(ctx context.Context, username string) (User, error) {
	return scanUser(q.db.QueryRowContext(ctx, getUserByUsername, username))
}

const getUserByEmail = `SELECT ` + userColumns + ` FROM users WHERE email = ?`

func (q *Queries) GetUserByEmail(ctx context.Context, email string) (User, error) {
	return scanUser(q.db.QueryRowContext(ctx, getUserByEmail, email))
}

const getUserBySubdomain = `SELECT ` + userColumns + ` FROM users WHERE subdomain = ?`

func (q *Queries) GetUserBySubdomain(ctx context.Context, subdomain string) (User, error) {
	return scanUser(q.db.QueryRowContext(ctx, getUserBySubdomain, subdomain))
}

const getUserByFederationID = `SELECT ` + userColumns + ` FROM users WHERE federation_id = ?`

func (q *Queries) GetUserByFederationID(ctx context.Context, federationID string) (User, error) {
	return scanUser(q.db.QueryRowContext(ctx, getUserByFederationID, federationID))
}

const getPrivateKeyByFederationID = `SELECT private_key FROM users WHERE federation_id = ?`

func (q *Queries) GetPrivateKeyByFederationID(ctx context.Context, federationID string) (string, error) {
	row := q.db.QueryRowContext(ctx, getPrivateKeyByFederationID, federationID)
	var key string
	err := row.Scan(&key)
	return key, err
}

const updateLastLogin = `UPDATE users SET last_login = ? WHERE id = ?`

func (q *Queries) UpdateLastLogin(ctx context.Context, lastLogin, id int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, updateLastLogin, lastLogin, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const setUserActive = `UPDATE users SET is_active = ?, updated_at = ? WHERE id = ?`

func (q *Queries) SetUserActive(ctx context.Context, active bool, updatedAt, id int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, setUserActive, active, updatedAt, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const updateProfile = `UPDATE users SET display_name = ?, summary = ?, settings = ?, updated_at = ? WHERE id = ?`

type UpdateProfileParams struct {
	DisplayName string
	Summary     string
	Settings    string
	UpdatedAt   int64
	ID          int64
}

func (q *Queries) UpdateProfile(ctx context.Context, arg UpdateProfileParams) (int64, error) {
	res, err := q.db.ExecContext(ctx, updateProfile, arg.DisplayName, arg.Summary, arg.Settings, arg.UpdatedAt, arg.ID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const setUserSubdomain = `UPDATE users SET subdomain = ?, updated_at = ? WHERE id = ?`

func (q *Queries) SetUserSubdomain(ctx context.Context, subdomain string, updatedAt, id int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, setUserSubdomain, subdomain, updatedAt, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const countUsers = `SELECT COUNT(*) FROM users WHERE is_active = 1`

func (q *Queries) CountUsers(ctx context.Context) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, countUsers).Scan(&n)
	return n, err
}

const adminExists = `SELECT EXISTS(SELECT 1 FROM users WHERE role = 'admin')`

func (q *Queries) AdminExists(ctx context.Context) (bool, error) {
	var exists bool
	err := q.db.QueryRowContext(ctx, adminExists).Scan(&exists)
	return exists, err
}
