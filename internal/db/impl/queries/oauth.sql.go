package queries

import (
	"context"
	"database/sql"
)

const createClient = `INSERT INTO oauth_clients (
	id, secret_hash, name, redirect_uris, grant_types, scope, owner_id, is_active, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?)`

type CreateClientParams struct {
	ID           string
	SecretHash   string
	Name         string
	RedirectUris string
	GrantTypes   string
	Scope        string
	OwnerID      sql.NullInt64
	CreatedAt    int64
}

func (q *Queries) CreateClient(ctx context.Context, arg CreateClientParams) error {
	_, err := q.db.ExecContext(ctx, createClient,
		arg.ID,
		arg.SecretHash,
		arg.Name,
		arg.RedirectUris,
		arg.GrantTypes,
		arg.Scope,
		arg.OwnerID,
		arg.CreatedAt,
	)
	return err
}

const clientColumns = `id, secret_hash, name, redirect_uris, grant_types, scope, owner_id, is_active, created_at`

func scanClient(row interface{ Scan(...any) error }) (OauthClient, error) {
	var i OauthClient
	err := row.Scan(
		&i.ID,
		&i.SecretHash,
		&i.Name,
		&i.RedirectUris,
		&i.GrantTypes,
		&i.Scope,
		&i.OwnerID,
		&i.IsActive,
		&i.CreatedAt,
	)
	return i, err
}

const getClient = `SELECT ` + clientColumns + ` FROM oauth_clients WHERE id = ?`

func (q *Queries) GetClient(ctx context.Context, id string) (OauthClient, error) {
	return scanClient(q.db.QueryRowContext(ctx, getClient, id))
}

const listClientsByOwner = `SELECT ` + clientColumns + ` FROM oauth_clients WHERE owner_id = ? ORDER BY created_at`

func (q *Queries) ListClientsByOwner(ctx context.Context, ownerID int64) ([]OauthClient, error) {
	rows, err := q.db.QueryContext(ctx, listClientsByOwner, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []OauthClient
	for rows.Next() {
		i, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const deactivateClient = `UPDATE oauth_clients SET is_active = 0 WHERE id = ?1 AND (?2 = 0 OR owner_id = ?2)`

func (q *Queries) DeactivateClient(ctx context.Context, id string, ownerID int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, deactivateClient, id, ownerID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const createCode = `INSERT INTO oauth_codes (
	code, client_id, user_id, redirect_uri, scope, nonce, expires_at
) VALUES (?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) CreateCode(ctx context.Context, arg OauthCode) error {
	_, err := q.db.ExecContext(ctx, createCode,
		arg.Code,
		arg.ClientID,
		arg.UserID,
		arg.RedirectUri,
		arg.Scope,
		arg.Nonce,
		arg.ExpiresAt,
	)
	return err
}

const getCode = `SELECT code, client_id, user_id, redirect_uri, scope, nonce, expires_at FROM oauth_codes WHERE code = ?`

func (q *Queries) GetCode(ctx context.Context, code string) (OauthCode, error) {
	row := q.db.QueryRowContext(ctx, getCode, code)
	var i OauthCode
	err := row.Scan(
		&i.Code,
		&i.ClientID,
		&i.UserID,
		&i.RedirectUri,
		&i.Scope,
		&i.Nonce,
		&i.ExpiresAt,
	)
	return i, err
}

const deleteCode = `DELETE FROM oauth_codes WHERE code = ?`

func (q *Queries) DeleteCode(ctx context.Context, code string) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteCode, code)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const createAccessToken = `INSERT INTO oauth_access_tokens (
	token_hash, client_id, user_id, scope, refresh_hash, expires_at, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) CreateAccessToken(ctx context.Context, arg OauthAccessToken) error {
	_, err := q.db.ExecContext(ctx, createAccessToken,
		arg.TokenHash,
		arg.ClientID,
		arg.UserID,
		arg.Scope,
		arg.RefreshHash,
		arg.ExpiresAt,
		arg.CreatedAt,
	)
	return err
}

const getAccessToken = `SELECT token_hash, client_id, user_id, scope, refresh_hash, expires_at, created_at
FROM oauth_access_tokens WHERE token_hash = ?`

func (q *Queries) GetAccessToken(ctx context.Context, tokenHash string) (OauthAccessToken, error) {
	row := q.db.QueryRowContext(ctx, getAccessToken, tokenHash)
	var i OauthAccessToken
	err := row.Scan(
		&i.TokenHash,
		&i.ClientID,
		&i.UserID,
		&i.Scope,
		&i.RefreshHash,
		&i.ExpiresAt,
		&i.CreatedAt,
	)
	return i, err
}

const deleteAccessToken = `DELETE FROM oauth_access_tokens WHERE token_hash = ?`

func (q *Queries) DeleteAccessToken(ctx context.Context, tokenHash string) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteAccessToken, tokenHash)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const deleteAccessTokensByRefresh = `DELETE FROM oauth_access_tokens WHERE refresh_hash = ? RETURNING token_hash`

func (q *Queries) DeleteAccessTokensByRefresh(ctx context.Context, refreshHash string) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, deleteAccessTokensByRefresh, refreshHash)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []string
	for rows.Next() {
		var hash string
		if err := rows.Scan(&hash); err != nil {
			return nil, err
		}
		items = append(items, hash)
	}
	return items, rows.Err()
}

const createRefreshToken = `INSERT INTO oauth_refresh_tokens (
	token_hash, client_id, user_id, scope, expires_at, created_at
) VALUES (?, ?, ?, ?, ?, ?)`

func (q *Queries) CreateRefreshToken(ctx context.Context, arg OauthRefreshToken) error {
	_, err := q.db.ExecContext(ctx, createRefreshToken,
		arg.TokenHash,
		arg.ClientID,
		arg.UserID,
		arg.Scope,
		arg.ExpiresAt,
		arg.CreatedAt,
	)
	return err
}

const getRefreshToken = `SELECT token_hash, client_id, user_id, scope, expires_at, created_at
FROM oauth_refresh_tokens WHERE token_hash = ?`

func (q *Queries) GetRefreshToken(ctx context.Context, tokenHash string) (OauthRefreshToken, error) {
	row := q.db.QueryRowContext(ctx, getRefreshToken, tokenHash)
	var i OauthRefreshToken
	err := row.Scan(
		&i.TokenHash,
		&i.ClientID,
		&i.UserID,
		&i.Scope,
		&i.ExpiresAt,
		&i.CreatedAt,
	)
	return i, err
}

const deleteRefreshToken = `DELETE FROM oauth_refresh_tokens WHERE token_hash = ? AND client_id = ?`

func (q *Queries) DeleteRefreshToken(ctx context.Context, tokenHash, clientID string) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteRefreshToken, tokenHash, clientID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const deleteExpiredCodes = `DELETE FROM oauth_codes WHERE expires_at <= ?`

func (q *Queries) DeleteExpiredCodes(ctx context.Context, now int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteExpiredCodes, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const deleteExpiredAccessTokens = `DELETE FROM oauth_access_tokens WHERE expires_at <= ?`

func (q *Queries) DeleteExpiredAccessTokens(ctx context.Context, now int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteExpiredAccessTokens, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const deleteExpiredRefreshTokens = `DELETE FROM oauth_refresh_tokens WHERE expires_at <= ?`

func (q *Queries) DeleteExpiredRefreshTokens(ctx context.Context, now int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteExpiredRefreshTokens, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const getConsent = `SELECT user_id, client_id, scope, created_at FROM oauth_consents WHERE user_id = ? AND client_id = ?`

func (q *Queries) GetConsent(ctx context.Context, userID int64, clientID string) (OauthConsent, error) {
	row := q.db.QueryRowContext(ctx, getConsent, userID, clientID)
	var i OauthConsent
	err := row.Scan(&i.UserID, &i.ClientID, &i.Scope, &i.CreatedAt)
	return i, err
}

const upsertConsent = `INSERT INTO oauth_consents (user_id, client_id, scope, created_at) VALUES (?, ?, ?, ?)
ON CONFLICT (user_id, client_id) DO UPDATE SET scope = excluded.scope, created_at = excluded.created_at`

func (q *Queries) UpsertConsent(ctx context.Context, arg OauthConsent) error {
	_, err := q.db.ExecContext(ctx, upsertConsent, arg.UserID, arg.ClientID, arg.Scope, arg.CreatedAt)
	return err
}
