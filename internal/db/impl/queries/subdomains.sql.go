package queries

import "context"

const createSubdomainRegistration = `INSERT INTO subdomain_registrations (
	user_id, subdomain, status, verification_token, created_at
) VALUES (?, ?, 'pending', ?, ?)`

type CreateSubdomainRegistrationParams struct {
	UserID            int64
	Subdomain         string
	VerificationToken string
	CreatedAt         int64
}

func (q *Queries) CreateSubdomainRegistration(ctx context.Context, arg CreateSubdomainRegistrationParams) error {
	_, err := q.db.ExecContext(ctx, createSubdomainRegistration,
		arg.UserID,
		arg.Subdomain,
		arg.VerificationToken,
		arg.CreatedAt,
	)
	return err
}

const registrationColumns = `id, user_id, subdomain, status, verification_token, created_at, verified_at`

func scanRegistration(row interface{ Scan(...any) error }) (SubdomainRegistration, error) {
	var i SubdomainRegistration
	err := row.Scan(
		&i.ID,
		&i.UserID,
		&i.Subdomain,
		&i.Status,
		&i.VerificationToken,
		&i.CreatedAt,
		&i.VerifiedAt,
	)
	return i, err
}

const getSubdomainRegistrationByUser = `SELECT ` + registrationColumns + ` FROM subdomain_registrations WHERE user_id = ?`

func (q *Queries) GetSubdomainRegistrationByUser(ctx context.Context, userID int64) (SubdomainRegistration, error) {
	return scanRegistration(q.db.QueryRowContext(ctx, getSubdomainRegistrationByUser, userID))
}

const getPendingRegistrationByToken = `SELECT ` + registrationColumns + ` FROM subdomain_registrations
WHERE verification_token = ? AND status = 'pending'`

func (q *Queries) GetPendingRegistrationByToken(ctx context.Context, token string) (SubdomainRegistration, error) {
	return scanRegistration(q.db.QueryRowContext(ctx, getPendingRegistrationByToken, token))
}

const markRegistrationVerified = `UPDATE subdomain_registrations SET status = 'verified', verified_at = ?
WHERE id = ? AND status = 'pending'`

func (q *Queries) MarkRegistrationVerified(ctx context.Context, verifiedAt, id int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, markRegistrationVerified, verifiedAt, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const subdomainTaken = `SELECT EXISTS(SELECT 1 FROM users WHERE subdomain = ?1)
	OR EXISTS(SELECT 1 FROM subdomain_registrations WHERE subdomain = ?1)`

func (q *Queries) SubdomainTaken(ctx context.Context, subdomain string) (bool, error) {
	var taken bool
	err := q.db.QueryRowContext(ctx, subdomainTaken, subdomain).Scan(&taken)
	return taken, err
}
