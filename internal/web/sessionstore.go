package web

import (
	"database/sql"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
)

// SessionStore keeps scs sessions in the sessions table. Expiry is stored as unix seconds.
type SessionStore struct {
	db   *sql.DB
	now  func() time.Time
	stop chan struct{}
}

// NewSessionStore sweeps expired sessions every cleanupInterval; zero disables the sweep.
func NewSessionStore(db *sql.DB, cleanupInterval time.Duration) *SessionStore {
	s := &SessionStore{db: db, now: time.Now}
	if cleanupInterval > 0 {
		s.stop = make(chan struct{})
		go s.cleanup(cleanupInterval)
	}
	return s
}

func unix(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

func (s *SessionStore) Find(token string) ([]byte, bool, error) {
	var b []byte
	err := s.db.QueryRow("SELECT data FROM sessions WHERE token = ? AND expiry > ?", token, unix(s.now())).Scan(&b)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	} else if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (s *SessionStore) Save(token string, b []byte, expiry time.Time) error {
	_, err := s.db.Exec(`INSERT INTO sessions (token, data, expiry) VALUES (?, ?, ?)
		ON CONFLICT (token) DO UPDATE SET data = excluded.data, expiry = excluded.expiry`, token, b, unix(expiry))
	return err
}

func (s *SessionStore) Delete(token string) error {
	_, err := s.db.Exec("DELETE FROM sessions WHERE token = ?", token)
	return err
}

// DeleteExpired removes the sessions whose expiry has passed and returns how many there were.
func (s *SessionStore) DeleteExpired() (int64, error) {
	res, err := s.db.Exec("DELETE FROM sessions WHERE expiry <= ?", unix(s.now()))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *SessionStore) cleanup(interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			if _, err := s.DeleteExpired(); err != nil {
				log.Error().Err(err).Msg("failed to sweep expired sessions")
			}
		case <-s.stop:
			return
		}
	}
}

// StopCleanup ends the sweep goroutine.
func (s *SessionStore) StopCleanup() {
	if s.stop != nil {
		close(s.stop)
		s.stop = nil
	}
}
