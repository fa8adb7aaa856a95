package session

import (
	"database/sql"
	"strconv"

	_ "github.com/mattn/go-sqlite3"

	"github.com/saiset-co/servicehub-client/types"
)

const (
	keyToken  = "token"
	keyEmail  = "email"
	keyName   = "name"
	keyRole   = "role"
	keyUserID = "user_id"
	keyBranch = "branch"
)

// SQLiteStore keeps the session as key/value rows.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(config *types.SessionConfig) (types.SessionStore, error) {
	if config == nil || config.Path == "" {
		return nil, types.Errorf(types.ErrSessionOpenFailed, "sqlite session store needs a path")
	}

	db, err := sql.Open("sqlite3", config.Path)
	if err != nil {
		return nil, types.Errorf(types.ErrSessionOpenFailed, "open sqlite at %s: %v", config.Path, err)
	}
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err := store.initDatabase(); err != nil {
		_ = db.Close()
		return nil, types.WrapError(err, "failed to initialize database")
	}

	return store, nil
}

func (s *SQLiteStore) initDatabase() error {
	query := `
	CREATE TABLE IF NOT EXISTS session (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);`

	_, err := s.db.Exec(query)
	return err
}

func (s *SQLiteStore) Save(session types.Session) error {
	tx, err := s.db.Begin()
	if err != nil {
		return types.WrapError(err, "failed to begin session transaction")
	}

	values := map[string]string{
		keyToken:  session.Token,
		keyEmail:  session.Email,
		keyName:   session.Name,
		keyRole:   session.Role,
		keyUserID: strconv.Itoa(session.UserID),
		keyBranch: session.Branch,
	}

	for key, value := range values {
		_, err := tx.Exec(`INSERT INTO session (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`, key, value)
		if err != nil {
			_ = tx.Rollback()
			return types.WrapError(err, "failed to store session value")
		}
	}

	return types.WrapError(tx.Commit(), "failed to commit session")
}

func (s *SQLiteStore) Load() (types.Session, error) {
	rows, err := s.db.Query(`SELECT key, value FROM session`)
	if err != nil {
		return types.Session{}, types.WrapError(err, "failed to read session")
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	var session types.Session
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return types.Session{}, types.Errorf(types.ErrSessionCorrupted, "%v", err)
		}

		switch key {
		case keyToken:
			session.Token = value
		case keyEmail:
			session.Email = value
		case keyName:
			session.Name = value
		case keyRole:
			session.Role = value
		case keyBranch:
			session.Branch = value
		case keyUserID:
			if value == "" {
				continue
			}
			id, err := strconv.Atoi(value)
			if err != nil {
				return types.Session{}, types.Errorf(types.ErrSessionCorrupted, "user_id %q", value)
			}
			session.UserID = id
		}
	}

	if err := rows.Err(); err != nil {
		return types.Session{}, types.WrapError(err, "failed to read session")
	}

	return session, nil
}

func (s *SQLiteStore) Clear() error {
	_, err := s.db.Exec(`DELETE FROM session`)
	return types.WrapError(err, "failed to clear session")
}

func (s *SQLiteStore) Close() error {
	return types.WrapError(s.db.Close(), "failed to close session database")
}
