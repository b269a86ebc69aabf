// Package journal records accepted edits in sqlite so an unsaved session can
// be recovered after a crash.
package journal

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/tliron/commonlog"

	"simplide/internal/buffer"
	"simplide/internal/editlog"
)

var log = commonlog.GetLogger("simplide.journal")

type Journal struct {
	db *sql.DB
}

// Session is a recorded editing session.
type Session struct {
	ID          uuid.UUID
	URI         string
	BaseVersion uint64
	Created     time.Time
	Edits       int
}

// Recovery is a session reconstructed from the journal.
type Recovery struct {
	Session
	Base    string
	Edits   []buffer.Edit
	Text    string
	Version uint64
}

func Open(path string) (*Journal, error) {
	// Foreign keys are per connection, so they go in the DSN.
	db, err := sql.Open("sqlite3", "file:"+path+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	log.Debugf("journal open at %s", path)
	return &Journal{db: db}, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}

func (j *Journal) WithTx(fn func(*sql.Tx) error) error {
	tx, err := j.db.Begin()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTransaction, err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTransaction, err)
	}

	return nil
}

// Begin starts a session for uri whose text at version is base.
func (j *Journal) Begin(uri, base string, version uint64) (uuid.UUID, error) {
	id := uuid.New()
	_, err := j.db.Exec(`
        INSERT INTO sessions (id, uri, base_text, base_version, created)
        VALUES (?, ?, ?, ?, ?)
    `, id.String(), uri, base, int64(version), time.Now().UnixNano())
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to begin session: %w", err)
	}
	return id, nil
}

// Record appends edits to a session in one transaction.
func (j *Journal) Record(id uuid.UUID, edits ...buffer.Edit) error {
	return j.WithTx(func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRow("SELECT COUNT(*) FROM sessions WHERE id = ?", id.String()).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to query session: %w", err)
		}
		if exists == 0 {
			return ErrNotFound
		}
		stmt, err := tx.Prepare(`
            INSERT INTO edits (session_id, version_before, version_after, start_offset,
                end_offset, old_text, new_text, origin, timestamp)
            VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
        `)
		if err != nil {
			return fmt.Errorf("failed to prepare insert: %w", err)
		}
		defer stmt.Close()
		for _, e := range edits {
			_, err := stmt.Exec(id.String(), int64(e.VersionBefore), int64(e.VersionAfter),
				e.Range.Start, e.Range.End, e.OldText, e.NewText, int(e.Origin), e.Timestamp.UnixNano())
			if err != nil {
				return fmt.Errorf("failed to record edit %d: %w", e.VersionAfter, err)
			}
		}
		return nil
	})
}

// Sessions lists recorded sessions, newest first.
func (j *Journal) Sessions() ([]Session, error) {
	rows, err := j.db.Query(`
        SELECT s.id, s.uri, s.base_version, s.created, COUNT(e.version_after)
        FROM sessions s LEFT JOIN edits e ON e.session_id = s.id
        GROUP BY s.id
        ORDER BY s.created DESC
    `)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}
	return sessions, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (Session, error) {
	var (
		s       Session
		id      string
		base    int64
		created int64
	)
	if err := row.Scan(&id, &s.URI, &base, &created, &s.Edits); err != nil {
		return Session{}, fmt.Errorf("failed to scan session: %w", err)
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return Session{}, fmt.Errorf("%w: session id %q: %v", ErrCorrupt, id, err)
	}
	s.ID = parsed
	s.BaseVersion = uint64(base)
	s.Created = time.Unix(0, created)
	return s, nil
}

// Recover rebuilds the text of a session by replaying its edits.
func (j *Journal) Recover(id uuid.UUID) (Recovery, error) {
	var r Recovery
	row := j.db.QueryRow(`
        SELECT s.id, s.uri, s.base_version, s.created,
            (SELECT COUNT(*) FROM edits WHERE session_id = s.id)
        FROM sessions s WHERE s.id = ?
    `, id.String())
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Recovery{}, ErrNotFound
	}
	if err != nil {
		return Recovery{}, err
	}
	r.Session = s
	if err := j.db.QueryRow("SELECT base_text FROM sessions WHERE id = ?", id.String()).Scan(&r.Base); err != nil {
		return Recovery{}, fmt.Errorf("failed to load base text: %w", err)
	}

	rows, err := j.db.Query(`
        SELECT version_before, version_after, start_offset, end_offset,
            old_text, new_text, origin, timestamp
        FROM edits WHERE session_id = ? ORDER BY version_after
    `, id.String())
	if err != nil {
		return Recovery{}, fmt.Errorf("failed to query edits: %w", err)
	}
	defer rows.Close()

	chain := editlog.New(s.BaseVersion)
	for rows.Next() {
		var (
			e             buffer.Edit
			before, after int64
			origin        int
			ts            int64
		)
		if err := rows.Scan(&before, &after, &e.Range.Start, &e.Range.End,
			&e.OldText, &e.NewText, &origin, &ts); err != nil {
			return Recovery{}, fmt.Errorf("failed to scan edit: %w", err)
		}
		e.VersionBefore, e.VersionAfter = uint64(before), uint64(after)
		e.Origin = buffer.Origin(origin)
		e.Timestamp = time.Unix(0, ts)
		if err := chain.Append(e); err != nil {
			return Recovery{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		r.Edits = append(r.Edits, e)
	}
	if err := rows.Err(); err != nil {
		return Recovery{}, fmt.Errorf("error iterating edits: %w", err)
	}

	r.Text, err = editlog.Replay(r.Base, r.Edits)
	if err != nil {
		return Recovery{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	r.Version = chain.Head()
	return r, nil
}

// Discard deletes a session and its edits.
func (j *Journal) Discard(id uuid.UUID) error {
	result, err := j.db.Exec("DELETE FROM sessions WHERE id = ?", id.String())
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	if affected == 0 {
		return ErrNotFound
	}

	return nil
}
