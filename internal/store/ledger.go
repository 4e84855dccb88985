package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/equalisation/internal/timeutil"
)

// Ledger records key/value notes per pipeline run, so that an interrupted
// run can be resumed without redoing finished stages.
type Ledger struct {
	f     *File
	clock timeutil.Clock
}

// LedgerEntry is one recorded note.
type LedgerEntry struct {
	Key        string
	Value      string
	RecordedAt time.Time
}

// Ledger returns the run ledger kept in f. A nil clock uses the wall clock.
func (f *File) Ledger(clock timeutil.Clock) *Ledger {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Ledger{f: f, clock: clock}
}

// NewRun starts a run and returns its ID.
func (l *Ledger) NewRun() (uuid.UUID, error) {
	id := uuid.New()
	if err := l.Set(id, "started", l.clock.Now().UTC().Format(time.RFC3339Nano)); err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

// Set records value under key for run, replacing any earlier value.
func (l *Ledger) Set(run uuid.UUID, key, value string) error {
	_, err := l.f.db.Exec(`INSERT INTO run_ledger (run_id, key, value, recorded_unix_nanos) VALUES (?, ?, ?, ?)
		ON CONFLICT (run_id, key) DO UPDATE SET value = excluded.value, recorded_unix_nanos = excluded.recorded_unix_nanos`,
		run.String(), key, value, l.clock.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("ledger %s %s: %w", run, key, err)
	}
	return nil
}

// Get returns the value recorded under key for run.
func (l *Ledger) Get(run uuid.UUID, key string) (string, bool, error) {
	var v string
	err := l.f.db.QueryRow(`SELECT value FROM run_ledger WHERE run_id = ? AND key = ?`, run.String(), key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("ledger %s %s: %w", run, key, err)
	}
	return v, true, nil
}

// Entries returns every note of run in recording order.
func (l *Ledger) Entries(run uuid.UUID) ([]LedgerEntry, error) {
	rows, err := l.f.db.Query(`SELECT key, value, recorded_unix_nanos FROM run_ledger
		WHERE run_id = ? ORDER BY recorded_unix_nanos, key`, run.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []LedgerEntry
	for rows.Next() {
		var (
			e  LedgerEntry
			ns int64
		)
		if err := rows.Scan(&e.Key, &e.Value, &ns); err != nil {
			return nil, err
		}
		e.RecordedAt = time.Unix(0, ns)
		out = append(out, e)
	}
	return out, rows.Err()
}

// LatestRun returns the most recently started run.
func (l *Ledger) LatestRun() (uuid.UUID, bool, error) {
	var s string
	err := l.f.db.QueryRow(`SELECT run_id FROM run_ledger WHERE key = 'started'
		ORDER BY recorded_unix_nanos DESC LIMIT 1`).Scan(&s)
	if errors.Is(err, sql.ErrNoRows) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, err
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("ledger has bad run id %q: %w", s, err)
	}
	return id, true, nil
}
