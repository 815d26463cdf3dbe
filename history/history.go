// Package history - SQLite log of served detection requests.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/nvr-ai/go-detect/images"
)

// DefaultLimit is the number of records Recent returns when limit is not
// positive.
const DefaultLimit = 50

// Detection is one stored detection.
type Detection struct {
	ClassID    int        `json:"class_id"`
	Class      string     `json:"class"`
	Confidence float32    `json:"confidence"`
	Box        images.Box `json:"box"`
}

// Record is one served detection request.
type Record struct {
	RequestID  string      `json:"request_id"`
	Time       time.Time   `json:"time"`
	Width      int         `json:"width"`
	Height     int         `json:"height"`
	RawCount   int         `json:"raw_count"`
	Detections []Detection `json:"detections"`
}

// Store persists records in a SQLite database.
type Store struct {
	*sql.DB
}

// Open opens or creates the database at path.
//
// Arguments:
//   - path: The database file.
//
// Returns:
//   - *Store: The store.
//   - error: An error if the database cannot be opened or migrated.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS requests (
			request_id TEXT PRIMARY KEY,
			created_ns INTEGER NOT NULL,
			width INTEGER NOT NULL,
			height INTEGER NOT NULL,
			raw_count INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS detections (
			request_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			class_id INTEGER NOT NULL,
			class TEXT NOT NULL,
			confidence REAL NOT NULL,
			x REAL, y REAL, width REAL, height REAL,
			PRIMARY KEY (request_id, seq),
			FOREIGN KEY(request_id) REFERENCES requests(request_id)
		);
		CREATE INDEX IF NOT EXISTS requests_created ON requests(created_ns);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create history tables: %w", err)
	}

	return &Store{db}, nil
}

// Record stores a request and its detections in one transaction.
func (s *Store) Record(ctx context.Context, r Record) error {
	tx, err := s.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO requests (request_id, created_ns, width, height, raw_count) VALUES (?, ?, ?, ?, ?)",
		r.RequestID, r.Time.UnixNano(), r.Width, r.Height, r.RawCount); err != nil {
		return fmt.Errorf("failed to record request %s: %w", r.RequestID, err)
	}

	for i, d := range r.Detections {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO detections (request_id, seq, class_id, class, confidence, x, y, width, height) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
			r.RequestID, i, d.ClassID, d.Class, d.Confidence, d.Box.X, d.Box.Y, d.Box.Width, d.Box.Height); err != nil {
			return fmt.Errorf("failed to record detection %d of %s: %w", i, r.RequestID, err)
		}
	}

	return tx.Commit()
}

// Recent returns up to limit records, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	rows, err := s.QueryContext(ctx,
		"SELECT request_id, created_ns, width, height, raw_count FROM requests ORDER BY created_ns DESC, request_id LIMIT ?", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		var r Record
		var created int64
		if err := rows.Scan(&r.RequestID, &created, &r.Width, &r.Height, &r.RawCount); err != nil {
			return nil, err
		}
		r.Time = time.Unix(0, created)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	for i := range records {
		dets, err := s.detections(ctx, records[i].RequestID)
		if err != nil {
			return nil, err
		}
		records[i].Detections = dets
	}
	return records, nil
}

// ClassCounts returns how often each class was detected.
func (s *Store) ClassCounts(ctx context.Context) (map[string]int, error) {
	rows, err := s.QueryContext(ctx, "SELECT class, COUNT(*) FROM detections GROUP BY class")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var class string
		var n int
		if err := rows.Scan(&class, &n); err != nil {
			return nil, err
		}
		counts[class] = n
	}
	return counts, rows.Err()
}

func (s *Store) detections(ctx context.Context, requestID string) ([]Detection, error) {
	rows, err := s.QueryContext(ctx,
		"SELECT class_id, class, confidence, x, y, width, height FROM detections WHERE request_id = ? ORDER BY seq", requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	dets := []Detection{}
	for rows.Next() {
		var d Detection
		if err := rows.Scan(&d.ClassID, &d.Class, &d.Confidence, &d.Box.X, &d.Box.Y, &d.Box.Width, &d.Box.Height); err != nil {
			return nil, err
		}
		dets = append(dets, d)
	}
	return dets, rows.Err()
}
