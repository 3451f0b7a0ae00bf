package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/Tyrowin/timp-relay/internal/idgen"
)

//go:embed schema.sql
var schemaSQL string

// receivedLayout is fixed width so that received_at sorts as text.
const receivedLayout = "2006-01-02T15:04:05.000000000Z"

const defaultBusyTimeoutMS = 10_000

const classColumns = `id, extraction_id, fecha, nombre, hora_inicio, hora_fin, instructor,
	reservados, asistidos, no_show, salida_anticipada, confirmados, cancelados, ausentes`

const extractionColumns = `id, fecha, url, timestamp, source_role, source_id, total_clases, received_at`

// SQLiteStore is the persistent backend. It keeps full history indexed by
// date.
type SQLiteStore struct {
	db    *sql.DB
	log   zerolog.Logger
	locks dateLocks
	newID idgen.Generator
	now   func() time.Time
}

// OpenSQLite opens (creating if needed) the database at cfg.Path. The path
// ":memory:" yields a private in-memory database.
func OpenSQLite(cfg Config, log zerolog.Logger) (*SQLiteStore, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("store.path is required for sqlite driver")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("store: mkdir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	// One connection: SQLite prefers a single writer, and ":memory:" is
	// private to the connection that created it.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	busy := cfg.BusyTimeoutMS
	if busy <= 0 {
		busy = defaultBusyTimeoutMS
	}
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		fmt.Sprintf("PRAGMA busy_timeout = %d", busy),
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("store: %s: %w", p, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: schema: %w", err)
	}

	return &SQLiteStore{
		db:    db,
		log:   log.With().Str("component", "store").Str("driver", "sqlite").Logger(),
		newID: idgen.Default,
		now:   time.Now,
	}, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) ReplaceByDate(ctx context.Context, sub Submission) (*Extraction, error) {
	if err := ValidDate(sub.Fecha); err != nil {
		return nil, err
	}
	unlock := s.locks.lock(sub.Fecha)
	defer unlock()

	ext := &Extraction{
		ID:          s.newID(),
		Fecha:       sub.Fecha,
		URL:         sub.URL,
		Timestamp:   sub.Timestamp,
		SourceRole:  sub.SourceRole,
		SourceID:    sub.SourceID,
		TotalClases: sub.TotalClases,
		ReceivedAt:  s.now().UTC(),
	}

	err := runTx(ctx, s.db, func(tx *sql.Tx) error {
		ext.Classes = make([]Class, 0, len(sub.Classes))

		var oldID string
		err := tx.QueryRowContext(ctx, `SELECT id FROM extractions WHERE fecha = ?`, sub.Fecha).Scan(&oldID)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return storageErr("lookup extraction", err)
		default:
			if _, err := tx.ExecContext(ctx, `DELETE FROM classes WHERE extraction_id = ?`, oldID); err != nil {
				return storageErr("delete classes", err)
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM extractions WHERE id = ?`, oldID); err != nil {
				return storageErr("delete extraction", err)
			}
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO extractions(`+extractionColumns+`) VALUES(?,?,?,?,?,?,?,?)`,
			ext.ID, ext.Fecha, ext.URL, ext.Timestamp, ext.SourceRole, ext.SourceID,
			ext.TotalClases, ext.ReceivedAt.Format(receivedLayout),
		)
		if err != nil {
			return storageErr("insert extraction", err)
		}

		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO classes(extraction_id, fecha, position, nombre, hora_inicio, hora_fin, instructor,
				instructor_key, reservados, asistidos, no_show, salida_anticipada, confirmados, cancelados, ausentes)
			 VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`)
		if err != nil {
			return storageErr("prepare class insert", err)
		}
		defer stmt.Close()

		for i, c := range sub.Classes {
			res, err := stmt.ExecContext(ctx,
				ext.ID, ext.Fecha, i, c.Name, c.StartTime, c.EndTime, c.Instructor,
				instructorKey(c.Instructor), c.Reserved, c.Attended, c.NoShow, c.LeftEarly, c.Confirmed, c.Canceled, c.Absent,
			)
			if err != nil {
				// A bad class row is dropped; the extraction itself stands.
				s.log.Warn().Err(err).Str("fecha", ext.Fecha).Int("position", i).
					Str("nombre", c.Name).Msg("class insert failed")
				continue
			}
			c.ID, _ = res.LastInsertId()
			c.ExtractionID = ext.ID
			c.Fecha = ext.Fecha
			ext.Classes = append(ext.Classes, c)
		}
		return nil
	})
	if err != nil {
		return nil, storageErr("replace by date", err)
	}

	s.log.Debug().Str("fecha", ext.Fecha).Str("id", ext.ID).Int("clases", len(ext.Classes)).
		Msg("extraction replaced")
	return ext, nil
}

func (s *SQLiteStore) ExtractionByDate(ctx context.Context, fecha string) (*Extraction, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+extractionColumns+` FROM extractions WHERE fecha = ?`, fecha)
	ext, err := scanExtraction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storageErr("extraction by date", err)
	}
	ext.Classes, err = s.queryClasses(ctx, "extraction by date",
		`WHERE extraction_id = ? ORDER BY position`, ext.ID)
	if err != nil {
		return nil, err
	}
	return ext, nil
}

func (s *SQLiteStore) ClassesByDate(ctx context.Context, fecha string) ([]Class, error) {
	return s.queryClasses(ctx, "classes by date", `WHERE fecha = ? ORDER BY position`, fecha)
}

func (s *SQLiteStore) ClassesByInstructor(ctx context.Context, instructor string) ([]Class, error) {
	return s.queryClasses(ctx, "classes by instructor",
		`WHERE instructor_key = ? ORDER BY fecha, position`, instructorKey(instructor))
}

func (s *SQLiteStore) ClassesByDateRange(ctx context.Context, from, to string) ([]Class, error) {
	return s.queryClasses(ctx, "classes by date range",
		`WHERE fecha BETWEEN ? AND ? ORDER BY fecha, position`, from, to)
}

func (s *SQLiteStore) RecentExtractions(ctx context.Context, limit int) ([]Extraction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+extractionColumns+` FROM extractions ORDER BY received_at DESC, id DESC LIMIT ?`,
		normalizeLimit(limit))
	if err != nil {
		return nil, storageErr("recent extractions", err)
	}
	var out []Extraction
	for rows.Next() {
		ext, err := scanExtraction(rows)
		if err != nil {
			rows.Close()
			return nil, storageErr("recent extractions", err)
		}
		out = append(out, *ext)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, storageErr("recent extractions", err)
	}
	rows.Close()

	for i := range out {
		out[i].Classes, err = s.queryClasses(ctx, "recent extractions",
			`WHERE extraction_id = ? ORDER BY position`, out[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *SQLiteStore) AggregateStats(ctx context.Context) (Stats, error) {
	var st Stats
	var first, last sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), MIN(fecha), MAX(fecha) FROM extractions`).Scan(&st.Extractions, &first, &last)
	if err != nil {
		return Stats{}, storageErr("aggregate stats", err)
	}
	st.FirstDate, st.LastDate = first.String, last.String

	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*),
		COUNT(DISTINCT NULLIF(instructor_key, '')),
		COALESCE(SUM(reservados), 0), COALESCE(SUM(asistidos), 0), COALESCE(SUM(no_show), 0),
		COALESCE(SUM(salida_anticipada), 0), COALESCE(SUM(confirmados), 0),
		COALESCE(SUM(cancelados), 0), COALESCE(SUM(ausentes), 0)
		FROM classes`).Scan(&st.Classes, &st.Instructors,
		&st.Attendance.Reserved, &st.Attendance.Attended, &st.Attendance.NoShow,
		&st.Attendance.LeftEarly, &st.Attendance.Confirmed, &st.Attendance.Canceled,
		&st.Attendance.Absent)
	if err != nil {
		return Stats{}, storageErr("aggregate stats", err)
	}
	return st, nil
}

func (s *SQLiteStore) queryClasses(ctx context.Context, op, where string, args ...any) ([]Class, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+classColumns+` FROM classes `+where, args...)
	if err != nil {
		return nil, storageErr(op, err)
	}
	defer rows.Close()

	out := []Class{}
	for rows.Next() {
		var c Class
		if err := rows.Scan(&c.ID, &c.ExtractionID, &c.Fecha, &c.Name, &c.StartTime, &c.EndTime,
			&c.Instructor, &c.Reserved, &c.Attended, &c.NoShow, &c.LeftEarly, &c.Confirmed,
			&c.Canceled, &c.Absent); err != nil {
			return nil, storageErr(op, err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(op, err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExtraction(r rowScanner) (*Extraction, error) {
	var ext Extraction
	var received string
	if err := r.Scan(&ext.ID, &ext.Fecha, &ext.URL, &ext.Timestamp, &ext.SourceRole,
		&ext.SourceID, &ext.TotalClases, &received); err != nil {
		return nil, err
	}
	t, err := time.Parse(receivedLayout, received)
	if err != nil {
		return nil, fmt.Errorf("parse received_at %q: %w", received, err)
	}
	ext.ReceivedAt = t
	return &ext, nil
}
