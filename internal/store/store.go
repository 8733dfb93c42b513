package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/taimoss/geoguessr-ai-1/internal/geo"
)

// Store persists captured observations, per-tab session state, and the
// round journal in a local SQLite database.
type Store struct {
	conn *sql.DB
}

// Open opens (and if needed creates) the database at dbPath.
func Open(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single writer; the capture channels and engine share one store.
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec("PRAGMA journal_mode = WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	s := &Store{conn: conn}
	if err := s.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS observations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		tab_id TEXT NOT NULL,
		lat REAL NOT NULL,
		lon REAL NOT NULL,
		place TEXT,
		language TEXT,
		source TEXT NOT NULL,
		captured_at TIMESTAMP NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS tab_sessions (
		tab_id TEXT PRIMARY KEY,
		instance_token TEXT NOT NULL,
		resume_pending BOOLEAN NOT NULL DEFAULT 0,
		session_id TEXT,
		round_index INTEGER NOT NULL DEFAULT 0,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS rounds (
		round_id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		round_index INTEGER NOT NULL,
		gt_lat REAL,
		gt_lon REAL,
		gt_country TEXT,
		pred_lat REAL,
		pred_lon REAL,
		pred_country TEXT,
		distance_km REAL,
		score INTEGER,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_observations_tab ON observations(tab_id, id);
	CREATE INDEX IF NOT EXISTS idx_rounds_session ON rounds(session_id, round_index);
	`
	_, err := s.conn.Exec(schema)
	return err
}

// SaveObservation appends an observation to the log.
func (s *Store) SaveObservation(obs geo.Observation) error {
	_, err := s.conn.Exec(`
		INSERT INTO observations (tab_id, lat, lon, place, language, source, captured_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		obs.TabID, obs.Lat, obs.Lon, obs.Place, obs.Language, string(obs.Source), obs.CapturedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save observation: %w", err)
	}
	return nil
}

// LatestObservation returns the most recent observation for a tab, or
// ok=false when the tab has none.
func (s *Store) LatestObservation(tabID string) (geo.Observation, bool, error) {
	row := s.conn.QueryRow(`
		SELECT lat, lon, place, language, source, captured_at
		FROM observations WHERE tab_id = ? ORDER BY id DESC LIMIT 1`, tabID)

	var obs geo.Observation
	var place, lang sql.NullString
	var source string
	err := row.Scan(&obs.Lat, &obs.Lon, &place, &lang, &source, &obs.CapturedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return geo.Observation{}, false, nil
	}
	if err != nil {
		return geo.Observation{}, false, fmt.Errorf("failed to load observation: %w", err)
	}
	obs.TabID = tabID
	obs.Place = place.String
	obs.Language = lang.String
	obs.Source = geo.Source(source)
	return obs, true, nil
}

// TabSession is the persisted automation state for one tab, used to
// recover after a supervisor-forced reload.
type TabSession struct {
	TabID         string
	InstanceToken string
	ResumePending bool
	SessionID     string
	RoundIndex    int
	UpdatedAt     time.Time
}

// SaveTabSession upserts a tab's session row.
func (s *Store) SaveTabSession(ts TabSession) error {
	_, err := s.conn.Exec(`
		INSERT INTO tab_sessions (tab_id, instance_token, resume_pending, session_id, round_index, updated_at)
		VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(tab_id) DO UPDATE SET
			instance_token = excluded.instance_token,
			resume_pending = excluded.resume_pending,
			session_id = excluded.session_id,
			round_index = excluded.round_index,
			updated_at = CURRENT_TIMESTAMP`,
		ts.TabID, ts.InstanceToken, ts.ResumePending, ts.SessionID, ts.RoundIndex,
	)
	if err != nil {
		return fmt.Errorf("failed to save tab session: %w", err)
	}
	return nil
}

// TabSessionFor loads a tab's session row, or ok=false when absent.
func (s *Store) TabSessionFor(tabID string) (TabSession, bool, error) {
	row := s.conn.QueryRow(`
		SELECT tab_id, instance_token, resume_pending, session_id, round_index, updated_at
		FROM tab_sessions WHERE tab_id = ?`, tabID)

	var ts TabSession
	var sessionID sql.NullString
	err := row.Scan(&ts.TabID, &ts.InstanceToken, &ts.ResumePending, &sessionID, &ts.RoundIndex, &ts.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return TabSession{}, false, nil
	}
	if err != nil {
		return TabSession{}, false, fmt.Errorf("failed to load tab session: %w", err)
	}
	ts.SessionID = sessionID.String
	return ts, true, nil
}

// SetResumePending flips the resume flag for a tab. The flag survives a
// page reload so the automation knows to rejoin instead of starting over.
func (s *Store) SetResumePending(tabID string, pending bool) error {
	_, err := s.conn.Exec(`
		UPDATE tab_sessions SET resume_pending = ?, updated_at = CURRENT_TIMESTAMP
		WHERE tab_id = ?`, pending, tabID)
	if err != nil {
		return fmt.Errorf("failed to set resume flag: %w", err)
	}
	return nil
}

// ClearTab removes a tab's session row and observations, for when a tab
// closes cleanly.
func (s *Store) ClearTab(tabID string) error {
	if _, err := s.conn.Exec(`DELETE FROM tab_sessions WHERE tab_id = ?`, tabID); err != nil {
		return fmt.Errorf("failed to clear tab session: %w", err)
	}
	if _, err := s.conn.Exec(`DELETE FROM observations WHERE tab_id = ?`, tabID); err != nil {
		return fmt.Errorf("failed to clear tab observations: %w", err)
	}
	return nil
}

// RoundRecord is one journaled round.
type RoundRecord struct {
	RoundID     string
	SessionID   string
	RoundIndex  int
	GTLat       float64
	GTLon       float64
	GTCountry   string
	PredLat     float64
	PredLon     float64
	PredCountry string
	DistanceKm  float64
	Score       int
	CreatedAt   time.Time
}

// SaveRound journals a finished round. Re-logging the same round id
// overwrites the previous row.
func (s *Store) SaveRound(r RoundRecord) error {
	_, err := s.conn.Exec(`
		INSERT INTO rounds (round_id, session_id, round_index, gt_lat, gt_lon, gt_country,
			pred_lat, pred_lon, pred_country, distance_km, score)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(round_id) DO UPDATE SET
			gt_lat = excluded.gt_lat,
			gt_lon = excluded.gt_lon,
			gt_country = excluded.gt_country,
			pred_lat = excluded.pred_lat,
			pred_lon = excluded.pred_lon,
			pred_country = excluded.pred_country,
			distance_km = excluded.distance_km,
			score = excluded.score`,
		r.RoundID, r.SessionID, r.RoundIndex, r.GTLat, r.GTLon, r.GTCountry,
		r.PredLat, r.PredLon, r.PredCountry, r.DistanceKm, r.Score,
	)
	if err != nil {
		return fmt.Errorf("failed to save round: %w", err)
	}
	return nil
}

// RoundsForSession returns a session's journaled rounds in play order.
func (s *Store) RoundsForSession(sessionID string) ([]RoundRecord, error) {
	rows, err := s.conn.Query(`
		SELECT round_id, session_id, round_index, gt_lat, gt_lon, gt_country,
			pred_lat, pred_lon, pred_country, distance_km, score, created_at
		FROM rounds WHERE session_id = ? ORDER BY round_index`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rounds: %w", err)
	}
	defer rows.Close()

	var out []RoundRecord
	for rows.Next() {
		var r RoundRecord
		var gtCountry, predCountry sql.NullString
		err := rows.Scan(&r.RoundID, &r.SessionID, &r.RoundIndex, &r.GTLat, &r.GTLon, &gtCountry,
			&r.PredLat, &r.PredLon, &predCountry, &r.DistanceKm, &r.Score, &r.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan round: %w", err)
		}
		r.GTCountry = gtCountry.String
		r.PredCountry = predCountry.String
		out = append(out, r)
	}
	return out, rows.Err()
}
