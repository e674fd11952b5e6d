package detector

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	_ "modernc.org/sqlite"
)

// #region schema
const exemplarSchema = `
CREATE TABLE IF NOT EXISTS learned_exemplars (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	detector     TEXT NOT NULL,
	label        TEXT NOT NULL,
	vector       BLOB NOT NULL,
	satisfaction REAL NOT NULL,
	created_at   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_exemplars_detector ON learned_exemplars(detector, label);
`

// #endregion schema

// #region store

// ExemplarStore persists accepted exemplars so the learned boundary survives restarts.
type ExemplarStore struct {
	db *sql.DB
}

// NewExemplarStore creates the learned_exemplars table if needed.
func NewExemplarStore(db *sql.DB) (*ExemplarStore, error) {
	if _, err := db.Exec(exemplarSchema); err != nil {
		return nil, fmt.Errorf("exemplar schema: %w", err)
	}
	return &ExemplarStore{db: db}, nil
}

// Append stores one exemplar.
func (s *ExemplarStore) Append(detector, label string, vec []float32, satisfaction float64) error {
	_, err := s.db.Exec(
		`INSERT INTO learned_exemplars (detector, label, vector, satisfaction, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		detector, label, encodeVector(vec), satisfaction, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert exemplar: %w", err)
	}
	return nil
}

// Load returns up to limit most recent exemplars per label for a detector,
// oldest first so that replaying them into a ring keeps the newest.
func (s *ExemplarStore) Load(detector string, limit int) (map[string][][]float32, error) {
	rows, err := s.db.Query(
		`SELECT label, vector FROM learned_exemplars WHERE detector = ? ORDER BY id ASC`, detector,
	)
	if err != nil {
		return nil, fmt.Errorf("load exemplars: %w", err)
	}
	defer rows.Close()

	out := make(map[string][][]float32)
	for rows.Next() {
		var label string
		var blob []byte
		if err := rows.Scan(&label, &blob); err != nil {
			return nil, fmt.Errorf("scan exemplar: %w", err)
		}
		out[label] = append(out[label], decodeVector(blob))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if limit > 0 {
		for label, vecs := range out {
			if len(vecs) > limit {
				out[label] = vecs[len(vecs)-limit:]
			}
		}
	}
	return out, nil
}

// Count returns the number of stored exemplars for a detector.
func (s *ExemplarStore) Count(detector string) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM learned_exemplars WHERE detector = ?`, detector).Scan(&n)
	return n, err
}

// #endregion store

// #region vector-encoding
func encodeVector(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}

// #endregion vector-encoding
