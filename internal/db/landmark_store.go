package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/banshee-data/localizer/internal/worldmap"
)

// MapInfo summarizes a stored landmark map.
type MapInfo struct {
	ID            int       `json:"id"`
	Name          string    `json:"name"`
	LandmarkCount int       `json:"landmark_count"`
	CreatedAt     time.Time `json:"created_at"`
}

// SaveMap stores a landmark map under the given name, replacing any
// existing map with that name. Landmark order is preserved so a
// reloaded map associates identically to the original.
func (db *DB) SaveMap(name string, m *worldmap.Map) error {
	if err := m.Validate(); err != nil {
		return fmt.Errorf("refusing to save invalid map %q: %w", name, err)
	}

	tx, err := db.DB.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM maps WHERE name = ?`, name); err != nil {
		return fmt.Errorf("failed to replace map %q: %w", name, err)
	}

	result, err := tx.Exec(
		`INSERT INTO maps (name, created_at) VALUES (?, ?)`,
		name, time.Now().UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to insert map %q: %w", name, err)
	}
	mapID, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get map id: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO map_landmarks (map_id, seq, landmark_id, x, y)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare landmark insert: %w", err)
	}
	defer stmt.Close()

	for i, lm := range m.Landmarks {
		if _, err := stmt.Exec(mapID, i, lm.ID, lm.X, lm.Y); err != nil {
			return fmt.Errorf("failed to insert landmark %d of map %q: %w", lm.ID, name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit map %q: %w", name, err)
	}

	return nil
}

// LoadMap retrieves a landmark map by name in its original order.
func (db *DB) LoadMap(name string) (*worldmap.Map, error) {
	var mapID int
	err := db.DB.QueryRow(`SELECT map_id FROM maps WHERE name = ?`, name).Scan(&mapID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("map %q not found", name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up map %q: %w", name, err)
	}

	rows, err := db.DB.Query(`
		SELECT landmark_id, x, y
		FROM map_landmarks
		WHERE map_id = ?
		ORDER BY seq ASC
	`, mapID)
	if err != nil {
		return nil, fmt.Errorf("failed to load landmarks for map %q: %w", name, err)
	}
	defer rows.Close()

	m := &worldmap.Map{}
	for rows.Next() {
		var lm worldmap.Landmark
		if err := rows.Scan(&lm.ID, &lm.X, &lm.Y); err != nil {
			return nil, fmt.Errorf("failed to scan landmark: %w", err)
		}
		m.Landmarks = append(m.Landmarks, lm)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate landmarks: %w", err)
	}

	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("stored map %q is invalid: %w", name, err)
	}

	return m, nil
}

// ListMaps returns summaries of all stored maps, newest first.
func (db *DB) ListMaps() ([]*MapInfo, error) {
	rows, err := db.DB.Query(`
		SELECT m.map_id, m.name, m.created_at, COUNT(l.map_id)
		FROM maps m
		LEFT JOIN map_landmarks l ON l.map_id = m.map_id
		GROUP BY m.map_id
		ORDER BY m.created_at DESC, m.map_id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list maps: %w", err)
	}
	defer rows.Close()

	var infos []*MapInfo
	for rows.Next() {
		var info MapInfo
		var createdAt string
		if err := rows.Scan(&info.ID, &info.Name, &createdAt, &info.LandmarkCount); err != nil {
			return nil, fmt.Errorf("failed to scan map info: %w", err)
		}
		if info.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
			return nil, fmt.Errorf("failed to parse created_at %q: %w", createdAt, err)
		}
		infos = append(infos, &info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate maps: %w", err)
	}

	return infos, nil
}

// DeleteMap removes a stored map and its landmarks.
func (db *DB) DeleteMap(name string) error {
	result, err := db.DB.Exec(`DELETE FROM maps WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("failed to delete map %q: %w", name, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("map %q not found", name)
	}
	return nil
}
