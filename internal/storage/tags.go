package storage

import "fmt"

// Tag is a dictionary entry used for search auto-completion.
type Tag struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// AddTags records unseen tag names in the dictionary. Faithful to the
// historical behavior, at most one missing tag is inserted per call; the
// dictionary catches up over subsequent calls.
func (s *Storage) AddTags(tags []string) error {
	for _, tag := range tags {
		var n int
		if err := s.conn.QueryRow(`SELECT COUNT(*) FROM tags WHERE name = ?`, tag).Scan(&n); err != nil {
			return fmt.Errorf("storage: tag exists: %w", err)
		}
		if n == 0 {
			if _, err := s.conn.Exec(`INSERT INTO tags (name) VALUES (?)`, tag); err != nil {
				return fmt.Errorf("storage: add tag: %w", err)
			}
			return nil
		}
	}
	return nil
}

// QueryTags returns the whole tag dictionary.
func (s *Storage) QueryTags() ([]Tag, error) {
	rows, err := s.conn.Query(`SELECT id, name FROM tags`)
	if err != nil {
		return nil, fmt.Errorf("storage: query tags: %w", err)
	}
	defer rows.Close()
	var out []Tag
	for rows.Next() {
		var t Tag
		if err := rows.Scan(&t.ID, &t.Name); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
