package storage

import (
	"fmt"
	"strings"
)

// IndexKind selects one of the independent word indices.
type IndexKind int

const (
	IndexContent IndexKind = iota + 1
	IndexNotes
	IndexComments
)

// StoreIndex replaces the word set of a node in the given index.
func (s *Storage) StoreIndex(nodeID int64, kind IndexKind, words []string) error {
	tx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("storage: begin index: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(`DELETE FROM search_index WHERE node_id = ? AND kind = ?`, nodeID, kind); err != nil {
		return fmt.Errorf("storage: clear index: %w", err)
	}
	if len(words) > 0 {
		stmt, err := tx.Prepare(`INSERT INTO search_index (node_id, kind, word) VALUES (?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("storage: prepare index insert: %w", err)
		}
		defer stmt.Close()
		seen := make(map[string]struct{}, len(words))
		for _, w := range words {
			w = strings.ToLower(w)
			if _, ok := seen[w]; ok {
				continue
			}
			seen[w] = struct{}{}
			if _, err := stmt.Exec(nodeID, kind, w); err != nil {
				return fmt.Errorf("storage: insert index word: %w", err)
			}
		}
	}
	return tx.Commit()
}

// UpdateIndex replaces the content index word set of a node.
func (s *Storage) UpdateIndex(nodeID int64, words []string) error {
	return s.StoreIndex(nodeID, IndexContent, words)
}

// UpdateNoteIndex replaces the notes index word set of a node.
func (s *Storage) UpdateNoteIndex(nodeID int64, words []string) error {
	return s.StoreIndex(nodeID, IndexNotes, words)
}

// UpdateCommentIndex replaces the comments index word set of a node.
func (s *Storage) UpdateCommentIndex(nodeID int64, words []string) error {
	return s.StoreIndex(nodeID, IndexComments, words)
}

// FetchIndex returns the indexed words of a node in the given index.
func (s *Storage) FetchIndex(nodeID int64, kind IndexKind) ([]string, error) {
	rows, err := s.conn.Query(`SELECT word FROM search_index WHERE node_id = ? AND kind = ?`, nodeID, kind)
	if err != nil {
		return nil, fmt.Errorf("storage: fetch index: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var w string
		if err := rows.Scan(&w); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// FilterByContent returns the candidates whose index contains a match for
// every given word, prefix-compared. Each word is looked up independently
// and the per-node match counts are intersected against the word count.
// A nil candidate list means all indexed nodes qualify as candidates.
func (s *Storage) FilterByContent(candidates []Node, words []string, kind IndexKind) ([]Node, error) {
	if len(words) == 0 {
		return nil, nil
	}

	var candidateIDs map[int64]struct{}
	if candidates != nil {
		candidateIDs = make(map[int64]struct{}, len(candidates))
		for _, n := range candidates {
			candidateIDs[n.ID] = struct{}{}
		}
	}

	wordCount := make(map[int64]int)
	for _, word := range words {
		matched, err := s.matchIndexPrefix(strings.ToLower(word), kind)
		if err != nil {
			return nil, err
		}
		for id := range matched {
			if candidateIDs != nil {
				if _, ok := candidateIDs[id]; !ok {
					continue
				}
			}
			wordCount[id]++
		}
	}

	if candidates == nil {
		// a nil id list means "all nodes" to GetNodes, so a no-match
		// result has to stay a non-nil empty slice
		ids := make([]int64, 0, len(wordCount))
		for id, c := range wordCount {
			if c == len(words) {
				ids = append(ids, id)
			}
		}
		return s.GetNodes(ids)
	}

	var out []Node
	for _, n := range candidates {
		if wordCount[n.ID] == len(words) {
			out = append(out, n)
		}
	}
	return out, nil
}

func (s *Storage) matchIndexPrefix(prefix string, kind IndexKind) (map[int64]struct{}, error) {
	rows, err := s.conn.Query(`SELECT DISTINCT node_id FROM search_index
		WHERE kind = ? AND word >= ? AND word < ?`, kind, prefix, prefix+"￿")
	if err != nil {
		return nil, fmt.Errorf("storage: index prefix match: %w", err)
	}
	defer rows.Close()
	out := make(map[int64]struct{})
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = struct{}{}
	}
	return out, rows.Err()
}
