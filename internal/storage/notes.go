package storage

import (
	"database/sql"
	"fmt"
)

// Notes is the auxiliary note record of a node.
type Notes struct {
	NodeID  int64  `json:"node_id"`
	Content string `json:"content"`
	Format  string `json:"format,omitempty"` // org, markdown, text, html, delta
	HTML    string `json:"html,omitempty"`   // rendered cache for delta format
	Align   string `json:"align,omitempty"`
}

// StoreNotes upserts a node's notes and maintains the node's has_notes
// flag and size. Delta-format notes count the rendered html too.
func (s *Storage) StoreNotes(n Notes) error {
	node, err := s.GetNode(n.NodeID)
	if err != nil {
		return err
	}
	if node == nil {
		return nil
	}

	_, err = s.conn.Exec(`
		INSERT INTO notes (node_id, content, format, html, align) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(node_id) DO UPDATE SET
			content = excluded.content, format = excluded.format,
			html = excluded.html, align = excluded.align`,
		n.NodeID, n.Content, n.Format, n.HTML, n.Align)
	if err != nil {
		return fmt.Errorf("storage: store notes: %w", err)
	}

	node.HasNotes = n.Content != ""
	if node.HasNotes {
		node.Size = int64(len(n.Content))
		if n.Format == "delta" {
			node.Size += int64(len(n.HTML))
		}
	} else {
		node.Size = 0
	}
	_, err = s.UpdateNode(node, true)
	return err
}

// FetchNotes returns the notes of the given node, or nil when absent.
func (s *Storage) FetchNotes(nodeID int64) (*Notes, error) {
	var n Notes
	err := s.conn.QueryRow(`SELECT node_id, content, format, html, align FROM notes WHERE node_id = ?`,
		nodeID).Scan(&n.NodeID, &n.Content, &n.Format, &n.HTML, &n.Align)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage: fetch notes: %w", err)
	}
	return &n, nil
}

// StoreComments upserts a node's comments and maintains has_comments.
func (s *Storage) StoreComments(nodeID int64, comments string) error {
	node, err := s.GetNode(nodeID)
	if err != nil {
		return err
	}
	if node == nil {
		return nil
	}
	_, err = s.conn.Exec(`
		INSERT INTO comments (node_id, comments) VALUES (?, ?)
		ON CONFLICT(node_id) DO UPDATE SET comments = excluded.comments`,
		nodeID, comments)
	if err != nil {
		return fmt.Errorf("storage: store comments: %w", err)
	}
	node.HasComments = comments != ""
	_, err = s.UpdateNode(node, true)
	return err
}

// FetchComments returns the comments of the given node, empty when absent.
func (s *Storage) FetchComments(nodeID int64) (string, error) {
	var c string
	err := s.conn.QueryRow(`SELECT comments FROM comments WHERE node_id = ?`, nodeID).Scan(&c)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("storage: fetch comments: %w", err)
	}
	return c, nil
}

// StoreIcon upserts a node's icon payload, marking stored_icon on first
// insert.
func (s *Storage) StoreIcon(nodeID int64, dataURL string) error {
	var n int
	if err := s.conn.QueryRow(`SELECT COUNT(*) FROM icons WHERE node_id = ?`, nodeID).Scan(&n); err != nil {
		return fmt.Errorf("storage: icon exists: %w", err)
	}
	if n > 0 {
		_, err := s.conn.Exec(`UPDATE icons SET data_url = ? WHERE node_id = ?`, dataURL, nodeID)
		if err != nil {
			return fmt.Errorf("storage: update icon: %w", err)
		}
		return nil
	}
	if _, err := s.conn.Exec(`INSERT INTO icons (node_id, data_url) VALUES (?, ?)`, nodeID, dataURL); err != nil {
		return fmt.Errorf("storage: store icon: %w", err)
	}
	if _, err := s.conn.Exec(`UPDATE nodes SET stored_icon = 1 WHERE id = ?`, nodeID); err != nil {
		return fmt.Errorf("storage: mark stored icon: %w", err)
	}
	return nil
}

// FetchIcon returns the stored icon payload, empty when absent.
func (s *Storage) FetchIcon(nodeID int64) (string, error) {
	var dataURL string
	err := s.conn.QueryRow(`SELECT data_url FROM icons WHERE node_id = ?`, nodeID).Scan(&dataURL)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("storage: fetch icon: %w", err)
	}
	return dataURL, nil
}
