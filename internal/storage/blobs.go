package storage

import (
	"database/sql"
	"fmt"
)

// Blob is the stored payload of an archive node. ByteLength is non-zero
// only for true binary content; zero means the payload is text.
type Blob struct {
	NodeID     int64  `json:"node_id"`
	Data       []byte `json:"data"`
	ByteLength int64  `json:"byte_length,omitempty"`
	Type       string `json:"type,omitempty"`
}

// StoreBlob stores the payload of the given node and updates the node's
// size. A non-zero byteLength marks the payload as binary; for text the
// size is the payload length in bytes.
func (s *Storage) StoreBlob(nodeID int64, data []byte, contentType string, byteLength int64) error {
	node, err := s.GetNode(nodeID)
	if err != nil {
		return err
	}
	if node == nil {
		return nil
	}

	if byteLength > 0 {
		node.Size = byteLength
	} else {
		node.Size = int64(len(data))
	}
	if _, err := s.UpdateNode(node, true); err != nil {
		return err
	}

	_, err = s.conn.Exec(`
		INSERT INTO blobs (node_id, data, byte_length, type) VALUES (?, ?, ?, ?)
		ON CONFLICT(node_id) DO UPDATE SET
			data = excluded.data, byte_length = excluded.byte_length, type = excluded.type`,
		node.ID, data, byteLength, contentType)
	if err != nil {
		return fmt.Errorf("storage: store blob: %w", err)
	}
	return nil
}

// UpdateBlob replaces the text payload of the given node.
func (s *Storage) UpdateBlob(nodeID int64, data []byte) error {
	node, err := s.GetNode(nodeID)
	if err != nil {
		return err
	}
	if node == nil {
		return nil
	}
	node.Size = int64(len(data))
	if _, err := s.UpdateNode(node, true); err != nil {
		return err
	}
	_, err = s.conn.Exec(`UPDATE blobs SET data = ? WHERE node_id = ?`, data, node.ID)
	if err != nil {
		return fmt.Errorf("storage: update blob: %w", err)
	}
	return nil
}

// FetchBlob returns the payload of the given node, or nil when absent.
func (s *Storage) FetchBlob(nodeID int64) (*Blob, error) {
	var b Blob
	err := s.conn.QueryRow(`SELECT node_id, data, byte_length, type FROM blobs WHERE node_id = ?`,
		nodeID).Scan(&b.NodeID, &b.Data, &b.ByteLength, &b.Type)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage: fetch blob: %w", err)
	}
	return &b, nil
}

// FetchBlobByUUID is FetchBlob keyed by node uuid.
func (s *Storage) FetchBlobByUUID(uuid string) (*Blob, error) {
	node, err := s.GetNodeByUUID(uuid)
	if err != nil || node == nil {
		return nil, err
	}
	return s.FetchBlob(node.ID)
}

// DeleteBlob removes the payload and content index of the given node.
func (s *Storage) DeleteBlob(nodeID int64) error {
	if _, err := s.conn.Exec(`DELETE FROM blobs WHERE node_id = ?`, nodeID); err != nil {
		return fmt.Errorf("storage: delete blob: %w", err)
	}
	if _, err := s.conn.Exec(`DELETE FROM search_index WHERE node_id = ? AND kind = ?`,
		nodeID, IndexContent); err != nil {
		return fmt.Errorf("storage: delete blob index: %w", err)
	}
	return nil
}
