package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

func nowMillis() int64 {
	return time.Now().UnixMilli()
}

func millisToTime(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

const nodeColumns = `id, uuid, parent_id, type, pos, name, uri, icon, tags, tag_list,
	details, todo_state, todo_date, date_added, date_modified, stored_icon,
	has_notes, has_comments, external, external_id, container, content_type, size`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNode(row rowScanner) (Node, error) {
	var n Node
	var tagList string
	var added, modified int64
	err := row.Scan(&n.ID, &n.UUID, &n.ParentID, &n.Type, &n.Pos, &n.Name, &n.URI,
		&n.Icon, &n.Tags, &tagList, &n.Details, &n.TodoState, &n.TodoDate,
		&added, &modified, &n.StoredIcon, &n.HasNotes, &n.HasComments,
		&n.External, &n.ExternalID, &n.Container, &n.ContentType, &n.Size)
	if err != nil {
		return Node{}, err
	}
	n.DateAdded = millisToTime(added)
	n.DateModified = millisToTime(modified)
	if tagList != "" && tagList != "[]" {
		_ = json.Unmarshal([]byte(tagList), &n.TagList)
	}
	return n, nil
}

func (s *Storage) queryNodeRows(query string, args ...any) ([]Node, error) {
	rows, err := s.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: query nodes: %w", err)
	}
	defer rows.Close()

	var out []Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// AddOptions suppresses the defaults applied by AddNode. The zero value
// resets the position, assigns a fresh uuid, and stamps both dates.
type AddOptions struct {
	KeepOrder bool
	KeepUUID  bool
	KeepDates bool
}

// AddNode persists a new node and returns it with its assigned id.
// Unless suppressed, pos is set to the place-at-end sentinel, a new uuid
// is generated (reserved special uuids are never replaced), and both
// timestamps are set to now.
func (s *Storage) AddNode(n Node, opt AddOptions) (Node, error) {
	if !opt.KeepOrder {
		n.Pos = DefaultPosition
	}
	if !opt.KeepUUID && !IsSpecialUUID(n.UUID) {
		n.UUID = NewUUID()
	}
	if n.UUID == "" {
		n.UUID = NewUUID()
	}
	if !opt.KeepDates {
		n.DateAdded = time.Now()
		n.DateModified = n.DateAdded
	}
	if n.DateAdded.IsZero() {
		n.DateAdded = time.Now()
	}
	if n.DateModified.IsZero() {
		n.DateModified = n.DateAdded
	}

	tagList, _ := json.Marshal(n.TagList)

	res, err := s.conn.Exec(`
		INSERT INTO nodes (uuid, parent_id, type, pos, name, uri, icon, tags, tag_list,
			details, todo_state, todo_date, date_added, date_modified, stored_icon,
			has_notes, has_comments, external, external_id, container, content_type, size)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.UUID, n.ParentID, n.Type, n.Pos, n.Name, n.URI, n.Icon, n.Tags, string(tagList),
		n.Details, n.TodoState, n.TodoDate, n.DateAdded.UnixMilli(), n.DateModified.UnixMilli(),
		n.StoredIcon, n.HasNotes, n.HasComments, n.External, n.ExternalID, n.Container,
		n.ContentType, n.Size)
	if err != nil {
		return Node{}, fmt.Errorf("storage: add node: %w", err)
	}
	n.ID, err = res.LastInsertId()
	if err != nil {
		return Node{}, fmt.Errorf("storage: add node id: %w", err)
	}
	return n, nil
}

// ImportNode persists a node keeping its incoming uuid, order, and dates.
func (s *Storage) ImportNode(n Node) (Node, error) {
	return s.AddNode(n, AddOptions{KeepOrder: true, KeepUUID: true, KeepDates: true})
}

// GetNode returns the node with the given id, or nil when absent.
func (s *Storage) GetNode(id int64) (*Node, error) {
	row := s.conn.QueryRow(`SELECT `+nodeColumns+` FROM nodes WHERE id = ?`, id)
	n, err := scanNode(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage: get node: %w", err)
	}
	return &n, nil
}

// GetNodeByUUID returns the node with the given uuid, or nil when absent.
func (s *Storage) GetNodeByUUID(uuid string) (*Node, error) {
	row := s.conn.QueryRow(`SELECT `+nodeColumns+` FROM nodes WHERE uuid = ?`, uuid)
	n, err := scanNode(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage: get node by uuid: %w", err)
	}
	return &n, nil
}

// NodeExists reports whether a node with the given uuid is stored.
func (s *Storage) NodeExists(uuid string) (bool, error) {
	if uuid == "" {
		return false, nil
	}
	var n int
	err := s.conn.QueryRow(`SELECT COUNT(*) FROM nodes WHERE uuid = ?`, uuid).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("storage: node exists: %w", err)
	}
	return n > 0, nil
}

// GetNodes returns the nodes with the given ids, or every node when ids is nil.
func (s *Storage) GetNodes(ids []int64) ([]Node, error) {
	if ids == nil {
		return s.queryNodeRows(`SELECT ` + nodeColumns + ` FROM nodes`)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders, args := idList(ids)
	return s.queryNodeRows(`SELECT `+nodeColumns+` FROM nodes WHERE id IN (`+placeholders+`)`, args...)
}

func idList(ids []int64) (string, []any) {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return strings.TrimSuffix(strings.Repeat("?,", len(ids)), ","), args
}

// GetChildNodes returns the direct children of the given parent.
func (s *Storage) GetChildNodes(parentID int64) ([]Node, error) {
	return s.queryNodeRows(`SELECT `+nodeColumns+` FROM nodes WHERE parent_id = ? ORDER BY pos, id`, parentID)
}

// UpdateNode overwrites the stored node by id, refreshing date_modified
// unless resetDate is false. Nodes without an id are ignored.
func (s *Storage) UpdateNode(n *Node, resetDate bool) (*Node, error) {
	if n == nil || n.ID == 0 {
		return n, nil
	}
	if resetDate {
		n.DateModified = time.Now()
	}
	tagList, _ := json.Marshal(n.TagList)
	_, err := s.conn.Exec(`
		UPDATE nodes SET uuid = ?, parent_id = ?, type = ?, pos = ?, name = ?, uri = ?,
			icon = ?, tags = ?, tag_list = ?, details = ?, todo_state = ?, todo_date = ?,
			date_added = ?, date_modified = ?, stored_icon = ?, has_notes = ?,
			has_comments = ?, external = ?, external_id = ?, container = ?,
			content_type = ?, size = ?
		WHERE id = ?`,
		n.UUID, n.ParentID, n.Type, n.Pos, n.Name, n.URI, n.Icon, n.Tags, string(tagList),
		n.Details, n.TodoState, n.TodoDate, n.DateAdded.UnixMilli(), n.DateModified.UnixMilli(),
		n.StoredIcon, n.HasNotes, n.HasComments, n.External, n.ExternalID, n.Container,
		n.ContentType, n.Size, n.ID)
	if err != nil {
		return nil, fmt.Errorf("storage: update node: %w", err)
	}
	return n, nil
}

// UpdateNodes overwrites each of the given nodes, refreshing date_modified
// on every row.
func (s *Storage) UpdateNodes(nodes []Node) error {
	for i := range nodes {
		if _, err := s.UpdateNode(&nodes[i], true); err != nil {
			return err
		}
	}
	return nil
}

// DeleteNodesLowLevel removes the given nodes together with their owned
// blob, index, notes, comments, and icon rows. Subtree expansion is the
// caller's responsibility.
func (s *Storage) DeleteNodesLowLevel(ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders, args := idList(ids)
	tx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("storage: begin delete: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, table := range []string{"blobs", "search_index", "notes", "comments", "icons"} {
		if _, err := tx.Exec(`DELETE FROM `+table+` WHERE node_id IN (`+placeholders+`)`, args...); err != nil {
			return fmt.Errorf("storage: delete %s rows: %w", table, err)
		}
	}
	if _, err := tx.Exec(`DELETE FROM nodes WHERE id IN (`+placeholders+`)`, args...); err != nil {
		return fmt.Errorf("storage: delete nodes: %w", err)
	}
	return tx.Commit()
}

// ComputePath walks the parent chain from the given node to its root and
// returns the root-first ancestor list including the node itself.
func (s *Storage) ComputePath(id int64) ([]Node, error) {
	var path []Node
	node, err := s.GetNode(id)
	if err != nil {
		return nil, err
	}
	for node != nil {
		path = append(path, *node)
		if node.ParentID == 0 {
			break
		}
		node, err = s.GetNode(node.ParentID)
		if err != nil {
			return nil, err
		}
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path, nil
}

// ComputePathByUUID is ComputePath keyed by uuid.
func (s *Storage) ComputePathByUUID(uuid string) ([]Node, error) {
	node, err := s.GetNodeByUUID(uuid)
	if err != nil || node == nil {
		return nil, err
	}
	return s.ComputePath(node.ID)
}

// WipeEverything deletes all nodes and side records except the default,
// browser, and cloud shelves and the external subtrees under them.
func (s *Storage) WipeEverything() error {
	retain := map[int64]struct{}{DefaultShelfID: {}}

	for _, uuid := range SpecialUUIDs {
		root, err := s.GetNodeByUUID(uuid)
		if err != nil {
			return err
		}
		if root == nil {
			continue
		}
		subtree, err := s.QueryFullSubtree([]int64{root.ID}, SubtreeOptions{})
		if err != nil {
			return err
		}
		for _, n := range subtree {
			retain[n.ID] = struct{}{}
		}
	}

	all, err := s.GetNodes(nil)
	if err != nil {
		return err
	}
	var doomed []int64
	for _, n := range all {
		if _, ok := retain[n.ID]; !ok {
			doomed = append(doomed, n.ID)
		}
	}
	return s.DeleteNodesLowLevel(doomed)
}
