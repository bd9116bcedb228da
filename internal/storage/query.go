package storage

import (
	"fmt"
	"sort"
	"strings"
)

// SubtreeOptions controls QueryFullSubtree traversal.
type SubtreeOptions struct {
	// Preorder emits children depth-first right after their parent,
	// siblings in pos order; the default is the order of discovery.
	Preorder bool
	// ComputeLevel fills Node.Level with the depth relative to each root.
	ComputeLevel bool
}

// QueryFullSubtree collects every node under the given roots, roots
// included. A node reachable from more than one root is emitted once.
func (s *Storage) QueryFullSubtree(ids []int64, opt SubtreeOptions) ([]Node, error) {
	visited := make(map[int64]struct{})
	var out []Node

	var descend func(n Node, level int) error
	descend = func(n Node, level int) error {
		if _, ok := visited[n.ID]; ok {
			return nil
		}
		visited[n.ID] = struct{}{}
		if opt.ComputeLevel {
			n.Level = level
		}
		out = append(out, n)
		if !n.IsContainer() {
			return nil
		}
		children, err := s.GetChildNodes(n.ID)
		if err != nil {
			return err
		}
		if opt.Preorder {
			sort.SliceStable(children, func(i, j int) bool { return children[i].Pos < children[j].Pos })
		}
		for _, c := range children {
			if err := descend(c, level+1); err != nil {
				return err
			}
		}
		return nil
	}

	for _, id := range ids {
		node, err := s.GetNode(id)
		if err != nil {
			return nil, err
		}
		if node == nil {
			continue
		}
		if err := descend(*node, 0); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// QueryFullSubtreeIDs is QueryFullSubtree returning ids only.
func (s *Storage) QueryFullSubtreeIDs(ids []int64) ([]int64, error) {
	nodes, err := s.QueryFullSubtree(ids, SubtreeOptions{})
	if err != nil {
		return nil, err
	}
	out := make([]int64, len(nodes))
	for i, n := range nodes {
		out[i] = n.ID
	}
	return out, nil
}

// Depth modes for QueryOptions.
const (
	DepthGroup       = "group"
	DepthSubtree     = "subtree"
	DepthRootSubtree = "root+subtree"
)

// QueryOptions is the general node filter.
type QueryOptions struct {
	Search string     // case-insensitive substring against name/uri
	Tags   []string   // per-tag prefix intersection with the node tag list
	Types  []NodeType // match any of
	Path   string     // virtual scopes: TODO, DONE, or a plain path marker
	Limit  int
	Depth  string // group, subtree, root+subtree
	Order  string // "custom" sorts by pos
}

// QueryNodes filters the node table per options, scoped to group when given.
func (s *Storage) QueryNodes(group *Node, opt QueryOptions) ([]Node, error) {
	subtree := make(map[int64]struct{})
	if group != nil && (opt.Depth == DepthSubtree || opt.Depth == DepthRootSubtree) {
		nodes, err := s.QueryFullSubtree([]int64{group.ID}, SubtreeOptions{})
		if err != nil {
			return nil, err
		}
		for _, n := range nodes {
			if n.ID != group.ID {
				subtree[n.ID] = struct{}{}
			}
		}
	}

	all, err := s.GetNodes(nil)
	if err != nil {
		return nil, err
	}

	search := strings.ToLower(opt.Search)
	var out []Node
	for _, node := range all {
		ok := true
		if opt.Path != "" && opt.Path != TodoShelfName && opt.Path != DoneShelfName {
			ok = group != nil
		}

		if len(opt.Types) > 0 {
			ok = ok && containsType(opt.Types, node.Type)
		}
		if search != "" {
			ok = ok && (strings.Contains(strings.ToLower(node.Name), search) ||
				strings.Contains(strings.ToLower(node.URI), search))
		}

		switch {
		case group != nil && opt.Depth == DepthGroup:
			ok = ok && node.ParentID == group.ID
		case group != nil && opt.Depth == DepthSubtree:
			_, in := subtree[node.ID]
			ok = ok && in
		case group != nil && opt.Depth == DepthRootSubtree:
			_, in := subtree[node.ID]
			ok = ok && (in || node.ID == group.ID)
		case opt.Path == TodoShelfName:
			ok = ok && node.TodoState > 0 && node.TodoState < TodoDone
		case opt.Path == DoneShelfName:
			ok = ok && node.TodoState >= TodoDone
		}

		if len(opt.Tags) > 0 {
			ok = ok && tagsIntersect(opt.Tags, node.TagList)
		}

		if ok {
			out = append(out, node)
		}
	}

	if opt.Order == "custom" {
		sort.SliceStable(out, func(i, j int) bool { return out[i].Pos < out[j].Pos })
	}
	if opt.Limit > 0 && len(out) > opt.Limit {
		out = out[:opt.Limit]
	}
	return out, nil
}

func containsType(types []NodeType, t NodeType) bool {
	for _, c := range types {
		if c == t {
			return true
		}
	}
	return false
}

// tagsIntersect reports whether any query tag prefix-matches a node tag.
func tagsIntersect(query, tagList []string) bool {
	if len(tagList) == 0 {
		return false
	}
	for _, q := range query {
		q = strings.ToUpper(q)
		for _, t := range tagList {
			if strings.HasPrefix(strings.ToUpper(t), q) {
				return true
			}
		}
	}
	return false
}

// QueryTODO returns every node in an active todo state.
func (s *Storage) QueryTODO() ([]Node, error) {
	return s.queryNodeRows(`SELECT `+nodeColumns+` FROM nodes
		WHERE todo_state > 0 AND todo_state < ? ORDER BY todo_state`, TodoDone)
}

// QueryDONE returns every node in a final todo state.
func (s *Storage) QueryDONE() ([]Node, error) {
	return s.queryNodeRows(`SELECT `+nodeColumns+` FROM nodes WHERE todo_state >= ?`, TodoDone)
}

// QueryShelf returns the shelf with the given name, case-insensitive.
func (s *Storage) QueryShelf(name string) (*Node, error) {
	shelves, err := s.QueryShelves()
	if err != nil {
		return nil, err
	}
	for i := range shelves {
		if strings.EqualFold(shelves[i].Name, name) {
			return &shelves[i], nil
		}
	}
	return nil, nil
}

// QueryShelves returns every shelf node.
func (s *Storage) QueryShelves() ([]Node, error) {
	return s.queryNodeRows(`SELECT `+nodeColumns+` FROM nodes WHERE type = ?`, NodeShelf)
}

// QueryGroup returns the child container of parent with the given name,
// case-insensitive.
func (s *Storage) QueryGroup(parentID int64, name string) (*Node, error) {
	children, err := s.GetChildNodes(parentID)
	if err != nil {
		return nil, err
	}
	for i := range children {
		if strings.EqualFold(children[i].Name, name) {
			return &children[i], nil
		}
	}
	return nil, nil
}

// QueryGroups returns every container node, sorted by pos when asked.
func (s *Storage) QueryGroups(sorted bool) ([]Node, error) {
	nodes, err := s.queryNodeRows(`SELECT `+nodeColumns+` FROM nodes WHERE type IN (?, ?)`,
		NodeShelf, NodeFolder)
	if err != nil {
		return nil, err
	}
	if sorted {
		sort.SliceStable(nodes, func(i, j int) bool { return nodes[i].Pos < nodes[j].Pos })
	}
	return nodes, nil
}

// GetExternalNode returns the node mirrored from the given backend id.
func (s *Storage) GetExternalNode(externalID, kind string) (*Node, error) {
	nodes, err := s.queryNodeRows(`SELECT `+nodeColumns+` FROM nodes
		WHERE external = ? AND external_id = ?`, kind, externalID)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, nil
	}
	return &nodes[0], nil
}

// GetExternalNodes returns every node owned by the given backend.
func (s *Storage) GetExternalNodes(kind string) ([]Node, error) {
	return s.queryNodeRows(`SELECT `+nodeColumns+` FROM nodes WHERE external = ?`, kind)
}

// DeleteExternalNodes removes the nodes mirrored from the given backend ids,
// or every node of the backend when ids is nil.
func (s *Storage) DeleteExternalNodes(externalIDs []string, kind string) error {
	var nodes []Node
	var err error
	if externalIDs == nil {
		nodes, err = s.GetExternalNodes(kind)
	} else {
		existing := make(map[string]struct{}, len(externalIDs))
		for _, id := range externalIDs {
			existing[id] = struct{}{}
		}
		var all []Node
		all, err = s.GetExternalNodes(kind)
		if err == nil {
			for _, n := range all {
				if _, ok := existing[n.ExternalID]; ok {
					nodes = append(nodes, n)
				}
			}
		}
	}
	if err != nil {
		return err
	}
	ids := make([]int64, len(nodes))
	for i, n := range nodes {
		ids[i] = n.ID
	}
	return s.DeleteNodesLowLevel(ids)
}

// DeleteMissingExternalNodes removes every node of the given backend whose
// external id is absent from the surviving set.
func (s *Storage) DeleteMissingExternalNodes(surviving []string, kind string) error {
	keep := make(map[string]struct{}, len(surviving))
	for _, id := range surviving {
		keep[id] = struct{}{}
	}
	all, err := s.GetExternalNodes(kind)
	if err != nil {
		return err
	}
	var doomed []int64
	for _, n := range all {
		if n.ExternalID == "" {
			continue
		}
		if _, ok := keep[n.ExternalID]; !ok {
			doomed = append(doomed, n.ID)
		}
	}
	return s.DeleteNodesLowLevel(doomed)
}

// IsExternalNodeExists reports whether a node mirrored from the given
// backend id is stored.
func (s *Storage) IsExternalNodeExists(externalID, kind string) (bool, error) {
	var n int
	err := s.conn.QueryRow(`SELECT COUNT(*) FROM nodes WHERE external = ? AND external_id = ?`,
		kind, externalID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("storage: external node exists: %w", err)
	}
	return n > 0, nil
}
