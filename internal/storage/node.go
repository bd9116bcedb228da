package storage

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// NodeType discriminates the polymorphic node entity.
type NodeType int

const (
	NodeShelf NodeType = iota + 1
	NodeFolder
	NodeBookmark
	NodeArchive
	NodeSeparator
	NodeNotes
)

// NodeTypeNames maps node types to their wire names.
var NodeTypeNames = map[NodeType]string{
	NodeShelf:     "shelf",
	NodeFolder:    "folder",
	NodeBookmark:  "bookmark",
	NodeArchive:   "archive",
	NodeSeparator: "separator",
	NodeNotes:     "notes",
}

// TodoState values are ordered: states below TodoDone count as active.
type TodoState int

const (
	TodoTodo TodoState = iota + 1
	TodoWaiting
	TodoPostponed
	TodoDone
	TodoCancelled
)

// TodoStateNames maps todo states to their display names.
var TodoStateNames = map[TodoState]string{
	TodoTodo:      "TODO",
	TodoWaiting:   "WAITING",
	TodoPostponed: "POSTPONED",
	TodoDone:      "DONE",
	TodoCancelled: "CANCELLED",
}

const (
	DefaultShelfID   int64 = 1
	DefaultShelfName       = "default"
	DefaultShelfUUID       = "1"

	BrowserShelfName    = "browser"
	BrowserShelfUUID    = "browser_bookmarks"
	BrowserExternalName = "browser"

	CloudShelfName    = "cloud"
	CloudShelfUUID    = "cloud"
	CloudExternalName = "cloud"

	RDFExternalName = "rdf"

	TodoShelfName = "TODO"
	DoneShelfName = "DONE"
	Everything    = "everything"

	// DefaultPosition is the place-at-end sentinel for the pos field.
	DefaultPosition = 1<<31 - 1
)

// SpecialUUIDs are reserved node uuids that AddNode never regenerates.
var SpecialUUIDs = []string{BrowserShelfUUID, CloudShelfUUID}

// Node is the single polymorphic entity for every tree element.
// ParentID is zero only for top-level shelves.
type Node struct {
	ID           int64     `json:"id"`
	UUID         string    `json:"uuid"`
	ParentID     int64     `json:"parent_id,omitempty"`
	Type         NodeType  `json:"type"`
	Pos          int       `json:"pos"`
	Name         string    `json:"name"`
	URI          string    `json:"uri,omitempty"`
	Icon         string    `json:"icon,omitempty"`
	Tags         string    `json:"tags,omitempty"`
	TagList      []string  `json:"tag_list,omitempty"`
	Details      string    `json:"details,omitempty"`
	TodoState    TodoState `json:"todo_state,omitempty"`
	TodoDate     string    `json:"todo_date,omitempty"`
	DateAdded    time.Time `json:"date_added"`
	DateModified time.Time `json:"date_modified"`
	StoredIcon   bool      `json:"stored_icon,omitempty"`
	HasNotes     bool      `json:"has_notes,omitempty"`
	HasComments  bool      `json:"has_comments,omitempty"`
	External     string    `json:"external,omitempty"`
	ExternalID   string    `json:"external_id,omitempty"`
	Container    string    `json:"container,omitempty"`
	ContentType  string    `json:"content_type,omitempty"`
	Size         int64     `json:"size,omitempty"`

	// Level is the subtree depth computed by QueryFullSubtree; not persisted.
	Level int `json:"-"`
}

// IsContainer reports whether the node may have children.
func (n *Node) IsContainer() bool {
	return n != nil && (n.Type == NodeShelf || n.Type == NodeFolder)
}

// IsEndpoint reports whether the node is a leaf that may own content.
func (n *Node) IsEndpoint() bool {
	return n != nil && (n.Type == NodeBookmark || n.Type == NodeArchive || n.Type == NodeNotes)
}

// IsSpecialShelf reports whether name is one of the built-in shelf names.
func IsSpecialShelf(name string) bool {
	switch strings.ToUpper(name) {
	case strings.ToUpper(DefaultShelfName),
		strings.ToUpper(BrowserShelfName),
		strings.ToUpper(CloudShelfName),
		strings.ToUpper(Everything),
		TodoShelfName, DoneShelfName:
		return true
	}
	return false
}

// IsSpecialUUID reports whether id is one of the reserved node uuids.
func IsSpecialUUID(id string) bool {
	for _, s := range SpecialUUIDs {
		if s == id {
			return true
		}
	}
	return false
}

// NewUUID returns a fresh node uuid: random hex, no dashes, upper-cased.
func NewUUID() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
}

// SplitTags normalizes a free-text tag string into an ordered upper-cased list.
func SplitTags(tags string) []string {
	if tags == "" {
		return nil
	}
	var out []string
	for _, t := range strings.Split(tags, ",") {
		t = strings.TrimSpace(t)
		if t != "" {
			out = append(out, strings.ToUpper(t))
		}
	}
	return out
}
