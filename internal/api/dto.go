package api

import (
	"github.com/starford/othala/internal/storage"
)

// CreateBookmarkRequest is the request body for creating a bookmark or
// archive placeholder. The parent is addressed by path or uuid.
type CreateBookmarkRequest struct {
	ParentPath string `json:"parent_path,omitempty"`
	ParentUUID string `json:"parent_uuid,omitempty"`
	Name       string `json:"name"`
	URI        string `json:"uri"`
	Tags       string `json:"tags,omitempty"`
	Details    string `json:"details,omitempty"`
	Type       string `json:"type,omitempty"` // bookmark (default) or archive
	TodoState  int    `json:"todo_state,omitempty"`
}

// CreateFolderRequest resolves or creates a folder chain.
type CreateFolderRequest struct {
	Path string `json:"path"`
}

// CreateShelfRequest creates a top-level shelf.
type CreateShelfRequest struct {
	Name string `json:"name"`
}

// CreateSeparatorRequest creates a separator under a parent folder.
type CreateSeparatorRequest struct {
	ParentUUID string `json:"parent_uuid"`
}

// CreateNotesRequest creates a notes node under a parent folder.
type CreateNotesRequest struct {
	ParentUUID string `json:"parent_uuid"`
	Name       string `json:"name"`
}

// UpdateNodeRequest is the request body for updating a node's editable
// fields. Pointer fields distinguish "leave as is" from "set to the
// zero value": only fields present in the body are applied.
type UpdateNodeRequest struct {
	Name      *string `json:"name,omitempty"`
	URI       *string `json:"uri,omitempty"`
	Tags      *string `json:"tags,omitempty"`
	Details   *string `json:"details,omitempty"`
	TodoState *int    `json:"todo_state,omitempty"`
	TodoDate  *string `json:"todo_date,omitempty"`
}

// MoveCopyRequest moves or copies nodes under a destination folder.
type MoveCopyRequest struct {
	UUIDs    []string `json:"uuids"`
	DestUUID string   `json:"dest_uuid"`
}

// DeleteNodesRequest deletes the listed subtrees.
type DeleteNodesRequest struct {
	UUIDs []string `json:"uuids"`
}

// ReorderRequest reassigns sibling positions in the given order.
type ReorderRequest struct {
	UUIDs []string `json:"uuids"`
}

// TodoRequest stamps nodes with a new todo state.
type TodoRequest struct {
	UUIDs []string `json:"uuids"`
	State int      `json:"state"`
}

// NotesRequest is the request body for storing a node's notes.
type NotesRequest struct {
	Content string `json:"content"`
	Format  string `json:"format,omitempty"`
	HTML    string `json:"html,omitempty"`
	Align   string `json:"align,omitempty"`
}

// CommentsRequest is the request body for storing a node's comments.
type CommentsRequest struct {
	Comments string `json:"comments"`
}

// NodeListResponse wraps node listings.
type NodeListResponse struct {
	Nodes []storage.Node `json:"nodes"`
	Total int            `json:"total"`
}
