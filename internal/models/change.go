package models

// ChangeOp classifies a vault change notification.
type ChangeOp string

const (
	ChangeCreated  ChangeOp = "created"
	ChangeModified ChangeOp = "modified"
	ChangeDeleted  ChangeOp = "deleted"
	ChangeRenamed  ChangeOp = "renamed"
)

// Change is one discrete change notification from the vault.
// OldPath is set only for renames.
type Change struct {
	Op      ChangeOp `json:"op"`
	Path    string   `json:"path"`
	OldPath string   `json:"old_path,omitempty"`
}
