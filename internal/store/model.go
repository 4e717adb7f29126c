package store

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const maxIdentifierLength = 190

// RootFolderTitle is the fixed title of the single per-user root folder.
const RootFolderTitle = "Root"

var (
	// ErrInvalidNoteID indicates that a note identifier is empty or exceeds storage bounds.
	ErrInvalidNoteID = errors.New("store: invalid note id")
	// ErrInvalidFolderID indicates that a folder identifier is empty or exceeds storage bounds.
	ErrInvalidFolderID = errors.New("store: invalid folder id")
	// ErrInvalidUserID indicates that a user identifier is empty or exceeds storage bounds.
	ErrInvalidUserID = errors.New("store: invalid user id")
)

// NoteID represents a validated note identifier.
type NoteID string

// NewNoteID validates raw input and returns a NoteID.
func NewNoteID(rawInput string) (NoteID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidNoteID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidNoteID, maxIdentifierLength)
	}
	return NoteID(trimmed), nil
}

// String returns the underlying string identifier.
func (id NoteID) String() string {
	return string(id)
}

// FolderID represents a validated folder identifier.
type FolderID string

// NewFolderID validates raw input and returns a FolderID.
func NewFolderID(rawInput string) (FolderID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidFolderID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidFolderID, maxIdentifierLength)
	}
	return FolderID(trimmed), nil
}

// String returns the underlying string identifier.
func (id FolderID) String() string {
	return string(id)
}

// UserID represents a validated user identifier.
type UserID string

// NewUserID validates raw input and returns a UserID.
func NewUserID(rawInput string) (UserID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidUserID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidUserID, maxIdentifierLength)
	}
	return UserID(trimmed), nil
}

// String returns the underlying string identifier.
func (id UserID) String() string {
	return string(id)
}

// Note is the domain entity for a single rich-text note.
//
// Level caches the depth of the owning folder plus one; it is recomputed from
// the folder whenever the note is created or moved, never trusted on its own.
// A non-nil DeletedAt marks a soft delete.
type Note struct {
	ID        NoteID
	Title     string
	Text      string
	FolderID  FolderID
	Level     int
	UserID    UserID
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
}

// Deleted reports whether the note carries a soft-delete marker.
func (n *Note) Deleted() bool {
	return n.DeletedAt != nil
}

// Folder is the domain entity for a node of the per-user folder tree.
//
// ParentID is nil only for the root folder. Children and Notes are populated
// exclusively by the tree builder; the store leaves them empty.
type Folder struct {
	ID        FolderID
	Title     string
	ParentID  *FolderID
	Level     int
	UserID    UserID
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
	Children  []*Folder
	Notes     []*Note
}

// Deleted reports whether the folder carries a soft-delete marker.
func (f *Folder) Deleted() bool {
	return f.DeletedAt != nil
}

// Root reports whether the folder is the per-user root.
func (f *Folder) Root() bool {
	return f.ParentID == nil
}

// NoteRow is the persisted shape of a Note. Dates are stored as epoch
// milliseconds; deleted_at_ms is NULL for active rows.
type NoteRow struct {
	ID          string `gorm:"column:id;primaryKey;size:190;not null"`
	Title       string `gorm:"column:title;type:text;not null"`
	Text        string `gorm:"column:text;type:text;not null"`
	FolderID    string `gorm:"column:folder_id;size:190;not null;index:idx_notes_user_folder,priority:2"`
	Level       int    `gorm:"column:level;not null"`
	UserID      string `gorm:"column:user_id;size:190;not null;index:idx_notes_user_folder,priority:1"`
	CreatedAtMs int64  `gorm:"column:created_at_ms;not null"`
	UpdatedAtMs int64  `gorm:"column:updated_at_ms;not null"`
	DeletedAtMs *int64 `gorm:"column:deleted_at_ms"`
}

// TableName provides the explicit table binding for GORM.
func (NoteRow) TableName() string {
	return "notes"
}

// FolderRow is the persisted shape of a Folder. The root row has a NULL
// parent_id.
type FolderRow struct {
	ID          string  `gorm:"column:id;primaryKey;size:190;not null"`
	Title       string  `gorm:"column:title;type:text;not null"`
	ParentID    *string `gorm:"column:parent_id;size:190;index:idx_folders_user_parent,priority:2"`
	Level       int     `gorm:"column:level;not null"`
	UserID      string  `gorm:"column:user_id;size:190;not null;index:idx_folders_user_parent,priority:1"`
	CreatedAtMs int64   `gorm:"column:created_at_ms;not null"`
	UpdatedAtMs int64   `gorm:"column:updated_at_ms;not null"`
	DeletedAtMs *int64  `gorm:"column:deleted_at_ms"`
}

// TableName provides the explicit table binding for GORM.
func (FolderRow) TableName() string {
	return "folders"
}
