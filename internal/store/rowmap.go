package store

import "time"

// The row mapper converts between domain entities carrying time.Time values
// and stored rows carrying epoch-millisecond integers. It is pure and
// stateless; both directions round-trip every field, including the nullable
// soft-delete marker.

// RowFromNote maps a domain note onto its stored shape.
func RowFromNote(note *Note) NoteRow {
	return NoteRow{
		ID:          note.ID.String(),
		Title:       note.Title,
		Text:        note.Text,
		FolderID:    note.FolderID.String(),
		Level:       note.Level,
		UserID:      note.UserID.String(),
		CreatedAtMs: note.CreatedAt.UnixMilli(),
		UpdatedAtMs: note.UpdatedAt.UnixMilli(),
		DeletedAtMs: millisFromTime(note.DeletedAt),
	}
}

// NoteFromRow maps a stored row back onto a domain note.
func NoteFromRow(row NoteRow) *Note {
	return &Note{
		ID:        NoteID(row.ID),
		Title:     row.Title,
		Text:      row.Text,
		FolderID:  FolderID(row.FolderID),
		Level:     row.Level,
		UserID:    UserID(row.UserID),
		CreatedAt: time.UnixMilli(row.CreatedAtMs).UTC(),
		UpdatedAt: time.UnixMilli(row.UpdatedAtMs).UTC(),
		DeletedAt: timeFromMillis(row.DeletedAtMs),
	}
}

// RowFromFolder maps a domain folder onto its stored shape. Children and
// Notes are tree-builder state and never persisted.
func RowFromFolder(folder *Folder) FolderRow {
	var parentID *string
	if folder.ParentID != nil {
		value := folder.ParentID.String()
		parentID = &value
	}
	return FolderRow{
		ID:          folder.ID.String(),
		Title:       folder.Title,
		ParentID:    parentID,
		Level:       folder.Level,
		UserID:      folder.UserID.String(),
		CreatedAtMs: folder.CreatedAt.UnixMilli(),
		UpdatedAtMs: folder.UpdatedAt.UnixMilli(),
		DeletedAtMs: millisFromTime(folder.DeletedAt),
	}
}

// FolderFromRow maps a stored row back onto a domain folder.
func FolderFromRow(row FolderRow) *Folder {
	var parentID *FolderID
	if row.ParentID != nil {
		value := FolderID(*row.ParentID)
		parentID = &value
	}
	return &Folder{
		ID:        FolderID(row.ID),
		Title:     row.Title,
		ParentID:  parentID,
		Level:     row.Level,
		UserID:    UserID(row.UserID),
		CreatedAt: time.UnixMilli(row.CreatedAtMs).UTC(),
		UpdatedAt: time.UnixMilli(row.UpdatedAtMs).UTC(),
		DeletedAt: timeFromMillis(row.DeletedAtMs),
	}
}

func millisFromTime(value *time.Time) *int64 {
	if value == nil {
		return nil
	}
	millis := value.UnixMilli()
	return &millis
}

func timeFromMillis(value *int64) *time.Time {
	if value == nil {
		return nil
	}
	parsed := time.UnixMilli(*value).UTC()
	return &parsed
}
