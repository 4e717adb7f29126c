package server

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/xDeepak/giganotes-backend/internal/store"
	syncglue "github.com/xDeepak/giganotes-backend/internal/sync"
)

type tokenRequestPayload struct {
	UserID string `json:"user_id"`
}

func (p tokenRequestPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.UserID, validation.Required, validation.Length(1, 190)),
	)
}

type tokenResponsePayload struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

type createNotePayload struct {
	Title    string `json:"title"`
	Text     string `json:"text"`
	FolderID string `json:"folder_id"`
}

func (p createNotePayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.FolderID, validation.Required, validation.Length(1, 190)),
		validation.Field(&p.Title, validation.Length(0, 1024)),
	)
}

type updateNotePayload struct {
	Title       string `json:"title"`
	Text        string `json:"text"`
	FolderID    string `json:"folder_id"`
	Level       int    `json:"level"`
	DeletedAtMs *int64 `json:"deleted_at_ms"`
}

func (p updateNotePayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.FolderID, validation.Required, validation.Length(1, 190)),
		validation.Field(&p.Title, validation.Length(0, 1024)),
		validation.Field(&p.Level, validation.Min(1)),
	)
}

type createFolderPayload struct {
	Title    string `json:"title"`
	ParentID string `json:"parent_id"`
}

func (p createFolderPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Title, validation.Required, validation.Length(1, 1024)),
		validation.Field(&p.ParentID, validation.Required, validation.Length(1, 190)),
	)
}

type updateFolderPayload struct {
	Title       string `json:"title"`
	ParentID    string `json:"parent_id"`
	Level       int    `json:"level"`
	DeletedAtMs *int64 `json:"deleted_at_ms"`
}

func (p updateFolderPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Title, validation.Required, validation.Length(1, 1024)),
		validation.Field(&p.ParentID, validation.Required, validation.Length(1, 190)),
		validation.Field(&p.Level, validation.Min(1)),
	)
}

type syncNotePayload struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Text        string `json:"text"`
	FolderID    string `json:"folder_id"`
	Level       int    `json:"level"`
	CreatedAtMs int64  `json:"created_at_ms"`
	UpdatedAtMs int64  `json:"updated_at_ms"`
	DeletedAtMs *int64 `json:"deleted_at_ms"`
}

func (p syncNotePayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.ID, validation.Required, validation.Length(1, 190)),
		validation.Field(&p.FolderID, validation.Required, validation.Length(1, 190)),
		validation.Field(&p.CreatedAtMs, validation.Required, validation.Min(1)),
		validation.Field(&p.UpdatedAtMs, validation.Required, validation.Min(1)),
	)
}

type syncFolderPayload struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	ParentID    *string `json:"parent_id"`
	Level       int     `json:"level"`
	CreatedAtMs int64   `json:"created_at_ms"`
	UpdatedAtMs int64   `json:"updated_at_ms"`
	DeletedAtMs *int64  `json:"deleted_at_ms"`
}

func (p syncFolderPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.ID, validation.Required, validation.Length(1, 190)),
		validation.Field(&p.CreatedAtMs, validation.Required, validation.Min(1)),
		validation.Field(&p.UpdatedAtMs, validation.Required, validation.Min(1)),
	)
}

type syncChangePayload struct {
	Entity    string             `json:"entity"`
	Operation string             `json:"operation"`
	ID        string             `json:"id"`
	Note      *syncNotePayload   `json:"note"`
	Folder    *syncFolderPayload `json:"folder"`
}

func (p syncChangePayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Entity, validation.Required,
			validation.In(string(syncglue.EntityNote), string(syncglue.EntityFolder))),
		validation.Field(&p.Operation, validation.Required,
			validation.In(string(syncglue.OperationUpsert), string(syncglue.OperationDelete))),
	)
}

type syncApplyPayload struct {
	Changes []syncChangePayload `json:"changes"`
}

type syncApplyResponse struct {
	Applied int `json:"applied"`
	Ignored int `json:"ignored"`
}

type noteResponse struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Text        string `json:"text"`
	FolderID    string `json:"folder_id"`
	Level       int    `json:"level"`
	CreatedAtMs int64  `json:"created_at_ms"`
	UpdatedAtMs int64  `json:"updated_at_ms"`
	DeletedAtMs *int64 `json:"deleted_at_ms,omitempty"`
}

type folderResponse struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	ParentID    *string `json:"parent_id"`
	Level       int     `json:"level"`
	CreatedAtMs int64   `json:"created_at_ms"`
	UpdatedAtMs int64   `json:"updated_at_ms"`
	DeletedAtMs *int64  `json:"deleted_at_ms,omitempty"`
}

type folderTreeResponse struct {
	folderResponse
	Children []folderTreeResponse `json:"children"`
	Notes    []noteResponse       `json:"notes"`
}

func responseFromNote(note *store.Note) noteResponse {
	return noteResponse{
		ID:          note.ID.String(),
		Title:       note.Title,
		Text:        note.Text,
		FolderID:    note.FolderID.String(),
		Level:       note.Level,
		CreatedAtMs: note.CreatedAt.UnixMilli(),
		UpdatedAtMs: note.UpdatedAt.UnixMilli(),
		DeletedAtMs: millisOrNil(note.DeletedAt),
	}
}

func responseFromFolder(folder *store.Folder) folderResponse {
	var parentID *string
	if folder.ParentID != nil {
		value := folder.ParentID.String()
		parentID = &value
	}
	return folderResponse{
		ID:          folder.ID.String(),
		Title:       folder.Title,
		ParentID:    parentID,
		Level:       folder.Level,
		CreatedAtMs: folder.CreatedAt.UnixMilli(),
		UpdatedAtMs: folder.UpdatedAt.UnixMilli(),
		DeletedAtMs: millisOrNil(folder.DeletedAt),
	}
}

func responseFromTree(folder *store.Folder) folderTreeResponse {
	response := folderTreeResponse{
		folderResponse: responseFromFolder(folder),
		Children:       make([]folderTreeResponse, 0, len(folder.Children)),
		Notes:          make([]noteResponse, 0, len(folder.Notes)),
	}
	for _, child := range folder.Children {
		response.Children = append(response.Children, responseFromTree(child))
	}
	for _, note := range folder.Notes {
		response.Notes = append(response.Notes, responseFromNote(note))
	}
	return response
}

func millisOrNil(value *time.Time) *int64 {
	if value == nil {
		return nil
	}
	millis := value.UnixMilli()
	return &millis
}

func timeOrNil(value *int64) *time.Time {
	if value == nil {
		return nil
	}
	parsed := time.UnixMilli(*value).UTC()
	return &parsed
}

func noteFromSyncPayload(payload *syncNotePayload, userID store.UserID) *store.Note {
	return &store.Note{
		ID:        store.NoteID(payload.ID),
		Title:     payload.Title,
		Text:      payload.Text,
		FolderID:  store.FolderID(payload.FolderID),
		Level:     payload.Level,
		UserID:    userID,
		CreatedAt: time.UnixMilli(payload.CreatedAtMs).UTC(),
		UpdatedAt: time.UnixMilli(payload.UpdatedAtMs).UTC(),
		DeletedAt: timeOrNil(payload.DeletedAtMs),
	}
}

func folderFromSyncPayload(payload *syncFolderPayload, userID store.UserID) *store.Folder {
	var parentID *store.FolderID
	if payload.ParentID != nil {
		value := store.FolderID(*payload.ParentID)
		parentID = &value
	}
	return &store.Folder{
		ID:        store.FolderID(payload.ID),
		Title:     payload.Title,
		ParentID:  parentID,
		Level:     payload.Level,
		UserID:    userID,
		CreatedAt: time.UnixMilli(payload.CreatedAtMs).UTC(),
		UpdatedAt: time.UnixMilli(payload.UpdatedAtMs).UTC(),
		DeletedAt: timeOrNil(payload.DeletedAtMs),
	}
}
