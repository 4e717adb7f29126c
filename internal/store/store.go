package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()
)

const (
	opServiceNew           = "store.service.new"
	opCreateNote           = "store.create_note"
	opCreateFolder         = "store.create_folder"
	opUpdateNote           = "store.update_note"
	opUpdateFolder         = "store.update_folder"
	opUpsertNote           = "store.upsert_note"
	opUpsertFolder         = "store.upsert_folder"
	opSoftDeleteNote       = "store.soft_delete_note"
	opSoftDeleteFolderTree = "store.soft_delete_folder_tree"
	opNoteByID             = "store.note_by_id"
	opFolderByID           = "store.folder_by_id"
	opListNotes            = "store.list_notes"
	opListFolders          = "store.list_folders"
	opNotesInFolder        = "store.notes_in_folder"
	opFolderChildren       = "store.folder_with_active_children"
	opSearchNotes          = "store.search_notes"
	opEnsureRootFolder     = "store.ensure_root_folder"
)

// IDProvider issues globally unique identifiers for new entities.
type IDProvider interface {
	NewID() (string, error)
}

// ServiceConfig carries the collaborators of the local store.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

// Service is the user-scoped CRUD and query engine over notes and folders.
// It performs no internal locking; callers sequence dependent operations.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
}

// NewService validates the configuration and constructs the store.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newStoreError(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, newStoreError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
	}, nil
}

// CreateNote assigns identity and audit fields to the note, derives its level
// from the owning folder and inserts it. The folder must already exist for
// the calling user or ErrMissingParent is returned.
func (s *Service) CreateNote(ctx context.Context, userID UserID, note *Note) error {
	if note.FolderID == "" {
		return newStoreError(opCreateNote, "missing_folder", ErrMissingParent)
	}

	parent, err := s.FolderByID(ctx, userID, note.FolderID)
	if err != nil {
		return err
	}
	if parent == nil {
		s.logError(opCreateNote, "parent_not_found", ErrMissingParent,
			zap.String("user_id", userID.String()),
			zap.String("folder_id", note.FolderID.String()))
		return newStoreError(opCreateNote, "parent_not_found", ErrMissingParent)
	}
	note.Level = parent.Level + 1

	if note.ID == "" {
		id, err := s.idProvider.NewID()
		if err != nil {
			return newStoreError(opCreateNote, "id_generation_failed", err)
		}
		note.ID = NoteID(id)
	}

	now := s.clock().UTC()
	note.CreatedAt = now
	note.UpdatedAt = now
	note.UserID = userID
	note.DeletedAt = nil

	row := RowFromNote(note)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		s.logError(opCreateNote, "insert_failed", err, zap.String("note_id", note.ID.String()))
		return newStoreError(opCreateNote, "insert_failed", err)
	}
	return nil
}

// CreateFolder behaves like CreateNote for folders. Every folder created
// through this path needs an existing parent; the root folder is created only
// by EnsureRootFolder.
func (s *Service) CreateFolder(ctx context.Context, userID UserID, folder *Folder) error {
	if folder.ParentID == nil {
		return newStoreError(opCreateFolder, "missing_parent", ErrMissingParent)
	}

	parent, err := s.FolderByID(ctx, userID, *folder.ParentID)
	if err != nil {
		return err
	}
	if parent == nil {
		s.logError(opCreateFolder, "parent_not_found", ErrMissingParent,
			zap.String("user_id", userID.String()),
			zap.String("parent_id", folder.ParentID.String()))
		return newStoreError(opCreateFolder, "parent_not_found", ErrMissingParent)
	}
	folder.Level = parent.Level + 1

	if folder.ID == "" {
		id, err := s.idProvider.NewID()
		if err != nil {
			return newStoreError(opCreateFolder, "id_generation_failed", err)
		}
		folder.ID = FolderID(id)
	}

	now := s.clock().UTC()
	folder.CreatedAt = now
	folder.UpdatedAt = now
	folder.UserID = userID
	folder.DeletedAt = nil

	row := RowFromFolder(folder)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		s.logError(opCreateFolder, "insert_failed", err, zap.String("folder_id", folder.ID.String()))
		return newStoreError(opCreateFolder, "insert_failed", err)
	}
	return nil
}

// UpdateNote overwrites every mutable field of the row identified by the
// note's id, refreshing updated_at. The id and created_at never change.
// Updating a nonexistent row returns ErrNotFound.
func (s *Service) UpdateNote(ctx context.Context, userID UserID, note *Note) error {
	now := s.clock().UTC()
	note.UpdatedAt = now

	result := s.db.WithContext(ctx).Model(&NoteRow{}).
		Where("id = ? AND user_id = ?", note.ID.String(), userID.String()).
		Updates(map[string]interface{}{
			"title":         note.Title,
			"text":          note.Text,
			"folder_id":     note.FolderID.String(),
			"level":         note.Level,
			"updated_at_ms": now.UnixMilli(),
			"deleted_at_ms": millisFromTime(note.DeletedAt),
		})
	if result.Error != nil {
		s.logError(opUpdateNote, "update_failed", result.Error, zap.String("note_id", note.ID.String()))
		return newStoreError(opUpdateNote, "update_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return newStoreError(opUpdateNote, "row_missing", ErrNotFound)
	}
	return nil
}

// UpdateFolder is the folder variant of UpdateNote.
func (s *Service) UpdateFolder(ctx context.Context, userID UserID, folder *Folder) error {
	now := s.clock().UTC()
	folder.UpdatedAt = now

	var parentID *string
	if folder.ParentID != nil {
		value := folder.ParentID.String()
		parentID = &value
	}

	result := s.db.WithContext(ctx).Model(&FolderRow{}).
		Where("id = ? AND user_id = ?", folder.ID.String(), userID.String()).
		Updates(map[string]interface{}{
			"title":         folder.Title,
			"parent_id":     parentID,
			"level":         folder.Level,
			"updated_at_ms": now.UnixMilli(),
			"deleted_at_ms": millisFromTime(folder.DeletedAt),
		})
	if result.Error != nil {
		s.logError(opUpdateFolder, "update_failed", result.Error, zap.String("folder_id", folder.ID.String()))
		return newStoreError(opUpdateFolder, "update_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return newStoreError(opUpdateFolder, "row_missing", ErrNotFound)
	}
	return nil
}

// UpsertNote inserts a note carrying remote state, preserving the caller's
// identity, timestamps and soft-delete marker. When a row with the same id
// already exists the call is a no-op; it reports whether a row was inserted.
func (s *Service) UpsertNote(ctx context.Context, userID UserID, note *Note) (bool, error) {
	if note.ID == "" {
		return false, newStoreError(opUpsertNote, "missing_id", ErrInvalidNoteID)
	}

	exists, err := s.hasNoteWithID(ctx, note.ID)
	if err != nil {
		s.logError(opUpsertNote, "existence_check_failed", err, zap.String("note_id", note.ID.String()))
		return false, newStoreError(opUpsertNote, "existence_check_failed", err)
	}
	if exists {
		return false, nil
	}

	note.UserID = userID
	row := RowFromNote(note)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		s.logError(opUpsertNote, "insert_failed", err, zap.String("note_id", note.ID.String()))
		return false, newStoreError(opUpsertNote, "insert_failed", err)
	}
	return true, nil
}

// UpsertFolder is the folder variant of UpsertNote.
func (s *Service) UpsertFolder(ctx context.Context, userID UserID, folder *Folder) (bool, error) {
	if folder.ID == "" {
		return false, newStoreError(opUpsertFolder, "missing_id", ErrInvalidFolderID)
	}

	exists, err := s.hasFolderWithID(ctx, folder.ID)
	if err != nil {
		s.logError(opUpsertFolder, "existence_check_failed", err, zap.String("folder_id", folder.ID.String()))
		return false, newStoreError(opUpsertFolder, "existence_check_failed", err)
	}
	if exists {
		return false, nil
	}

	folder.UserID = userID
	row := RowFromFolder(folder)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		s.logError(opUpsertFolder, "insert_failed", err, zap.String("folder_id", folder.ID.String()))
		return false, newStoreError(opUpsertFolder, "insert_failed", err)
	}
	return true, nil
}

// SoftDeleteNote stamps deleted_at on a single note row.
func (s *Service) SoftDeleteNote(ctx context.Context, userID UserID, id NoteID) error {
	now := s.clock().UTC()
	result := s.db.WithContext(ctx).Model(&NoteRow{}).
		Where("id = ? AND user_id = ?", id.String(), userID.String()).
		Update("deleted_at_ms", now.UnixMilli())
	if result.Error != nil {
		s.logError(opSoftDeleteNote, "update_failed", result.Error, zap.String("note_id", id.String()))
		return newStoreError(opSoftDeleteNote, "update_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return newStoreError(opSoftDeleteNote, "row_missing", ErrNotFound)
	}
	return nil
}

const folderSubtreeQuery = `WITH RECURSIVE subtree(id) AS (
	SELECT id FROM folders WHERE id = ? AND user_id = ?
	UNION ALL
	SELECT f.id FROM folders f JOIN subtree s ON f.parent_id = s.id
) SELECT id FROM subtree`

// SoftDeleteFolderTree soft-deletes the folder, every descendant folder and
// every note inside any of them. The affected id set is computed once via a
// recursive closure query, and both updates run in a single transaction with
// one shared timestamp, so no partially-cascaded state is ever observable.
func (s *Service) SoftDeleteFolderTree(ctx context.Context, userID UserID, id FolderID) error {
	deletedAtMs := s.clock().UTC().UnixMilli()

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var folderIDs []string
		if err := tx.Raw(folderSubtreeQuery, id.String(), userID.String()).Scan(&folderIDs).Error; err != nil {
			s.logError(opSoftDeleteFolderTree, "closure_query_failed", err, zap.String("folder_id", id.String()))
			return newStoreError(opSoftDeleteFolderTree, "closure_query_failed", err)
		}
		if len(folderIDs) == 0 {
			return newStoreError(opSoftDeleteFolderTree, "row_missing", ErrNotFound)
		}

		if err := tx.Model(&FolderRow{}).
			Where("user_id = ? AND id IN ?", userID.String(), folderIDs).
			Update("deleted_at_ms", deletedAtMs).Error; err != nil {
			s.logError(opSoftDeleteFolderTree, "folder_update_failed", err, zap.String("folder_id", id.String()))
			return newStoreError(opSoftDeleteFolderTree, "folder_update_failed", err)
		}

		if err := tx.Model(&NoteRow{}).
			Where("user_id = ? AND folder_id IN ?", userID.String(), folderIDs).
			Update("deleted_at_ms", deletedAtMs).Error; err != nil {
			s.logError(opSoftDeleteFolderTree, "note_update_failed", err, zap.String("folder_id", id.String()))
			return newStoreError(opSoftDeleteFolderTree, "note_update_failed", err)
		}
		return nil
	})
	return txErr
}

// NoteByID resolves a note by id regardless of its soft-delete state. It
// returns nil, not an error, when no row matches.
func (s *Service) NoteByID(ctx context.Context, userID UserID, id NoteID) (*Note, error) {
	var row NoteRow
	err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id.String(), userID.String()).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		s.logError(opNoteByID, "query_failed", err, zap.String("note_id", id.String()))
		return nil, newStoreError(opNoteByID, "query_failed", err)
	}
	return NoteFromRow(row), nil
}

// FolderByID resolves a folder by id regardless of its soft-delete state. It
// returns nil, not an error, when no row matches.
func (s *Service) FolderByID(ctx context.Context, userID UserID, id FolderID) (*Folder, error) {
	var row FolderRow
	err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id.String(), userID.String()).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		s.logError(opFolderByID, "query_failed", err, zap.String("folder_id", id.String()))
		return nil, newStoreError(opFolderByID, "query_failed", err)
	}
	return FolderFromRow(row), nil
}

// ListNotes returns every note owned by the user. With includeDeleted false,
// soft-deleted rows are excluded both by the query predicate and by a
// re-check after mapping, so an out-of-sync row cannot leak through.
func (s *Service) ListNotes(ctx context.Context, userID UserID, includeDeleted bool) ([]*Note, error) {
	query := s.db.WithContext(ctx).Where("user_id = ?", userID.String())
	if !includeDeleted {
		query = query.Where("deleted_at_ms IS NULL")
	}

	var rows []NoteRow
	if err := query.Order("updated_at_ms DESC").Find(&rows).Error; err != nil {
		s.logError(opListNotes, "query_failed", err, zap.String("user_id", userID.String()))
		return nil, newStoreError(opListNotes, "query_failed", err)
	}

	notes := make([]*Note, 0, len(rows))
	for _, row := range rows {
		note := NoteFromRow(row)
		if !includeDeleted && note.Deleted() {
			continue
		}
		notes = append(notes, note)
	}
	return notes, nil
}

// ListFolders is the folder variant of ListNotes, ordered by level so that a
// parent always precedes its children.
func (s *Service) ListFolders(ctx context.Context, userID UserID, includeDeleted bool) ([]*Folder, error) {
	query := s.db.WithContext(ctx).Where("user_id = ?", userID.String())
	if !includeDeleted {
		query = query.Where("deleted_at_ms IS NULL")
	}

	var rows []FolderRow
	if err := query.Order("level ASC, created_at_ms ASC").Find(&rows).Error; err != nil {
		s.logError(opListFolders, "query_failed", err, zap.String("user_id", userID.String()))
		return nil, newStoreError(opListFolders, "query_failed", err)
	}

	folders := make([]*Folder, 0, len(rows))
	for _, row := range rows {
		folder := FolderFromRow(row)
		if !includeDeleted && folder.Deleted() {
			continue
		}
		folders = append(folders, folder)
	}
	return folders, nil
}

// NotesInFolder lists the active notes directly inside one folder.
func (s *Service) NotesInFolder(ctx context.Context, userID UserID, folderID FolderID) ([]*Note, error) {
	var rows []NoteRow
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND folder_id = ? AND deleted_at_ms IS NULL", userID.String(), folderID.String()).
		Order("updated_at_ms DESC").
		Find(&rows).Error
	if err != nil {
		s.logError(opNotesInFolder, "query_failed", err, zap.String("folder_id", folderID.String()))
		return nil, newStoreError(opNotesInFolder, "query_failed", err)
	}

	notes := make([]*Note, 0, len(rows))
	for _, row := range rows {
		notes = append(notes, NoteFromRow(row))
	}
	return notes, nil
}

// FolderWithActiveChildren resolves a folder together with one level of
// active child folders and notes, the shape the browse view renders. It
// returns nil when the folder itself does not exist.
func (s *Service) FolderWithActiveChildren(ctx context.Context, userID UserID, id FolderID) (*Folder, error) {
	folder, err := s.FolderByID(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if folder == nil {
		return nil, nil
	}

	var folderRows []FolderRow
	err = s.db.WithContext(ctx).
		Where("user_id = ? AND parent_id = ? AND deleted_at_ms IS NULL", userID.String(), id.String()).
		Order("created_at_ms ASC").
		Find(&folderRows).Error
	if err != nil {
		s.logError(opFolderChildren, "child_folder_query_failed", err, zap.String("folder_id", id.String()))
		return nil, newStoreError(opFolderChildren, "child_folder_query_failed", err)
	}
	folder.Children = make([]*Folder, 0, len(folderRows))
	for _, row := range folderRows {
		folder.Children = append(folder.Children, FolderFromRow(row))
	}

	notes, err := s.NotesInFolder(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	folder.Notes = notes
	return folder, nil
}

// SearchNotes matches the substring case-insensitively against title or text
// of active notes, optionally narrowed to one folder. The needle is always a
// bound parameter with LIKE wildcards escaped; an empty or whitespace-only
// needle matches every active note, any other needle is matched verbatim,
// surrounding whitespace included. Matches are re-fetched by id so results
// carry full content.
func (s *Service) SearchNotes(ctx context.Context, userID UserID, substring string, folderID *FolderID) ([]*Note, error) {
	needle := strings.ToLower(substring)
	if strings.TrimSpace(needle) == "" {
		needle = ""
	}
	pattern := "%" + escapeLikePattern(needle) + "%"

	query := s.db.WithContext(ctx).Model(&NoteRow{}).
		Where("user_id = ? AND deleted_at_ms IS NULL", userID.String()).
		Where(`(LOWER(title) LIKE ? ESCAPE '\' OR LOWER(text) LIKE ? ESCAPE '\')`, pattern, pattern)
	if folderID != nil {
		query = query.Where("folder_id = ?", folderID.String())
	}

	var ids []string
	if err := query.Order("updated_at_ms DESC").Pluck("id", &ids).Error; err != nil {
		s.logError(opSearchNotes, "query_failed", err, zap.String("user_id", userID.String()))
		return nil, newStoreError(opSearchNotes, "query_failed", err)
	}

	notes := make([]*Note, 0, len(ids))
	for _, id := range ids {
		note, err := s.NoteByID(ctx, userID, NoteID(id))
		if err != nil {
			return nil, err
		}
		if note != nil {
			notes = append(notes, note)
		}
	}
	return notes, nil
}

// EnsureRootFolder returns the per-user root folder, creating it exactly once
// when absent.
func (s *Service) EnsureRootFolder(ctx context.Context, userID UserID) (*Folder, error) {
	var row FolderRow
	err := s.db.WithContext(ctx).
		Where("parent_id IS NULL AND title = ? AND user_id = ?", RootFolderTitle, userID.String()).
		Take(&row).Error
	if err == nil {
		return FolderFromRow(row), nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		s.logError(opEnsureRootFolder, "query_failed", err, zap.String("user_id", userID.String()))
		return nil, newStoreError(opEnsureRootFolder, "query_failed", err)
	}

	id, err := s.idProvider.NewID()
	if err != nil {
		return nil, newStoreError(opEnsureRootFolder, "id_generation_failed", err)
	}

	now := s.clock().UTC()
	root := &Folder{
		ID:        FolderID(id),
		Title:     RootFolderTitle,
		Level:     0,
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	rootRow := RowFromFolder(root)
	if err := s.db.WithContext(ctx).Create(&rootRow).Error; err != nil {
		s.logError(opEnsureRootFolder, "insert_failed", err, zap.String("user_id", userID.String()))
		return nil, newStoreError(opEnsureRootFolder, "insert_failed", err)
	}
	return root, nil
}

func (s *Service) hasNoteWithID(ctx context.Context, id NoteID) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&NoteRow{}).
		Where("id = ?", id.String()).
		Count(&count).Error
	return count > 0, err
}

func (s *Service) hasFolderWithID(ctx context.Context, id FolderID) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&FolderRow{}).
		Where("id = ?", id.String()).
		Count(&count).Error
	return count > 0, err
}

// escapeLikePattern makes LIKE metacharacters in the user-supplied needle
// match literally.
func escapeLikePattern(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(value)
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil || s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("local store error", attrs...)
}
