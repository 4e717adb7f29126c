package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/xDeepak/giganotes-backend/internal/bus"
	"github.com/xDeepak/giganotes-backend/internal/store"
	syncglue "github.com/xDeepak/giganotes-backend/internal/sync"
	"github.com/xDeepak/giganotes-backend/internal/tree"
)

const userIDContextKey = "giganotes_user_id"

var (
	errMissingTokenManager  = errors.New("token manager dependency required")
	errMissingStore         = errors.New("store dependency required")
	errMissingApplier       = errors.New("sync applier dependency required")
	errInvalidAuthorization = errors.New("authorization header missing or invalid")
)

// BearerTokenManager issues and validates the bearer tokens carrying user ids.
type BearerTokenManager interface {
	IssueToken(ctx context.Context, userID string) (string, int64, error)
	ValidateToken(token string) (string, error)
}

// Dependencies wires the handler to its collaborators.
type Dependencies struct {
	TokenManager BearerTokenManager
	Store        *store.Service
	Applier      *syncglue.Applier
	Bus          *bus.Bus
	Logger       *zap.Logger
}

// NewHTTPHandler builds the gin router exposing the store over JSON.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.TokenManager == nil {
		return nil, errMissingTokenManager
	}
	if deps.Store == nil {
		return nil, errMissingStore
	}
	if deps.Applier == nil {
		return nil, errMissingApplier
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		tokens:  deps.TokenManager,
		store:   deps.Store,
		applier: deps.Applier,
		bus:     deps.Bus,
		logger:  logger,
	}

	router.POST("/auth/token", handler.handleIssueToken)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)

	protected.GET("/notes", handler.handleListNotes)
	protected.POST("/notes", handler.handleCreateNote)
	protected.GET("/notes/search", handler.handleSearchNotes)
	protected.GET("/notes/:id", handler.handleGetNote)
	protected.PUT("/notes/:id", handler.handleUpdateNote)
	protected.DELETE("/notes/:id", handler.handleDeleteNote)

	protected.GET("/folders", handler.handleListFolders)
	protected.POST("/folders", handler.handleCreateFolder)
	protected.GET("/folders/root", handler.handleRootFolder)
	protected.GET("/folders/:id", handler.handleGetFolder)
	protected.GET("/folders/:id/children", handler.handleFolderChildren)
	protected.PUT("/folders/:id", handler.handleUpdateFolder)
	protected.DELETE("/folders/:id", handler.handleDeleteFolderTree)

	protected.GET("/tree", handler.handleTree)
	protected.GET("/links", handler.handleLinks)

	protected.POST("/sync/apply", handler.handleSyncApply)
	protected.GET("/events", handler.handleEvents)

	return router, nil
}

type httpHandler struct {
	tokens  BearerTokenManager
	store   *store.Service
	applier *syncglue.Applier
	bus     *bus.Bus
	logger  *zap.Logger
}

func (h *httpHandler) handleIssueToken(c *gin.Context) {
	var request tokenRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if err := request.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	token, expiresIn, err := h.tokens.IssueToken(c.Request.Context(), strings.TrimSpace(request.UserID))
	if err != nil {
		h.logger.Error("failed to issue token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token_issue_failed"})
		return
	}

	c.JSON(http.StatusOK, tokenResponsePayload{
		AccessToken: token,
		ExpiresIn:   expiresIn,
		TokenType:   "Bearer",
	})
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	subject, err := h.tokens.ValidateToken(token)
	if err != nil {
		h.logger.Warn("token validation failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(userIDContextKey, subject)
	c.Next()
}

func (h *httpHandler) contextUserID(c *gin.Context) (store.UserID, bool) {
	userID, err := store.NewUserID(c.GetString(userIDContextKey))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return "", false
	}
	return userID, true
}

func (h *httpHandler) handleListNotes(c *gin.Context) {
	userID, ok := h.contextUserID(c)
	if !ok {
		return
	}
	includeDeleted := c.Query("include_deleted") == "true"

	notes, err := h.store.ListNotes(c.Request.Context(), userID, includeDeleted)
	if err != nil {
		h.respondStoreError(c, err)
		return
	}

	response := make([]noteResponse, 0, len(notes))
	for _, note := range notes {
		response = append(response, responseFromNote(note))
	}
	c.JSON(http.StatusOK, response)
}

func (h *httpHandler) handleCreateNote(c *gin.Context) {
	userID, ok := h.contextUserID(c)
	if !ok {
		return
	}

	var request createNotePayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if err := request.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	note := &store.Note{
		Title:    request.Title,
		Text:     request.Text,
		FolderID: store.FolderID(request.FolderID),
	}
	if err := h.store.CreateNote(c.Request.Context(), userID, note); err != nil {
		h.respondStoreError(c, err)
		return
	}

	h.publishDataChanged(userID)
	c.JSON(http.StatusCreated, responseFromNote(note))
}

func (h *httpHandler) handleSearchNotes(c *gin.Context) {
	userID, ok := h.contextUserID(c)
	if !ok {
		return
	}

	var folderID *store.FolderID
	if raw := strings.TrimSpace(c.Query("folder_id")); raw != "" {
		parsed, err := store.NewFolderID(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_folder_id"})
			return
		}
		folderID = &parsed
	}

	notes, err := h.store.SearchNotes(c.Request.Context(), userID, c.Query("q"), folderID)
	if err != nil {
		h.respondStoreError(c, err)
		return
	}

	response := make([]noteResponse, 0, len(notes))
	for _, note := range notes {
		response = append(response, responseFromNote(note))
	}
	c.JSON(http.StatusOK, response)
}

func (h *httpHandler) handleGetNote(c *gin.Context) {
	userID, ok := h.contextUserID(c)
	if !ok {
		return
	}
	noteID, err := store.NewNoteID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_note_id"})
		return
	}

	note, err := h.store.NoteByID(c.Request.Context(), userID, noteID)
	if err != nil {
		h.respondStoreError(c, err)
		return
	}
	if note == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	c.JSON(http.StatusOK, responseFromNote(note))
}

func (h *httpHandler) handleUpdateNote(c *gin.Context) {
	userID, ok := h.contextUserID(c)
	if !ok {
		return
	}
	noteID, err := store.NewNoteID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_note_id"})
		return
	}

	var request updateNotePayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if err := request.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	note := &store.Note{
		ID:        noteID,
		Title:     request.Title,
		Text:      request.Text,
		FolderID:  store.FolderID(request.FolderID),
		Level:     request.Level,
		UserID:    userID,
		DeletedAt: timeOrNil(request.DeletedAtMs),
	}
	if err := h.store.UpdateNote(c.Request.Context(), userID, note); err != nil {
		h.respondStoreError(c, err)
		return
	}

	// Respond with the stored row so created_at reflects the original insert.
	updated, err := h.store.NoteByID(c.Request.Context(), userID, noteID)
	if err != nil {
		h.respondStoreError(c, err)
		return
	}
	if updated == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}

	h.publishDataChanged(userID)
	c.JSON(http.StatusOK, responseFromNote(updated))
}

func (h *httpHandler) handleDeleteNote(c *gin.Context) {
	userID, ok := h.contextUserID(c)
	if !ok {
		return
	}
	noteID, err := store.NewNoteID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_note_id"})
		return
	}

	if err := h.store.SoftDeleteNote(c.Request.Context(), userID, noteID); err != nil {
		h.respondStoreError(c, err)
		return
	}

	h.publishDataChanged(userID)
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleListFolders(c *gin.Context) {
	userID, ok := h.contextUserID(c)
	if !ok {
		return
	}
	includeDeleted := c.Query("include_deleted") == "true"

	folders, err := h.store.ListFolders(c.Request.Context(), userID, includeDeleted)
	if err != nil {
		h.respondStoreError(c, err)
		return
	}

	response := make([]folderResponse, 0, len(folders))
	for _, folder := range folders {
		response = append(response, responseFromFolder(folder))
	}
	c.JSON(http.StatusOK, response)
}

func (h *httpHandler) handleCreateFolder(c *gin.Context) {
	userID, ok := h.contextUserID(c)
	if !ok {
		return
	}

	var request createFolderPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if err := request.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	parentID := store.FolderID(request.ParentID)
	folder := &store.Folder{
		Title:    request.Title,
		ParentID: &parentID,
	}
	if err := h.store.CreateFolder(c.Request.Context(), userID, folder); err != nil {
		h.respondStoreError(c, err)
		return
	}

	h.publishDataChanged(userID)
	c.JSON(http.StatusCreated, responseFromFolder(folder))
}

func (h *httpHandler) handleRootFolder(c *gin.Context) {
	userID, ok := h.contextUserID(c)
	if !ok {
		return
	}

	root, err := h.store.EnsureRootFolder(c.Request.Context(), userID)
	if err != nil {
		h.respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, responseFromFolder(root))
}

func (h *httpHandler) handleGetFolder(c *gin.Context) {
	userID, ok := h.contextUserID(c)
	if !ok {
		return
	}
	folderID, err := store.NewFolderID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_folder_id"})
		return
	}

	folder, err := h.store.FolderByID(c.Request.Context(), userID, folderID)
	if err != nil {
		h.respondStoreError(c, err)
		return
	}
	if folder == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	c.JSON(http.StatusOK, responseFromFolder(folder))
}

func (h *httpHandler) handleFolderChildren(c *gin.Context) {
	userID, ok := h.contextUserID(c)
	if !ok {
		return
	}
	folderID, err := store.NewFolderID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_folder_id"})
		return
	}

	folder, err := h.store.FolderWithActiveChildren(c.Request.Context(), userID, folderID)
	if err != nil {
		h.respondStoreError(c, err)
		return
	}
	if folder == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	c.JSON(http.StatusOK, responseFromTree(folder))
}

func (h *httpHandler) handleUpdateFolder(c *gin.Context) {
	userID, ok := h.contextUserID(c)
	if !ok {
		return
	}
	folderID, err := store.NewFolderID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_folder_id"})
		return
	}

	var request updateFolderPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if err := request.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	parentID := store.FolderID(request.ParentID)
	folder := &store.Folder{
		ID:        folderID,
		Title:     request.Title,
		ParentID:  &parentID,
		Level:     request.Level,
		UserID:    userID,
		DeletedAt: timeOrNil(request.DeletedAtMs),
	}
	if err := h.store.UpdateFolder(c.Request.Context(), userID, folder); err != nil {
		h.respondStoreError(c, err)
		return
	}

	// Respond with the stored row so created_at reflects the original insert.
	updated, err := h.store.FolderByID(c.Request.Context(), userID, folderID)
	if err != nil {
		h.respondStoreError(c, err)
		return
	}
	if updated == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}

	h.publishDataChanged(userID)
	c.JSON(http.StatusOK, responseFromFolder(updated))
}

func (h *httpHandler) handleDeleteFolderTree(c *gin.Context) {
	userID, ok := h.contextUserID(c)
	if !ok {
		return
	}
	folderID, err := store.NewFolderID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_folder_id"})
		return
	}

	if err := h.store.SoftDeleteFolderTree(c.Request.Context(), userID, folderID); err != nil {
		h.respondStoreError(c, err)
		return
	}

	h.publishDataChanged(userID)
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) loadTree(c *gin.Context, userID store.UserID) (*store.Folder, bool) {
	folders, err := h.store.ListFolders(c.Request.Context(), userID, false)
	if err != nil {
		h.respondStoreError(c, err)
		return nil, false
	}
	notes, err := h.store.ListNotes(c.Request.Context(), userID, false)
	if err != nil {
		h.respondStoreError(c, err)
		return nil, false
	}

	root, err := tree.Build(folders, notes)
	if errors.Is(err, tree.ErrMissingRoot) {
		c.JSON(http.StatusNotFound, gin.H{"error": "root_missing"})
		return nil, false
	}
	if err != nil {
		h.logger.Error("tree build failed", zap.String("user_id", userID.String()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "tree_build_failed"})
		return nil, false
	}
	return root, true
}

func (h *httpHandler) handleTree(c *gin.Context) {
	userID, ok := h.contextUserID(c)
	if !ok {
		return
	}
	root, ok := h.loadTree(c, userID)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, responseFromTree(root))
}

func (h *httpHandler) handleLinks(c *gin.Context) {
	userID, ok := h.contextUserID(c)
	if !ok {
		return
	}
	root, ok := h.loadTree(c, userID)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, tree.FlattenLinks(root))
}

func (h *httpHandler) handleSyncApply(c *gin.Context) {
	userID, ok := h.contextUserID(c)
	if !ok {
		return
	}

	var request syncApplyPayload
	if err := c.ShouldBindJSON(&request); err != nil || len(request.Changes) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	changes := make([]syncglue.Change, 0, len(request.Changes))
	for _, payload := range request.Changes {
		change, err := h.changeFromPayload(payload, userID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_change"})
			return
		}
		changes = append(changes, change)
	}

	result, err := h.applier.Apply(c.Request.Context(), userID, changes)
	if err != nil {
		h.respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, syncApplyResponse{Applied: result.Applied, Ignored: result.Ignored})
}

func (h *httpHandler) changeFromPayload(payload syncChangePayload, userID store.UserID) (syncglue.Change, error) {
	if err := payload.Validate(); err != nil {
		return syncglue.Change{}, err
	}

	change := syncglue.Change{
		Kind:      syncglue.EntityKind(payload.Entity),
		Operation: syncglue.Operation(payload.Operation),
	}
	switch change.Operation {
	case syncglue.OperationUpsert:
		switch change.Kind {
		case syncglue.EntityNote:
			if payload.Note == nil {
				return syncglue.Change{}, errors.New("upsert change missing note")
			}
			if err := payload.Note.Validate(); err != nil {
				return syncglue.Change{}, err
			}
			change.Note = noteFromSyncPayload(payload.Note, userID)
		case syncglue.EntityFolder:
			if payload.Folder == nil {
				return syncglue.Change{}, errors.New("upsert change missing folder")
			}
			if err := payload.Folder.Validate(); err != nil {
				return syncglue.Change{}, err
			}
			change.Folder = folderFromSyncPayload(payload.Folder, userID)
		}
	case syncglue.OperationDelete:
		if strings.TrimSpace(payload.ID) == "" {
			return syncglue.Change{}, errors.New("delete change missing id")
		}
		change.NoteID = store.NoteID(payload.ID)
		change.FolderID = store.FolderID(payload.ID)
	}
	return change, nil
}

func (h *httpHandler) handleEvents(c *gin.Context) {
	userID, ok := h.contextUserID(c)
	if !ok {
		return
	}
	if h.bus == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "events_disabled"})
		return
	}

	stream, cancel := h.bus.Subscribe(c.Request.Context(), userID.String())
	defer cancel()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Stream(func(w io.Writer) bool {
		select {
		case message, open := <-stream:
			if !open {
				return false
			}
			c.SSEvent(message.EventType, gin.H{"at_ms": message.Timestamp.UnixMilli()})
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

func (h *httpHandler) publishDataChanged(userID store.UserID) {
	if h.bus == nil {
		return
	}
	h.bus.Publish(bus.Message{
		UserID:    userID.String(),
		EventType: bus.EventDataChanged,
		Timestamp: time.Now().UTC(),
	})
}

func (h *httpHandler) respondStoreError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrMissingParent):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "missing_parent"})
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
	case errors.Is(err, store.ErrInvalidNoteID), errors.Is(err, store.ErrInvalidFolderID), errors.Is(err, store.ErrInvalidUserID):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_identifier"})
	default:
		h.logger.Error("store operation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage_failure"})
	}
}
