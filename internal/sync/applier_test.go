package sync

import (
	"context"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/xDeepak/giganotes-backend/internal/bus"
	"github.com/xDeepak/giganotes-backend/internal/store"
)

type staticIDGenerator struct {
	next int
}

func (g *staticIDGenerator) NewID() (string, error) {
	g.next++
	return fmt.Sprintf("local-%04d", g.next), nil
}

func newTestApplier(t *testing.T) (*Applier, *store.Service, *bus.Bus) {
	t.Helper()

	dsn := fmt.Sprintf("file:giganotes_sync_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&store.NoteRow{}, &store.FolderRow{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	service, err := store.NewService(store.ServiceConfig{
		Database:   db,
		Clock:      func() time.Time { return time.UnixMilli(1700000000000).UTC() },
		IDProvider: &staticIDGenerator{},
	})
	if err != nil {
		t.Fatalf("failed to construct store: %v", err)
	}

	dispatcher := bus.New()
	applier, err := NewApplier(ApplierConfig{Store: service, Bus: dispatcher})
	if err != nil {
		t.Fatalf("failed to construct applier: %v", err)
	}
	return applier, service, dispatcher
}

func remoteBatch(userID store.UserID) []Change {
	createdAt := time.UnixMilli(1699990000000).UTC()
	folder := &store.Folder{
		ID:        store.FolderID("remote-root"),
		Title:     store.RootFolderTitle,
		Level:     0,
		UserID:    userID,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
	note := &store.Note{
		ID:        store.NoteID("remote-note"),
		Title:     "From the server",
		Text:      "replicated",
		FolderID:  folder.ID,
		Level:     1,
		UserID:    userID,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
	return []Change{
		{Kind: EntityFolder, Operation: OperationUpsert, Folder: folder},
		{Kind: EntityNote, Operation: OperationUpsert, Note: note},
	}
}

func TestApplyReplicatesRemoteBatch(t *testing.T) {
	applier, service, _ := newTestApplier(t)
	userID := store.UserID("user-1")

	result, err := applier.Apply(context.Background(), userID, remoteBatch(userID))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Applied != 2 || result.Ignored != 0 {
		t.Fatalf("unexpected result: %#v", result)
	}

	note, err := service.NoteByID(context.Background(), userID, store.NoteID("remote-note"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if note == nil || note.Title != "From the server" {
		t.Fatalf("remote note not replicated: %#v", note)
	}
	if !note.CreatedAt.Equal(time.UnixMilli(1699990000000).UTC()) {
		t.Fatalf("remote timestamps must be preserved: %#v", note)
	}
}

func TestApplyIsIdempotent(t *testing.T) {
	applier, _, _ := newTestApplier(t)
	userID := store.UserID("user-1")

	if _, err := applier.Apply(context.Background(), userID, remoteBatch(userID)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result, err := applier.Apply(context.Background(), userID, remoteBatch(userID))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Applied != 0 || result.Ignored != 2 {
		t.Fatalf("replayed batch must be ignored, got %#v", result)
	}
}

func TestApplyDeleteCascadesFolderTree(t *testing.T) {
	applier, service, _ := newTestApplier(t)
	userID := store.UserID("user-1")

	if _, err := applier.Apply(context.Background(), userID, remoteBatch(userID)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result, err := applier.Apply(context.Background(), userID, []Change{
		{Kind: EntityFolder, Operation: OperationDelete, FolderID: store.FolderID("remote-root")},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Applied != 1 {
		t.Fatalf("unexpected result: %#v", result)
	}

	note, err := service.NoteByID(context.Background(), userID, store.NoteID("remote-note"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if note == nil || note.DeletedAt == nil {
		t.Fatalf("delete must cascade into contained notes: %#v", note)
	}
}

func TestApplySkipsDeleteOfUnknownID(t *testing.T) {
	applier, _, _ := newTestApplier(t)
	userID := store.UserID("user-1")

	result, err := applier.Apply(context.Background(), userID, []Change{
		{Kind: EntityNote, Operation: OperationDelete, NoteID: store.NoteID("never-seen")},
		{Kind: EntityFolder, Operation: OperationDelete, FolderID: store.FolderID("never-seen")},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Applied != 0 || result.Ignored != 2 {
		t.Fatalf("deletes of unknown ids must be skipped, got %#v", result)
	}
}

func TestApplyPublishesSyncFinished(t *testing.T) {
	applier, _, dispatcher := newTestApplier(t)
	userID := store.UserID("user-1")

	stream, cancel := dispatcher.Subscribe(context.Background(), userID.String())
	defer cancel()

	if _, err := applier.Apply(context.Background(), userID, remoteBatch(userID)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case message := <-stream:
		if message.EventType != bus.EventSyncFinished {
			t.Fatalf("unexpected event: %#v", message)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for the sync-finished event")
	}
}

func TestApplyRejectsMalformedChanges(t *testing.T) {
	applier, _, _ := newTestApplier(t)
	userID := store.UserID("user-1")

	if _, err := applier.Apply(context.Background(), userID, []Change{{Kind: "calendar", Operation: OperationUpsert}}); err == nil {
		t.Fatalf("expected unknown entity kind to fail")
	}
	if _, err := applier.Apply(context.Background(), userID, []Change{{Kind: EntityNote, Operation: "merge"}}); err == nil {
		t.Fatalf("expected unknown operation to fail")
	}
	if _, err := applier.Apply(context.Background(), userID, []Change{{Kind: EntityNote, Operation: OperationUpsert}}); err == nil {
		t.Fatalf("expected missing payload to fail")
	}
}
