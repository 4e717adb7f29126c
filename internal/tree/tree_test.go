package tree

import (
	"errors"
	"testing"
	"time"

	"github.com/xDeepak/giganotes-backend/internal/store"
)

func testFolder(id string, parentID *string, level int, title string) *store.Folder {
	folder := &store.Folder{
		ID:        store.FolderID(id),
		Title:     title,
		Level:     level,
		UserID:    store.UserID("user-1"),
		CreatedAt: time.UnixMilli(1700000000000).UTC(),
		UpdatedAt: time.UnixMilli(1700000000000).UTC(),
	}
	if parentID != nil {
		value := store.FolderID(*parentID)
		folder.ParentID = &value
	}
	return folder
}

func testNote(id, folderID, title string) *store.Note {
	return &store.Note{
		ID:        store.NoteID(id),
		Title:     title,
		FolderID:  store.FolderID(folderID),
		UserID:    store.UserID("user-1"),
		CreatedAt: time.UnixMilli(1700000000000).UTC(),
		UpdatedAt: time.UnixMilli(1700000000000).UTC(),
	}
}

func strPtr(value string) *string {
	return &value
}

func TestBuildAssemblesHierarchy(t *testing.T) {
	// Deliberately unsorted: the child arrives before its parent.
	folders := []*store.Folder{
		testFolder("b", strPtr("a"), 2, "B"),
		testFolder("root", nil, 0, store.RootFolderTitle),
		testFolder("a", strPtr("root"), 1, "A"),
	}
	notes := []*store.Note{
		testNote("n1", "a", "n1"),
		testNote("n2", "b", "n2"),
	}

	root, err := Build(folders, notes)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if root.ID != "root" {
		t.Fatalf("expected root at the top, got %s", root.ID)
	}
	if len(root.Children) != 1 || root.Children[0].ID != "a" {
		t.Fatalf("unexpected root children: %#v", root.Children)
	}
	a := root.Children[0]
	if len(a.Children) != 1 || a.Children[0].ID != "b" {
		t.Fatalf("unexpected children of a: %#v", a.Children)
	}
	if len(a.Notes) != 1 || a.Notes[0].ID != "n1" {
		t.Fatalf("unexpected notes of a: %#v", a.Notes)
	}
	b := a.Children[0]
	if len(b.Notes) != 1 || b.Notes[0].ID != "n2" {
		t.Fatalf("unexpected notes of b: %#v", b.Notes)
	}
}

func TestBuildFailsWithoutFolders(t *testing.T) {
	_, err := Build(nil, nil)
	if !errors.Is(err, ErrMissingRoot) {
		t.Fatalf("expected ErrMissingRoot, got %v", err)
	}
}

func TestBuildFailsWhenShallowestFolderIsNotRoot(t *testing.T) {
	folders := []*store.Folder{
		testFolder("a", strPtr("elsewhere"), 1, "A"),
	}
	_, err := Build(folders, nil)
	if !errors.Is(err, ErrMissingRoot) {
		t.Fatalf("expected ErrMissingRoot, got %v", err)
	}
}

func TestBuildFailsOnDuplicateRoot(t *testing.T) {
	folders := []*store.Folder{
		testFolder("root", nil, 0, store.RootFolderTitle),
		testFolder("second", nil, 0, store.RootFolderTitle),
	}
	_, err := Build(folders, nil)
	if !errors.Is(err, ErrMissingRoot) {
		t.Fatalf("expected ErrMissingRoot, got %v", err)
	}
}

func TestBuildFailsOnOrphanFolder(t *testing.T) {
	folders := []*store.Folder{
		testFolder("root", nil, 0, store.RootFolderTitle),
		testFolder("lost", strPtr("vanished"), 1, "Lost"),
	}
	_, err := Build(folders, nil)
	if !errors.Is(err, ErrOrphanReference) {
		t.Fatalf("expected ErrOrphanReference, got %v", err)
	}
}

func TestBuildFailsOnOrphanNote(t *testing.T) {
	folders := []*store.Folder{
		testFolder("root", nil, 0, store.RootFolderTitle),
	}
	notes := []*store.Note{
		testNote("n1", "vanished", "n1"),
	}
	_, err := Build(folders, notes)
	if !errors.Is(err, ErrOrphanReference) {
		t.Fatalf("expected ErrOrphanReference, got %v", err)
	}
}

func TestFlattenLinksOrdersFoldersBeforeNotes(t *testing.T) {
	folders := []*store.Folder{
		testFolder("root", nil, 0, store.RootFolderTitle),
		testFolder("a", strPtr("root"), 1, "A"),
		testFolder("b", strPtr("a"), 2, "B"),
	}
	notes := []*store.Note{
		testNote("n1", "a", "n1"),
		testNote("n2", "b", "n2"),
	}

	root, err := Build(folders, notes)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	items := FlattenLinks(root)
	want := []LinkItem{
		{Title: "A", Target: "local:a"},
		{Title: "B", Target: "local:b"},
		{Title: "n2", Target: "local:n2"},
		{Title: "n1", Target: "local:n1"},
	}
	if len(items) != len(want) {
		t.Fatalf("expected %d items, got %d: %#v", len(want), len(items), items)
	}
	for i := range want {
		if items[i] != want[i] {
			t.Fatalf("item %d: expected %#v, got %#v", i, want[i], items[i])
		}
	}
}

func TestFlattenLinksEmptyTree(t *testing.T) {
	root, err := Build([]*store.Folder{testFolder("root", nil, 0, store.RootFolderTitle)}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	items := FlattenLinks(root)
	if items == nil || len(items) != 0 {
		t.Fatalf("expected an empty, non-nil list, got %#v", items)
	}
}
