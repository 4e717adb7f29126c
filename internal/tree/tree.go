// Package tree reconstructs the in-memory folder hierarchy from the flat
// listings the store returns, for the folder browser and the link picker.
package tree

import (
	"errors"
	"fmt"
	"sort"

	"github.com/xDeepak/giganotes-backend/internal/store"
)

var (
	// ErrOrphanReference indicates a dangling parent or folder reference in
	// the stored rows, a storage invariant violation.
	ErrOrphanReference = errors.New("tree: orphan reference")
	// ErrMissingRoot indicates an empty folder listing or one whose
	// shallowest folder is not the root.
	ErrMissingRoot = errors.New("tree: root folder missing")
)

// Build assembles the single root folder from the user's active folders and
// notes. Folders are processed in ascending level order, which guarantees a
// parent is indexed before any of its children; notes are attached in one
// pass afterwards. A reference that does not resolve fails the build rather
// than being dropped.
func Build(folders []*store.Folder, notes []*store.Note) (*store.Folder, error) {
	if len(folders) == 0 {
		return nil, ErrMissingRoot
	}

	ordered := make([]*store.Folder, len(folders))
	copy(ordered, folders)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Level < ordered[j].Level
	})

	root := ordered[0]
	if !root.Root() {
		return nil, fmt.Errorf("%w: shallowest folder %s has a parent", ErrMissingRoot, root.ID)
	}

	index := map[store.FolderID]*store.Folder{root.ID: root}
	for _, folder := range ordered[1:] {
		if folder.ParentID == nil {
			return nil, fmt.Errorf("%w: duplicate root folder %s", ErrMissingRoot, folder.ID)
		}
		parent, ok := index[*folder.ParentID]
		if !ok {
			return nil, fmt.Errorf("%w: folder %s references unknown parent %s",
				ErrOrphanReference, folder.ID, *folder.ParentID)
		}
		parent.Children = append(parent.Children, folder)
		index[folder.ID] = folder
	}

	for _, note := range notes {
		owner, ok := index[note.FolderID]
		if !ok {
			return nil, fmt.Errorf("%w: note %s references unknown folder %s",
				ErrOrphanReference, note.ID, note.FolderID)
		}
		owner.Notes = append(owner.Notes, note)
	}

	return root, nil
}
