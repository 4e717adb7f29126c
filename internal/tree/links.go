package tree

import "github.com/xDeepak/giganotes-backend/internal/store"

// LinkPrefix prefixes the identifier in an internal-link target embedded in
// note text.
const LinkPrefix = "local:"

// LinkItem is one entry of the flattened link-picker list.
type LinkItem struct {
	Title  string `json:"title"`
	Target string `json:"target"`
}

// FlattenLinks walks the built tree depth-first and returns one linkable
// entry per folder and note. Within a folder, child folders come before the
// folder's own notes, preserving insertion order. The root folder itself is
// not listed.
func FlattenLinks(root *store.Folder) []LinkItem {
	items := make([]LinkItem, 0)
	collectLinks(root, &items)
	return items
}

func collectLinks(folder *store.Folder, items *[]LinkItem) {
	for _, child := range folder.Children {
		*items = append(*items, LinkItem{
			Title:  child.Title,
			Target: LinkPrefix + child.ID.String(),
		})
		collectLinks(child, items)
	}
	for _, note := range folder.Notes {
		*items = append(*items, LinkItem{
			Title:  note.Title,
			Target: LinkPrefix + note.ID.String(),
		})
	}
}
