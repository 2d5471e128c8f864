// Structural three-way merge of content trees.
//
// Divergent trees are aligned by each node's stable identity tag, never by
// position. Child lists get a three-way list merge that keeps insertions
// made independently by either side, anchored relative to their stable
// neighbors; scalar leaf fields get an equality-based three-way merge. Any
// case that cannot be decided automatically aborts the entity's merge with
// an UnresolvableMergeError.

package merge

import (
	"fmt"

	"conceptarium/internal/models"
	"conceptarium/internal/refs"
)

// subtreeEqual compares two subtrees by fingerprint.
func subtreeEqual(a, b *models.Node) bool {
	return refs.HashContent([]*models.Node{a}) == refs.HashContent([]*models.Node{b})
}

// unresolvable builds the error that flags an entity for manual merge.
func unresolvable(path, format string, args ...any) error {
	return &models.UnresolvableMergeError{Path: path, Msg: fmt.Sprintf(format, args...)}
}

// mergeNodeLists three-way merges two divergent child lists against their
// common ancestor.
func mergeNodeLists(base, left, right []*models.Node, path string) ([]*models.Node, error) {
	baseByID := indexByID(base)
	leftIDs := idSet(left)
	rightIDs := idSet(right)

	var out []*models.Node
	i, j := 0, 0
	for i < len(left) || j < len(right) {
		switch {
		case i >= len(left):
			n := right[j]
			j++
			merged, keep, err := mergeOneSided(baseByID, n, path)
			if err != nil {
				return nil, err
			}
			if keep {
				out = append(out, merged)
			}
		case j >= len(right):
			n := left[i]
			i++
			merged, keep, err := mergeOneSided(baseByID, n, path)
			if err != nil {
				return nil, err
			}
			if keep {
				out = append(out, merged)
			}
		case left[i].ID == right[j].ID:
			merged, err := mergeNode(baseByID[left[i].ID], left[i], right[j], path)
			if err != nil {
				return nil, err
			}
			out = append(out, merged)
			i++
			j++
		case !rightIDs[left[i].ID]:
			n := left[i]
			i++
			merged, keep, err := mergeOneSided(baseByID, n, path)
			if err != nil {
				return nil, err
			}
			if keep {
				out = append(out, merged)
			}
		case !leftIDs[right[j].ID]:
			n := right[j]
			j++
			merged, keep, err := mergeOneSided(baseByID, n, path)
			if err != nil {
				return nil, err
			}
			if keep {
				out = append(out, merged)
			}
		default:
			// Both sides kept the same nodes but in different relative
			// orders; there is no anchor to decide the merged order.
			return nil, unresolvable(path, "nodes reordered on both sides")
		}
	}
	return out, nil
}

// mergeOneSided handles a node present in only one of the two lists. A node
// absent from the base is an insertion and is kept; a node present in the
// base was deleted by the other side, which is safe only if this side left
// it untouched.
func mergeOneSided(baseByID map[string]*models.Node, n *models.Node, path string) (*models.Node, bool, error) {
	b, inBase := baseByID[n.ID]
	if !inBase {
		return n.Clone(), true, nil
	}
	if subtreeEqual(b, n) {
		return nil, false, nil // deleted by the other side, unchanged here
	}
	return nil, false, unresolvable(childPath(path, n.ID), "node deleted on one side and edited on the other")
}

// mergeNode three-way merges a single node present on both sides. base may
// be nil when both sides independently produced the same identity tag.
func mergeNode(base, left, right *models.Node, parentPath string) (*models.Node, error) {
	path := childPath(parentPath, left.ID)
	if base == nil {
		if subtreeEqual(left, right) {
			return left.Clone(), nil
		}
		return nil, unresolvable(path, "node added on both sides with different content")
	}

	out := &models.Node{ID: left.ID}
	var err error
	if out.Kind, err = mergeScalar(base.Kind, left.Kind, right.Kind, path, "kind"); err != nil {
		return nil, err
	}
	if out.Text, err = mergeScalar(base.Text, left.Text, right.Text, path, "text"); err != nil {
		return nil, err
	}
	if out.Bold, err = mergeScalar(base.Bold, left.Bold, right.Bold, path, "bold"); err != nil {
		return nil, err
	}
	if out.Italic, err = mergeScalar(base.Italic, left.Italic, right.Italic, path, "italic"); err != nil {
		return nil, err
	}
	if out.Underline, err = mergeScalar(base.Underline, left.Underline, right.Underline, path, "underline"); err != nil {
		return nil, err
	}
	if out.Strikethrough, err = mergeScalar(base.Strikethrough, left.Strikethrough, right.Strikethrough, path, "strikethrough"); err != nil {
		return nil, err
	}
	if out.Level, err = mergeScalar(base.Level, left.Level, right.Level, path, "level"); err != nil {
		return nil, err
	}
	if out.Ref, err = mergeScalar(base.Ref, left.Ref, right.Ref, path, "ref"); err != nil {
		return nil, err
	}
	if out.FileID, err = mergeScalar(base.FileID, left.FileID, right.FileID, path, "fileId"); err != nil {
		return nil, err
	}
	if out.Children, err = mergeNodeLists(base.Children, left.Children, right.Children, path); err != nil {
		return nil, err
	}
	return out, nil
}

// mergeScalar is the equality-based three-way merge for leaf fields: when
// only one side changed the value, that side wins; when both changed it
// differently, the merge is not automatically resolvable.
func mergeScalar[T comparable](base, left, right T, path, field string) (T, error) {
	if left == right {
		return left, nil
	}
	if base == left {
		return right, nil
	}
	if base == right {
		return left, nil
	}
	var zero T
	return zero, unresolvable(path, "both sides changed %s differently", field)
}

func indexByID(nodes []*models.Node) map[string]*models.Node {
	out := make(map[string]*models.Node, len(nodes))
	for _, n := range nodes {
		out[n.ID] = n
	}
	return out
}

func idSet(nodes []*models.Node) map[string]bool {
	out := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		out[n.ID] = true
	}
	return out
}

func childPath(parent, id string) string {
	if parent == "" {
		return id
	}
	return parent + "/" + id
}
