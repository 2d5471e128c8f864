// Package refs extracts cross-document references from content trees and
// computes the deterministic fingerprints the graph store and remote index
// rely on for change detection.
package refs

import (
	"slices"

	"conceptarium/internal/models"
)

// Extract returns the set of document and drawing names referenced by the
// content tree: inline references, drawing embeds and portal transclusions.
// Plain text runs and remote-file embeds are ignored. The result is sorted
// and duplicate-free; extraction is pure and order-independent.
func Extract(content []*models.Node) []string {
	seen := map[string]struct{}{}
	walk(content, seen)
	if len(seen) == 0 {
		return nil
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}

func walk(nodes []*models.Node, seen map[string]struct{}) {
	for _, n := range nodes {
		switch n.Kind {
		case models.NodeReference, models.NodeDrawing:
			if n.Ref != "" {
				seen[n.Ref] = struct{}{}
			}
		case models.NodePortal:
			if n.Ref != "" {
				seen[n.Ref] = struct{}{}
			}
			// A portal renders the target's content; its own children are
			// presentation-only and carry no references of their own.
		case models.NodeParagraph, models.NodeHeading, models.NodeBulletedList,
			models.NodeNumberedList, models.NodeListItem:
			walk(n.Children, seen)
		case models.NodeText, models.NodeRemoteFile:
		}
	}
}
