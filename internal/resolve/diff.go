// Human-readable diffs of conflicting versions, for the resolution UI.

package resolve

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"conceptarium/internal/models"
)

// documentDiff renders a plain-text diff of the two document versions.
// Either side may be nil (deletion conflicts).
func documentDiff(left, right *models.Document) string {
	dmp := diffmatchpatch.New()
	l := renderDocument(left)
	r := renderDocument(right)
	diffs := dmp.DiffMain(l, r, false)
	diffs = dmp.DiffCleanupSemantic(diffs)
	var b strings.Builder
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			fmt.Fprintf(&b, "{+%s+}", d.Text)
		case diffmatchpatch.DiffDelete:
			fmt.Fprintf(&b, "[-%s-]", d.Text)
		case diffmatchpatch.DiffEqual:
			b.WriteString(d.Text)
		}
	}
	return b.String()
}

// renderDocument flattens a document to display text, one block per line.
func renderDocument(d *models.Document) string {
	if d == nil {
		return "(deleted)\n"
	}
	var b strings.Builder
	renderNodes(&b, d.Content)
	return b.String()
}

func renderNodes(b *strings.Builder, nodes []*models.Node) {
	for _, n := range nodes {
		switch n.Kind {
		case models.NodeText:
			b.WriteString(n.Text)
		case models.NodeReference:
			fmt.Fprintf(b, "[[%s]]", n.Ref)
		case models.NodeDrawing:
			fmt.Fprintf(b, "{drawing:%s}", n.Ref)
		case models.NodePortal:
			fmt.Fprintf(b, "{portal:%s}", n.Ref)
		case models.NodeRemoteFile:
			fmt.Fprintf(b, "{file:%s}", n.FileID)
		case models.NodeParagraph, models.NodeHeading, models.NodeBulletedList,
			models.NodeNumberedList, models.NodeListItem:
			renderNodes(b, n.Children)
			b.WriteString("\n")
		}
	}
}

// drawingDiff summarizes the divergence of two drawing versions; canvas
// element lists are not merged, so a coarse summary is enough for the
// pick-a-side decision.
func drawingDiff(left, right *models.Drawing) string {
	return fmt.Sprintf("local: %s\nremote: %s\n", describeDrawing(left), describeDrawing(right))
}

func describeDrawing(d *models.Drawing) string {
	if d == nil {
		return "(deleted)"
	}
	return fmt.Sprintf("%d elements, %dx%d, %d files, updated %s",
		len(d.Elements), d.Size.Width, d.Size.Height, len(d.FilesIDs),
		d.LastUpdatedDate.Format("2006-01-02 15:04:05"))
}
