// Deterministic content fingerprints.
//
// Hashes are persisted in the remote index file, so they must be stable
// across processes and machines: the input is canonicalized to JSON (struct
// field order is fixed by the type definitions) before hashing with xxhash.

package refs

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/cespare/xxhash/v2"

	"conceptarium/internal/models"
)

// HashContent fingerprints a document content tree.
func HashContent(content []*models.Node) string {
	return hashJSON(content)
}

// HashElements fingerprints a drawing: its element list, size and attached
// file ids together, so any canvas mutation changes the hash.
func HashElements(elements []*models.Element, size models.Size, filesIDs []string) string {
	payload := struct {
		Elements []*models.Element `json:"elements"`
		Size     models.Size       `json:"size"`
		FilesIDs []string          `json:"filesIds"`
	}{elements, size, slices.Clone(filesIDs)}
	slices.Sort(payload.FilesIDs)
	return hashJSON(payload)
}

// HashNames fingerprints a set of entity names. Order-insensitive: the set
// is sorted before hashing.
func HashNames(names []string) string {
	sorted := slices.Clone(names)
	slices.Sort(sorted)
	return sum64([]byte(strings.Join(sorted, "\x00")))
}

func hashJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		// Domain types marshal without error; anything else is a bug.
		panic(fmt.Sprintf("refs: marshal for hashing: %v", err))
	}
	return sum64(data)
}

func sum64(data []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(data))
}
