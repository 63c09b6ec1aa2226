// Package uuidschema provides the canonical reserved sub-schema that
// every UUID-named dynamic field segment resolves through (spec.md
// §4.3.1 step 5, §4.4): "swap in the canonical UUID sub-schema and mark
// uuid_path".
package uuidschema

import (
	"crypto/sha1"

	"github.com/google/uuid"
)

// ReservedSegment is the literal key under which the canonical UUID
// sub-schema lives in the properties tree, standing in for any concrete
// UUID segment so that "550e8400-..." and "6ba7b810-..." share one
// schema entry instead of each minting their own.
const ReservedSegment = "_uuid"

// Prefix computes the deterministic term prefix for a UUID-named
// dynamic field segment (spec.md §4.4's uuid_prefix(segment)). Unlike a
// plain field prefix (an incrementing counter assigned at schema-write
// time), a UUID segment's prefix must be derivable from the segment
// alone, since no two documents are expected to share the same UUID
// field name — so it is a fixed-width digest of the UUID's binary form
// rather than a tree-position counter.
func Prefix(segment string) ([]byte, error) {
	id, err := uuid.Parse(segment)
	if err != nil {
		return nil, err
	}
	sum := sha1.Sum(id[:])
	return sum[:4], nil
}
