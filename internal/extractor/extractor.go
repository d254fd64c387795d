// Package extractor turns raw cover images into descriptor sets. The
// matching engine treats extraction as a black box behind the Extractor
// interface; this package supplies an in-process implementation and an
// adapter for an out-of-process extraction service.
package extractor

import (
	"context"

	"github.com/example/bookcover/internal/descriptor"
)

// Extractor produces the descriptor set for one image. An empty set is a
// valid result (no features found), not an error; errors are reserved for
// unreadable input or transport failures.
type Extractor interface {
	Extract(ctx context.Context, image []byte) (descriptor.Set, error)
}
