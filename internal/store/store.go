// Package store provides an optional second-level cache for transcoded
// image variants. A variant is keyed by block id plus the parameters that
// shaped its bytes; a hit skips both the upstream fetch and the encoder.
// The GCS implementation is the production backend; the disk and memory
// implementations serve single-instance deployments and tests.
package store

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotExist is returned by Get when no variant is stored under the key.
var ErrNotExist = errors.New("store: variant does not exist")

// Key identifies one transcoded variant of a block's asset. Requests with
// the same key are expected to produce byte-identical output given a stable
// upstream source, which is what makes the variant safe to persist.
type Key struct {
	BlockID string
	Format  string
	Width   int
	Quality int
}

// ObjectName returns the storage path for the key.
func (k Key) ObjectName() string {
	return fmt.Sprintf("variants/%s/w%d_q%d.%s", k.BlockID, k.Width, k.Quality, k.Format)
}

// Object is a stored variant.
type Object struct {
	Body        []byte
	ContentType string
}

// Store persists and retrieves transcoded variants. Implementations must be
// safe for concurrent use. Store failures are advisory: the gateway treats
// a failed Get as a miss and a failed Put as a logged warning.
type Store interface {
	Get(ctx context.Context, key Key) (*Object, error)
	Put(ctx context.Context, key Key, obj *Object) error
}
