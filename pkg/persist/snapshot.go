package persist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vango-dev/cellkit/pkg/catalog"
	"github.com/vango-dev/cellkit/pkg/loop"
)

// CurrentVersion is the current version of the snapshot format.
// Increment when making breaking changes to the format.
const CurrentVersion = 1

// Document is the serialized form of a catalog snapshot.
type Document struct {
	// Version is the snapshot format version.
	Version int `json:"version" yaml:"version"`

	// SavedAt is when the snapshot was taken.
	SavedAt time.Time `json:"saved_at" yaml:"saved_at"`

	// Cells holds the values of the non-transient catalog entries.
	Cells map[string]any `json:"cells" yaml:"cells"`
}

// Snapshotter saves a catalog to a store and restores it.
type Snapshotter struct {
	Catalog *catalog.Catalog
	Store   Store
	Key     string

	// Codec defaults to JSON.
	Codec Codec

	// Loop, when set, is where the catalog is read and written. Leave it
	// nil only when calling from the goroutine that owns the cells.
	Loop *loop.Loop
}

// Save takes a snapshot and writes it to the store.
func (s *Snapshotter) Save(ctx context.Context) error {
	var cells map[string]any
	if err := s.onLoop(ctx, func() { cells = s.Catalog.Snapshot() }); err != nil {
		return fmt.Errorf("persist: snapshot %s: %w", s.Key, err)
	}

	data, err := s.codec().Marshal(Document{
		Version: CurrentVersion,
		SavedAt: time.Now().UTC(),
		Cells:   cells,
	})
	if err != nil {
		return fmt.Errorf("persist: encode %s: %w", s.Key, err)
	}
	return s.Store.Save(ctx, s.Key, data)
}

// Restore loads the snapshot and applies it to the catalog. It returns
// ErrNotFound, unwrapped, when nothing was saved yet.
func (s *Snapshotter) Restore(ctx context.Context) error {
	data, err := s.Store.Load(ctx, s.Key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return err
	}

	var doc Document
	if err := s.codec().Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("persist: decode %s: %w", s.Key, err)
	}
	if doc.Version > CurrentVersion {
		return fmt.Errorf("persist: %s has format version %d, newer than %d", s.Key, doc.Version, CurrentVersion)
	}

	var restoreErr error
	if err := s.onLoop(ctx, func() { restoreErr = s.Catalog.Restore(doc.Cells) }); err != nil {
		return fmt.Errorf("persist: restore %s: %w", s.Key, err)
	}
	return restoreErr
}

func (s *Snapshotter) codec() Codec {
	if s.Codec == nil {
		return JSON
	}
	return s.Codec
}

func (s *Snapshotter) onLoop(ctx context.Context, fn func()) error {
	if s.Loop == nil {
		fn()
		return nil
	}
	return s.Loop.Await(ctx, fn)
}
