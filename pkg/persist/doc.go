// Package persist saves and restores catalog snapshots.
//
// A Store moves opaque bytes to and from a backend (memory, a directory, an
// S3 bucket). A Codec turns a snapshot into those bytes. A Snapshotter ties a
// catalog, a codec and a store together:
//
//	snap := &persist.Snapshotter{
//	    Catalog: cat,
//	    Store:   persist.NewFileStore("state"),
//	    Codec:   persist.YAML,
//	    Key:     "settings",
//	    Loop:    l,
//	}
//	if err := snap.Restore(ctx); err != nil && !errors.Is(err, persist.ErrNotFound) {
//	    return err
//	}
package persist
