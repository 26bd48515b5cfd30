package snapshot

import (
	"errors"
	"io/fs"
)

// Store keeps a single snapshot file that every Save overwrites.
type Store struct {
	Path string
}

func (s Store) Save(snap SnapshotV1) error {
	if snap.Header.Version == 0 {
		snap.Header.Version = Version
	}
	return WriteSnapshot(s.Path, snap)
}

// Load reports ok=false with a nil error when no snapshot exists yet.
// A present but unreadable file is an error; callers log it and start empty.
func (s Store) Load() (snap SnapshotV1, ok bool, err error) {
	snap, err = ReadSnapshot(s.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return SnapshotV1{}, false, nil
	}
	if err != nil {
		return SnapshotV1{}, false, err
	}
	return snap, true, nil
}
