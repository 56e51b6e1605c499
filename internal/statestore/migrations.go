package statestore

import (
	"encoding/binary"
	"errors"

	"github.com/syndtr/goleveldb/leveldb"

	"github.com/meridian-chain/meridian-node/internal/merrors"
)

// migration applies an in-place upgrade from one schema version to the next.
type migration struct {
	fromVersion uint32
	apply       func(*Store) error
}

// migrations lists every upgrade step in order. A fresh database starts at
// version 0 and applies every migration in sequence up to currentSchemaVersion.
var migrations = []migration{
	{fromVersion: 0, apply: func(s *Store) error { return nil }}, // version 0 -> 1: initial schema, no-op
}

// migrate reads the stored schema version and applies any pending migrations,
// per spec.md §4.1: "on open: read schema version; if older than current,
// apply ordered migrations."
func (s *Store) migrate() error {
	version, err := s.readSchemaVersion()
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if version != m.fromVersion {
			continue
		}
		if err := m.apply(s); err != nil {
			return merrors.Wrap(merrors.Storage, "apply schema migration", err)
		}
		version = m.fromVersion + 1
		if err := s.writeSchemaVersion(version); err != nil {
			return err
		}
	}

	if version != currentSchemaVersion {
		return merrors.New(merrors.Storage, "schema version after migration does not match current")
	}
	return nil
}

func (s *Store) readSchemaVersion() (uint32, error) {
	v, err := s.db.Get(metadataKey(metadataVersionKey), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, merrors.Wrap(merrors.Storage, "read schema version", err)
	}
	if len(v) != 4 {
		return 0, merrors.New(merrors.Storage, "corrupt schema version value")
	}
	return binary.BigEndian.Uint32(v), nil
}

func (s *Store) writeSchemaVersion(version uint32) error {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, version)
	if err := s.db.Put(metadataKey(metadataVersionKey), buf, nil); err != nil {
		return merrors.Wrap(merrors.Storage, "write schema version", err)
	}
	return nil
}
