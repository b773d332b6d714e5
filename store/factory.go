package store

import "fmt"

// Backend selects which on-disk engine Open uses.
type Backend string

const (
	BackendLevelDB Backend = "leveldb"
	BackendBadger  Backend = "badger"
)

// Open opens dir with the requested backend. Both backends implement
// the identical BlockStore surface, so callers never branch on which
// one is active past this point.
func Open(backend Backend, dir string) (BlockStore, error) {
	switch backend {
	case BackendLevelDB, "":
		return OpenLevelDB(dir)
	case BackendBadger:
		return OpenBadger(dir)
	default:
		return nil, fmt.Errorf("store: unknown backend %q", backend)
	}
}
