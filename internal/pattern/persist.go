package pattern

import "fmt"

// Backend names accepted by OpenPersister.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendBadger = "badger"
)

// OpenPersister opens the named backend at path. The memory backend returns a
// nil Persister, which keeps the store purely in memory.
func OpenPersister(backend, path string) (Persister, error) {
	switch backend {
	case BackendMemory, "":
		return nil, nil
	case BackendFile:
		return NewFilePersister(path), nil
	case BackendSQLite:
		p, err := NewSQLitePersister(path)
		if err != nil {
			return nil, err
		}
		return p, nil
	case BackendBadger:
		p, err := NewBadgerPersister(path)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown pattern backend %q", backend)
	}
}
