//go:build !unix

package store

import "sync"

// Without flock, writers are only serialized within this process.
var (
	locksMu sync.Mutex
	locks   = map[string]*sync.Mutex{}
)

func lockFile(path string) (func(), error) {
	locksMu.Lock()
	mu, ok := locks[path]
	if !ok {
		mu = &sync.Mutex{}
		locks[path] = mu
	}
	locksMu.Unlock()

	mu.Lock()
	return mu.Unlock, nil
}
