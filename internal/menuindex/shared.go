package menuindex

import (
	"sync"

	"github.com/54b3r/waiterbot-go/internal/rag"
)

var (
	sharedMu  sync.Mutex
	sharedIdx *Memory
)

// Shared returns the process-wide memory index, creating it on first use
// with e. Later calls return the same index and ignore e until ResetShared.
func Shared(e rag.Embedder) (*Memory, error) {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	if sharedIdx == nil {
		idx, err := NewMemory(e)
		if err != nil {
			return nil, err
		}
		sharedIdx = idx
	}
	return sharedIdx, nil
}

// ResetShared discards the process-wide index. The next Shared call builds
// a fresh, empty one.
func ResetShared() {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	sharedIdx = nil
}
