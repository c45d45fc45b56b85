package emulation

import (
	"cmp"
	"slices"
	"sync"
)

type pendingAppend struct {
	payload []byte
	offset  int64
}

// appendBuffer holds appended payloads that have been accepted but not yet
// flushed, keyed by the target file's resolved absolute path. The offset is
// ordering metadata only: flush concatenates payloads in ascending offset
// order, it never seeks or pads. Callers are expected to have at most one
// logical writer per path between an append and its flush; the buffer's
// lock keeps the map consistent but does not order concurrent writers of
// the same path against each other.
type appendBuffer struct {
	mu      sync.Mutex
	pending map[string][]pendingAppend
}

func newAppendBuffer() *appendBuffer {
	return &appendBuffer{pending: map[string][]pendingAppend{}}
}

// add records a payload for the given path. The payload is copied, so the
// caller's buffer may be reused after add returns.
func (b *appendBuffer) add(path string, payload []byte, offset int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.pending[path] = append(b.pending[path], pendingAppend{
		payload: slices.Clone(payload),
		offset:  offset,
	})
}

// take removes and returns the pending appends for path, sorted by
// ascending offset. The sort is stable so equal offsets keep arrival order.
// A path with nothing pending yields nil.
func (b *appendBuffer) take(path string) []pendingAppend {
	b.mu.Lock()
	defer b.mu.Unlock()

	entries, ok := b.pending[path]
	if !ok {
		return nil
	}
	delete(b.pending, path)

	slices.SortStableFunc(entries, func(a, b pendingAppend) int {
		return cmp.Compare(a.offset, b.offset)
	})
	return entries
}

// pendingCount reports how many appends are buffered for path.
func (b *appendBuffer) pendingCount(path string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending[path])
}
