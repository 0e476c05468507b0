package undo

// DefaultCapacity is the number of snapshots kept when no capacity is given.
const DefaultCapacity = 50

// Buffer is a bounded linear undo history with a cursor. Pushing while the
// cursor is not at the end discards the redo tail, and pushing past the
// capacity drops the oldest snapshots first.
//
// The zero cursor convention: the cursor points at the currently applied
// snapshot, or -1 when the buffer is empty.
type Buffer[T any] struct {
	entries  []T
	index    int
	capacity int
}

// NewBuffer creates a new buffer with the given capacity. A non-positive
// capacity falls back to DefaultCapacity.
func NewBuffer[T any](capacity int) *Buffer[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer[T]{index: -1, capacity: capacity}
}

// Push appends a snapshot after the cursor and advances it. When initial is
// true the push is a no-op if the buffer already holds history, so the
// "before" state is only captured once per session.
func (b *Buffer[T]) Push(snapshot T, initial bool) {
	if initial && len(b.entries) > 0 {
		return
	}

	b.entries = append(b.entries[:b.index+1], snapshot)
	b.index++

	if drop := len(b.entries) - b.capacity; drop > 0 {
		b.entries = append([]T(nil), b.entries[drop:]...)
		b.index -= drop
	}
}

// Undo moves the cursor one snapshot back and returns it. It is a no-op at
// the start of the history.
func (b *Buffer[T]) Undo() (T, bool) {
	var zero T
	if b.index <= 0 {
		return zero, false
	}
	b.index--
	return b.entries[b.index], true
}

// Redo moves the cursor one snapshot forward and returns it. It is a no-op
// at the end of the history.
func (b *Buffer[T]) Redo() (T, bool) {
	var zero T
	if b.index >= len(b.entries)-1 {
		return zero, false
	}
	b.index++
	return b.entries[b.index], true
}

// Current returns the snapshot under the cursor.
func (b *Buffer[T]) Current() (T, bool) {
	var zero T
	if b.index < 0 {
		return zero, false
	}
	return b.entries[b.index], true
}

// Reset clears the buffer. It must be called when the tracked object changes
// structurally, old snapshots may reference identities that no longer exist.
func (b *Buffer[T]) Reset() {
	b.entries = nil
	b.index = -1
}

// Len returns the number of stored snapshots.
func (b *Buffer[T]) Len() int { return len(b.entries) }

// Index returns the cursor position, -1 when the buffer is empty.
func (b *Buffer[T]) Index() int { return b.index }
