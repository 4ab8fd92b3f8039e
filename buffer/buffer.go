// Package buffer implements the growable byte container used to assemble
// memory dumps and per-dive payloads without per-sample allocation once the
// backing array has grown to its working size.
package buffer

// Buffer is a growable byte container. The zero value is an empty, usable
// buffer.
type Buffer struct {
	data []byte
}

// New returns a Buffer pre-sized to hint bytes of capacity.
func New(hint int) *Buffer {
	return &Buffer{data: make([]byte, 0, hint)}
}

// Clear empties the buffer without releasing its backing array.
func (b *Buffer) Clear() {
	b.data = b.data[:0]
}

// Reserve grows the backing array so at least n more bytes can be appended
// without reallocating, without changing Size().
func (b *Buffer) Reserve(n int) {
	if cap(b.data)-len(b.data) >= n {
		return
	}
	grown := make([]byte, len(b.data), len(b.data)+n)
	copy(grown, b.data)
	b.data = grown
}

// Resize sets the logical size to n, zero-extending or truncating as
// needed.
func (b *Buffer) Resize(n int) {
	if n <= len(b.data) {
		b.data = b.data[:n]
		return
	}
	b.Reserve(n - len(b.data))
	grown := b.data[:n]
	for i := len(b.data); i < n; i++ {
		grown[i] = 0
	}
	b.data = grown
}

// Append adds p to the end of the buffer.
func (b *Buffer) Append(p []byte) {
	b.data = append(b.data, p...)
}

// Prepend inserts p at the start of the buffer.
func (b *Buffer) Prepend(p []byte) {
	grown := make([]byte, 0, len(p)+len(b.data))
	grown = append(grown, p...)
	grown = append(grown, b.data...)
	b.data = grown
}

// Data returns the buffer's current contents. The slice is only valid
// until the next mutating call.
func (b *Buffer) Data() []byte {
	return b.data
}

// Size returns the current logical length.
func (b *Buffer) Size() int {
	return len(b.data)
}
