package layout

import "sync"

// Buffer is the shared numeric buffer. Exactly one side holds its backing
// storage at a time: Detach hands the storage away and leaves the Buffer empty
// until Attach returns it.
type Buffer struct {
	data []float32
}

func NewBuffer(size int) *Buffer {
	if size < 0 {
		size = 0
	}
	return &Buffer{data: make([]float32, size)}
}

// Wrap adopts an existing slice as buffer storage.
func Wrap(data []float32) *Buffer {
	return &Buffer{data: data}
}

func (b *Buffer) Len() int { return len(b.data) }

// Data exposes the backing storage. It is nil while detached.
func (b *Buffer) Data() []float32 { return b.data }

// Detached reports whether the storage is currently owned elsewhere.
func (b *Buffer) Detached() bool { return b.data == nil }

// Detach moves the storage out of the buffer.
func (b *Buffer) Detach() []float32 {
	data := b.data
	b.data = nil
	return data
}

// Attach takes ownership of data.
func (b *Buffer) Attach(data []float32) {
	b.data = data
}

// CopyFrom overwrites the buffer contents with src, growing storage if needed.
func (b *Buffer) CopyFrom(src []float32) {
	if len(b.data) != len(src) {
		b.data = make([]float32, len(src))
	}
	copy(b.data, src)
}

// Clone returns a deep copy of the current contents.
func (b *Buffer) Clone() []float32 {
	if b.data == nil {
		return nil
	}
	c := make([]float32, len(b.data))
	copy(c, b.data)
	return c
}

// Slice returns the view of a slot, or nil if the slot does not fit.
func (b *Buffer) Slice(s Slot) []float32 {
	if s.Length == 0 || s.Offset < 0 || s.End() > len(b.data) {
		return nil
	}
	return b.data[s.Offset:s.End():s.End()]
}

// Pool recycles scratch copies of a fixed size for deep-copy transfers.
type Pool struct {
	pool sync.Pool
	size int
}

func NewPool(size int) *Pool {
	return &Pool{
		size: size,
		pool: sync.Pool{
			New: func() interface{} {
				return make([]float32, size)
			},
		},
	}
}

func (p *Pool) Get() []float32 {
	return p.pool.Get().([]float32)
}

func (p *Pool) Put(s []float32) {
	if len(s) == p.size {
		clear(s)
		p.pool.Put(s)
	}
}

// GetAndCopy returns a pooled slice holding a copy of src.
func (p *Pool) GetAndCopy(src []float32) []float32 {
	dst := p.Get()
	copy(dst, src)
	return dst
}
