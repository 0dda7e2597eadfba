package lanes

import (
	"sync"

	"github.com/dop251/goja"

	"github.com/joeycumines/golanes/copier"
)

// copyCachePool is the default copier.Allocator: a sync.Pool of copy-cache
// maps, reused across the inter-copy engine's top-level Copy calls instead
// of allocating a fresh map every time (spec.md §3's "pluggable memory
// source"). Go's map allocator is already thread-safe, so nothing here
// needs its own lock; WithProtectedAllocator(true) layers
// protectedCopyCachePool on top when a caller wants every Get/Put
// serialized anyway, matching spec.md §5's ProtectedAllocator.
type copyCachePool struct {
	pool sync.Pool
}

func newCopyCachePool() *copyCachePool {
	return &copyCachePool{
		pool: sync.Pool{
			New: func() any { return make(map[*goja.Object]goja.Value) },
		},
	}
}

func (p *copyCachePool) Get(n int) map[*goja.Object]goja.Value {
	m := p.pool.Get().(map[*goja.Object]goja.Value)
	if len(m) > 0 {
		clear(m)
	}
	return m
}

func (p *copyCachePool) Put(m map[*goja.Object]goja.Value) {
	p.pool.Put(m)
}

var _ copier.Allocator = (*copyCachePool)(nil)

// protectedCopyCachePool wraps an Allocator with a mutex, serializing every
// Get/Put through it (spec.md §5: "If the user-supplied allocator is not
// thread-safe... every alloc/free call from any state in the Universe goes
// through that mutex"). This is opt-in via WithProtectedAllocator since the
// underlying pool is already safe for concurrent use; it exists so the
// configuration surface spec.md §6 names has a real effect rather than
// being silently accepted and ignored.
type protectedCopyCachePool struct {
	mu   sync.Mutex
	next copier.Allocator
}

func newProtectedCopyCachePool(next copier.Allocator) *protectedCopyCachePool {
	return &protectedCopyCachePool{next: next}
}

func (p *protectedCopyCachePool) Get(n int) map[*goja.Object]goja.Value {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.next.Get(n)
}

func (p *protectedCopyCachePool) Put(m map[*goja.Object]goja.Value) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.next.Put(m)
}

var _ copier.Allocator = (*protectedCopyCachePool)(nil)
