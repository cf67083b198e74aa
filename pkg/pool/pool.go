// Package pool provides typed object pooling for posbridge. Raw record maps
// are the main pooled type: the extractor borrows a map per source record and
// the pipeline releases it once the enhanced copy has been produced.
package pool

import (
	"sync"
	"sync/atomic"
)

// Pool represents a generic object pool with type safety. It wraps sync.Pool
// with statistics tracking and automatic reset functionality. The pool is
// safe for concurrent use.
type Pool[T any] struct {
	pool  sync.Pool
	new   func() T
	reset func(T)
	stats struct {
		allocated int64
		inUse     int64
	}
}

// New creates a new typed pool with custom allocation and reset functions.
// The reset function, if non-nil, is called before an object is returned to
// the pool.
func New[T any](newFn func() T, reset func(T)) *Pool[T] {
	p := &Pool[T]{
		new:   newFn,
		reset: reset,
	}
	p.pool.New = func() interface{} {
		atomic.AddInt64(&p.stats.allocated, 1)
		return newFn()
	}
	return p
}

// Get retrieves an object from the pool, creating one if the pool is empty.
func (p *Pool[T]) Get() T {
	atomic.AddInt64(&p.stats.inUse, 1)
	return p.pool.Get().(T)
}

// Put returns an object to the pool for reuse.
func (p *Pool[T]) Put(obj T) {
	if p.reset != nil {
		p.reset(obj)
	}
	atomic.AddInt64(&p.stats.inUse, -1)
	p.pool.Put(obj)
}

// Stats returns allocation count and objects currently checked out.
func (p *Pool[T]) Stats() (allocated, inUse int64) {
	return atomic.LoadInt64(&p.stats.allocated), atomic.LoadInt64(&p.stats.inUse)
}

// RawRecordPool pools the transient map buffers the extractor decodes source
// records into. Maps are pre-sized for typical POS entity widths.
var RawRecordPool = New(
	func() map[string]interface{} {
		return make(map[string]interface{}, 16)
	},
	func(m map[string]interface{}) {
		for k := range m {
			delete(m, k)
		}
	},
)

// GetRawRecord borrows a cleared record map from the pool
func GetRawRecord() map[string]interface{} {
	return RawRecordPool.Get()
}

// PutRawRecord returns a record map to the pool. The caller must not retain
// references to the map or its values afterwards.
func PutRawRecord(m map[string]interface{}) {
	if m == nil {
		return
	}
	RawRecordPool.Put(m)
}
