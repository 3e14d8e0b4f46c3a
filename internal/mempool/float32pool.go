// Package mempool pools the large float32 buffers used for network input
// tensors so per-image and per-region preprocessing does not allocate.
package mempool

import "sync"

const classStep = 1024

var float32Pools sync.Map // size class -> *sync.Pool

// sizeClass rounds n up to the next multiple of 1024 (minimum 1024).
func sizeClass(n int) int {
	if n <= classStep {
		return classStep
	}
	return (n + classStep - 1) / classStep * classStep
}

func poolFor(cls int) *sync.Pool {
	if p, ok := float32Pools.Load(cls); ok {
		return p.(*sync.Pool)
	}
	p, _ := float32Pools.LoadOrStore(cls, &sync.Pool{New: func() any {
		buf := make([]float32, cls)
		return &buf
	}})
	return p.(*sync.Pool)
}

// GetFloat32 returns a buffer of length n. Contents are not zeroed.
// Return it with PutFloat32 when done.
func GetFloat32(n int) []float32 {
	if n <= 0 {
		return nil
	}
	cls := sizeClass(n)
	bp, _ := poolFor(cls).Get().(*[]float32)
	if bp == nil || cap(*bp) < cls {
		buf := make([]float32, cls)
		bp = &buf
	}
	return (*bp)[:n]
}

// GetFloat32Zeroed is GetFloat32 with the returned elements cleared.
func GetFloat32Zeroed(n int) []float32 {
	buf := GetFloat32(n)
	clear(buf)
	return buf
}

// PutFloat32 returns a buffer to its pool. It is safe to pass nil.
// Buffers with a capacity that is not a size class are dropped.
func PutFloat32(buf []float32) {
	if buf == nil {
		return
	}
	c := cap(buf)
	if c < classStep || c%classStep != 0 {
		return
	}
	full := buf[:c]
	poolFor(c).Put(&full)
}
