package frame

import "sync"

// Pool recycles frames of the same size.
type Pool struct {
	width, height int
	p             sync.Pool
}

type size struct {
	width, height int
}

var pools = struct {
	sync.Mutex
	m map[size]*Pool
}{
	m: map[size]*Pool{},
}

// GetPool returns pool for provided frame size. Pools are cached
// internally, so multiple calls for same size will return the same pool
// instance.
func GetPool(width, height int) *Pool {
	pools.Lock()
	defer pools.Unlock()
	k := size{width, height}
	if p, ok := pools.m[k]; ok {
		return p
	}
	p := &Pool{width: width, height: height}
	p.p.New = func() any {
		return New(0, width, height)
	}
	pools.m[k] = p
	return p
}

// WipePools cleans up internal cache of pools.
func WipePools() {
	pools.Lock()
	defer pools.Unlock()
	pools.m = map[size]*Pool{}
}

// Get returns a black frame with provided id.
func (p *Pool) Get(id uint64) *Frame {
	f := p.p.Get().(*Frame)
	f.ID = id
	clear(f.Pix)
	return f
}

// Put returns the frame to the pool. Frames of other size are ignored.
func (p *Pool) Put(f *Frame) {
	if f == nil || f.Width != p.width || f.Height != p.height || len(f.Pix) != f.Size() {
		return
	}
	f.Tags = nil
	p.p.Put(f)
}
