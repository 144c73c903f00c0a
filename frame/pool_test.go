package frame_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"pipelined.dev/conveyor/frame"
)

func TestPool(t *testing.T) {
	defer frame.WipePools()
	p := frame.GetPool(4, 2)
	assert.Same(t, p, frame.GetPool(4, 2))
	assert.NotSame(t, p, frame.GetPool(2, 4))

	f := p.Get(7)
	assert.Equal(t, uint64(7), f.ID)
	assert.Len(t, f.Pix, 8)
	f.Pix[3] = 100
	f.Tags = map[string]string{"k": "v"}
	p.Put(f)

	// recycled frames are black
	g := p.Get(8)
	assert.Equal(t, uint64(8), g.ID)
	assert.Equal(t, make([]uint16, 8), g.Pix)
	assert.Nil(t, g.Tags)

	assert.NotPanics(t, func() {
		p.Put(nil)
		p.Put(frame.New(1, 3, 3))
	})

	frame.WipePools()
	assert.NotSame(t, p, frame.GetPool(4, 2))
}
