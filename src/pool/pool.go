// Package pool is a fixed-capacity slab for objects that are created once and
// then only switched between active and free, such as synthesizer voices.
package pool

import (
	"errors"
	"fmt"
)

// MaxCapacity bounds every Pool.
const MaxCapacity = 256

var ErrCapacity = errors.New("pool capacity out of range")

// Handle refers to an allocated slot. A Handle outlives the allocation it was
// issued for but stops resolving once the slot is released. The zero Handle
// never resolves.
type Handle uint32

func makeHandle(index int, gen uint16) Handle {
	return Handle(uint32(gen)<<16 | uint32(index))
}

func (h Handle) index() int { return int(h & 0xffff) }
func (h Handle) gen() uint16 { return uint16(h >> 16) }
func (h Handle) Valid() bool { return h != 0 }

func (h Handle) String() string {
	return fmt.Sprintf("%d@%d", h.index(), h.gen())
}

// Pool stores up to Cap() values of T. Allocate and Release are O(1) and
// never allocate memory.
type Pool[T any] struct {
	items     []T
	gens      []uint16
	free      []uint16
	active    []uint16
	activePos []int16
}

// New builds a pool and runs init once for every slot.
func New[T any](capacity int, init func(i int, item *T)) (*Pool[T], error) {
	if capacity <= 0 || capacity > MaxCapacity {
		return nil, fmt.Errorf("%w: %d", ErrCapacity, capacity)
	}
	p := &Pool[T]{
		items:     make([]T, capacity),
		gens:      make([]uint16, capacity),
		free:      make([]uint16, capacity),
		active:    make([]uint16, 0, capacity),
		activePos: make([]int16, capacity),
	}
	for i := range p.items {
		if init != nil {
			init(i, &p.items[i])
		}
		p.gens[i] = 1
		p.free[i] = uint16(capacity - 1 - i)
		p.activePos[i] = -1
	}
	return p, nil
}

func (p *Pool[T]) Cap() int { return len(p.items) }

// Len is the number of active slots.
func (p *Pool[T]) Len() int { return len(p.active) }

// Allocate activates a free slot. It returns the zero Handle and nil when the
// pool is full.
func (p *Pool[T]) Allocate() (Handle, *T) {
	n := len(p.free)
	if n == 0 {
		return 0, nil
	}
	i := p.free[n-1]
	p.free = p.free[:n-1]
	p.activePos[i] = int16(len(p.active))
	p.active = append(p.active, i)
	return makeHandle(int(i), p.gens[i]), &p.items[i]
}

// Get resolves h, or returns nil for a released or foreign handle.
func (p *Pool[T]) Get(h Handle) *T {
	i := h.index()
	if !h.Valid() || i >= len(p.items) || p.gens[i] != h.gen() || p.activePos[i] < 0 {
		return nil
	}
	return &p.items[i]
}

// Release frees the slot of h. Stale handles are ignored.
func (p *Pool[T]) Release(h Handle) bool {
	if p.Get(h) == nil {
		return false
	}
	i := h.index()
	pos := p.activePos[i]
	last := p.active[len(p.active)-1]
	p.active[pos] = last
	p.activePos[last] = pos
	p.active = p.active[:len(p.active)-1]
	p.activePos[i] = -1
	p.gens[i]++
	if p.gens[i] == 0 {
		p.gens[i] = 1
	}
	p.free = append(p.free, uint16(i))
	return true
}

// ForEachActive visits active slots only. fn may release the slot it is
// given.
func (p *Pool[T]) ForEachActive(fn func(h Handle, item *T)) {
	for k := len(p.active) - 1; k >= 0; k-- {
		if k >= len(p.active) {
			continue
		}
		i := p.active[k]
		fn(makeHandle(int(i), p.gens[i]), &p.items[i])
	}
}

// ForEach visits every slot, active or not.
func (p *Pool[T]) ForEach(fn func(item *T)) {
	for i := range p.items {
		fn(&p.items[i])
	}
}
