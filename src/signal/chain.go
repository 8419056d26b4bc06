package signal

import "fmt"

// Graph exposes the edges Chain sorts over. Modulation inputs are modulator
// modules feeding a node's parameters.
type Graph[K comparable] interface {
	ModulationInputs(node K) []K
	SignalInputs(node K) []K
}

// Chain keeps the set of sinks and computes render order.
type Chain[K comparable] struct {
	sinks []K
}

// AddSink reports false when node already is a sink.
func (c *Chain[K]) AddSink(node K) bool {
	for _, s := range c.sinks {
		if s == node {
			return false
		}
	}
	c.sinks = append(c.sinks, node)
	return true
}

func (c *Chain[K]) RemoveSink(node K) bool {
	for i, s := range c.sinks {
		if s == node {
			c.sinks = append(c.sinks[:i], c.sinks[i+1:]...)
			return true
		}
	}
	return false
}

func (c *Chain[K]) IsSink(node K) bool {
	for _, s := range c.sinks {
		if s == node {
			return true
		}
	}
	return false
}

func (c *Chain[K]) Sinks() []K {
	return append([]K(nil), c.sinks...)
}

// Order is a post-order walk from the sinks that visits modulation inputs
// before signal inputs. Every node appears once, after all of its inputs.
func (c *Chain[K]) Order(g Graph[K]) ([]K, error) {
	return TopologicalOrder(c.sinks, g)
}

type visitState uint8

const (
	unvisited visitState = iota
	visiting
	done
)

// TopologicalOrder sorts the nodes reachable from roots.
func TopologicalOrder[K comparable](roots []K, g Graph[K]) ([]K, error) {
	state := make(map[K]visitState)
	var order []K
	var visit func(n K) error
	visit = func(n K) error {
		switch state[n] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("%w at %v", ErrCycle, n)
		}
		state[n] = visiting
		for _, m := range g.ModulationInputs(n) {
			if m == n {
				continue
			}
			if err := visit(m); err != nil {
				return err
			}
		}
		for _, m := range g.SignalInputs(n) {
			if m == n {
				return fmt.Errorf("%w: %v", ErrSelfInput, n)
			}
			if err := visit(m); err != nil {
				return err
			}
		}
		state[n] = done
		order = append(order, n)
		return nil
	}
	for _, r := range roots {
		if err := visit(r); err != nil {
			return nil, err
		}
	}
	return order, nil
}
