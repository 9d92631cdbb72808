package graph

import (
	"sync"
)

// Graph tracks dependency relationships between nodes identified by K.
// Nodes keep their insertion order so every traversal is deterministic.
type Graph[K comparable] struct {
	mu    sync.RWMutex
	nodes map[K]*Node[K]
	order []K
}

// Node is a vertex in the graph.
type Node[K comparable] struct {
	Key K

	// Dependencies are the nodes this node depends on.
	Dependencies []K

	// Dependents are the nodes that depend on this node.
	Dependents []K

	// declared is false for nodes only referenced as a dependency.
	declared bool
}

// New creates an empty graph.
func New[K comparable]() *Graph[K] {
	return &Graph[K]{
		nodes: make(map[K]*Node[K]),
	}
}

// Add declares key with its direct dependencies. Adding a key again
// replaces its dependencies.
func (g *Graph[K]) Add(key K, deps ...K) {
	g.mu.Lock()
	defer g.mu.Unlock()

	node := g.node(key)
	if node.declared {
		for _, old := range node.Dependencies {
			if dep, ok := g.nodes[old]; ok {
				dep.Dependents = remove(dep.Dependents, key)
			}
		}
	}

	node.declared = true
	node.Dependencies = make([]K, 0, len(deps))
	for _, d := range deps {
		node.Dependencies = append(node.Dependencies, d)
		if d == key {
			// A self edge is visible to FindCycle but never blocks ordering.
			continue
		}
		dep := g.node(d)
		dep.Dependents = append(dep.Dependents, key)
	}
}

func (g *Graph[K]) node(key K) *Node[K] {
	n, ok := g.nodes[key]
	if !ok {
		n = &Node[K]{Key: key}
		g.nodes[key] = n
		g.order = append(g.order, key)
	}
	return n
}

// HasNode reports whether key was declared with Add.
func (g *Graph[K]) HasNode(key K) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	n, ok := g.nodes[key]
	return ok && n.declared
}

// Size returns the number of declared nodes.
func (g *Graph[K]) Size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	size := 0
	for _, n := range g.nodes {
		if n.declared {
			size++
		}
	}
	return size
}

// Dependencies returns the direct dependencies of key.
func (g *Graph[K]) Dependencies(key K) []K {
	g.mu.RLock()
	defer g.mu.RUnlock()

	n, ok := g.nodes[key]
	if !ok {
		return nil
	}
	return append([]K(nil), n.Dependencies...)
}

// TopologicalSort returns the declared nodes with dependencies first.
//
// Nodes that take part in a cycle cannot be ordered; they are returned
// separately in insertion order so callers can still visit them.
func (g *Graph[K]) TopologicalSort() (sorted []K, cyclic []K) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	// Kahn's algorithm over in-degree = number of unresolved dependencies.
	inDegrees := make(map[K]int, len(g.nodes))
	for _, key := range g.order {
		n := g.nodes[key]
		for _, d := range n.Dependencies {
			if d != key {
				inDegrees[key]++
			}
		}
	}

	queue := make([]K, 0, len(g.order))
	for _, key := range g.order {
		if inDegrees[key] == 0 {
			queue = append(queue, key)
		}
	}

	done := make(map[K]bool, len(g.nodes))
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		done[current] = true
		if g.nodes[current].declared {
			sorted = append(sorted, current)
		}

		for _, dependent := range g.nodes[current].Dependents {
			inDegrees[dependent]--
			if inDegrees[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	for _, key := range g.order {
		if !done[key] && g.nodes[key].declared {
			cyclic = append(cyclic, key)
		}
	}

	return sorted, cyclic
}

// FindCycle returns a path that starts and ends at the same node, or nil
// if the graph is acyclic.
func (g *Graph[K]) FindCycle() []K {
	g.mu.RLock()
	defer g.mu.RUnlock()

	const (
		unvisited = iota
		visiting
		visited
	)

	state := make(map[K]int, len(g.nodes))
	var stack []K

	var visit func(key K) []K
	visit = func(key K) []K {
		state[key] = visiting
		stack = append(stack, key)

		for _, dep := range g.nodes[key].Dependencies {
			switch state[dep] {
			case visiting:
				for i, k := range stack {
					if k == dep {
						cycle := append([]K(nil), stack[i:]...)
						return append(cycle, dep)
					}
				}
			case unvisited:
				if cycle := visit(dep); cycle != nil {
					return cycle
				}
			}
		}

		stack = stack[:len(stack)-1]
		state[key] = visited
		return nil
	}

	for _, key := range g.order {
		if state[key] == unvisited {
			if cycle := visit(key); cycle != nil {
				return cycle
			}
		}
	}

	return nil
}

func remove[K comparable](list []K, key K) []K {
	out := list[:0]
	for _, k := range list {
		if k != key {
			out = append(out, k)
		}
	}
	return out
}
