package hibiki

import (
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// AddNode constructs a node handle from the given options, registers
// it under its name and begins connecting asynchronously. Re-adding a
// name disconnects and replaces the prior handle.
func (m *Manager) AddNode(opts NodeOptions) (*Node, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	node := newNode(m, opts)

	m.mu.Lock()
	if prev, ok := m.nodes[opts.Name]; ok {
		prev.Disconnect()
		// Keep the original slot so the insertion-order tie-break
		// stays stable across replacement.
	} else {
		m.nodeOrder = append(m.nodeOrder, opts.Name)
	}
	m.nodes[opts.Name] = node
	m.mu.Unlock()

	node.Connect()
	return node, nil
}

// RemoveNode disconnects and removes a node by name. Removing an
// unregistered name is a no-op.
func (m *Manager) RemoveNode(name string) {
	m.mu.Lock()
	node, ok := m.nodes[name]
	if ok {
		delete(m.nodes, name)
		for i, n := range m.nodeOrder {
			if n == name {
				m.nodeOrder = append(m.nodeOrder[:i], m.nodeOrder[i+1:]...)
				break
			}
		}
	}
	m.mu.Unlock()

	if ok {
		node.Disconnect()
	}
}

// GetNode returns a node by name, or the best available node for
// identifier "auto". A named node that is found disconnected gets a
// reconnect kicked off before it is returned.
func (m *Manager) GetNode(identifier string) (*Node, error) {
	m.mu.RLock()
	empty := len(m.nodes) == 0
	node := m.nodes[identifier]
	m.mu.RUnlock()

	if empty {
		return nil, ErrNodeRegistryEmpty
	}

	if identifier == "" || identifier == "auto" {
		best := m.LeastUsedNodes()
		if len(best) == 0 {
			return nil, ErrNoNodesAvailable
		}
		return best[0], nil
	}

	if node == nil {
		return nil, errors.Wrap(ErrNodeNotFound, identifier)
	}
	if !node.Connected() {
		node.Connect()
	}
	return node, nil
}

// Nodes returns all registered nodes in insertion order
func (m *Manager) Nodes() []*Node {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.orderedNodesLocked()
}

func (m *Manager) orderedNodesLocked() []*Node {
	nodes := make([]*Node, 0, len(m.nodeOrder))
	for _, name := range m.nodeOrder {
		if node, ok := m.nodes[name]; ok {
			nodes = append(nodes, node)
		}
	}
	return nodes
}

// LeastUsedNodes returns the connected nodes sorted ascending by
// penalty score. Nodes with equal scores keep their insertion order.
func (m *Manager) LeastUsedNodes() []*Node {
	m.mu.RLock()
	ordered := m.orderedNodesLocked()
	m.mu.RUnlock()

	connected := make([]*Node, 0, len(ordered))
	for _, node := range ordered {
		if node.Connected() {
			connected = append(connected, node)
		}
	}
	sort.SliceStable(connected, func(i, j int) bool {
		return connected[i].Penalty() < connected[j].Penalty()
	})
	return connected
}

// NodesByRegion returns the connected nodes serving the given voice
// region (matched case-insensitively), sorted ascending by per-core
// CPU load. Empty when no node serves the region.
func (m *Manager) NodesByRegion(region string) []*Node {
	m.mu.RLock()
	ordered := m.orderedNodesLocked()
	m.mu.RUnlock()

	matched := make([]*Node, 0, len(ordered))
	for _, node := range ordered {
		if !node.Connected() {
			continue
		}
		for _, r := range node.Regions() {
			if strings.EqualFold(r, region) {
				matched = append(matched, node)
				break
			}
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CPULoadPercent() < matched[j].CPULoadPercent()
	})
	return matched
}
