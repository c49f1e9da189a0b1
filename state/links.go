package state

import "slices"

// LinkTable maps ports to links and remembers the order in which ports were first added.
// Enumeration order decides ties between equal cost paths.
type LinkTable struct {
	order []Port
	links map[Port]Link
}

// Add registers the link on port, replacing any previous link there. A replaced port keeps its position.
func (t *LinkTable) Add(port Port, neigh NodeId, cost Metric) {
	if t.links == nil {
		t.links = make(map[Port]Link)
	}
	if _, ok := t.links[port]; !ok {
		t.order = append(t.order, port)
	}
	t.links[port] = Link{
		Port:      port,
		Neighbour: neigh,
		Cost:      cost,
	}
}

// Remove deletes the link on port. Unknown ports are ignored.
func (t *LinkTable) Remove(port Port) (Link, bool) {
	link, ok := t.links[port]
	if !ok {
		return Link{}, false
	}
	delete(t.links, port)
	t.order = slices.DeleteFunc(t.order, func(p Port) bool {
		return p == port
	})
	return link, true
}

func (t *LinkTable) Get(port Port) (Link, bool) {
	link, ok := t.links[port]
	return link, ok
}

// Links returns a snapshot of every link in enumeration order.
func (t *LinkTable) Links() []Link {
	out := make([]Link, 0, len(t.order))
	for _, port := range t.order {
		out = append(out, t.links[port])
	}
	return out
}

func (t *LinkTable) Len() int {
	return len(t.order)
}

// HasNeighbour reports whether any port leads to neigh.
func (t *LinkTable) HasNeighbour(neigh NodeId) bool {
	for _, link := range t.links {
		if link.Neighbour == neigh {
			return true
		}
	}
	return false
}
