package netsim

import (
	"container/heap"

	"github.com/encodeous/dvr/core"
	"github.com/encodeous/dvr/state"
)

type costItem struct {
	id   state.NodeId
	cost state.Metric
	seq  uint64
}

type costQueue []costItem

func (q costQueue) Len() int           { return len(q) }
func (q costQueue) Less(i, j int) bool { return q[i].cost < q[j].cost || q[i].cost == q[j].cost && q[i].seq < q[j].seq }
func (q costQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }
func (q *costQueue) Push(x any)        { *q = append(*q, x.(costItem)) }
func (q *costQueue) Pop() any {
	old := *q
	x := old[len(old)-1]
	*q = old[:len(old)-1]
	return x
}

// ShortestCosts computes the cost from src to every reachable router over the links that are currently up.
// A converged network has exactly these costs in its distance vectors.
func (n *Network) ShortestCosts(src state.NodeId) map[state.NodeId]state.Metric {
	adj := make(map[state.NodeId][]*link)
	for _, l := range n.links {
		adj[l.a] = append(adj[l.a], l)
		adj[l.b] = append(adj[l.b], l)
	}

	dist := map[state.NodeId]state.Metric{src: 0}
	done := make(map[state.NodeId]bool)
	q := &costQueue{{id: src}}
	var seq uint64
	for q.Len() > 0 {
		u := heap.Pop(q).(costItem)
		if done[u.id] {
			continue
		}
		done[u.id] = true
		for _, l := range adj[u.id] {
			v := l.b
			if v == u.id {
				v = l.a
			}
			alt := core.AddMetric(dist[u.id], l.cost)
			if cur, ok := dist[v]; ok && alt >= cur {
				continue
			}
			dist[v] = alt
			seq++
			heap.Push(q, costItem{id: v, cost: alt, seq: seq})
		}
	}
	return dist
}

// Converged reports whether every router's vector holds exactly the shortest path costs.
func (n *Network) Converged() bool {
	for _, id := range n.order {
		want := n.ShortestCosts(id)
		got := n.routers[id].Advertisement()
		if len(want) != len(got) {
			return false
		}
		for dst, cost := range want {
			if got[dst] != cost {
				return false
			}
		}
	}
	return true
}
