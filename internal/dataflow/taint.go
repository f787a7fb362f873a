package dataflow

import (
	"sort"
)

// TaintFlow is one proven source-to-sink flow.
type TaintFlow struct {
	Source *Node
	Sink   *Node
	Label  TaintLabel
}

// CheckTaint walks backward from every sink and reports each reachable
// source whose label matches a sink requirement and is not neutralized by
// a sanitizer edge on the path. The walk runs on forward edges reversed
// on the fly, so it works for both graph kinds.
func (g *Graph) CheckTaint() []TaintFlow {
	reverse := g.reverseEdges()

	sinks := make([]*Node, 0, len(g.Sinks))
	for _, s := range g.Sinks {
		sinks = append(sinks, s)
	}
	sort.Slice(sinks, func(i, j int) bool { return sinks[i].ID.String() < sinks[j].ID.String() })

	var flows []TaintFlow
	for _, sink := range sinks {
		for _, label := range sink.Requires {
			flows = append(flows, g.traceLabel(sink, label, reverse)...)
		}
	}
	return flows
}

type taintState struct {
	node NodeID
	// sanitized is set once the walk crossed a sanitizer for the label.
	sanitized bool
}

func (g *Graph) traceLabel(sink *Node, label TaintLabel, reverse map[NodeID][]NodeID) []TaintFlow {
	var flows []TaintFlow
	seen := map[taintState]bool{}
	queue := []taintState{{node: sink.ID}}
	seen[queue[0]] = true

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		if src, ok := g.Sources[cur.node]; ok && !cur.sanitized && src.Taint == label {
			flows = append(flows, TaintFlow{Source: src, Sink: sink, Label: label})
			continue
		}

		for _, parent := range reverse[cur.node] {
			// Parallel edges walk separately: a sanitizer on one edge
			// does not clean a plain edge between the same nodes.
			for _, kind := range g.ForwardEdges[parent][cur.node] {
				next := taintState{node: parent, sanitized: cur.sanitized}
				if kind.Kind == PathSanitize && (kind.Label == label || kind.Label == TaintNone) {
					next.sanitized = true
				}
				if !seen[next] {
					seen[next] = true
					queue = append(queue, next)
				}
			}
		}
	}

	sort.Slice(flows, func(i, j int) bool {
		return flows[i].Source.ID.String() < flows[j].Source.ID.String()
	})
	return flows
}

// reverseEdges builds a deterministic reversed adjacency list from the
// forward edges.
func (g *Graph) reverseEdges() map[NodeID][]NodeID {
	out := map[NodeID][]NodeID{}
	for from, tos := range g.ForwardEdges {
		for to := range tos {
			out[to] = append(out[to], from)
		}
	}
	for to := range out {
		parents := out[to]
		sort.Slice(parents, func(i, j int) bool { return parents[i].String() < parents[j].String() })
	}
	return out
}
