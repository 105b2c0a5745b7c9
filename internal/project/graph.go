package project

// HookPoint names a lifecycle moment of a node. Hooks are parsed and kept
// with the node but the engine does not fire them yet.
type HookPoint string

const (
	HookOnEnter HookPoint = "on_enter"
	HookOnLeave HookPoint = "on_leave"
	HookOnStart HookPoint = "on_start"
	HookOnEnd   HookPoint = "on_end"
	HookOnLoop  HookPoint = "on_loop"
)

// Hook binds a script to a lifecycle point.
type Hook struct {
	On     HookPoint `yaml:"on"`
	Script string    `yaml:"script"`
}

// TransitionTiming says when an edge may be taken. Only TimingImmediate is
// honoured; the other values are parsed and kept for forward compatibility.
type TransitionTiming string

const (
	TimingImmediate      TransitionTiming = "immediate"
	TimingNextBeat       TransitionTiming = "next_beat"
	TimingNextBar        TransitionTiming = "next_bar"
	TimingFinishSequence TransitionTiming = "finish_sequence"
)

// Node is one state of a track's graph: an id and the sequence played
// while the track sits in it.
type Node struct {
	ID       string   `yaml:"id"`
	Sequence Sequence `yaml:"sequence"`
	Hooks    []Hook   `yaml:"hooks,omitempty"`
}

// Edge connects two nodes by id. Condition is an unevaluated guard
// expression reserved for future use.
type Edge struct {
	From      string           `yaml:"from"`
	To        string           `yaml:"to"`
	Condition string           `yaml:"condition,omitempty"`
	Timing    TransitionTiming `yaml:"timing,omitempty"`
	InletHook string           `yaml:"inlet_hook,omitempty"`
}

// StateGraph is the finite-state description driving sequence succession
// on one track. Edges are matched by linear scan; graphs stay small.
type StateGraph struct {
	Nodes []Node `yaml:"nodes"`
	Edges []Edge `yaml:"edges,omitempty"`
}

// Node returns the node with the given id.
func (g *StateGraph) Node(id string) (*Node, bool) {
	for i := range g.Nodes {
		if g.Nodes[i].ID == id {
			return &g.Nodes[i], true
		}
	}
	return nil, false
}

// OutgoingEdges returns every edge leaving the node, in declaration order.
func (g *StateGraph) OutgoingEdges(nodeID string) []*Edge {
	var edges []*Edge
	for i := range g.Edges {
		if g.Edges[i].From == nodeID {
			edges = append(edges, &g.Edges[i])
		}
	}
	return edges
}

// FirstEdge returns the first outgoing edge in declaration order, which is
// the one a finishing sequence follows.
func (g *StateGraph) FirstEdge(nodeID string) (*Edge, bool) {
	for i := range g.Edges {
		if g.Edges[i].From == nodeID {
			return &g.Edges[i], true
		}
	}
	return nil, false
}

// Clone deep-copies the graph so the scheduler can own its version
// independently of later project edits.
func (g *StateGraph) Clone() StateGraph {
	out := StateGraph{
		Nodes: make([]Node, len(g.Nodes)),
		Edges: append([]Edge(nil), g.Edges...),
	}
	for i, n := range g.Nodes {
		cloned := n
		cloned.Hooks = append([]Hook(nil), n.Hooks...)
		cloned.Sequence = n.Sequence.Clone()
		out.Nodes[i] = cloned
	}
	return out
}
