// Package journey implements the journey execution core: the per-run graph
// index, the contact state machine, reply matching and the run coordinator.
package journey

import (
	"github.com/jornada-io/jornada/pkg/models"
)

// Graph is a read-only index over a journey's nodes and edges, built once per
// run. Lookups are O(1) on node id and O(out-degree) on edges.
type Graph struct {
	journey *models.Journey
	nodes   map[string]*models.Node
	out     map[string][]*models.Edge
	entry   *models.Node
}

// NewGraph indexes a journey. The journey is not copied; callers must treat
// it as immutable for the lifetime of the graph.
func NewGraph(journey *models.Journey) *Graph {
	g := &Graph{
		journey: journey,
		nodes:   make(map[string]*models.Node, len(journey.Nodes)),
		out:     make(map[string][]*models.Edge, len(journey.Nodes)),
	}

	for _, node := range journey.Nodes {
		g.nodes[node.ID] = node
	}

	for _, edge := range journey.Edges {
		g.out[edge.Source] = append(g.out[edge.Source], edge)
	}

	for _, node := range journey.Nodes {
		if node.Type == models.NodeTypeAudience {
			g.entry = node

			break
		}

		if node.Type == models.NodeTypeStart && g.entry == nil {
			g.entry = node
		}
	}

	return g
}

// Journey returns the indexed journey.
func (g *Graph) Journey() *models.Journey {
	return g.journey
}

// NodeByID looks up a node.
func (g *Graph) NodeByID(id string) (*models.Node, bool) {
	node, ok := g.nodes[id]

	return node, ok
}

// EntryNode returns the node new contacts start at: the audience node when
// present, otherwise the start node, otherwise nil.
func (g *Graph) EntryNode() *models.Node {
	return g.entry
}

// FirstEdgeFrom returns the single unconditional successor edge of a
// non-branching node, or nil when the node has no outgoing edge.
func (g *Graph) FirstEdgeFrom(nodeID string) *models.Edge {
	edges := g.out[nodeID]
	if len(edges) == 0 {
		return nil
	}

	return edges[0]
}

// EdgesFrom returns all outgoing edges of a node.
func (g *Graph) EdgesFrom(nodeID string) []*models.Edge {
	return g.out[nodeID]
}

// ConditionsFrom builds the matcher's condition set from a wait/branch node's
// outgoing edges. Edges without condition data default to keyword matching.
func (g *Graph) ConditionsFrom(nodeID string) []models.Condition {
	edges := g.out[nodeID]
	conditions := make([]models.Condition, 0, len(edges))

	for _, edge := range edges {
		conditions = append(conditions, edge.Condition())
	}

	return conditions
}
