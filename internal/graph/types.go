package graph

import (
	"encoding/json"
	"fmt"
)

// Node is one node of an editor-form workflow graph. Widget values are
// positional literals set in the graphical editor; input slots declare
// named connections resolved through the link table.
type Node struct {
	ID           int64       `json:"id"`
	Type         string      `json:"type"`
	WidgetValues []any       `json:"widgets_values,omitempty"`
	Inputs       []InputSlot `json:"inputs,omitempty"`
}

// InputSlot declares a named input on a node. Link is nil when the slot
// is not connected.
type InputSlot struct {
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
	Link *int64 `json:"link"`
}

// Link connects a source node's output slot to a target node's input slot.
// Wire form is a 6-element JSON array:
// [id, source_node, source_slot, target_node, target_slot, "TYPE"].
type Link struct {
	ID         int64
	SourceNode int64
	SourceSlot int
	TargetNode int64
	TargetSlot int
	Type       string
}

func (l *Link) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("graph: link is not an array: %w", err)
	}
	if len(raw) < 6 {
		return fmt.Errorf("graph: link has %d elements, want 6", len(raw))
	}
	fields := []struct {
		dst  any
		name string
	}{
		{&l.ID, "id"},
		{&l.SourceNode, "source node"},
		{&l.SourceSlot, "source slot"},
		{&l.TargetNode, "target node"},
		{&l.TargetSlot, "target slot"},
	}
	for i, f := range fields {
		if err := json.Unmarshal(raw[i], f.dst); err != nil {
			return fmt.Errorf("graph: link %s: %w", f.name, err)
		}
	}
	// The data-type tag may be null in some editor exports.
	if err := json.Unmarshal(raw[5], &l.Type); err != nil {
		l.Type = ""
	}
	return nil
}

func (l Link) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{l.ID, l.SourceNode, l.SourceSlot, l.TargetNode, l.TargetSlot, l.Type})
}

// Graph is a workflow as authored in the graphical editor.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Links []Link `json:"links,omitempty"`
}

// Node returns a pointer to the node with the given id, or nil.
func (g *Graph) Node(id int64) *Node {
	for i := range g.Nodes {
		if g.Nodes[i].ID == id {
			return &g.Nodes[i]
		}
	}
	return nil
}

// FindLink looks up a link by id.
func (g *Graph) FindLink(id int64) (Link, bool) {
	for _, l := range g.Links {
		if l.ID == id {
			return l, true
		}
	}
	return Link{}, false
}

// Clone returns a deep copy of the graph. Widget values are scalars, so
// copying the slices is sufficient.
func (g *Graph) Clone() *Graph {
	out := &Graph{
		Nodes: make([]Node, len(g.Nodes)),
		Links: make([]Link, len(g.Links)),
	}
	copy(out.Links, g.Links)
	for i, n := range g.Nodes {
		cp := n
		if n.WidgetValues != nil {
			cp.WidgetValues = make([]any, len(n.WidgetValues))
			copy(cp.WidgetValues, n.WidgetValues)
		}
		if n.Inputs != nil {
			cp.Inputs = make([]InputSlot, len(n.Inputs))
			copy(cp.Inputs, n.Inputs)
			for j, slot := range n.Inputs {
				if slot.Link != nil {
					link := *slot.Link
					cp.Inputs[j].Link = &link
				}
			}
		}
		out.Nodes[i] = cp
	}
	return out
}

// Ref points at another node's output slot inside a compiled spec.
// Wire form is ["<node id>", slot].
type Ref struct {
	NodeID string
	Slot   int
}

func (r Ref) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{r.NodeID, r.Slot})
}

func (r *Ref) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("graph: ref is not an array: %w", err)
	}
	if len(raw) != 2 {
		return fmt.Errorf("graph: ref has %d elements, want 2", len(raw))
	}
	if err := json.Unmarshal(raw[0], &r.NodeID); err != nil {
		return fmt.Errorf("graph: ref node id: %w", err)
	}
	if err := json.Unmarshal(raw[1], &r.Slot); err != nil {
		return fmt.Errorf("graph: ref slot: %w", err)
	}
	return nil
}

// SpecNode is one node of an API-form workflow: the node's behavior tag
// plus its resolved named inputs (literals or Refs).
type SpecNode struct {
	ClassType string         `json:"class_type"`
	Inputs    map[string]any `json:"inputs"`
}

// Spec is a flattened, node-id-keyed workflow in the form the execution
// engine consumes.
type Spec map[string]SpecNode

// Document holds a workflow in whichever of the two forms it was authored.
// Exactly one of Graph and Spec is set.
type Document struct {
	Graph *Graph
	Spec  Spec
}

// ParseDocument sniffs the framing of a workflow JSON document: editor
// exports carry a top-level "nodes" array, API-form documents are plain
// node-id-keyed objects.
func ParseDocument(data []byte) (*Document, error) {
	var probe struct {
		Nodes json.RawMessage `json:"nodes"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("graph: parse workflow: %w", err)
	}
	if probe.Nodes != nil {
		var g Graph
		if err := json.Unmarshal(data, &g); err != nil {
			return nil, fmt.Errorf("graph: parse editor workflow: %w", err)
		}
		return &Document{Graph: &g}, nil
	}
	var spec Spec
	if err := json.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("graph: parse api workflow: %w", err)
	}
	return &Document{Spec: spec}, nil
}
