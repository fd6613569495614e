package graph

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
)

// ErrMissingID is returned when a node has no usable id. Editor ids start
// at 1, so zero means the field was absent.
var ErrMissingID = errors.New("graph: node missing id")

// Compile flattens a workflow document into the id-keyed form the engine
// executes. Documents already in API form come back unchanged, so
// compiling twice is a no-op.
func Compile(doc *Document) (Spec, error) {
	if doc.Spec != nil {
		return doc.Spec, nil
	}
	return CompileGraph(doc.Graph)
}

// CompileGraph converts an editor-form graph into an execution spec:
// every node is keyed by its stringified id, widget values become named
// inputs via the type table, and connected slots become Refs. A Ref
// always overwrites a widget literal of the same name.
func CompileGraph(g *Graph) (Spec, error) {
	spec := make(Spec, len(g.Nodes))
	for _, n := range g.Nodes {
		if n.ID <= 0 {
			return nil, fmt.Errorf("%w (type %q)", ErrMissingID, n.Type)
		}
		node := SpecNode{ClassType: n.Type, Inputs: map[string]any{}}
		if len(n.WidgetValues) > 0 {
			mapWidgets(n, node.Inputs)
		}
		for _, slot := range n.Inputs {
			if slot.Link == nil {
				continue
			}
			link, ok := g.FindLink(*slot.Link)
			if !ok {
				// Editors can leave stale link ids behind after a
				// deletion; an unresolvable link is skipped, not fatal.
				slog.Debug("graph: dangling link", "node", n.ID, "slot", slot.Name, "link", *slot.Link)
				continue
			}
			name := slot.Name
			if n.Type == NodeReroute {
				name = rerouteInput
			}
			node.Inputs[name] = Ref{
				NodeID: strconv.FormatInt(link.SourceNode, 10),
				Slot:   link.SourceSlot,
			}
		}
		spec[strconv.FormatInt(n.ID, 10)] = node
	}
	return spec, nil
}
