package workflow

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/ai-game-oneday/ai-game-oneday-server/internal/graph"
)

// NodeIDs names the template nodes the injector rewrites. The template's
// shape is a contract with its author; nodes are located by fixed id, not
// discovered.
type NodeIDs struct {
	Prompt int64 `yaml:"prompt"`
	Width  int64 `yaml:"width"`
	Height int64 `yaml:"height"`
	Switch int64 `yaml:"switch"`
}

// DefaultNodeIDs matches the production pixel-art template: CLIPTextEncode
// prompt at 32, a single square target-size node at 20, and the
// background-removal ImpactSwitch at 37.
var DefaultNodeIDs = NodeIDs{Prompt: 32, Width: 20, Height: 20, Switch: 37}

// DefaultRequiredNodes are the ids Validate checks for.
var DefaultRequiredNodes = []int64{1, 2, 7, 17, 20, 32, 34, 37}

// Background-removal branch selectors for the switch node.
const (
	switchKeepBackground   = 1
	switchRemoveBackground = 2
)

// ShapeError reports template nodes the injector expects but cannot find.
type ShapeError struct {
	Missing []int64
}

func (e *ShapeError) Error() string {
	ids := make([]string, len(e.Missing))
	for i, id := range e.Missing {
		ids[i] = strconv.FormatInt(id, 10)
	}
	return "workflow: template missing required nodes: " + strings.Join(ids, ", ")
}

// Manager holds one immutable workflow template and stamps out customized
// copies per request.
type Manager struct {
	template *graph.Graph
	ids      NodeIDs
	required []int64
}

// Option configures a Manager.
type Option func(*Manager)

// WithNodeIDs overrides the injection target node ids.
func WithNodeIDs(ids NodeIDs) Option {
	return func(m *Manager) { m.ids = ids }
}

// WithRequiredNodes overrides the node ids Validate checks for.
func WithRequiredNodes(ids ...int64) Option {
	return func(m *Manager) { m.required = ids }
}

// NewManager wraps an already-parsed editor-form template.
func NewManager(template *graph.Graph, opts ...Option) *Manager {
	m := &Manager{
		template: template,
		ids:      DefaultNodeIDs,
		required: DefaultRequiredNodes,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Load reads a workflow template JSON file. The template must be in
// editor form: injection targets positional widget values, which only
// exist pre-compilation.
func Load(path string, opts ...Option) (*Manager, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("workflow: reading template: %w", err)
	}
	doc, err := graph.ParseDocument(data)
	if err != nil {
		return nil, err
	}
	if doc.Graph == nil {
		return nil, fmt.Errorf("workflow: template %s is already in api form, editor form required", path)
	}
	return NewManager(doc.Graph, opts...), nil
}

// Template returns the immutable base template.
func (m *Manager) Template() *graph.Graph { return m.template }

// Prepare deep-copies the template and injects the request parameters:
// the prompt node's first widget, the sizing nodes' widgets (stringified,
// the way the target-size nodes expect them), and the switch node's branch
// selector. Nodes that are absent are silently left alone; run Validate
// first when absence should be fatal.
func (m *Manager) Prepare(prompt string, width, height int, removeBackground bool) *graph.Graph {
	g := m.template.Clone()

	if n := g.Node(m.ids.Prompt); n != nil && len(n.WidgetValues) > 0 {
		n.WidgetValues[0] = prompt
	}

	if m.ids.Width == m.ids.Height {
		// square templates drive both dimensions off one target-size node
		if n := g.Node(m.ids.Width); n != nil {
			n.WidgetValues = []any{strconv.Itoa(width)}
		}
	} else {
		if n := g.Node(m.ids.Width); n != nil {
			n.WidgetValues = []any{strconv.Itoa(width)}
		}
		if n := g.Node(m.ids.Height); n != nil {
			n.WidgetValues = []any{strconv.Itoa(height)}
		}
	}

	if n := g.Node(m.ids.Switch); n != nil && len(n.WidgetValues) > 0 {
		if removeBackground {
			n.WidgetValues[0] = switchRemoveBackground
		} else {
			n.WidgetValues[0] = switchKeepBackground
		}
	}

	return g
}

// Validate checks that every required node id is present in the template.
// It is advisory: callers decide whether a *ShapeError is fatal.
func (m *Manager) Validate() error {
	var missing []int64
	for _, id := range m.required {
		if m.template.Node(id) == nil {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return &ShapeError{Missing: missing}
	}
	return nil
}
