package workflow

import (
	"fmt"
	"time"

	"chatflow_backend/internal/leads"

	"github.com/google/uuid"
)

// NodeType discriminates the workflow node union.
type NodeType string

const (
	NodeTrigger   NodeType = "trigger"
	NodeMessage   NodeType = "message"
	NodeWait      NodeType = "wait"
	NodeCondition NodeType = "smart_condition"
	NodeStopBot   NodeType = "stop_bot"
)

// Condition predicates evaluated against the lead/run context.
const (
	// PredicateHasReplied is true when the lead sent any inbound
	// message since the run started.
	PredicateHasReplied = "has_replied"
	// PredicateInStage is true when the lead currently sits in the
	// node's predicateStageId pipeline stage.
	PredicateInStage = "in_stage"
)

// DefaultEdgeLabel names the branch taken when a condition's context
// is unavailable, or when no declared branch matched.
const DefaultEdgeLabel = "default"

// Node is one step of a workflow graph. The populated fields depend on
// Type; Validate enforces the per-type shape at publish time so the
// runner never has to guess.
type Node struct {
	ID   string   `json:"id"`
	Type NodeType `json:"type"`

	// trigger
	TriggerStageID       *uuid.UUID `json:"triggerStageId,omitempty"`
	TriggerOnAppointment bool       `json:"triggerOnAppointment,omitempty"`

	// message
	Text string `json:"text,omitempty"`

	// wait
	DurationMinutes int `json:"durationMinutes,omitempty"`

	// smart_condition
	Predicate        string     `json:"predicate,omitempty"`
	PredicateStageID *uuid.UUID `json:"predicateStageId,omitempty"`
	Branches         []string   `json:"branches,omitempty"`
}

// Edge is a directed transition between two nodes. Labels distinguish
// condition branches; non-condition edges are unlabeled.
type Edge struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Label string `json:"label,omitempty"`
}

// Definition is a tenant-owned workflow graph. Only published
// definitions are considered by the trigger dispatcher; the
// trigger fields are denormalized from the trigger node at publish
// time so dispatch queries don't parse the graph.
type Definition struct {
	ID                   uuid.UUID
	TenantID             uuid.UUID
	Name                 string
	IsPublished          bool
	AllowConcurrentRuns  bool
	TriggerStageID       *uuid.UUID
	TriggerOnAppointment bool
	Nodes                []Node
	Edges                []Edge
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// NodeByID looks a node up by id.
func (d *Definition) NodeByID(id string) (Node, bool) {
	for _, node := range d.Nodes {
		if node.ID == id {
			return node, true
		}
	}
	return Node{}, false
}

// TriggerNode returns the graph's entry node.
func (d *Definition) TriggerNode() (Node, bool) {
	for _, node := range d.Nodes {
		if node.Type == NodeTrigger {
			return node, true
		}
	}
	return Node{}, false
}

// OutgoingEdges returns all edges leaving the given node.
func (d *Definition) OutgoingEdges(nodeID string) []Edge {
	var out []Edge
	for _, edge := range d.Edges {
		if edge.From == nodeID {
			out = append(out, edge)
		}
	}
	return out
}

// NextAfter returns the unique successor of a non-condition node.
func (d *Definition) NextAfter(nodeID string) (string, bool) {
	edges := d.OutgoingEdges(nodeID)
	if len(edges) != 1 {
		return "", false
	}
	return edges[0].To, true
}

// BranchTarget returns the successor reached via the labeled branch.
func (d *Definition) BranchTarget(nodeID, label string) (string, bool) {
	for _, edge := range d.OutgoingEdges(nodeID) {
		if edge.Label == label {
			return edge.To, true
		}
	}
	return "", false
}

// EvalContext is the information available to a condition node at
// evaluation time.
type EvalContext struct {
	Lead         *leads.Lead
	RunStartedAt time.Time
}

// EvaluateCondition resolves the branch label for a condition node.
// ok is false when the required context is unavailable; the caller
// must then take the default branch rather than fail.
func (n Node) EvaluateCondition(ctx EvalContext) (label string, ok bool) {
	if ctx.Lead == nil {
		return "", false
	}

	switch n.Predicate {
	case PredicateHasReplied:
		replied := ctx.Lead.LastInboundAt != nil && ctx.Lead.LastInboundAt.After(ctx.RunStartedAt)
		return yesNo(replied), true
	case PredicateInStage:
		if n.PredicateStageID == nil {
			return "", false
		}
		inStage := ctx.Lead.PipelineStageID != nil && *ctx.Lead.PipelineStageID == *n.PredicateStageID
		return yesNo(inStage), true
	default:
		return "", false
	}
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}

// Validate checks the structural integrity of the graph. It is called
// at publish time; a definition that passes never produces an
// unknown-shape node during execution.
func (d *Definition) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("workflow name is required")
	}
	if len(d.Nodes) == 0 {
		return fmt.Errorf("workflow has no nodes")
	}

	seen := make(map[string]bool, len(d.Nodes))
	triggers := 0
	for _, node := range d.Nodes {
		if node.ID == "" {
			return fmt.Errorf("node with empty id")
		}
		if seen[node.ID] {
			return fmt.Errorf("duplicate node id %q", node.ID)
		}
		seen[node.ID] = true

		if err := d.validateNode(node); err != nil {
			return err
		}
		if node.Type == NodeTrigger {
			triggers++
		}
	}
	if triggers != 1 {
		return fmt.Errorf("workflow must have exactly one trigger node, found %d", triggers)
	}

	for _, edge := range d.Edges {
		if !seen[edge.From] || !seen[edge.To] {
			return fmt.Errorf("edge %s->%s references unknown node", edge.From, edge.To)
		}
	}

	for _, node := range d.Nodes {
		edges := d.OutgoingEdges(node.ID)
		if node.Type == NodeCondition {
			if _, ok := d.BranchTarget(node.ID, DefaultEdgeLabel); !ok {
				return fmt.Errorf("condition node %q has no default branch", node.ID)
			}
			for _, branch := range node.Branches {
				if _, ok := d.BranchTarget(node.ID, branch); !ok {
					return fmt.Errorf("condition node %q declares branch %q without a matching edge", node.ID, branch)
				}
			}
			continue
		}
		if len(edges) > 1 {
			return fmt.Errorf("node %q has %d outgoing edges, at most one allowed", node.ID, len(edges))
		}
		if node.Type == NodeStopBot && len(edges) != 0 {
			return fmt.Errorf("stop_bot node %q must be terminal", node.ID)
		}
	}

	return nil
}

func (d *Definition) validateNode(node Node) error {
	switch node.Type {
	case NodeTrigger:
		if node.TriggerStageID == nil && !node.TriggerOnAppointment {
			return fmt.Errorf("trigger node %q needs a stage or the appointment flag", node.ID)
		}
	case NodeMessage:
		if node.Text == "" {
			return fmt.Errorf("message node %q has no text", node.ID)
		}
	case NodeWait:
		if node.DurationMinutes < 1 {
			return fmt.Errorf("wait node %q needs a positive duration", node.ID)
		}
	case NodeCondition:
		if node.Predicate != PredicateHasReplied && node.Predicate != PredicateInStage {
			return fmt.Errorf("condition node %q has unknown predicate %q", node.ID, node.Predicate)
		}
		if node.Predicate == PredicateInStage && node.PredicateStageID == nil {
			return fmt.Errorf("condition node %q needs predicateStageId", node.ID)
		}
	case NodeStopBot:
		// no fields
	default:
		return fmt.Errorf("node %q has unknown type %q", node.ID, node.Type)
	}
	return nil
}
