package verification

import (
	"context"
	"strings"
	"time"

	"github.com/fyrsmithlabs/taskd/internal/todo"
)

// Standard method names, from most to least specific.
const (
	MethodVisual    = "visual"
	MethodTool      = "tool"
	MethodReasoning = "reasoning"
)

// Evidence is everything a method may inspect about an executed item.
type Evidence struct {
	Item    *todo.Item
	Calls   []todo.ToolCall
	Results []todo.CallResult

	// Screenshot is base64 visual evidence, populated by the composite
	// when a capturer is available.
	Screenshot string
}

// AllSucceeded reports whether every executed call succeeded.
func (e *Evidence) AllSucceeded() bool {
	for _, r := range e.Results {
		if !r.Success {
			return false
		}
	}
	return len(e.Results) > 0
}

// Prover produces the actual judgment for a method, typically a
// reasoning-provider round-trip issued through admission.
type Prover interface {
	Prove(ctx context.Context, method string, ev *Evidence) (*todo.VerificationResult, error)
}

// Method is one tagged verification variant.
type Method interface {
	// Name keys the method in the registry.
	Name() string

	// Weight is the method's share in the aggregate vote.
	Weight() float64

	// Threshold is the early-accept confidence; 0 disables early accept.
	Threshold() float64

	// Applicable reports whether the method can judge this evidence.
	Applicable(ev *Evidence) bool

	// Verify produces the method's judgment.
	Verify(ctx context.Context, ev *Evidence) (*todo.VerificationResult, error)
}

// visualMethod judges from captured screen evidence.
type visualMethod struct {
	prover Prover
}

// NewVisualMethod creates the visual variant (weight 1.5, threshold 90).
func NewVisualMethod(prover Prover) Method { return &visualMethod{prover: prover} }

func (*visualMethod) Name() string       { return MethodVisual }
func (*visualMethod) Weight() float64    { return 1.5 }
func (*visualMethod) Threshold() float64 { return 90 }

func (*visualMethod) Applicable(ev *Evidence) bool {
	return ev.Screenshot != ""
}

func (m *visualMethod) Verify(ctx context.Context, ev *Evidence) (*todo.VerificationResult, error) {
	return m.prover.Prove(ctx, MethodVisual, ev)
}

// toolMethod judges from capability-provider tool output.
type toolMethod struct {
	prover Prover
}

// NewToolMethod creates the tool-based variant (weight 1.2, threshold 80).
func NewToolMethod(prover Prover) Method { return &toolMethod{prover: prover} }

func (*toolMethod) Name() string       { return MethodTool }
func (*toolMethod) Weight() float64    { return 1.2 }
func (*toolMethod) Threshold() float64 { return 80 }

func (*toolMethod) Applicable(ev *Evidence) bool {
	return len(ev.Results) > 0
}

func (m *toolMethod) Verify(ctx context.Context, ev *Evidence) (*todo.VerificationResult, error) {
	return m.prover.Prove(ctx, MethodTool, ev)
}

// reasoningMethod is the free-form fallback judged purely from context.
type reasoningMethod struct {
	prover Prover
}

// NewReasoningMethod creates the fallback variant (weight 1.0).
func NewReasoningMethod(prover Prover) Method { return &reasoningMethod{prover: prover} }

func (*reasoningMethod) Name() string              { return MethodReasoning }
func (*reasoningMethod) Weight() float64           { return 1.0 }
func (*reasoningMethod) Threshold() float64        { return 0 }
func (*reasoningMethod) Applicable(*Evidence) bool { return true }

func (m *reasoningMethod) Verify(ctx context.Context, ev *Evidence) (*todo.VerificationResult, error) {
	return m.prover.Prove(ctx, MethodReasoning, ev)
}

// DelayFor returns the settle pause before capturing evidence for an
// action. Operations that open external applications need the screen to
// stabilize; quick file operations barely need any.
func DelayFor(action string) time.Duration {
	lower := strings.ToLower(action)
	switch {
	case containsAny(lower, "open", "launch", "start app", "browser", "navigate"):
		return 2 * time.Second
	case containsAny(lower, "install", "download", "build", "deploy"):
		return 1 * time.Second
	case containsAny(lower, "read", "list", "search"):
		return 100 * time.Millisecond
	default:
		return 500 * time.Millisecond
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
