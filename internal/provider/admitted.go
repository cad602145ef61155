package provider

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/taskd/internal/admission"
	"github.com/fyrsmithlabs/taskd/internal/todo"
)

// Payload types for the admission dispatcher. One type per reasoner
// operation so the dispatcher can route without reflection.
type decomposePayload struct {
	request string
}

type selectPayload struct {
	item    *todo.Item
	listCtx *ListContext
}

type planPayload struct {
	item    *todo.Item
	listCtx *ListContext
	servers []string
}

type verifyPayload struct {
	item    *todo.Item
	results []todo.CallResult
	method  string
}

type replanPayload struct {
	item           *todo.Item
	execEvidence   []todo.CallResult
	verifyEvidence *todo.VerificationResult
}

// reasonerDispatcher routes admitted payloads to the wrapped reasoner.
type reasonerDispatcher struct {
	inner Reasoner
}

func (d *reasonerDispatcher) Dispatch(ctx context.Context, req *admission.Request) (any, error) {
	switch p := req.Payload.(type) {
	case *decomposePayload:
		return d.inner.Decompose(ctx, p.request)
	case *selectPayload:
		return d.inner.SelectServers(ctx, p.item, p.listCtx)
	case *planPayload:
		return d.inner.Plan(ctx, p.item, p.listCtx, p.servers)
	case *verifyPayload:
		return d.inner.Verify(ctx, p.item, p.results, p.method)
	case *replanPayload:
		return d.inner.Replan(ctx, p.item, p.execEvidence, p.verifyEvidence)
	default:
		return nil, fmt.Errorf("unknown payload type %T", req.Payload)
	}
}

// DispatchBatch dispatches members sequentially. Reasoner operations
// have no combined wire form, so batching here only bounds concurrency.
func (d *reasonerDispatcher) DispatchBatch(ctx context.Context, reqs []*admission.Request) ([]any, error) {
	results := make([]any, len(reqs))
	for i, req := range reqs {
		out, err := d.Dispatch(ctx, req)
		if err != nil {
			return nil, err
		}
		results[i] = out
	}
	return results, nil
}

// Admitted wraps a Reasoner so every round-trip passes through an
// admission gate: deduplication, adaptive throttling, and bounded
// retries. It is the only Reasoner the orchestrator should hold.
type Admitted struct {
	admitter *admission.Admitter
}

// NewAdmitted builds the gate around inner with the given admission
// config.
func NewAdmitted(cfg admission.Config, inner Reasoner, logger *zap.Logger) (*Admitted, error) {
	adm, err := admission.New(cfg, &reasonerDispatcher{inner: inner}, logger)
	if err != nil {
		return nil, fmt.Errorf("create admitter: %w", err)
	}
	return &Admitted{admitter: adm}, nil
}

// Close drains the admission gate. The wrapped reasoner is not closed.
func (a *Admitted) Close() { a.admitter.Close() }

// Health exposes the underlying admission health snapshot.
func (a *Admitted) Health() admission.Health { return a.admitter.Health() }

func (a *Admitted) admit(ctx context.Context, req *admission.Request) (any, error) {
	return a.admitter.Admit(ctx, req)
}

// itemKey builds a dedup key scoped to the item's current attempt, so
// concurrent duplicates of the same call coalesce but a retry after a
// recorded failure dispatches fresh.
func itemKey(op string, item *todo.Item) string {
	return fmt.Sprintf("%s#%s#%d", op, item.ID, item.Attempts)
}

func (a *Admitted) Decompose(ctx context.Context, request string) (*todo.List, error) {
	out, err := a.admit(ctx, &admission.Request{
		Key:      "decompose#" + request,
		Priority: admission.PriorityHigh,
		Payload:  &decomposePayload{request: request},
	})
	if err != nil {
		return nil, err
	}
	return out.(*todo.List), nil
}

func (a *Admitted) SelectServers(ctx context.Context, item *todo.Item, listCtx *ListContext) (*ServerSelection, error) {
	out, err := a.admit(ctx, &admission.Request{
		Key:      itemKey("select", item),
		BatchKey: "select",
		Priority: priorityFor(item),
		Payload:  &selectPayload{item: item, listCtx: listCtx},
	})
	if err != nil {
		return nil, err
	}
	return out.(*ServerSelection), nil
}

func (a *Admitted) Plan(ctx context.Context, item *todo.Item, listCtx *ListContext, servers []string) (*PlanResult, error) {
	out, err := a.admit(ctx, &admission.Request{
		Key:      itemKey("plan", item),
		Priority: priorityFor(item),
		Payload:  &planPayload{item: item, listCtx: listCtx, servers: servers},
	})
	if err != nil {
		return nil, err
	}
	return out.(*PlanResult), nil
}

func (a *Admitted) Verify(ctx context.Context, item *todo.Item, results []todo.CallResult, method string) (*todo.VerificationResult, error) {
	out, err := a.admit(ctx, &admission.Request{
		Key:      itemKey("verify:"+method, item),
		Priority: priorityFor(item),
		Payload:  &verifyPayload{item: item, results: results, method: method},
	})
	if err != nil {
		return nil, err
	}
	return out.(*todo.VerificationResult), nil
}

func (a *Admitted) Replan(ctx context.Context, item *todo.Item, execEvidence []todo.CallResult, verifyEvidence *todo.VerificationResult) (*ReplanDecision, error) {
	out, err := a.admit(ctx, &admission.Request{
		Key:      itemKey("replan", item),
		Priority: admission.PriorityHigh,
		Payload:  &replanPayload{item: item, execEvidence: execEvidence, verifyEvidence: verifyEvidence},
	})
	if err != nil {
		return nil, err
	}
	return out.(*ReplanDecision), nil
}

func priorityFor(item *todo.Item) admission.Priority {
	switch item.Priority {
	case todo.PriorityHigh:
		return admission.PriorityHigh
	case todo.PriorityLow:
		return admission.PriorityLow
	default:
		return admission.PriorityNormal
	}
}

var _ Reasoner = (*Admitted)(nil)
