package orchestrator

import (
	"context"

	"github.com/fyrsmithlabs/taskd/internal/provider"
	"github.com/fyrsmithlabs/taskd/internal/todo"
	"github.com/fyrsmithlabs/taskd/internal/verification"
)

// reasonerProver adapts the reasoner's Verify operation to the
// verification package's Prover contract.
type reasonerProver struct {
	reasoner provider.Reasoner
}

func (p *reasonerProver) Prove(ctx context.Context, method string, ev *verification.Evidence) (*todo.VerificationResult, error) {
	return p.reasoner.Verify(ctx, ev.Item, ev.Results, method)
}

// newVerifierRegistry wires the standard methods around the reasoner.
func newVerifierRegistry(reasoner provider.Reasoner) *verification.Registry {
	prover := &reasonerProver{reasoner: reasoner}
	reg := verification.NewRegistry()
	reg.Register(verification.NewVisualMethod(prover))
	reg.Register(verification.NewToolMethod(prover))
	reg.Register(verification.NewReasoningMethod(prover))
	return reg
}
