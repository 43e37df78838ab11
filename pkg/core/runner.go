package core

import "context"

// AgentRunner is the external agent-execution collaborator. It runs one
// candidate instruction against one scenario input and returns the trace.
// The engine treats it as a black box: a returned error is recorded as a
// failing result, never propagated as an exception.
type AgentRunner interface {
	Execute(ctx context.Context, instruction string, scenarioInput string) (*Trace, error)
}

// RunnerFunc adapts a plain function to the AgentRunner interface.
type RunnerFunc func(ctx context.Context, instruction string, scenarioInput string) (*Trace, error)

func (f RunnerFunc) Execute(ctx context.Context, instruction string, scenarioInput string) (*Trace, error) {
	return f(ctx, instruction, scenarioInput)
}
