// Package runners provides AgentRunner implementations for common setups.
// The engine itself treats the runner as an opaque collaborator; these
// adapters exist so a run can work end to end without an external harness.
package runners

import (
	"context"
	"fmt"

	"github.com/XiaoConstantine/gepa-go/pkg/core"
	"github.com/XiaoConstantine/gepa-go/pkg/errors"
)

// LLMRunner is a single-shot agent: it sends the candidate instruction as
// the system framing and the scenario input as the task, and records the
// completion as the trace output. Useful for optimizing instructions whose
// quality is observable from one model response.
type LLMRunner struct {
	llm core.LLM
}

// NewLLMRunner creates a runner backed by the given LLM.
func NewLLMRunner(llm core.LLM) (*LLMRunner, error) {
	if llm == nil {
		return nil, errors.New(errors.InvalidInput, "llm is required")
	}
	return &LLMRunner{llm: llm}, nil
}

// Execute implements core.AgentRunner.
func (r *LLMRunner) Execute(ctx context.Context, instruction string, scenarioInput string) (*core.Trace, error) {
	prompt := fmt.Sprintf("%s\n\n---\n\nTask:\n%s", instruction, scenarioInput)

	response, err := r.llm.Generate(ctx, prompt)
	if err != nil {
		return nil, errors.Wrap(err, errors.LLMGenerationFailed, "agent execution failed")
	}

	return &core.Trace{
		Input:  scenarioInput,
		Output: response.Content,
	}, nil
}
