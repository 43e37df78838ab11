package evolve

import (
	"context"
	"fmt"
	"strings"

	"github.com/XiaoConstantine/gepa-go/pkg/core"
	"github.com/XiaoConstantine/gepa-go/pkg/errors"
	"github.com/XiaoConstantine/gepa-go/pkg/logging"
)

// markerRetryLimit bounds regeneration attempts for a child that stripped a
// protected marker.
const markerRetryLimit = 2

// Evolver produces mutated candidates from a parent and its diagnosis. New
// candidates are recorded in the store, which assigns ids and lineage.
type Evolver struct {
	llm       core.LLM
	store     *Store
	protected []string
}

// NewEvolver creates an evolver. protectedMarkers lists substrings every
// child must preserve verbatim, e.g. placeholders the agent runtime
// substitutes at execution time.
func NewEvolver(llm core.LLM, store *Store, protectedMarkers []string) *Evolver {
	return &Evolver{llm: llm, store: store, protected: protectedMarkers}
}

// Evolve asks the LLM for numChildren full replacement instructions informed
// by the diagnosis. A child identical to its parent is regenerated once with
// a rephrased request before DegenerateMutation surfaces; a child that
// strips a protected marker is regenerated up to markerRetryLimit times
// before the evolver gives up on that slot and returns fewer children.
func (e *Evolver) Evolve(ctx context.Context, parent *core.Candidate, diagnosis *core.Diagnosis, numChildren int) ([]*core.Candidate, error) {
	if numChildren < 1 {
		numChildren = 1
	}

	logger := logging.GetLogger()
	children := make([]*core.Candidate, 0, numChildren)

	for i := 0; i < numChildren; i++ {
		instruction, err := e.generateChild(ctx, parent, diagnosis, i)
		if err != nil {
			if len(children) > 0 {
				logger.Warn(ctx, "child generation failed, returning partial brood: parent=%s, produced=%d, err=%v",
					parent.ID, len(children), err)
				return children, nil
			}
			return nil, err
		}
		if instruction == "" {
			// Marker retries exhausted for this slot.
			continue
		}

		child, err := e.store.AddChild(parent, instruction)
		if err != nil {
			return children, err
		}
		children = append(children, child)
	}

	return children, nil
}

// generateChild produces one mutated instruction, enforcing non-degeneracy
// and protected markers. An empty return with nil error means the marker
// retry limit was exhausted.
func (e *Evolver) generateChild(ctx context.Context, parent *core.Candidate, diagnosis *core.Diagnosis, variant int) (string, error) {
	logger := logging.GetLogger()

	for attempt := 0; attempt <= markerRetryLimit; attempt++ {
		prompt := e.buildPrompt(parent, diagnosis, variant, false)

		response, err := e.llm.Generate(ctx, prompt, core.WithTemperature(0.8))
		if err != nil {
			// One local retry before the parent becomes a dead end.
			response, err = e.llm.Generate(ctx, prompt, core.WithTemperature(0.8))
			if err != nil {
				return "", errors.WithFields(
					errors.Wrap(err, errors.LLMGenerationFailed, "mutation failed after retry"),
					errors.Fields{"parent_id": parent.ID})
			}
		}

		instruction := extractInstruction(response.Content)

		if instruction == "" || instruction == parent.Instruction {
			// Rephrased retry for a degenerate mutation, once.
			response, err = e.llm.Generate(ctx, e.buildPrompt(parent, diagnosis, variant, true), core.WithTemperature(0.9))
			if err == nil {
				instruction = extractInstruction(response.Content)
			}
			if instruction == "" || instruction == parent.Instruction {
				return "", errors.WithFields(
					errors.New(errors.DegenerateMutation, "mutation returned instruction identical to parent"),
					errors.Fields{"parent_id": parent.ID})
			}
		}

		if missing := e.missingMarkers(instruction); len(missing) > 0 {
			logger.Warn(ctx, "child stripped protected markers, regenerating: parent=%s, missing=%v, attempt=%d",
				parent.ID, missing, attempt)
			continue
		}

		return instruction, nil
	}

	return "", nil
}

// buildPrompt requests a full replacement instruction. The rephrased variant
// is used after a degenerate mutation.
func (e *Evolver) buildPrompt(parent *core.Candidate, diagnosis *core.Diagnosis, variant int, rephrased bool) string {
	var b strings.Builder

	if rephrased {
		b.WriteString("The previous rewrite came back unchanged. Produce a substantively different revision this time.\n\n")
	}

	fmt.Fprintf(&b, `Rewrite the instruction below to fix the diagnosed problems. Return the complete replacement instruction and nothing else.

CURRENT INSTRUCTION:
%q

DIAGNOSIS:
`, parent.Instruction)

	for _, finding := range diagnosis.Findings() {
		fmt.Fprintf(&b, "- %s\n", finding)
	}

	if len(e.protected) > 0 {
		b.WriteString("\nThe rewritten instruction MUST keep these markers verbatim:\n")
		for _, marker := range e.protected {
			fmt.Fprintf(&b, "- %s\n", marker)
		}
	}

	if variant > 0 {
		fmt.Fprintf(&b, "\nThis is alternative %d: explore a different way to address the diagnosis than your previous answers.\n", variant+1)
	}

	b.WriteString("\nREWRITTEN INSTRUCTION:")

	return b.String()
}

func (e *Evolver) missingMarkers(instruction string) []string {
	var missing []string
	for _, marker := range e.protected {
		if !strings.Contains(instruction, marker) {
			missing = append(missing, marker)
		}
	}
	return missing
}

// extractInstruction strips labels and surrounding quotes from the LLM
// response, keeping the full multi-line replacement text.
func extractInstruction(content string) string {
	content = strings.TrimSpace(content)

	if idx := strings.Index(strings.ToUpper(content), "REWRITTEN INSTRUCTION:"); idx >= 0 {
		content = strings.TrimSpace(content[idx+len("REWRITTEN INSTRUCTION:"):])
	}

	content = strings.Trim(content, "\"'`")
	return strings.TrimSpace(content)
}
