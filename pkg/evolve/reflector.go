package evolve

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/XiaoConstantine/gepa-go/pkg/core"
	"github.com/XiaoConstantine/gepa-go/pkg/errors"
	"github.com/XiaoConstantine/gepa-go/pkg/logging"
)

const traceExcerptLimit = 600

// Reflector asks the reflection LLM why a candidate failed specific
// scenarios and returns a structured diagnosis. The prompt/response pair is
// internal; callers only ever see the Diagnosis.
type Reflector struct {
	llm core.LLM
}

// NewReflector creates a reflector backed by the given LLM.
func NewReflector(llm core.LLM) *Reflector {
	return &Reflector{llm: llm}
}

// Reflect diagnoses the candidate's failing results. It fails with
// NoFailures when given an empty list: callers must not reflect on a
// fully-passing candidate. A generation failure is retried once before the
// error surfaces.
func (r *Reflector) Reflect(ctx context.Context, candidate *core.Candidate, failing []core.EvaluationResult) (*core.Diagnosis, error) {
	if len(failing) == 0 {
		return nil, errors.WithFields(
			errors.New(errors.NoFailures, "reflection requires at least one failing result"),
			errors.Fields{"candidate_id": candidate.ID})
	}

	logger := logging.GetLogger()
	prompt := r.buildPrompt(candidate, failing)

	response, err := r.llm.Generate(ctx, prompt, core.WithTemperature(0.7))
	if err != nil {
		logger.Warn(ctx, "reflection generation failed, retrying once: candidate=%s, err=%v", candidate.ID, err)
		response, err = r.llm.Generate(ctx, prompt, core.WithTemperature(0.7))
	}
	if err != nil {
		return nil, errors.WithFields(
			errors.Wrap(err, errors.LLMGenerationFailed, "reflection failed after retry"),
			errors.Fields{"candidate_id": candidate.ID})
	}

	diagnosis := r.parseResponse(candidate.ID, response.Content)
	return diagnosis, nil
}

// buildPrompt summarizes the failing traces into a single diagnosis request
// with delimited sections the parser can pick apart.
func (r *Reflector) buildPrompt(candidate *core.Candidate, failing []core.EvaluationResult) string {
	var b strings.Builder

	fmt.Fprintf(&b, `As an expert prompt engineer, diagnose why this instruction failed the test scenarios below.

INSTRUCTION:
%q

FAILING SCENARIOS (%d):
`, candidate.Instruction, len(failing))

	for i, res := range failing {
		fmt.Fprintf(&b, "\n%d. scenario %s (score %.2f)\n", i+1, res.ScenarioID, res.Score)
		if res.Trace != nil {
			fmt.Fprintf(&b, "   input: %s\n", excerpt(res.Trace.Input))
			if res.Trace.ExecError != "" {
				fmt.Fprintf(&b, "   execution error: %s\n", excerpt(res.Trace.ExecError))
			} else {
				fmt.Fprintf(&b, "   output: %s\n", excerpt(res.Trace.Output))
			}
			for _, step := range res.Trace.Steps {
				fmt.Fprintf(&b, "   step %s: %s -> %s\n", step.Name, excerpt(step.Input), excerpt(step.Output))
			}
		}
	}

	b.WriteString(`
Identify what is missing or incorrect in the instruction itself, not in the scenarios.

Format your response as:
ROOT CAUSES:
- [cause phrased as a missing or incorrect instruction]

SUGGESTED FIXES:
- [concrete textual change to the instruction]`)

	return b.String()
}

// parseResponse extracts the delimited sections, tolerating minor deviation:
// a response with no recognizable sections becomes a single root cause.
func (r *Reflector) parseResponse(candidateID, content string) *core.Diagnosis {
	diagnosis := &core.Diagnosis{
		CandidateID: candidateID,
		CreatedAt:   time.Now(),
	}

	currentSection := ""
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		upper := strings.ToUpper(line)
		switch {
		case strings.HasPrefix(upper, "ROOT CAUSES:"):
			currentSection = "causes"
			continue
		case strings.HasPrefix(upper, "SUGGESTED FIXES:"):
			currentSection = "fixes"
			continue
		}

		if strings.HasPrefix(line, "- ") || strings.HasPrefix(line, "* ") {
			item := strings.TrimSpace(line[2:])
			switch currentSection {
			case "causes":
				diagnosis.RootCauses = append(diagnosis.RootCauses, item)
			case "fixes":
				diagnosis.SuggestedFixes = append(diagnosis.SuggestedFixes, item)
			}
		}
	}

	if len(diagnosis.RootCauses) == 0 && len(diagnosis.SuggestedFixes) == 0 {
		diagnosis.RootCauses = append(diagnosis.RootCauses, strings.TrimSpace(content))
	}

	return diagnosis
}

func excerpt(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) > traceExcerptLimit {
		return s[:traceExcerptLimit-3] + "..."
	}
	return s
}
