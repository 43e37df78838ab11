package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/XiaoConstantine/gepa-go/pkg/core"
)

// MockLLM is a mock implementation of core.LLM.
type MockLLM struct {
	mock.Mock
}

func (m *MockLLM) Generate(ctx context.Context, prompt string, opts ...core.GenerateOption) (*core.LLMResponse, error) {
	args := m.Called(ctx, prompt, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*core.LLMResponse), args.Error(1)
}

func (m *MockLLM) ModelID() string {
	return "mock-model"
}

func (m *MockLLM) ProviderName() string {
	return "mock"
}

// MockRunner is a mock implementation of core.AgentRunner.
type MockRunner struct {
	mock.Mock
}

func (m *MockRunner) Execute(ctx context.Context, instruction string, scenarioInput string) (*core.Trace, error) {
	args := m.Called(ctx, instruction, scenarioInput)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*core.Trace), args.Error(1)
}

// ScriptedRunner returns canned outputs keyed by scenario input, recording
// every call. Unknown inputs echo the input back.
type ScriptedRunner struct {
	mu      sync.Mutex
	Outputs map[string]string
	Calls   []string
}

func NewScriptedRunner(outputs map[string]string) *ScriptedRunner {
	return &ScriptedRunner{Outputs: outputs}
}

func (r *ScriptedRunner) Execute(ctx context.Context, instruction string, scenarioInput string) (*core.Trace, error) {
	r.mu.Lock()
	r.Calls = append(r.Calls, scenarioInput)
	r.mu.Unlock()

	output, ok := r.Outputs[scenarioInput]
	if !ok {
		output = scenarioInput
	}
	return &core.Trace{Input: scenarioInput, Output: output}, nil
}

// CallCount returns how many scenario executions the runner served.
func (r *ScriptedRunner) CallCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Calls)
}

// PassingSuite builds a suite of n scenarios whose checkers pass when the
// trace output contains "ok".
func PassingSuite(n int) *core.Suite {
	return scriptedSuite(n, "ok")
}

// scriptedSuite builds n scenarios passing when output contains the needle.
func scriptedSuite(n int, needle string) *core.Suite {
	scenarios := make([]core.Scenario, n)
	for i := range scenarios {
		scenarios[i] = core.Scenario{
			ID:    scenarioID(i),
			Input: "input-" + scenarioID(i),
			Check: ContainsChecker(needle),
		}
	}
	suite, err := core.NewSuite(scenarios)
	if err != nil {
		panic(err)
	}
	return suite
}

// ContainsChecker passes when the trace output contains the needle.
func ContainsChecker(needle string) core.Checker {
	return func(trace *core.Trace) (bool, float64) {
		if trace != nil && contains(trace.Output, needle) {
			return true, 1.0
		}
		return false, 0.0
	}
}

func scenarioID(i int) string {
	return fmt.Sprintf("s%02d", i)
}

func contains(s, substr string) bool {
	if len(substr) == 0 {
		return true
	}
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
