package runners

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/XiaoConstantine/gepa-go/internal/testutil"
	"github.com/XiaoConstantine/gepa-go/pkg/core"
	"github.com/XiaoConstantine/gepa-go/pkg/errors"
)

func TestNewLLMRunnerRequiresLLM(t *testing.T) {
	_, err := NewLLMRunner(nil)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.InvalidInput))
}

func TestExecuteComposesPrompt(t *testing.T) {
	llm := new(testutil.MockLLM)
	var captured string
	llm.On("Generate", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { captured = args.String(1) }).
		Return(&core.LLMResponse{Content: "the answer"}, nil).Once()

	runner, err := NewLLMRunner(llm)
	require.NoError(t, err)

	trace, err := runner.Execute(context.Background(), "be terse", "what is 2+2?")
	require.NoError(t, err)

	assert.Equal(t, "what is 2+2?", trace.Input)
	assert.Equal(t, "the answer", trace.Output)
	assert.Contains(t, captured, "be terse")
	assert.Contains(t, captured, "what is 2+2?")
	llm.AssertExpectations(t)
}

func TestExecutePropagatesGenerationErrors(t *testing.T) {
	llm := new(testutil.MockLLM)
	llm.On("Generate", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New(errors.LLMGenerationFailed, "overloaded")).Once()

	runner, err := NewLLMRunner(llm)
	require.NoError(t, err)

	_, err = runner.Execute(context.Background(), "be terse", "task")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.LLMGenerationFailed))
}
