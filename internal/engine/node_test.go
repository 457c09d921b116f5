package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toolforge/agentgraph/internal/apperr"
	"github.com/toolforge/agentgraph/internal/engine/model"
	"github.com/toolforge/agentgraph/internal/workflow"
)

// sequenceChatModel returns replies in order, one per call, regardless of
// the messages sent — used to drive the LLM node's JSON repair pass
// deterministically (first reply malformed, second reply fixed).
type sequenceChatModel struct {
	replies []string
	calls   int
}

func (f *sequenceChatModel) Chat(ctx context.Context, messages []model.Message, opts model.ChatOptions) (model.ChatOut, error) {
	i := f.calls
	if i >= len(f.replies) {
		i = len(f.replies) - 1
	}
	f.calls++
	return model.ChatOut{Text: f.replies[i]}, nil
}

func TestEvaluators_EvalLLM_JSONOutputParsesCleanly(t *testing.T) {
	chat := &sequenceChatModel{replies: []string{`{"ok":true}`}}
	e := &Evaluators{Chat: chat}
	n := workflow.Node{ID: "llm", Type: workflow.NodeLLM, Prompt: "hi", JSONOutput: true}

	out, err := e.evalLLM(context.Background(), n, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"ok": true}, out)
	assert.Equal(t, 1, chat.calls)
}

func TestEvaluators_EvalLLM_JSONOutputRepairsOnPreamble(t *testing.T) {
	chat := &sequenceChatModel{replies: []string{
		`Sure, here you go: {"ok":true}`,
		`{"ok":true}`,
	}}
	e := &Evaluators{Chat: chat}
	n := workflow.Node{ID: "llm", Type: workflow.NodeLLM, Prompt: "hi", JSONOutput: true}

	out, err := e.evalLLM(context.Background(), n, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"ok": true}, out)
	assert.Equal(t, 2, chat.calls, "a malformed first reply must trigger exactly one repair call")
}

func TestEvaluators_EvalLLM_JSONOutputFailsAfterOneRepairAttempt(t *testing.T) {
	chat := &sequenceChatModel{replies: []string{
		`not json at all`,
		`still not json`,
	}}
	e := &Evaluators{Chat: chat}
	n := workflow.Node{ID: "llm", Type: workflow.NodeLLM, Prompt: "hi", JSONOutput: true}

	_, err := e.evalLLM(context.Background(), n, nil)
	require.Error(t, err)
	assert.Equal(t, 2, chat.calls, "repair is attempted exactly once, not retried further")

	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "LLMFormatError", appErr.Code)
}
