package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tidwall/sjson"

	"github.com/toolforge/agentgraph/internal/apperr"
	"github.com/toolforge/agentgraph/internal/engine/emit"
	"github.com/toolforge/agentgraph/internal/engine/model"
	"github.com/toolforge/agentgraph/internal/skill"
	"github.com/toolforge/agentgraph/internal/workflow"
)

// Evaluator runs a single node kind against its gathered upstream inputs
// and returns the value to record at that node's id in RunState. It
// generalizes the teacher's Node[S] interface (graph/node.go) — which runs
// against a caller-defined generic state — into five fixed evaluators, one
// per workflow.NodeType, since this service's node vocabulary is closed.
type Evaluator interface {
	Evaluate(ctx context.Context, n workflow.Node, inputs map[string]interface{}) (interface{}, error)
}

// EvaluatorFunc adapts a function to Evaluator, mirroring the teacher's
// NodeFunc[S] adapter (graph/node.go).
type EvaluatorFunc func(ctx context.Context, n workflow.Node, inputs map[string]interface{}) (interface{}, error)

func (f EvaluatorFunc) Evaluate(ctx context.Context, n workflow.Node, inputs map[string]interface{}) (interface{}, error) {
	return f(ctx, n, inputs)
}

// Evaluators bundles one Evaluator per node kind plus the services the LLM
// and Skill evaluators need to do real work.
type Evaluators struct {
	Chat    model.ChatModel
	Invoker *skill.Invoker
	Skills  *skill.Registry
	Emitter emit.Emitter
}

// Evaluate dispatches n to the evaluator for its Type.
func (e *Evaluators) Evaluate(ctx context.Context, n workflow.Node, inputs map[string]interface{}) (interface{}, error) {
	switch n.Type {
	case workflow.NodeInput:
		return e.evalInput(n, inputs)
	case workflow.NodeLLM:
		return e.evalLLM(ctx, n, inputs)
	case workflow.NodeSkill:
		return e.evalSkill(ctx, n, inputs)
	case workflow.NodeTransform:
		return evalTransform(n, inputs)
	case workflow.NodeOutput:
		return e.evalOutput(n, inputs)
	default:
		return nil, apperr.New(apperr.KindValidation, fmt.Sprintf("node %q has unknown type %q", n.ID, n.Type)).WithNode(n.ID, 0)
	}
}

// evalInput returns the externally supplied value for this input slot
// (already seeded into RunState at Input node id by NewRunState), falling
// back to the node's configured default.
func (e *Evaluators) evalInput(n workflow.Node, inputs map[string]interface{}) (interface{}, error) {
	if v, ok := inputs[n.ID]; ok {
		return v, nil
	}
	return n.InputDefault, nil
}

// evalLLM composes the node's system prompt and prompt template (with
// upstream values interpolated) into a one-shot chat call.
func (e *Evaluators) evalLLM(ctx context.Context, n workflow.Node, inputs map[string]interface{}) (interface{}, error) {
	if e.Chat == nil {
		return nil, apperr.New(apperr.KindInfrastructure, "no chat model configured").WithNode(n.ID, 0)
	}
	prompt := transformTemplate(workflow.Node{Template: n.Prompt}, inputs)

	var messages []model.Message
	if n.SystemPrompt != "" {
		messages = append(messages, model.Message{Role: model.RoleSystem, Content: n.SystemPrompt})
	}
	messages = append(messages, model.Message{Role: model.RoleUser, Content: prompt})

	out, err := e.Chat.Chat(ctx, messages, model.ChatOptions{
		Model:       n.Model,
		Temperature: n.Temperature,
		JSONOutput:  n.JSONOutput,
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindExecution, "llm call failed", err).WithNode(n.ID, 0)
	}
	if e.Emitter != nil {
		e.Emitter.Emit(emit.Event{NodeID: n.ID, Kind: emit.KindToken, At: time.Now().UTC(), Payload: map[string]interface{}{"text": out.Text}})
	}

	if n.JSONOutput {
		var parsed interface{}
		if err := json.Unmarshal([]byte(out.Text), &parsed); err != nil {
			repaired, rerr := e.repairJSON(ctx, messages, out.Text, n)
			if rerr != nil {
				return nil, apperr.Wrap(apperr.KindExecution, "llm json_output did not parse", err).WithCode("LLMFormatError").WithNode(n.ID, 0)
			}
			return repaired, nil
		}
		return parsed, nil
	}
	return out.Text, nil
}

// repairJSON attempts spec.md §4.3/§8's one-shot repair pass: a leading
// non-JSON preamble (or other malformed output) gets a single follow-up
// turn asking the model to return the same content as bare JSON, then is
// parsed exactly once more. Any further failure is final.
func (e *Evaluators) repairJSON(ctx context.Context, priorMessages []model.Message, badOutput string, n workflow.Node) (interface{}, error) {
	repairMessages := append(append([]model.Message{}, priorMessages...),
		model.Message{Role: model.RoleAssistant, Content: badOutput},
		model.Message{Role: model.RoleUser, Content: "That was not valid JSON. Reply again with only the corrected JSON value, no surrounding text."},
	)
	out, err := e.Chat.Chat(ctx, repairMessages, model.ChatOptions{
		Model:       n.Model,
		Temperature: n.Temperature,
		JSONOutput:  n.JSONOutput,
	})
	if err != nil {
		return nil, err
	}
	var parsed interface{}
	if err := json.Unmarshal([]byte(out.Text), &parsed); err != nil {
		return nil, err
	}
	return parsed, nil
}

// evalSkill resolves the Skill node's skill_id, merges upstream inputs into
// a JSON call body via sjson (so a node with multiple upstream edges
// produces one structured payload keyed by source node id, rather than an
// arbitrary single value), and invokes it.
func (e *Evaluators) evalSkill(ctx context.Context, n workflow.Node, inputs map[string]interface{}) (interface{}, error) {
	if e.Skills == nil || e.Invoker == nil {
		return nil, apperr.New(apperr.KindInfrastructure, "no skill registry/invoker configured").WithNode(n.ID, 0)
	}
	s, err := e.Skills.Get(ctx, n.SkillID)
	if err != nil {
		return nil, err
	}

	body := "{}"
	for key, v := range inputs {
		body, err = sjson.Set(body, key, v)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindValidation, "compose skill input", err).WithNode(n.ID, 0)
		}
	}
	var payload map[string]interface{}
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		return nil, apperr.Wrap(apperr.KindExecution, "skill input was not an object", err).WithNode(n.ID, 0)
	}

	out, err := e.Invoker.Invoke(ctx, *s, payload)
	if err != nil {
		if appErr, ok := err.(*apperr.Error); ok {
			return nil, appErr.WithNode(n.ID, 0)
		}
		return nil, err
	}
	return out, nil
}

// evalOutput formats the collected upstream value per the node's Format.
func (e *Evaluators) evalOutput(n workflow.Node, inputs map[string]interface{}) (interface{}, error) {
	v := firstValue(inputs)
	switch n.Format {
	case workflow.OutputJSON:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindExecution, "output: marshal failed", err).WithNode(n.ID, 0)
		}
		return string(b), nil
	case workflow.OutputText, workflow.OutputMarkdown:
		return stringify(v), nil
	case workflow.OutputAuto, "":
		if s, ok := v.(string); ok {
			return s, nil
		}
		b, err := json.Marshal(v)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindExecution, "output: marshal failed", err).WithNode(n.ID, 0)
		}
		return string(b), nil
	default:
		return nil, apperr.New(apperr.KindValidation, fmt.Sprintf("output node %q has unknown format %q", n.ID, n.Format)).WithNode(n.ID, 0)
	}
}
