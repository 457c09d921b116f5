package engine

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/toolforge/agentgraph/internal/apperr"
	"github.com/toolforge/agentgraph/internal/workflow"
)

// templateVar matches {{name}} placeholders in a Transform node's Template
// field, substituted from upstream node outputs by node id.
var templateVar = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_.-]+)\s*\}\}`)

// evalTransform applies a Transform node's pure, deterministic
// mapping over its upstream inputs. spec.md's Transform node is explicit
// that "pure transforms never retry" (no I/O, no nondeterminism), so this
// function never touches a clock, RNG, or network — every kind is a total
// function of `inputs`.
func evalTransform(n workflow.Node, inputs map[string]interface{}) (interface{}, error) {
	switch n.TransformKind {
	case workflow.TransformPassthrough:
		return firstValue(inputs), nil

	case workflow.TransformExtract:
		return transformExtract(n, inputs)

	case workflow.TransformTemplate:
		return transformTemplate(n, inputs), nil

	case workflow.TransformJSONParse:
		return transformJSONParse(n, inputs)

	case workflow.TransformJSONStringify:
		return transformJSONStringify(inputs)

	case workflow.TransformArrayJoin:
		return transformArrayJoin(n, inputs)

	default:
		return nil, apperr.New(apperr.KindValidation, fmt.Sprintf("transform node %q has unsupported kind %q", n.ID, n.TransformKind)).WithNode(n.ID, 0)
	}
}

func firstValue(inputs map[string]interface{}) interface{} {
	for _, v := range inputs {
		return v
	}
	return nil
}

// transformExtract reads n.Field as a gjson dotted path out of the
// upstream JSON value, e.g. "response.choices.0.text".
func transformExtract(n workflow.Node, inputs map[string]interface{}) (interface{}, error) {
	raw, err := toJSONString(firstValue(inputs))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindExecution, "extract: input not JSON-serializable", err).WithNode(n.ID, 0)
	}
	result := gjson.Get(raw, n.Field)
	if !result.Exists() {
		return nil, apperr.New(apperr.KindExecution, fmt.Sprintf("extract: field %q not found", n.Field)).WithNode(n.ID, 0)
	}
	return result.Value(), nil
}

// transformTemplate substitutes {{nodeID}} placeholders in n.Template with
// each upstream node's string representation.
func transformTemplate(n workflow.Node, inputs map[string]interface{}) string {
	return templateVar.ReplaceAllStringFunc(n.Template, func(match string) string {
		name := strings.TrimSpace(match[2 : len(match)-2])
		v, ok := inputs[name]
		if !ok {
			return match
		}
		return stringify(v)
	})
}

func transformJSONParse(n workflow.Node, inputs map[string]interface{}) (interface{}, error) {
	s, ok := firstValue(inputs).(string)
	if !ok {
		return nil, apperr.New(apperr.KindExecution, "json_parse: input is not a string").WithNode(n.ID, 0)
	}
	var out interface{}
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, apperr.Wrap(apperr.KindExecution, "json_parse: invalid JSON", err).WithNode(n.ID, 0)
	}
	return out, nil
}

func transformJSONStringify(inputs map[string]interface{}) (interface{}, error) {
	b, err := json.Marshal(firstValue(inputs))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindExecution, "json_stringify: marshal failed", err)
	}
	return string(b), nil
}

func transformArrayJoin(n workflow.Node, inputs map[string]interface{}) (interface{}, error) {
	v := firstValue(inputs)
	arr, ok := v.([]interface{})
	if !ok {
		return nil, apperr.New(apperr.KindExecution, "array_join: input is not an array").WithNode(n.ID, 0)
	}
	sep := n.Separator
	if sep == "" {
		sep = ","
	}
	parts := make([]string, len(arr))
	for i, item := range arr {
		parts[i] = stringify(item)
	}
	return strings.Join(parts, sep), nil
}

func stringify(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(b)
	}
}

func toJSONString(v interface{}) (string, error) {
	if s, ok := v.(string); ok && gjson.Valid(s) {
		return s, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
