package handlers

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/lyzr/agentflow/common/models"
)

// IfElseHandler compares two resolved values and routes to the "true"
// or "false" branch. When both sides parse as numbers the comparison
// is numeric, otherwise lexicographic on the string forms. A missing
// branch edge simply terminates that path.
type IfElseHandler struct{}

func NewIfElseHandler() *IfElseHandler { return &IfElseHandler{} }

func (h *IfElseHandler) Type() models.NodeType { return models.NodeIfElse }

func (h *IfElseHandler) Execute(ctx context.Context, node *models.Node, hctx *Context) (*Result, error) {
	lhsRaw, err := rawString(node.Config, "lhs")
	if err != nil {
		return nil, err
	}
	rhsRaw, err := rawString(node.Config, "rhs")
	if err != nil {
		return nil, err
	}
	op, err := rawString(node.Config, "condition")
	if err != nil {
		return nil, err
	}

	lhs := hctx.Resolver.Value(lhsRaw)
	rhs := hctx.Resolver.Value(rhsRaw)

	lhsNum, lhsOK := toNumber(lhs)
	rhsNum, rhsOK := toNumber(rhs)

	var truth bool
	var lhsValue, rhsValue any

	if lhsOK && rhsOK {
		truth, err = compareNumbers(lhsNum, rhsNum, op)
		lhsValue, rhsValue = lhsNum, rhsNum
	} else {
		truth, err = compareStrings(stringForm(lhs), stringForm(rhs), op)
		lhsValue, rhsValue = stringForm(lhs), stringForm(rhs)
	}
	if err != nil {
		return nil, err
	}

	outcome := "false"
	if truth {
		outcome = "true"
	}

	return &Result{
		Output: merge(hctx.Input, map[string]any{
			"condition": truth,
			"lhs_value": lhsValue,
			"rhs_value": rhsValue,
			"operator":  op,
		}),
		Next: hctx.Graph.NextNodes(node.ID, outcome),
	}, nil
}

func rawString(cfg map[string]any, key string) (string, error) {
	raw, ok := cfg[key]
	if !ok || raw == nil {
		return "", fmt.Errorf("missing required config field %q", key)
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("config field %q must be a string", key)
	}
	return s, nil
}

func toNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case bool:
		return 0, false
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func stringForm(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func compareNumbers(lhs, rhs float64, op string) (bool, error) {
	switch op {
	case ">":
		return lhs > rhs, nil
	case "<":
		return lhs < rhs, nil
	case ">=":
		return lhs >= rhs, nil
	case "<=":
		return lhs <= rhs, nil
	case "=", "==":
		return lhs == rhs, nil
	case "!=":
		return lhs != rhs, nil
	default:
		return false, fmt.Errorf("unknown condition operator %q", op)
	}
}

func compareStrings(lhs, rhs, op string) (bool, error) {
	switch op {
	case ">":
		return lhs > rhs, nil
	case "<":
		return lhs < rhs, nil
	case ">=":
		return lhs >= rhs, nil
	case "<=":
		return lhs <= rhs, nil
	case "=", "==":
		return lhs == rhs, nil
	case "!=":
		return lhs != rhs, nil
	default:
		return false, fmt.Errorf("unknown condition operator %q", op)
	}
}
