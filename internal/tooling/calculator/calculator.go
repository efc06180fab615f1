// Package calculator implements the Calculator tool: stateless
// compute/check actions over arithmetic expressions, grounded on
// ProximaTool::Calculator in the original implementation.
package calculator

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/pedrow21/proxima/pkg/models"
)

// Tool implements tooling.Impl for Calculator. It carries no persistent
// state, matching get_empty_data returning None for this kind.
type Tool struct{}

func (Tool) Kind() models.ToolKind { return models.ToolCalculator }
func (Tool) Actions() []string     { return []string{"compute", "check"} }

func (Tool) Invoke(_ context.Context, action, input string, _ models.ToolState) (string, models.ToolState, error) {
	lines := splitLines(input)
	if len(lines) == 0 {
		return "", nil, fmt.Errorf("at least one line is required")
	}
	switch action {
	case "compute":
		return compute(lines)
	case "check":
		return check(lines)
	default:
		return "", nil, fmt.Errorf("unsupported action %q", action)
	}
}

func compute(lines []string) (string, models.ToolState, error) {
	var out strings.Builder
	for _, line := range lines {
		value, err := eval(line)
		if err != nil {
			return "", nil, fmt.Errorf("%q: %w", line, err)
		}
		fmt.Fprintf(&out, "%s = %.4f\n", line, value)
	}
	return strings.TrimSpace(out.String()), nil, nil
}

var comparators = []struct {
	symbol string
	want   int // result of total-order compare(lhs, rhs)
}{
	{">", 1},
	{"<", -1},
	{"=", 0},
}

func check(lines []string) (string, models.ToolState, error) {
	var out strings.Builder
lines:
	for _, line := range lines {
		for _, comp := range comparators {
			idx := strings.Index(line, comp.symbol)
			if idx < 0 {
				continue
			}
			left := strings.TrimSpace(line[:idx])
			right := strings.TrimSpace(line[idx+len(comp.symbol):])
			lv, err := eval(left)
			if err != nil {
				return "", nil, fmt.Errorf("%q: %w", left, err)
			}
			rv, err := eval(right)
			if err != nil {
				return "", nil, fmt.Errorf("%q: %w", right, err)
			}
			result := totalCompare(lv, rv) == comp.want
			fmt.Fprintf(&out, "%s -> %s\n", line, boolWord(result))
			continue lines
		}
		return "", nil, fmt.Errorf("%q: no comparator (<, >, =) found", line)
	}
	return strings.TrimSpace(out.String()), nil, nil
}

func boolWord(b bool) string {
	if b {
		return "TRUE"
	}
	return "FALSE"
}

// totalCompare mirrors f64::total_cmp: a total ordering over floats
// (including NaN) rather than the partial ordering of plain <, >.
func totalCompare(a, b float64) int {
	ka, kb := int64(math.Float64bits(a)), int64(math.Float64bits(b))
	ka ^= int64(uint64(ka>>63) >> 1)
	kb ^= int64(uint64(kb>>63) >> 1)
	switch {
	case ka < kb:
		return -1
	case ka > kb:
		return 1
	default:
		return 0
	}
}

func splitLines(input string) []string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return nil
	}
	raw := strings.Split(trimmed, "\n")
	out := make([]string, 0, len(raw))
	for _, l := range raw {
		l = strings.TrimSpace(l)
		if l != "" {
			out = append(out, l)
		}
	}
	return out
}
