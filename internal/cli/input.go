package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/Layr-Labs/entity-client/pkg/entity"
)

// ReadArg resolves a JSON argument: "-" reads stdin, "@path" reads a file,
// anything else is the JSON text itself.
func ReadArg(arg string, stdin io.Reader) ([]byte, error) {
	switch {
	case arg == "-":
		b, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return b, nil
	case strings.HasPrefix(arg, "@"):
		b, err := os.ReadFile(arg[1:])
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", arg[1:], err)
		}
		return b, nil
	default:
		return []byte(arg), nil
	}
}

// ParseObject validates that raw is a single JSON object.
func ParseObject(raw []byte) (json.RawMessage, error) {
	raw = bytes.TrimSpace(raw)
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
		return nil, fmt.Errorf("data must be a JSON object")
	}
	return json.RawMessage(raw), nil
}

// ParseFilters decodes a JSON array of filter conditions. Empty input means
// no conditions.
func ParseFilters(raw []byte) ([]entity.Filter, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, nil
	}
	var filters []entity.Filter
	if err := json.Unmarshal(raw, &filters); err != nil {
		return nil, fmt.Errorf("filter must be a JSON array of {field, op, value}: %w", err)
	}
	for i, f := range filters {
		if f.Field == "" || f.Op == "" {
			return nil, fmt.Errorf("filter %d: field and op are required", i)
		}
	}
	return filters, nil
}

// Op is one line of an apply file.
type Op struct {
	Op     string          `json:"op"`
	Entity string          `json:"entity"`
	Data   json.RawMessage `json:"data,omitempty"`
	Seq    int64           `json:"seq,omitempty"`
	Hard   bool            `json:"hard,omitempty"`
}

// ParseOps decodes the operations of an apply file. Only submit and delete
// can be queued in a transaction.
func ParseOps(raw []byte) ([]Op, error) {
	var ops []Op
	if err := json.Unmarshal(bytes.TrimSpace(raw), &ops); err != nil {
		return nil, fmt.Errorf("operations must be a JSON array: %w", err)
	}
	if len(ops) == 0 {
		return nil, fmt.Errorf("no operations")
	}
	for i, op := range ops {
		if op.Entity == "" {
			return nil, fmt.Errorf("operation %d: entity is required", i)
		}
		switch op.Op {
		case "submit":
			if _, err := ParseObject(op.Data); err != nil {
				return nil, fmt.Errorf("operation %d: %w", i, err)
			}
		case "delete":
			if op.Seq <= 0 {
				return nil, fmt.Errorf("operation %d: seq must be positive", i)
			}
		default:
			return nil, fmt.Errorf("operation %d: unknown op %q (want submit or delete)", i, op.Op)
		}
	}
	return ops, nil
}
