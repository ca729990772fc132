package cache

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/tensorc/internal/ir"
	"github.com/roach88/tensorc/internal/lower"
)

// marshalDiagnostics converts diagnostics to canonical JSON TEXT.
func marshalDiagnostics(diags []lower.Diagnostic) (string, error) {
	list := make([]any, len(diags))
	for i, d := range diags {
		list[i] = map[string]any{
			"code":    d.Code,
			"level":   string(d.Level),
			"message": d.Message,
		}
	}
	data, err := ir.MarshalCanonical(list)
	if err != nil {
		return "", fmt.Errorf("marshal diagnostics: %w", err)
	}
	return string(data), nil
}

func unmarshalDiagnostics(data string) ([]lower.Diagnostic, error) {
	if data == "" || data == "[]" {
		return nil, nil
	}
	var diags []lower.Diagnostic
	if err := json.Unmarshal([]byte(data), &diags); err != nil {
		return nil, fmt.Errorf("unmarshal diagnostics: %w", err)
	}
	return diags, nil
}

// marshalFunction encodes a function's IR as canonical JSON TEXT.
func marshalFunction(fn *ir.Function) (string, error) {
	data, err := ir.MarshalCanonical(ir.EncodeNode(fn))
	if err != nil {
		return "", fmt.Errorf("marshal function: %w", err)
	}
	return string(data), nil
}
