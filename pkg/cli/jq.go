package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/itchyny/gojq"
)

// ParseQuery compiles a jq expression for use with Filter.
func ParseQuery(expr string) (*gojq.Code, error) {
	query, err := gojq.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid jq expression %q: %w", expr, err)
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return nil, fmt.Errorf("invalid jq expression %q: %w", expr, err)
	}
	return code, nil
}

// Filter runs a compiled jq program over result and returns every value it
// emits. result is converted to plain JSON values first, so structs are
// seen through their json tags.
func Filter(ctx context.Context, code *gojq.Code, result any) ([]any, error) {
	input, err := toJSONValue(result)
	if err != nil {
		return nil, err
	}
	var out []any
	iter := code.RunWithContext(ctx, input)
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, ok := v.(error); ok {
			if err, ok := err.(*gojq.HaltError); ok && err.Value() == nil {
				break
			}
			return nil, fmt.Errorf("jq: %w", err)
		}
		out = append(out, v)
	}
	return out, nil
}

func toJSONValue(v any) (any, error) {
	var data []byte
	switch v := v.(type) {
	case json.RawMessage:
		data = v
	case []byte:
		// Raw bytes are usually a JSON response body.
		if json.Valid(v) {
			data = v
		} else {
			return string(v), nil
		}
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("jq: marshal input: %w", err)
		}
		data = b
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("jq: decode input: %w", err)
	}
	return out, nil
}
