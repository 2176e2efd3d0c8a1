package deepgram

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/kaptinlin/jsonrepair"
)

// Function is a client-side function the voice agent may call. Register
// functions on VoiceAgentConfig.Functions and include their Config in the
// think settings; matching FunctionCallRequests are then answered
// automatically.
type Function struct {
	Name        string
	Description string
	Parameters  *jsonschema.Schema

	invoke func(ctx context.Context, call *FunctionCall) (string, error)
}

// NewFunction creates a Function whose parameter schema is inferred from
// Args. fn's result is sent back as the response content: strings as-is,
// anything else as JSON.
//
// Example:
//
//	type weatherArgs struct {
//	    City string `json:"city" jsonschema:"the city name"`
//	}
//	fn, err := deepgram.NewFunction("get_weather", "Look up the weather",
//	    func(ctx context.Context, args weatherArgs) (any, error) {
//	        return map[string]string{"city": args.City, "sky": "clear"}, nil
//	    })
func NewFunction[Args any](name, description string, fn func(ctx context.Context, args Args) (any, error)) (*Function, error) {
	schema, err := jsonschema.For[Args](nil)
	if err != nil {
		return nil, fmt.Errorf("deepgram: schema for %s: %w", name, err)
	}
	return &Function{
		Name:        name,
		Description: description,
		Parameters:  schema,
		invoke: func(ctx context.Context, call *FunctionCall) (string, error) {
			var args Args
			if err := call.DecodeArguments(&args); err != nil {
				return "", err
			}
			result, err := fn(ctx, args)
			if err != nil {
				return "", err
			}
			if s, ok := result.(string); ok {
				return s, nil
			}
			data, err := json.Marshal(result)
			if err != nil {
				return "", fmt.Errorf("deepgram: marshal %s result: %w", name, err)
			}
			return string(data), nil
		},
	}, nil
}

// MustNewFunction is like NewFunction but panics on error.
func MustNewFunction[Args any](name, description string, fn func(ctx context.Context, args Args) (any, error)) *Function {
	f, err := NewFunction(name, description, fn)
	if err != nil {
		panic(err)
	}
	return f
}

// Config returns the function declaration for AgentThinkConfig.Functions.
func (f *Function) Config() AgentFunctionConfig {
	return AgentFunctionConfig{
		Name:        f.Name,
		Description: f.Description,
		Parameters:  f.Parameters,
	}
}

// Call runs the function for call.
func (f *Function) Call(ctx context.Context, call *FunctionCall) (string, error) {
	return f.invoke(ctx, call)
}

// DecodeArguments unmarshals the call arguments into v. Malformed JSON, as
// language models sometimes produce, is repaired before giving up.
func (c *FunctionCall) DecodeArguments(v any) error {
	args := c.Arguments
	if args == "" {
		args = "{}"
	}
	err := json.Unmarshal([]byte(args), v)
	if err == nil {
		return nil
	}
	if _, ok := err.(*json.SyntaxError); !ok {
		return fmt.Errorf("deepgram: decode %s arguments: %w", c.Name, err)
	}
	fixed, rerr := jsonrepair.JSONRepair(args)
	if rerr != nil {
		return fmt.Errorf("deepgram: decode %s arguments: %w", c.Name, err)
	}
	if err := json.Unmarshal([]byte(fixed), v); err != nil {
		return fmt.Errorf("deepgram: decode %s arguments: %w", c.Name, err)
	}
	return nil
}

// Functions is a set of client-side functions.
type Functions []*Function

// Lookup returns the function with the given name, or nil.
func (fs Functions) Lookup(name string) *Function {
	for _, f := range fs {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// Configs returns the declarations of all functions.
func (fs Functions) Configs() []AgentFunctionConfig {
	out := make([]AgentFunctionConfig, 0, len(fs))
	for _, f := range fs {
		out = append(out, f.Config())
	}
	return out
}
