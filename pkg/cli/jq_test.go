package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
)

func TestFilter(t *testing.T) {
	tests := []struct {
		name  string
		input any
		expr  string
		want  []any
	}{
		{
			name:  "struct through json tags",
			input: struct{ Transcript string `json:"transcript"` }{"hello"},
			expr:  ".transcript",
			want:  []any{"hello"},
		},
		{
			name:  "raw json body",
			input: json.RawMessage(`{"results":{"channels":[{"alternatives":[{"transcript":"a"}]}]}}`),
			expr:  ".results.channels[0].alternatives[0].transcript",
			want:  []any{"a"},
		},
		{
			name:  "bytes that are json",
			input: []byte(`[1,2,3]`),
			expr:  "map(. * 2) | add",
			want:  []any{float64(12)},
		},
		{
			name:  "bytes that are not json",
			input: []byte("plain"),
			expr:  "ascii_upcase",
			want:  []any{"PLAIN"},
		},
		{
			name:  "empty",
			input: map[string]any{"a": 1},
			expr:  "empty",
			want:  nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, err := ParseQuery(tt.expr)
			if err != nil {
				t.Fatal(err)
			}
			got, err := Filter(context.Background(), code, tt.input)
			if err != nil {
				t.Fatalf("Filter error: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("Filter = %v, want %v", got, tt.want)
			}
			for i := range got {
				if fmt.Sprint(got[i]) != fmt.Sprint(tt.want[i]) {
					t.Errorf("Filter[%d] = %#v, want %#v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestFilter_RuntimeError(t *testing.T) {
	code, err := ParseQuery(".a.b")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Filter(context.Background(), code, map[string]any{"a": "str"}); err == nil {
		t.Error("Filter should fail when indexing a string")
	}
}

func TestParseQuery_Invalid(t *testing.T) {
	if _, err := ParseQuery("{"); err == nil {
		t.Error("ParseQuery should fail")
	}
	if _, err := ParseQuery("$undefined"); err == nil {
		t.Error("ParseQuery should fail to compile an undefined variable")
	}
}
