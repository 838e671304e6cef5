package ai

import (
	"testing"
)

func TestChatResult_FirstText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		blocks []string
		want   string
	}{
		{name: "first non-empty wins", blocks: []string{"", "  ", "hello", "world"}, want: "hello"},
		{name: "no blocks", blocks: nil, want: ""},
		{name: "all blank", blocks: []string{"", "   "}, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &ChatResult{TextBlocks: tt.blocks}
			if got := r.FirstText(); got != tt.want {
				t.Errorf("FirstText() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestChatResult_AllText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		blocks []string
		want   string
	}{
		{name: "joins with newline", blocks: []string{"one", "", "two"}, want: "one\ntwo"},
		{name: "fallback on empty", blocks: nil, want: NoTextFallback},
		{name: "fallback on blank", blocks: []string{" ", ""}, want: NoTextFallback},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &ChatResult{TextBlocks: tt.blocks}
			if got := r.AllText(); got != tt.want {
				t.Errorf("AllText() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractJSONObject(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "clean object", raw: `{"a":1}`, want: `{"a":1}`},
		{name: "prose around object", raw: "Sure! Here it is:\n{\"a\":1}\nHope that helps.", want: `{"a":1}`},
		{name: "no braces", raw: "nothing here", want: "nothing here"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractJSONObject(tt.raw); got != tt.want {
				t.Errorf("ExtractJSONObject(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestExtractJSONArray(t *testing.T) {
	t.Parallel()

	raw := "Here are the suggestions:\n[{\"kind\":\"rename_bucket\"}]"
	want := `[{"kind":"rename_bucket"}]`
	if got := ExtractJSONArray(raw); got != want {
		t.Errorf("ExtractJSONArray() = %q, want %q", got, want)
	}
}
