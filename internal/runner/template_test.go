package runner

import (
	"reflect"
	"testing"
)

func TestRenderTemplate(t *testing.T) {
	vars := map[string]string{"name": "Ada", "topic": "recursion"}
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain text", "no placeholders here", "no placeholders here"},
		{"single var", "Hello {{name}}", "Hello Ada"},
		{"spaced var", "Hello {{ name }}", "Hello Ada"},
		{"multiple vars", "{{name}} learns {{topic}}", "Ada learns recursion"},
		{"unknown var renders empty", "Hi {{nickname}}!", "Hi !"},
		{"repeated var", "{{name}} and {{name}}", "Ada and Ada"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := renderTemplate(tt.in, vars); got != tt.want {
				t.Fatalf("renderTemplate(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestTemplateVarNames(t *testing.T) {
	got := templateVarNames("{{a}} then {{b}} then {{a}} again")
	want := []string{"a", "b"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("templateVarNames = %v, want %v", got, want)
	}
	if names := templateVarNames("nothing"); names != nil {
		t.Fatalf("templateVarNames = %v, want nil", names)
	}
}

func TestChunkRunes(t *testing.T) {
	tests := []struct {
		name string
		text string
		size int
		want []string
	}{
		{"empty", "", 4, nil},
		{"zero size yields whole text", "abcdef", 0, []string{"abcdef"}},
		{"even split", "abcdef", 3, []string{"abc", "def"}},
		{"remainder", "abcde", 2, []string{"ab", "cd", "e"}},
		{"multibyte runes stay whole", "日本語テキスト", 2, []string{"日本", "語テ", "キス", "ト"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := chunkRunes(tt.text, tt.size); !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("chunkRunes(%q, %d) = %v, want %v", tt.text, tt.size, got, tt.want)
			}
		})
	}
}
