package util

import "testing"

func TestSanitizeText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "plain utf8",
			input: "Johann Schmidt, b. 1852",
			want:  "Johann Schmidt, b. 1852",
		},
		{
			name:  "contains null byte",
			input: "Mar\x00ia",
			want:  "Maria",
		},
		{
			name:  "contains invalid utf8",
			input: string([]byte{'a', 0xff, 'b'}),
			want:  "ab",
		},
		{
			name:  "keeps accents",
			input: "Zoë Müller",
			want:  "Zoë Müller",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SanitizeText(tt.input)
			if got != tt.want {
				t.Fatalf("unexpected sanitized value: got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSanitizeTextPtr(t *testing.T) {
	if SanitizeTextPtr(nil) != nil {
		t.Fatal("expected nil for nil input")
	}
	in := "a\x00b"
	if got := SanitizeTextPtr(&in); got == nil || *got != "ab" {
		t.Fatalf("unexpected value: %v", got)
	}
}
