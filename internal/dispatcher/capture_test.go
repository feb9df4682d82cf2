package dispatcher

import (
	"strings"
	"testing"
)

func TestTailBuffer(t *testing.T) {
	tests := []struct {
		name   string
		writes []string
		max    int
		want   string
	}{
		{name: "under limit", writes: []string{"ab", "cd"}, max: 8, want: "abcd"},
		{name: "exact limit", writes: []string{"abcd"}, max: 4, want: "abcd"},
		{name: "keeps tail", writes: []string{"abc", "defg"}, max: 4, want: "...[truncated]\ndefg"},
		{name: "single large write", writes: []string{strings.Repeat("x", 10) + "end"}, max: 3, want: "...[truncated]\nend"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newTailBuffer(tt.max)
			for _, w := range tt.writes {
				if n, err := b.Write([]byte(w)); err != nil || n != len(w) {
					t.Fatalf("Write(%q) = %d, %v", w, n, err)
				}
			}
			if got := b.String(); got != tt.want {
				t.Fatalf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}
