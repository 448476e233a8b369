package main

import "testing"

func TestOneLine(t *testing.T) {
	tests := []struct {
		in    string
		width int
		want  string
	}{
		{"plain", 10, "plain"},
		{"a\nb\r\nc", 0, "a⏎b⏎c"},
		{"tab\there", 0, "tab here"},
		{"abcdefghij", 5, "abcd…"},
		{"ééééé", 5, "ééééé"},
	}
	for _, tt := range tests {
		if got := oneLine(tt.in, tt.width); got != tt.want {
			t.Errorf("oneLine(%q, %d) = %q, want %q", tt.in, tt.width, got, tt.want)
		}
	}
}
