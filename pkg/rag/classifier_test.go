package rag

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		input string
		want  QueryType
	}{
		{"How does X work?", QueryQuestion},
		{"photosynthesis", QueryStringSearch},
		{"climate change report 2023 summary", QueryQuestion},
		{"explain the architecture", QueryQuestion},
		{"ERROR_CODE_42", QueryStringSearch},
		{"main.go", QueryStringSearch},
		{"is this safe", QueryQuestion},
		{"anything at all?", QueryQuestion},
		{"", QueryStringSearch},
		{"   ", QueryStringSearch},
		{"two words", QueryStringSearch},
		{"WHAT uppercase leading word", QueryQuestion},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.input), "input: %q", tt.input)
	}
}
