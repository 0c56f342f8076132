package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanString(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		lower bool
		want  string
	}{
		{name: "blank", in: " \t\n ", want: ""},
		{name: "trimmed", in: "  Paris ", want: "Paris"},
		{name: "trimmed & lowered", in: "  Paris ", lower: true, want: "paris"},
		{name: "inner spaces kept", in: " São  Paulo", want: "São  Paulo"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanString(tt.in, tt.lower))
		})
	}
}
