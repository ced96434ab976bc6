package raster

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPageNumber(t *testing.T) {
	tests := []struct {
		name string
		num  int
		ok   bool
	}{
		{"page-1.png", 1, true},
		{"page-07.png", 7, true},
		{"page-123.png", 123, true},
		{"page-.png", 0, false},
		{"cover.png", 0, false},
		{"page-1.ppm", 0, false},
	}
	for _, tt := range tests {
		n, ok := pageNumber(tt.name)
		assert.Equal(t, tt.ok, ok, tt.name)
		if ok {
			assert.Equal(t, tt.num, n, tt.name)
		}
	}
}

func TestNew_Defaults(t *testing.T) {
	r := New("", 0)
	assert.Equal(t, "pdftoppm", r.binPath)
	assert.Equal(t, 150, r.dpi)
}

func TestRender_MissingBinary(t *testing.T) {
	r := New("definitely-not-a-real-binary", 150)
	_, err := r.Render(context.Background(), "nope.pdf")
	assert.Error(t, err)
}
