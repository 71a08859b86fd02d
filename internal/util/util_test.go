package util

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSlugify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Gaming Laptops", "gaming-laptops"},
		{"  ASUS ROG 16\" (2024)  ", "asus-rog-16-2024"},
		{"already-slugged", "already-slugged"},
		{"___", ""},
		{"", ""},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, Slugify(tt.in), tt.in)
	}
}

func TestCalculate(t *testing.T) {
	from, limit := Calculate(1, 10)
	require.Equal(t, 0, from)
	require.Equal(t, 10, limit)

	from, limit = Calculate(3, 20)
	require.Equal(t, 40, from)
	require.Equal(t, 20, limit)

	// Out-of-range inputs fall back to defaults.
	from, limit = Calculate(0, 0)
	require.Equal(t, 0, from)
	require.Equal(t, DefaultPageSize, limit)

	_, limit = Calculate(1, 1000)
	require.Equal(t, DefaultPageSize, limit)
}
