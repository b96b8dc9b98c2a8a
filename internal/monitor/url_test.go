package monitor

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{in: "example.com", want: "https://example.com"},
		{in: "  example.com/path?q=1 ", want: "https://example.com/path?q=1"},
		{in: "http://example.com", want: "http://example.com"},
		{in: "HTTPS://Example.com", want: "https://Example.com"},
		{in: "httpbin.org/get", want: "https://httpbin.org/get"},
	}
	for _, tt := range tests {
		got, err := NormalizeURL(tt.in)
		require.NoError(t, err, tt.in)
		require.Equal(t, tt.want, got, tt.in)
	}
}

func TestNormalizeURLRejects(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"", "   ", "https://", "https:///path"} {
		_, err := NormalizeURL(in)
		require.Error(t, err, in)
		require.True(t, errors.Is(err, ErrInvalidSite), in)
	}
}
