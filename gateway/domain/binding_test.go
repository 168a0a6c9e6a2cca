package domain

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRouteBinding_Normalizes(t *testing.T) {
	b, err := NewRouteBinding(" /users/ ", "http://backend.example/users?x=1", false)
	require.NoError(t, err)

	assert.Equal(t, "/users", b.Prefix)
	assert.Equal(t, "backend.example", b.Target.Host)
	assert.Equal(t, "/users", b.Target.Path)
	assert.Empty(t, b.Target.RawQuery)
}

func TestNewRouteBinding_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
		target string
	}{
		{"empty prefix", "", "http://a"},
		{"relative prefix", "users", "http://a"},
		{"missing scheme", "/users", "backend.example/users"},
		{"unsupported scheme", "/users", "ftp://backend.example"},
		{"missing host", "/users", "http:///users"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRouteBinding(tt.prefix, tt.target, false)
			assert.Error(t, err)
		})
	}
}

func TestRouteBinding_Matches(t *testing.T) {
	b, err := NewRouteBinding("/users", "http://backend.example", false)
	require.NoError(t, err)

	tests := []struct {
		path string
		want bool
	}{
		{"/users", true},
		{"/users/", true},
		{"/users/42", true},
		{"/users/42/posts", true},
		{"/usersx", false},
		{"/user", false},
		{"/", false},
		{"/auth/users", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, b.Matches(tt.path))
		})
	}
}

func TestRouteBinding_StripPrefix(t *testing.T) {
	b, err := NewRouteBinding("/users", "http://backend.example", false)
	require.NoError(t, err)

	assert.Equal(t, "/42", b.StripPrefix("/users/42"))
	assert.Equal(t, "/", b.StripPrefix("/users"))
	assert.Equal(t, "/", b.StripPrefix("/users/"))

	root, err := NewRouteBinding("/", "http://backend.example", false)
	require.NoError(t, err)
	assert.True(t, root.Matches("/anything/here"))
	assert.Equal(t, "/anything/here", root.StripPrefix("/anything/here"))
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, 404, StatusFor(ErrNotFound))
	assert.Equal(t, 429, StatusFor(fmt.Errorf("client 10.0.0.1: %w", ErrRateLimited)))
	assert.Equal(t, 504, StatusFor(ErrTimeout))
	assert.Equal(t, 504, StatusFor(ErrBackendUnreachable))
	assert.Equal(t, 503, StatusFor(ErrUnavailable))
}
