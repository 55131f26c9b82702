package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsValidViewerID(t *testing.T) {
	assert.True(t, IsValidViewerID("3f2b8c1e-7d4a-4a8e-9b1c-2f6d7e8a9b0c"))
	assert.True(t, IsValidViewerID("device_1"))
	assert.False(t, IsValidViewerID(""))
	assert.False(t, IsValidViewerID("has space"))
	assert.False(t, IsValidViewerID("a/b"))
	assert.False(t, IsValidViewerID(strings.Repeat("x", 129)))
}

func TestIsSafeLink(t *testing.T) {
	assert.True(t, IsSafeLink("https://example.org/join"))
	assert.True(t, IsSafeLink(" http://example.org "))
	assert.False(t, IsSafeLink("javascript:alert(1)"))
	assert.False(t, IsSafeLink("data:text/html,hi"))
	assert.False(t, IsSafeLink("/relative/path"))
	assert.False(t, IsSafeLink(""))
}
