package mapping

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveForward(t *testing.T) {
	m := Map{}
	m.Set(100, 200)

	got, ok := m.Resolve(100)
	assert.True(t, ok)
	assert.Equal(t, int64(200), got)
}

func TestResolveReverse(t *testing.T) {
	m := Map{}
	m.Set(100, 200)

	got, ok := m.Resolve(200)
	assert.True(t, ok)
	assert.Equal(t, int64(100), got)
}

func TestResolveMissing(t *testing.T) {
	m := Map{}
	m.Set(100, 200)

	_, ok := m.Resolve(300)
	assert.False(t, ok)
}

func TestResolvePrefersForwardEntry(t *testing.T) {
	m := Map{}
	m.Set(100, 200)
	m.Set(200, 300)

	got, ok := m.Resolve(200)
	assert.True(t, ok)
	assert.Equal(t, int64(300), got)
}
