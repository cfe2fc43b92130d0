package resourceguard

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuardTightCeilingRejects(t *testing.T) {
	g := New(0, 0)
	ok, err := g.Check(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGuardLooseCeilingAccepts(t *testing.T) {
	g := New(100, 1<<20)
	ok, err := g.Check(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestGuardSampleNonNegative(t *testing.T) {
	g := New(80, 2048)
	s, err := g.Sample()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, s.MemoryMB, 0.0)
	assert.GreaterOrEqual(t, s.CPUPercent, 0.0)
}
