package sysinfo

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCollect(t *testing.T) {
	info := Collect(context.Background(), t.TempDir())

	for _, e := range info.Errors {
		assert.NotContains(t, e, "disk:")
	}
	assert.NotZero(t, info.DiskFreeBytes)
	assert.GreaterOrEqual(t, info.MemoryUsedPct, 0.0)
	assert.LessOrEqual(t, info.MemoryUsedPct, 100.0)
}

func TestExistingDir(t *testing.T) {
	root := t.TempDir()
	assert.Equal(t, root, existingDir(filepath.Join(root, "not", "yet", "created")))
	assert.Equal(t, root, existingDir(root))
}

func TestRound1(t *testing.T) {
	assert.Equal(t, 42.4, round1(42.44))
	assert.Equal(t, 42.5, round1(42.45001))
}
