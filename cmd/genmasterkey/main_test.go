package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrylevesque/makerdash/internal/files"
)

func TestGenerateRefusesOverwrite(t *testing.T) {
	t.Setenv(files.MasterKeyEnv, "")
	path := filepath.Join(t.TempDir(), "keys", "master.key")

	run := func(args ...string) error {
		cmd := newRootCmd()
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs(args)
		return cmd.Execute()
	}

	require.NoError(t, run("--out", path))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	first, err := files.ReadMasterKey(path)
	require.NoError(t, err)
	assert.Len(t, first, 32)

	err = run("--out", path)
	assert.ErrorIs(t, err, files.ErrKeyFileExist)

	require.NoError(t, run("--out", path, "--force"))
	second, err := files.ReadMasterKey(path)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}
