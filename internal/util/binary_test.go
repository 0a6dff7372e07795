package util

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, mode os.FileMode) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-ffmpeg")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"), mode))
	return path
}

func TestFindBinary(t *testing.T) {
	t.Run("env var takes priority over PATH", func(t *testing.T) {
		bin := writeFile(t, 0o755)
		t.Setenv("AVKIT_TEST_BINARY", bin)

		path, err := FindBinary("ls", "AVKIT_TEST_BINARY")
		require.NoError(t, err)
		assert.Equal(t, bin, path)
	})

	t.Run("finds binary on PATH when no env var", func(t *testing.T) {
		path, err := FindBinary("ls", "")
		require.NoError(t, err)
		assert.Contains(t, path, "ls")
	})

	t.Run("not found wraps sentinel", func(t *testing.T) {
		path, err := FindBinary("avkit-definitely-missing-binary", "")
		require.ErrorIs(t, err, ErrBinaryNotFound)
		assert.Empty(t, path)
	})

	t.Run("ignores non executable env path", func(t *testing.T) {
		bin := writeFile(t, 0o644)
		t.Setenv("AVKIT_TEST_BINARY", bin)

		path, err := FindBinary("ls", "AVKIT_TEST_BINARY")
		require.NoError(t, err)
		assert.NotEqual(t, bin, path)
	})

	t.Run("ignores directory", func(t *testing.T) {
		dir := t.TempDir()
		t.Setenv("AVKIT_TEST_BINARY", dir)

		path, err := FindBinary("ls", "AVKIT_TEST_BINARY")
		require.NoError(t, err)
		assert.NotEqual(t, dir, path)
	})
}
