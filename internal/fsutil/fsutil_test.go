// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ManuGH/reelforge/internal/segment"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func realTempDir(t *testing.T) string {
	t.Helper()
	dir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	return dir
}

func TestConfineRelPath(t *testing.T) {
	root := realTempDir(t)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "clips"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "clips", "a.mov"), nil, 0o644))

	got, err := ConfineRelPath(root, "clips/a.mov")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "clips", "a.mov"), got)

	got, err = ConfineRelPath(root, "clips/new.mov")
	require.NoError(t, err, "missing leaf resolves through its parent")
	assert.Equal(t, filepath.Join(root, "clips", "new.mov"), got)

	got, err = ConfineRelPath(root, "clips/../clips/a.mov")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "clips", "a.mov"), got)

	for _, bad := range []string{"../x.mov", "..", `clips\..\..\x`, "/etc/passwd"} {
		_, err := ConfineRelPath(root, bad)
		assert.Error(t, err, bad)
	}
}

func TestConfineRelPathSymlinkEscape(t *testing.T) {
	root := realTempDir(t)
	outside := realTempDir(t)
	require.NoError(t, os.WriteFile(filepath.Join(outside, "secret.mov"), nil, 0o644))
	if err := os.Symlink(outside, filepath.Join(root, "link")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	_, err := ConfineRelPath(root, "link/secret.mov")
	assert.ErrorIs(t, err, ErrOutsideRoot)
}

func TestConfineAbsPath(t *testing.T) {
	root := realTempDir(t)
	_, err := ConfineAbsPath(root, filepath.Join(root, "a.mov"))
	assert.NoError(t, err)

	_, err = ConfineAbsPath(root, filepath.Join(root, "..", "a.mov"))
	assert.ErrorIs(t, err, ErrOutsideRoot)

	_, err = ConfineAbsPath(root, "a.mov")
	assert.Error(t, err)
}

func TestIsRegularFile(t *testing.T) {
	dir := t.TempDir()
	f := filepath.Join(dir, "a.mov")
	require.NoError(t, os.WriteFile(f, nil, 0o644))
	assert.NoError(t, IsRegularFile(f))
	assert.Error(t, IsRegularFile(dir))
	assert.Error(t, IsRegularFile(filepath.Join(dir, "missing")))
}

func TestMapper(t *testing.T) {
	root := realTempDir(t)
	m := Mapper{Root: root}

	got, err := m.Resolve("clips/a.mov")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "clips", "a.mov"), got)

	got, err = m.Resolve("/media/x/../b.mov")
	require.NoError(t, err)
	assert.Equal(t, "/media/b.mov", got)

	_, err = m.Resolve("../escape.mov")
	assert.ErrorIs(t, err, ErrOutsideRoot)
	_, err = m.Resolve(" ")
	assert.Error(t, err)
	_, err = Mapper{}.Resolve("rel.mov")
	assert.Error(t, err)

	assert.Equal(t, "clips/a.mov", m.Relativize(filepath.Join(root, "clips", "a.mov")))
	assert.Equal(t, "/elsewhere/a.mov", m.Relativize("/elsewhere/a.mov"))
	assert.Equal(t, "/x.mov", Mapper{}.Relativize("/x.mov"))
}

func TestMapperResolveSegments(t *testing.T) {
	root := realTempDir(t)
	m := Mapper{Root: root}
	in := []segment.Descriptor{
		{ID: "a", SourceLocation: "a.mov", RecordedDurationSeconds: 1},
		{ID: "b", SourceLocation: "/abs/b.mov", RecordedDurationSeconds: 1},
	}
	out, err := m.ResolveSegments(in)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "a.mov"), out[0].SourceLocation)
	assert.Equal(t, "/abs/b.mov", out[1].SourceLocation)
	assert.Equal(t, "a.mov", in[0].SourceLocation, "input left untouched")

	_, err = m.ResolveSegments([]segment.Descriptor{{ID: "x", SourceLocation: "../x.mov"}})
	assert.ErrorIs(t, err, ErrOutsideRoot)
}
