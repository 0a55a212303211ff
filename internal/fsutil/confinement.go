// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package fsutil maps draft-relative media locations onto the filesystem
// without letting them escape their root.
package fsutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrOutsideRoot is returned when a location resolves outside its root.
var ErrOutsideRoot = errors.New("path escapes root")

// ConfineRelPath joins root and rel and returns the resolved path, which is
// guaranteed to lie physically under root. Symlinks are followed; backslashes
// and leading ".." segments are rejected. rel must be relative.
func ConfineRelPath(root, rel string) (string, error) {
	if strings.Contains(rel, `\`) {
		return "", fmt.Errorf("%w: backslash in %q", ErrOutsideRoot, rel)
	}
	clean := filepath.Clean(rel)
	if filepath.IsAbs(clean) {
		return "", fmt.Errorf("location must be relative: %s", rel)
	}
	if escapes(clean) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, rel)
	}
	base, err := realRoot(root)
	if err != nil {
		return "", err
	}
	return resolveUnder(base, filepath.Join(base, clean))
}

// ConfineAbsPath checks that abs lies physically under root and returns its
// resolved form.
func ConfineAbsPath(root, abs string) (string, error) {
	if strings.Contains(abs, `\`) {
		return "", fmt.Errorf("%w: backslash in %q", ErrOutsideRoot, abs)
	}
	if !filepath.IsAbs(abs) {
		return "", fmt.Errorf("location must be absolute: %s", abs)
	}
	base, err := realRoot(root)
	if err != nil {
		return "", err
	}
	return resolveUnder(base, filepath.Clean(abs))
}

// IsRegularFile fails unless path exists and is a regular file.
func IsRegularFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("not a regular file: %s", path)
	}
	return nil
}

func escapes(rel string) bool {
	return rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func realRoot(root string) (string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("invalid root %q: %w", root, err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	switch {
	case err == nil:
		return resolved, nil
	case os.IsNotExist(err):
		return "", err
	default:
		return abs, nil
	}
}

// resolveUnder follows symlinks in candidate and verifies the result stays
// under base. A missing leaf is resolved through its parent directory.
func resolveUnder(base, candidate string) (string, error) {
	var resolved string
	if _, err := os.Lstat(candidate); err == nil {
		rp, err := filepath.EvalSymlinks(candidate)
		if err != nil {
			return "", fmt.Errorf("resolve %s: %w", candidate, err)
		}
		resolved = rp
	} else {
		dir := filepath.Dir(candidate)
		rp, err := filepath.EvalSymlinks(dir)
		switch {
		case err == nil:
			resolved = filepath.Join(rp, filepath.Base(candidate))
		case os.IsNotExist(err):
			resolved = candidate
		default:
			return "", fmt.Errorf("resolve parent %s: %w", dir, err)
		}
	}

	rel, err := filepath.Rel(base, resolved)
	if err != nil {
		return "", fmt.Errorf("relate %s to %s: %w", resolved, base, err)
	}
	if escapes(rel) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, resolved)
	}
	return resolved, nil
}
