// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

//go:build !unix

package render

import (
	"errors"
	"os"
	"path/filepath"
)

type tempOutput struct {
	*os.File
	target string
	done   bool
}

func newPendingOutput(path string) (pendingOutput, error) {
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return nil, err
	}
	return &tempOutput{File: f, target: path}, nil
}

func (t *tempOutput) CloseAtomicallyReplace() error {
	if err := t.Sync(); err != nil {
		return err
	}
	if err := t.Close(); err != nil {
		return err
	}
	if err := os.Rename(t.Name(), t.target); err != nil {
		return err
	}
	t.done = true
	return nil
}

func (t *tempOutput) Cleanup() error {
	if t.done {
		return nil
	}
	closeErr := t.Close()
	if err := os.Remove(t.Name()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if errors.Is(closeErr, os.ErrClosed) {
		return nil
	}
	return closeErr
}
