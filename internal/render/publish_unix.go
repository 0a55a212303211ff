// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

//go:build unix

package render

import "github.com/google/renameio/v2"

// newPendingOutput creates a temporary file next to path; committing it
// fsyncs and renames it over path.
func newPendingOutput(path string) (pendingOutput, error) {
	return renameio.NewPendingFile(path, renameio.WithPermissions(0o644))
}
