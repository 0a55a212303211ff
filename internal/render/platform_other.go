// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

//go:build !unix && !windows

package render

// Processes cannot be spawned here.
func platformBackend(EncoderSettings) Backend {
	return UnsupportedBackend{}
}
