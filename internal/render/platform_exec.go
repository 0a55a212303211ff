// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

//go:build unix || windows

package render

func platformBackend(settings EncoderSettings) Backend {
	return NewFFmpegBackend(settings)
}
