// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldSessionID = "session_id"
	FieldRequestID = "request_id"
	FieldDraftID   = "draft_id"
	FieldSegmentID = "segment_id"

	// Process / pipeline fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldBackend   = "backend"
	FieldPhase     = "phase"
	FieldStage     = "stage"

	// Media fields
	FieldCodec      = "codec"
	FieldResolution = "resolution"
	FieldRotation   = "rotation"
	FieldDurationMs = "duration_ms"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"

	// Path fields
	FieldPath       = "path"
	FieldOutputPath = "output_path"
	FieldWorkDir    = "work_dir"
)
