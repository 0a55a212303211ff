// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package probe

import (
	"errors"
	"fmt"
)

// ErrUnreadableMedia classifies sources that cannot be opened or carry no
// usable video track.
var ErrUnreadableMedia = errors.New("unreadable media")

// UnreadableMediaError carries the offending source location.
type UnreadableMediaError struct {
	Path string
	Err  error
}

func (e *UnreadableMediaError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("unreadable media: %s", e.Path)
	}
	return fmt.Sprintf("unreadable media: %s: %v", e.Path, e.Err)
}

func (e *UnreadableMediaError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrUnreadableMedia}
	}
	return []error{ErrUnreadableMedia, e.Err}
}

func unreadable(path string, format string, args ...any) error {
	return &UnreadableMediaError{Path: path, Err: fmt.Errorf(format, args...)}
}
