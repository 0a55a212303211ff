// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package segment

import (
	"testing"

	"github.com/ManuGH/reelforge/internal/media"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func valid(id string) Descriptor {
	return Descriptor{ID: id, SourceLocation: "/media/" + id + ".mp4", RecordedDurationSeconds: 4}
}

func TestHasValidTrim(t *testing.T) {
	tests := []struct {
		name  string
		start *int64
		end   *int64
		want  bool
	}{
		{"no trim", nil, nil, false},
		{"start only", Ms(1000), nil, false},
		{"end only", nil, Ms(1000), false},
		{"valid window", Ms(1000), Ms(2000), true},
		{"zero length", Ms(2000), Ms(2000), false},
		{"inverted", Ms(3000), Ms(2000), false},
		{"negative start", Ms(-1), Ms(2000), false},
		{"end past duration is still valid here", Ms(1000), Ms(999999), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := valid("a")
			d.TrimStartMs, d.TrimEndMs = tt.start, tt.end
			assert.Equal(t, tt.want, d.HasValidTrim())
		})
	}
}

func TestTrim(t *testing.T) {
	d := valid("a")
	d.TrimStartMs, d.TrimEndMs = Ms(500), Ms(1500)
	r, ok := d.Trim()
	require.True(t, ok)
	assert.Equal(t, media.Range{Start: 500, End: 1500}, r)

	_, ok = valid("b").Trim()
	assert.False(t, ok)
}

func TestValidate(t *testing.T) {
	require.NoError(t, valid("a").Validate())

	noID := valid("a")
	noID.ID = " "
	assert.ErrorIs(t, noID.Validate(), ErrInvalidDescriptor)

	relative := valid("a")
	relative.SourceLocation = "clips/a.mp4"
	assert.ErrorIs(t, relative.Validate(), ErrInvalidDescriptor)

	zero := valid("a")
	zero.RecordedDurationSeconds = 0
	assert.ErrorIs(t, zero.Validate(), ErrInvalidDescriptor)
}

func TestValidateList(t *testing.T) {
	require.NoError(t, ValidateList(nil))
	require.NoError(t, ValidateList([]Descriptor{valid("a"), valid("b")}))

	err := ValidateList([]Descriptor{valid("a"), valid("a")})
	require.ErrorIs(t, err, ErrInvalidDescriptor)
	assert.Contains(t, err.Error(), "duplicate id a")
}

func TestNewIDUnique(t *testing.T) {
	assert.NotEqual(t, NewID(), NewID())
}
