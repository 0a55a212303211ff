// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package render

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProgress(t *testing.T) {
	input := strings.Join([]string{
		"frame=10",
		"out_time_us=333333",
		"total_size=1024",
		"speed=2.1x",
		"progress=continue",
		"frame=60",
		"out_time_us=N/A",
		"out_time_us=2000000",
		"garbage line",
		"progress=end",
	}, "\n")

	var got []ffmpegProgress
	parseProgress(strings.NewReader(input), func(p ffmpegProgress) { got = append(got, p) })

	require.Len(t, got, 2)
	assert.Equal(t, int64(333333), got[0].OutTimeUs)
	assert.Equal(t, "2.1x", got[0].Speed)
	assert.False(t, got[0].End)
	assert.Equal(t, int64(2000000), got[1].OutTimeUs)
	assert.Equal(t, int64(60), got[1].Frame)
	assert.True(t, got[1].End)
	assert.True(t, got[1].hasAdvanced(got[0]))
}
