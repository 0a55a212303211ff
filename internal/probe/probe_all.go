// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package probe

import (
	"context"
	"fmt"
	"sync"

	"github.com/ManuGH/reelforge/internal/media"
	"github.com/ManuGH/reelforge/internal/segment"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// ProbeAll probes every segment concurrently with at most limit probes in
// flight and returns the metadata keyed by segment id. The first failure
// cancels the remaining probes and is returned.
func ProbeAll(ctx context.Context, p Prober, segments []segment.Descriptor, limit int) (map[string]media.ProbedMetadata, error) {
	if limit < 1 {
		limit = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	var mu sync.Mutex
	out := make(map[string]media.ProbedMetadata, len(segments))
	for _, seg := range segments {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			md, err := p.Probe(gctx, seg.SourceLocation)
			if err != nil {
				return fmt.Errorf("segment %s: %w", seg.ID, err)
			}
			mu.Lock()
			out[seg.ID] = md
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Duration returns the duration of the file at path in seconds, rounded
// exactly like the durations the planner lays out.
func Duration(ctx context.Context, p Prober, path string) (float64, error) {
	md, err := p.Probe(ctx, path)
	if err != nil {
		return 0, err
	}
	return md.Duration.Seconds(), nil
}

// CachingProber collapses concurrent probes of the same path into one
// ffprobe run. It keeps no results once a call returns.
type CachingProber struct {
	next  Prober
	group singleflight.Group
}

// NewCachingProber wraps next.
func NewCachingProber(next Prober) *CachingProber {
	return &CachingProber{next: next}
}

// Probe implements Prober.
func (c *CachingProber) Probe(ctx context.Context, path string) (media.ProbedMetadata, error) {
	ch := c.group.DoChan(path, func() (any, error) {
		// Detached so one caller giving up does not fail the others.
		return c.next.Probe(context.WithoutCancel(ctx), path)
	})
	select {
	case <-ctx.Done():
		return media.ProbedMetadata{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return media.ProbedMetadata{}, res.Err
		}
		return res.Val.(media.ProbedMetadata), nil
	}
}
