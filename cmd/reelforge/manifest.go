// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ManuGH/reelforge/internal/fsutil"
	"github.com/ManuGH/reelforge/internal/segment"
	"gopkg.in/yaml.v3"
)

// manifest is the YAML description of a local compose run. Relative source
// locations are taken relative to the manifest's directory.
type manifest struct {
	Output   string               `yaml:"output"`
	Segments []segment.Descriptor `yaml:"segments"`
}

func loadManifest(path string) (manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return manifest{}, fmt.Errorf("read manifest: %w", err)
	}
	m, err := parseManifest(data)
	if err != nil {
		return manifest{}, fmt.Errorf("manifest %s: %w", path, err)
	}

	dir, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return manifest{}, err
	}
	mapper := fsutil.Mapper{Root: dir}
	if m.Segments, err = mapper.ResolveSegments(m.Segments); err != nil {
		return manifest{}, fmt.Errorf("manifest %s: %w", path, err)
	}
	if m.Output != "" && !filepath.IsAbs(m.Output) {
		m.Output = filepath.Join(dir, m.Output)
	}
	return m, nil
}

func parseManifest(data []byte) (manifest, error) {
	var m manifest
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		if errors.Is(err, io.EOF) {
			return manifest{}, errors.New("empty manifest")
		}
		return manifest{}, err
	}
	for i := range m.Segments {
		if m.Segments[i].ID == "" {
			m.Segments[i].ID = fmt.Sprintf("seg-%d", i+1)
		}
	}
	return m, nil
}
