// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ggconfig

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// Load reads an already-resolved configuration record from path. A missing
// file yields the defaults; a malformed file is an error (the record is
// hand-edited, silently ignoring it would un-mute ignored secrets).
func Load(path string) (*Config, error) {
	c := New()
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return c, nil
	}
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return nil, fmt.Errorf("invalid configuration %s: %w", path, err)
	}
	return c, nil
}

// Save writes the record back to path as YAML.
func (c *Config) Save(path string) error {
	raw, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o600)
}
