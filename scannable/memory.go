// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package scannable

import "sync"

// InMemory wraps raw bytes already held in memory: a patch hunk body, a
// staged-index blob, or a docker layer tar entry. isPatch controls whether
// the span resolver later accounts for the leading diff-marker byte.
type InMemory struct {
	url      string
	filename string
	path     string
	mode     Filemode
	raw      []byte
	isPatch  bool

	once   sync.Once
	dec    decoded
	decErr error
}

// NewInMemory builds a Scannable directly from raw bytes already resident
// in memory, with no filesystem round-trip.
func NewInMemory(url, filename, path string, mode Filemode, raw []byte, isPatch bool) *InMemory {
	return &InMemory{url: url, filename: filename, path: path, mode: mode, raw: raw, isPatch: isPatch}
}

func (m *InMemory) URL() string        { return m.url }
func (m *InMemory) Filename() string   { return m.filename }
func (m *InMemory) Path() string       { return m.path }
func (m *InMemory) Filemode() Filemode { return m.mode }
func (m *InMemory) IsPatch() bool      { return m.isPatch }

func (m *InMemory) IsLongerThan(n int) (bool, error) {
	if longer, decided := isLongerThanRaw(len(m.raw), n, false); decided {
		return longer, nil
	}
	if _, err := m.load(); err != nil {
		return false, err
	}
	return m.dec.utf8EncodedSize > n, nil
}

func (m *InMemory) Content() (string, error) { return m.load() }

func (m *InMemory) UTF8EncodedSize() (int, error) {
	if _, err := m.load(); err != nil {
		return 0, err
	}
	return m.dec.utf8EncodedSize, nil
}

func (m *InMemory) load() (string, error) {
	m.once.Do(func() {
		m.dec, m.decErr = decode(m.url, m.raw)
	})
	return m.dec.text, m.decErr
}

var _ Scannable = (*InMemory)(nil)
