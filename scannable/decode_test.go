// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package scannable

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodePlainUTF8(t *testing.T) {
	d, err := decode("t", []byte("hello world"))
	require.NoError(t, err)
	assert.Equal(t, "hello world", d.text)
	assert.Equal(t, 11, d.utf8EncodedSize)
}

func TestDecodeStripsUTF8BOM(t *testing.T) {
	raw := append([]byte{0xEF, 0xBB, 0xBF}, []byte("hello")...)
	d, err := decode("t", raw)
	require.NoError(t, err)
	assert.Equal(t, "hello", d.text)
}

func TestDecodeUTF16LEBOM(t *testing.T) {
	raw := []byte{0xFF, 0xFE, 'h', 0x00, 'i', 0x00}
	d, err := decode("t", raw)
	require.NoError(t, err)
	assert.Equal(t, "hi", d.text)
}

func TestDecodeZeroBytesPreserved(t *testing.T) {
	raw := []byte("a\x00b")
	d, err := decode("t", raw)
	require.NoError(t, err)
	assert.Contains(t, d.text, "\x00")
}

// A NUL inside an invalid byte sequence still decodes: the bad bytes are
// replaced, the zero byte survives.
func TestDecodeReplacesInvalidAndKeepsZeroBytes(t *testing.T) {
	raw := append([]byte("mostly printable text here "), 0xC3, 0x28, 'a', 0x00, 'b')
	d, err := decode("t", raw)
	require.NoError(t, err)
	assert.Contains(t, d.text, "\x00")
	assert.Contains(t, d.text, "�")
	assert.Contains(t, d.text, "a\x00b")
	assert.Equal(t, len(d.text), d.utf8EncodedSize)
}

func TestDecodeRejectsBinary(t *testing.T) {
	raw := make([]byte, 200)
	for i := range raw {
		raw[i] = byte(i % 256)
	}
	_, err := decode("t", raw)
	require.Error(t, err)
	var de *DecodeError
	assert.ErrorAs(t, err, &de)
}

func TestIsLongerThanRawQuickReject(t *testing.T) {
	longer, decided := isLongerThanRaw(1000, 10, false)
	assert.True(t, decided)
	assert.True(t, longer)
}

func TestIsLongerThanRawUndecided(t *testing.T) {
	_, decided := isLongerThanRaw(20, 10, false)
	assert.False(t, decided)
}
