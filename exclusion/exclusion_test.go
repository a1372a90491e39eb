// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package exclusion

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPatterns(t *testing.T) {
	s, err := Compile(nil)
	require.NoError(t, err)
	assert.True(t, s.IsExcluded(".git/config"))
	assert.True(t, s.IsExcluded("node_modules/left-pad/index.js"))
	assert.True(t, s.IsExcluded("assets/logo.png"))
	assert.False(t, s.IsExcluded("main.go"))
}

func TestUserPatterns(t *testing.T) {
	s, err := Compile([]string{"secrets/**", "*.pem"})
	require.NoError(t, err)
	assert.True(t, s.IsExcluded("secrets/prod.yaml"))
	assert.True(t, s.IsExcluded("certs/server.pem"))
	assert.False(t, s.IsExcluded("secrets.go"))
}

func TestDoubleStarCrossesSeparators(t *testing.T) {
	s, err := Compile([]string{"build/**/*.o"})
	require.NoError(t, err)
	assert.True(t, s.IsExcluded("build/x86/obj/foo.o"))
	assert.False(t, s.IsExcluded("build.o"))
}
