package version

import (
	"encoding/json"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetInfo(t *testing.T) {
	info := GetInfo()

	assert.NotEmpty(t, info.Version)
	assert.NotEmpty(t, info.GoVersion)
	assert.Contains(t, info.Platform, runtime.GOOS)
	assert.Contains(t, info.Platform, runtime.GOARCH)
}

func TestString(t *testing.T) {
	s := String()

	assert.True(t, strings.HasPrefix(s, ApplicationName+" version"), s)
}

func TestString_WithCommit(t *testing.T) {
	origCommit, origVersion := Commit, Version
	defer func() { Commit, Version = origCommit, origVersion }()

	Version = "1.2.3"
	Commit = "0123456789abcdef"

	assert.Contains(t, String(), "commit: 01234567")
	assert.Equal(t, "1.2.3 (01234567)", Short())
}

func TestShort(t *testing.T) {
	origCommit, origVersion := Commit, Version
	defer func() { Commit, Version = origCommit, origVersion }()

	Version = "1.0.0"
	Commit = "unknown"

	assert.Equal(t, "1.0.0", Short())
}

func TestJSON(t *testing.T) {
	var info Info
	require.NoError(t, json.Unmarshal([]byte(JSON()), &info))
	assert.Equal(t, Version, info.Version)
	assert.Equal(t, runtime.Version(), info.GoVersion)
}
