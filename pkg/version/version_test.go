package version

import (
	"encoding/json"
	"regexp"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersion_FollowsSemverOrDev(t *testing.T) {
	// Given: a development build or one stamped through ldflags
	if Version == "dev" {
		return
	}

	// Then
	semver := regexp.MustCompile(`^v?\d+\.\d+\.\d+(-[a-zA-Z0-9.]+)?$`)
	require.True(t, semver.MatchString(Version), "got %s", Version)
}

func TestString(t *testing.T) {
	str := String()

	assert.Contains(t, str, "amanindex "+Version)
	assert.Contains(t, str, "commit: "+Commit)
	assert.Contains(t, str, runtime.GOOS+"/"+runtime.GOARCH)
}

func TestShortAndBuild(t *testing.T) {
	assert.Equal(t, Version, Short())
	assert.Equal(t, Version+"+"+Commit, Build())
}

func TestGetInfo(t *testing.T) {
	// When
	info := GetInfo()

	// Then
	assert.Equal(t, Program, info.Program)
	assert.Equal(t, Version, info.Version)
	assert.Equal(t, Commit, info.Commit)
	assert.Equal(t, Date, info.Date)
	assert.Equal(t, runtime.Version(), info.GoVersion)
	assert.Equal(t, runtime.GOOS, info.OS)
	assert.Equal(t, runtime.GOARCH, info.Arch)
}

func TestGetInfo_JSONFields(t *testing.T) {
	// Given
	data, err := json.Marshal(GetInfo())
	require.NoError(t, err)

	// When
	var parsed map[string]string
	require.NoError(t, json.Unmarshal(data, &parsed))

	// Then
	for _, key := range []string{"program", "version", "commit", "date", "go_version", "os", "arch"} {
		assert.Contains(t, parsed, key)
	}
}
