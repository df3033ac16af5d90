package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saiset-co/sai-docs/types"
)

func TestFingerprintDeterministic(t *testing.T) {
	params := types.CacheKeyParams{
		Source:   "# Title\n\nbody",
		FilePath: "/docs/readme.md",
		Theme:    "dark",
		Options:  map[string]interface{}{"toc": true, "hard_wraps": false},
		Metadata: map[string]interface{}{"author": "team", "rev": 3},
	}

	first, err := Fingerprint(params)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		again, err := Fingerprint(params)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestFingerprintDistinguishesInputs(t *testing.T) {
	base := types.CacheKeyParams{Source: "content", FilePath: "/a.md", Theme: "light"}

	variants := []types.CacheKeyParams{
		{Source: "content2", FilePath: "/a.md", Theme: "light"},
		{Source: "content", FilePath: "/b.md", Theme: "light"},
		{Source: "content", FilePath: "/a.md", Theme: "dark"},
		{Source: "content", FilePath: "/a.md", Theme: "light", Options: map[string]interface{}{"toc": true}},
	}

	baseKey, err := Fingerprint(base)
	require.NoError(t, err)

	for _, variant := range variants {
		key, err := Fingerprint(variant)
		require.NoError(t, err)
		assert.NotEqual(t, baseKey, key)
	}
}

func TestFingerprintAbsentVersusEmpty(t *testing.T) {
	// An absent optional field must not collide with an explicitly empty one.
	absent, err := Fingerprint(types.CacheKeyParams{Source: "s"})
	require.NoError(t, err)

	empty, err := Fingerprint(types.CacheKeyParams{Source: "s", Options: map[string]interface{}{}})
	require.NoError(t, err)

	assert.NotEqual(t, absent, empty)
}

func TestFingerprintMapOrderIndependent(t *testing.T) {
	a := types.CacheKeyParams{
		Source:  "s",
		Options: map[string]interface{}{"one": 1, "two": 2, "three": 3},
	}
	b := types.CacheKeyParams{
		Source:  "s",
		Options: map[string]interface{}{"three": 3, "two": 2, "one": 1},
	}

	keyA, err := Fingerprint(a)
	require.NoError(t, err)
	keyB, err := Fingerprint(b)
	require.NoError(t, err)

	assert.Equal(t, keyA, keyB)
}

func TestFingerprintRejectsUnserializableMetadata(t *testing.T) {
	_, err := Fingerprint(types.CacheKeyParams{
		Source:   "s",
		Metadata: map[string]interface{}{"fn": func() {}},
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrInvalidKeyParams)
}
