package board

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "boards.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"boards":[
		{"board_id":"tech","name":"Tech","features":{"link_previews":false}},
		{"board_id":"general","name":"General"}
	]}`), 0o644))

	r, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.True(t, r.Exists("tech"))
	assert.False(t, r.Exists("nope"))
	assert.Equal(t, "General", r.Get("general").Name)

	assert.False(t, r.HasFeature("tech", FeatureLinkPreviews))
	assert.True(t, r.HasFeature("general", FeatureLinkPreviews))
	assert.False(t, r.HasFeature("nope", FeatureLinkPreviews))

	all := r.All()
	require.Len(t, all, 2)
	assert.Equal(t, "general", all[0].BoardID)
}

func TestLoadFromFileErrors(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "boards.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"boards":[{"name":"x"}]}`), 0o644))
	_, err = LoadFromFile(path)
	assert.Error(t, err)
}

func TestFingerprint(t *testing.T) {
	a := NewFingerprinter("salt-a")
	b := NewFingerprinter("salt-b")

	fp := a.Fingerprint("203.0.113.7")
	assert.Len(t, fp, 64)
	assert.Equal(t, fp, a.Fingerprint("203.0.113.7"))
	assert.NotEqual(t, fp, a.Fingerprint("203.0.113.8"))
	assert.NotEqual(t, fp, b.Fingerprint("203.0.113.7"))
}
