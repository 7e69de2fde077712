package rubric

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFile_EmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := LoadFile("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadFile_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadFile_OverlaysOnDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rubric.yaml")
	yaml := `
weights:
  director_anchor: 3.0
breakpoints:
  long_tenure_years: 10
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, 3.0, cfg.Weights.DirectorAnchor)
	assert.Equal(t, 10, cfg.Breakpoints.LongTenureYears)

	// Unspecified keys keep their defaults.
	def := DefaultConfig()
	assert.Equal(t, def.Weights.OpenRegister, cfg.Weights.OpenRegister)
	assert.Equal(t, def.Breakpoints.StaleYears, cfg.Breakpoints.StaleYears)
}

func TestLoadFile_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rubric.yaml")
	require.NoError(t, os.WriteFile(path, []byte("weights: ["), 0o644))

	_, err := LoadFile(path)
	assert.Error(t, err)
}
