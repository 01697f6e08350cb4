package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsZeroConfig(t *testing.T) {
	cfg, err := Load(t.TempDir())

	require.NoError(t, err)
	assert.Equal(t, &Config{}, cfg)
}

func TestLoadReadsYml(t *testing.T) {
	dir := t.TempDir()
	content := `listen: ":8080"
outputDir: ./claims
inference:
  endpoint: http://localhost:9000/infer
  model: medcoder-small
  timeoutSeconds: 10
triage:
  highCostThreshold: 5000
  artifactAdvisory: true
audit:
  postgresDSN: postgres://localhost/medisuite
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "medisuite.yml"), []byte(content), 0o644))

	cfg, err := Load(dir)

	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Listen)
	assert.Equal(t, "./claims", cfg.OutputDir)
	assert.Equal(t, "http://localhost:9000/infer", cfg.Inference.Endpoint)
	assert.Equal(t, 10*time.Second, cfg.Inference.Timeout())
	assert.Equal(t, 5000.0, cfg.Triage.HighCostThreshold)
	assert.True(t, cfg.Triage.ArtifactAdvisory)
	assert.Equal(t, "postgres://localhost/medisuite", cfg.Audit.PostgresDSN)
}

func TestLoadPrefersYmlOverYaml(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "medisuite.yml"), []byte(`listen: ":1111"`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "medisuite.yaml"), []byte(`listen: ":2222"`), 0o644))

	cfg, err := Load(dir)

	require.NoError(t, err)
	assert.Equal(t, ":1111", cfg.Listen)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "medisuite.yml"), []byte("listen: [unclosed"), 0o644))

	_, err := Load(dir)

	assert.Error(t, err)
}
