package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsPerWorkflow(t *testing.T) {
	p, err := Load(PBMC, "", nil)
	require.NoError(t, err)
	assert.Equal(t, 3, p.QC.MinCells)
	assert.Equal(t, 200, p.QC.MinFeatures)
	assert.Equal(t, 2500.0, p.QC.KeepBelow)
	assert.Equal(t, 0.5, p.Cluster.Resolution)
	assert.True(t, p.Markers.OnlyPos)

	c, err := Load(CellCycle, "", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, c.QC.MinCells)
	assert.Equal(t, RegressScores, c.CellCycle.Regress)
	assert.Equal(t, 2000, c.HVG.NFeatures)
}

func TestPrecedenceFileEnvFlag(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "scflow.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("cluster:\n  resolution: 1.2\npca:\n  npcs: 30\numap:\n  seed: 7\n"), 0o644))

	t.Setenv("SCFLOW_PCA_NPCS", "20")

	fs := pflag.NewFlagSet("x", pflag.ContinueOnError)
	fs.Float64("resolution", 0.5, "")
	fs.Int("npcs", 50, "")
	fs.Int("threads", 0, "")
	require.NoError(t, fs.Parse([]string{"--threads", "3"}))

	p, err := Load(PBMC, cfg, fs)
	require.NoError(t, err)
	assert.Equal(t, 1.2, p.Cluster.Resolution, "file beats default and unset flag")
	assert.Equal(t, 20, p.PCA.NPCs, "env beats file")
	assert.Equal(t, 3, p.Threads, "set flag beats everything")
	assert.Equal(t, uint64(7), p.UMAP.Seed)

	require.NoError(t, fs.Parse([]string{"--npcs", "15"}))
	p, err = Load(PBMC, cfg, fs)
	require.NoError(t, err)
	assert.Equal(t, 15, p.PCA.NPCs)
}

func TestValidateNamesFlag(t *testing.T) {
	fs := pflag.NewFlagSet("x", pflag.ContinueOnError)
	fs.String("regress", RegressScores, "")
	require.NoError(t, fs.Parse([]string{"--regress", "everything"}))
	_, err := Load(CellCycle, "", fs)
	require.ErrorIs(t, err, ErrInvalid)
	assert.Contains(t, err.Error(), "--regress")

	p := Defaults(PBMC)
	p.Neighbors.Dims = 60
	err = p.Validate()
	require.ErrorIs(t, err, ErrInvalid)
	assert.Contains(t, err.Error(), "--dims")

	p = Defaults(PBMC)
	p.QC.KeepAbove = 3000
	require.ErrorIs(t, p.Validate(), ErrInvalid)
}

func TestMissingConfigFile(t *testing.T) {
	_, err := Load(PBMC, filepath.Join(t.TempDir(), "nope.yaml"), nil)
	require.ErrorIs(t, err, ErrInvalid)
}

func TestManifestRoundTrip(t *testing.T) {
	p := Defaults(PBMC)
	m := NewManifest("scflow pbmc", "dev", "in/", p)
	require.NotEmpty(t, m.RunID)
	m.Clusters = map[string]int{"0": 10, "1": 4}
	Finish(m, nil, false)

	path := filepath.Join(t.TempDir(), ManifestName)
	require.NoError(t, WriteManifest(path, m))
	got, err := ReadManifest(path)
	require.NoError(t, err)
	assert.Equal(t, m.RunID, got.RunID)
	assert.Equal(t, StatusOK, got.Status)
	assert.Equal(t, 10, got.Clusters["0"])
	assert.EqualValues(t, 2000, got.Params["hvg.n_features"])
}
