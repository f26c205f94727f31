package tenx

import (
	"compress/gzip"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mtx = `%%MatrixMarket matrix coordinate integer general
%metadata_json: {}
3 2 4
1 1 5
3 1 1
2 2 7
3 2 2
`

func writeFile(t *testing.T, path, data string, gz bool) {
	t.Helper()
	fh, err := os.Create(path)
	require.NoError(t, err)
	defer fh.Close()
	if !gz {
		_, err = fh.WriteString(data)
		require.NoError(t, err)
		return
	}
	gw := gzip.NewWriter(fh)
	_, err = gw.Write([]byte(data))
	require.NoError(t, err)
	require.NoError(t, gw.Close())
}

func TestReadV2Directory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "matrix.mtx"), mtx, false)
	writeFile(t, filepath.Join(dir, "genes.tsv"), "ENSG1\tCD3E\nENSG2\tMS4A1\nENSG3\tCD3E\n", false)
	writeFile(t, filepath.Join(dir, "barcodes.tsv"), "AAAC-1\nAAAG-1\n", false)

	m, err := Read(dir, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"CD3E", "MS4A1", "CD3E.1"}, m.Genes)
	assert.Equal(t, []string{"ENSG1", "ENSG2", "ENSG3"}, m.GeneIDs)
	assert.Equal(t, []string{"AAAC-1", "AAAG-1"}, m.Cells)
	assert.Equal(t, 5.0, m.Counts.At(0, 0))
	assert.Equal(t, 7.0, m.Counts.At(1, 1))
	assert.Equal(t, 2.0, m.Counts.At(2, 1))
	assert.Equal(t, 0.0, m.Counts.At(1, 0))
}

func TestReadV3GzipDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "matrix.mtx.gz"), mtx, true)
	writeFile(t, filepath.Join(dir, "features.tsv.gz"), "E1\tA\tGene Expression\nE2\tB\tGene Expression\nE3\tC\tGene Expression\n", true)
	writeFile(t, filepath.Join(dir, "barcodes.tsv.gz"), "x\ny\n", true)

	m, err := Read(dir, Options{GeneColumn: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"E1", "E2", "E3"}, m.Genes)
}

func TestReadMissingFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "matrix.mtx"), mtx, false)
	_, err := Read(dir, Options{})
	require.True(t, errors.Is(err, ErrMissingFile), "got %v", err)
}

func TestReadDimensionMismatch(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "matrix.mtx"), mtx, false)
	writeFile(t, filepath.Join(dir, "genes.tsv"), "E1\tA\nE2\tB\n", false)
	writeFile(t, filepath.Join(dir, "barcodes.tsv"), "x\ny\n", false)
	_, err := Read(dir, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "3 rows")
}

func TestReadMTXErrors(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"header":   "not a header\n",
		"array":    "%%MatrixMarket matrix array real general\n2 2\n",
		"range":    "%%MatrixMarket matrix coordinate integer general\n2 2 1\n3 1 1\n",
		"count":    "%%MatrixMarket matrix coordinate integer general\n2 2 2\n1 1 1\n",
		"numeric":  "%%MatrixMarket matrix coordinate integer general\n2 2 1\n1 x 1\n",
		"nan":      "%%MatrixMarket matrix coordinate real general\n2 2 1\n1 1 NaN\n",
		"inf":      "%%MatrixMarket matrix coordinate real general\n2 2 1\n1 1 +Inf\n",
		"negative": "%%MatrixMarket matrix coordinate integer general\n2 2 1\n2 2 -4\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			p := filepath.Join(dir, name+".mtx")
			writeFile(t, p, body, false)
			_, err := ReadMTX(p)
			require.Error(t, err)
			assert.Contains(t, err.Error(), p)
		})
	}
}
