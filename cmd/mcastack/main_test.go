package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qri-io/mcastack"
	"github.com/qri-io/mcastack/zarr"
)

// writeStack creates a (3, 2, 4) stack whose element (i, j, k) is
// 100*i + 10*j + k.
func writeStack(t *testing.T, dir string) {
	t.Helper()
	s, err := zarr.NewLocalStore(dir)
	require.NoError(t, err)
	meta := zarr.NewArrayMeta([]int{3, 2, 4}, []int{2, 2, 4}, zarr.Float64)
	meta.Compressor = &zarr.CompressionMeta{ID: "gzip"}
	a, err := zarr.Create(s, "stack", meta, zarr.ModeWrite)
	require.NoError(t, err)
	data := make([]float64, 0, 24)
	for i := range 3 {
		for j := range 2 {
			for k := range 4 {
				data = append(data, float64(100*i+10*j+k))
			}
		}
	}
	idx := mcastack.Index{mcastack.Full(), mcastack.Full(), mcastack.Full()}
	require.NoError(t, a.Write(idx, data))
	require.NoError(t, a.SetAttributes(zarr.Attributes{"detector": "sdd"}))
}

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestInfo(t *testing.T) {
	dir := t.TempDir()
	writeStack(t, dir)
	out, _, err := run(t, "--store", dir, "info", "stack")
	require.NoError(t, err)
	assert.Contains(t, out, "shape=[3 2 4]")
	assert.Contains(t, out, "compressor=gzip")
	assert.Contains(t, out, "grid: [2 1 1]")
	assert.Contains(t, out, "attr detector: sdd")
}

func TestPlan(t *testing.T) {
	dir := t.TempDir()
	writeStack(t, dir)
	out, _, err := run(t, "--store", dir, "plan", "stack", "--rows", "4")
	require.NoError(t, err)
	assert.Contains(t, out, "rows per chunk: 4")
	assert.Contains(t, out, "chunks: 2")
	assert.Contains(t, out, "total rows: 6")
	assert.Contains(t, out, "[0:2, :, :]")
}

func TestSum(t *testing.T) {
	dir := t.TempDir()
	writeStack(t, dir)
	out, _, err := run(t, "--store", dir, "sum", "stack", "--rows", "1", "--channels", "1:3")
	require.NoError(t, err)
	// rows sum to 6*k + 2*(0+100+200) + 3*(0+10)
	assert.Equal(t, "636 642", strings.TrimSpace(out))
}

func TestSumMaskedFromConfig(t *testing.T) {
	dir := t.TempDir()
	writeStack(t, dir)
	cfg := filepath.Join(dir, "view.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("row_capacity: 1\nmask: [[2, 0], [1, 0]]\n"), 0o644))

	out, stderr, err := run(t, "--store", dir, "--config", cfg, "--stats", "sum", "stack")
	require.NoError(t, err)
	assert.Equal(t, "210 212 214 216", strings.TrimSpace(out))
	assert.Contains(t, stderr, `mcastack_view_chunks_total{direction=read} 2`)
	assert.Contains(t, stderr, `mcastack_view_traversals_total{kind=masked} 1`)
}

func TestScale(t *testing.T) {
	dir := t.TempDir()
	writeStack(t, dir)
	_, _, err := run(t, "--store", dir, "scale", "stack", "--factor", "2", "--channels", "::2", "--rows", "2")
	require.NoError(t, err)

	s, err := zarr.NewLocalStore(dir)
	require.NoError(t, err)
	a, err := zarr.Open(s, "stack", zarr.ModeRead)
	require.NoError(t, err)
	got, err := a.ReadAll()
	require.NoError(t, err)
	// element (2, 1, k) sits at 20+k
	assert.Equal(t, []float64{420, 211, 424, 213}, got[20:24])
}

func TestCreate(t *testing.T) {
	dir := t.TempDir()
	out, _, err := run(t, "--store", dir, "create", "new", "--shape", "4,8", "--chunks", "2,8", "--dtype", "<i2", "--fill=-1")
	require.NoError(t, err)
	assert.Contains(t, out, "dtype=<i2")

	_, _, err = run(t, "--store", dir, "create", "new", "--shape", "4,8")
	assert.ErrorIs(t, err, zarr.ErrExists)

	out, _, err = run(t, "--store", dir, "sum", "new", "--rows", "3")
	require.NoError(t, err)
	assert.Equal(t, "-4 -4 -4 -4 -4 -4 -4 -4", strings.TrimSpace(out))
}

func TestBadConfig(t *testing.T) {
	dir := t.TempDir()
	writeStack(t, dir)
	_, _, err := run(t, "--store", dir, "sum", "stack", "--channels", "a:b")
	assert.ErrorIs(t, err, mcastack.ErrType)

	_, _, err = run(t, "--store", dir, "plan", "stack", "--order", "0,0")
	assert.ErrorIs(t, err, mcastack.ErrConfig)

	_, _, err = run(t, "--store", dir, "info", "missing")
	assert.ErrorIs(t, err, zarr.ErrNotfound)
}

func TestEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	writeStack(t, dir)
	t.Setenv("MCASTACK_ROW_CAPACITY", "2")
	out, _, err := run(t, "--store", dir, "plan", "stack")
	require.NoError(t, err)
	assert.Contains(t, out, "rows per chunk: 2")
	assert.Contains(t, out, "chunks: 3")

	// flags win over the environment
	out, _, err = run(t, "--store", dir, "plan", "stack", "--rows", "6")
	require.NoError(t, err)
	assert.Contains(t, out, "chunks: 1")

	t.Setenv("MCASTACK_MEMORY_MARGIN", "lots")
	_, _, err = run(t, "--store", dir, "plan", "stack")
	assert.ErrorContains(t, err, "MCASTACK_MEMORY_MARGIN")
}
