package app

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkilian/xcat/internal/checkpoint"
	"github.com/arkilian/xcat/internal/codec"
	"github.com/arkilian/xcat/internal/config"
	xerr "github.com/arkilian/xcat/internal/errors"
)

const tableJSON = `{
  "M_c": {
    "name_to_idx": {"a": 0, "b": 1, "c": 2},
    "idx_to_name": {"0": "a", "1": "b", "2": "c"},
    "column_metadata": [
      {"modeltype": "normal_inverse_gamma"},
      {"modeltype": "normal_inverse_gamma"},
      {"modeltype": "normal_inverse_gamma"}
    ]
  },
  "M_r": {"name_to_idx": {}, "idx_to_name": {}},
  "T": [[0.1, 1.2, -0.3], [0.4, 1.1, -0.2], [5.0, -2.0, 3.1], [5.2, -1.8, 2.9]]
}`

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func newTestApp(t *testing.T, dir string) *App {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Storage.Path = dir
	cfg.Metrics.Textfile = filepath.Join(dir, "metrics.prom")
	a, err := New(cfg, nil, WithRunID("test-run"))
	require.NoError(t, err)
	return a
}

func TestApp_InitializeThenAnalyze(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	table := writeFile(t, dir, "table.json", tableJSON)
	initCmd := writeFile(t, dir, "init.json", `{"command": "initialize", "initialization": "from_the_prior"}`)

	a := newTestApp(t, dir)
	pc, err := a.LoadContext(ctx, ContextFiles{TableData: table, CommandDict: initCmd})
	require.NoError(t, err)

	var out bytes.Buffer
	stats, err := a.Run(ctx, pc, strings.NewReader("r1\t{\"SEED\":7}\nr2\t{\"SEED\":8}\n"), &out)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Records)
	require.NoError(t, a.Close())

	_, err = os.Stat(filepath.Join(dir, "metrics.prom"))
	assert.NoError(t, err)

	// Feed the initialized states to analyze.
	analyzeCmd := writeFile(t, dir, "analyze.json", `{"command": "analyze", "n_steps": 2, "max_time": -1}`)
	b := newTestApp(t, dir)
	defer b.Close()
	pc, err = b.LoadContext(ctx, ContextFiles{TableData: table, CommandDict: analyzeCmd})
	require.NoError(t, err)

	var out2 bytes.Buffer
	stats, err = b.Run(ctx, pc, bytes.NewReader(out.Bytes()), &out2)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Records)

	lines := strings.Split(strings.TrimSuffix(out2.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	key, p, err := codec.Decode([]byte(lines[0]))
	require.NoError(t, err)
	assert.Equal(t, "r1", key)
	assert.Contains(t, p, "X_L")
	assert.Contains(t, p, "X_D")
}

func TestApp_ChunkAnalyzeWritesCheckpoints(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	table := writeFile(t, dir, "table.json", tableJSON)
	initCmd := writeFile(t, dir, "init.json", `{"command": "initialize", "initialization": "together"}`)
	chunkCmd := writeFile(t, dir, "chunk.json", `{
		"command": "chunk_analyze", "n_steps": 5, "chunk_size": 2,
		"chunk_filename_prefix": "run", "chunk_dest_dir": "chunks"
	}`)

	a := newTestApp(t, dir)
	pc, err := a.LoadContext(ctx, ContextFiles{TableData: table, CommandDict: initCmd})
	require.NoError(t, err)
	var states bytes.Buffer
	_, err = a.Run(ctx, pc, strings.NewReader("r1\t{\"SEED\":3}\n"), &states)
	require.NoError(t, err)
	require.NoError(t, a.Close())

	_, in, err := codec.Decode(states.Bytes())
	require.NoError(t, err)
	seed := int64(in["SEED"].(float64))

	b := newTestApp(t, dir)
	defer b.Close()
	pc, err = b.LoadContext(ctx, ContextFiles{TableData: table, CommandDict: chunkCmd})
	require.NoError(t, err)
	var out bytes.Buffer
	_, err = b.Run(ctx, pc, bytes.NewReader(states.Bytes()), &out)
	require.NoError(t, err)

	for _, ordinal := range []string{"0", "1", "2", checkpoint.FinalOrdinal} {
		name := checkpoint.Name("run", seed, ordinal) + checkpoint.DefaultSuffix
		_, err := os.Stat(filepath.Join(dir, "chunks", name))
		assert.NoError(t, err, name)
	}

	entries, err := b.Ledger().List(ctx, "test-run")
	require.NoError(t, err)
	assert.Len(t, entries, 4)
	for _, e := range entries {
		assert.Equal(t, checkpoint.StatusWritten, e.Status)
	}
}

func TestApp_UnknownOperation(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	table := writeFile(t, dir, "table.json", tableJSON)
	cmd := writeFile(t, dir, "cmd.json", `{"command": "simulate"}`)

	a := newTestApp(t, dir)
	defer a.Close()
	pc, err := a.LoadContext(ctx, ContextFiles{TableData: table, CommandDict: cmd})
	require.NoError(t, err)

	var out bytes.Buffer
	_, err = a.Run(ctx, pc, strings.NewReader("r1\t{\"SEED\":1}\n"), &out)
	assert.ErrorIs(t, err, xerr.ErrUnknownOperation)
	assert.Empty(t, out.String())
}

func TestApp_ContextLoadErrors(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	table := writeFile(t, dir, "table.json", tableJSON)
	badTable := writeFile(t, dir, "bad.json", `{"T": [[1, 2], [3]]}`)
	cmd := writeFile(t, dir, "cmd.json", `{"command": "initialize"}`)

	a := newTestApp(t, dir)
	defer a.Close()

	_, err := a.LoadContext(ctx, ContextFiles{TableData: filepath.Join(dir, "missing.json"), CommandDict: cmd})
	assert.ErrorIs(t, err, xerr.ErrContextLoad)

	_, err = a.LoadContext(ctx, ContextFiles{TableData: table, CommandDict: writeFile(t, dir, "junk.json", "not json")})
	assert.ErrorIs(t, err, xerr.ErrContextLoad)

	_, err = a.LoadContext(ctx, ContextFiles{TableData: writeFile(t, dir, "junk-table.json", "[1, 2"), CommandDict: cmd})
	assert.ErrorIs(t, err, xerr.ErrContextLoad)

	// A parseable but invalid table is rejected by the operations that read
	// it, before the first record.
	pc, err := a.LoadContext(ctx, ContextFiles{TableData: badTable, CommandDict: cmd})
	require.NoError(t, err)
	var out bytes.Buffer
	_, err = a.Run(ctx, pc, strings.NewReader("r1\t{\"SEED\":1}\n"), &out)
	assert.ErrorIs(t, err, xerr.ErrContextLoad)
	assert.Empty(t, out.String())
}

func TestApp_TimeAnalyzeIgnoresPlaceholderTable(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	table := writeFile(t, dir, "table.json", `{"M_c": {}, "M_r": {}, "T": []}`)
	cmd := writeFile(t, dir, "time.json", `{
		"command": "time_analyze", "n_steps": 1,
		"generation": {"num_rows": 6, "num_cols": 2, "num_views": 1, "num_clusters": 2}
	}`)

	a := newTestApp(t, dir)
	defer a.Close()
	pc, err := a.LoadContext(ctx, ContextFiles{TableData: table, CommandDict: cmd})
	require.NoError(t, err)

	var out bytes.Buffer
	stats, err := a.Run(ctx, pc, strings.NewReader("r1\t{\"SEED\":4}\n"), &out)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Records)

	_, p, err := codec.Decode(out.Bytes())
	require.NoError(t, err)
	assert.Equal(t, []any{float64(6), float64(2)}, p["table_shape"])
	assert.Equal(t, float64(1), p["n_steps"])
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Storage.Type = "ftp"
	_, err := New(cfg, nil)
	assert.Error(t, err)
}
