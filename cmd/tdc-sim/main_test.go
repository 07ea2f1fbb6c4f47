package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func small(t *testing.T, args ...string) []string {
	base := []string{
		"--log-level", "error",
		"-n", "16", "-k", "6",
		"--ps", "0.02", "--pass-ratio", "0.6", "--drift-stddev", "0.3", "--max-drift", "1",
		"--seed", "3", "-t", "2", "-e", "10",
		"--min-error-words", "1000", "--max-simulations", "30",
		"--frozen-trials", "20", "--analysis-epoch", "8",
		"--capacities", t.TempDir(),
	}
	return append(base, args...)
}

func TestDprobgen(t *testing.T) {
	dir := t.TempDir()
	out, err := run(t, small(t, "dprobgen", dir)...)
	require.NoError(t, err)
	path := strings.TrimSpace(out)
	assert.Equal(t, dir, filepath.Dir(path))
	_, err = os.Stat(path)
	require.NoError(t, err)

	// the written table is picked up as a drift source
	out, err = run(t, small(t, "--drift-tables", dir, "frozen")...)
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 16)
}

func TestFrozenPrintsRanking(t *testing.T) {
	out, err := run(t, small(t, "frozen")...)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 16)
	prev := 2.0
	for _, l := range lines {
		f := strings.Fields(l)
		require.Len(t, f, 2)
		v, err := strconv.ParseFloat(f[1], 64)
		require.NoError(t, err)
		assert.LessOrEqual(t, v, prev)
		prev = v
	}

	again, err := run(t, small(t, "frozen")...)
	require.NoError(t, err)
	assert.Equal(t, out, again)
}

func TestBER(t *testing.T) {
	out, err := run(t, small(t, "ber")...)
	require.NoError(t, err)
	assert.Contains(t, out, "simulations, wec, bec, bler, ber, progress\n")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.True(t, strings.HasPrefix(lines[len(lines)-1], "30, "), lines[len(lines)-1])
	assert.True(t, strings.HasSuffix(lines[len(lines)-1], "100.0%"))
}

func TestBERWithCRC(t *testing.T) {
	out, err := run(t, small(t, "--crc", "1011", "-L", "4", "ber")...)
	require.NoError(t, err)
	assert.Contains(t, out, "    crc: 1011\n")
	assert.Contains(t, out, "    list size: 4\n")
}

func TestAnalyzeResumes(t *testing.T) {
	ckpt := filepath.Join(t.TempDir(), "analysis.ckpt")
	out, err := run(t, small(t, "--checkpoint", ckpt, "analyze")...)
	require.NoError(t, err)
	assert.Contains(t, out, "simulations, hamming distance, bec, bler, ber\n")
	assert.Contains(t, out, " 8, ")
	assert.Contains(t, out, "20, ")

	// the finished checkpoint leaves nothing to run
	out, err = run(t, small(t, "--checkpoint", ckpt, "analyze")...)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(out, "simulations, hamming distance, bec, bler, ber\n"))
}

func TestCapacity(t *testing.T) {
	out, err := run(t, small(t, "capacity")...)
	require.NoError(t, err)
	c, err := strconv.ParseFloat(strings.TrimSpace(out), 64)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, c, 0.0)
	assert.LessOrEqual(t, c, 1.0)
}

func TestBench(t *testing.T) {
	out, err := run(t, small(t, "bench")...)
	require.NoError(t, err)
	assert.Contains(t, out, "raw error rate: ")
	assert.Contains(t, out, "error rate: ")
}

func TestConfigFileAndOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	require.NoError(t, os.WriteFile(path, []byte("code:\n  code_length: 8\n  info_length: 4\n"), 0o644))
	out, err := run(t, small(t, "-c", path, "-n", "16", "frozen")...)
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 16)
}

func TestRejectsBadInput(t *testing.T) {
	_, err := run(t, small(t, "-n", "12", "frozen")...)
	require.Error(t, err)
	_, err = run(t, small(t, "--log-level", "loud", "frozen")...)
	require.Error(t, err)
	_, err = run(t, small(t, "-c", filepath.Join(t.TempDir(), "missing.yaml"), "frozen")...)
	require.Error(t, err)
}
