package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const tableJSON = `{"M_c": {"name_to_idx": {"x": 0, "y": 1}, "idx_to_name": {"0": "x", "1": "y"},
  "column_metadata": [{"modeltype": "normal_inverse_gamma"}, {"modeltype": "normal_inverse_gamma"}]},
  "M_r": {"name_to_idx": {}, "idx_to_name": {}},
  "T": [[1.0, 2.0], [1.5, 2.5], [9.0, -3.0]]}`

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRun_Initialize(t *testing.T) {
	dir := t.TempDir()
	table := writeFile(t, dir, "table.json", tableJSON)
	cmd := writeFile(t, dir, "cmd.json", `{"command": "initialize"}`)

	var stdout, stderr bytes.Buffer
	code := run([]string{
		"--table-data-filename", table,
		"--command-dict-filename", cmd,
		"--log-level", "error",
	}, strings.NewReader("a\t{\"SEED\":1}\nb\t{\"SEED\":2}\n"), &stdout, &stderr)
	if code != exitOK {
		t.Fatalf("exit code = %d, stderr: %s", code, stderr.String())
	}
	out := strings.Split(strings.TrimSuffix(stdout.String(), "\n"), "\n")
	if len(out) != 2 || !strings.HasPrefix(out[0], "a\t") || !strings.HasPrefix(out[1], "b\t") {
		t.Fatalf("unexpected output: %q", stdout.String())
	}
}

func TestRun_UsageErrors(t *testing.T) {
	tests := [][]string{
		{},
		{"--table-data-filename", "t.json"},
		{"--no-such-flag"},
		{"--table-data-filename", "t.json", "--command-dict-filename", "c.json", "extra"},
	}
	for _, args := range tests {
		var stdout, stderr bytes.Buffer
		if code := run(args, strings.NewReader(""), &stdout, &stderr); code != exitUsage {
			t.Errorf("run(%v) = %d, want %d", args, code, exitUsage)
		}
		if stdout.Len() != 0 {
			t.Errorf("run(%v) wrote to stdout: %q", args, stdout.String())
		}
	}
}

func TestRun_FatalErrors(t *testing.T) {
	dir := t.TempDir()
	table := writeFile(t, dir, "table.json", tableJSON)
	unknown := writeFile(t, dir, "unknown.json", `{"command": "simulate"}`)
	initCmd := writeFile(t, dir, "init.json", `{"command": "initialize"}`)

	tests := []struct {
		name  string
		args  []string
		input string
		want  string
	}{
		{"missing context", []string{"--table-data-filename", filepath.Join(dir, "nope.json"), "--command-dict-filename", initCmd}, "", "CONTEXT_LOAD_FAILED"},
		{"unknown operation", []string{"--table-data-filename", table, "--command-dict-filename", unknown}, "a\t{\"SEED\":1}\n", "UNKNOWN_OPERATION"},
		{"malformed record", []string{"--table-data-filename", table, "--command-dict-filename", initCmd}, "garbage\n", "MALFORMED_RECORD"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			args := append(tt.args, "--log-level", "error")
			code := run(args, strings.NewReader(tt.input), &stdout, &stderr)
			if code != exitFatal {
				t.Fatalf("exit code = %d, want %d", code, exitFatal)
			}
			if !strings.Contains(stderr.String(), tt.want) {
				t.Errorf("stderr %q does not mention %s", stderr.String(), tt.want)
			}
		})
	}
}
