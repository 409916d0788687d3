package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"phoenix/internal/anonymize"
	"phoenix/internal/records"
)

func execute(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err = cmd.Execute()
	return out.String(), errOut.String(), err
}

func writeFixtures(t *testing.T) (cfgPath, artifact string) {
	t.Helper()
	dir := t.TempDir()
	write := func(name, body string) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
		return p
	}
	vcf := write("calls.vcf", "#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO\tFORMAT\tS1\n1\t100\trs1\tA\tG\t.\tPASS\t.\tGT\t0/1\n")
	prot := write("prot.csv", "sample_id,protein,intensity,metadata\nS1,ALB,10,tissue=liver;ancestry=AFR\nS2,ALB,20,tissue=kidney\n")
	artifact = filepath.Join(dir, "out.parquet")

	cfg := map[string]any{
		"job": "cli_test",
		"sources": []map[string]any{
			{"kind": "vcf", "path": vcf},
			{"kind": "proteomics", "path": prot},
		},
		"output": map[string]any{"location": artifact, "compression": "snappy"},
		"log":    map[string]any{"level": "error"},
	}
	b, err := json.Marshal(cfg)
	require.NoError(t, err)
	return write("pipeline.json", string(b)), artifact
}

func TestValidateCommand(t *testing.T) {
	t.Parallel()

	cfgPath, _ := writeFixtures(t)
	out, _, err := execute(t, "validate", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "configuration is valid")

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"job":"x","sources":[]}`), 0o644))
	_, stderr, err := execute(t, "validate", "--config", bad)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errInvalidConfig))
	assert.Contains(t, stderr, "at least one source is required")
}

func TestRunThenQuery(t *testing.T) {
	t.Parallel()

	cfgPath, artifact := writeFixtures(t)
	out, _, err := execute(t, "run", "--config", cfgPath)
	require.NoError(t, err)

	var res struct {
		RunID   string `json:"run_id"`
		Summary struct {
			Rows int `json:"rows"`
		} `json:"summary"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, 3, res.Summary.Rows)

	for _, engine := range []string{"scan", "index", "sqlite"} {
		out, _, err = execute(t, "query", "--artifact", artifact, "--engine", engine, "--filter", "tissue=liver", "--filter", "ancestry=AFR")
		require.NoError(t, err, engine)
		lines := strings.Split(strings.TrimSpace(out), "\n")
		require.Len(t, lines, 1, engine)

		var r records.Record
		require.NoError(t, json.Unmarshal([]byte(lines[0]), &r))
		assert.Equal(t, anonymize.ID("S1"), r.SampleID)
		assert.Equal(t, records.ProteinExpression, r.DataType)
	}

	out, _, err = execute(t, "query", "--artifact", artifact, "--limit", "2")
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 2)

	out, _, err = execute(t, "query", "--artifact", artifact, "--filter", "tissue=brain")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestQueryCommandErrors(t *testing.T) {
	t.Parallel()

	_, _, err := execute(t, "query")
	require.Error(t, err)

	_, _, err = execute(t, "query", "--artifact", "x.parquet", "--filter", "=v")
	require.Error(t, err)

	_, _, err = execute(t, "query", "--artifact", "x.parquet", "--engine", "btree")
	require.Error(t, err)

	_, _, err = execute(t, "query", "--artifact", filepath.Join(t.TempDir(), "missing.parquet"))
	require.Error(t, err)
}

func TestInspectCommand(t *testing.T) {
	t.Parallel()

	cfgPath, artifact := writeFixtures(t)
	_, _, err := execute(t, "run", "--config", cfgPath)
	require.NoError(t, err)

	out, _, err := execute(t, "inspect", "--artifact", artifact)
	require.NoError(t, err)
	assert.Contains(t, out, "rows      3\n")
	assert.Contains(t, out, "key tissue: 2 rows, 2 distinct\n")

	out, _, err = execute(t, "inspect", "--artifact", artifact, "--json", "--top", "1")
	require.NoError(t, err)
	var rep struct {
		TotalRows int `json:"total_rows"`
		Keys      map[string]struct {
			TopValues []struct {
				Value string `json:"value"`
			} `json:"top_values"`
		} `json:"keys"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	assert.Equal(t, 3, rep.TotalRows)
	assert.Len(t, rep.Keys["tissue"].TopValues, 1)
}

func TestProbeCommand(t *testing.T) {
	t.Parallel()

	cfgPath, _ := writeFixtures(t)
	vcf := filepath.Join(filepath.Dir(cfgPath), "calls.vcf")
	out, _, err := execute(t, "probe", "--source", vcf)
	require.NoError(t, err)

	var res struct {
		Source struct {
			Kind string `json:"kind"`
			Path string `json:"path"`
		} `json:"source"`
		Rows int `json:"rows"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "vcf", res.Source.Kind)
	assert.Equal(t, vcf, res.Source.Path)
	assert.Equal(t, 1, res.Rows)
}
