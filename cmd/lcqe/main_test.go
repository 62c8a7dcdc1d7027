package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charlie0129/lcqe/pkg/errdefs"
	"github.com/charlie0129/lcqe/pkg/result"
	"github.com/charlie0129/lcqe/pkg/tabular"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	return p
}

// run executes the root command with a config file that does not exist, so
// every value comes from the defaults and the flags.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", filepath.Join(t.TempDir(), "none.json"), "--log-level", "error"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

const (
	eqeCSV = `nm,top,bottom
400,0.9,0.05
500,0.85,0.3
600,0.1,0.8
`
	flatSpectrumCSV = `nm,photons
300,1e17
700,1e17
`
)

func TestParseCoupling(t *testing.T) {
	tests := []struct {
		name  string
		specs []string
		n     int
		want  [][]float64
		err   error
	}{
		{name: "one pair", specs: []string{"1:2=0.1"}, n: 2, want: [][]float64{{0, 0.1}, {0, 0}}},
		{name: "chain", specs: []string{"1:2=0.1", " 2 : 3 = 0.05"}, n: 3, want: [][]float64{{0, 0.1, 0}, {0, 0, 0.05}, {0, 0, 0}}},
		{name: "upward", specs: []string{"2:1=0.1"}, n: 2, err: errdefs.ErrInvalidCoupling},
		{name: "out of range", specs: []string{"1:3=0.1"}, n: 2, err: errdefs.ErrInvalidCoupling},
		{name: "no value", specs: []string{"1:2"}, n: 2, err: errdefs.ErrValidation},
		{name: "no colon", specs: []string{"12=0.1"}, n: 2, err: errdefs.ErrValidation},
		{name: "bad number", specs: []string{"1:2=lots"}, n: 2, err: errdefs.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := parseCoupling(tt.specs, tt.n)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, m.Rows())
		})
	}
}

func TestCorrectCommand(t *testing.T) {
	dir := t.TempDir()
	eqePath := writeFile(t, dir, "eqe.csv", eqeCSV)
	spectrum := writeFile(t, dir, "flat.csv", flatSpectrumCSV)
	output := filepath.Join(dir, "out.csv")

	out, err := run(t, "correct", eqePath, "--spectrum", spectrum, "--spectrum-kind", "custom", "-c", "1:2=0.1", "-o", output)
	require.NoError(t, err, out)
	assert.Contains(t, out, "Junction currents")
	assert.Contains(t, out, "limited by bottom")

	corrected, err := tabular.ReadEQE(output)
	require.NoError(t, err)
	assert.Equal(t, []string{"top", "bottom"}, corrected.Names())
	assert.Equal(t, []float64{0.9, 0.85, 0.1}, corrected.Values()[0])
	assert.Less(t, corrected.Values()[1][2], 0.8)
}

func TestCorrectCommandJSON(t *testing.T) {
	dir := t.TempDir()
	eqePath := writeFile(t, dir, "eqe.csv", eqeCSV)
	spectrum := writeFile(t, dir, "flat.csv", flatSpectrumCSV)

	out, err := run(t, "correct", eqePath, "--spectrum", spectrum, "--spectrum-kind", "custom", "-c", "1:2=0.1", "--json")
	require.NoError(t, err, out)

	var doc result.Document
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.True(t, doc.Convergence.Converged)
	assert.Equal(t, 1, doc.Convergence.LimitingJunction)
}

func TestCorrectCommandBestEffort(t *testing.T) {
	dir := t.TempDir()
	eqePath := writeFile(t, dir, "eqe.csv", eqeCSV)
	spectrum := writeFile(t, dir, "flat.csv", flatSpectrumCSV)
	args := []string{"correct", eqePath, "--spectrum", spectrum, "--spectrum-kind", "custom", "-c", "1:2=0.1",
		"--max-iterations", "1", "--tolerance", "1e-15"}

	_, err := run(t, args...)
	assert.ErrorIs(t, err, errdefs.ErrConvergence)

	out, err := run(t, append(args, "--best-effort")...)
	require.NoError(t, err)
	assert.Contains(t, out, "after 1 iterations")
}

func TestCorrectCommandNeedsSpectrum(t *testing.T) {
	dir := t.TempDir()
	eqePath := writeFile(t, dir, "eqe.csv", eqeCSV)

	_, err := run(t, "correct", eqePath)
	assert.ErrorIs(t, err, errdefs.ErrValidation)
}

func TestBatchCommand(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.csv", eqeCSV)
	b := writeFile(t, dir, "b.csv", eqeCSV)
	bad := writeFile(t, dir, "bad.csv", "nm,top\n400,2\n500,0.5\n")
	spectrum := writeFile(t, dir, "flat.csv", flatSpectrumCSV)
	outDir := filepath.Join(dir, "out")

	out, err := run(t, "batch", a, b, "--spectrum", spectrum, "--spectrum-kind", "custom", "-c", "1:2=0.1", "-o", outDir, "--format", "xlsx")
	require.NoError(t, err, out)
	assert.FileExists(t, filepath.Join(outDir, "a.corrected.xlsx"))
	assert.FileExists(t, filepath.Join(outDir, "b.corrected.xlsx"))

	out, err = run(t, "batch", a, bad, "--spectrum", spectrum, "--spectrum-kind", "custom", "-o", outDir)
	assert.EqualError(t, err, "1 of 2 files failed")
	assert.Contains(t, out, "bad.csv")
	assert.FileExists(t, filepath.Join(outDir, "a.corrected.csv"))
}

func TestBatchCommandRejectsNoJobs(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.csv", eqeCSV)
	spectrum := writeFile(t, dir, "flat.csv", flatSpectrumCSV)

	for _, jobs := range []string{"0", "-2"} {
		done := make(chan error, 1)
		go func() {
			_, err := run(t, "batch", a, "--spectrum", spectrum, "--spectrum-kind", "custom", "-o", filepath.Join(dir, "out"), "-j", jobs)
			done <- err
		}()

		select {
		case err := <-done:
			assert.ErrorIs(t, err, errdefs.ErrValidation, "-j %s", jobs)
		case <-time.After(5 * time.Second):
			t.Fatalf("batch -j %s did not return", jobs)
		}
	}
}

func TestZeroCouplingWarns(t *testing.T) {
	hook := test.NewGlobal()
	defer hook.Reset()
	level := logrus.GetLevel()
	logrus.SetLevel(logrus.InfoLevel)
	defer logrus.SetLevel(level)

	in := inputFlags{coupling: []string{"1:2=0"}}
	m, err := in.loadCoupling(2)
	require.NoError(t, err)
	assert.True(t, m.IsZero())
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)

	hook.Reset()
	in = inputFlags{coupling: []string{"1:2=0.1"}}
	_, err = in.loadCoupling(2)
	require.NoError(t, err)
	assert.Empty(t, hook.AllEntries())
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "v0.0.0-dev")
}
