package gosmo

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoString(t *testing.T) {
	t.Parallel()
	results, err := DoString("demo", `return 1 + 2, "done"`)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, float64(3), results[0].Num())
	assert.Equal(t, "done", results[1].Str())
}

func TestDoStringParseError(t *testing.T) {
	t.Parallel()
	_, err := DoString("demo", `var = 1`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "demo")
}

func TestDoFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "script.gsm")
	require.NoError(t, os.WriteFile(path, []byte(`return 40 + 2`), 0o644))
	results, err := DoFile(path)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, float64(42), results[0].Num())
}

func TestDoFileMissing(t *testing.T) {
	t.Parallel()
	_, err := DoFile("no/such/file.gsm")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "could not read")
}
