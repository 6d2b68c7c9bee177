package command

import (
	"context"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExec_Run(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses sh")
	}
	dir := t.TempDir()
	out, err := Exec{}.Run(context.Background(), Spec{
		Name: "sh",
		Args: []string{"-c", "pwd; echo $FIM_TEST_VAR"},
		Dir:  dir,
		Env:  []string{"FIM_TEST_VAR=hello"},
	})
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasSuffix(lines[0], strings.TrimPrefix(dir, "/private")))
	assert.Equal(t, "hello", lines[1])
}

func TestExec_RunFailure(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses sh")
	}
	_, err := Exec{}.Run(context.Background(), Spec{Name: "sh", Args: []string{"-c", "echo broken >&2; exit 3"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exit status 3")
	assert.Contains(t, err.Error(), "broken")
}

func TestTail(t *testing.T) {
	assert.Equal(t, "cdef", string(tail([]byte("abcdef\n"), 4)))
	assert.Equal(t, "ab", string(tail([]byte(" ab "), 4)))
}
