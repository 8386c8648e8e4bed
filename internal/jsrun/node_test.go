package jsrun

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	n := NewNodeRunner("", "", "/course/js")
	defer n.Close()
	assert.Equal(t, "node", n.Binary)

	p, err := n.resolve("javascript_problem_grader.js")
	require.NoError(t, err)
	assert.FileExists(t, p)

	p, err = n.resolve("../../etc/passwd")
	require.NoError(t, err)
	assert.Equal(t, "/course/js/etc/passwd", p)

	p, err = n.resolve("/abs/gen.js")
	require.NoError(t, err)
	assert.Equal(t, "/abs/gen.js", p)
}

func TestNodePath(t *testing.T) {
	n := NewNodeRunner("", "/usr/lib/node_modules", "/course/js/")
	assert.Equal(t, "/usr/lib/node_modules"+string(os.PathListSeparator)+"/course/js", n.nodePath())
	assert.Equal(t, "", NewNodeRunner("", "", "").nodePath())
}

func TestCloseRemovesDrivers(t *testing.T) {
	n := NewNodeRunner("", "", t.TempDir())
	p, err := n.resolve("javascript_problem_generator.js")
	require.NoError(t, err)
	require.NoError(t, n.Close())
	assert.NoFileExists(t, p)
}

func TestRunMissingBinary(t *testing.T) {
	n := NewNodeRunner("definitely-not-node-binary", "", t.TempDir())
	_, err := n.Run(context.Background(), "x.js")
	assert.EqualError(t, err, "definitely-not-node-binary not found in PATH")
}

func TestRun(t *testing.T) {
	if _, err := exec.LookPath("node"); err != nil {
		t.Skip("node is not installed")
	}
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "echo.js"),
		[]byte(`console.log(process.argv.slice(2).join("|"));`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "fail.js"),
		[]byte(`console.error("grader exploded"); process.exit(3);`), 0o644))

	n := NewNodeRunner("", "", dir)
	defer n.Close()
	out, err := n.Run(context.Background(), "echo.js", "a", "b c")
	require.NoError(t, err)
	assert.Equal(t, "a|b c\n", out)

	_, err = n.Run(context.Background(), "fail.js")
	assert.EqualError(t, err, "grader exploded")
}
