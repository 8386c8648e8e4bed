// Package jsrun runs author JavaScript under Node.js for javascriptresponse.
package jsrun

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

//go:embed drivers/*.js
var drivers embed.FS

type NodeRunner struct {
	// Binary is the node executable, looked up in PATH when relative.
	Binary string
	// NodePath is prepended to JSDir in NODE_PATH.
	NodePath string
	// JSDir holds the course's generator, grader and dependency modules.
	JSDir   string
	Timeout time.Duration
	Logger  *zap.Logger

	once      sync.Once
	driverDir string
	driverErr error
}

func NewNodeRunner(binary, nodePath, jsDir string) *NodeRunner {
	if binary == "" {
		binary = "node"
	}
	return &NodeRunner{Binary: binary, NodePath: nodePath, JSDir: jsDir, Timeout: 20 * time.Second}
}

// unpackDrivers writes the embedded driver scripts to a private directory
// once per runner.
func (n *NodeRunner) unpackDrivers() (string, error) {
	n.once.Do(func() {
		dir, err := os.MkdirTemp("", "capa-jsrun-*")
		if err != nil {
			n.driverErr = err
			return
		}
		entries, err := drivers.ReadDir("drivers")
		if err != nil {
			n.driverErr = err
			return
		}
		for _, e := range entries {
			data, err := drivers.ReadFile("drivers/" + e.Name())
			if err != nil {
				n.driverErr = err
				return
			}
			if err := os.WriteFile(filepath.Join(dir, e.Name()), data, 0o644); err != nil {
				n.driverErr = err
				return
			}
		}
		n.driverDir = dir
	})
	return n.driverDir, n.driverErr
}

// Close removes the unpacked driver scripts.
func (n *NodeRunner) Close() error {
	if n.driverDir == "" {
		return nil
	}
	return os.RemoveAll(n.driverDir)
}

func (n *NodeRunner) resolve(script string) (string, error) {
	if _, err := drivers.Open("drivers/" + script); err == nil {
		dir, err := n.unpackDrivers()
		if err != nil {
			return "", err
		}
		return filepath.Join(dir, script), nil
	}
	if filepath.IsAbs(script) {
		return script, nil
	}
	return filepath.Join(n.JSDir, filepath.Clean("/"+script)), nil
}

// Run executes script with args and returns its stdout. On failure the
// error carries node's stderr.
func (n *NodeRunner) Run(ctx context.Context, script string, args ...string) (string, error) {
	bin, err := exec.LookPath(n.Binary)
	if err != nil {
		return "", errors.New(n.Binary + " not found in PATH")
	}
	path, err := n.resolve(script)
	if err != nil {
		return "", err
	}
	if n.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.Timeout)
		defer cancel()
	}
	cmd := exec.CommandContext(ctx, bin, append([]string{path}, args...)...)
	cmd.Env = append(os.Environ(), "NODE_PATH="+n.nodePath())
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if n.Logger != nil {
			n.Logger.Warn("node failed", zap.String("script", script), zap.Error(err))
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return "", errors.New(msg)
	}
	return out.String(), nil
}

func (n *NodeRunner) nodePath() string {
	parts := []string{}
	if n.NodePath != "" {
		parts = append(parts, n.NodePath)
	}
	if n.JSDir != "" {
		parts = append(parts, filepath.Clean(n.JSDir))
	}
	return strings.Join(parts, string(os.PathListSeparator))
}
