// Package command runs external programs (git, the inundation mapper).
package command

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
)

// Spec describes one program invocation.
type Spec struct {
	Name string
	Args []string
	Dir  string
	Env  []string // appended to the current environment
}

func (s Spec) String() string {
	return fmt.Sprintf("%s %v", s.Name, s.Args)
}

// Runner executes a program and returns its combined output.
type Runner interface {
	Run(ctx context.Context, spec Spec) ([]byte, error)
}

// Exec runs programs with os/exec.
type Exec struct{}

// Run implements Runner. A non-zero exit is returned as an error that
// includes the tail of the program output.
func (Exec) Run(ctx context.Context, spec Spec) ([]byte, error) {
	cmd := exec.CommandContext(ctx, spec.Name, spec.Args...)
	cmd.Dir = spec.Dir
	if len(spec.Env) > 0 {
		cmd.Env = append(os.Environ(), spec.Env...)
	}
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return out.Bytes(), fmt.Errorf("%s: %w: %s", spec.Name, err, tail(out.Bytes(), 2048))
	}
	return out.Bytes(), nil
}

func tail(b []byte, n int) []byte {
	b = bytes.TrimSpace(b)
	if len(b) <= n {
		return b
	}
	return b[len(b)-n:]
}
