package cdo

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
)

// DefaultCompiler is the compiler program invoked when none is configured.
const DefaultCompiler = "clang++"

// Compiler turns one source file into an executable at output.
// A non-nil error means the build did not succeed.
type Compiler interface {
	Compile(ctx context.Context, source, output string) error
}

// Runner executes a compiled program and waits for it to exit.
type Runner interface {
	Run(ctx context.Context, executable string, args []string) error
}

// ExecCompiler runs "<Program> <source> -o <output>" as a child process
// sharing the caller's terminal.
type ExecCompiler struct {
	Program string
	Stdout  io.Writer
	Stderr  io.Writer
}

// Compile implements Compiler.
func (c ExecCompiler) Compile(ctx context.Context, source, output string) error {
	program := c.Program
	if program == "" {
		program = DefaultCompiler
	}
	cmd := exec.CommandContext(ctx, program, source, "-o", output)
	cmd.Stdout = orDefault(c.Stdout, os.Stdout)
	cmd.Stderr = orDefault(c.Stderr, os.Stderr)
	return cmd.Run()
}

// ExecRunner runs a program with inherited stdin and the configured outputs.
type ExecRunner struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Run implements Runner.
func (r ExecRunner) Run(ctx context.Context, executable string, args []string) error {
	cmd := exec.CommandContext(ctx, executable, args...)
	if r.Stdin != nil {
		cmd.Stdin = r.Stdin
	} else {
		cmd.Stdin = os.Stdin
	}
	cmd.Stdout = orDefault(r.Stdout, os.Stdout)
	cmd.Stderr = orDefault(r.Stderr, os.Stderr)
	return cmd.Run()
}

// exitStatus extracts the exit code carried by err, or -1.
func exitStatus(err error) int {
	var ec interface{ ExitCode() int }
	if errors.As(err, &ec) {
		return ec.ExitCode()
	}
	return -1
}

func orDefault(w, def io.Writer) io.Writer {
	if w == nil {
		return def
	}
	return w
}
