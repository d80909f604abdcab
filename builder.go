package cdo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// BuildResult describes the outcome of EnsureBuilt.
type BuildResult struct {
	Source      string
	Artifact    string
	Fingerprint Fingerprint
	Compiled    bool // false when the stored fingerprint matched
	Duration    time.Duration
}

// Builder compiles a source file only when its content changed since the
// last successful build.
type Builder struct {
	Store    *Store
	Compiler Compiler
	Log      logrus.FieldLogger
	Stdout   io.Writer // receives the "Compiled ..." line

	// CompileTimeout bounds each compiler run. Zero means no limit.
	CompileTimeout time.Duration
}

// EnsureBuilt makes sure the artifact of target matches its current content.
//
// The compiler runs if and only if no fingerprint is stored for target or the
// stored one differs from the current content. The record is written only
// after the compiler reports success, so a failed build is retried next time.
// EnsureBuilt does not check that the artifact file still exists on a cache hit.
func (b *Builder) EnsureBuilt(ctx context.Context, target string) (BuildResult, error) {
	result := BuildResult{
		Source:   target,
		Artifact: b.Store.ArtifactPath(target),
	}
	log := b.logger().WithField("target", target)

	info, err := b.Store.Fs().Stat(target)
	if err != nil {
		return result, sourceError(target, err)
	}
	if info.IsDir() {
		return result, ioError("open source", target, errors.New("is a directory"))
	}

	current, err := b.Store.Fingerprint(target)
	if err != nil {
		return result, err
	}
	result.Fingerprint = current

	stored, ok, err := b.Store.ReadFingerprint(target)
	if err != nil {
		return result, err
	}
	if ok && stored == current {
		log.WithField("fingerprint", current).Debug("source unchanged, skipping compile")
		return result, nil
	}

	if err := b.Store.EnsureDir(); err != nil {
		return result, err
	}

	log.WithFields(logrus.Fields{
		"artifact":    result.Artifact,
		"fingerprint": current,
	}).Info("compiling")

	start := time.Now()
	if err := b.compile(ctx, target, result.Artifact); err != nil {
		return result, err
	}
	result.Duration = time.Since(start)
	result.Compiled = true

	if err := b.Store.WriteFingerprint(target, current); err != nil {
		return result, err
	}

	fmt.Fprintf(orDefault(b.Stdout, os.Stdout), "Compiled %s successfully.\n", target)
	log.WithField("duration", result.Duration).Debug("compile finished")
	return result, nil
}

// compile runs the compiler under the optional timeout and classifies failures.
func (b *Builder) compile(ctx context.Context, source, output string) error {
	if b.CompileTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.CompileTimeout)
		defer cancel()
	}

	err := b.Compiler.Compile(ctx, source, output)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return &Error{Kind: KindCancelled, Op: "compile", Path: source, Status: -1, Err: ctx.Err()}
	}
	return &Error{Kind: KindCompile, Op: "compile", Path: source, Status: exitStatus(err), Err: err}
}

func (b *Builder) logger() logrus.FieldLogger {
	if b.Log == nil {
		return discardLogger()
	}
	return b.Log
}
