package cdo

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// Invocation captures the process inputs once, at startup.
// Args excludes the program name.
type Invocation struct {
	Args []string
	Cwd  string
}

// Command returns the requested command, "run" when none was given.
func (inv Invocation) Command() string {
	if len(inv.Args) == 0 || inv.Args[0] == "" {
		return "run"
	}
	return inv.Args[0]
}

// Path returns the explicit source path made absolute against Cwd,
// or "" when no path was given.
func (inv Invocation) Path() string {
	if len(inv.Args) < 2 || inv.Args[1] == "" {
		return ""
	}
	p := inv.Args[1]
	if !filepath.IsAbs(p) {
		p = filepath.Join(inv.Cwd, p)
	}
	return p
}

// ProgramArgs returns the arguments forwarded to the compiled program.
func (inv Invocation) ProgramArgs() []string {
	if len(inv.Args) < 3 {
		return nil
	}
	return inv.Args[2:]
}

// Router dispatches the help, clean, build, run, status, config and watch
// commands. It holds no state between invocations beyond the cache directory.
type Router struct {
	Fs       afero.Fs
	Config   Config
	Compiler Compiler
	Runner   Runner
	Log      logrus.FieldLogger
	Stdout   io.Writer
	Stderr   io.Writer
	NowFunc  NowFunc

	// Watcher creates the event source used by the watch command.
	// Nil selects fsnotify.
	Watcher func() (EventSource, error)

	// StoreOptions are appended to the options derived from Config.
	StoreOptions []Option
}

// NewRouter returns a Router working on the OS filesystem and the real
// compiler and program runner.
func NewRouter(cfg Config, log logrus.FieldLogger) *Router {
	return &Router{
		Fs:       afero.NewOsFs(),
		Config:   cfg,
		Compiler: ExecCompiler{Program: cfg.Compiler},
		Runner:   ExecRunner{},
		Log:      log,
		Stdout:   os.Stdout,
		Stderr:   os.Stderr,
		NowFunc:  time.Now,
	}
}

// Dispatch executes one invocation.
//
// Failures are reported on Stderr. The returned error is nil on every such
// path unless Config.StrictExit is set, in which case an *ExitError carries
// the exit status to use.
func (r *Router) Dispatch(ctx context.Context, inv Invocation) error {
	cmd := inv.Command()
	r.logger().WithFields(logrus.Fields{"command": cmd, "cwd": inv.Cwd}).Debug("dispatch")

	switch cmd {
	case "help":
		r.printUsage()
		return nil
	case "clean":
		return r.clean(inv)
	case "status":
		return r.status(inv)
	case "config":
		return r.printConfig()
	case "build", "run", "watch":
		target, ok := r.resolve(inv)
		if !ok {
			fmt.Fprintf(r.stderr(), "You used the %q command without an available path, either provide one or go to the correct directory.\n", cmd)
			return nil
		}
		switch cmd {
		case "build":
			return r.build(ctx, target)
		case "run":
			return r.run(ctx, target, inv.ProgramArgs())
		default:
			return r.watch(ctx, target, inv.ProgramArgs())
		}
	default:
		msg := fmt.Sprintf("Unknown command: %s. Use 'build', 'run', or 'clean'.", cmd)
		fmt.Fprintln(r.stderr(), msg)
		return r.exit(2, msg)
	}
}

// resolve finds the target for build, run and watch.
func (r *Router) resolve(inv Invocation) (string, bool) {
	locator := &Locator{
		Fs:        r.Fs,
		Extension: r.Config.Extension,
		Marker:    r.Config.EntryMarker,
		Log:       r.logger(),
	}
	return locator.Resolve(inv.Path(), inv.Cwd)
}

// cacheDir returns the cache directory an invocation refers to: next to the
// explicit path when one was given, otherwise in the working directory.
func (r *Router) cacheDir(inv Invocation) string {
	if p := inv.Path(); p != "" {
		return CacheDirFor(p, r.Config.CacheDir)
	}
	return filepath.Join(inv.Cwd, r.Config.CacheDir)
}

func (r *Router) openStore(dir string) *Store {
	options := []Option{WithFs(r.Fs), WithLogger(r.logger())}
	if r.NowFunc != nil {
		options = append(options, WithNowFunc(r.NowFunc))
	}
	options = append(options, r.Config.storeOptions()...)
	options = append(options, r.StoreOptions...)
	return Open(dir, options...)
}

func (r *Router) builder(target string) *Builder {
	return &Builder{
		Store:          r.openStore(CacheDirFor(target, r.Config.CacheDir)),
		Compiler:       r.Compiler,
		Log:            r.logger(),
		Stdout:         r.stdout(),
		CompileTimeout: r.Config.CompileTimeout,
	}
}

func (r *Router) build(ctx context.Context, target string) error {
	if _, err := r.builder(target).EnsureBuilt(ctx, target); err != nil {
		return r.fail(err)
	}
	return nil
}

func (r *Router) run(ctx context.Context, target string, args []string) error {
	result, err := r.builder(target).EnsureBuilt(ctx, target)
	if err != nil {
		return r.fail(err)
	}

	exists, err := afero.Exists(r.Fs, result.Artifact)
	if err != nil {
		return r.fail(ioError("run", result.Artifact, err))
	}
	if !exists {
		return r.fail(ioError("run", result.Artifact, ErrArtifactMissing))
	}

	runCtx := ctx
	if r.Config.RunTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.Config.RunTimeout)
		defer cancel()
	}

	r.logger().WithField("artifact", result.Artifact).Debug("running")
	err = r.Runner.Run(runCtx, result.Artifact, args)
	if err == nil {
		return nil
	}
	if runCtx.Err() != nil {
		return r.fail(&Error{Kind: KindCancelled, Op: "run", Path: result.Artifact, Status: -1, Err: runCtx.Err()})
	}
	status := exitStatus(err)
	if status < 0 {
		return r.fail(ioError("run", result.Artifact, err))
	}
	fmt.Fprintln(r.stdout(), "\nC++ program failed to run.")
	return r.exit(status, fmt.Sprintf("program exited with status %d", status))
}

func (r *Router) clean(inv Invocation) error {
	store := r.openStore(r.cacheDir(inv))
	deleted, err := store.DeleteAll()
	if err != nil {
		return r.fail(err)
	}
	if deleted {
		fmt.Fprintf(r.stdout(), "Deleted cdo directory: %s\n", store.Dir())
	} else {
		fmt.Fprintln(r.stdout(), "No cdo directory found to delete.")
	}
	return nil
}

func (r *Router) status(inv Invocation) error {
	store := r.openStore(r.cacheDir(inv))
	entries, err := store.Entries()
	if err != nil {
		return r.fail(err)
	}
	if len(entries) == 0 {
		fmt.Fprintf(r.stdout(), "No builds recorded in %s.\n", store.Dir())
		return nil
	}

	stats, err := store.Stats()
	if err != nil {
		return r.fail(err)
	}

	out := r.stdout()
	fmt.Fprintf(out, "Cache directory: %s\n\n", store.Dir())
	fmt.Fprintf(out, "%-24s %-20s %s\n", "TARGET", "FINGERPRINT", "ARTIFACT")
	for _, e := range entries {
		fmt.Fprintln(out, e.String())
	}
	fmt.Fprintf(out, "\n%d entries, %d corrupt, %d bytes, newest build %s ago\n",
		stats.Entries, stats.Corrupt, stats.TotalSize, stats.NewestEntry.Truncate(time.Second))
	return nil
}

func (r *Router) printConfig() error {
	data, err := r.Config.YAML()
	if err != nil {
		return r.fail(err)
	}
	_, _ = r.stdout().Write(data)
	return nil
}

// fail reports err and converts it to the exit policy.
func (r *Router) fail(err error) error {
	fmt.Fprintf(r.stderr(), "Error: %v\n", err)
	return r.exit(1, err.Error())
}

// exit returns an *ExitError in strict mode and nil otherwise.
func (r *Router) exit(code int, msg string) error {
	if !r.Config.StrictExit || code == 0 {
		return nil
	}
	return &ExitError{Code: code, Msg: msg}
}

func (r *Router) printUsage() {
	fmt.Fprint(r.stdout(), usage)
}

const usage = `Usage: cdo [command] [source_file] [program args...]

Commands:
  build       Compiles the specified C++ source file or the one with a main function found in the current directory.
  run         Executes the compiled binary, building it first when the source changed. This is the default command.
  clean       Removes the cache directory with every compiled binary and hash file.
  status      Lists the targets recorded in the cache directory.
  watch       Runs the program, then rebuilds and reruns it every time the source file changes.
  config      Prints the effective configuration.
  help        Displays this help message.

If no source file is provided, the program will look for a C++ file with a main function in the current directory.
The compiled binary is placed in the '.cdo' directory next to the source file.
`

func (r *Router) stdout() io.Writer { return orDefault(r.Stdout, os.Stdout) }
func (r *Router) stderr() io.Writer { return orDefault(r.Stderr, os.Stderr) }

func (r *Router) logger() logrus.FieldLogger {
	if r.Log == nil {
		return discardLogger()
	}
	return r.Log
}
