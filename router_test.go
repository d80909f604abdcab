package cdo

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testRouter struct {
	*Router
	fs       afero.Fs
	compiler *fakeCompiler
	runner   *fakeRunner
	stdout   *bytes.Buffer
	stderr   *bytes.Buffer
}

func newTestRouter(t *testing.T) *testRouter {
	t.Helper()
	memFs := afero.NewMemMapFs()
	createTestDir(t, memFs, "/work")

	tr := &testRouter{
		fs:       memFs,
		compiler: &fakeCompiler{fs: memFs},
		runner:   &fakeRunner{},
		stdout:   &bytes.Buffer{},
		stderr:   &bytes.Buffer{},
	}
	tr.Router = &Router{
		Fs:       memFs,
		Config:   DefaultConfig(),
		Compiler: tr.compiler,
		Runner:   tr.runner,
		Stdout:   tr.stdout,
		Stderr:   tr.stderr,
	}
	return tr
}

func (tr *testRouter) dispatch(t *testing.T, args ...string) error {
	t.Helper()
	return tr.Dispatch(context.Background(), Invocation{Args: args, Cwd: "/work"})
}

func TestInvocation(t *testing.T) {
	inv := Invocation{Cwd: "/work"}
	assert.Equal(t, "run", inv.Command())
	assert.Empty(t, inv.Path())
	assert.Nil(t, inv.ProgramArgs())

	inv.Args = []string{"build", "sub/a.cpp"}
	assert.Equal(t, "build", inv.Command())
	assert.Equal(t, filepath.FromSlash("/work/sub/a.cpp"), inv.Path())

	inv.Args = []string{"run", "/abs/a.cpp", "-n", "3"}
	assert.Equal(t, "/abs/a.cpp", inv.Path())
	assert.Equal(t, []string{"-n", "3"}, inv.ProgramArgs())
}

func TestBuildCachesAcrossInvocations(t *testing.T) {
	tr := newTestRouter(t)
	createTestFile(t, tr.fs, "/work/a.cpp", []byte(mainSource))

	require.NoError(t, tr.dispatch(t, "build"))
	assert.Equal(t, 1, tr.compiler.count())
	assert.Contains(t, tr.stdout.String(), "Compiled /work/a.cpp successfully.")

	artifact := filepath.FromSlash("/work/.cdo/a")
	record := filepath.FromSlash("/work/.cdo/a.hash")
	exists, _ := afero.Exists(tr.fs, artifact)
	assert.True(t, exists, "artifact not written")
	assert.Equal(t, HashBytes([]byte(mainSource)).String(), readTestFile(t, tr.fs, record))

	tr.stdout.Reset()
	require.NoError(t, tr.dispatch(t, "build"))
	assert.Equal(t, 1, tr.compiler.count(), "unchanged source must not recompile")
	assert.Empty(t, tr.stdout.String())
	assert.Zero(t, tr.runner.count(), "build must not run the program")
}

func TestRunRecompilesModifiedSource(t *testing.T) {
	tr := newTestRouter(t)
	createTestFile(t, tr.fs, "/work/a.cpp", []byte(mainSource))

	require.NoError(t, tr.dispatch(t, "run"))
	require.NoError(t, tr.dispatch(t))
	assert.Equal(t, 1, tr.compiler.count())
	assert.Equal(t, 2, tr.runner.count())

	edited := mainSource + "int helper() { return 1; }\n"
	createTestFile(t, tr.fs, "/work/a.cpp", []byte(edited))

	require.NoError(t, tr.dispatch(t, "run"))
	assert.Equal(t, 2, tr.compiler.count())
	assert.Equal(t, 3, tr.runner.count())
	assert.Equal(t, HashBytes([]byte(edited)).String(), readTestFile(t, tr.fs, "/work/.cdo/a.hash"))
}

func TestRunForwardsProgramArgs(t *testing.T) {
	tr := newTestRouter(t)
	createTestFile(t, tr.fs, "/work/prog.cpp", []byte(mainSource))

	require.NoError(t, tr.dispatch(t, "run", "prog.cpp", "--count", "3"))
	require.Len(t, tr.runner.runs, 1)
	assert.Equal(t, []string{filepath.FromSlash("/work/.cdo/prog"), "--count", "3"}, tr.runner.runs[0])
}

func TestCleanRemovesCacheDirectory(t *testing.T) {
	tr := newTestRouter(t)
	createTestFile(t, tr.fs, "/work/a.cpp", []byte(mainSource))
	require.NoError(t, tr.dispatch(t, "build"))

	tr.stdout.Reset()
	require.NoError(t, tr.dispatch(t, "clean"))
	assert.Equal(t, "Deleted cdo directory: "+filepath.FromSlash("/work/.cdo")+"\n", tr.stdout.String())
	exists, _ := afero.Exists(tr.fs, "/work/.cdo")
	assert.False(t, exists)

	srcExists, _ := afero.Exists(tr.fs, "/work/a.cpp")
	assert.True(t, srcExists, "clean must keep sources")

	tr.stdout.Reset()
	require.NoError(t, tr.dispatch(t, "clean"))
	assert.Equal(t, "No cdo directory found to delete.\n", tr.stdout.String())
	assert.Empty(t, tr.stderr.String())
}

func TestCleanWithExplicitPath(t *testing.T) {
	tr := newTestRouter(t)
	createTestFile(t, tr.fs, "/work/sub/a.cpp", []byte(mainSource))
	require.NoError(t, tr.dispatch(t, "build", "sub/a.cpp"))

	exists, _ := afero.Exists(tr.fs, "/work/sub/.cdo/a")
	require.True(t, exists, "cache directory must sit next to the source")

	require.NoError(t, tr.dispatch(t, "clean", "sub/a.cpp"))
	exists, _ = afero.Exists(tr.fs, "/work/sub/.cdo")
	assert.False(t, exists)
}

func TestMissingTargetPrintsGuidance(t *testing.T) {
	for _, cmd := range []string{"build", "run", "watch"} {
		t.Run(cmd, func(t *testing.T) {
			tr := newTestRouter(t)
			createTestFile(t, tr.fs, "/work/lib.cpp", []byte("int add(int a, int b) { return a + b; }\n"))
			tr.Config.StrictExit = true

			require.NoError(t, tr.dispatch(t, cmd))
			assert.Contains(t, tr.stderr.String(), `You used the "`+cmd+`" command without an available path`)
			assert.Zero(t, tr.compiler.count())
			assert.Zero(t, tr.runner.count())

			exists, _ := afero.Exists(tr.fs, "/work/.cdo")
			assert.False(t, exists, "no cache directory may be created")
		})
	}
}

func TestMissingExplicitSource(t *testing.T) {
	tr := newTestRouter(t)

	require.NoError(t, tr.dispatch(t, "build", "gone.cpp"))
	assert.Contains(t, tr.stderr.String(), "Error: open source")
	assert.Contains(t, tr.stderr.String(), ErrSourceNotFound.Error())

	exists, _ := afero.Exists(tr.fs, "/work/.cdo")
	assert.False(t, exists)
}

func TestCompileFailureIsReported(t *testing.T) {
	tr := newTestRouter(t)
	createTestFile(t, tr.fs, "/work/a.cpp", []byte(mainSource))
	tr.compiler.fail = exitStatusError(1)

	require.NoError(t, tr.dispatch(t, "run"))
	assert.Contains(t, tr.stderr.String(), "compiler exited with status 1")
	assert.Zero(t, tr.runner.count(), "a failed build must not run")

	exists, _ := afero.Exists(tr.fs, "/work/.cdo/a.hash")
	assert.False(t, exists)
}

func TestRunMissingArtifact(t *testing.T) {
	tr := newTestRouter(t)
	createTestFile(t, tr.fs, "/work/a.cpp", []byte(mainSource))
	require.NoError(t, tr.dispatch(t, "build"))
	require.NoError(t, tr.fs.Remove("/work/.cdo/a"))

	require.NoError(t, tr.dispatch(t, "run"))
	assert.Contains(t, tr.stderr.String(), ErrArtifactMissing.Error())
	assert.Zero(t, tr.runner.count())
	assert.Equal(t, 1, tr.compiler.count(), "the record alone decides whether to compile")
}

func TestRunFailureIsReported(t *testing.T) {
	tr := newTestRouter(t)
	createTestFile(t, tr.fs, "/work/a.cpp", []byte(mainSource))
	tr.runner.fail = exitStatusError(3)

	require.NoError(t, tr.dispatch(t, "run"))
	assert.Contains(t, tr.stdout.String(), "\nC++ program failed to run.\n")
	assert.Empty(t, tr.stderr.String())
}

func TestRunnerStartFailure(t *testing.T) {
	tr := newTestRouter(t)
	createTestFile(t, tr.fs, "/work/a.cpp", []byte(mainSource))
	tr.runner.fail = errors.New("exec format error")
	tr.Config.StrictExit = true

	err := tr.dispatch(t, "run")
	assertExitCode(t, err, 1)
	assert.Contains(t, tr.stderr.String(), "exec format error")
}

func TestUnknownCommand(t *testing.T) {
	tr := newTestRouter(t)

	require.NoError(t, tr.dispatch(t, "deploy"))
	assert.Equal(t, "Unknown command: deploy. Use 'build', 'run', or 'clean'.\n", tr.stderr.String())

	tr.Config.StrictExit = true
	assertExitCode(t, tr.dispatch(t, "deploy"), 2)
}

func TestStrictExitCodes(t *testing.T) {
	t.Run("compile failure", func(t *testing.T) {
		tr := newTestRouter(t)
		tr.Config.StrictExit = true
		createTestFile(t, tr.fs, "/work/a.cpp", []byte(mainSource))
		tr.compiler.fail = exitStatusError(1)

		err := tr.dispatch(t, "build")
		assertExitCode(t, err, 1)
	})

	t.Run("program status", func(t *testing.T) {
		tr := newTestRouter(t)
		tr.Config.StrictExit = true
		createTestFile(t, tr.fs, "/work/a.cpp", []byte(mainSource))
		tr.runner.fail = exitStatusError(42)

		assertExitCode(t, tr.dispatch(t, "run"), 42)
	})

	t.Run("success", func(t *testing.T) {
		tr := newTestRouter(t)
		tr.Config.StrictExit = true
		createTestFile(t, tr.fs, "/work/a.cpp", []byte(mainSource))

		assert.NoError(t, tr.dispatch(t, "run"))
	})
}

func TestRunTimeout(t *testing.T) {
	tr := newTestRouter(t)
	createTestFile(t, tr.fs, "/work/a.cpp", []byte(mainSource))
	tr.runner.block = true
	tr.Config.RunTimeout = 1
	tr.Config.StrictExit = true

	err := tr.dispatch(t, "run")
	assertExitCode(t, err, 1)
	assert.Contains(t, tr.stderr.String(), "run "+filepath.FromSlash("/work/.cdo/a")+": cancelled")
}

func TestHelp(t *testing.T) {
	tr := newTestRouter(t)

	require.NoError(t, tr.dispatch(t, "help"))
	out := tr.stdout.String()
	for _, cmd := range []string{"build", "run", "clean", "status", "watch", "config", "help"} {
		assert.Contains(t, out, "  "+cmd+" ")
	}
	assert.Zero(t, tr.compiler.count())
}

func TestStatus(t *testing.T) {
	tr := newTestRouter(t)

	require.NoError(t, tr.dispatch(t, "status"))
	assert.Equal(t, "No builds recorded in "+filepath.FromSlash("/work/.cdo")+".\n", tr.stdout.String())

	createTestFile(t, tr.fs, "/work/a.cpp", []byte(mainSource))
	require.NoError(t, tr.dispatch(t, "build"))

	tr.stdout.Reset()
	require.NoError(t, tr.dispatch(t, "status"))
	out := tr.stdout.String()
	assert.Contains(t, out, "TARGET")
	assert.Contains(t, out, HashBytes([]byte(mainSource)).String())
	assert.Contains(t, out, "1 entries, 0 corrupt")
}

func TestPrintConfig(t *testing.T) {
	tr := newTestRouter(t)

	require.NoError(t, tr.dispatch(t, "config"))
	out := tr.stdout.String()
	assert.Contains(t, out, "compiler: clang++")
	assert.Contains(t, out, "cache_key: stem")
	assert.Contains(t, out, "watch_debounce: 100ms")
}

func TestPathCacheKeys(t *testing.T) {
	tr := newTestRouter(t)
	tr.Config.CacheKey = CacheKeyPath
	createTestFile(t, tr.fs, "/work/a.cpp", []byte(mainSource))

	require.NoError(t, tr.dispatch(t, "run"))

	key := Open("/work/.cdo", WithPathKeys()).Key(filepath.FromSlash("/work/a.cpp"))
	assert.NotEqual(t, "a", key)
	exists, _ := afero.Exists(tr.fs, filepath.Join("/work/.cdo", key))
	assert.True(t, exists, "artifact %s not written", key)
	require.Len(t, tr.runner.runs, 1)
	assert.Equal(t, filepath.Join("/work/.cdo", key), tr.runner.runs[0][0])
}

func assertExitCode(t *testing.T, err error, code int) {
	t.Helper()
	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr), "expected *ExitError, got %v", err)
	assert.Equal(t, code, exitErr.ExitCode())
}
