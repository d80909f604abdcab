/*
Package cdo implements an incremental build and run wrapper for a single C++ source file.

It compiles a source file only when its content changed since the last successful
build, and can execute the resulting binary.

# Overview

cdo keeps, next to the source file, a hidden cache directory holding one fingerprint
record and one compiled artifact per target:

	<source dir>/
	├── main.cpp
	└── .cdo/
	    ├── main       compiled executable
	    └── main.hash  xxHash64 of main.cpp as a decimal number

A target is recompiled if and only if no record exists or the stored fingerprint
differs from the fingerprint of the current content. Modification times and the
presence of the artifact play no part in that decision. The record is written only
after the compiler reports success.

# Components

  - Hasher: xxHash64 fingerprints of file content read through afero
  - Store: fingerprint records, artifact paths and cache directory lifecycle
  - Locator: picks the target, either an explicit path or the first file (by name)
    with the source extension that contains the entry marker
  - Builder: the recompile decision and the compiler invocation
  - Router: the help, clean, build, run, status, config and watch commands

# Basic Usage

	router := cdo.NewRouter(cdo.DefaultConfig(), logrus.New())
	cwd, _ := os.Getwd()
	err := router.Dispatch(ctx, cdo.Invocation{Args: os.Args[1:], Cwd: cwd})

Using the engine directly:

	store := cdo.Open(cdo.CacheDirFor("src/main.cpp", cdo.DefaultCacheDir))
	builder := &cdo.Builder{Store: store, Compiler: cdo.ExecCompiler{}}
	result, err := builder.EnsureBuilt(ctx, "src/main.cpp")
	if err != nil {
	    log.Fatal(err)
	}
	fmt.Println(result.Artifact, result.Compiled)

# Corrupt records

A record that does not hold a decimal number is logged and treated as missing,
so the next build recompiles. It is never reported as an error.

# Error Handling

Every failure is an *Error with a Kind:

  - KindIO: missing, unreadable or unwritable files (ErrSourceNotFound, ErrArtifactMissing)
  - KindCompile: the compiler reported failure; Status holds its exit status
  - KindCancelled: a compile or run exceeded its configured timeout

# Concurrency

A Store performs no locking. Two processes building the same target at the same
time race on the record and artifact files.
*/
package cdo
