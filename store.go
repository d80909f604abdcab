package cdo

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// DefaultCacheDir is the name of the hidden directory created next to a source file.
const DefaultCacheDir = ".cdo"

// recordSuffix is appended to an entry key to name its fingerprint record.
const recordSuffix = ".hash"

// Store maps a source file to its last successful fingerprint and to the
// location of its compiled artifact inside one cache directory.
//
// The directory is never created by Open; EnsureDir (or a successful
// WriteFingerprint) creates it on demand.
type Store struct {
	dir      string
	fs       afero.Fs
	hashFunc HashFunc
	nowFunc  NowFunc
	pathKeys bool
	log      logrus.FieldLogger
	hasher   *Hasher
}

// Open returns a store rooted at dir. It performs no I/O.
func Open(dir string, options ...Option) *Store {
	store := &Store{
		dir:      dir,
		fs:       afero.NewOsFs(),
		hashFunc: defaultHashFunc,
		nowFunc:  time.Now,
		log:      discardLogger(),
	}

	for _, option := range options {
		option(store)
	}

	store.hasher = NewHasher(store.fs, store.hashFunc)
	return store
}

// CacheDirFor returns the cache directory associated with target:
// a directory called name inside the target's parent directory.
func CacheDirFor(target, name string) string {
	return filepath.Join(filepath.Dir(target), name)
}

// Dir returns the cache directory of the store.
func (s *Store) Dir() string {
	return s.dir
}

// Fs returns the filesystem the store reads and writes through.
func (s *Store) Fs() afero.Fs {
	return s.fs
}

// Fingerprint returns the current fingerprint of target's content.
func (s *Store) Fingerprint(target string) (Fingerprint, error) {
	return s.hasher.Sum(target)
}

// EnsureDir creates the cache directory if it doesn't exist.
func (s *Store) EnsureDir() error {
	if err := s.fs.MkdirAll(s.dir, 0o755); err != nil {
		return ioError("create cache directory", s.dir, err)
	}
	return nil
}

// Key returns the entry name used for target inside the cache directory.
func (s *Store) Key(target string) string {
	stem := stemOf(target)
	if !s.pathKeys {
		return stem
	}
	sum := fmt.Sprintf("%016x", xxhash.Sum64String(filepath.Clean(target)))
	return stem + "-" + sum[:8]
}

// ArtifactPath returns the location of target's compiled executable.
func (s *Store) ArtifactPath(target string) string {
	return filepath.Join(s.dir, s.Key(target))
}

// RecordPath returns the location of target's fingerprint record.
func (s *Store) RecordPath(target string) string {
	return filepath.Join(s.dir, s.Key(target)+recordSuffix)
}

// ReadFingerprint returns the fingerprint stored by the last successful build
// of target. It returns false when no record exists. A record that cannot be
// parsed is logged and reported as absent so that the next build recompiles.
func (s *Store) ReadFingerprint(target string) (Fingerprint, bool, error) {
	path := s.RecordPath(target)
	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, false, nil
		}
		return 0, false, ioError("read fingerprint", path, err)
	}

	fp, err := parseRecord(data)
	if err != nil {
		perr := &Error{Kind: KindParse, Op: "parse fingerprint", Path: path, Status: -1, Err: err}
		s.log.WithError(perr).WithField("record", path).Warn("ignoring corrupt fingerprint record")
		return 0, false, nil
	}
	return fp, true, nil
}

// WriteFingerprint stores fp as the last successful fingerprint of target,
// replacing any previous record.
func (s *Store) WriteFingerprint(target string, fp Fingerprint) error {
	if err := s.EnsureDir(); err != nil {
		return err
	}
	path := s.RecordPath(target)
	if err := afero.WriteFile(s.fs, path, []byte(fp.String()), 0o644); err != nil {
		return ioError("write fingerprint", path, err)
	}
	return nil
}

// DeleteAll removes the cache directory and everything under it.
// It returns false, without error, when there was nothing to delete.
func (s *Store) DeleteAll() (bool, error) {
	exists, err := afero.Exists(s.fs, s.dir)
	if err != nil {
		return false, ioError("check cache directory", s.dir, err)
	}
	if !exists {
		return false, nil
	}
	if err := s.fs.RemoveAll(s.dir); err != nil {
		return false, ioError("remove cache directory", s.dir, err)
	}
	return true, nil
}

// parseRecord decodes the content of a fingerprint record.
func parseRecord(data []byte) (Fingerprint, error) {
	text := strings.TrimSpace(string(data))
	if text == "" {
		return 0, errors.New("empty fingerprint record")
	}
	return parseFingerprint(text)
}

// stemOf returns the file name of path without its extension.
func stemOf(path string) string {
	base := filepath.Base(path)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" {
		return base
	}
	return stem
}

func discardLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
