package cdo

import (
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// NowFunc defines a function that returns the current time.
type NowFunc func() time.Time

// Option defines a function that configures a Store.
type Option func(*Store)

// WithFs sets a custom filesystem for the store.
// This is primarily useful for testing with in-memory filesystems.
//
// Example:
//
//	store := cdo.Open("/src/.cdo", cdo.WithFs(afero.NewMemMapFs()))
func WithFs(fs afero.Fs) Option {
	return func(s *Store) {
		s.fs = fs
	}
}

// WithHashFunc sets a custom hash function for fingerprints.
// The default is xxHash64.
//
// Note: Changing the hash function invalidates every existing record,
// so each target is rebuilt once.
func WithHashFunc(hashFunc HashFunc) Option {
	return func(s *Store) {
		s.hashFunc = hashFunc
	}
}

// WithNowFunc sets a custom time function for the store.
// This is primarily useful for testing with deterministic ages in Stats.
func WithNowFunc(nowFunc NowFunc) Option {
	return func(s *Store) {
		s.nowFunc = nowFunc
	}
}

// WithPathKeys keys cache entries by stem plus a digest of the full target
// path, so two sources with the same file name never share a slot.
func WithPathKeys() Option {
	return func(s *Store) {
		s.pathKeys = true
	}
}

// WithLogger sets the logger used for recovered problems such as corrupt
// fingerprint records.
func WithLogger(log logrus.FieldLogger) Option {
	return func(s *Store) {
		s.log = log
	}
}
