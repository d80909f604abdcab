package cdo

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/afero"
)

// Stats represents cache directory statistics.
type Stats struct {
	Entries     int           // Number of fingerprint records
	Corrupt     int           // Records whose content could not be parsed
	TotalSize   int64         // Total size of all artifacts in bytes
	OldestEntry time.Duration // Age of the oldest successful build
	NewestEntry time.Duration // Age of the newest successful build
}

// Entry describes one target recorded in the cache directory.
type Entry struct {
	Key          string
	Fingerprint  Fingerprint
	Corrupt      bool // record present but unparsable; the next build recompiles
	Artifact     string
	HasArtifact  bool
	ArtifactSize int64
	BuiltAt      time.Time // modification time of the record
}

// Entries lists every fingerprint record in the cache directory, sorted by key.
// A missing cache directory yields no entries.
func (s *Store) Entries() ([]Entry, error) {
	infos, err := afero.ReadDir(s.fs, s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, ioError("list cache directory", s.dir, err)
	}

	var entries []Entry
	for _, info := range infos {
		if info.IsDir() || !strings.HasSuffix(info.Name(), recordSuffix) {
			continue
		}

		key := strings.TrimSuffix(info.Name(), recordSuffix)
		entry := Entry{
			Key:      key,
			Artifact: filepath.Join(s.dir, key),
			BuiltAt:  info.ModTime(),
		}

		data, err := afero.ReadFile(s.fs, filepath.Join(s.dir, info.Name()))
		if err != nil {
			return nil, ioError("read fingerprint", filepath.Join(s.dir, info.Name()), err)
		}
		fp, err := parseRecord(data)
		if err != nil {
			entry.Corrupt = true
		} else {
			entry.Fingerprint = fp
		}

		if ai, err := s.fs.Stat(entry.Artifact); err == nil && !ai.IsDir() {
			entry.HasArtifact = true
			entry.ArtifactSize = ai.Size()
		}

		entries = append(entries, entry)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return entries, nil
}

// Stats returns statistics about the cache directory.
func (s *Store) Stats() (Stats, error) {
	entries, err := s.Entries()
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{}
	var oldest, newest time.Time

	for _, e := range entries {
		stats.Entries++
		if e.Corrupt {
			stats.Corrupt++
		}
		stats.TotalSize += e.ArtifactSize

		if oldest.IsZero() || e.BuiltAt.Before(oldest) {
			oldest = e.BuiltAt
		}
		if newest.IsZero() || e.BuiltAt.After(newest) {
			newest = e.BuiltAt
		}
	}

	now := s.nowFunc()
	if !oldest.IsZero() {
		stats.OldestEntry = now.Sub(oldest)
	}
	if !newest.IsZero() {
		stats.NewestEntry = now.Sub(newest)
	}

	return stats, nil
}

// String formats an entry as one line of the status report.
func (e Entry) String() string {
	state := e.Fingerprint.String()
	if e.Corrupt {
		state = "corrupt"
	}
	artifact := "missing"
	if e.HasArtifact {
		artifact = fmt.Sprintf("%d bytes", e.ArtifactSize)
	}
	return fmt.Sprintf("%-24s %-20s %s", e.Key, state, artifact)
}
