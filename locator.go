package cdo

import (
	"bytes"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

const (
	// DefaultExtension is the source extension looked for during discovery.
	DefaultExtension = ".cpp"
	// DefaultEntryMarker identifies the file holding the program entry point.
	DefaultEntryMarker = "int main"
)

// Locator decides which source file an invocation targets.
type Locator struct {
	Fs        afero.Fs
	Extension string
	Marker    string
	Log       logrus.FieldLogger
}

// NewLocator returns a Locator with the default extension and marker.
func NewLocator(fs afero.Fs) *Locator {
	return &Locator{
		Fs:        fs,
		Extension: DefaultExtension,
		Marker:    DefaultEntryMarker,
		Log:       discardLogger(),
	}
}

// Resolve returns the target source file. An explicit path is returned as is;
// its existence is checked by the builder. Otherwise searchRoot is scanned
// (not recursively) for a file with the configured extension whose content
// contains the entry marker. Files are visited in name order and the first
// match wins. The boolean is false when no target was found.
func (l *Locator) Resolve(explicit, searchRoot string) (string, bool) {
	if explicit != "" {
		return explicit, true
	}

	candidates := l.Candidates(searchRoot)
	if len(candidates) == 0 {
		return "", false
	}
	if len(candidates) > 1 {
		l.logger().WithFields(logrus.Fields{
			"selected": candidates[0],
			"ignored":  strings.Join(candidates[1:], ", "),
		}).Warn("several entry-point files found, pass a path to choose another one")
	}
	return candidates[0], true
}

// Candidates returns every file in dir that looks like a program entry point,
// sorted by name. An unreadable directory has no candidates.
func (l *Locator) Candidates(dir string) []string {
	infos, err := afero.ReadDir(l.Fs, dir)
	if err != nil {
		l.logger().WithError(err).WithField("dir", dir).Debug("cannot scan for sources")
		return nil
	}

	marker := []byte(l.Marker)
	var found []string
	for _, info := range infos {
		if info.IsDir() || filepath.Ext(info.Name()) != l.Extension {
			continue
		}
		path := filepath.Join(dir, info.Name())
		content, err := afero.ReadFile(l.Fs, path)
		if err != nil {
			continue
		}
		if bytes.Contains(content, marker) {
			found = append(found, path)
		}
	}
	return found
}

func (l *Locator) logger() logrus.FieldLogger {
	if l.Log == nil {
		return discardLogger()
	}
	return l.Log
}
