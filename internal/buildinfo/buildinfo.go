// Package buildinfo reports the service version, read from the project's
// build.settings file with a fallback to values injected at link time.
package buildinfo

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// SettingsFile is the name of the file holding the version line.
const SettingsFile = "build.settings"

// Set with -ldflags "-X github.com/eugenenazirov/k8s-webapp/internal/buildinfo.Version=...".
var (
	Version = "dev"
	Build   = ""
)

var versionPattern = regexp.MustCompile(`^\s*version\s*=\s*(?P<version>[0-9.]+)-?(?P<build>\w+)?$`)

// Info is a parsed version line.
type Info struct {
	Version string
	Build   string
}

func (i Info) String() string {
	if i.Build == "" {
		return i.Version
	}
	return fmt.Sprintf("%s-%s", i.Version, i.Build)
}

// Read parses dir/build.settings and returns the first version line.
// Lines starting with '#' are comments.
func Read(dir string) (Info, error) {
	path := filepath.Join(dir, SettingsFile)
	f, err := os.Open(path)
	if err != nil {
		return Info{}, fmt.Errorf("open build settings: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "#") {
			continue
		}
		m := versionPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		return Info{
			Version: m[versionPattern.SubexpIndex("version")],
			Build:   m[versionPattern.SubexpIndex("build")],
		}, nil
	}
	if err := scanner.Err(); err != nil {
		return Info{}, fmt.Errorf("scan build settings: %w", err)
	}
	return Info{}, fmt.Errorf("no version line in %s", path)
}

// Lookup returns the version from dir/build.settings, or the link-time
// values when the file is absent or has no version line.
func Lookup(dir string) Info {
	if info, err := Read(dir); err == nil {
		return info
	}
	return Info{Version: Version, Build: Build}
}
