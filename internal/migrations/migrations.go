// Package migrations loads schema migration definitions from SQL files named
// <version>_<name>.up.sql and <version>_<name>.down.sql.
package migrations

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/martijn/vaultkeeper/internal/core/domain"
)

//go:embed sql/*.sql
var embedded embed.FS

var filePattern = regexp.MustCompile(`^(\d+)_([A-Za-z0-9_]+)\.(up|down)\.sql$`)

// Embedded returns the platform schema shipped with the binary
func Embedded() ([]*domain.Migration, error) {
	return Load(embedded, "sql")
}

// FromDir loads migrations from a directory on disk
func FromDir(dir string) ([]*domain.Migration, error) {
	return Load(os.DirFS(dir), ".")
}

// Load reads every migration under dir in fsys, sorted by numeric version
func Load(fsys fs.FS, dir string) ([]*domain.Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations: %w", err)
	}

	type pair struct {
		name     string
		up, down string
		hasUp    bool
		hasDown  bool
	}
	byVersion := map[string]*pair{}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		match := filePattern.FindStringSubmatch(entry.Name())
		if match == nil {
			return nil, fmt.Errorf("invalid migration file name: %s", entry.Name())
		}
		version, name, direction := canonicalVersion(match[1]), match[2], match[3]

		content, err := fs.ReadFile(fsys, path.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", entry.Name(), err)
		}

		p, ok := byVersion[version]
		if !ok {
			p = &pair{name: name}
			byVersion[version] = p
		} else if p.name != name {
			return nil, fmt.Errorf("duplicate migration version %s: %s and %s", version, p.name, name)
		}

		if direction == "up" {
			if p.hasUp {
				return nil, fmt.Errorf("duplicate migration version %s", version)
			}
			p.up = string(content)
			p.hasUp = true
		} else {
			if p.hasDown {
				return nil, fmt.Errorf("duplicate migration version %s", version)
			}
			p.down = string(content)
			p.hasDown = true
		}
	}

	migrations := make([]*domain.Migration, 0, len(byVersion))
	for version, p := range byVersion {
		if !p.hasUp {
			return nil, fmt.Errorf("migration %s_%s has a down step but no up step", version, p.name)
		}
		if strings.TrimSpace(p.up) == "" {
			return nil, fmt.Errorf("migration %s_%s has an empty up step", version, p.name)
		}
		migrations = append(migrations, domain.NewMigration(version, p.name, p.up, strings.TrimSpace(p.down)))
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].VersionNumber() < migrations[j].VersionNumber()
	})

	return migrations, nil
}

// canonicalVersion strips leading zeros so 001 and 1 are the same version
func canonicalVersion(v string) string {
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return v
	}
	return strconv.FormatUint(n, 10)
}
