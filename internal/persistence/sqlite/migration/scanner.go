package migration

import (
	"crypto/sha256"
	"fmt"
	"io/fs"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var migrationFilePattern = regexp.MustCompile(`^(\d+)_([a-zA-Z0-9_-]+)\.sql$`)

type fsScanner struct {
	files fs.FS
}

// NewFileScanner returns a FileScanner reading *.sql files from the root of files.
func NewFileScanner(files fs.FS) FileScanner {
	return &fsScanner{files: files}
}

// ScanMigrations parses every migration file and returns them ordered by version.
func (s *fsScanner) ScanMigrations() ([]Migration, error) {
	entries, err := fs.ReadDir(s.files, ".")
	if err != nil {
		return nil, NewMigrationError("", ".", "read directory", err)
	}

	var migrations []Migration
	seen := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		migration, err := s.parse(entry.Name())
		if err != nil {
			return nil, err
		}
		if other, exists := seen[migration.Version]; exists {
			return nil, NewMigrationError(migration.Version, entry.Name(), "check duplicates",
				fmt.Errorf("%w: also defined in %s", ErrDuplicateVersion, other))
		}
		seen[migration.Version] = entry.Name()
		migrations = append(migrations, migration)
	}

	sort.Slice(migrations, func(i, j int) bool {
		vi, _ := strconv.Atoi(migrations[i].Version)
		vj, _ := strconv.Atoi(migrations[j].Version)
		return vi < vj
	})
	return migrations, nil
}

// ValidateFileName checks the {version}_{description}.sql convention.
func (s *fsScanner) ValidateFileName(name string) error {
	matches := migrationFilePattern.FindStringSubmatch(name)
	if len(matches) != 3 {
		return fmt.Errorf("%w: %q does not match {version}_{description}.sql", ErrInvalidMigrationFile, name)
	}
	if _, err := strconv.Atoi(matches[1]); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidVersion, matches[1])
	}
	return nil
}

func (s *fsScanner) parse(name string) (Migration, error) {
	if err := s.ValidateFileName(name); err != nil {
		return Migration{}, NewMigrationError("", name, "validate filename", err)
	}
	matches := migrationFilePattern.FindStringSubmatch(name)
	version := matches[1]

	content, err := fs.ReadFile(s.files, name)
	if err != nil {
		return Migration{}, NewMigrationError(version, name, "read file", err)
	}
	sql := string(content)
	if len(splitStatements(sql)) == 0 {
		return Migration{}, NewMigrationError(version, name, "validate content",
			fmt.Errorf("%w: no SQL statements", ErrInvalidMigrationFile))
	}

	description := descriptionFromContent(sql)
	if description == "" {
		description = strings.ReplaceAll(matches[2], "_", " ")
	}

	return Migration{
		Version:     version,
		Description: description,
		SQL:         sql,
		FilePath:    name,
		Checksum:    fmt.Sprintf("%x", sha256.Sum256(content)),
	}, nil
}

func descriptionFromContent(content string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "--") {
			break
		}
		if rest, ok := strings.CutPrefix(line, "-- Description:"); ok {
			return strings.TrimSpace(rest)
		}
	}
	return ""
}

// splitStatements splits a script on semicolons and drops comment-only fragments.
// Migration files must not contain semicolons inside string literals or triggers.
func splitStatements(sql string) []string {
	var statements []string
	for _, fragment := range strings.Split(sql, ";") {
		var lines []string
		for _, line := range strings.Split(fragment, "\n") {
			trimmed := strings.TrimSpace(line)
			if trimmed == "" || strings.HasPrefix(trimmed, "--") {
				continue
			}
			lines = append(lines, trimmed)
		}
		if len(lines) > 0 {
			statements = append(statements, strings.Join(lines, "\n"))
		}
	}
	return statements
}
