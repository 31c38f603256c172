// ABOUTME: Template library for named commands stored as markdown files
// ABOUTME: Resolves a command name to instructions with $ARGUMENTS substituted

package commands

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"regexp"
	"sort"
	"strings"
)

// ArgumentsPlaceholder is replaced by the caller's arguments.
const ArgumentsPlaceholder = "$ARGUMENTS"

var (
	// ErrNotFound means no template exists for the command name.
	ErrNotFound = errors.New("command not found")
	// ErrInvalidName means the name is not a plain template name.
	ErrInvalidName = errors.New("invalid command name")
	// ErrEmptyTemplate means the template file has no content.
	ErrEmptyTemplate = errors.New("command template is empty")
)

// namePattern keeps names to a single path element.
var namePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,63}$`)

// Library reads command templates from a file system.
type Library struct {
	fsys fs.FS
}

// New creates a Library over fsys.
func New(fsys fs.FS) *Library {
	return &Library{fsys: fsys}
}

// NewDir creates a Library over a directory on disk.
func NewDir(dir string) *Library {
	return New(os.DirFS(dir))
}

// ValidName reports whether name can address a template.
func ValidName(name string) bool {
	return namePattern.MatchString(name)
}

// Render loads the template for name and substitutes args.
func (l *Library) Render(name, args string) (string, error) {
	if !ValidName(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	data, err := fs.ReadFile(l.fsys, name+".md")
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return "", fmt.Errorf("reading command %s: %w", name, err)
	}

	content := string(data)
	if strings.TrimSpace(content) == "" {
		return "", fmt.Errorf("%w: %s", ErrEmptyTemplate, name)
	}
	return strings.ReplaceAll(content, ArgumentsPlaceholder, args), nil
}

// List returns the available command names in sorted order.
// A missing directory yields an empty list.
func (l *Library) List() ([]string, error) {
	matches, err := fs.Glob(l.fsys, "*.md")
	if err != nil {
		return nil, fmt.Errorf("listing commands: %w", err)
	}

	names := make([]string, 0, len(matches))
	for _, m := range matches {
		name := strings.TrimSuffix(path.Base(m), ".md")
		if ValidName(name) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}
