// Package discover produces the list of files a scan runs over: every file
// under a root with a supported extension, minus ignored paths.
package discover

import (
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"
	"github.com/spf13/afero"

	"github.com/jward/sitterscan/internal/grammar"
)

// DefaultSkipDirs are never descended into by the filesystem walk.
var DefaultSkipDirs = []string{"node_modules", "target", "dist", "build", "vendor", "__pycache__"}

// GitLister lists repository files relative to the scan root.
// *gitmeta.Client implements it.
type GitLister interface {
	ListFiles() ([]string, error)
}

// Finder discovers scan targets.
type Finder struct {
	fs       afero.Fs
	git      GitLister
	skipDirs map[string]bool
	excludes []string
	logger   *slog.Logger
}

// Option configures a Finder.
type Option func(*Finder)

// WithFs sets the filesystem walked. Defaults to the OS filesystem.
func WithFs(fs afero.Fs) Option {
	return func(f *Finder) {
		f.fs = fs
	}
}

// WithGit lists files through git before falling back to a walk.
func WithGit(g GitLister) Option {
	return func(f *Finder) {
		f.git = g
	}
}

// WithExcludes adds gitignore-style patterns, relative to the root, that
// are excluded in both git and walk modes.
func WithExcludes(patterns ...string) Option {
	return func(f *Finder) {
		f.excludes = append(f.excludes, patterns...)
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(f *Finder) {
		f.logger = l
	}
}

// New creates a Finder.
func New(opts ...Option) *Finder {
	f := &Finder{
		fs:       afero.NewOsFs(),
		skipDirs: make(map[string]bool, len(DefaultSkipDirs)),
		logger:   slog.Default(),
	}
	for _, d := range DefaultSkipDirs {
		f.skipDirs[d] = true
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Find returns the supported files under root in sorted order. Paths are
// root joined with the file's relative path.
func (f *Finder) Find(root string) ([]string, error) {
	info, err := f.fs.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("discover: target %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("discover: target %s is not a directory", root)
	}

	var paths []string
	if f.git != nil {
		paths, err = f.gitFiles(root)
		if err != nil {
			f.logger.Debug("git listing unavailable, walking filesystem", "root", root, "error", err)
			paths = nil
		}
	}
	if paths == nil {
		if paths, err = f.walkFiles(root); err != nil {
			return nil, err
		}
	}
	sort.Strings(paths)
	return paths, nil
}

func (f *Finder) gitFiles(root string) ([]string, error) {
	rel, err := f.git.ListFiles()
	if err != nil {
		return nil, err
	}
	matcher := compile(f.excludes)
	paths := []string{}
	for _, r := range rel {
		r = filepath.ToSlash(r)
		if matcher != nil && matcher.MatchesPath(r) {
			continue
		}
		if f.inSkippedDir(r) || !grammar.Supported(r) {
			continue
		}
		paths = append(paths, filepath.Join(root, filepath.FromSlash(r)))
	}
	return paths, nil
}

func (f *Finder) inSkippedDir(rel string) bool {
	parts := strings.Split(rel, "/")
	for _, dir := range parts[:len(parts)-1] {
		if f.skipDirs[dir] {
			return true
		}
	}
	return false
}

func (f *Finder) walkFiles(root string) ([]string, error) {
	patterns := append(f.readGitignore(root), f.excludes...)
	matcher := compile(patterns)

	var paths []string
	err := afero.Walk(f.fs, root, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			f.logger.Warn("skipping unreadable path", "path", path, "error", err)
			if info != nil && info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil || rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if info.IsDir() {
			name := info.Name()
			if strings.HasPrefix(name, ".") || f.skipDirs[name] {
				return filepath.SkipDir
			}
			if matcher != nil && matcher.MatchesPath(rel+"/") {
				return filepath.SkipDir
			}
			return nil
		}
		if matcher != nil && matcher.MatchesPath(rel) {
			return nil
		}
		if grammar.Supported(path) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("discover: walk %s: %w", root, err)
	}
	return paths, nil
}

// readGitignore returns the patterns of root/.gitignore, if present.
func (f *Finder) readGitignore(root string) []string {
	data, err := afero.ReadFile(f.fs, filepath.Join(root, ".gitignore"))
	if err != nil {
		return nil
	}
	var patterns []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(strings.TrimSuffix(line, "\r"))
		if line != "" && !strings.HasPrefix(line, "#") {
			patterns = append(patterns, line)
		}
	}
	return patterns
}

func compile(patterns []string) *ignore.GitIgnore {
	if len(patterns) == 0 {
		return nil
	}
	return ignore.CompileIgnoreLines(patterns...)
}

// ExtensionCount is one row of a file census.
type ExtensionCount struct {
	Extension string `json:"extension"`
	Language  string `json:"language"`
	Files     int    `json:"files"`
}

// Census counts files per extension, sorted by extension.
func Census(files []string) []ExtensionCount {
	counts := make(map[string]int)
	for _, p := range files {
		counts[grammar.ExtensionOf(p)]++
	}
	out := make([]ExtensionCount, 0, len(counts))
	for ext, n := range counts {
		lang, _ := grammar.LanguageForFile("x" + ext)
		out = append(out, ExtensionCount{Extension: ext, Language: lang, Files: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Extension < out[j].Extension })
	return out
}
