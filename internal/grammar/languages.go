package grammar

import (
	"path/filepath"
	"sort"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/cpp"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/php"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/ruby"
	"github.com/smacker/go-tree-sitter/rust"
	ts "github.com/smacker/go-tree-sitter/typescript/typescript"
)

// extToLanguage maps lowercase dot-prefixed extensions to language names.
var extToLanguage = map[string]string{
	".rs":   "rust",
	".js":   "javascript",
	".py":   "python",
	".go":   "go",
	".ts":   "typescript",
	".java": "java",
	".cpp":  "cpp",
	".h":    "cpp",
	".hpp":  "cpp",
	".cc":   "cpp",
	".rb":   "ruby",
	".php":  "php",
}

// langToGrammar maps language names to tree-sitter Language objects.
// Lazily initialized on first call via sync.Once.
var (
	langToGrammar map[string]*sitter.Language
	grammarsOnce  sync.Once
)

func initGrammars() {
	grammarsOnce.Do(func() {
		langToGrammar = map[string]*sitter.Language{
			"rust":       rust.GetLanguage(),
			"javascript": javascript.GetLanguage(),
			"python":     python.GetLanguage(),
			"go":         golang.GetLanguage(),
			"typescript": ts.GetLanguage(),
			"java":       java.GetLanguage(),
			"cpp":        cpp.GetLanguage(),
			"ruby":       ruby.GetLanguage(),
			"php":        php.GetLanguage(),
		}
	})
}

// ExtensionOf returns the lowercase, dot-prefixed extension of path, or ""
// when the path has none. This is the key queries are routed by.
func ExtensionOf(path string) string {
	return strings.ToLower(filepath.Ext(path))
}

// LanguageForFile returns the language name for a file path based on its
// extension. Returns ("", false) if the extension is not recognized.
func LanguageForFile(path string) (string, bool) {
	lang, ok := extToLanguage[ExtensionOf(path)]
	return lang, ok
}

// GrammarForLanguage returns the tree-sitter Language for a language name.
func GrammarForLanguage(lang string) (*sitter.Language, bool) {
	initGrammars()
	l, ok := langToGrammar[lang]
	return l, ok
}

// Supported reports whether path has an extension in the language table.
func Supported(path string) bool {
	_, ok := LanguageForFile(path)
	return ok
}

// ExtensionEntry pairs an extension with the language it resolves to.
type ExtensionEntry struct {
	Extension string `json:"extension"`
	Language  string `json:"language"`
}

// Extensions returns the extension table sorted by extension.
func Extensions() []ExtensionEntry {
	out := make([]ExtensionEntry, 0, len(extToLanguage))
	for ext, lang := range extToLanguage {
		out = append(out, ExtensionEntry{Extension: ext, Language: lang})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Extension < out[j].Extension })
	return out
}
