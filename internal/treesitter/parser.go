package treesitter

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_javascript "github.com/tree-sitter/tree-sitter-javascript/bindings/go"
	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"
	tree_sitter_typescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"
)

// Parser extracts declarations and imports from source files. It keeps
// one tree-sitter parser per grammar; parsers are CGO resources, so
// Close must be called when done.
type Parser struct {
	mu      sync.Mutex
	parsers map[string]*sitter.Parser
}

func NewParser() *Parser {
	return &Parser{parsers: make(map[string]*sitter.Parser)}
}

// Close releases every grammar parser created so far.
func (p *Parser) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, sp := range p.parsers {
		sp.Close()
	}
	p.parsers = make(map[string]*sitter.Parser)
}

// Supported reports whether the file's extension maps to a grammar.
func Supported(path string) bool { return DetectLanguage(path) != "" }

// DetectLanguage maps a file extension to its grammar name; "" means
// the file cannot be parsed.
func DetectLanguage(path string) string {
	switch filepath.Ext(path) {
	case ".ts", ".mts", ".cts":
		return "typescript"
	case ".tsx":
		return "tsx"
	case ".js", ".mjs", ".cjs":
		return "javascript"
	case ".jsx":
		return "jsx"
	case ".py", ".pyi", ".pyw":
		return "python"
	}
	return ""
}

func grammarFor(lang string) (*sitter.Language, error) {
	switch lang {
	case "javascript", "jsx":
		return sitter.NewLanguage(tree_sitter_javascript.Language()), nil
	case "typescript":
		return sitter.NewLanguage(tree_sitter_typescript.LanguageTypescript()), nil
	case "tsx":
		return sitter.NewLanguage(tree_sitter_typescript.LanguageTSX()), nil
	case "python":
		return sitter.NewLanguage(tree_sitter_python.Language()), nil
	}
	return nil, fmt.Errorf("unsupported language: %s", lang)
}

// parserForLocked returns the cached parser for lang, creating it on
// first use. Caller holds p.mu; a tree-sitter parser cannot run two
// parses concurrently.
func (p *Parser) parserForLocked(lang string) (*sitter.Parser, error) {
	if sp, ok := p.parsers[lang]; ok {
		return sp, nil
	}
	language, err := grammarFor(lang)
	if err != nil {
		return nil, err
	}
	sp := sitter.NewParser()
	if err := sp.SetLanguage(language); err != nil {
		sp.Close()
		return nil, fmt.Errorf("set language %s: %w", lang, err)
	}
	p.parsers[lang] = sp
	return sp, nil
}

// Parse extracts declarations and imports from source held in memory.
// path is used for language detection and recorded verbatim.
func (p *Parser) Parse(path string, code []byte) (*FileParse, error) {
	lang := DetectLanguage(path)
	if lang == "" {
		return nil, fmt.Errorf("unsupported file type: %s", path)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	sp, err := p.parserForLocked(lang)
	if err != nil {
		return nil, err
	}

	tree := sp.Parse(code, nil)
	if tree == nil {
		return nil, fmt.Errorf("parse failed: %s", path)
	}
	defer tree.Close()

	result := &FileParse{Path: path, Language: lang}
	root := tree.RootNode()
	switch lang {
	case "javascript", "jsx":
		extractJavaScript(result, root, code)
	case "typescript", "tsx":
		extractTypeScript(result, root, code)
	case "python":
		extractPython(result, root, code)
	}
	return result, nil
}

// ParseFile reads and parses a file on disk.
func (p *Parser) ParseFile(path string) (*FileParse, error) {
	code, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return p.Parse(path, code)
}
