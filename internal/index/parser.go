package index

import (
	"fmt"
	"path/filepath"
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_go "github.com/tree-sitter/tree-sitter-go/bindings/go"
	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"
	tree_sitter_rust "github.com/tree-sitter/tree-sitter-rust/bindings/go"
	tree_sitter_typescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"

	"github.com/dusk-indust/chartographer/internal/callgraph"
)

// Language identifies a programming language for parsing.
type Language string

const (
	LangGo         Language = "go"
	LangTypeScript Language = "typescript"
	LangTSX        Language = "tsx"
	LangPython     Language = "python"
	LangRust       Language = "rust"
)

var extLanguages = map[string]Language{
	".go":  LangGo,
	".ts":  LangTypeScript,
	".mts": LangTypeScript,
	".cts": LangTypeScript,
	".tsx": LangTSX,
	".js":  LangTypeScript,
	".mjs": LangTypeScript,
	".jsx": LangTSX,
	".py":  LangPython,
	".rs":  LangRust,
}

// LanguageForPath picks the grammar for a file by extension.
func LanguageForPath(path string) (Language, bool) {
	lang, ok := extLanguages[strings.ToLower(filepath.Ext(path))]
	return lang, ok
}

// extractor records the functions and call sites of one language.
type extractor interface {
	// visit inspects node and returns the index of the function that owns
	// node's children (owner unchanged when node opens no new function).
	visit(x *extraction, node *tree_sitter.Node, owner int) int
}

// Parser turns source files into Functions. A new tree-sitter parser is
// created per Parse call, so one Parser may be shared by goroutines.
type Parser struct {
	languages  map[Language]*tree_sitter.Language
	extractors map[Language]extractor
}

// NewParser creates a Parser with Go, TypeScript, TSX, Python, and Rust
// grammars registered.
func NewParser() *Parser {
	return &Parser{
		languages: map[Language]*tree_sitter.Language{
			LangGo:         tree_sitter.NewLanguage(tree_sitter_go.Language()),
			LangTypeScript: tree_sitter.NewLanguage(tree_sitter_typescript.LanguageTypescript()),
			LangTSX:        tree_sitter.NewLanguage(tree_sitter_typescript.LanguageTSX()),
			LangPython:     tree_sitter.NewLanguage(tree_sitter_python.Language()),
			LangRust:       tree_sitter.NewLanguage(tree_sitter_rust.Language()),
		},
		extractors: map[Language]extractor{
			LangGo:         goExtractor{},
			LangTypeScript: tsExtractor{},
			LangTSX:        tsExtractor{},
			LangPython:     pyExtractor{},
			LangRust:       rsExtractor{},
		},
	}
}

// Parse extracts the functions declared in source. path is the absolute
// file path; it becomes the symbols' file:// URI.
func (p *Parser) Parse(path string, source []byte, lang Language) ([]Function, error) {
	tsLang, ok := p.languages[lang]
	if !ok {
		return nil, fmt.Errorf("parse %s: %w: %s", path, callgraph.ErrUnsupportedLanguage, lang)
	}
	ext := p.extractors[lang]

	parser := tree_sitter.NewParser()
	defer parser.Close()

	if err := parser.SetLanguage(tsLang); err != nil {
		return nil, fmt.Errorf("set language %s: %w", lang, err)
	}

	tree := parser.Parse(source, nil)
	if tree == nil {
		return nil, fmt.Errorf("tree-sitter returned nil tree for %s", path)
	}
	defer tree.Close()

	x := &extraction{
		uri:    callgraph.PathToURI(path),
		source: source,
		lang:   lang,
	}
	cursor := tree.RootNode().Walk()
	defer cursor.Close()
	walk(cursor, x, ext, -1)
	return x.funcs, nil
}

// SupportedLanguages returns the languages this parser can handle.
func (p *Parser) SupportedLanguages() []Language {
	langs := make([]Language, 0, len(p.languages))
	for l := range p.languages {
		langs = append(langs, l)
	}
	return langs
}

func walk(cursor *tree_sitter.TreeCursor, x *extraction, ext extractor, owner int) {
	childOwner := ext.visit(x, cursor.Node(), owner)
	if cursor.GotoFirstChild() {
		walk(cursor, x, ext, childOwner)
		for cursor.GotoNextSibling() {
			walk(cursor, x, ext, childOwner)
		}
		cursor.GotoParent()
	}
}
