package chunk

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// languageSpec describes how one grammar maps AST node types to symbol
// kinds.
type languageSpec struct {
	name       string
	extensions []string
	grammar    *sitter.Language

	// node type -> symbol kind for top-level declarations
	symbolNodes map[string]SymbolType
}

var jsSymbolNodes = map[string]SymbolType{
	"function_declaration": SymbolTypeFunction,
	"function":             SymbolTypeFunction,
	"method_definition":    SymbolTypeMethod,
	"class_declaration":    SymbolTypeClass,
	"lexical_declaration":  SymbolTypeConstant, // const / let
	"variable_declaration": SymbolTypeVariable,
}

var tsSymbolNodes = map[string]SymbolType{
	"function_declaration":   SymbolTypeFunction,
	"method_definition":      SymbolTypeMethod,
	"class_declaration":      SymbolTypeClass,
	"interface_declaration":  SymbolTypeInterface,
	"type_alias_declaration": SymbolTypeType,
	"lexical_declaration":    SymbolTypeConstant,
	"variable_declaration":   SymbolTypeVariable,
}

var languageSpecs = []*languageSpec{
	{
		name:       "go",
		extensions: []string{".go"},
		grammar:    golang.GetLanguage(),
		symbolNodes: map[string]SymbolType{
			"function_declaration": SymbolTypeFunction,
			"method_declaration":   SymbolTypeMethod,
			"type_declaration":     SymbolTypeType,
			"const_declaration":    SymbolTypeConstant,
			"var_declaration":      SymbolTypeVariable,
		},
	},
	{
		name:        "typescript",
		extensions:  []string{".ts"},
		grammar:     typescript.GetLanguage(),
		symbolNodes: tsSymbolNodes,
	},
	{
		name:        "tsx",
		extensions:  []string{".tsx"},
		grammar:     tsx.GetLanguage(),
		symbolNodes: tsSymbolNodes,
	},
	{
		name:        "javascript",
		extensions:  []string{".js", ".mjs"},
		grammar:     javascript.GetLanguage(),
		symbolNodes: jsSymbolNodes,
	},
	{
		name:        "jsx",
		extensions:  []string{".jsx"},
		grammar:     javascript.GetLanguage(),
		symbolNodes: jsSymbolNodes,
	},
	{
		name:       "python",
		extensions: []string{".py"},
		grammar:    python.GetLanguage(),
		symbolNodes: map[string]SymbolType{
			"function_definition": SymbolTypeFunction,
			"class_definition":    SymbolTypeClass,
		},
	},
}

var (
	specsByName = func() map[string]*languageSpec {
		m := make(map[string]*languageSpec, len(languageSpecs))
		for _, s := range languageSpecs {
			m[s.name] = s
		}
		return m
	}()
	specsByExt = func() map[string]*languageSpec {
		m := make(map[string]*languageSpec)
		for _, s := range languageSpecs {
			for _, ext := range s.extensions {
				m[ext] = s
			}
		}
		return m
	}()
)

func specForLanguage(name string) (*languageSpec, bool) {
	s, ok := specsByName[name]
	return s, ok
}

// SupportsLanguage reports whether syntax-aware chunking is available
// for the given language name.
func SupportsLanguage(name string) bool {
	_, ok := specsByName[name]
	return ok
}

// LanguageForExtension maps a file extension to a parseable language
// name, or "" when no grammar covers it.
func LanguageForExtension(ext string) string {
	ext = strings.ToLower(ext)
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	if s, ok := specsByExt[ext]; ok {
		return s.name
	}
	return ""
}
