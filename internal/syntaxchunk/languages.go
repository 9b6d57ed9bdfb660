package syntaxchunk

import (
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/cpp"
	"github.com/smacker/go-tree-sitter/csharp"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// ElementKind is the candidate-chunk category assigned to
// every extracted syntax element.
type ElementKind string

const (
	ElementImport     ElementKind = "import"
	ElementAssignment ElementKind = "assignment"
	ElementFunction   ElementKind = "function"
	ElementDecorated  ElementKind = "decorated_definition"
	ElementClass      ElementKind = "class"
	ElementMember     ElementKind = "member" // method/field inside a decomposed class
)

// elementPriority ranks ElementKind:
// import < assignment < function ~ decorated_definition < class.
// The merge pass does not read it; mergeableCategory decides which
// adjacent chunks may merge.
var elementPriority = map[ElementKind]int{
	ElementImport:     0,
	ElementAssignment: 1,
	ElementFunction:   2,
	ElementDecorated:  2,
	ElementMember:     2,
	ElementClass:      3,
}

// LanguageConfig declares, for one supported language, which
// tree-sitter node types count as which ElementKind, plus the
// language-specific identifier-extraction dispatch.
type LanguageConfig struct {
	Name            string
	Extensions      []string
	ImportTypes     map[string]bool
	AssignmentTypes map[string]bool
	FunctionTypes   map[string]bool
	DecoratedTypes  map[string]bool
	ClassTypes      map[string]bool
	// MemberIdentifierType is the node type tree-sitter uses for a
	// method/property name when it differs from "identifier" (e.g.
	// JS/TS method definitions name themselves via property_identifier).
	MemberIdentifierType string
	// BodyTypes are the node types of a class's body block, used
	// to find where the header ends and members begin when decomposing
	// an oversize class.
	BodyTypes map[string]bool
	// MajorBoundaryPrefixes are source-text prefixes (after trimming
	// leading whitespace) that mark a "major boundary" for the
	// aggregation flush heuristic.
	MajorBoundaryPrefixes []string
}

func set(items ...string) map[string]bool {
	m := make(map[string]bool, len(items))
	for _, it := range items {
		m[it] = true
	}
	return m
}

// LanguageRegistry maps extensions/names to LanguageConfig and the
// underlying tree-sitter grammar.
type LanguageRegistry struct {
	mu          sync.RWMutex
	configs     map[string]*LanguageConfig
	extToLang   map[string]string
	tsLanguages map[string]*sitter.Language
}

func NewLanguageRegistry() *LanguageRegistry {
	r := &LanguageRegistry{
		configs:     map[string]*LanguageConfig{},
		extToLang:   map[string]string{},
		tsLanguages: map[string]*sitter.Language{},
	}
	r.registerPython()
	r.registerJavaScript()
	r.registerTypeScript()
	r.registerJava()
	r.registerCpp()
	r.registerGo()
	r.registerRust()
	r.registerCSharp()
	return r
}

func (r *LanguageRegistry) register(cfg *LanguageConfig, lang *sitter.Language) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.configs[cfg.Name] = cfg
	r.tsLanguages[cfg.Name] = lang
	for _, ext := range cfg.Extensions {
		r.extToLang[ext] = cfg.Name
	}
}

func (r *LanguageRegistry) ByExtension(ext string) (*LanguageConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ext = strings.ToLower(ext)
	name, ok := r.extToLang[ext]
	if !ok {
		return nil, false
	}
	cfg, ok := r.configs[name]
	return cfg, ok
}

func (r *LanguageRegistry) ByName(name string) (*LanguageConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.configs[name]
	return cfg, ok
}

func (r *LanguageRegistry) TreeSitterLanguage(name string) (*sitter.Language, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.tsLanguages[name]
	return l, ok
}

var defaultRegistry = NewLanguageRegistry()

func DefaultRegistry() *LanguageRegistry { return defaultRegistry }

func (r *LanguageRegistry) registerPython() {
	r.register(&LanguageConfig{
		Name:            "python",
		Extensions:      []string{".py", ".pyw"},
		ImportTypes:     set("import_statement", "import_from_statement"),
		AssignmentTypes: set("assignment", "expression_statement"),
		FunctionTypes:   set("function_definition"),
		DecoratedTypes:  set("decorated_definition"),
		ClassTypes:      set("class_definition"),
		BodyTypes:       set("block"),
		MajorBoundaryPrefixes: []string{"class ", "def ", "async def ", "@"},
	}, python.GetLanguage())
}

func (r *LanguageRegistry) registerJavaScript() {
	r.register(&LanguageConfig{
		Name:                  "javascript",
		Extensions:            []string{".js", ".jsx", ".mjs", ".cjs", ".vue"},
		ImportTypes:           set("import_statement"),
		AssignmentTypes:       set("lexical_declaration", "variable_declaration"),
		FunctionTypes:         set("function_declaration", "function"),
		DecoratedTypes:        set("export_statement"),
		ClassTypes:            set("class_declaration"),
		MemberIdentifierType:  "property_identifier",
		BodyTypes:             set("class_body"),
		MajorBoundaryPrefixes: []string{"class ", "function", "export", "const ", "let ", "var ", "async function"},
	}, javascript.GetLanguage())
}

func (r *LanguageRegistry) registerTypeScript() {
	r.register(&LanguageConfig{
		Name:                  "typescript",
		Extensions:            []string{".ts", ".tsx"},
		ImportTypes:           set("import_statement"),
		AssignmentTypes:       set("lexical_declaration", "variable_declaration"),
		FunctionTypes:         set("function_declaration"),
		DecoratedTypes:        set("export_statement"),
		ClassTypes:            set("class_declaration"),
		MemberIdentifierType:  "property_identifier",
		BodyTypes:             set("class_body"),
		MajorBoundaryPrefixes: []string{"class ", "function", "export", "const ", "let ", "var ", "async function", "interface "},
	}, typescript.GetLanguage())
}

func (r *LanguageRegistry) registerJava() {
	r.register(&LanguageConfig{
		Name:                  "java",
		Extensions:            []string{".java"},
		ImportTypes:           set("import_declaration"),
		AssignmentTypes:       set("field_declaration"),
		FunctionTypes:         set("method_declaration"),
		DecoratedTypes:        set("annotation_type_declaration"),
		ClassTypes:            set("class_declaration", "interface_declaration"),
		BodyTypes:             set("class_body", "interface_body"),
		MajorBoundaryPrefixes: []string{"class ", "public ", "private ", "protected ", "static ", "interface "},
	}, java.GetLanguage())
}

func (r *LanguageRegistry) registerCpp() {
	r.register(&LanguageConfig{
		Name:                  "cpp",
		Extensions:            []string{".cpp", ".cc", ".cxx", ".hpp", ".h", ".c"},
		ImportTypes:           set("preproc_include"),
		AssignmentTypes:       set("declaration"),
		FunctionTypes:         set("function_definition"),
		DecoratedTypes:        set(),
		ClassTypes:            set("class_specifier", "struct_specifier"),
		BodyTypes:             set("field_declaration_list"),
		MajorBoundaryPrefixes: []string{"class ", "struct ", "public:", "private:", "protected:", "static "},
	}, cpp.GetLanguage())
}

func (r *LanguageRegistry) registerGo() {
	r.register(&LanguageConfig{
		Name:                  "go",
		Extensions:            []string{".go"},
		ImportTypes:           set("import_declaration"),
		AssignmentTypes:       set("var_declaration", "const_declaration"),
		FunctionTypes:         set("function_declaration", "method_declaration"),
		DecoratedTypes:        set(),
		ClassTypes:            set("type_declaration"),
		BodyTypes:             set("struct_type", "interface_type"),
		MajorBoundaryPrefixes: []string{"func ", "type ", "const ", "var ", "struct "},
	}, golang.GetLanguage())
}

func (r *LanguageRegistry) registerRust() {
	r.register(&LanguageConfig{
		Name:                  "rust",
		Extensions:            []string{".rs"},
		ImportTypes:           set("use_declaration"),
		AssignmentTypes:       set("const_item", "static_item"),
		FunctionTypes:         set("function_item"),
		DecoratedTypes:        set("attribute_item"),
		ClassTypes:            set("struct_item", "impl_item", "trait_item"),
		BodyTypes:             set("field_declaration_list", "declaration_list"),
		MajorBoundaryPrefixes: []string{"struct ", "impl ", "trait ", "pub fn ", "fn ", "static "},
	}, rust.GetLanguage())
}

func (r *LanguageRegistry) registerCSharp() {
	r.register(&LanguageConfig{
		Name:                  "csharp",
		Extensions:            []string{".cs"},
		ImportTypes:           set("using_directive"),
		AssignmentTypes:       set("field_declaration"),
		FunctionTypes:         set("method_declaration"),
		DecoratedTypes:        set("attribute_list"),
		ClassTypes:            set("class_declaration", "interface_declaration", "struct_declaration"),
		BodyTypes:             set("declaration_list"),
		MajorBoundaryPrefixes: []string{"class ", "public ", "private ", "protected ", "static ", "interface "},
	}, csharp.GetLanguage())
}

// Kind classifies a node by this language's configuration.
func (c *LanguageConfig) Kind(nodeType string) (ElementKind, bool) {
	switch {
	case c.ImportTypes[nodeType]:
		return ElementImport, true
	case c.DecoratedTypes[nodeType]:
		return ElementDecorated, true
	case c.ClassTypes[nodeType]:
		return ElementClass, true
	case c.FunctionTypes[nodeType]:
		return ElementFunction, true
	case c.AssignmentTypes[nodeType]:
		return ElementAssignment, true
	default:
		return "", false
	}
}

// IsMajorBoundary reports whether text (the candidate unit's source)
// starts, after trimming leading whitespace, with one of this
// language's major-boundary prefixes.
func (c *LanguageConfig) IsMajorBoundary(text string) bool {
	trimmed := strings.TrimLeft(text, " \t")
	for _, prefix := range c.MajorBoundaryPrefixes {
		if strings.HasPrefix(trimmed, prefix) {
			return true
		}
	}
	return false
}

// ExtractIdentifier finds the element's name: the language's
// member-identifier node type if configured, else the first
// identifier-like descendant, in each case the first pre-order match
// under n.
func (c *LanguageConfig) ExtractIdentifier(n *Node, source []byte) string {
	if c.MemberIdentifierType != "" {
		if name := identifierText(n, c.MemberIdentifierType, source); name != "" {
			return name
		}
	}
	for _, nodeType := range []string{"identifier", "type_identifier", "field_identifier"} {
		if name := identifierText(n, nodeType, source); name != "" {
			return name
		}
	}
	return "anonymous"
}

// identifierText returns the content of the first descendant of n
// (not counting n itself) with the given node type, pre-order.
func identifierText(n *Node, nodeType string, source []byte) string {
	var found string
	for _, child := range n.Children {
		if found != "" {
			break
		}
		child.Walk(func(node *Node) bool {
			if found != "" {
				return false
			}
			if node.Type == nodeType {
				found = node.Content(source)
				return false
			}
			return true
		})
	}
	return found
}
