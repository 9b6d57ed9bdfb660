package syntaxchunk

import (
	"context"
	"fmt"
)

// Chunker is the syntax-aware chunker: it parses source
// with tree-sitter when the language has a grammar, falling back to
// the recursive text splitter otherwise.
type Chunker struct {
	parser   *Parser
	registry *LanguageRegistry
	params   Params
}

// NewChunker builds a Chunker with the given sizing parameters. Pass
// DefaultParams() for the stock sizing.
func NewChunker(p Params) *Chunker {
	return &Chunker{parser: NewParser(), registry: DefaultRegistry(), params: p}
}

// Close releases the underlying tree-sitter parser.
func (c *Chunker) Close() { c.parser.Close() }

// ChunkFile chunks one file's content. language is the tag the
// scanner assigned (e.g. "python", "go", ""); an unrecognized or
// empty language falls back to SplitText.
func (c *Chunker) ChunkFile(ctx context.Context, content []byte, language string) ([]RawChunk, error) {
	cfg, ok := c.registry.ByName(language)
	if !ok {
		return SplitText(string(content), c.params), nil
	}

	tree, err := c.parser.Parse(ctx, content, language)
	if err != nil {
		return nil, fmt.Errorf("syntaxchunk: parse %s: %w", language, err)
	}

	elements := ExtractElements(tree, cfg)
	if len(elements) == 0 {
		return SplitText(string(content), c.params), nil
	}

	units := flattenUnits(elements, content, c.params)
	return aggregate(units, cfg, c.params), nil
}

// SupportedLanguage reports whether language has a tree-sitter grammar
// registered (as opposed to falling back to the text splitter).
func (c *Chunker) SupportedLanguage(language string) bool {
	_, ok := c.registry.ByName(language)
	return ok
}
