// Package syntaxchunk implements the syntax-aware chunker:
// tree-sitter parsing for eight supported languages, element
// extraction, and length-aware post-processing (oversize split,
// syntax-aware aggregation, small-chunk merge) measured in
// non-whitespace characters. Files in unsupported languages fall back
// to a recursive separator-based text splitter.
package syntaxchunk
