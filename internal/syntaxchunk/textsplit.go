package syntaxchunk

import "strings"

// defaultSeparators is the recursive splitter's fallback order:
// paragraph, then line, then word, then nothing — widest boundary
// first.
var defaultSeparators = []string{"\n\n", "\n", " ", ""}

// SplitText chunks plain-text content (documents, config, unsupported
// languages) by recursively trying each separator in turn and packing
// pieces up to ChunkSize non-whitespace characters per chunk. A chunk
// is closed only once it has reached MinChunkSize, so only the final
// chunk can be smaller; it is not merged into its predecessor
// (mergeSmallChunks leaves "text" chunks alone).
func SplitText(content string, p Params) []RawChunk {
	pieces := recursiveSplit(content, defaultSeparators, p.ChunkSize)

	var chunks []RawChunk
	var buf strings.Builder
	curNonWS := 0
	line := 1
	startLine := 1

	flush := func() {
		if buf.Len() == 0 {
			return
		}
		chunks = append(chunks, RawChunk{
			Content:     buf.String(),
			StartLine:   startLine,
			EndLine:     line,
			ElementType: "text",
		})
		buf.Reset()
		curNonWS = 0
	}

	for _, piece := range pieces {
		pieceLen := nonWhitespaceLen(piece)
		if buf.Len() > 0 && curNonWS+pieceLen > p.ChunkSize && curNonWS >= p.MinChunkSize {
			flush()
			startLine = line
		}
		buf.WriteString(piece)
		curNonWS += pieceLen
		line += strings.Count(piece, "\n")
	}
	flush()

	merged := mergeSmallChunks(chunks, p)
	for i := range merged {
		merged[i].ChunkIndex = i
	}
	return merged
}

// recursiveSplit splits text longer than maxLen non-whitespace
// characters on the first separator in seps; pieces still too large
// are split again with the remaining separators.
func recursiveSplit(text string, seps []string, maxLen int) []string {
	if nonWhitespaceLen(text) <= maxLen || len(seps) == 0 {
		return []string{text}
	}
	sep := seps[0]
	rest := seps[1:]

	var parts []string
	if sep == "" {
		parts = splitRunes(text, maxLen)
	} else {
		parts = strings.Split(text, sep)
	}

	out := make([]string, 0, len(parts))
	for i, part := range parts {
		piece := part
		if sep != "" && i < len(parts)-1 {
			piece = part + sep
		}
		if piece == "" {
			continue
		}
		if nonWhitespaceLen(piece) > maxLen && len(rest) > 0 {
			out = append(out, recursiveSplit(piece, rest, maxLen)...)
		} else {
			out = append(out, piece)
		}
	}
	return out
}

func splitRunes(text string, maxLen int) []string {
	runes := []rune(text)
	var out []string
	for i := 0; i < len(runes); i += maxLen {
		end := i + maxLen
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[i:end]))
	}
	return out
}
