package syntaxchunk

import "strings"

// unit is one piece of source text under consideration for aggregation,
// after oversize classes have been decomposed into a header plus one
// unit per member.
type unit struct {
	Content     string
	NonWSLen    int
	StartLine   int
	EndLine     int
	ElementType string
	ElementName string
}

// flattenUnits turns the top-level elements into an ordered list of
// units: oversize classes are decomposed into a header plus one unit
// per member, and any unit (member or otherwise) still over
// MaxChunkSize is further split by line.
func flattenUnits(elements []*Element, source []byte, p Params) []unit {
	units := make([]unit, 0, len(elements))
	threshold := float64(p.ChunkSize) * p.ClassDecomposeThreshold

	for _, el := range elements {
		var raw []unit
		if el.Kind == ElementClass && float64(el.NonWSLen) > threshold && len(el.Children) > 0 {
			raw = decomposeClass(el, source)
		} else {
			raw = []unit{{
				Content:     el.Node.Content(source),
				NonWSLen:    el.NonWSLen,
				StartLine:   el.StartLine,
				EndLine:     el.EndLine,
				ElementType: string(el.Kind),
				ElementName: el.Name,
			}}
		}
		for _, u := range raw {
			if u.NonWSLen > p.MaxChunkSize {
				units = append(units, splitOversizeUnit(u, p)...)
			} else {
				units = append(units, u)
			}
		}
	}
	return units
}

// decomposeClass emits a class_header unit spanning from the class's
// start to the start of its first member, followed by one unit per
// member, so the declaration line stays retrievable on its own.
func decomposeClass(el *Element, source []byte) []unit {
	first := el.Children[0]
	headerEnd := first.Node.StartByte
	headerStart := el.Node.StartByte
	if headerEnd <= headerStart {
		headerEnd = headerStart
	}
	header := string(source[headerStart:headerEnd])

	units := make([]unit, 0, len(el.Children)+1)
	units = append(units, unit{
		Content:     header,
		NonWSLen:    nonWhitespaceLen(header),
		StartLine:   el.StartLine,
		EndLine:     first.StartLine,
		ElementType: "class_header",
		ElementName: el.Name,
	})
	for _, m := range el.Children {
		units = append(units, unit{
			Content:     m.Node.Content(source),
			NonWSLen:    m.NonWSLen,
			StartLine:   m.StartLine,
			EndLine:     m.EndLine,
			ElementType: string(m.Kind),
			ElementName: el.Name + "." + m.Name,
		})
	}
	return units
}

// splitOversizeUnit line-splits a single unit (e.g. one oversize
// method) that still exceeds MaxChunkSize, respecting the
// non-whitespace budget and carrying a tail overlap of ChunkOverlap
// non-whitespace characters into the next piece.
func splitOversizeUnit(u unit, p Params) []unit {
	lines := strings.Split(u.Content, "\n")
	var out []unit
	var cur []string
	curNonWS := 0
	startLine := u.StartLine

	flush := func(endLine int) {
		if len(cur) == 0 {
			return
		}
		content := strings.Join(cur, "\n")
		out = append(out, unit{
			Content:     content,
			NonWSLen:    nonWhitespaceLen(content),
			StartLine:   startLine,
			EndLine:     endLine,
			ElementType: u.ElementType,
			ElementName: u.ElementName,
		})
	}

	overlapLines := func() []string {
		var tail []string
		tailNonWS := 0
		for i := len(cur) - 1; i >= 0; i-- {
			l := nonWhitespaceLen(cur[i])
			if tailNonWS+l > p.ChunkOverlap && len(tail) > 0 {
				break
			}
			tail = append([]string{cur[i]}, tail...)
			tailNonWS += l
		}
		return tail
	}

	for i, line := range lines {
		lineLen := nonWhitespaceLen(line)
		lineNo := u.StartLine + i
		if len(cur) > 0 && curNonWS+lineLen > p.ChunkSize {
			flush(lineNo - 1)
			carry := overlapLines()
			startLine = lineNo - len(carry)
			cur = append([]string{}, carry...)
			curNonWS = nonWhitespaceLen(strings.Join(carry, "\n"))
		}
		cur = append(cur, line)
		curNonWS += lineLen
	}
	flush(u.EndLine)
	return out
}

// RawChunk is one chunk produced by the syntax-aware chunker, before
// the store assigns it a persistent ordinal id. MergedNames is
// non-empty only for chunks produced by the small-chunk merge pass
// and lists the coalesced elements' original names in source order.
type RawChunk struct {
	Content     string
	StartLine   int
	EndLine     int
	ElementType string
	ElementName string
	ChunkIndex  int
	MergedNames []string
}

// aggregate merges consecutive units into chunks using the shouldFlush
// boundary rule, carrying a tail overlap of complete trailing units
// into the next chunk, then merges adjacent small same-category
// chunks by mergeSmallChunks's rules (step 3).
func aggregate(units []unit, cfg *LanguageConfig, p Params) []RawChunk {
	if len(units) == 0 {
		return nil
	}

	var chunks []RawChunk
	var buf []unit
	curNonWS := 0

	flush := func() []unit {
		if len(buf) == 0 {
			return nil
		}
		chunks = append(chunks, mergeUnits(buf))
		carry := tailOverlap(buf, p.ChunkOverlap)
		buf = nil
		curNonWS = 0
		return carry
	}

	for _, u := range units {
		isBoundary := cfg.IsMajorBoundary(u.Content)
		if len(buf) > 0 && shouldFlush(curNonWS, u.NonWSLen, isBoundary, p) {
			carry := flush()
			for _, c := range carry {
				buf = append(buf, c)
				curNonWS += c.NonWSLen
			}
		}
		buf = append(buf, u)
		curNonWS += u.NonWSLen
	}
	flush()

	chunks = mergeSmallChunks(chunks, p)
	for i := range chunks {
		chunks[i].ChunkIndex = i
	}
	return chunks
}

// tailOverlap returns the longest run of complete trailing units of
// buf whose combined non-whitespace size is <= overlap.
func tailOverlap(buf []unit, overlap int) []unit {
	if overlap <= 0 {
		return nil
	}
	total := 0
	start := len(buf)
	for i := len(buf) - 1; i >= 0; i-- {
		total += buf[i].NonWSLen
		if total > overlap {
			break
		}
		start = i
	}
	if start == len(buf) {
		return nil
	}
	return buf[start:]
}

func mergeUnits(buf []unit) RawChunk {
	var sb strings.Builder
	for i, u := range buf {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(u.Content)
	}
	first := buf[0]
	return RawChunk{
		Content:     sb.String(),
		StartLine:   first.StartLine,
		EndLine:     buf[len(buf)-1].EndLine,
		ElementType: first.ElementType,
		ElementName: first.ElementName,
	}
}

// mergeableCategory collapses element types into the three families
// allowed to merge: two imports, two assignments, or
// two functions (the last only when both are below MinChunkSize).
func mergeableCategory(elementType string) string {
	switch elementType {
	case "import":
		return "import"
	case "assignment":
		return "assignment"
	case "function", "decorated_definition", "member":
		return "function"
	default:
		return ""
	}
}

// mergeSmallChunks iteratively coalesces adjacent chunks of the same
// mergeable category whose combined size stays within ChunkSize.
// The merged chunk takes the category name ("import", "assignment" or
// "function") as its element type, whichever element types were
// merged, takes the name "merged_<type>", and records the originals'
// names in MergedNames.
func mergeSmallChunks(chunks []RawChunk, p Params) []RawChunk {
	changed := true
	for changed {
		changed = false
		merged := make([]RawChunk, 0, len(chunks))
		i := 0
		for i < len(chunks) {
			c := chunks[i]
			if i+1 < len(chunks) && canMerge(c, chunks[i+1], p) {
				merged = append(merged, mergeTwo(c, chunks[i+1]))
				i += 2
				changed = true
				continue
			}
			merged = append(merged, c)
			i++
		}
		chunks = merged
	}
	return chunks
}

func canMerge(a, b RawChunk, p Params) bool {
	catA, catB := mergeableCategory(a.ElementType), mergeableCategory(b.ElementType)
	if catA == "" || catA != catB {
		return false
	}
	aLen, bLen := nonWhitespaceLen(a.Content), nonWhitespaceLen(b.Content)
	if aLen+bLen > p.ChunkSize {
		return false
	}
	// Only function pairs carry a size gate: two functions merge only
	// when each is below MinChunkSize. Import and assignment pairs
	// merge on the combined-size check alone.
	if catA == "function" && (aLen >= p.MinChunkSize || bLen >= p.MinChunkSize) {
		return false
	}
	return true
}

func mergeTwo(a, b RawChunk) RawChunk {
	cat := mergeableCategory(a.ElementType)
	return RawChunk{
		Content:     a.Content + "\n\n" + b.Content,
		StartLine:   a.StartLine,
		EndLine:     b.EndLine,
		ElementType: cat,
		ElementName: "merged_" + cat,
		MergedNames: append(originalNames(a), originalNames(b)...),
	}
}

// originalNames flattens a chunk into the element names it carries:
// an already-merged chunk contributes its accumulated list, an
// unmerged one contributes its own name.
func originalNames(c RawChunk) []string {
	if len(c.MergedNames) > 0 {
		return c.MergedNames
	}
	return []string{c.ElementName}
}
