package syntaxchunk

// Element is one syntax-level candidate unit before length-aware
// post-processing: a top-level import, module-level assignment,
// function, decorated definition, or class.
type Element struct {
	Kind       ElementKind
	Node       *Node
	Name       string
	StartLine  int
	EndLine    int
	NonWSLen   int
	Children   []*Element // populated only for ElementClass, its direct members
}

// ExtractElements walks tree's root and returns the top-level elements
// in source order. Only module/program-level children are visited for
// the root pass — nested elements are reached via class decomposition
// later (postprocess.go), so only top-level elements become chunks.
func ExtractElements(tree *Tree, cfg *LanguageConfig) []*Element {
	root := tree.Root
	container := root
	// The root is the grammar's module/program node; its direct
	// children are the file's top-level statements.
	elements := make([]*Element, 0, len(container.Children))
	for _, child := range container.Children {
		el := classifyTopLevel(child, cfg, tree.Source)
		if el != nil {
			elements = append(elements, el)
		}
	}
	return elements
}

func classifyTopLevel(n *Node, cfg *LanguageConfig, source []byte) *Element {
	kind, ok := cfg.Kind(n.Type)
	if !ok {
		return nil
	}
	if kind == ElementAssignment && n.HasAncestorOfType(nonModuleAncestors(cfg)) {
		return nil
	}
	el := &Element{
		Kind:      kind,
		Node:      n,
		StartLine: n.StartLine(),
		EndLine:   n.EndLine(),
		NonWSLen:  nonWhitespaceLen(n.Content(source)),
	}
	el.Name = cfg.ExtractIdentifier(n, source)
	if kind == ElementClass {
		el.Children = extractMembers(n, cfg, source)
	}
	return el
}

// nonModuleAncestors is the set of node types that, if found as an
// ancestor of a candidate assignment, disqualify it from being
// "module-level" (assignments are kept only at module
// scope, i.e. not nested inside a function or class body).
func nonModuleAncestors(cfg *LanguageConfig) map[string]bool {
	disqualifying := map[string]bool{}
	for t := range cfg.FunctionTypes {
		disqualifying[t] = true
	}
	for t := range cfg.ClassTypes {
		disqualifying[t] = true
	}
	for t := range cfg.BodyTypes {
		disqualifying[t] = true
	}
	return disqualifying
}

// extractMembers returns a class node's direct members (methods,
// fields) as Elements, used both for oversize-class decomposition
// and to measure how large a class body actually is.
func extractMembers(classNode *Node, cfg *LanguageConfig, source []byte) []*Element {
	body := classBody(classNode, cfg)
	if body == nil {
		return nil
	}
	members := make([]*Element, 0, len(body.Children))
	for _, child := range body.Children {
		kind, ok := cfg.Kind(child.Type)
		if !ok {
			// Children that aren't recognized as a top-level kind
			// still count as a member boundary when they carry real
			// content.
			if nonWhitespaceLen(child.Content(source)) == 0 {
				continue
			}
			kind = ElementMember
		}
		if kind == ElementFunction {
			kind = ElementMember
		}
		members = append(members, &Element{
			Kind:      kind,
			Node:      child,
			Name:      cfg.ExtractIdentifier(child, source),
			StartLine: child.StartLine(),
			EndLine:   child.EndLine(),
			NonWSLen:  nonWhitespaceLen(child.Content(source)),
		})
	}
	return members
}

func classBody(classNode *Node, cfg *LanguageConfig) *Node {
	for _, c := range classNode.Children {
		if cfg.BodyTypes[c.Type] {
			return c
		}
	}
	return nil
}

// nonWhitespaceLen is the size metric used throughout
// (chunk_size, min_chunk_size, class_decompose_threshold all count
// non-whitespace characters, not bytes or tokens).
func nonWhitespaceLen(s string) int {
	n := 0
	for _, r := range s {
		switch r {
		case ' ', '\t', '\n', '\r', '\v', '\f':
		default:
			n++
		}
	}
	return n
}
