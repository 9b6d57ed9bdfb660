package syntaxchunk

import (
	"context"
	"testing"
)

const samplePython = `import os
import sys

API_VERSION = "v1"

class Greeter:
    def __init__(self, name):
        self.name = name

    def greet(self):
        return "hello " + self.name


def main():
    g = Greeter("world")
    print(g.greet())
`

func TestExtractElements_Python(t *testing.T) {
	p := NewParser()
	defer p.Close()

	tree, err := p.Parse(context.Background(), []byte(samplePython), "python")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	cfg, ok := DefaultRegistry().ByName("python")
	if !ok {
		t.Fatal("python not registered")
	}

	elements := ExtractElements(tree, cfg)

	var kinds []ElementKind
	for _, el := range elements {
		kinds = append(kinds, el.Kind)
	}

	wantClassPresent := false
	wantFuncPresent := false
	for _, el := range elements {
		if el.Kind == ElementClass && el.Name == "Greeter" {
			wantClassPresent = true
			if len(el.Children) != 2 {
				t.Errorf("expected Greeter to have 2 members, got %d", len(el.Children))
			}
		}
		if el.Kind == ElementFunction && el.Name == "main" {
			wantFuncPresent = true
		}
	}
	if !wantClassPresent {
		t.Errorf("expected a class element named Greeter among %v", kinds)
	}
	if !wantFuncPresent {
		t.Errorf("expected a function element named main among %v", kinds)
	}
}

func TestExtractElements_ModuleLevelAssignmentKept(t *testing.T) {
	p := NewParser()
	defer p.Close()

	tree, err := p.Parse(context.Background(), []byte(samplePython), "python")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	cfg, _ := DefaultRegistry().ByName("python")
	elements := ExtractElements(tree, cfg)

	found := false
	for _, el := range elements {
		if el.Kind == ElementAssignment {
			found = true
		}
	}
	if !found {
		t.Error("expected the module-level API_VERSION assignment to survive extraction")
	}
}

func TestChunker_ChunkFile_Python(t *testing.T) {
	c := NewChunker(DefaultParams())
	defer c.Close()

	chunks, err := c.ChunkFile(context.Background(), []byte(samplePython), "python")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) == 0 {
		t.Fatal("expected at least one chunk")
	}
	total := 0
	for _, ch := range chunks {
		total += nonWhitespaceLen(ch.Content)
	}
	if total < nonWhitespaceLen(samplePython)/2 {
		t.Errorf("suspiciously little content survived chunking: %d non-whitespace chars", total)
	}
}
