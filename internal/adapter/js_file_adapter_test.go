package adapter

import (
	"context"
	"reflect"
	"testing"
)

const sampleSource = `function greet(name) {
  if (!name) {
    return 'hello';
  }
  return 'hello ' + name;
}

const pick = (a, b) => a ? a : b;

function classify(n) {
  switch (n) {
    case 0:
      return 'zero';
    default:
      return 'other';
  }
}

const ok = pick(greet('x'), 'y') && classify(1) || 'z';
`

func TestTreeSitterFileAdapter_ExtractStructure(t *testing.T) {
	adapter := NewTreeSitterFileAdapter()

	structure, err := adapter.ExtractStructure(context.Background(), "app.js", []byte(sampleSource))
	if err != nil {
		t.Fatalf("ExtractStructure() error = %v", err)
	}

	t.Run("statements in pre-order", func(t *testing.T) {
		if got := len(structure.Statements); got != 8 {
			t.Fatalf("ExtractStructure() statements = %d, want 8", got)
		}

		first := structure.Statements[0]
		if first.Loc.Start.Line != 2 || first.Loc.Start.Column != 2 {
			t.Fatalf("first statement starts at %+v, want line 2 column 2", first.Loc.Start)
		}
	})

	t.Run("functions with names and anonymous fallback", func(t *testing.T) {
		if got := len(structure.Functions); got != 3 {
			t.Fatalf("ExtractStructure() functions = %d, want 3", got)
		}

		if structure.Functions[0].Name != "greet" {
			t.Fatalf("function 0 name = %q, want greet", structure.Functions[0].Name)
		}

		if structure.Functions[1].Name != "(anonymous_1)" {
			t.Fatalf("function 1 name = %q, want (anonymous_1)", structure.Functions[1].Name)
		}

		if structure.Functions[2].Name != "classify" {
			t.Fatalf("function 2 name = %q, want classify", structure.Functions[2].Name)
		}

		if structure.Functions[0].Line != 1 {
			t.Fatalf("function 0 line = %d, want 1", structure.Functions[0].Line)
		}
	})

	t.Run("branch groups with one location per arm", func(t *testing.T) {
		if got := len(structure.Branches); got != 5 {
			t.Fatalf("ExtractStructure() branches = %d, want 5", got)
		}

		wantTypes := []string{"if", "cond-expr", "switch", "binary-expr", "binary-expr"}
		wantArms := []int{1, 2, 2, 2, 2}

		for i, branch := range structure.Branches {
			if branch.Type != wantTypes[i] {
				t.Fatalf("branch %d type = %q, want %q", i, branch.Type, wantTypes[i])
			}

			if len(branch.Arms) != wantArms[i] {
				t.Fatalf("branch %d arms = %d, want %d", i, len(branch.Arms), wantArms[i])
			}
		}
	})

	t.Run("statement spans nest inside their function body", func(t *testing.T) {
		body := structure.Functions[0].Span
		if !body.Contains(structure.Statements[0].Span) {
			t.Fatalf("function body %+v does not contain first statement %+v", body, structure.Statements[0].Span)
		}
	})
}

func TestTreeSitterFileAdapter_ExtractStructure_Deterministic(t *testing.T) {
	adapter := NewTreeSitterFileAdapter()

	first, err := adapter.ExtractStructure(context.Background(), "app.js", []byte(sampleSource))
	if err != nil {
		t.Fatalf("ExtractStructure() error = %v", err)
	}

	second, err := adapter.ExtractStructure(context.Background(), "app.js", []byte(sampleSource))
	if err != nil {
		t.Fatalf("ExtractStructure() error = %v", err)
	}

	if !reflect.DeepEqual(first, second) {
		t.Fatalf("ExtractStructure() is not deterministic for identical input")
	}
}

func TestTreeSitterFileAdapter_ExtractStructure_LogicalChain(t *testing.T) {
	adapter := NewTreeSitterFileAdapter()

	structure, err := adapter.ExtractStructure(context.Background(), "chain.js", []byte("const r = a && b && c;\n"))
	if err != nil {
		t.Fatalf("ExtractStructure() error = %v", err)
	}

	if got := len(structure.Branches); got != 1 {
		t.Fatalf("chained && produced %d branch groups, want 1", got)
	}

	if got := len(structure.Branches[0].Arms); got != 3 {
		t.Fatalf("chained && produced %d arms, want 3", got)
	}
}

func TestTreeSitterFileAdapter_ExtractStructure_TypeScript(t *testing.T) {
	adapter := NewTreeSitterFileAdapter()

	structure, err := adapter.ExtractStructure(context.Background(), "types.ts", []byte("const x: number = 1;\n"))
	if err != nil {
		t.Fatalf("ExtractStructure() error = %v", err)
	}

	if got := len(structure.Statements); got != 1 {
		t.Fatalf("typescript source statements = %d, want 1", got)
	}
}

func TestTreeSitterFileAdapter_ExtractStructure_EmptySource(t *testing.T) {
	adapter := NewTreeSitterFileAdapter()

	structure, err := adapter.ExtractStructure(context.Background(), "empty.js", nil)
	if err != nil {
		t.Fatalf("ExtractStructure() error = %v", err)
	}

	if len(structure.Statements)+len(structure.Functions)+len(structure.Branches) != 0 {
		t.Fatalf("empty source produced units: %+v", structure)
	}
}
