package transform

import (
	"strings"
	"testing"
)

func TestRenderSimpleSubstitution(t *testing.T) {
	ctx := Context{"settings": map[string]string{"version": "1.2.3"}}

	got, err := Render("v{{ .settings.version }}", ctx)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if got != "v1.2.3" {
		t.Errorf("got %q", got)
	}
}

func TestRenderPlainStringUntouched(t *testing.T) {
	got, err := Render("no actions here {", nil)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if got != "no actions here {" {
		t.Errorf("got %q", got)
	}
}

func TestRenderMissingKeyError(t *testing.T) {
	_, err := Render("{{ .missing }}", Context{"settings": map[string]string{}})
	if err == nil {
		t.Fatal("expected error for missing variable")
	}
}

func TestRenderInvalidSyntax(t *testing.T) {
	_, err := Render("{{ .unclosed", Context{})
	if err == nil {
		t.Fatal("expected parse error")
	}
	if !strings.Contains(err.Error(), "parsing template") {
		t.Errorf("error = %v", err)
	}
}

func TestRenderAll(t *testing.T) {
	ctx := Context{"chainId": 10}
	got, err := RenderAll([]string{"a", "chain-{{ .chainId }}"}, ctx)
	if err != nil {
		t.Fatalf("RenderAll: %v", err)
	}
	if len(got) != 2 || got[0] != "a" || got[1] != "chain-10" {
		t.Errorf("got %v", got)
	}

	none, err := RenderAll(nil, ctx)
	if err != nil || none != nil {
		t.Errorf("RenderAll(nil) = %v, %v", none, err)
	}
}

func TestRenderAllReportsIndex(t *testing.T) {
	_, err := RenderAll([]string{"ok", "{{ .nope }}"}, Context{})
	if err == nil || !strings.Contains(err.Error(), "element 1") {
		t.Errorf("error = %v, want element index", err)
	}
}

func TestMergeVars(t *testing.T) {
	global := map[string]string{"a": "1", "b": "2"}
	local := map[string]string{"b": "override", "c": "3"}

	merged := MergeVars(global, local)
	if merged["a"] != "1" || merged["b"] != "override" || merged["c"] != "3" {
		t.Errorf("merged = %v", merged)
	}
}

func TestMergeVarsNilInputs(t *testing.T) {
	merged := MergeVars(nil, nil)
	if merged == nil || len(merged) != 0 {
		t.Errorf("expected empty map, got %v", merged)
	}
}
