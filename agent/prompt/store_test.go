package prompt

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	contractx "github.com/tanpawarit/pharmacy-concierge/agent/contract"
)

func testDefaults() fstest.MapFS {
	return fstest.MapFS{
		"responses/hello.tmpl":   {Data: []byte("  Hello {{.name}} from {{.company_name}}!\n")},
		"responses/static.tmpl":  {Data: []byte("No variables here.")},
		"system/sys.tmpl":        {Data: []byte("{{if .vip}}VIP {{end}}{{.name}}")},
		"responses/ignored.txt":  {Data: []byte("{{.nope")},
		"extraction/fields.tmpl": {Data: []byte("{{.fields}}\n{{.user_message}}")},
	}
}

func TestRenderSubstitutesVariables(t *testing.T) {
	t.Parallel()

	s, err := Load(WithDefaults(testDefaults()))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	got, err := s.Render(NamespaceResponses, "hello", map[string]any{"name": "Dana", "company_name": "Pharmesol"})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if got != "Hello Dana from Pharmesol!" {
		t.Fatalf("Render() = %q", got)
	}
}

func TestRenderIsDeterministic(t *testing.T) {
	t.Parallel()

	s := MustLoad(WithDefaults(testDefaults()))
	vars := map[string]any{"name": "Dana", "company_name": "Pharmesol"}
	first, _ := s.Render(NamespaceResponses, "hello", vars)
	for i := 0; i < 5; i++ {
		got, err := s.Render(NamespaceResponses, "hello", vars)
		if err != nil || got != first {
			t.Fatalf("Render() run %d = %q, %v; want %q", i, got, err, first)
		}
	}
}

func TestRenderUnknownTemplate(t *testing.T) {
	t.Parallel()

	s := MustLoad(WithDefaults(testDefaults()))
	_, err := s.Render(NamespaceResponses, "missing", nil)

	var nf *TemplateNotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("Render() error = %v, want *TemplateNotFoundError", err)
	}
	if nf.Namespace != NamespaceResponses || nf.Name != "missing" {
		t.Fatalf("unexpected error fields: %+v", nf)
	}
	if !errors.Is(err, ErrTemplateNotFound) || !errors.Is(err, contractx.ErrTemplate) {
		t.Fatalf("error chain does not reach sentinels: %v", err)
	}
}

func TestRenderMissingVariableNamesIt(t *testing.T) {
	t.Parallel()

	s := MustLoad(WithDefaults(testDefaults()))
	_, err := s.Render(NamespaceResponses, "hello", map[string]any{"name": "Dana"})

	var mv *MissingVariableError
	if !errors.As(err, &mv) {
		t.Fatalf("Render() error = %v, want *MissingVariableError", err)
	}
	if mv.Variable != "company_name" {
		t.Fatalf("Variable = %q, want company_name", mv.Variable)
	}
	if !errors.Is(err, ErrMissingVariable) {
		t.Fatalf("errors.Is(ErrMissingVariable) = false for %v", err)
	}
}

func TestVariablesIncludeNestedBranches(t *testing.T) {
	t.Parallel()

	s := MustLoad(WithDefaults(testDefaults()))
	vars, err := s.Variables(NamespaceSystem, "sys")
	if err != nil {
		t.Fatalf("Variables() error = %v", err)
	}
	if len(vars) != 2 || vars[0] != "vip" || vars[1] != "name" {
		t.Fatalf("Variables() = %#v", vars)
	}
}

func TestNonTemplateFilesAreIgnored(t *testing.T) {
	t.Parallel()

	s := MustLoad(WithDefaults(testDefaults()))
	if s.Has(NamespaceResponses, "ignored") {
		t.Fatal("a .txt file was loaded as a template")
	}
}

func TestLoadFailsOnMalformedTemplate(t *testing.T) {
	t.Parallel()

	defaults := testDefaults()
	defaults["responses/broken.tmpl"] = &fstest.MapFile{Data: []byte("{{.name")}

	_, err := Load(WithDefaults(defaults))
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("Load() error = %v, want ErrMalformed", err)
	}
}

func TestOverrideDirReplacesSingleTemplate(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeTemplate(t, dir, NamespaceResponses, "static", "Overridden.")

	s := MustLoad(WithDefaults(testDefaults()), WithOverrideDir(dir))
	got, err := s.Render(NamespaceResponses, "static", nil)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if got != "Overridden." {
		t.Fatalf("Render() = %q", got)
	}
	if !s.Has(NamespaceResponses, "hello") {
		t.Fatal("override dir dropped an embedded template")
	}
}

func TestRequireReportsEveryMissingKey(t *testing.T) {
	t.Parallel()

	s := MustLoad(WithDefaults(testDefaults()))
	if err := s.Require("responses/hello", "system/sys"); err != nil {
		t.Fatalf("Require() error = %v", err)
	}

	err := s.Require("responses/hello", "responses/nope", "system/nope", "garbage")
	if err == nil {
		t.Fatal("Require() error = nil")
	}
	if !errors.Is(err, ErrTemplateNotFound) || !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("Require() error = %v", err)
	}
}

func TestReloadKeepsPreviousSetOnFailure(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeTemplate(t, dir, NamespaceResponses, "static", "v1")
	s := MustLoad(WithDefaults(testDefaults()), WithOverrideDir(dir))

	writeTemplate(t, dir, NamespaceResponses, "static", "{{.broken")
	if err := s.Reload(); err == nil {
		t.Fatal("Reload() error = nil for malformed template")
	}
	if got, _ := s.Render(NamespaceResponses, "static", nil); got != "v1" {
		t.Fatalf("Render() after failed reload = %q, want v1", got)
	}

	writeTemplate(t, dir, NamespaceResponses, "static", "v2")
	if err := s.Reload(); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	if got, _ := s.Render(NamespaceResponses, "static", nil); got != "v2" {
		t.Fatalf("Render() after reload = %q, want v2", got)
	}
}

func TestWatchPicksUpChanges(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeTemplate(t, dir, NamespaceResponses, "static", "before")
	s := MustLoad(WithDefaults(testDefaults()), WithOverrideDir(dir))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := s.Watch(ctx); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	writeTemplate(t, dir, NamespaceResponses, "static", "after")

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if got, _ := s.Render(NamespaceResponses, "static", nil); got == "after" {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("watcher did not reload the changed template")
}

func TestEmbeddedTemplatesRenderWithTheirOwnVariables(t *testing.T) {
	t.Parallel()

	s, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	for _, ns := range Namespaces {
		s.mu.RLock()
		keys := make([]string, 0, len(s.set))
		for k := range s.set {
			keys = append(keys, k)
		}
		s.mu.RUnlock()

		for _, k := range keys {
			kns, name := splitKey(k)
			if kns != ns {
				continue
			}
			vars, err := s.Variables(kns, name)
			if err != nil {
				t.Fatalf("Variables(%s) error = %v", k, err)
			}
			in := make(map[string]any, len(vars))
			for _, v := range vars {
				in[v] = "x"
			}
			out, err := s.Render(kns, name, in)
			if err != nil {
				t.Fatalf("Render(%s) error = %v", k, err)
			}
			if out == "" {
				t.Fatalf("Render(%s) produced empty output", k)
			}
		}
	}
}

func writeTemplate(t *testing.T, dir, ns, name, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Join(dir, ns), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ns, name+templateExt), []byte(body), 0o644); err != nil {
		t.Fatalf("write template: %v", err)
	}
}

func splitKey(k string) (string, string) {
	ns, name, _ := strings.Cut(k, "/")
	return ns, name
}
