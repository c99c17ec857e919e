package prompt

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"text/template"
	"text/template/parse"
)

//go:embed template
var embedded embed.FS

const (
	NamespaceResponses  = "responses"
	NamespaceSystem     = "system"
	NamespaceExtraction = "extraction"

	templateExt = ".tmpl"
)

// Namespaces lists every namespace the store knows about, in load order.
var Namespaces = []string{NamespaceResponses, NamespaceSystem, NamespaceExtraction}

type entry struct {
	tmpl *template.Template
	vars []string
}

type templateSet map[string]entry

func key(ns, name string) string {
	return ns + "/" + name
}

// loadSet parses the embedded defaults and overlays files from overrideDir,
// one file at a time. Any parse failure aborts the whole load.
func loadSet(defaults fs.FS, overrideDir string) (templateSet, error) {
	set := make(templateSet, 32)

	for _, ns := range Namespaces {
		if err := addFromFS(set, defaults, ns); err != nil {
			return nil, err
		}
	}

	if strings.TrimSpace(overrideDir) == "" {
		return set, nil
	}
	info, err := os.Stat(overrideDir)
	if err != nil {
		return nil, fmt.Errorf("prompts dir %s: %w", overrideDir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("prompts dir %s is not a directory", overrideDir)
	}

	overrides := os.DirFS(overrideDir)
	for _, ns := range Namespaces {
		if err := addFromFS(set, overrides, ns); err != nil {
			return nil, err
		}
	}
	return set, nil
}

func addFromFS(set templateSet, fsys fs.FS, ns string) error {
	entries, err := fs.ReadDir(fsys, ns)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read namespace %s: %w", ns, err)
	}

	for _, de := range entries {
		if de.IsDir() || filepath.Ext(de.Name()) != templateExt {
			continue
		}
		name := strings.TrimSuffix(de.Name(), templateExt)
		raw, err := fs.ReadFile(fsys, path.Join(ns, de.Name()))
		if err != nil {
			return fmt.Errorf("read template %s: %w", key(ns, name), err)
		}
		e, err := compile(key(ns, name), string(raw))
		if err != nil {
			return err
		}
		set[key(ns, name)] = e
	}
	return nil
}

func compile(k, text string) (entry, error) {
	tmpl, err := template.New(k).Option("missingkey=error").Parse(strings.TrimSpace(text))
	if err != nil {
		return entry{}, &MalformedTemplateError{Key: k, Err: err}
	}
	return entry{tmpl: tmpl, vars: placeholders(tmpl)}, nil
}

// placeholders returns the top-level field names referenced anywhere in the
// template, in first-seen order.
func placeholders(tmpl *template.Template) []string {
	seen := map[string]bool{}
	var out []string
	var walk func(n parse.Node)
	walk = func(n parse.Node) {
		switch n := n.(type) {
		case nil:
		case *parse.ListNode:
			if n == nil {
				return
			}
			for _, c := range n.Nodes {
				walk(c)
			}
		case *parse.ActionNode:
			walk(n.Pipe)
		case *parse.PipeNode:
			if n == nil {
				return
			}
			for _, cmd := range n.Cmds {
				walk(cmd)
			}
		case *parse.CommandNode:
			for _, arg := range n.Args {
				walk(arg)
			}
		case *parse.FieldNode:
			if len(n.Ident) > 0 && !seen[n.Ident[0]] {
				seen[n.Ident[0]] = true
				out = append(out, n.Ident[0])
			}
		case *parse.IfNode:
			walk(n.Pipe)
			walk(n.List)
			walk(n.ElseList)
		case *parse.RangeNode:
			walk(n.Pipe)
			walk(n.List)
			walk(n.ElseList)
		case *parse.WithNode:
			walk(n.Pipe)
			walk(n.List)
			walk(n.ElseList)
		case *parse.TemplateNode:
			walk(n.Pipe)
		}
	}
	for _, t := range tmpl.Templates() {
		if t.Tree != nil {
			walk(t.Tree.Root)
		}
	}
	return out
}
