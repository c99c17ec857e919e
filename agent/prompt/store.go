package prompt

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/pharmacy-concierge/agent/contract"
)

var (
	ErrTemplateNotFound = fmt.Errorf("%w: not found", contractx.ErrTemplate)
	ErrMissingVariable  = fmt.Errorf("%w: missing variable", contractx.ErrTemplate)
	ErrMalformed        = fmt.Errorf("%w: malformed", contractx.ErrTemplate)
)

type TemplateNotFoundError struct {
	Namespace string
	Name      string
}

func (e *TemplateNotFoundError) Error() string {
	return fmt.Sprintf("template %s/%s not found", e.Namespace, e.Name)
}

func (e *TemplateNotFoundError) Unwrap() error { return ErrTemplateNotFound }

type MissingVariableError struct {
	Key      string
	Variable string
}

func (e *MissingVariableError) Error() string {
	return fmt.Sprintf("template %s: missing variable %q", e.Key, e.Variable)
}

func (e *MissingVariableError) Unwrap() error { return ErrMissingVariable }

type MalformedTemplateError struct {
	Key string
	Err error
}

func (e *MalformedTemplateError) Error() string {
	return fmt.Sprintf("template %s: %v", e.Key, e.Err)
}

func (e *MalformedTemplateError) Unwrap() []error { return []error{ErrMalformed, e.Err} }

// Option customizes Store.
type Option func(*Store)

// WithOverrideDir overlays <dir>/<namespace>/<name>.tmpl on the embedded set.
func WithOverrideDir(dir string) Option {
	return func(s *Store) {
		s.overrideDir = strings.TrimSpace(dir)
	}
}

// WithDefaults replaces the embedded template tree. Used by tests.
func WithDefaults(fsys fs.FS) Option {
	return func(s *Store) {
		if fsys != nil {
			s.defaults = fsys
		}
	}
}

// Store renders named templates. Rendering is a pure function of the
// loaded set and the supplied variables.
type Store struct {
	mu          sync.RWMutex
	set         templateSet
	defaults    fs.FS
	overrideDir string
}

var _ contractx.Renderer = (*Store)(nil)

func Load(opts ...Option) (*Store, error) {
	sub, err := fs.Sub(embedded, "template")
	if err != nil {
		return nil, err
	}
	s := &Store{defaults: sub}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	set, err := loadSet(s.defaults, s.overrideDir)
	if err != nil {
		return nil, err
	}
	s.set = set
	return s, nil
}

func MustLoad(opts ...Option) *Store {
	s, err := Load(opts...)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *Store) Render(ns string, name string, vars map[string]any) (string, error) {
	k := key(ns, name)

	s.mu.RLock()
	e, ok := s.set[k]
	s.mu.RUnlock()
	if !ok {
		return "", &TemplateNotFoundError{Namespace: ns, Name: name}
	}

	for _, v := range e.vars {
		if _, ok := vars[v]; !ok {
			return "", &MissingVariableError{Key: k, Variable: v}
		}
	}

	var b strings.Builder
	if err := e.tmpl.Execute(&b, vars); err != nil {
		return "", fmt.Errorf("%w: execute %s: %v", contractx.ErrTemplate, k, err)
	}
	return strings.TrimSpace(b.String()), nil
}

// Has reports whether namespace/name is loaded.
func (s *Store) Has(ns, name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.set[key(ns, name)]
	return ok
}

// Variables returns the placeholders a template requires.
func (s *Store) Variables(ns, name string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.set[key(ns, name)]
	if !ok {
		return nil, &TemplateNotFoundError{Namespace: ns, Name: name}
	}
	return append([]string(nil), e.vars...), nil
}

// Require checks that every "namespace/name" key is loaded.
func (s *Store) Require(keys ...string) error {
	var errs []error
	for _, k := range keys {
		ns, name, ok := strings.Cut(k, "/")
		if !ok {
			errs = append(errs, fmt.Errorf("%w: bad template key %q", contractx.ErrValidation, k))
			continue
		}
		if !s.Has(ns, name) {
			errs = append(errs, &TemplateNotFoundError{Namespace: ns, Name: name})
		}
	}
	return errors.Join(errs...)
}

// Reload re-reads the override dir. A failed reload keeps the current set.
func (s *Store) Reload() error {
	set, err := loadSet(s.defaults, s.overrideDir)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.set = set
	s.mu.Unlock()
	return nil
}

// Watch reloads the store whenever a template under the override dir
// changes. It returns once the watcher is registered; watching stops when
// ctx is done.
func (s *Store) Watch(ctx context.Context) error {
	if s.overrideDir == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	dirs := []string{s.overrideDir}
	for _, ns := range Namespaces {
		d := filepath.Join(s.overrideDir, ns)
		if info, err := os.Stat(d); err == nil && info.IsDir() {
			dirs = append(dirs, d)
		}
	}
	for _, d := range dirs {
		if err := watcher.Add(d); err != nil {
			_ = watcher.Close()
			return fmt.Errorf("watch %s: %w", d, err)
		}
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Ext(evt.Name) != templateExt {
					continue
				}
				if evt.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}
				if err := s.Reload(); err != nil {
					log.Error().Err(err).Str("file", evt.Name).Msg("prompt reload failed, keeping previous templates")
					continue
				}
				log.Info().Str("file", evt.Name).Msg("prompts reloaded")
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn().Err(err).Msg("prompt watcher error")
			}
		}
	}()
	return nil
}
