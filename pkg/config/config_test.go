package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

type sampleConfig struct {
	Name    string        `split_words:"true" default:"Pharmesol"`
	Phone   string        `split_words:"true"`
	Timeout time.Duration `split_words:"true" default:"5s"`
}

func TestNewReadsEnvFileWithoutOverriding(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	content := "CFGTEST_NAME=Acme Rx\nCFGTEST_PHONE=+1-555-000-1111\nCFGTEST_TIMEOUT=2s\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("CFGTEST_PHONE", "+1-555-222-3333")

	SetEnvFile(path)
	t.Cleanup(func() { SetEnvFile("") })

	conf, err := New[sampleConfig]("CFGTEST")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() {
		os.Unsetenv("CFGTEST_NAME")
		os.Unsetenv("CFGTEST_TIMEOUT")
	})

	if conf.Name != "Acme Rx" {
		t.Fatalf("Name = %q", conf.Name)
	}
	if conf.Phone != "+1-555-222-3333" {
		t.Fatalf("Phone = %q, process env must win", conf.Phone)
	}
	if conf.Timeout != 2*time.Second {
		t.Fatalf("Timeout = %v", conf.Timeout)
	}
}

func TestNewMissingExplicitFile(t *testing.T) {
	SetEnvFile(filepath.Join(t.TempDir(), "nope.env"))
	t.Cleanup(func() { SetEnvFile("") })

	if _, err := New[sampleConfig]("CFGMISSING"); err == nil {
		t.Fatal("expected error for missing env file")
	}
}

func TestNewDefaults(t *testing.T) {
	conf, err := New[sampleConfig]("CFGDEFAULT")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if conf.Name != "Pharmesol" || conf.Timeout != 5*time.Second {
		t.Fatalf("conf = %#v", conf)
	}
}

type requiredConfig struct {
	Token string `split_words:"true" required:"true"`
}

func TestMustNewPanicsOnMissingRequired(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("MustNew() should panic when a required value is missing")
		}
	}()
	MustNew[requiredConfig]("CFGREQUIRED")
}
