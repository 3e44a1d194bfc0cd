package targetmap

import (
	"testing"

	"github.com/spf13/afero"

	"github.com/evalgo/eve-build/sourceroot"
)

func TestFileTargetLoaderLoadsDescription(t *testing.T) {
	mem := afero.NewMemMapFs()
	afero.WriteFile(mem, "lib/TARGETS", []byte(`{
		"hello": {
			"type": "export",
			"target": "impl",
			"flexible_config": []
		},
		"impl": {
			"type": "generic",
			"outs": ["hello.txt"],
			"cmds": ["echo hello > hello.txt"]
		}
	}`), 0o644)

	loader := NewFileTargetLoader(sourceroot.New(mem, ""))

	desc, err := loader.Load("", "lib", "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if desc.Type != "export" {
		t.Fatalf("expected type export, got %q", desc.Type)
	}
	if _, ok := desc.Field("target"); !ok {
		t.Fatalf("expected target field to survive decoding")
	}
	if _, ok := desc.Field("type"); ok {
		t.Fatalf("type discriminator should not also appear as a field")
	}

	other, err := loader.Load("", "lib", "impl")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if other.Type != "generic" {
		t.Fatalf("expected type generic, got %q", other.Type)
	}
}

func TestFileTargetLoaderUnknownTarget(t *testing.T) {
	mem := afero.NewMemMapFs()
	afero.WriteFile(mem, "lib/TARGETS", []byte(`{"hello": {"type": "export"}}`), 0o644)

	loader := NewFileTargetLoader(sourceroot.New(mem, ""))
	if _, err := loader.Load("", "lib", "missing"); err == nil {
		t.Fatalf("expected an error for an undefined target")
	}
}

func TestFileTargetLoaderRejectsNonObjectEntry(t *testing.T) {
	mem := afero.NewMemMapFs()
	afero.WriteFile(mem, "lib/TARGETS", []byte(`{"hello": "not an object"}`), 0o644)

	loader := NewFileTargetLoader(sourceroot.New(mem, ""))
	if _, err := loader.Load("", "lib", "hello"); err == nil {
		t.Fatalf("expected an error for a non-object target entry")
	}
}
