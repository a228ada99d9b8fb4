package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("termserver")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Service.Name != "termserver" {
		t.Errorf("service name: got %q", cfg.Service.Name)
	}
	if cfg.Terminology.InferredCharacteristicTypeID != 900000000000011006 {
		t.Errorf("inferred characteristic type: got %d", cfg.Terminology.InferredCharacteristicTypeID)
	}
	if cfg.Terminology.OWLAxiomRefsetID != 733073007 {
		t.Errorf("owl axiom refset: got %d", cfg.Terminology.OWLAxiomRefsetID)
	}
	if cfg.Terminology.RootConceptID != 138875005 {
		t.Errorf("root concept: got %d", cfg.Terminology.RootConceptID)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("OWL_AXIOM_REFSET_ID", "733073008")
	t.Setenv("INTEGRITY_HOOK_SKIP_EXPRESSION", `path.startsWith("MAIN/SNOMEDCT-")`)

	cfg, err := Load("termserver")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Terminology.OWLAxiomRefsetID != 733073008 {
		t.Errorf("owl axiom refset: got %d", cfg.Terminology.OWLAxiomRefsetID)
	}
	if cfg.Integrity.HookSkipExpression == "" {
		t.Errorf("hook skip expression not loaded")
	}
}

func TestLoadConfigFileOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "termserver.yaml")
	content := []byte("terminology:\n  root_concept_id: 138875006\nservice:\n  port: 9090\n")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)

	cfg, err := Load("termserver")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Terminology.RootConceptID != 138875006 {
		t.Errorf("root concept from file: got %d", cfg.Terminology.RootConceptID)
	}
	if cfg.Service.Port != 9090 {
		t.Errorf("port from file: got %d", cfg.Service.Port)
	}
	// Untouched keys keep env defaults
	if cfg.Terminology.OWLAxiomRefsetID != 733073007 {
		t.Errorf("owl axiom refset: got %d", cfg.Terminology.OWLAxiomRefsetID)
	}
}

func TestValidateRejectsZeroIdentifiers(t *testing.T) {
	cfg, err := Load("termserver")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cfg.Terminology.RootConceptID = 0
	if err := cfg.Validate(); err == nil {
		t.Errorf("expected validation error for zero root concept")
	}
}
