package anyllm

import (
	"strings"
	"testing"
)

func TestNew_RequiresProviderName(t *testing.T) {
	if _, err := New("", "gpt-4o"); err == nil {
		t.Fatal("New() accepted an empty provider name")
	}
}

func TestNew_RequiresModel(t *testing.T) {
	if _, err := New("ollama", ""); err == nil {
		t.Fatal("New() accepted an empty model")
	}
}

func TestNew_UnsupportedProvider(t *testing.T) {
	_, err := New("copilot", "gpt-4o")
	if err == nil {
		t.Fatal("New() accepted an unsupported provider")
	}
	if !strings.Contains(err.Error(), "copilot") {
		t.Errorf("error %q does not name the rejected provider", err)
	}
}

func TestNew_ProviderNameCaseInsensitive(t *testing.T) {
	p, err := New("Ollama", "llama3.2")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if p.model != "llama3.2" {
		t.Errorf("model = %q, want llama3.2", p.model)
	}
}
