package openai

import "testing"

func TestNew_RequiresAPIKey(t *testing.T) {
	if _, err := New("", "gpt-4o"); err == nil {
		t.Fatal("New() accepted an empty API key")
	}
}

func TestNew_RequiresModel(t *testing.T) {
	if _, err := New("sk-test", ""); err == nil {
		t.Fatal("New() accepted an empty model")
	}
}

func TestNew_WithOptions(t *testing.T) {
	p, err := New("sk-test", "gpt-4o", WithBaseURL("http://localhost:8089/v1"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if p.model != "gpt-4o" {
		t.Errorf("model = %q, want gpt-4o", p.model)
	}
}
