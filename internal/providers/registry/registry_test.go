package registry

import (
	"testing"

	"iprompt/internal/providers/anthropic_messages"
	"iprompt/internal/providers/gemini"
	"iprompt/internal/providers/openai_compat"
)

func TestBuildByKind(t *testing.T) {
	p, err := Build(BuildOptions{Kind: "openai_compat", APIKey: "k"})
	if err != nil {
		t.Fatalf("build openai: %v", err)
	}
	if _, ok := p.(*openai_compat.Client); !ok {
		t.Fatalf("expected openai_compat client, got %T", p)
	}

	p, err = Build(BuildOptions{Kind: "Anthropic", APIKey: "k"})
	if err != nil {
		t.Fatalf("build anthropic: %v", err)
	}
	if _, ok := p.(*anthropic_messages.Client); !ok {
		t.Fatalf("expected anthropic client, got %T", p)
	}

	p, err = Build(BuildOptions{Kind: "gemini", APIKey: "k"})
	if err != nil {
		t.Fatalf("build gemini: %v", err)
	}
	if _, ok := p.(*gemini.Client); !ok {
		t.Fatalf("expected gemini client, got %T", p)
	}
}

func TestBuildUnknownKind(t *testing.T) {
	if _, err := Build(BuildOptions{Kind: "custom_http"}); err == nil {
		t.Fatalf("expected error for unsupported kind")
	}
}
