package provider

import (
	"strings"
	"testing"
)

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	ollama := ProviderOllama{Host: "http://localhost:11434", Model: "llama3"}
	azure := ProviderAzureOpenAI{APIKey: "key", Endpoint: "https://my.openai.azure.com", Deployment: "gpt-4o", APIVersion: "2024-02-01"}

	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{"ollama", Config{Backend: BackendOllama, Ollama: ollama}, ""},
		{"ollama without model", Config{Backend: BackendOllama, Ollama: ProviderOllama{Host: ollama.Host}}, "OLLAMA_MODEL"},

		{"openai", Config{Backend: BackendOpenAI, OpenAI: ProviderOpenAI{APIKey: "sk-test", Model: "gpt-4o"}}, ""},
		{"openai without key", Config{Backend: BackendOpenAI, OpenAI: ProviderOpenAI{Model: "gpt-4o"}}, "OPENAI_API_KEY"},
		{"openai without model", Config{Backend: BackendOpenAI, OpenAI: ProviderOpenAI{APIKey: "sk-test"}}, "OPENAI_MODEL"},

		{"azure", Config{Backend: BackendAzure, AzureOpenAI: azure}, ""},
		{"azure without key", Config{Backend: BackendAzure, AzureOpenAI: withAzure(azure, func(a *ProviderAzureOpenAI) { a.APIKey = "" })}, "AZURE_OPENAI_API_KEY"},
		{"azure without endpoint", Config{Backend: BackendAzure, AzureOpenAI: withAzure(azure, func(a *ProviderAzureOpenAI) { a.Endpoint = "" })}, "AZURE_OPENAI_ENDPOINT"},
		{"azure without deployment", Config{Backend: BackendAzure, AzureOpenAI: withAzure(azure, func(a *ProviderAzureOpenAI) { a.Deployment = "" })}, "AZURE_OPENAI_DEPLOYMENT"},

		{"ark", Config{Backend: BackendArk, Ark: ProviderArk{APIKey: "ark-key", Model: "ep-20240101-abcde", Region: "cn-beijing"}}, ""},
		{"ark without key", Config{Backend: BackendArk, Ark: ProviderArk{Model: "ep-20240101-abcde"}}, "ARK_API_KEY"},
		{"ark without model", Config{Backend: BackendArk, Ark: ProviderArk{APIKey: "ark-key"}}, "ARK_MODEL"},

		{"gemini", Config{Backend: BackendGemini, Gemini: ProviderGemini{APIKey: "AIza-test", Model: "gemini-1.5-pro"}}, ""},
		{"gemini without key", Config{Backend: BackendGemini, Gemini: ProviderGemini{Model: "gemini-1.5-pro"}}, "GOOGLE_API_KEY"},
		{"gemini without model", Config{Backend: BackendGemini, Gemini: ProviderGemini{APIKey: "AIza-test"}}, "GEMINI_MODEL"},

		{"temperature above 2", Config{Backend: BackendOllama, Ollama: ollama, Tuning: SharedTuning{Temperature: 2.5}}, "MODEL_TEMPERATURE"},
		{"negative max tokens", Config{Backend: BackendOllama, Ollama: ollama, Tuning: SharedTuning{MaxTokens: -1}}, "MODEL_MAX_TOKENS"},

		{"unknown backend", Config{Backend: "unknown"}, "unknown backend"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := tc.cfg.Validate()
			switch {
			case tc.wantErr == "" && err != nil:
				t.Errorf("Validate() unexpected error: %v", err)
			case tc.wantErr != "" && err == nil:
				t.Errorf("Validate() = nil, want error containing %q", tc.wantErr)
			case tc.wantErr != "" && !strings.Contains(err.Error(), tc.wantErr):
				t.Errorf("Validate() error = %q, want substring %q", err.Error(), tc.wantErr)
			}
		})
	}
}

func withAzure(a ProviderAzureOpenAI, edit func(*ProviderAzureOpenAI)) ProviderAzureOpenAI {
	edit(&a)
	return a
}

func TestIsAzureReasoningModel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		deployment string
		want       bool
	}{
		{"o1-preview", true},
		{"o3-mini", true},
		{"o4-mini", true},
		{"O3-Mini", true},
		{"codex-mini", true},
		// prefix rule only
		{"gpt-5.2-codex", false},
		{"gpt-4o-mini", false},
		{"gpt-4.1", false},
		{"", false},
	}

	for _, tc := range tests {
		t.Run(tc.deployment, func(t *testing.T) {
			t.Parallel()
			got := isAzureReasoningModel(tc.deployment)
			if got != tc.want {
				t.Errorf("isAzureReasoningModel(%q) = %v, want %v", tc.deployment, got, tc.want)
			}
		})
	}
}

func TestSupportsTemperature(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  Config
		want bool
	}{
		{"azure reasoning", Config{Backend: BackendAzure, AzureOpenAI: ProviderAzureOpenAI{Deployment: "o3-mini"}}, false},
		{"azure standard", Config{Backend: BackendAzure, AzureOpenAI: ProviderAzureOpenAI{Deployment: "gpt-4o"}}, true},
		{"openai with o-series name", Config{Backend: BackendOpenAI, OpenAI: ProviderOpenAI{Model: "o3-mini"}}, true},
		{"ollama", Config{Backend: BackendOllama}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := tc.cfg.SupportsTemperature(); got != tc.want {
				t.Errorf("SupportsTemperature() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestModelName(t *testing.T) {
	t.Parallel()

	cfg := Config{
		Ollama:      ProviderOllama{Model: "llama3"},
		OpenAI:      ProviderOpenAI{Model: "gpt-4o-mini"},
		AzureOpenAI: ProviderAzureOpenAI{Deployment: "gpt-4.1"},
		Ark:         ProviderArk{Model: "ep-1"},
		Gemini:      ProviderGemini{Model: "gemini-1.5-pro"},
	}
	want := map[Backend]string{
		BackendOllama: "llama3",
		BackendOpenAI: "gpt-4o-mini",
		BackendAzure:  "gpt-4.1",
		BackendArk:    "ep-1",
		BackendGemini: "gemini-1.5-pro",
		"unknown":     "",
	}
	for b, name := range want {
		c := cfg
		c.Backend = b
		if got := c.ModelName(); got != name {
			t.Errorf("ModelName() for %s = %q, want %q", b, got, name)
		}
	}
}
