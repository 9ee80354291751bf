package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 1200, cfg.RAG.ChunkSize)
	assert.Equal(t, 200, cfg.RAG.ChunkOverlap)
	assert.Equal(t, 6, cfg.RAG.TopK)
	assert.Equal(t, 500, cfg.RAG.SnippetLength)
	assert.Equal(t, 8000, cfg.Pipeline.CaseTextLimit)
	assert.Equal(t, 1, cfg.Pipeline.MaxIterations.Extraction)
	assert.Equal(t, 2, cfg.Pipeline.MaxIterations.Reasoning)
	assert.Equal(t, "Bearer", cfg.CaseLaw.AuthScheme)
}

func TestLoadConfig_YAMLOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
corpus:
  dir: /srv/corpus
rag:
  chunk_size: 800
  chunk_overlap: 100
embed_llm:
  provider: hash
  dimension: 512
pipeline:
  call_timeout: 45s
  retrieval_mode: agent
  max_iterations:
    statutes: 4
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "/srv/corpus", cfg.Corpus.Dir)
	assert.Equal(t, 800, cfg.RAG.ChunkSize)
	assert.Equal(t, 100, cfg.RAG.ChunkOverlap)
	assert.Equal(t, "hash", cfg.EmbedLLM.Provider)
	assert.Equal(t, 512, cfg.EmbedLLM.Dimension)
	assert.Equal(t, 45*time.Second, cfg.Pipeline.CallTimeout)
	assert.Equal(t, "agent", cfg.Pipeline.RetrievalMode)
	assert.Equal(t, 4, cfg.Pipeline.MaxIterations.Statutes)
	// untouched keys keep their defaults
	assert.Equal(t, 8, cfg.Pipeline.MaxIterations.Precedents)
	assert.Equal(t, 6, cfg.RAG.TopK)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("CORPUS_DIR", "/env/corpus")
	t.Setenv("VECTORSTORE_DIR", "/env/index")
	t.Setenv("LLM_PROVIDER", "googleai")
	t.Setenv("LLM_MODEL", "gemini-1.5-pro")
	t.Setenv("GOOGLE_API_KEY", "g-key")
	t.Setenv("INDIAN_KANOON_API_KEY", "ik-key")
	t.Setenv("RAG_TOP_K", "8")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "/env/corpus", cfg.Corpus.Dir)
	assert.Equal(t, "/env/index", cfg.Index.Dir)
	assert.Equal(t, "googleai", cfg.InferenceLLM.Provider)
	assert.Equal(t, "gemini-1.5-pro", cfg.InferenceLLM.Model)
	assert.Equal(t, "g-key", cfg.InferenceLLM.Key)
	assert.Equal(t, "ik-key", cfg.CaseLaw.APIKey)
	assert.Equal(t, 8, cfg.RAG.TopK)
}

func TestLoadConfig_APIKeysFollowProvider(t *testing.T) {
	tests := []struct {
		name      string
		env       map[string]string
		provider  string
		model     string
		inference string
		embed     string
	}{
		{
			name:     "google key ignored by openai",
			env:      map[string]string{"GOOGLE_API_KEY": "g-key"},
			provider: "openai",
			model:    "gpt-4o-mini",
		},
		{
			name:      "googleai takes the google key",
			env:       map[string]string{"LLM_PROVIDER": "googleai", "GOOGLE_API_KEY": "g-key", "OPENAI_API_KEY": "o-key"},
			provider:  "googleai",
			model:     "gemini-1.5-flash",
			inference: "g-key",
		},
		{
			name:      "openai key for openai",
			env:       map[string]string{"GOOGLE_API_KEY": "g-key", "OPENAI_API_KEY": "o-key"},
			provider:  "openai",
			model:     "gpt-4o-mini",
			inference: "o-key",
		},
		{
			name:      "generic key when no vendor key",
			env:       map[string]string{"LLM_API_KEY": "any-key"},
			provider:  "openai",
			model:     "gpt-4o-mini",
			inference: "any-key",
		},
		{
			name:      "embedder gets its own provider key",
			env:       map[string]string{"EMBEDDING_PROVIDER": "googleai", "EMBEDDING_MODEL": "text-embedding-004", "GOOGLE_API_KEY": "g-key", "OPENAI_API_KEY": "o-key"},
			provider:  "openai",
			model:     "gpt-4o-mini",
			inference: "o-key",
			embed:     "g-key",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, k := range []string{"LLM_PROVIDER", "LLM_MODEL", "EMBEDDING_PROVIDER", "EMBEDDING_MODEL",
				"GOOGLE_API_KEY", "OPENAI_API_KEY", "LLM_API_KEY", "EMBEDDING_API_KEY"} {
				t.Setenv(k, "")
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			cfg, err := LoadConfig("")
			require.NoError(t, err)

			assert.Equal(t, tt.provider, cfg.InferenceLLM.Provider)
			assert.Equal(t, tt.model, cfg.InferenceLLM.Model)
			assert.Equal(t, tt.inference, cfg.InferenceLLM.Key)
			assert.Equal(t, tt.embed, cfg.EmbedLLM.Key)
		})
	}
}

func TestLoadConfig_WebSearch(t *testing.T) {
	t.Setenv("SERPER_API_KEY", "")
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "https://google.serper.dev/search", cfg.WebSearch.BaseURL)
	assert.Empty(t, cfg.WebSearch.APIKey)

	t.Setenv("SERPER_API_KEY", "s-key")
	cfg, err = LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "s-key", cfg.WebSearch.APIKey)
	assert.Equal(t, 5, cfg.WebSearch.MaxResults)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"overlap not below chunk size", "rag:\n  chunk_size: 100\n  chunk_overlap: 100\n"},
		{"unknown embed provider", "embed_llm:\n  provider: word2vec\n"},
		{"hash cannot generate", "inference_llm:\n  provider: hash\n"},
		{"short encryption key", "index:\n  encryption_key: short\n"},
		{"s3 without bucket", "output:\n  type: s3\n"},
		{"bad retrieval mode", "pipeline:\n  retrieval_mode: crew\n"},
		{"zero top k", "rag:\n  top_k: 0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfig_BadTopKEnv(t *testing.T) {
	t.Setenv("RAG_TOP_K", "six")
	_, err := LoadConfig("")
	assert.Error(t, err)
}
