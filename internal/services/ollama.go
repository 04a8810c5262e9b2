package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/talecraft/turnengine/pkg/chat"
	"github.com/talecraft/turnengine/pkg/contract"
)

// OllamaService implements ModelService for a self-hosted Ollama server.
type OllamaService struct {
	baseURL   string
	modelName string
	client    *http.Client
	logger    *slog.Logger
}

func NewOllamaService(baseURL string, modelName string, logger *slog.Logger) *OllamaService {
	return &OllamaService{
		baseURL:   baseURL,
		modelName: modelName,
		client:    &http.Client{Timeout: 120 * time.Second},
		logger:    logger,
	}
}

// InitModel makes sure the named model is present locally, pulling it
// from the registry when it is not.
func (s *OllamaService) InitModel(ctx context.Context, modelName string) error {
	var tags struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := s.call(ctx, http.MethodGet, "/api/tags", nil, &tags); err != nil {
		return fmt.Errorf("listing local models: %w", err)
	}
	for _, m := range tags.Models {
		if m.Name == modelName {
			return nil
		}
	}

	s.logger.Info("Model not present locally, pulling", "model", modelName)
	pull := map[string]interface{}{"name": modelName, "stream": false}
	if err := s.call(ctx, http.MethodPost, "/api/pull", pull, nil); err != nil {
		return fmt.Errorf("pulling model %s: %w", modelName, err)
	}
	return nil
}

// Infer runs one non-streaming chat completion and extracts the reply's
// top-level JSON object when one is present.
func (s *OllamaService) Infer(ctx context.Context, messages []chat.Message) (*chat.Reply, error) {
	body := map[string]interface{}{
		"model":    s.modelName,
		"messages": messages,
		"stream":   false,
	}

	var out struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	}
	if err := s.call(ctx, http.MethodPost, "/api/chat", body, &out); err != nil {
		return nil, err
	}

	reply := &chat.Reply{Raw: out.Message.Content}
	if obj, err := contract.ExtractObject(reply.Raw); err == nil {
		reply.JSON = obj
	} else {
		s.logger.Debug("No JSON object in model reply", "error", err)
	}
	return reply, nil
}

// call issues one JSON request against the Ollama API and decodes the
// response into out when out is non-nil.
func (s *OllamaService) call(ctx context.Context, method, path string, body, out interface{}) error {
	var payload *bytes.Buffer
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		payload = bytes.NewBuffer(raw)
	} else {
		payload = &bytes.Buffer{}
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, payload)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("calling %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned status %d", path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}
