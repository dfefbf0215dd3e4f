package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"rent-reconciliation-service/pkg/errors"
	"rent-reconciliation-service/pkg/logger"

	"github.com/google/uuid"
	"google.golang.org/genai"
)

// DefaultModelName is the Gemini model used for statement extraction.
const DefaultModelName = "gemini-2.5-flash"

// GeminiConfig configures the Gemini-backed extractor.
type GeminiConfig struct {
	Model   string        `json:"model" mapstructure:"model"`
	APIKey  string        `json:"-" mapstructure:"api_key"`
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`
}

// DefaultGeminiConfig returns the default extractor configuration. An empty
// APIKey lets the client read GEMINI_API_KEY or GOOGLE_API_KEY.
func DefaultGeminiConfig() *GeminiConfig {
	return &GeminiConfig{
		Model:   DefaultModelName,
		Timeout: 90 * time.Second,
	}
}

// Validate checks the configuration
func (c *GeminiConfig) Validate() error {
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("model name cannot be empty")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %v", c.Timeout)
	}
	return nil
}

// contentGenerator is the part of *genai.Models the extractor uses.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiExtractor extracts statements with a Gemini model.
type GeminiExtractor struct {
	models contentGenerator
	config *GeminiConfig
	logger logger.Logger
}

// NewGeminiExtractor creates the genai client and the extractor around it.
func NewGeminiExtractor(ctx context.Context, config *GeminiConfig, log logger.Logger) (*GeminiExtractor, error) {
	if config == nil {
		config = DefaultGeminiConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "llm", config.Model, err)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, "llm.api_key", nil, err).
			WithSuggestion("set RECONCILER_LLM_API_KEY or GEMINI_API_KEY")
	}

	return newGeminiExtractor(client.Models, config, log), nil
}

func newGeminiExtractor(models contentGenerator, config *GeminiConfig, log logger.Logger) *GeminiExtractor {
	return &GeminiExtractor{
		models: models,
		config: config,
		logger: logger.OrGlobal(log).WithComponent("gemini"),
	}
}

// Extract sends the document to the model and decodes the JSON object it returns.
func (g *GeminiExtractor) Extract(ctx context.Context, doc Document) (map[string]interface{}, error) {
	ctx, cancel := context.WithTimeout(ctx, g.config.Timeout)
	defer cancel()

	requestID := uuid.NewString()
	log := g.logger.WithFields(logger.Fields{
		"document":   doc.Name,
		"request_id": requestID,
		"model":      g.config.Model,
	})

	parts := []*genai.Part{{Text: BuildPrompt()}}
	if len(doc.PDF) > 0 {
		parts = append(parts, &genai.Part{InlineData: &genai.Blob{MIMEType: "application/pdf", Data: doc.PDF}})
	} else {
		parts = append(parts, &genai.Part{Text: "Statement text:\n" + doc.Text})
	}

	contents := []*genai.Content{{Role: "user", Parts: parts}}
	cfg := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr[float32](0),
	}

	start := time.Now()
	resp, err := g.models.GenerateContent(ctx, g.config.Model, contents, cfg)
	if err != nil {
		log.WithError(err).Warn("Model call failed")
		return nil, errors.ExtractionError(errors.CodeExtractionFailed, doc.Name, err).
			WithContext("request_id", requestID)
	}
	log.WithField("duration", time.Since(start).String()).Debug("Model call completed")

	raw := cleanModelJSON(resp.Text())
	if raw == "" || raw == "{}" {
		return nil, errors.ExtractionError(errors.CodeEmptyResponse, doc.Name, nil).
			WithContext("request_id", requestID)
	}

	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var parsed map[string]interface{}
	if err := dec.Decode(&parsed); err != nil {
		return nil, errors.ExtractionError(errors.CodeMalformedJSON, doc.Name, err).
			WithContext("request_id", requestID).
			WithPayload(raw)
	}
	if len(parsed) == 0 {
		return nil, errors.ExtractionError(errors.CodeEmptyResponse, doc.Name, nil).
			WithContext("request_id", requestID)
	}
	return parsed, nil
}

// cleanModelJSON strips Markdown fences and any text around the outer JSON object.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		idx := strings.Index(s, "\n")
		if idx == -1 {
			return ""
		}
		s = strings.TrimSpace(s[idx+1:])
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)

	if start := strings.Index(s, "{"); start != -1 {
		if end := strings.LastIndex(s, "}"); end > start {
			s = s[start : end+1]
		}
	}
	return strings.TrimSpace(s)
}
