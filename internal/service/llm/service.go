package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"firecost/internal/config"
)

// maxDocumentChars bounds the document text sent in one prompt.
const maxDocumentChars = 60000

// UpstreamError reports a failed or unusable model response. Body keeps the
// raw upstream text for diagnosis.
type UpstreamError struct {
	Op   string
	Body string
	Err  error
}

func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("llm %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("llm %s failed", e.Op)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

var errNotJSON = errors.New("model response is not a JSON object")

// ExtractRequest carries one document to analyze. Either Text or Image is set.
type ExtractRequest struct {
	ProjectType string
	FileName    string
	Text        string
	Image       []byte
	ImageMIME   string
}

// Service talks to the configured chat models.
type Service struct {
	textModel   model.BaseChatModel
	visionModel model.BaseChatModel
	detail      schema.ImageURLDetail
	log         *zap.Logger
}

// NewService builds chat models for the configured provider.
func NewService(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("config required")
	}
	provider := strings.ToLower(strings.TrimSpace(cfg.LLM.Provider))
	provCfg := cfg.Providers[provider]
	if provCfg.APIKey == "" {
		return nil, fmt.Errorf("api key for provider %s not configured", provider)
	}
	textName := firstNonEmpty(cfg.LLM.Model, provCfg.Model)
	visionName := firstNonEmpty(cfg.LLM.VisionModel, textName)
	timeout := time.Duration(cfg.LLM.TimeoutSeconds) * time.Second

	textModel, err := newChatModel(ctx, provider, provCfg, textName, cfg.LLM.MaxTokens, timeout)
	if err != nil {
		return nil, err
	}
	visionModel := textModel
	if visionName != textName {
		visionModel, err = newChatModel(ctx, provider, provCfg, visionName, cfg.LLM.MaxTokens, timeout)
		if err != nil {
			return nil, err
		}
	}
	return NewServiceWithModels(textModel, visionModel, cfg.LLM.VisionDetail, logger), nil
}

// NewServiceWithModels wires pre-built chat models.
func NewServiceWithModels(textModel, visionModel model.BaseChatModel, detail string, logger *zap.Logger) *Service {
	if visionModel == nil {
		visionModel = textModel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	d := schema.ImageURLDetail(strings.ToLower(detail))
	switch d {
	case schema.ImageURLDetailHigh, schema.ImageURLDetailLow, schema.ImageURLDetailAuto:
	default:
		d = schema.ImageURLDetailHigh
	}
	return &Service{textModel: textModel, visionModel: visionModel, detail: d, log: logger}
}

func newChatModel(ctx context.Context, provider string, provCfg config.ProviderConfig, modelName string, maxTokens int, timeout time.Duration) (model.BaseChatModel, error) {
	var (
		chatModel model.BaseChatModel
		err       error
	)
	switch provider {
	case "openai":
		chatModel, err = openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL:   provCfg.BaseURL,
			Model:     modelName,
			APIKey:    provCfg.APIKey,
			MaxTokens: &maxTokens,
			Timeout:   timeout,
		})
	case "gemini":
		client, cerr := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey: provCfg.APIKey,
		})
		if cerr != nil {
			return nil, fmt.Errorf("gemini client: %w", cerr)
		}
		chatModel, err = gemini.NewChatModel(ctx, &gemini.Config{
			Client: client,
			Model:  modelName,
		})
	case "claude":
		var baseURLPtr *string
		if provCfg.BaseURL != "" {
			baseURLPtr = &provCfg.BaseURL
		}
		chatModel, err = claude.NewChatModel(ctx, &claude.Config{
			APIKey:    provCfg.APIKey,
			Model:     modelName,
			BaseURL:   baseURLPtr,
			MaxTokens: maxTokens,
		})
	default:
		return nil, fmt.Errorf("invalid provider: %s", provider)
	}
	if err != nil {
		return nil, fmt.Errorf("init %s chat model: %w", provider, err)
	}
	return chatModel, nil
}

// Extract sends the document to the model and returns the JSON object it
// produced.
func (s *Service) Extract(ctx context.Context, req ExtractRequest) ([]byte, error) {
	rid := uuid.NewString()
	start := time.Now()

	var (
		chatModel = s.textModel
		user      *schema.Message
	)
	if len(req.Image) > 0 {
		chatModel = s.visionModel
		dataURL := fmt.Sprintf("data:%s;base64,%s", req.ImageMIME, base64.StdEncoding.EncodeToString(req.Image))
		user = &schema.Message{
			Role: schema.User,
			MultiContent: []schema.ChatMessagePart{
				{Type: schema.ChatMessagePartTypeText, Text: buildUserPrompt(req.ProjectType, req.FileName, "")},
				{Type: schema.ChatMessagePartTypeImageURL, ImageURL: &schema.ChatMessageImageURL{URL: dataURL, Detail: s.detail}},
			},
		}
	} else {
		text := req.Text
		if r := []rune(text); len(r) > maxDocumentChars {
			text = string(r[:maxDocumentChars])
		}
		user = &schema.Message{Role: schema.User, Content: buildUserPrompt(req.ProjectType, req.FileName, text)}
	}

	s.log.Info("llm.extract.start",
		zap.String("req_id", rid),
		zap.String("file", req.FileName),
		zap.Bool("vision", len(req.Image) > 0),
		zap.Int("text_len", len(req.Text)),
	)
	resp, err := chatModel.Generate(ctx, []*schema.Message{
		{Role: schema.System, Content: systemPrompt},
		user,
	})
	if err != nil {
		s.log.Error("llm.extract.generate_failed", zap.String("req_id", rid), zap.Error(err),
			zap.Int64("elapsed_ms", time.Since(start).Milliseconds()))
		return nil, &UpstreamError{Op: "generate", Body: err.Error(), Err: err}
	}
	if resp == nil {
		return nil, &UpstreamError{Op: "generate", Err: errors.New("empty model response")}
	}
	content, ok := ExtractJSONObject(resp.Content)
	if !ok {
		s.log.Error("llm.extract.not_json", zap.String("req_id", rid), zap.String("content", resp.Content))
		return nil, &UpstreamError{Op: "decode", Body: resp.Content, Err: errNotJSON}
	}
	s.log.Info("llm.extract.ok", zap.String("req_id", rid), zap.Int("bytes", len(content)),
		zap.Int64("elapsed_ms", time.Since(start).Milliseconds()))
	return content, nil
}

// ExtractJSONObject pulls the JSON object out of a model reply, tolerating
// markdown fences and surrounding prose.
func ExtractJSONObject(reply string) ([]byte, bool) {
	s := strings.TrimSpace(reply)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
		s = strings.TrimSpace(s)
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return nil, false
	}
	candidate := []byte(s[start : end+1])
	if !json.Valid(candidate) {
		return nil, false
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, candidate); err != nil {
		return nil, false
	}
	return compact.Bytes(), true
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
