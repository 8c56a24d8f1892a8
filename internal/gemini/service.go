// Package gemini wraps the Gemini API behind two operations: one-shot file
// analysis and a request-scoped text conversation.
package gemini

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/wabotai/wabot/internal/config"
)

// Service holds a configured Gemini client.
type Service struct {
	logger  *slog.Logger
	client  *genai.Client
	model   string
	genCfg  *genai.GenerateContentConfig
	timeout time.Duration

	botName    string
	botCreator string
}

var (
	generateForTest func(ctx context.Context, contents []*genai.Content) (string, error)
	uploadForTest   func(ctx context.Context, path, mime string) (uri, name string, err error)
	deleteForTest   func(ctx context.Context, name string) error
)

// NewService builds the Gemini client and generation settings.
func NewService(ctx context.Context, log *slog.Logger, cfg config.GeminiConfig, bot config.BotConfig) (*Service, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Service{
		logger:     log.With(slog.String("service", "gemini")),
		client:     client,
		model:      cfg.Model,
		genCfg:     defaultGenConfig(),
		timeout:    time.Duration(cfg.TimeoutSeconds) * time.Second,
		botName:    bot.Name,
		botCreator: bot.Creator,
	}, nil
}

// callCtx bounds one model call. A zero timeout leaves the context as is.
func (s *Service) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

func defaultGenConfig() *genai.GenerateContentConfig {
	threshold := genai.HarmBlockThresholdBlockMediumAndAbove
	return &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(1)),
		TopP:            genai.Ptr(float32(0.95)),
		MaxOutputTokens: 8192,
		SafetySettings: []*genai.SafetySetting{
			{Category: genai.HarmCategoryHarassment, Threshold: threshold},
			{Category: genai.HarmCategoryHateSpeech, Threshold: threshold},
			{Category: genai.HarmCategorySexuallyExplicit, Threshold: threshold},
			{Category: genai.HarmCategoryDangerousContent, Threshold: threshold},
		},
	}
}

func (s *Service) generate(ctx context.Context, contents []*genai.Content) (string, error) {
	if generateForTest != nil {
		return generateForTest(ctx, contents)
	}
	resp, err := s.client.Models.GenerateContent(ctx, s.model, contents, s.genCfg)
	if err != nil {
		return "", err
	}
	return extractText(resp), nil
}

func (s *Service) upload(ctx context.Context, path, mime string) (string, string, error) {
	if uploadForTest != nil {
		return uploadForTest(ctx, path, mime)
	}
	f, err := s.client.Files.UploadFromPath(ctx, path, &genai.UploadFileConfig{MIMEType: mime})
	if err != nil {
		return "", "", err
	}
	return f.URI, f.Name, nil
}

func (s *Service) deleteFile(ctx context.Context, name string) error {
	if deleteForTest != nil {
		return deleteForTest(ctx, name)
	}
	_, err := s.client.Files.Delete(ctx, name, nil)
	return err
}

// Analyze uploads the staged file, asks the model about it with the given
// prompt, and removes the uploaded copy before returning. The remote file is
// deleted on every path, including generation failures.
func (s *Service) Analyze(ctx context.Context, prompt, path, mime string) (string, error) {
	ctx, cancel := s.callCtx(ctx)
	defer cancel()

	uri, name, err := s.upload(ctx, path, mime)
	if err != nil {
		s.logger.Error("upload file", slog.Any("error", err))
		return "", fmt.Errorf("%w: upload: %v", ErrBackend, err)
	}
	defer func() {
		// The call context may already be past its deadline here; the
		// remote file still has to go.
		dctx, dcancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer dcancel()
		if err := s.deleteFile(dctx, name); err != nil {
			s.logger.Warn("delete uploaded file", slog.String("name", name), slog.Any("error", err))
		}
	}()

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromURI(uri, mime),
			genai.NewPartFromText(prompt),
		}, genai.RoleUser),
	}
	text, err := s.generate(ctx, contents)
	if err != nil {
		s.logger.Error("generate content", slog.Any("error", err))
		return "", fmt.Errorf("%w: generate: %v", ErrBackend, err)
	}
	return text, nil
}

func extractText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil {
			b.WriteString(part.Text)
		}
	}
	return b.String()
}
