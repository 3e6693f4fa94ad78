package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/agent-api/core/pkg/agent"
	"github.com/agent-api/core/types"
	"github.com/agent-api/ollama"

	"github.com/jeswintom22/ClassSight/internal/config"
	"github.com/jeswintom22/ClassSight/internal/domain"
)

const explainSystemPrompt = "You are a patient teaching assistant for a live classroom. " +
	"Students point a camera at the board and you explain what is written on it. " +
	"Explain math step by step, explain code line by line, and keep general text " +
	"explanations short and clear. Answer in the language of the detected text."

// AIService bọc LLM chạy qua Ollama thành explainer adapter cho pipeline:
// văn bản OCR vào, giải thích mang tính sư phạm ra. Lỗi mạng/timeout của
// model là lỗi độc lập của stage này, không ảnh hưởng kết quả OCR đã gửi.
type AIService struct {
	agent         *agent.DefaultAgent
	modelName     string
	maxInputChars int
}

func NewAIService(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*AIService, error) {
	opts := &ollama.ProviderOpts{
		Logger:  logger,
		BaseURL: cfg.OllamaBaseURL,
		Port:    cfg.OllamaPort,
	}
	provider := ollama.NewProvider(opts)

	model := &types.Model{
		ID: cfg.AIModel,
	}
	provider.UseModel(ctx, model)

	agentConf := &agent.NewAgentConfig{
		Provider:     provider,
		Logger:       logger,
		SystemPrompt: explainSystemPrompt,
	}

	return &AIService{
		agent:         agent.NewAgent(agentConf),
		modelName:     cfg.AIModel,
		maxInputChars: cfg.AIMaxInputChars,
	}, nil
}

// ExplainText sinh giải thích cho văn bản OCR. Input vượt trần độ dài bị
// từ chối thẳng — adapter không được tự cắt bớt mà không báo.
func (s *AIService) ExplainText(ctx context.Context, text string) (*domain.Explanation, error) {
	if len(text) > s.maxInputChars {
		return nil, fmt.Errorf("văn bản dài %d ký tự, vượt giới hạn %d", len(text), s.maxInputChars)
	}

	response := s.agent.Run(ctx, agent.WithInput(buildEducationalPrompt(text)))
	if response.Err != nil {
		return nil, fmt.Errorf("lỗi gọi model %s: %w", s.modelName, response.Err)
	}
	if len(response.Messages) == 0 {
		return nil, fmt.Errorf("model %s không trả về message nào", s.modelName)
	}

	// message cuối là câu trả lời của model (không phải prompt)
	content := response.Messages[len(response.Messages)-1].Content

	return &domain.Explanation{
		Explanation: content,
		ModelName:   s.modelName,
	}, nil
}

func buildEducationalPrompt(text string) string {
	return fmt.Sprintf(
		"The following text was detected on a classroom board. Explain it so a student can understand:\n\n%s",
		text,
	)
}
