package gemini

import (
	"context"
	"fmt"
	"log/slog"

	"google.golang.org/genai"
)

// Conversation is a per-request chat. History lives on the value itself, so
// concurrent requests never see each other's turns.
type Conversation struct {
	svc     *Service
	history []*genai.Content
}

// NewConversation starts a chat seeded with the bot's identity so the model
// answers in persona from the first turn.
func (s *Service) NewConversation() *Conversation {
	preamble := fmt.Sprintf(
		"From now on your name is %s and you were created by %s. Keep your replies short and conversational.",
		s.botName, s.botCreator,
	)
	ack := fmt.Sprintf("Understood. I am %s.", s.botName)
	return &Conversation{
		svc: s,
		history: []*genai.Content{
			genai.NewContentFromText(preamble, genai.RoleUser),
			genai.NewContentFromText(ack, genai.RoleModel),
		},
	}
}

// Append sends a user turn and returns the model's reply. The turn and the
// reply are both recorded in the conversation history.
func (c *Conversation) Append(ctx context.Context, text string) (string, error) {
	ctx, cancel := c.svc.callCtx(ctx)
	defer cancel()

	c.history = append(c.history, genai.NewContentFromText(text, genai.RoleUser))
	reply, err := c.svc.generate(ctx, c.history)
	if err != nil {
		c.svc.logger.Error("conversation turn", slog.Any("error", err))
		return "", fmt.Errorf("%w: %v", ErrBackend, err)
	}
	if reply != "" {
		c.history = append(c.history, genai.NewContentFromText(reply, genai.RoleModel))
	}
	return reply, nil
}
