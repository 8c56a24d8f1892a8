// Package dispatch routes parsed inbound messages to the right pipeline:
// text goes straight to a conversation, media is fetched, staged, analyzed,
// and answered. Every acquired resource is released before Handle returns,
// on success and failure paths alike.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/wabotai/wabot/internal/config"
	"github.com/wabotai/wabot/internal/document"
	"github.com/wabotai/wabot/internal/event"
	"github.com/wabotai/wabot/internal/reply"
	"github.com/wabotai/wabot/internal/staging"
	"github.com/wabotai/wabot/internal/whatsapp"
)

// Fixed user-facing notices. Backend details never leak into these.
const (
	noticeUnsupported    = "This message format is not supported. Send me text, an image, audio, or a PDF document."
	noticeUnsupportedDoc = "Only PDF documents are supported. Please send your document as a PDF."
	noticeBadDocument    = "I couldn't read that document. It may be corrupted."
	noticeFailure        = "Something went wrong while processing your message. Please try again."
)

// Prompts sent alongside uploaded media.
const (
	promptImage    = "What's in this image?"
	promptAudio    = "Transcribe this audio:"
	promptDocument = "Describe this document:"
)

// relayInstruction turns a raw analysis into a conversational turn.
const relayInstruction = "The user sent media. This is its analysis: %s\nRespond to the user based on it."

// MediaFetcher downloads inbound media by reference.
type MediaFetcher interface {
	FetchMedia(ctx context.Context, ref event.MediaRef) (whatsapp.MediaBlob, error)
}

// PageSource yields a document's pages in order, ending with io.EOF.
type PageSource interface {
	Next() (document.Page, error)
	Close() error
}

// Normalizer converts document bytes into per-page images.
type Normalizer interface {
	Pages(data []byte) (PageSource, error)
}

// Analyzer answers a prompt about a staged file.
type Analyzer interface {
	Analyze(ctx context.Context, prompt, path, mime string) (string, error)
}

// Chat is one request's running conversation.
type Chat interface {
	Append(ctx context.Context, text string) (string, error)
}

// ChatStarter opens a fresh conversation per request.
type ChatStarter interface {
	StartChat() Chat
}

// Sender delivers outbound text messages.
type Sender interface {
	SendText(ctx context.Context, to, body string) error
}

// Outcome summarizes how a webhook delivery was handled.
type Outcome struct {
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

const (
	StatusHandled = "handled"
	StatusIgnored = "ignored"
	StatusInvalid = "invalid"
	StatusFailed  = "failed"
)

type stage interface {
	WriteFile(name string, data []byte) (string, error)
	Close() error
}

var newStageForTest func() (stage, error)

func newStage() (stage, error) {
	if newStageForTest != nil {
		return newStageForTest()
	}
	return staging.NewScope()
}

// Dispatcher wires the message pipeline together.
type Dispatcher struct {
	logger    *slog.Logger
	fetcher   MediaFetcher
	docs      Normalizer
	analyzer  Analyzer
	chats     ChatStarter
	sender    Sender
	replyMode string
}

func NewDispatcher(log *slog.Logger, fetcher MediaFetcher, docs Normalizer, analyzer Analyzer, chats ChatStarter, sender Sender, bot config.BotConfig) *Dispatcher {
	return &Dispatcher{
		logger:    log.With(slog.String("service", "dispatch")),
		fetcher:   fetcher,
		docs:      docs,
		analyzer:  analyzer,
		chats:     chats,
		sender:    sender,
		replyMode: bot.ReplyMode,
	}
}

// Handle processes one webhook delivery body. It never panics outward and
// never returns an error: every failure becomes an Outcome plus, when a
// sender is known, a fixed notice to that sender.
func (d *Dispatcher) Handle(ctx context.Context, payload []byte) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("dispatch panic", slog.Any("panic", r))
			out = Outcome{Status: StatusFailed, Detail: "internal error"}
		}
	}()

	msg, err := event.Parse(payload)
	if err != nil {
		if errors.Is(err, event.ErrNoMessages) {
			return Outcome{Status: StatusIgnored, Detail: "no messages in delivery"}
		}
		d.logger.Warn("malformed delivery", slog.Any("error", err))
		return Outcome{Status: StatusInvalid, Detail: "malformed payload"}
	}

	d.logger.Info("inbound message",
		slog.String("type", string(msg.Type)),
		slog.String("from", msg.From),
		slog.String("id", msg.MessageID))

	switch msg.Type {
	case event.TypeText:
		return d.handleText(ctx, msg)
	case event.TypeImage:
		return d.handleMedia(ctx, msg, promptImage)
	case event.TypeAudio:
		return d.handleMedia(ctx, msg, promptAudio)
	case event.TypeDocument:
		return d.handleDocument(ctx, msg)
	default:
		return d.notify(ctx, msg.From, noticeUnsupported, Outcome{Status: StatusHandled, Detail: "unsupported type"})
	}
}

func (d *Dispatcher) handleText(ctx context.Context, msg event.Message) Outcome {
	chat := d.chats.StartChat()
	answer, err := chat.Append(ctx, msg.Body)
	if err != nil {
		d.logger.Error("conversation failed", slog.Any("error", err))
		return d.notify(ctx, msg.From, noticeFailure, Outcome{Status: StatusFailed, Detail: "backend failure"})
	}
	return d.reply(ctx, msg.From, answer)
}

// relay runs one analysis through the conversation and returns the model's
// turn for the user.
func (d *Dispatcher) relay(ctx context.Context, chat Chat, analysis string) (string, error) {
	return chat.Append(ctx, fmt.Sprintf(relayInstruction, analysis))
}

func (d *Dispatcher) handleMedia(ctx context.Context, msg event.Message, prompt string) Outcome {
	blob, err := d.fetcher.FetchMedia(ctx, msg.Media)
	if err != nil {
		d.logger.Error("media fetch failed", slog.Any("error", err))
		return d.notify(ctx, msg.From, noticeFailure, Outcome{Status: StatusFailed, Detail: "media fetch"})
	}

	scope, err := newStage()
	if err != nil {
		d.logger.Error("staging failed", slog.Any("error", err))
		return d.notify(ctx, msg.From, noticeFailure, Outcome{Status: StatusFailed, Detail: "staging"})
	}
	defer scope.Close()

	path, err := scope.WriteFile("media"+blob.Extension(), blob.Data)
	if err != nil {
		d.logger.Error("staging failed", slog.Any("error", err))
		return d.notify(ctx, msg.From, noticeFailure, Outcome{Status: StatusFailed, Detail: "staging"})
	}

	analysis, err := d.analyzer.Analyze(ctx, prompt, path, blob.Mime())
	if err != nil {
		d.logger.Error("analysis failed", slog.Any("error", err))
		return d.notify(ctx, msg.From, noticeFailure, Outcome{Status: StatusFailed, Detail: "backend failure"})
	}
	answer, err := d.relay(ctx, d.chats.StartChat(), analysis)
	if err != nil {
		d.logger.Error("conversation failed", slog.Any("error", err))
		return d.notify(ctx, msg.From, noticeFailure, Outcome{Status: StatusFailed, Detail: "backend failure"})
	}
	return d.reply(ctx, msg.From, answer)
}

func (d *Dispatcher) handleDocument(ctx context.Context, msg event.Message) Outcome {
	if !strings.Contains(msg.Media.MimeType, "pdf") {
		return d.notify(ctx, msg.From, noticeUnsupportedDoc, Outcome{Status: StatusHandled, Detail: "non-pdf document"})
	}

	blob, err := d.fetcher.FetchMedia(ctx, msg.Media)
	if err != nil {
		d.logger.Error("media fetch failed", slog.Any("error", err))
		return d.notify(ctx, msg.From, noticeFailure, Outcome{Status: StatusFailed, Detail: "media fetch"})
	}

	pages, err := d.docs.Pages(blob.Data)
	if err != nil {
		d.logger.Error("document conversion failed", slog.Any("error", err))
		return d.notify(ctx, msg.From, noticeBadDocument, Outcome{Status: StatusFailed, Detail: "conversion"})
	}
	defer pages.Close()

	scope, err := newStage()
	if err != nil {
		d.logger.Error("staging failed", slog.Any("error", err))
		return d.notify(ctx, msg.From, noticeFailure, Outcome{Status: StatusFailed, Detail: "staging"})
	}
	defer scope.Close()

	chat := d.chats.StartChat()
	var answers []string
	for {
		page, err := pages.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			d.logger.Error("page render failed", slog.Any("error", err))
			return d.notify(ctx, msg.From, noticeBadDocument, Outcome{Status: StatusFailed, Detail: "conversion"})
		}

		path, err := scope.WriteFile(fmt.Sprintf("page-%d.png", page.Index+1), page.Data)
		if err != nil {
			d.logger.Error("staging failed", slog.Any("error", err))
			return d.notify(ctx, msg.From, noticeFailure, Outcome{Status: StatusFailed, Detail: "staging"})
		}
		analysis, err := d.analyzer.Analyze(ctx, promptDocument, path, page.MimeType)
		if err != nil {
			d.logger.Error("analysis failed", slog.Any("error", err))
			return d.notify(ctx, msg.From, noticeFailure, Outcome{Status: StatusFailed, Detail: "backend failure"})
		}
		answer, err := d.relay(ctx, chat, analysis)
		if err != nil {
			d.logger.Error("conversation failed", slog.Any("error", err))
			return d.notify(ctx, msg.From, noticeFailure, Outcome{Status: StatusFailed, Detail: "backend failure"})
		}

		if d.replyMode == config.ReplyAggregate {
			answers = append(answers, answer)
			continue
		}
		if out := d.reply(ctx, msg.From, answer); out.Status != StatusHandled {
			return out
		}
	}

	if d.replyMode == config.ReplyAggregate {
		return d.reply(ctx, msg.From, strings.Join(answers, "\n\n"))
	}
	return Outcome{Status: StatusHandled}
}

func (d *Dispatcher) reply(ctx context.Context, to, raw string) Outcome {
	if err := d.sender.SendText(ctx, to, reply.Format(raw)); err != nil {
		d.logger.Error("send reply failed", slog.Any("error", err))
		return Outcome{Status: StatusFailed, Detail: "send"}
	}
	return Outcome{Status: StatusHandled}
}

// notify sends a fixed notice and returns the given outcome. A failed notice
// send is logged but does not change the outcome.
func (d *Dispatcher) notify(ctx context.Context, to, notice string, out Outcome) Outcome {
	if err := d.sender.SendText(ctx, to, notice); err != nil {
		d.logger.Error("send notice failed", slog.Any("error", err))
	}
	return out
}
