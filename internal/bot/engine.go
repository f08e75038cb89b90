// Package bot glues the context store to the collaborators around it:
// speech-to-text in front, the model behind, and the outbound transport
// after. The collaborators stay behind narrow interfaces; everything here
// is sequenced per incoming message.
package bot

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/mkovalenko/chatrelay/internal/chat"
	"github.com/mkovalenko/chatrelay/internal/lang"
	"github.com/mkovalenko/chatrelay/internal/observability"
	"github.com/mkovalenko/chatrelay/internal/policy"
)

// Responder produces the assistant reply for a rendered prompt.
type Responder interface {
	Respond(ctx context.Context, prompt []chat.PromptMessage) (string, error)
}

// PromptSource supplies the system prompt injected ahead of the history.
type PromptSource interface {
	SystemPrompt(ctx context.Context, firstMessage bool) (string, error)
}

// Transcriber turns a downloaded voice note into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audioURL string) (string, error)
}

// Archiver persists one turn outside the expiring context window.
type Archiver interface {
	Record(ctx context.Context, userID, role, content string) error
}

// Reply is what the webhook layer sends back to the user. SpeechLocale
// is the synthesis voice matching the detected language, for callers
// that answer voice notes with voice.
type Reply struct {
	Text         string
	Language     lang.Language
	SpeechLocale string
	FirstMessage bool
}

// Engine drives one conversational turn end to end.
type Engine struct {
	store       *chat.Store
	archive     Archiver // nil when disabled
	responder   Responder
	prompts     PromptSource // nil when no external prompt document
	transcriber Transcriber  // nil when voice is unsupported
	metrics     *observability.Metrics
}

func NewEngine(store *chat.Store, arch Archiver, responder Responder, prompts PromptSource, transcriber Transcriber, metrics *observability.Metrics) *Engine {
	return &Engine{
		store:       store,
		archive:     arch,
		responder:   responder,
		prompts:     prompts,
		transcriber: transcriber,
		metrics:     metrics,
	}
}

// HandleText records the user message, asks the model with the bounded
// history as context, and records the reply. Storage trouble never
// surfaces here; a model failure does, so the webhook layer can send its
// fallback text.
func (e *Engine) HandleText(ctx context.Context, userID, text string) (Reply, error) {
	history, err := e.store.History(ctx, userID)
	if err != nil {
		return Reply{}, err
	}
	first := len(history) == 0

	if err := e.store.Append(ctx, userID, chat.RoleUser, text); err != nil {
		return Reply{}, err
	}
	e.archiveMessage(ctx, userID, chat.RoleUser, text)

	history, err = e.store.History(ctx, userID)
	if err != nil {
		return Reply{}, err
	}

	prompt := make([]chat.PromptMessage, 0, len(history)+1)
	if e.prompts != nil {
		system, err := e.prompts.SystemPrompt(ctx, first)
		if err != nil {
			logrus.WithError(err).Warn("prompt source unavailable, continuing without system prompt")
		} else if system != "" {
			prompt = append(prompt, chat.PromptMessage{Role: string(chat.RoleSystem), Content: system})
		}
	}
	prompt = append(prompt, chat.Prompt(history)...)

	answer, err := e.responder.Respond(ctx, prompt)
	if err != nil {
		return Reply{}, fmt.Errorf("model call: %w", err)
	}

	if err := e.store.Append(ctx, userID, chat.RoleAssistant, answer); err != nil {
		return Reply{}, err
	}
	e.archiveMessage(ctx, userID, chat.RoleAssistant, answer)

	language := lang.Detect(text)
	logrus.WithFields(logrus.Fields{
		"user":     userID,
		"language": language,
		"first":    first,
	}).Info("handled message")

	return Reply{
		Text:         answer,
		Language:     language,
		SpeechLocale: lang.SpeechLocale(language),
		FirstMessage: first,
	}, nil
}

// HandleVoice transcribes a voice note and runs the text path with the
// transcript. The "[voice message]" marker mirrors what users see quoted
// back in their history.
func (e *Engine) HandleVoice(ctx context.Context, userID, audioURL string) (Reply, error) {
	if e.transcriber == nil {
		return Reply{}, fmt.Errorf("voice messages unsupported: no transcriber configured")
	}
	transcript, err := e.transcriber.Transcribe(ctx, audioURL)
	if err != nil {
		return Reply{}, fmt.Errorf("transcribe voice note: %w", err)
	}
	return e.HandleText(ctx, userID, "[voice message]: "+transcript)
}

// archiveMessage copies one turn to the long-lived archive. Archive rows
// outlive the expiring context window, so high-risk PII is masked before
// the write; the context window keeps the raw text.
func (e *Engine) archiveMessage(ctx context.Context, userID string, role chat.Role, content string) {
	if e.archive == nil {
		return
	}
	masked, _ := policy.RedactPII(content)
	status := "ok"
	if err := e.archive.Record(ctx, userID, string(role), masked); err != nil {
		status = "error"
		logrus.WithError(err).WithField("user", userID).Warn("archive write failed")
	}
	if e.metrics != nil {
		e.metrics.ArchiveWrites.WithLabelValues(status).Inc()
	}
}
