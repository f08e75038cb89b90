package bot

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkovalenko/chatrelay/internal/chat"
	"github.com/mkovalenko/chatrelay/internal/lang"
	"github.com/mkovalenko/chatrelay/internal/observability"
)

type scriptedResponder struct {
	reply   string
	err     error
	prompts [][]chat.PromptMessage
}

func (r *scriptedResponder) Respond(_ context.Context, prompt []chat.PromptMessage) (string, error) {
	r.prompts = append(r.prompts, prompt)
	if r.err != nil {
		return "", r.err
	}
	return r.reply, nil
}

type staticPrompts struct{ text string }

func (p staticPrompts) SystemPrompt(_ context.Context, _ bool) (string, error) {
	return p.text, nil
}

type scriptedTranscriber struct{ transcript string }

func (t scriptedTranscriber) Transcribe(_ context.Context, _ string) (string, error) {
	return t.transcript, nil
}

type recordingArchiver struct {
	contents []string
	err      error
}

func (a *recordingArchiver) Record(_ context.Context, _, _, content string) error {
	if a.err != nil {
		return a.err
	}
	a.contents = append(a.contents, content)
	return nil
}

// archiveMetrics builds unregistered instruments so tests can read the
// archive write counter without touching the default registry.
func archiveMetrics() *observability.Metrics {
	return &observability.Metrics{
		ArchiveWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "archive_writes_total",
		}, []string{"status"}),
	}
}

func TestHandleTextRecordsBothTurns(t *testing.T) {
	store := chat.NewVolatileStore(0, nil)
	responder := &scriptedResponder{reply: "of course, happy to help"}
	engine := NewEngine(store, nil, responder, nil, nil, nil)
	ctx := context.Background()

	reply, err := engine.HandleText(ctx, "u1", "can you help me?")
	require.NoError(t, err)
	assert.Equal(t, "of course, happy to help", reply.Text)
	assert.True(t, reply.FirstMessage)

	history, err := store.History(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, chat.RoleUser, history[0].Role)
	assert.Equal(t, chat.RoleAssistant, history[1].Role)

	reply, err = engine.HandleText(ctx, "u1", "thanks")
	require.NoError(t, err)
	assert.False(t, reply.FirstMessage)
}

func TestHandleTextInjectsHistoryAndSystemPrompt(t *testing.T) {
	store := chat.NewVolatileStore(0, nil)
	responder := &scriptedResponder{reply: "reply"}
	engine := NewEngine(store, nil, responder, staticPrompts{text: "you are concise"}, nil, nil)
	ctx := context.Background()

	_, err := engine.HandleText(ctx, "u1", "first")
	require.NoError(t, err)
	_, err = engine.HandleText(ctx, "u1", "second")
	require.NoError(t, err)

	require.Len(t, responder.prompts, 2)
	second := responder.prompts[1]
	// system prompt, then user/assistant/user from the stored history
	require.Len(t, second, 4)
	assert.Equal(t, "system", second[0].Role)
	assert.Equal(t, "you are concise", second[0].Content)
	assert.Equal(t, "first", second[1].Content)
	assert.Equal(t, "reply", second[2].Content)
	assert.Equal(t, "second", second[3].Content)
}

func TestHandleTextModelFailureKeepsUserMessage(t *testing.T) {
	store := chat.NewVolatileStore(0, nil)
	responder := &scriptedResponder{err: errors.New("upstream 500")}
	engine := NewEngine(store, nil, responder, nil, nil, nil)
	ctx := context.Background()

	_, err := engine.HandleText(ctx, "u1", "hello?")
	require.Error(t, err)

	history, err := store.History(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, chat.RoleUser, history[0].Role)
}

func TestHandleTextDetectsLanguage(t *testing.T) {
	store := chat.NewVolatileStore(0, nil)
	engine := NewEngine(store, nil, &scriptedResponder{reply: "ok"}, nil, nil, nil)

	reply, err := engine.HandleText(context.Background(), "u1", "Сәлем, қалайсыз?")
	require.NoError(t, err)
	assert.Equal(t, lang.Kazakh, reply.Language)
	assert.Equal(t, "kk-KZ", reply.SpeechLocale)
}

func TestHandleTextArchivesMaskedTurns(t *testing.T) {
	store := chat.NewVolatileStore(0, nil)
	arch := &recordingArchiver{}
	metrics := archiveMetrics()
	engine := NewEngine(store, arch, &scriptedResponder{reply: "noted"}, nil, nil, metrics)

	_, err := engine.HandleText(context.Background(), "u1", "мой номер +7 701 123 45 67")
	require.NoError(t, err)

	require.Len(t, arch.contents, 2)
	assert.Equal(t, "мой номер [REDACTED_PHONE]", arch.contents[0])
	assert.Equal(t, "noted", arch.contents[1])

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.ArchiveWrites.WithLabelValues("ok")))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.ArchiveWrites.WithLabelValues("error")))
}

func TestHandleTextCountsArchiveFailures(t *testing.T) {
	store := chat.NewVolatileStore(0, nil)
	arch := &recordingArchiver{err: errors.New("pool closed")}
	metrics := archiveMetrics()
	engine := NewEngine(store, arch, &scriptedResponder{reply: "ok"}, nil, nil, metrics)

	reply, err := engine.HandleText(context.Background(), "u1", "hello")
	require.NoError(t, err)
	assert.Equal(t, "ok", reply.Text)

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.ArchiveWrites.WithLabelValues("error")))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.ArchiveWrites.WithLabelValues("ok")))
}

func TestHandleVoicePrefixesTranscript(t *testing.T) {
	store := chat.NewVolatileStore(0, nil)
	engine := NewEngine(store, nil, &scriptedResponder{reply: "ok"}, nil, scriptedTranscriber{transcript: "call me back"}, nil)
	ctx := context.Background()

	_, err := engine.HandleVoice(ctx, "u1", "https://example.test/note.ogg")
	require.NoError(t, err)

	history, err := store.History(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "[voice message]: call me back", history[0].Content)
}

func TestHandleVoiceWithoutTranscriber(t *testing.T) {
	engine := NewEngine(chat.NewVolatileStore(0, nil), nil, &scriptedResponder{reply: "ok"}, nil, nil, nil)
	_, err := engine.HandleVoice(context.Background(), "u1", "https://example.test/note.ogg")
	require.Error(t, err)
}
