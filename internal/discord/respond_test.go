package discord

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/mlukaszek/steel-llama/internal/ollama"
	"github.com/mlukaszek/steel-llama/internal/session"
)

func TestRespondMissingPrompt(t *testing.T) {
	fm := &fakeMessenger{}
	b, _ := newTestBot(t, fm, &fakeBackend{})

	b.dispatch(context.Background(), userMessage("1", "7", "alice", "$llm"))

	if got := fm.lastSend(t).Content; got != "Missing prompt!" {
		t.Fatalf("reply = %q", got)
	}
	if len(fm.edits) != 0 {
		t.Fatalf("unexpected edits: %v", fm.edits)
	}
}

func TestRespondStreamsIntoPlaceholderAndPersists(t *testing.T) {
	fm := &fakeMessenger{}
	fb := &fakeBackend{chunks: []ollama.Chunk{
		{Text: "<think>pondering</think> Hello!"},
		{Done: true, PromptTokens: 5, EvalTokens: 2, TotalDuration: 3 * time.Second},
	}}
	b, store := newTestBot(t, fm, fb)
	ctx := context.Background()

	b.dispatch(ctx, userMessage("1", "7", "alice", "$llm-new-session work"))
	b.dispatch(ctx, userMessage("2", "7", "alice", "$llm hi"))

	placeholder := fm.sends[len(fm.sends)-1]
	if placeholder.Content != "*Starting up...*" {
		t.Fatalf("placeholder = %q", placeholder.Content)
	}
	if fm.edits[0].Content != "*Reading chat history...*" || fm.edits[1].Content != "*Processing messages...*" {
		t.Fatalf("progress sequence wrong: %v", fm.edits[:2])
	}
	last := fm.lastEdit(t)
	if last.ID != placeholder.ID {
		t.Fatalf("final edit targeted %s, placeholder is %s", last.ID, placeholder.ID)
	}
	if last.Content != "*pondering*\n\nHello!" {
		t.Fatalf("final render = %q", last.Content)
	}

	if fb.chatCalls != 1 || fb.genCalls != 0 {
		t.Fatalf("backend calls: chat %d, generate %d", fb.chatCalls, fb.genCalls)
	}
	if fb.chatModel != "qwen3-8b:latest" {
		t.Errorf("model sent = %q", fb.chatModel)
	}
	if fb.chatMsgs[0].Role != "system" || fb.chatMsgs[0].Content != "@System:\nBe helpful." {
		t.Errorf("system turn = %+v", fb.chatMsgs[0])
	}
	if fb.chatMsgs[1].Role != "user" || fb.chatMsgs[1].Content != "@alice:\n$llm hi" {
		t.Errorf("user turn = %+v", fb.chatMsgs[1])
	}

	sess, err := store.GetSession(ctx, 7, "work")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if len(sess.Messages) != 3 {
		t.Fatalf("expected system+user+assistant, got %d messages", len(sess.Messages))
	}
	final := sess.Messages[2]
	if final.Role != session.RoleAssistant || final.Content != "*pondering*\n\nHello!" {
		t.Errorf("assistant message = %+v", final)
	}
	if final.SenderNickname != "SteelLlama" {
		t.Errorf("assistant nickname = %q", final.SenderNickname)
	}

	rows, err := store.UsageSummary(ctx, time.Time{})
	if err != nil {
		t.Fatalf("usage summary: %v", err)
	}
	if len(rows) != 1 || rows[0].PromptTokens != 5 || rows[0].EvalTokens != 2 {
		t.Fatalf("usage rows = %+v", rows)
	}
}

func TestRespondRawModeUsesChatTemplate(t *testing.T) {
	fm := &fakeMessenger{}
	fb := &fakeBackend{chunks: []ollama.Chunk{
		{Text: "Raw reply."},
		{Done: true, PromptTokens: 4, EvalTokens: 2},
	}}
	cfg := testConfig()
	cfg.Models.Models[0].Config.ChatTemplate = "chatml"
	b, store := newTestBotWithConfig(t, cfg, fm, fb)
	ctx := context.Background()

	b.dispatch(ctx, userMessage("1", "7", "alice", "$llm-new-session work"))
	b.dispatch(ctx, userMessage("2", "7", "alice", "$llm hi"))

	if fb.genCalls != 1 || fb.chatCalls != 0 {
		t.Fatalf("backend calls: generate %d, chat %d", fb.genCalls, fb.chatCalls)
	}
	if fb.genModel != "qwen3-8b:latest" {
		t.Errorf("model sent = %q", fb.genModel)
	}
	want := "<|im_start|>system\n@System:\nBe helpful.<|im_end|>\n" +
		"<|im_start|>user\n@alice:\n$llm hi<|im_end|>\n" +
		"<|im_start|>assistant\n"
	if fb.genPrompt != want {
		t.Errorf("prompt =\n%q\nwant\n%q", fb.genPrompt, want)
	}

	if got := fm.lastEdit(t).Content; got != "Raw reply." {
		t.Fatalf("final render = %q", got)
	}
	sess, err := store.GetSession(ctx, 7, "work")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if len(sess.Messages) != 3 || sess.Messages[2].Content != "Raw reply." {
		t.Fatalf("assistant turn not persisted: %+v", sess.Messages)
	}
}

func TestRespondTemporarySessionFromChannelHistory(t *testing.T) {
	fm := &fakeMessenger{}
	fb := &fakeBackend{chunks: []ollama.Chunk{
		{Text: "All quiet."},
		{Done: true, PromptTokens: 9, EvalTokens: 3},
	}}
	b, store := newTestBot(t, fm, fb)
	ctx := context.Background()

	base := time.Now()
	trigger := userMessage("1010", "7", "alice", "$llm what's up?")
	fm.history = []*discordgo.Message{
		trigger,
		{
			ID: "1005", ChannelID: "chan1", Content: "All good.",
			Timestamp: base.Add(-time.Minute),
			Author:    &discordgo.User{ID: "500", Username: "SteelLlama", Bot: true},
		},
		{
			ID: "1002", ChannelID: "chan1", Content: "how are you?",
			Timestamp: base.Add(-2 * time.Minute),
			Author:    &discordgo.User{ID: "8", Username: "bob"},
		},
	}

	b.dispatch(ctx, trigger)

	if fm.histLimit != 6 {
		t.Errorf("history fetch limit = %d, want max_messages_for_context+1", fm.histLimit)
	}

	want := []struct{ role, content string }{
		{"system", "@System:\nBe helpful."},
		{"user", "@bob:\nhow are you?"},
		{"assistant", "@SteelLlama:\nAll good."},
		{"user", "@alice:\n$llm what's up?"},
	}
	if len(fb.chatMsgs) != len(want) {
		t.Fatalf("backend got %d turns: %+v", len(fb.chatMsgs), fb.chatMsgs)
	}
	for i, w := range want {
		if fb.chatMsgs[i].Role != w.role || fb.chatMsgs[i].Content != w.content {
			t.Errorf("turn %d = %+v, want %+v", i, fb.chatMsgs[i], w)
		}
	}

	// Nothing reaches the session tables, only the usage ledger.
	for _, owner := range []int64{7, 99} {
		infos, err := store.ListSessions(ctx, owner)
		if err != nil {
			t.Fatalf("list sessions: %v", err)
		}
		if len(infos) != 0 {
			t.Errorf("owner %d has stored sessions: %+v", owner, infos)
		}
	}
	rows, err := store.UsageSummary(ctx, time.Time{})
	if err != nil || len(rows) != 1 {
		t.Fatalf("usage rows = %+v, %v", rows, err)
	}
}

func TestRespondModelUnavailablePingsAdmin(t *testing.T) {
	fm := &fakeMessenger{}
	fb := &fakeBackend{}
	b, store := newTestBot(t, fm, fb)
	ctx := context.Background()

	b.dispatch(ctx, userMessage("1", "7", "alice", "$llm-new-session work"))
	if err := store.UpdateModel(ctx, 7, "work", "llama-xx:latest"); err != nil {
		t.Fatalf("update model: %v", err)
	}

	b.dispatch(ctx, userMessage("2", "7", "alice", "$llm hello"))

	last := fm.lastEdit(t)
	if !strings.Contains(last.Content, "<@99>") {
		t.Fatalf("admin ping missing: %q", last.Content)
	}
	if fb.chatCalls != 0 || fb.genCalls != 0 {
		t.Fatalf("backend was called: chat %d, generate %d", fb.chatCalls, fb.genCalls)
	}

	sess, err := store.GetSession(ctx, 7, "work")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if len(sess.Messages) != 2 || sess.Messages[1].Role != session.RoleUser {
		t.Fatalf("expected system+user only, got %+v", sess.Messages)
	}
}

func TestRespondBackendErrorRendersIntoPlaceholder(t *testing.T) {
	fm := &fakeMessenger{}
	fb := &fakeBackend{
		chunks: []ollama.Chunk{{Text: "par"}},
		err:    &ollama.BackendError{Detail: "boom"},
	}
	b, store := newTestBot(t, fm, fb)
	ctx := context.Background()

	b.dispatch(ctx, userMessage("1", "7", "alice", "$llm-new-session work"))
	b.dispatch(ctx, userMessage("2", "7", "alice", "$llm hi"))

	if got := fm.lastEdit(t).Content; got != "Oops, an unknown error has happened: boom" {
		t.Fatalf("error render = %q", got)
	}

	sess, err := store.GetSession(ctx, 7, "work")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if len(sess.Messages) != 2 {
		t.Fatalf("partial response was persisted: %+v", sess.Messages)
	}
	rows, err := store.UsageSummary(ctx, time.Time{})
	if err != nil {
		t.Fatalf("usage summary: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("usage recorded for failed response: %+v", rows)
	}
}

func TestRespondBackendUnavailable(t *testing.T) {
	fm := &fakeMessenger{}
	fb := &fakeBackend{err: ollama.ErrUnavailable}
	b, _ := newTestBot(t, fm, fb)
	ctx := context.Background()

	b.dispatch(ctx, userMessage("1", "7", "alice", "$llm-new-session work"))
	b.dispatch(ctx, userMessage("2", "7", "alice", "$llm hi"))

	if got := fm.lastEdit(t).Content; got != unavailableReply {
		t.Fatalf("render = %q, want %q", got, unavailableReply)
	}
}
