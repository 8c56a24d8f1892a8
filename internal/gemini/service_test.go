package gemini

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"google.golang.org/genai"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	t.Cleanup(func() {
		generateForTest = nil
		uploadForTest = nil
		deleteForTest = nil
	})
	return &Service{
		logger:     slog.Default(),
		model:      "test-model",
		genCfg:     defaultGenConfig(),
		botName:    "Robo",
		botCreator: "Acme",
	}
}

func TestAnalyzeUploadsGeneratesAndDeletes(t *testing.T) {
	svc := newTestService(t)

	var deleted []string
	uploadForTest = func(ctx context.Context, path, mime string) (string, string, error) {
		if path != "/tmp/page.png" || mime != "image/png" {
			t.Fatalf("upload got path=%q mime=%q", path, mime)
		}
		return "files/uri-1", "files/name-1", nil
	}
	generateForTest = func(ctx context.Context, contents []*genai.Content) (string, error) {
		if len(contents) != 1 || len(contents[0].Parts) != 2 {
			t.Fatalf("unexpected contents shape: %+v", contents)
		}
		if contents[0].Parts[1].Text != "What's in this image?" {
			t.Fatalf("prompt part = %q", contents[0].Parts[1].Text)
		}
		return "a cat", nil
	}
	deleteForTest = func(ctx context.Context, name string) error {
		deleted = append(deleted, name)
		return nil
	}

	got, err := svc.Analyze(context.Background(), "What's in this image?", "/tmp/page.png", "image/png")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if got != "a cat" {
		t.Fatalf("Analyze = %q", got)
	}
	if len(deleted) != 1 || deleted[0] != "files/name-1" {
		t.Fatalf("uploaded file not deleted exactly once: %v", deleted)
	}
}

func TestAnalyzeDeletesFileWhenGenerationFails(t *testing.T) {
	svc := newTestService(t)

	var deleted int
	uploadForTest = func(ctx context.Context, path, mime string) (string, string, error) {
		return "files/uri-1", "files/name-1", nil
	}
	generateForTest = func(ctx context.Context, contents []*genai.Content) (string, error) {
		return "", errors.New("quota exceeded")
	}
	deleteForTest = func(ctx context.Context, name string) error {
		deleted++
		return nil
	}

	_, err := svc.Analyze(context.Background(), "p", "/tmp/f", "audio/ogg")
	if !errors.Is(err, ErrBackend) {
		t.Fatalf("Analyze error = %v, want ErrBackend", err)
	}
	if deleted != 1 {
		t.Fatalf("delete called %d times, want 1", deleted)
	}
}

func TestAnalyzeDeletesOnLiveContextAfterTimeout(t *testing.T) {
	svc := newTestService(t)
	svc.timeout = 20 * time.Millisecond

	uploadForTest = func(ctx context.Context, path, mime string) (string, string, error) {
		return "files/uri-1", "files/name-1", nil
	}
	generateForTest = func(ctx context.Context, contents []*genai.Content) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}
	deleteCtxErr := errors.New("delete never ran")
	deleteForTest = func(ctx context.Context, name string) error {
		deleteCtxErr = ctx.Err()
		return nil
	}

	_, err := svc.Analyze(context.Background(), "p", "/tmp/f", "image/png")
	if !errors.Is(err, ErrBackend) {
		t.Fatalf("Analyze error = %v, want ErrBackend", err)
	}
	if deleteCtxErr != nil {
		t.Fatalf("delete ran on a dead context: %v", deleteCtxErr)
	}
}

func TestAnalyzeUploadFailure(t *testing.T) {
	svc := newTestService(t)

	uploadForTest = func(ctx context.Context, path, mime string) (string, string, error) {
		return "", "", errors.New("network down")
	}
	generateForTest = func(ctx context.Context, contents []*genai.Content) (string, error) {
		t.Fatalf("generate should not run when upload fails")
		return "", nil
	}
	deleteForTest = func(ctx context.Context, name string) error {
		t.Fatalf("delete should not run when upload fails")
		return nil
	}

	if _, err := svc.Analyze(context.Background(), "p", "/tmp/f", "image/png"); !errors.Is(err, ErrBackend) {
		t.Fatalf("Analyze error = %v, want ErrBackend", err)
	}
}

func TestConversationSeedsIdentity(t *testing.T) {
	svc := newTestService(t)

	conv := svc.NewConversation()
	if len(conv.history) != 2 {
		t.Fatalf("seeded history length = %d, want 2", len(conv.history))
	}
	if conv.history[0].Role != genai.RoleUser || conv.history[1].Role != genai.RoleModel {
		t.Fatalf("seed roles = %s, %s", conv.history[0].Role, conv.history[1].Role)
	}
}

func TestConversationAppendRecordsTurns(t *testing.T) {
	svc := newTestService(t)

	generateForTest = func(ctx context.Context, contents []*genai.Content) (string, error) {
		last := contents[len(contents)-1]
		if last.Role != genai.RoleUser || last.Parts[0].Text != "Hello" {
			t.Fatalf("last turn = %+v", last)
		}
		return "**Hi!**", nil
	}

	conv := svc.NewConversation()
	reply, err := conv.Append(context.Background(), "Hello")
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if reply != "**Hi!**" {
		t.Fatalf("Append = %q", reply)
	}
	if len(conv.history) != 4 {
		t.Fatalf("history length = %d, want 4", len(conv.history))
	}
}

func TestConversationAppendEmptyReplyNotRecorded(t *testing.T) {
	svc := newTestService(t)

	generateForTest = func(ctx context.Context, contents []*genai.Content) (string, error) {
		return "", nil
	}

	conv := svc.NewConversation()
	reply, err := conv.Append(context.Background(), "Hello")
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if reply != "" {
		t.Fatalf("Append = %q, want empty", reply)
	}
	if len(conv.history) != 3 {
		t.Fatalf("history length = %d, want 3 (no empty model turn)", len(conv.history))
	}
}

func TestConversationAppendBackendFailure(t *testing.T) {
	svc := newTestService(t)

	generateForTest = func(ctx context.Context, contents []*genai.Content) (string, error) {
		return "", errors.New("rpc error")
	}

	conv := svc.NewConversation()
	if _, err := conv.Append(context.Background(), "Hello"); !errors.Is(err, ErrBackend) {
		t.Fatalf("Append error = %v, want ErrBackend", err)
	}
}
