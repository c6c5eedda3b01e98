// ABOUTME: Tests for the generation orchestrator
// ABOUTME: Runs the real renderers with fallback content and gradient images end to end

package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/deckbot/internal/content"
	"github.com/2389/deckbot/internal/images"
	"github.com/2389/deckbot/internal/messages"
	"github.com/2389/deckbot/internal/notify"
	"github.com/2389/deckbot/internal/render"
	"github.com/2389/deckbot/internal/store"
)

type failingSearcher struct{}

func (failingSearcher) Name() string { return "unreachable" }

func (failingSearcher) Search(ctx context.Context, query string) (*images.Photo, error) {
	return nil, errors.New("dial tcp: connection refused")
}

type failingAssembler struct{ err error }

func (f failingAssembler) Render(render.Format, *content.SlideContent, map[int]images.Result, render.Metadata, string) (*render.Output, error) {
	return nil, f.err
}

type panickingContent struct{}

func (panickingContent) Generate(ctx context.Context, req content.Request) *content.SlideContent {
	panic("boom")
}

type genRecorder struct {
	statuses []string
}

func (g *genRecorder) InboundEvent(string, string)                 {}
func (g *genRecorder) DialogueStep(string)                         {}
func (g *genRecorder) ContentResult(string, string, time.Duration) {}
func (g *genRecorder) ImageResult(string, string)                  {}
func (g *genRecorder) JobAttempt(string)                           {}
func (g *genRecorder) Generation(format, status string, d time.Duration) {
	g.statuses = append(g.statuses, format+":"+status)
}

type testEnv struct {
	store    *store.MockStore
	notifier *notify.Recorder
	metrics  *genRecorder
	outDir   string
	deps     Deps
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	imgs, err := images.NewProvider(failingSearcher{}, images.Options{Dir: filepath.Join(dir, "images")}, nil)
	require.NoError(t, err)

	env := &testEnv{
		store:    store.NewMockStore(),
		notifier: notify.NewRecorder(),
		metrics:  &genRecorder{},
		outDir:   filepath.Join(dir, "out"),
	}
	require.NoError(t, os.MkdirAll(env.outDir, 0o755))
	env.deps = Deps{
		Requests:  env.store,
		Content:   content.NewProvider(nil, content.Options{}, nil),
		Images:    imgs,
		Assembler: render.NewAssembler(render.Options{Labels: render.LabelsFromCatalog(messages.Default())}, nil),
		Notifier:  env.notifier,
		Catalog:   messages.Default(),
		Metrics:   env.metrics,
		OutputDir: env.outDir,
	}
	return env
}

func (e *testEnv) createRequest(t *testing.T, id, format string) {
	t.Helper()
	require.NoError(t, e.store.CreateRequest(context.Background(), &store.GenerationRequest{
		ID:             id,
		UserID:         "telegram:7",
		ConversationID: "telegram:7",
		University:     "TATU",
		Direction:      "Dasturiy injiniring",
		GroupName:      "211-21",
		InfoPlacement:  "first",
		Topic:          "Python dasturlash",
		PagesCount:     5,
		Format:         format,
	}))
}

func (e *testEnv) outputs(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(e.outDir)
	require.NoError(t, err)
	var names []string
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	return names
}

func kinds(sent []notify.Sent) []string {
	var out []string
	for _, s := range sent {
		out = append(out, s.Kind)
	}
	return out
}

func TestRun_BackendsUnreachableStillDelivers(t *testing.T) {
	for _, format := range []string{"pptx", "docx", "pdf"} {
		t.Run(format, func(t *testing.T) {
			env := newTestEnv(t)
			env.createRequest(t, "req-12345678-abcd", format)
			o := New(env.deps, nil)

			require.NoError(t, o.Run(context.Background(), "req-12345678-abcd"))

			req, err := env.store.GetRequest(context.Background(), "req-12345678-abcd")
			require.NoError(t, err)
			assert.Equal(t, store.RequestCompleted, req.Status)
			assert.NotNil(t, req.CompletedAt)
			assert.Positive(t, req.FileSize)

			info, err := os.Stat(req.FilePath)
			require.NoError(t, err)
			assert.Equal(t, req.FileSize, info.Size())
			assert.True(t, strings.HasSuffix(req.FilePath, "."+format))

			names := env.outputs(t)
			require.Len(t, names, 1)
			assert.True(t, strings.HasPrefix(names[0], "python-dasturlash_"))
			assert.Contains(t, names[0], "_req-1234.")

			sent := env.notifier.Sent()
			assert.Equal(t, []string{"activity", "text", "text", "file", "text"}, kinds(sent))
			assert.Equal(t, notify.ActivityUploadDocument, sent[0].Activity)
			assert.Equal(t, messages.Default().Get(messages.Progress), sent[1].Text)
			assert.Equal(t, messages.Default().Get(messages.ContentReady), sent[2].Text)
			assert.Equal(t, req.FilePath, sent[3].FilePath)
			assert.Contains(t, sent[3].Text, "Python dasturlash")
			assert.Contains(t, sent[3].Text, strings.ToUpper(format))
			assert.Equal(t, messages.Default().Get(messages.Done), sent[4].Text)

			assert.Equal(t, []string{format + ":completed"}, env.metrics.statuses)
		})
	}
}

func TestRun_RenderFailureMarksFailed(t *testing.T) {
	env := newTestEnv(t)
	env.createRequest(t, "r1", "pptx")
	env.deps.Assembler = failingAssembler{err: errors.New("disk full")}
	o := New(env.deps, nil)

	err := o.Run(context.Background(), "r1")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrDelivery))

	req, err := env.store.GetRequest(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, store.RequestFailed, req.Status)
	assert.Contains(t, req.ErrorMessage, "disk full")

	sent := env.notifier.Sent()
	require.NotEmpty(t, sent)
	assert.Equal(t, messages.Default().Get(messages.Failed), sent[len(sent)-1].Text)
	for _, s := range sent {
		assert.NotEqual(t, "file", s.Kind)
	}
	assert.Equal(t, []string{"pptx:failed"}, env.metrics.statuses)
}

func TestRun_UnsupportedFormatFails(t *testing.T) {
	env := newTestEnv(t)
	env.createRequest(t, "r1", "odp")
	o := New(env.deps, nil)

	err := o.Run(context.Background(), "r1")
	require.ErrorIs(t, err, render.ErrUnsupportedFormat)

	req, _ := env.store.GetRequest(context.Background(), "r1")
	assert.Equal(t, store.RequestFailed, req.Status)
	assert.Empty(t, env.outputs(t))
}

func TestRun_PanicBecomesFailure(t *testing.T) {
	env := newTestEnv(t)
	env.createRequest(t, "r1", "pdf")
	env.deps.Content = panickingContent{}
	o := New(env.deps, nil)

	err := o.Run(context.Background(), "r1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")

	req, _ := env.store.GetRequest(context.Background(), "r1")
	assert.Equal(t, store.RequestFailed, req.Status)
}

func TestRun_DeliveryFailureIsRetryable(t *testing.T) {
	env := newTestEnv(t)
	env.createRequest(t, "r1", "docx")
	env.notifier.SetFileErr(errors.New("telegram: 502"))
	o := New(env.deps, nil)

	err := o.Run(context.Background(), "r1")
	require.ErrorIs(t, err, ErrDelivery)

	req, err2 := env.store.GetRequest(context.Background(), "r1")
	require.NoError(t, err2)
	assert.Equal(t, store.RequestCompleted, req.Status)
	firstPath := req.FilePath

	// A retry redelivers the same file without generating again.
	env.notifier.SetFileErr(nil)
	env.notifier.Reset()
	require.NoError(t, o.Run(context.Background(), "r1"))

	sent := env.notifier.Sent()
	assert.Equal(t, []string{"file", "text"}, kinds(sent))
	assert.Equal(t, firstPath, sent[0].FilePath)
	assert.Len(t, env.outputs(t), 1)
}

func TestRun_FailedRequestIsLeftAlone(t *testing.T) {
	env := newTestEnv(t)
	env.createRequest(t, "r1", "pptx")
	require.NoError(t, env.store.MarkRequestFailed(context.Background(), "r1", "earlier"))
	o := New(env.deps, nil)

	require.NoError(t, o.Run(context.Background(), "r1"))
	assert.Empty(t, env.notifier.Sent())
	assert.Empty(t, env.outputs(t))
}

func TestRun_ResumesGeneratingRequest(t *testing.T) {
	env := newTestEnv(t)
	env.createRequest(t, "r1", "pptx")
	require.NoError(t, env.store.MarkRequestGenerating(context.Background(), "r1"))
	o := New(env.deps, nil)

	require.NoError(t, o.Run(context.Background(), "r1"))
	req, _ := env.store.GetRequest(context.Background(), "r1")
	assert.Equal(t, store.RequestCompleted, req.Status)
}

func TestRun_CancelledContextLeavesRequestGenerating(t *testing.T) {
	env := newTestEnv(t)
	env.createRequest(t, "r1", "pptx")
	o := New(env.deps, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := o.Run(ctx, "r1")
	require.ErrorIs(t, err, context.Canceled)

	req, _ := env.store.GetRequest(context.Background(), "r1")
	assert.Equal(t, store.RequestGenerating, req.Status)
	assert.Empty(t, env.outputs(t))
}

func TestRun_UnknownRequest(t *testing.T) {
	env := newTestEnv(t)
	o := New(env.deps, nil)
	require.ErrorIs(t, o.Run(context.Background(), "missing"), store.ErrNotFound)
}

func TestFileName(t *testing.T) {
	o := New(Deps{}, nil)
	o.now = func() time.Time { return time.Date(2025, 3, 9, 14, 5, 7, 0, time.UTC) }

	got := o.FileName(&store.GenerationRequest{ID: "0123456789", Topic: "Sun'iy intellekt!"}, render.FormatPDF)
	assert.Equal(t, "suniy-intellekt_2025-03-09_140507_01234567.pdf", got)
}

func TestFormatSize(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 bytes"},
		{1023, "1023 bytes"},
		{1024, "1.00 KB"},
		{1536, "1.50 KB"},
		{1048576, "1.00 MB"},
		{5 * 1048576 / 2, "2.50 MB"},
	}
	for _, tt := range tests {
		if got := FormatSize(tt.in); got != tt.want {
			t.Errorf("FormatSize(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Python dasturlash", "python-dasturlash"},
		{"  O'zbekiston tarixi  ", "ozbekiston-tarixi"},
		{"Ўзбекистон тарихи", "ozbekiston-tarixi"},
		{"C++ & Go: 2024", "c-go-2024"},
		{"!!!", "presentation"},
		{"", "presentation"},
		{strings.Repeat("ab ", 40), strings.TrimRight(strings.Repeat("ab-", 20), "-")},
	}
	for _, tt := range tests {
		if got := Slugify(tt.in); got != tt.want {
			t.Errorf("Slugify(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
