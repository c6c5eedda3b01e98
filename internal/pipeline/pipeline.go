// ABOUTME: GenerationOrchestrator running content, images, rendering and delivery for one request
// ABOUTME: Business failures are terminal; only delivery failures are reported as retryable

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/2389/deckbot/internal/content"
	"github.com/2389/deckbot/internal/images"
	"github.com/2389/deckbot/internal/messages"
	"github.com/2389/deckbot/internal/metrics"
	"github.com/2389/deckbot/internal/notify"
	"github.com/2389/deckbot/internal/render"
	"github.com/2389/deckbot/internal/store"
)

// ErrDelivery marks a failure to hand the finished file to the user.
// The request is already completed when this is returned, so a retry only redelivers.
var ErrDelivery = errors.New("delivery failed")

// RequestStore is the part of the store the orchestrator uses.
type RequestStore interface {
	GetRequest(ctx context.Context, id string) (*store.GenerationRequest, error)
	MarkRequestGenerating(ctx context.Context, id string) error
	MarkRequestCompleted(ctx context.Context, id, filePath string, fileSize int64) error
	MarkRequestFailed(ctx context.Context, id, message string) error
}

// ContentGenerator produces slide content. It must not fail.
type ContentGenerator interface {
	Generate(ctx context.Context, req content.Request) *content.SlideContent
}

// ImageFetcher resolves one image per slide. It must not fail.
type ImageFetcher interface {
	FetchAll(ctx context.Context, queries map[int]string) map[int]images.Result
}

// Assembler renders the final document.
type Assembler interface {
	Render(format render.Format, deck *content.SlideContent, imgs map[int]images.Result, meta render.Metadata, outputPath string) (*render.Output, error)
}

// Deps are the collaborators of an Orchestrator.
type Deps struct {
	Requests  RequestStore
	Content   ContentGenerator
	Images    ImageFetcher
	Assembler Assembler
	Notifier  notify.Notifier
	Catalog   *messages.Catalog
	Metrics   metrics.Recorder
	OutputDir string
}

// Orchestrator runs the generation pipeline.
type Orchestrator struct {
	deps   Deps
	now    func() time.Time
	logger *slog.Logger
}

// New creates an Orchestrator.
func New(deps Deps, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Catalog == nil {
		deps.Catalog = messages.Default()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.Nop{}
	}
	return &Orchestrator{
		deps:   deps,
		now:    time.Now,
		logger: logger.With("component", "pipeline"),
	}
}

// Run processes one request. It is safe to call again for the same request:
// a generating request resumes, a completed one is only redelivered and a
// failed one is left alone. Errors wrapping ErrDelivery are worth retrying;
// any other error has already been recorded on the request.
func (o *Orchestrator) Run(ctx context.Context, requestID string) error {
	req, err := o.deps.Requests.GetRequest(ctx, requestID)
	if err != nil {
		return fmt.Errorf("loading request %s: %w", requestID, err)
	}
	logger := o.logger.With("request_id", req.ID, "user_id", req.UserID)

	switch req.Status {
	case store.RequestFailed:
		logger.Info("request already failed, nothing to do")
		return nil
	case store.RequestCompleted:
		logger.Info("request already completed, redelivering")
		return o.deliver(ctx, req, req.FilePath, req.FileSize)
	case store.RequestPending:
		if err := o.deps.Requests.MarkRequestGenerating(ctx, req.ID); err != nil {
			return fmt.Errorf("marking request generating: %w", err)
		}
		req.Status = store.RequestGenerating
	case store.RequestGenerating:
		logger.Info("resuming interrupted request")
	}

	start := o.now()
	o.activity(ctx, req.ConversationID, notify.ActivityUploadDocument)
	o.say(ctx, req.ConversationID, o.deps.Catalog.Get(messages.Progress))

	out, err := o.generate(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			// Shutting down: leave the request generating so it resumes on restart.
			return ctx.Err()
		}
		return o.fail(ctx, req, start, err)
	}

	if err := o.deps.Requests.MarkRequestCompleted(ctx, req.ID, out.Path, out.Size); err != nil {
		return o.fail(ctx, req, start, fmt.Errorf("recording completion: %w", err))
	}
	o.deps.Metrics.Generation(req.Format, string(store.RequestCompleted), o.now().Sub(start))
	logger.Info("presentation generated",
		"format", req.Format,
		"path", out.Path,
		"size", out.Size,
		"duration", o.now().Sub(start))

	return o.deliver(ctx, req, out.Path, out.Size)
}

func (o *Orchestrator) generate(ctx context.Context, req *store.GenerationRequest) (out *render.Output, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pipeline panic: %v", r)
		}
	}()

	format, err := render.ParseFormat(req.Format)
	if err != nil {
		return nil, err
	}

	deck := o.deps.Content.Generate(ctx, content.Request{
		Topic:      req.Topic,
		Pages:      req.PagesCount,
		University: req.University,
		Direction:  req.Direction,
		Group:      req.GroupName,
	})
	if deck == nil || len(deck.Slides) == 0 {
		return nil, errors.New("content generator returned no slides")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	o.say(ctx, req.ConversationID, o.deps.Catalog.Get(messages.ContentReady))

	queries := make(map[int]string, len(deck.Slides))
	for _, s := range deck.Slides {
		queries[s.Number] = s.ImageQuery
	}
	imgs := o.deps.Images.FetchAll(ctx, queries)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	student := req.StudentName
	if student == "" {
		student = o.deps.Catalog.Get(messages.StudentFallbackName)
	}
	meta := render.Metadata{
		University:  req.University,
		Direction:   req.Direction,
		Group:       req.GroupName,
		StudentName: student,
		Placement:   req.InfoPlacement,
	}

	path := filepath.Join(o.deps.OutputDir, o.FileName(req, format))
	return o.deps.Assembler.Render(format, deck, imgs, meta, path)
}

// FileName builds "{slug}_{timestamp}_{id}.{ext}" for a request.
func (o *Orchestrator) FileName(req *store.GenerationRequest, format render.Format) string {
	id := req.ID
	if len(id) > 8 {
		id = id[:8]
	}
	return fmt.Sprintf("%s_%s_%s.%s", Slugify(req.Topic), o.now().Format("2006-01-02_150405"), id, format.Extension())
}

func (o *Orchestrator) fail(ctx context.Context, req *store.GenerationRequest, start time.Time, cause error) error {
	o.logger.Error("generation failed", "request_id", req.ID, "error", cause)
	if err := o.deps.Requests.MarkRequestFailed(ctx, req.ID, cause.Error()); err != nil {
		o.logger.Error("recording failure", "request_id", req.ID, "error", err)
	}
	o.deps.Metrics.Generation(req.Format, string(store.RequestFailed), o.now().Sub(start))
	o.say(ctx, req.ConversationID, o.deps.Catalog.Get(messages.Failed))
	return cause
}

func (o *Orchestrator) deliver(ctx context.Context, req *store.GenerationRequest, path string, size int64) error {
	caption := o.deps.Catalog.Format(messages.Caption, messages.Args{
		"topic":  req.Topic,
		"pages":  req.PagesCount,
		"format": strings.ToUpper(req.Format),
		"size":   FormatSize(size),
	})
	if err := o.deps.Notifier.SendFile(ctx, req.ConversationID, path, caption); err != nil {
		o.logger.Warn("file delivery failed", "request_id", req.ID, "error", err)
		return fmt.Errorf("%w: %v", ErrDelivery, err)
	}
	o.say(ctx, req.ConversationID, o.deps.Catalog.Get(messages.Done))
	return nil
}

func (o *Orchestrator) say(ctx context.Context, conversationID, text string) {
	if err := o.deps.Notifier.SendText(ctx, conversationID, text); err != nil {
		o.logger.Warn("sending message", "conversation_id", conversationID, "error", err)
	}
}

func (o *Orchestrator) activity(ctx context.Context, conversationID string, a notify.Activity) {
	an, ok := o.deps.Notifier.(notify.ActivityNotifier)
	if !ok {
		return
	}
	if err := an.SendActivity(ctx, conversationID, a); err != nil {
		o.logger.Debug("sending activity", "conversation_id", conversationID, "error", err)
	}
}

// FormatSize renders a byte count as MB, KB or bytes with two decimals.
func FormatSize(bytes int64) string {
	switch {
	case bytes >= 1<<20:
		return fmt.Sprintf("%.2f MB", float64(bytes)/(1<<20))
	case bytes >= 1<<10:
		return fmt.Sprintf("%.2f KB", float64(bytes)/(1<<10))
	default:
		return fmt.Sprintf("%d bytes", bytes)
	}
}
