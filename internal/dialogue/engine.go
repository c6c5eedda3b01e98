// ABOUTME: Dialogue engine that walks a user from /create to a queued generation request
// ABOUTME: Each inbound event loads persisted state, validates input, and advances one step

package dialogue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/2389/deckbot/internal/conversation"
	"github.com/2389/deckbot/internal/messages"
	"github.com/2389/deckbot/internal/metrics"
	"github.com/2389/deckbot/internal/notify"
	"github.com/2389/deckbot/internal/store"
)

// Keys under which collected values are stored in the conversation data.
const (
	KeyUniversity    = "university"
	KeyDirection     = "direction"
	KeyGroup         = "group_name"
	KeyInfoPlacement = "info_placement"
	KeyTopic         = "topic"
	KeyPages         = "pages_count"
	KeyFormat        = "format"
)

// Choice token prefixes and values.
const (
	placementPrefix = "placement_"
	formatPrefix    = "format_"

	PlacementFirst = "first"
	PlacementLast  = "last"

	FormatPPTX = "pptx"
	FormatDOCX = "docx"
	FormatPDF  = "pdf"
)

// persistTimeout bounds the writes that follow a created request once the
// inbound context is detached.
const persistTimeout = 5 * time.Second

var formatNames = map[string]string{
	FormatPPTX: "PowerPoint",
	FormatDOCX: "Word",
	FormatPDF:  "PDF",
}

// RequestStore is what the engine needs to record finished dialogues.
type RequestStore interface {
	CreateRequest(ctx context.Context, req *store.GenerationRequest) error
	MarkRequestFailed(ctx context.Context, id, message string) error
}

// UserLookup provides the profile used for the student name.
type UserLookup interface {
	GetUser(ctx context.Context, id string) (*store.User, error)
}

// Dispatcher hands a pending request to background generation.
// It must return as soon as the work is queued.
type Dispatcher interface {
	Enqueue(ctx context.Context, requestID string) error
}

// Deps are the collaborators of an Engine.
type Deps struct {
	Conversations *conversation.Service
	Requests      RequestStore
	Users         UserLookup
	Dispatcher    Dispatcher
	Notifier      notify.Notifier
	Catalog       *messages.Catalog
	Metrics       metrics.Recorder
}

// Engine is the dialogue state machine. It is safe for concurrent use;
// events for the same user are serialized.
type Engine struct {
	conv       *conversation.Service
	requests   RequestStore
	users      UserLookup
	dispatcher Dispatcher
	notifier   notify.Notifier
	catalog    *messages.Catalog
	metrics    metrics.Recorder
	minPages   int
	maxPages   int
	locks      *keyedMutex
	newID      func() string
	logger     *slog.Logger
}

// New creates an Engine accepting page counts in [minPages, maxPages].
func New(deps Deps, minPages, maxPages int, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Catalog == nil {
		deps.Catalog = messages.Default()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.Nop{}
	}
	return &Engine{
		conv:       deps.Conversations,
		requests:   deps.Requests,
		users:      deps.Users,
		dispatcher: deps.Dispatcher,
		notifier:   deps.Notifier,
		catalog:    deps.Catalog,
		metrics:    deps.Metrics,
		minPages:   minPages,
		maxPages:   maxPages,
		locks:      newKeyedMutex(),
		newID:      func() string { return uuid.New().String() },
		logger:     logger.With("component", "dialogue"),
	}
}

// Start opens a new session at the university question, replacing any previous one.
func (e *Engine) Start(ctx context.Context, userID, conversationID string) error {
	unlock := e.locks.Lock(userID)
	defer unlock()

	if err := e.conv.Upsert(ctx, userID, conversation.StateAwaitingUniversity, nil); err != nil {
		return err
	}
	e.metrics.DialogueStep("started")
	e.logger.Info("dialogue started", "user_id", userID)
	return e.say(ctx, conversationID, messages.AskUniversity, nil)
}

// Cancel drops the in-progress dialogue. Already queued generations are not affected.
func (e *Engine) Cancel(ctx context.Context, userID, conversationID string) error {
	unlock := e.locks.Lock(userID)
	defer unlock()

	conv, err := e.conv.Get(ctx, userID)
	if err != nil {
		return err
	}
	if !conv.Active() {
		return e.say(ctx, conversationID, messages.NothingToCancel, nil)
	}
	if err := e.conv.Clear(ctx, userID); err != nil {
		return err
	}
	e.metrics.DialogueStep("cancelled")
	return e.say(ctx, conversationID, messages.Cancelled, nil)
}

// HandleText feeds free text to the current step.
func (e *Engine) HandleText(ctx context.Context, userID, conversationID, text string) error {
	unlock := e.locks.Lock(userID)
	defer unlock()

	conv, err := e.conv.Get(ctx, userID)
	if err != nil {
		return err
	}
	if !conv.Active() {
		return e.say(ctx, conversationID, messages.NoSession, nil)
	}
	if conv.Expired(e.conv.Now()) {
		return e.expire(ctx, userID, conversationID)
	}
	if err := e.conv.TouchExpiry(ctx, userID); err != nil {
		return err
	}

	text = normalize(text)

	switch conv.State {
	case conversation.StateAwaitingUniversity:
		if !validName(text) {
			return e.reject(ctx, conversationID, messages.UniversityTooShort, nil)
		}
		return e.advance(ctx, userID, conversationID, KeyUniversity, text, conversation.StateAwaitingDirection)

	case conversation.StateAwaitingDirection:
		if !validName(text) {
			return e.reject(ctx, conversationID, messages.DirectionTooShort, nil)
		}
		return e.advance(ctx, userID, conversationID, KeyDirection, text, conversation.StateAwaitingGroup)

	case conversation.StateAwaitingGroup:
		if !validName(text) {
			return e.reject(ctx, conversationID, messages.GroupTooShort, nil)
		}
		return e.advance(ctx, userID, conversationID, KeyGroup, text, conversation.StateAwaitingPlacement)

	case conversation.StateAwaitingTopic:
		switch topicLength(text) {
		case -1:
			return e.reject(ctx, conversationID, messages.TopicTooShort, messages.Args{"min": minTopicLength})
		case 1:
			return e.reject(ctx, conversationID, messages.TopicTooLong, messages.Args{"max": maxTopicLength})
		}
		return e.advance(ctx, userID, conversationID, KeyTopic, text, conversation.StateAwaitingPages)

	case conversation.StateAwaitingPages:
		pages, ok := parsePages(text, e.minPages, e.maxPages)
		if !ok {
			return e.reject(ctx, conversationID, messages.PagesInvalid, messages.Args{"min": e.minPages, "max": e.maxPages})
		}
		return e.advance(ctx, userID, conversationID, KeyPages, strconv.Itoa(pages), conversation.StateAwaitingFormat)

	case conversation.StateAwaitingPlacement, conversation.StateAwaitingFormat:
		// these steps want a button press; show the buttons again
		return e.prompt(ctx, conversationID, conv.State)

	default:
		e.logger.Warn("conversation in unknown state, resetting", "user_id", userID, "state", conv.State)
		if err := e.conv.Clear(ctx, userID); err != nil {
			return err
		}
		return e.say(ctx, conversationID, messages.NoSession, nil)
	}
}

// HandleChoice feeds a button token to the current step.
// Tokens that the current step does not expect are ignored, so a redelivered
// or stale button press never moves the dialogue.
func (e *Engine) HandleChoice(ctx context.Context, userID, conversationID, token string) error {
	unlock := e.locks.Lock(userID)
	defer unlock()

	conv, err := e.conv.Get(ctx, userID)
	if err != nil {
		return err
	}
	if !conv.Active() {
		e.logger.Debug("choice without session ignored", "user_id", userID, "token", token)
		return nil
	}
	if conv.Expired(e.conv.Now()) {
		return e.expire(ctx, userID, conversationID)
	}

	switch {
	case strings.HasPrefix(token, placementPrefix):
		placement := strings.TrimPrefix(token, placementPrefix)
		if conv.State != conversation.StateAwaitingPlacement || (placement != PlacementFirst && placement != PlacementLast) {
			return e.ignore(userID, conv.State, token)
		}
		if err := e.conv.TouchExpiry(ctx, userID); err != nil {
			return err
		}
		if err := e.record(ctx, userID, KeyInfoPlacement, placement, conversation.StateAwaitingTopic); err != nil {
			return err
		}
		name := e.catalog.Get(messages.PlacementFirstName)
		if placement == PlacementLast {
			name = e.catalog.Get(messages.PlacementLastName)
		}
		return e.say(ctx, conversationID, messages.PlacementChosen, messages.Args{"placement": name})

	case strings.HasPrefix(token, formatPrefix):
		format := strings.TrimPrefix(token, formatPrefix)
		if _, known := formatNames[format]; conv.State != conversation.StateAwaitingFormat || !known {
			return e.ignore(userID, conv.State, token)
		}
		if err := e.conv.SetField(ctx, userID, KeyFormat, format); err != nil {
			return err
		}
		conv.Data[KeyFormat] = format
		return e.finish(ctx, userID, conversationID, conv.Data)

	default:
		return e.ignore(userID, conv.State, token)
	}
}

func (e *Engine) ignore(userID string, state conversation.State, token string) error {
	e.logger.Debug("choice not expected in this state", "user_id", userID, "state", state, "token", token)
	return nil
}

func (e *Engine) expire(ctx context.Context, userID, conversationID string) error {
	if err := e.conv.Clear(ctx, userID); err != nil {
		return err
	}
	e.metrics.DialogueStep("expired")
	e.logger.Info("dialogue expired", "user_id", userID)
	minutes := int(e.conv.TTL().Minutes())
	return e.say(ctx, conversationID, messages.Timeout, messages.Args{"minutes": minutes})
}

// record persists one value and moves to next. The value is written first so
// a crash in between leaves the user re-answering the same question.
func (e *Engine) record(ctx context.Context, userID, key, value string, next conversation.State) error {
	if err := e.conv.SetField(ctx, userID, key, value); err != nil {
		return err
	}
	if err := e.conv.Advance(ctx, userID, next); err != nil {
		return err
	}
	e.metrics.DialogueStep("advanced")
	return nil
}

func (e *Engine) advance(ctx context.Context, userID, conversationID, key, value string, next conversation.State) error {
	if err := e.record(ctx, userID, key, value, next); err != nil {
		return err
	}
	return e.prompt(ctx, conversationID, next)
}

func (e *Engine) reject(ctx context.Context, conversationID, key string, args messages.Args) error {
	e.metrics.DialogueStep("invalid")
	return e.say(ctx, conversationID, key, args)
}

// prompt sends the question for state.
func (e *Engine) prompt(ctx context.Context, conversationID string, state conversation.State) error {
	switch state {
	case conversation.StateAwaitingUniversity:
		return e.say(ctx, conversationID, messages.AskUniversity, nil)
	case conversation.StateAwaitingDirection:
		return e.say(ctx, conversationID, messages.AskDirection, nil)
	case conversation.StateAwaitingGroup:
		return e.say(ctx, conversationID, messages.AskGroup, nil)
	case conversation.StateAwaitingPlacement:
		return e.choose(ctx, conversationID, messages.AskPlacement, PlacementRows(e.catalog))
	case conversation.StateAwaitingTopic:
		return e.say(ctx, conversationID, messages.AskTopic, nil)
	case conversation.StateAwaitingPages:
		return e.say(ctx, conversationID, messages.AskPages, messages.Args{"min": e.minPages, "max": e.maxPages})
	case conversation.StateAwaitingFormat:
		return e.choose(ctx, conversationID, messages.AskFormat, FormatRows(e.catalog))
	}
	return nil
}

// PlacementRows are the buttons of the placement question, on one row.
func PlacementRows(c *messages.Catalog) [][]notify.Choice {
	return [][]notify.Choice{{
		{Label: c.Get(messages.PlacementFirst), Token: placementPrefix + PlacementFirst},
		{Label: c.Get(messages.PlacementLast), Token: placementPrefix + PlacementLast},
	}}
}

// FormatRows are the buttons of the format question, one per row.
func FormatRows(c *messages.Catalog) [][]notify.Choice {
	return [][]notify.Choice{
		{{Label: c.Get(messages.FormatPPTX), Token: formatPrefix + FormatPPTX}},
		{{Label: c.Get(messages.FormatDOCX), Token: formatPrefix + FormatDOCX}},
		{{Label: c.Get(messages.FormatPDF), Token: formatPrefix + FormatPDF}},
	}
}

// finish turns the collected data into a pending request, resets the
// conversation and hands the request to the dispatcher.
func (e *Engine) finish(ctx context.Context, userID, conversationID string, data map[string]string) error {
	req, err := e.buildRequest(ctx, userID, conversationID, data)
	if err != nil {
		e.logger.Error("collected data incomplete", "user_id", userID, "error", err)
		if clearErr := e.conv.Clear(ctx, userID); clearErr != nil {
			return clearErr
		}
		return e.say(ctx, conversationID, messages.Failed, nil)
	}

	if err := e.requests.CreateRequest(ctx, req); err != nil {
		e.logger.Error("saving generation request failed", "user_id", userID, "error", err)
		if clearErr := e.conv.Clear(ctx, userID); clearErr != nil {
			return errors.Join(err, clearErr)
		}
		return errors.Join(err, e.say(ctx, conversationID, messages.Failed, nil))
	}

	// The request exists now; a dropped webhook connection must not strand it
	// pending without a job or leave the conversation waiting for a format.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	if err := e.conv.Clear(ctx, userID); err != nil {
		return err
	}
	e.metrics.DialogueStep("completed")

	summary := e.catalog.Format(messages.Summary, messages.Args{
		"university": req.University,
		"direction":  req.Direction,
		"group":      req.GroupName,
		"topic":      req.Topic,
		"pages":      req.PagesCount,
		"format":     formatNames[req.Format],
	})
	if err := e.notifier.SendText(ctx, conversationID, summary); err != nil {
		e.logger.Warn("sending summary failed", "request_id", req.ID, "error", err)
	}

	if err := e.dispatcher.Enqueue(ctx, req.ID); err != nil {
		e.logger.Error("queueing generation failed", "request_id", req.ID, "error", err)
		if markErr := e.requests.MarkRequestFailed(ctx, req.ID, "queueing: "+err.Error()); markErr != nil {
			e.logger.Error("marking request failed", "request_id", req.ID, "error", markErr)
		}
		return errors.Join(err, e.say(ctx, conversationID, messages.Failed, nil))
	}

	e.logger.Info("generation request queued",
		"request_id", req.ID,
		"user_id", userID,
		"format", req.Format,
		"pages", req.PagesCount)
	return nil
}

func (e *Engine) buildRequest(ctx context.Context, userID, conversationID string, data map[string]string) (*store.GenerationRequest, error) {
	for _, key := range []string{KeyUniversity, KeyDirection, KeyGroup, KeyInfoPlacement, KeyTopic, KeyPages, KeyFormat} {
		if data[key] == "" {
			return nil, fmt.Errorf("missing %s", key)
		}
	}
	pages, err := strconv.Atoi(data[KeyPages])
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", KeyPages, err)
	}

	var studentName string
	if e.users != nil {
		if user, err := e.users.GetUser(ctx, userID); err == nil {
			studentName = user.FirstName
		}
	}

	return &store.GenerationRequest{
		ID:             e.newID(),
		UserID:         userID,
		ConversationID: conversationID,
		University:     data[KeyUniversity],
		Direction:      data[KeyDirection],
		GroupName:      data[KeyGroup],
		InfoPlacement:  data[KeyInfoPlacement],
		Topic:          data[KeyTopic],
		PagesCount:     pages,
		Format:         data[KeyFormat],
		StudentName:    studentName,
		Status:         store.RequestPending,
	}, nil
}

func (e *Engine) say(ctx context.Context, conversationID, key string, args messages.Args) error {
	if err := e.notifier.SendText(ctx, conversationID, e.catalog.Format(key, args)); err != nil {
		return fmt.Errorf("sending %s: %w", key, err)
	}
	return nil
}

func (e *Engine) choose(ctx context.Context, conversationID, key string, rows [][]notify.Choice) error {
	if err := e.notifier.SendChoicePrompt(ctx, conversationID, e.catalog.Get(key), rows); err != nil {
		return fmt.Errorf("sending %s: %w", key, err)
	}
	return nil
}
