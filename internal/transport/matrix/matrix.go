// ABOUTME: Matrix frontend over mautrix: sync loop for inbound messages and a Notifier for replies
// ABOUTME: Matrix has no buttons, so choices are numbered lines and a numeric reply picks one

package matrix

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/2389/deckbot/internal/bot"
	"github.com/2389/deckbot/internal/notify"
)

// Name is the frontend prefix of Matrix conversation and user IDs.
const Name = "matrix"

const (
	typingTimeout  = 30 * time.Second
	networkTimeout = 10 * time.Second
)

// API is the part of mautrix.Client the frontend sends through.
type API interface {
	SendMessageEvent(ctx context.Context, roomID id.RoomID, eventType event.Type, contentJSON interface{}, extra ...mautrix.ReqSendEvent) (*mautrix.RespSendEvent, error)
	UploadBytes(ctx context.Context, data []byte, contentType string) (*mautrix.RespMediaUpload, error)
	UserTyping(ctx context.Context, roomID id.RoomID, typing bool, timeout time.Duration) (*mautrix.RespTyping, error)
}

// Handler consumes inbound events.
type Handler interface {
	Handle(ctx context.Context, evt bot.Event) error
}

// Config selects the account and rooms.
type Config struct {
	Homeserver   string
	UserID       string
	AccessToken  string
	AllowedRooms []string
}

// Frontend connects a Matrix account to the router.
type Frontend struct {
	client  *mautrix.Client
	api     API
	handler Handler
	self    id.UserID
	allowed map[string]bool
	started time.Time
	logger  *slog.Logger

	mu         sync.Mutex
	pending    map[choiceKey][]string
	lastSender map[id.RoomID]id.UserID
}

// choiceKey scopes a numbered prompt to the user it was sent for, so other
// members of a shared room cannot answer it.
type choiceKey struct {
	room id.RoomID
	user id.UserID
}

type senderKey struct{}

// withSender records the Matrix user whose message is being handled.
func withSender(ctx context.Context, user id.UserID) context.Context {
	return context.WithValue(ctx, senderKey{}, user)
}

// New logs in with an access token. Nothing is sent until Run.
func New(cfg Config, logger *slog.Logger) (*Frontend, error) {
	client, err := mautrix.NewClient(cfg.Homeserver, id.UserID(cfg.UserID), cfg.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("creating matrix client: %w", err)
	}
	f := newFrontend(client, id.UserID(cfg.UserID), cfg.AllowedRooms, logger)
	f.client = client
	return f, nil
}

func newFrontend(api API, self id.UserID, allowedRooms []string, logger *slog.Logger) *Frontend {
	if logger == nil {
		logger = slog.Default()
	}
	allowed := make(map[string]bool, len(allowedRooms))
	for _, r := range allowedRooms {
		allowed[r] = true
	}
	return &Frontend{
		api:     api,
		self:    self,
		allowed: allowed,
		started: time.Now(),
		pending:    make(map[choiceKey][]string),
		lastSender: make(map[id.RoomID]id.UserID),
		logger:     logger.With("component", "matrix"),
	}
}

// SetHandler wires the inbound side. It must be called before Run.
func (f *Frontend) SetHandler(h Handler) {
	f.handler = h
}

// Run syncs until ctx is cancelled. Invites from allowed rooms are accepted.
func (f *Frontend) Run(ctx context.Context) error {
	if f.client == nil {
		return fmt.Errorf("matrix frontend has no client")
	}
	syncer, ok := f.client.Syncer.(*mautrix.DefaultSyncer)
	if !ok {
		return fmt.Errorf("unexpected syncer type: %T", f.client.Syncer)
	}
	syncer.OnEventType(event.EventMessage, f.onMessage)
	syncer.OnEventType(event.StateMember, f.onMember)

	f.started = time.Now()
	f.logger.Info("starting matrix sync", "user_id", f.self)

	syncErr := make(chan error, 1)
	go func() {
		syncErr <- f.client.SyncWithContext(ctx)
	}()

	select {
	case <-ctx.Done():
		f.logger.Info("stopping matrix sync")
		return nil
	case err := <-syncErr:
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("matrix sync failed: %w", err)
	}
}

func (f *Frontend) roomAllowed(roomID id.RoomID) bool {
	return len(f.allowed) == 0 || f.allowed[roomID.String()]
}

func (f *Frontend) onMember(ctx context.Context, evt *event.Event) {
	member := evt.Content.AsMember()
	if member.Membership != event.MembershipInvite || evt.GetStateKey() != f.self.String() {
		return
	}
	if !f.roomAllowed(evt.RoomID) {
		f.logger.Info("ignoring invite to non-allowed room", "room", evt.RoomID)
		return
	}
	joinCtx, cancel := context.WithTimeout(ctx, networkTimeout)
	defer cancel()
	if _, err := f.client.JoinRoomByID(joinCtx, evt.RoomID); err != nil {
		f.logger.Warn("joining room", "room", evt.RoomID, "error", err)
		return
	}
	f.logger.Info("joined room", "room", evt.RoomID, "inviter", evt.Sender)
}

func (f *Frontend) onMessage(ctx context.Context, evt *event.Event) {
	be, ok := f.toEvent(evt)
	if !ok || f.handler == nil {
		return
	}
	if err := f.handler.Handle(withSender(ctx, evt.Sender), be); err != nil {
		f.logger.Error("handling message", "event_id", evt.ID, "room", evt.RoomID, "error", err)
	}
}

// toEvent converts a room message. Own messages, history from before
// startup and rooms outside the allow list are dropped.
func (f *Frontend) toEvent(evt *event.Event) (bot.Event, bool) {
	if evt.Sender == f.self {
		return bot.Event{}, false
	}
	if evt.Timestamp > 0 && time.UnixMilli(evt.Timestamp).Before(f.started) {
		return bot.Event{}, false
	}
	if !f.roomAllowed(evt.RoomID) {
		f.logger.Debug("ignoring message from non-allowed room", "room", evt.RoomID)
		return bot.Event{}, false
	}
	content, ok := evt.Content.Parsed.(*event.MessageEventContent)
	if !ok || content.MsgType != event.MsgText {
		return bot.Event{}, false
	}
	text := strings.TrimSpace(content.Body)
	if text == "" {
		return bot.Event{}, false
	}

	be := bot.Event{
		ID:             notify.ConversationID(Name, evt.ID.String()),
		Frontend:       Name,
		ConversationID: notify.ConversationID(Name, evt.RoomID.String()),
		Sender: bot.Sender{
			ID:        notify.ConversationID(Name, evt.Sender.String()),
			Username:  evt.Sender.Localpart(),
			FirstName: evt.Sender.Localpart(),
		},
		Kind: bot.KindText,
		Text: text,
	}
	f.mu.Lock()
	f.lastSender[evt.RoomID] = evt.Sender
	f.mu.Unlock()
	if token, ok := f.takeChoice(choiceKey{evt.RoomID, evt.Sender}, text); ok {
		be.Kind = bot.KindChoice
		be.ChoiceToken = token
		be.Text = ""
	}
	return be, true
}

// takeChoice maps a numeric reply to the token of the last prompt sent to
// that user in that room.
func (f *Frontend) takeChoice(key choiceKey, text string) (string, bool) {
	n, err := strconv.Atoi(text)
	if err != nil {
		return "", false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	tokens := f.pending[key]
	if n < 1 || n > len(tokens) {
		return "", false
	}
	delete(f.pending, key)
	return tokens[n-1], true
}

func roomID(conversationID string) (id.RoomID, error) {
	frontend, native, ok := notify.SplitConversationID(conversationID)
	if !ok || frontend != Name {
		return "", fmt.Errorf("not a matrix conversation: %q", conversationID)
	}
	return id.RoomID(native), nil
}

var tags = regexp.MustCompile(`<[^>]+>`)

// htmlContent sends the HTML as formatted body with a tag-free plain body.
func htmlContent(html string) *event.MessageEventContent {
	plain := tags.ReplaceAllString(html, "")
	c := &event.MessageEventContent{MsgType: event.MsgText, Body: plain}
	if plain != html {
		c.Format = event.FormatHTML
		c.FormattedBody = strings.ReplaceAll(html, "\n", "<br>")
	}
	return c
}

func (f *Frontend) send(ctx context.Context, room id.RoomID, content *event.MessageEventContent) error {
	sendCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if _, err := f.api.SendMessageEvent(sendCtx, room, event.EventMessage, content); err != nil {
		return fmt.Errorf("sending to %s: %w", room, err)
	}
	return nil
}

// SendText sends a message; HTML tags become formatting.
func (f *Frontend) SendText(ctx context.Context, conversationID, text string) error {
	room, err := roomID(conversationID)
	if err != nil {
		return err
	}
	return f.send(ctx, room, htmlContent(text))
}

// SendChoicePrompt lists the choices as numbered lines and remembers their
// tokens so the recipient's next numeric reply in the room can be mapped back.
// The recipient is the sender being handled on ctx, or else the last member
// who wrote in the room.
func (f *Frontend) SendChoicePrompt(ctx context.Context, conversationID, text string, rows [][]notify.Choice) error {
	room, err := roomID(conversationID)
	if err != nil {
		return err
	}
	var b strings.Builder
	b.WriteString(text)
	b.WriteString("\n")
	var tokens []string
	for _, row := range rows {
		for _, c := range row {
			tokens = append(tokens, c.Token)
			fmt.Fprintf(&b, "\n%d. %s", len(tokens), c.Label)
		}
	}

	f.mu.Lock()
	user, ok := ctx.Value(senderKey{}).(id.UserID)
	if !ok {
		user = f.lastSender[room]
	}
	f.pending[choiceKey{room, user}] = tokens
	f.mu.Unlock()

	return f.send(ctx, room, htmlContent(b.String()))
}

// SendFile uploads the file to the media repository and posts it with the caption.
func (f *Frontend) SendFile(ctx context.Context, conversationID, filePath, caption string) error {
	room, err := roomID(conversationID)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("reading %s: %w", filePath, err)
	}
	contentType := mime.TypeByExtension(filepath.Ext(filePath))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	uploadCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()
	upload, err := f.api.UploadBytes(uploadCtx, data, contentType)
	if err != nil {
		return fmt.Errorf("uploading %s: %w", filepath.Base(filePath), err)
	}

	name := filepath.Base(filePath)
	file := &event.MessageEventContent{
		MsgType:  event.MsgFile,
		Body:     name,
		FileName: name,
		URL:      upload.ContentURI.CUString(),
		Info:     &event.FileInfo{MimeType: contentType, Size: len(data)},
	}
	if err := f.send(ctx, room, file); err != nil {
		return err
	}
	if caption == "" {
		return nil
	}
	return f.send(ctx, room, htmlContent(caption))
}

// SendActivity shows the typing indicator for either activity.
func (f *Frontend) SendActivity(ctx context.Context, conversationID string, activity notify.Activity) error {
	room, err := roomID(conversationID)
	if err != nil {
		return err
	}
	typingCtx, cancel := context.WithTimeout(ctx, networkTimeout)
	defer cancel()
	if _, err := f.api.UserTyping(typingCtx, room, true, typingTimeout); err != nil {
		return fmt.Errorf("setting typing in %s: %w", room, err)
	}
	return nil
}

var (
	_ notify.Notifier         = (*Frontend)(nil)
	_ notify.ActivityNotifier = (*Frontend)(nil)
	_ API                     = (*mautrix.Client)(nil)
)
