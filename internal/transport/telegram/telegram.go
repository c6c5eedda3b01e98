// ABOUTME: Telegram frontend: webhook handler for inbound updates and a Notifier for replies
// ABOUTME: Buttons are inline keyboards whose callback data is the dialogue choice token

package telegram

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/2389/deckbot/internal/bot"
	"github.com/2389/deckbot/internal/notify"
)

// Name is the frontend prefix of Telegram conversation and user IDs.
const Name = "telegram"

const (
	secretHeader   = "X-Telegram-Bot-Api-Secret-Token"
	maxUpdateBytes = 1 << 20
)

// API is the part of tgbotapi.BotAPI the frontend uses.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Handler consumes inbound events.
type Handler interface {
	Handle(ctx context.Context, evt bot.Event) error
}

// Frontend connects a Telegram bot to the router.
type Frontend struct {
	api     API
	handler Handler
	secret  string
	logger  *slog.Logger
}

// New creates a Frontend. When secret is set, webhook calls must carry it
// in the X-Telegram-Bot-Api-Secret-Token header.
func New(api API, secret string, logger *slog.Logger) *Frontend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Frontend{
		api:    api,
		secret: secret,
		logger: logger.With("component", "telegram"),
	}
}

// Connect logs in with token against the public Bot API.
func Connect(token string) (*tgbotapi.BotAPI, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("connecting to telegram: %w", err)
	}
	return api, nil
}

// SetHandler wires the inbound side. It must be called before serving webhooks.
func (f *Frontend) SetHandler(h Handler) {
	f.handler = h
}

// RegisterWebhook points Telegram at publicURL.
func (f *Frontend) RegisterWebhook(publicURL string) error {
	wh, err := tgbotapi.NewWebhook(publicURL)
	if err != nil {
		return fmt.Errorf("building webhook config: %w", err)
	}
	wh.AllowedUpdates = []string{"message", "callback_query"}
	if _, err := f.api.Request(wh); err != nil {
		return fmt.Errorf("registering webhook: %w", err)
	}
	f.logger.Info("webhook registered", "url", publicURL)
	return nil
}

// ServeHTTP handles one webhook delivery. Updates are processed before the
// response so Telegram redelivers anything that never reached the dialogue.
// Handler errors are logged and acknowledged; redelivery would not fix them.
func (f *Frontend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if f.secret != "" && subtle.ConstantTimeCompare([]byte(r.Header.Get(secretHeader)), []byte(f.secret)) != 1 {
		f.logger.Warn("webhook call with bad secret", "remote", r.RemoteAddr)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	var update tgbotapi.Update
	if err := json.NewDecoder(io.LimitReader(r.Body, maxUpdateBytes)).Decode(&update); err != nil {
		http.Error(w, "bad update", http.StatusBadRequest)
		return
	}

	if evt, ok := f.toEvent(update); ok && f.handler != nil {
		if err := f.handler.Handle(r.Context(), evt); err != nil {
			f.logger.Error("handling update", "update_id", update.UpdateID, "error", err)
		}
	}
	if update.CallbackQuery != nil {
		f.answerCallback(update.CallbackQuery.ID)
	}
	w.WriteHeader(http.StatusOK)
}

func (f *Frontend) toEvent(update tgbotapi.Update) (bot.Event, bool) {
	evt := bot.Event{
		ID:       fmt.Sprintf("%s:update:%d", Name, update.UpdateID),
		Frontend: Name,
	}
	switch {
	case update.Message != nil && update.Message.From != nil && update.Message.Chat != nil:
		if update.Message.Text == "" {
			return bot.Event{}, false
		}
		evt.Sender = sender(update.Message.From)
		evt.ConversationID = chatConversation(update.Message.Chat.ID)
		evt.Kind = bot.KindText
		evt.Text = update.Message.Text
	case update.CallbackQuery != nil && update.CallbackQuery.From != nil:
		cq := update.CallbackQuery
		evt.Sender = sender(cq.From)
		if cq.Message != nil && cq.Message.Chat != nil {
			evt.ConversationID = chatConversation(cq.Message.Chat.ID)
		} else {
			evt.ConversationID = chatConversation(cq.From.ID)
		}
		evt.Kind = bot.KindChoice
		evt.ChoiceToken = cq.Data
	default:
		return bot.Event{}, false
	}
	return evt, true
}

func sender(u *tgbotapi.User) bot.Sender {
	return bot.Sender{
		ID:           notify.ConversationID(Name, strconv.FormatInt(u.ID, 10)),
		Username:     u.UserName,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		LanguageCode: u.LanguageCode,
	}
}

func chatConversation(chatID int64) string {
	return notify.ConversationID(Name, strconv.FormatInt(chatID, 10))
}

func (f *Frontend) answerCallback(id string) {
	if _, err := f.api.Request(tgbotapi.NewCallback(id, "")); err != nil {
		f.logger.Debug("answering callback query", "error", err)
	}
}

func chatID(conversationID string) (int64, error) {
	frontend, native, ok := notify.SplitConversationID(conversationID)
	if !ok || frontend != Name {
		return 0, fmt.Errorf("not a telegram conversation: %q", conversationID)
	}
	id, err := strconv.ParseInt(native, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing chat id %q: %w", native, err)
	}
	return id, nil
}

// SendText sends an HTML message.
func (f *Frontend) SendText(ctx context.Context, conversationID, text string) error {
	id, err := chatID(conversationID)
	if err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(id, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if _, err := f.api.Send(msg); err != nil {
		return fmt.Errorf("sending message: %w", err)
	}
	return nil
}

// SendChoicePrompt sends text with an inline keyboard, one keyboard row per rows entry.
func (f *Frontend) SendChoicePrompt(ctx context.Context, conversationID, text string, rows [][]notify.Choice) error {
	id, err := chatID(conversationID)
	if err != nil {
		return err
	}
	keyboard := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, c := range row {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(c.Label, c.Token))
		}
		keyboard = append(keyboard, tgbotapi.NewInlineKeyboardRow(buttons...))
	}
	msg := tgbotapi.NewMessage(id, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(keyboard...)
	if _, err := f.api.Send(msg); err != nil {
		return fmt.Errorf("sending choice prompt: %w", err)
	}
	return nil
}

// SendFile uploads a document with an HTML caption.
func (f *Frontend) SendFile(ctx context.Context, conversationID, filePath, caption string) error {
	id, err := chatID(conversationID)
	if err != nil {
		return err
	}
	doc := tgbotapi.NewDocument(id, tgbotapi.FilePath(filePath))
	doc.Caption = caption
	doc.ParseMode = tgbotapi.ModeHTML
	if _, err := f.api.Send(doc); err != nil {
		return fmt.Errorf("sending document: %w", err)
	}
	return nil
}

// SendActivity shows a chat action such as "typing".
func (f *Frontend) SendActivity(ctx context.Context, conversationID string, activity notify.Activity) error {
	id, err := chatID(conversationID)
	if err != nil {
		return err
	}
	action := tgbotapi.ChatTyping
	if activity == notify.ActivityUploadDocument {
		action = tgbotapi.ChatUploadDocument
	}
	if _, err := f.api.Request(tgbotapi.NewChatAction(id, action)); err != nil {
		return fmt.Errorf("sending chat action: %w", err)
	}
	return nil
}

var (
	_ notify.Notifier         = (*Frontend)(nil)
	_ notify.ActivityNotifier = (*Frontend)(nil)
	_ http.Handler            = (*Frontend)(nil)
	_ API                     = (*tgbotapi.BotAPI)(nil)
)
