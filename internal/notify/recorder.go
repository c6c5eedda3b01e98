// ABOUTME: In-memory Notifier that records every outbound message
// ABOUTME: Used by dialogue, pipeline and bot tests in place of a real frontend

package notify

import (
	"context"
	"sync"
)

// Sent is one recorded outbound message.
type Sent struct {
	Kind           string // "text", "choice", "file" or "activity"
	ConversationID string
	Text           string
	Rows           [][]Choice
	FilePath       string
	Activity       Activity
}

// Recorder records messages instead of delivering them.
// FileErr, when set, is returned from SendFile.
type Recorder struct {
	mu      sync.Mutex
	sent    []Sent
	FileErr error
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) record(s Sent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, s)
}

// SendText records a text message.
func (r *Recorder) SendText(ctx context.Context, conversationID, text string) error {
	r.record(Sent{Kind: "text", ConversationID: conversationID, Text: text})
	return nil
}

// SendChoicePrompt records a prompt with buttons.
func (r *Recorder) SendChoicePrompt(ctx context.Context, conversationID, text string, rows [][]Choice) error {
	r.record(Sent{Kind: "choice", ConversationID: conversationID, Text: text, Rows: rows})
	return nil
}

// SendFile records a file delivery, or fails with FileErr.
func (r *Recorder) SendFile(ctx context.Context, conversationID, filePath, caption string) error {
	r.mu.Lock()
	err := r.FileErr
	r.mu.Unlock()
	if err != nil {
		return err
	}
	r.record(Sent{Kind: "file", ConversationID: conversationID, Text: caption, FilePath: filePath})
	return nil
}

// SendActivity records an activity indicator.
func (r *Recorder) SendActivity(ctx context.Context, conversationID string, activity Activity) error {
	r.record(Sent{Kind: "activity", ConversationID: conversationID, Activity: activity})
	return nil
}

// SetFileErr changes the error SendFile returns.
func (r *Recorder) SetFileErr(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.FileErr = err
}

// Sent returns a copy of everything recorded so far.
func (r *Recorder) Sent() []Sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Sent, len(r.sent))
	copy(out, r.sent)
	return out
}

// Last returns the most recent message, or a zero Sent.
func (r *Recorder) Last() Sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.sent) == 0 {
		return Sent{}
	}
	return r.sent[len(r.sent)-1]
}

// Files returns only the recorded file deliveries.
func (r *Recorder) Files() []Sent {
	var files []Sent
	for _, s := range r.Sent() {
		if s.Kind == "file" {
			files = append(files, s)
		}
	}
	return files
}

// Reset forgets everything recorded.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = nil
}

var (
	_ Notifier         = (*Recorder)(nil)
	_ ActivityNotifier = (*Recorder)(nil)
)
