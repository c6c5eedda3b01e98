// ABOUTME: Message catalog holding every user-facing string the bot sends
// ABOUTME: Embedded TOML defaults with an optional override file and {placeholder} substitution

package messages

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

//go:embed catalog.toml
var defaultCatalog string

// Keys used by the bot. The section name and the key are joined with a dot.
const (
	Welcome            = "commands.welcome"
	WelcomeDefaultName = "commands.welcome_default_name"
	Help               = "commands.help"
	UnknownCommand     = "commands.unknown"

	NoSession          = "dialogue.no_session"
	Timeout            = "dialogue.timeout"
	Cancelled          = "dialogue.cancelled"
	NothingToCancel    = "dialogue.nothing_to_cancel"
	AskUniversity      = "dialogue.ask_university"
	AskDirection       = "dialogue.ask_direction"
	AskGroup           = "dialogue.ask_group"
	AskPlacement       = "dialogue.ask_placement"
	PlacementFirst     = "dialogue.placement_first"
	PlacementLast      = "dialogue.placement_last"
	PlacementFirstName = "dialogue.placement_first_name"
	PlacementLastName  = "dialogue.placement_last_name"
	PlacementChosen    = "dialogue.placement_chosen"
	AskTopic           = "dialogue.ask_topic"
	AskPages           = "dialogue.ask_pages"
	AskFormat          = "dialogue.ask_format"
	FormatPPTX         = "dialogue.format_pptx"
	FormatDOCX         = "dialogue.format_docx"
	FormatPDF          = "dialogue.format_pdf"
	UniversityTooShort = "dialogue.university_too_short"
	DirectionTooShort  = "dialogue.direction_too_short"
	GroupTooShort      = "dialogue.group_too_short"
	TopicTooShort      = "dialogue.topic_too_short"
	TopicTooLong       = "dialogue.topic_too_long"
	PagesInvalid       = "dialogue.pages_invalid"
	Summary            = "dialogue.summary"

	Progress     = "pipeline.progress"
	ContentReady = "pipeline.content_ready"
	Caption      = "pipeline.caption"
	Done         = "pipeline.done"
	Failed       = "pipeline.failed"

	StudentFallbackName = "document.student_fallback_name"
	InfoTitle           = "document.info_title"
	UniversityLabel     = "document.university"
	DirectionLabel      = "document.direction"
	GroupLabel          = "document.group"
	StudentLabel        = "document.student"
	PageLabel           = "document.page"
	NotesLabel          = "document.notes"
	ImageCredit         = "document.image_credit"
)

// Args fills {placeholders} in a message.
type Args map[string]any

// Catalog is an immutable lookup of message templates.
type Catalog struct {
	entries map[string]string
}

// Default returns the embedded catalog.
func Default() *Catalog {
	c, err := parse(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("embedded message catalog is invalid: %v", err))
	}
	return c
}

// Load returns the embedded catalog with entries from overridePath laid on top.
// An empty path returns the defaults.
func Load(overridePath string) (*Catalog, error) {
	c := Default()
	if overridePath == "" {
		return c, nil
	}

	data, err := os.ReadFile(overridePath)
	if err != nil {
		return nil, fmt.Errorf("reading message catalog: %w", err)
	}
	override, err := parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("parsing message catalog %s: %w", overridePath, err)
	}
	for key, value := range override.entries {
		if _, known := c.entries[key]; !known {
			return nil, fmt.Errorf("message catalog %s: unknown key %q", overridePath, key)
		}
		c.entries[key] = value
	}
	return c, nil
}

func parse(data string) (*Catalog, error) {
	var sections map[string]map[string]string
	if _, err := toml.Decode(data, &sections); err != nil {
		return nil, err
	}
	entries := make(map[string]string)
	for section, values := range sections {
		for key, value := range values {
			entries[section+"."+key] = value
		}
	}
	return &Catalog{entries: entries}, nil
}

// Get returns the raw template for key, or the key itself when missing.
func (c *Catalog) Get(key string) string {
	if v, ok := c.entries[key]; ok {
		return v
	}
	return key
}

// Format returns the template for key with {placeholders} replaced from args.
func (c *Catalog) Format(key string, args Args) string {
	tmpl := c.Get(key)
	if len(args) == 0 {
		return tmpl
	}
	pairs := make([]string, 0, len(args)*2)
	for name, value := range args {
		pairs = append(pairs, "{"+name+"}", fmt.Sprint(value))
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}

// Keys lists every key in the catalog, sorted.
func (c *Catalog) Keys() []string {
	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
