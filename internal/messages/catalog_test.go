// ABOUTME: Tests for the message catalog
// ABOUTME: Checks every key used by the bot exists and that overrides and placeholders work

package messages

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_HasEveryKey(t *testing.T) {
	c := Default()
	keys := []string{
		Welcome, WelcomeDefaultName, Help, UnknownCommand,
		NoSession, Timeout, Cancelled, NothingToCancel,
		AskUniversity, AskDirection, AskGroup, AskPlacement,
		PlacementFirst, PlacementLast, PlacementFirstName, PlacementLastName, PlacementChosen,
		AskTopic, AskPages, AskFormat, FormatPPTX, FormatDOCX, FormatPDF,
		UniversityTooShort, DirectionTooShort, GroupTooShort, TopicTooShort, TopicTooLong, PagesInvalid,
		Summary, Progress, ContentReady, Caption, Done, Failed,
		StudentFallbackName, InfoTitle, UniversityLabel, DirectionLabel, GroupLabel, StudentLabel,
		PageLabel, NotesLabel, ImageCredit,
	}
	for _, key := range keys {
		assert.NotEqual(t, key, c.Get(key), "missing catalog key %s", key)
	}
}

func TestFormat(t *testing.T) {
	c := Default()

	got := c.Format(PagesInvalid, Args{"min": 3, "max": 50})
	assert.Equal(t, "❌ Noto'g'ri qiymat!\n\n3 dan 50 gacha raqam kiriting:", got)

	welcome := c.Format(Welcome, Args{"name": "Ali"})
	assert.True(t, strings.HasPrefix(welcome, "👋 Assalomu alaykum, Ali!"))
}

func TestFormat_UnknownPlaceholderLeftAlone(t *testing.T) {
	c := Default()
	got := c.Format(AskPages, Args{"min": 3})
	assert.Contains(t, got, "(3-{max} orasida)")
}

func TestGet_MissingKeyReturnsKey(t *testing.T) {
	assert.Equal(t, "nope.nothing", Default().Get("nope.nothing"))
}

func TestLoad_Override(t *testing.T) {
	path := filepath.Join(t.TempDir(), "messages.toml")
	require.NoError(t, os.WriteFile(path, []byte("[commands]\nunknown = \"Unknown command, try /help\"\n"), 0644))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Unknown command, try /help", c.Get(UnknownCommand))
	// untouched keys keep their defaults
	assert.Equal(t, Default().Get(Help), c.Get(Help))
}

func TestLoad_OverrideUnknownKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "messages.toml")
	require.NoError(t, os.WriteFile(path, []byte("[commands]\nunknwn = \"typo\"\n"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_EmptyPath(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)
	assert.NotEmpty(t, c.Keys())
}
