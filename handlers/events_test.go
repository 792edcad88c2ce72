package handlers

import (
	"bufio"
	"bytes"
	"strings"
	"testing"

	"prompt-guess-game/notify"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVisibleTo(t *testing.T) {
	scored := notify.Event{Type: notify.EventGuessScored, UserID: "u1"}
	rotated := notify.Event{Type: notify.EventRoundRotated}

	assert.True(t, visibleTo(scored, "u1"))
	assert.False(t, visibleTo(scored, "u2"))
	assert.True(t, visibleTo(rotated, "u2"))
}

func TestWriteEvent(t *testing.T) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)

	require.NoError(t, writeEvent(w, notify.Event{Type: notify.EventRoundRotated, RoundID: "r9"}))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "event: round_rotated\ndata: {"))
	assert.Contains(t, out, `"round_id":"r9"`)
	assert.True(t, strings.HasSuffix(out, "\n\n"))
}
