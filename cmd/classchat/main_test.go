package main

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/noah-isme/sma-classroom-api/internal/chatfeed"
	"github.com/noah-isme/sma-classroom-api/internal/models"
)

func TestRenderKeepsRefreshFailuresOffTheTerminal(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	created := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)

	events := make(chan chatfeed.Event, 4)
	events <- chatfeed.Event{Kind: chatfeed.WindowChanged, Messages: []models.ChatMessage{
		{ID: "m1", SenderName: "Bu Sari", Role: models.RoleTeacher, Text: "quiz on friday", CreatedAt: created},
		{ID: "tmp-1", SenderName: "Budi", Role: models.RoleStudent, Text: "ok", CreatedAt: created, Pending: true},
	}}
	events <- chatfeed.Event{Kind: chatfeed.Warning, Err: errors.New("dial tcp: connection refused")}
	events <- chatfeed.Event{Kind: chatfeed.WindowChanged, Messages: []models.ChatMessage{
		{ID: "m1", SenderName: "Bu Sari", Role: models.RoleTeacher, Text: "quiz on friday", CreatedAt: created},
	}}
	events <- chatfeed.Event{Kind: chatfeed.LockChanged, Locked: true}
	close(events)

	var out bytes.Buffer
	render(&out, events, zap.New(core))

	text := out.String()
	assert.Equal(t, 1, bytes.Count(out.Bytes(), []byte("quiz on friday")))
	assert.NotContains(t, text, "ok\n")
	assert.NotContains(t, text, "connection refused")
	assert.Contains(t, text, "-- chat locked --")

	warnings := logs.FilterMessage("chat refresh failed").All()
	if assert.Len(t, warnings, 1) {
		assert.Equal(t, zapcore.DebugLevel, warnings[0].Level)
	}
}
