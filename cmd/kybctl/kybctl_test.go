package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omharigupta/datasynth/internal/kyb"
	"github.com/omharigupta/datasynth/internal/workflow"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}

type scriptedInput struct {
	lines []string
}

func (s *scriptedInput) Readline() (string, error) {
	if len(s.lines) == 0 {
		return "", io.EOF
	}
	line := s.lines[0]
	s.lines = s.lines[1:]
	return line, nil
}

func newEngine(t *testing.T) (*workflow.Engine, *kyb.FileStore) {
	t.Helper()
	records, err := kyb.NewFileStore(t.TempDir())
	require.NoError(t, err)
	engine := workflow.New(records, nil, nil,
		workflow.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	return engine, records
}

func TestRunChatConversation(t *testing.T) {
	engine, _ := newEngine(t)
	in := &scriptedInput{lines: []string{"Handmade candles", "/record", "", "ok", "/status", "/quit", "never read"}}
	var out bytes.Buffer

	require.NoError(t, runChat(context.Background(), engine, in, &out))

	got := out.String()
	assert.Contains(t, got, "What do you sell?")
	assert.Contains(t, got, "Great! You make **Handmade candles**")
	assert.Contains(t, got, "record: no record yet")
	assert.Contains(t, got, "Business profile created!")
	assert.Contains(t, got, "status: step 4")
	assert.Contains(t, got, "Goodbye!")
	assert.Equal(t, []string{"never read"}, in.lines)
}

func TestRunChatEndsOnEOF(t *testing.T) {
	engine, _ := newEngine(t)
	var out bytes.Buffer

	require.NoError(t, runChat(context.Background(), engine, &scriptedInput{}, &out))
	assert.Contains(t, out.String(), "Goodbye!")
}

func savedRecord(t *testing.T) string {
	t.Helper()
	_, records := newEngine(t)
	ctx := context.Background()
	handle, err := records.Create(ctx, "sess-1", kyb.BusinessInfo{WhatTheySell: "candles"})
	require.NoError(t, err)
	require.NoError(t, records.Update(ctx, handle, kyb.Patch{
		Objectives:   []string{"grow online sales"},
		WorkflowStep: 4,
	}))
	return handle
}

func TestShowRecap(t *testing.T) {
	path := savedRecord(t)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"show", path})
	t.Cleanup(func() { showYAML = false })

	require.NoError(t, rootCmd.Execute())

	got := out.String()
	assert.Contains(t, got, "=== KYB Record sess-1 ===")
	assert.Contains(t, got, "Status:  active")
	assert.Contains(t, got, "**Business:** candles")
	assert.Contains(t, got, "• grow online sales")
}

func TestShowYAML(t *testing.T) {
	path := savedRecord(t)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"show", "--yaml", path})
	t.Cleanup(func() { showYAML = false })

	require.NoError(t, rootCmd.Execute())

	got := out.String()
	assert.Contains(t, got, "session_id: sess-1\n")
	assert.Contains(t, got, "  what_they_sell: candles\n")
	assert.Contains(t, got, "workflow_step: 4\n")
	assert.Contains(t, got, "- grow online sales\n")
	assert.NotContains(t, got, "{")
}

func TestShowMissingFile(t *testing.T) {
	rootCmd.SetArgs([]string{"show", "/nonexistent/kyb.json"})
	rootCmd.SetOut(io.Discard)
	rootCmd.SetErr(io.Discard)
	assert.Error(t, rootCmd.Execute())
}
