package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSession(t *testing.T) {
	s := NewSession()

	assert.Equal(t, StepGreeting, s.Step)
	assert.NotEmpty(t, s.SessionID)
	assert.False(t, s.HasBackingRecord())
	assert.False(t, s.Complete())
	assert.NotEqual(t, s.SessionID, NewSession().SessionID)
}

func TestCloneIsDeep(t *testing.T) {
	s := NewSession()
	s.Knowledge.Objectives = append(s.Knowledge.Objectives, "grow")

	c := s.Clone()
	c.Knowledge.Objectives[0] = "changed"
	c.Knowledge.Objectives = append(c.Knowledge.Objectives, "more")
	c.Step = StepComplete

	assert.Equal(t, []string{"grow"}, s.Knowledge.Objectives)
	assert.Equal(t, StepGreeting, s.Step)
	assert.Nil(t, (*Session)(nil).Clone())
}

func TestEmptyKnowledgeSerializesAsArrays(t *testing.T) {
	data, err := json.Marshal(NewKnowledgeRecord().Snapshot())
	require.NoError(t, err)

	assert.JSONEq(t, `{"business_understanding":[],"objectives":[],"constraints":[],"summary":""}`, string(data))
}

func TestRecentMessages(t *testing.T) {
	history := []StoredMessage{
		{Role: RoleUser, Content: "1"},
		{Role: RoleAssistant, Content: "2"},
		{Role: RoleUser, Content: "3"},
	}

	assert.Nil(t, RecentMessages(history, 0))
	assert.Equal(t, history, RecentMessages(history, 5))
	assert.Equal(t, history[1:], RecentMessages(history, 2))

	got := RecentMessages(history, 1)
	got[0].Content = "changed"
	assert.Equal(t, "3", history[2].Content)
}
