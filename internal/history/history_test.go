package history

import (
	"sync"
	"testing"

	"McpAgent/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActivityLog(t *testing.T) {
	l := NewActivityLog(0)

	first := l.Add(models.LogSystem, "started", nil)
	second := l.Add(models.LogMCPClient, "connected", map[string]any{"server": "math"})
	assert.NotEqual(t, first.ID, second.ID)
	assert.False(t, first.Timestamp.IsZero())

	entries := l.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, models.LogSystem, entries[0].Type)
	assert.Equal(t, "connected", entries[1].Message)

	entries[0].Message = "mutated"
	assert.Equal(t, "started", l.Entries()[0].Message)

	l.Clear()
	assert.Equal(t, 0, l.Len())
	assert.Empty(t, l.Entries())
}

func TestActivityLogLimit(t *testing.T) {
	l := NewActivityLog(2)
	l.Add(models.LogUser, "one", nil)
	l.Add(models.LogUser, "two", nil)
	l.Add(models.LogUser, "three", nil)

	entries := l.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "two", entries[0].Message)
	assert.Equal(t, "three", entries[1].Message)
}

func TestActivityLogConcurrent(t *testing.T) {
	l := NewActivityLog(0)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Add(models.LogLLM, "tick", nil)
			_ = l.Entries()
		}()
	}
	wg.Wait()
	assert.Equal(t, 20, l.Len())
}

func TestChatHistory(t *testing.T) {
	h := NewChatHistory()
	h.Append(models.RoleUser, "what is 2 + 3")
	h.Append(models.RoleAssistant, "5")

	messages := h.Messages()
	require.Len(t, messages, 2)
	assert.Equal(t, models.RoleUser, messages[0].Role)
	assert.Equal(t, "5", messages[1].Content)

	h.Clear()
	assert.Empty(t, h.Messages())
}
