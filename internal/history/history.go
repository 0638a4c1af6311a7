package history

import (
	"sync"
	"time"

	"McpAgent/internal/models"

	"github.com/google/uuid"
)

// ActivityLog 活动日志，只追加，可整体清空
type ActivityLog struct {
	mu      sync.RWMutex
	entries []models.LogEntry
	limit   int
}

// NewActivityLog 创建活动日志，limit <= 0 表示不限制条数
func NewActivityLog(limit int) *ActivityLog {
	return &ActivityLog{limit: limit}
}

// Add 追加一条日志并返回该条目
func (l *ActivityLog) Add(logType models.LogType, message string, data any) models.LogEntry {
	entry := models.LogEntry{
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
		Type:      logType,
		Message:   message,
		Data:      data,
	}

	l.mu.Lock()
	l.entries = append(l.entries, entry)
	if l.limit > 0 && len(l.entries) > l.limit {
		l.entries = append([]models.LogEntry(nil), l.entries[len(l.entries)-l.limit:]...)
	}
	l.mu.Unlock()

	return entry
}

// Entries 返回日志副本
func (l *ActivityLog) Entries() []models.LogEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]models.LogEntry(nil), l.entries...)
}

// Clear 清空日志
func (l *ActivityLog) Clear() {
	l.mu.Lock()
	l.entries = nil
	l.mu.Unlock()
}

// Len 日志条数
func (l *ActivityLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// ChatHistory 聊天记录
type ChatHistory struct {
	mu       sync.RWMutex
	messages []models.ChatMessage
}

// NewChatHistory 创建聊天记录
func NewChatHistory() *ChatHistory {
	return &ChatHistory{}
}

// Append 追加一条消息
func (h *ChatHistory) Append(role models.Role, content string) models.ChatMessage {
	msg := models.ChatMessage{Role: role, Content: content, Timestamp: time.Now()}

	h.mu.Lock()
	h.messages = append(h.messages, msg)
	h.mu.Unlock()

	return msg
}

// Messages 返回消息副本
func (h *ChatHistory) Messages() []models.ChatMessage {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]models.ChatMessage(nil), h.messages...)
}

// Clear 清空聊天记录
func (h *ChatHistory) Clear() {
	h.mu.Lock()
	h.messages = nil
	h.mu.Unlock()
}
