package rag

import (
	"sync"
	"time"
)

// Conversation 有界对话上下文：追加式轮次列表.
// 生命周期由调用方持有，一个活动会话一个实例，不跨会话共享.
type Conversation struct {
	mu    sync.RWMutex
	turns []Turn
}

// NewConversation 创建空对话.
func NewConversation() *Conversation {
	return &Conversation{}
}

// Append 追加一轮对话。时间戳为空时取当前时间.
func (c *Conversation) Append(role Role, content string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.turns = append(c.turns, Turn{
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	})
}

// AppendTurn 追加已构造的轮次.
func (c *Conversation) AppendTurn(turn Turn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now()
	}
	c.turns = append(c.turns, turn)
}

// Window 返回最近 maxTurns 轮，按时间正序.
// maxTurns <= 0 返回空窗口.
func (c *Conversation) Window(maxTurns int) []Turn {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if maxTurns <= 0 || len(c.turns) == 0 {
		return []Turn{}
	}

	start := len(c.turns) - maxTurns
	if start < 0 {
		start = 0
	}

	window := make([]Turn, len(c.turns)-start)
	copy(window, c.turns[start:])
	return window
}

// Len 返回轮次总数.
func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.turns)
}

// Clear 清空对话.
func (c *Conversation) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.turns = nil
}
