package rag

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversationWindow(t *testing.T) {
	t.Parallel()

	conv := NewConversation()
	for i := 0; i < 10; i++ {
		role := RoleUser
		if i%2 == 1 {
			role = RoleAssistant
		}
		conv.Append(role, fmt.Sprintf("turn-%d", i))
	}

	assert.Equal(t, 10, conv.Len())

	window := conv.Window(3)
	require.Len(t, window, 3)
	assert.Equal(t, "turn-7", window[0].Content)
	assert.Equal(t, "turn-8", window[1].Content)
	assert.Equal(t, "turn-9", window[2].Content)

	// 时间正序
	assert.False(t, window[1].Timestamp.Before(window[0].Timestamp))
}

func TestConversationWindowBounds(t *testing.T) {
	t.Parallel()

	conv := NewConversation()
	conv.Append(RoleUser, "hello")

	assert.Empty(t, conv.Window(0))
	assert.Empty(t, conv.Window(-1))
	assert.Len(t, conv.Window(100), 1)
	assert.Empty(t, NewConversation().Window(3))
}

func TestConversationWindowIsCopy(t *testing.T) {
	t.Parallel()

	conv := NewConversation()
	conv.Append(RoleUser, "original")

	window := conv.Window(1)
	window[0].Content = "mutated"

	assert.Equal(t, "original", conv.Window(1)[0].Content)
}

func TestConversationAppendTurnStampsTime(t *testing.T) {
	t.Parallel()

	conv := NewConversation()
	conv.AppendTurn(Turn{Role: RoleAssistant, Content: "reply"})

	window := conv.Window(1)
	require.Len(t, window, 1)
	assert.False(t, window[0].Timestamp.IsZero())

	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	conv.AppendTurn(Turn{Role: RoleUser, Content: "ask", Timestamp: fixed})
	assert.Equal(t, fixed, conv.Window(1)[0].Timestamp)
}

func TestConversationClear(t *testing.T) {
	t.Parallel()

	conv := NewConversation()
	conv.Append(RoleUser, "a")
	conv.Append(RoleAssistant, "b")
	conv.Clear()

	assert.Zero(t, conv.Len())
	assert.Empty(t, conv.Window(5))
}
