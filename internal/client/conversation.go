package client

import (
	"sync"

	"github.com/huangang/cocode/internal/models"
	"github.com/huangang/cocode/internal/realtime"
	"github.com/huangang/cocode/pkg/logger"
)

// Entry is one displayed chat line.
type Entry struct {
	ID     string
	Sender realtime.Sender
	Text   string
	FromAI bool
}

// Conversation is the local view of a project room. Messages are shown once
// each: the sender's own message is appended on send, and the broadcast echo
// carrying the same id is dropped.
type Conversation struct {
	mu      sync.Mutex
	entries []Entry
	seen    map[string]struct{}
	tree    models.FileTree
	onTree  func(models.FileTree)
}

// NewConversation starts from the project's stored tree. onTree, if set, is
// called outside the lock whenever an AI message replaces the tree.
func NewConversation(tree models.FileTree, onTree func(models.FileTree)) *Conversation {
	if tree == nil {
		tree = models.FileTree{}
	}
	return &Conversation{
		seen:   make(map[string]struct{}),
		tree:   tree.Clone(),
		onTree: onTree,
	}
}

// AppendOwn records a message the local user just sent.
func (c *Conversation) AppendOwn(msg realtime.HumanMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.appendLocked(msg.ID, Entry{ID: msg.ID, Sender: msg.Sender, Text: msg.Text})
}

// Receive applies a broadcast message and reports whether it was new.
// decodeErr is the error Decode returned alongside msg, if any.
func (c *Conversation) Receive(msg realtime.ChatMessage, decodeErr error) bool {
	if msg == nil {
		return false
	}
	if decodeErr != nil {
		logger.Warn().Err(decodeErr).Str("message_id", msg.MessageID()).Msg("AI payload malformed, showing raw text")
	}

	var applied models.FileTree
	c.mu.Lock()
	entry := Entry{ID: msg.MessageID(), Sender: msg.From(), Text: msg.Body()}
	if ai, ok := msg.(realtime.AIMessage); ok {
		entry.FromAI = true
		if ai.HasFileTree() {
			if _, dup := c.seen[entry.ID]; !dup || entry.ID == "" {
				c.tree = ai.FileTree.Clone()
				applied = c.tree.Clone()
			}
		}
	}
	added := c.appendLocked(entry.ID, entry)
	onTree := c.onTree
	c.mu.Unlock()

	if applied != nil && onTree != nil {
		onTree(applied)
	}
	return added
}

func (c *Conversation) appendLocked(id string, e Entry) bool {
	if id != "" {
		if _, ok := c.seen[id]; ok {
			return false
		}
		c.seen[id] = struct{}{}
	}
	c.entries = append(c.entries, e)
	return true
}

// Entries returns a copy of the displayed messages in arrival order.
func (c *Conversation) Entries() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// FileTree returns a copy of the current working tree.
func (c *Conversation) FileTree() models.FileTree {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tree.Clone()
}
