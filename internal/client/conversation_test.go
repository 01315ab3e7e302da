package client

import (
	"testing"

	"github.com/huangang/cocode/internal/models"
	"github.com/huangang/cocode/internal/realtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversation_SenderEchoShownOnce(t *testing.T) {
	conv := NewConversation(nil, nil)
	me := realtime.Sender{ID: "u1", Email: "a@x.com"}

	msg := realtime.NewHumanMessage("", me, "hi")
	conv.AppendOwn(msg)

	frame, err := realtime.EncodeFrame(msg)
	require.NoError(t, err)
	pm, err := realtime.DecodeFrame(frame)
	require.NoError(t, err)
	echo, err := realtime.Decode(pm)
	require.NoError(t, err)

	assert.False(t, conv.Receive(echo, nil), "echo of an own message is dropped")

	other := realtime.NewHumanMessage("", realtime.Sender{ID: "u2", Email: "b@x.com"}, "hello")
	assert.True(t, conv.Receive(other, nil))

	entries := conv.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "hi", entries[0].Text)
	assert.Equal(t, "hello", entries[1].Text)
}

func TestConversation_AIFileTreeApplied(t *testing.T) {
	var applied []models.FileTree
	conv := NewConversation(models.FileTree{"old.js": "1"}, func(tree models.FileTree) {
		applied = append(applied, tree)
	})

	reply := realtime.NewAIMessage("here you go", models.FileTree{"app.js": "console.log(1)"})
	assert.True(t, conv.Receive(reply, nil))
	assert.False(t, conv.Receive(reply, nil))

	require.Len(t, applied, 1)
	assert.Equal(t, models.FileTree{"app.js": "console.log(1)"}, applied[0])
	assert.Equal(t, models.FileTree{"app.js": "console.log(1)"}, conv.FileTree())

	entries := conv.Entries()
	require.Len(t, entries, 1)
	assert.True(t, entries[0].FromAI)
	assert.Equal(t, realtime.AISenderEmail, entries[0].Sender.Email)
}

func TestConversation_MalformedAIPayloadKeptAsText(t *testing.T) {
	called := false
	conv := NewConversation(models.FileTree{"keep.js": "x"}, func(models.FileTree) { called = true })

	msg, err := realtime.Decode(realtime.ProjectMessage{
		ID:      "m1",
		Kind:    realtime.KindAI,
		Message: "not json at all",
		Sender:  realtime.Sender{ID: realtime.AISenderID, Email: realtime.AISenderEmail},
	})
	require.ErrorIs(t, err, realtime.ErrMalformedPayload)

	assert.True(t, conv.Receive(msg, err))
	assert.False(t, called)
	assert.Equal(t, models.FileTree{"keep.js": "x"}, conv.FileTree())
	assert.Equal(t, "not json at all", conv.Entries()[0].Text)

	// later messages still arrive
	assert.True(t, conv.Receive(realtime.NewHumanMessage("", realtime.Sender{ID: "u2"}, "next"), nil))
}
