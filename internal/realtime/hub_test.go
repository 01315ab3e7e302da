package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(c *Client) [][]byte {
	var frames [][]byte
	for {
		select {
		case f, ok := <-c.Send:
			if !ok {
				return frames
			}
			frames = append(frames, f)
		default:
			return frames
		}
	}
}

func TestHub_BroadcastReachesEverySubscriberOnce(t *testing.T) {
	hub := NewHub(nil)
	alice := NewClient(hub, nil, "P", Sender{ID: "a", Email: "a@x.com"}, 8)
	bob := NewClient(hub, nil, "P", Sender{ID: "b", Email: "b@x.com"}, 8)
	other := NewClient(hub, nil, "Q", Sender{ID: "c", Email: "c@x.com"}, 8)
	hub.Join(alice)
	hub.Join(bob)
	hub.Join(other)

	msg := NewHumanMessage("", alice.User, "hi")
	require.NoError(t, hub.Publish(context.Background(), "P", msg))

	bobFrames := drain(bob)
	require.Len(t, bobFrames, 1)
	pm, err := DecodeFrame(bobFrames[0])
	require.NoError(t, err)
	assert.Equal(t, "hi", pm.Message)
	assert.Equal(t, msg.ID, pm.ID)
	assert.Equal(t, "a@x.com", pm.Sender.Email)

	// the sender receives the echo; clients dedupe it by message id
	assert.Len(t, drain(alice), 1)
	assert.Empty(t, drain(other))
}

func TestHub_UnregisterClosesSendAndEmptiesRoom(t *testing.T) {
	hub := NewHub(nil)
	c := NewClient(hub, nil, "P", Sender{ID: "a"}, 1)
	hub.Join(c)
	assert.Equal(t, 1, hub.RoomSize("P"))

	hub.UnregisterClient(c)
	hub.UnregisterClient(c)
	assert.Equal(t, 0, hub.RoomSize("P"))
	assert.Equal(t, 0, hub.ClientCount())

	_, ok := <-c.Send
	assert.False(t, ok, "send channel should be closed")
	assert.False(t, c.TrySend([]byte("late")))
}

func TestHub_CloseDisconnectsEveryClient(t *testing.T) {
	hub := NewHub(nil)
	a := NewClient(hub, nil, "P", Sender{ID: "a"}, 4)
	b := NewClient(hub, nil, "Q", Sender{ID: "b"}, 4)
	hub.Join(a)
	hub.Join(b)

	require.NoError(t, hub.Close())
	assert.Equal(t, 0, hub.ClientCount())
	for _, c := range []*Client{a, b} {
		_, ok := <-c.Send
		assert.False(t, ok, "send channel should be closed")
	}
	require.NoError(t, hub.Publish(context.Background(), "P", NewHumanMessage("", Sender{ID: "a"}, "late")))
	hub.UnregisterClient(a)
}

func TestHub_FullBufferDropsInsteadOfBlocking(t *testing.T) {
	hub := NewHub(nil)
	slow := NewClient(hub, nil, "P", Sender{ID: "a"}, 1)
	hub.Join(slow)

	for i := 0; i < 3; i++ {
		require.NoError(t, hub.Publish(context.Background(), "P", NewHumanMessage("", Sender{ID: "b"}, "spam")))
	}
	assert.Len(t, drain(slow), 1)
}

func TestHub_RedisBusFanOutAcrossHubs(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hubA := NewHub(NewRedisBus(rdb))
	hubB := NewHub(NewRedisBus(rdb))
	require.NoError(t, hubA.Start(ctx))
	require.NoError(t, hubB.Start(ctx))

	onA := NewClient(hubA, nil, "P", Sender{ID: "a"}, 8)
	onB := NewClient(hubB, nil, "P", Sender{ID: "b"}, 8)
	hubA.Join(onA)
	hubB.Join(onB)

	require.NoError(t, hubA.Publish(ctx, "P", NewAIMessage("done", nil)))

	select {
	case frame := <-onB.Send:
		pm, err := DecodeFrame(frame)
		require.NoError(t, err)
		assert.Equal(t, AISenderID, pm.Sender.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("frame never reached the other instance")
	}

	select {
	case <-onA.Send:
	case <-time.After(2 * time.Second):
		t.Fatal("frame never came back to the publishing instance")
	}
}
