package eventbus

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMemoryBus_FanOut 每个订阅者都收到通知
func TestMemoryBus_FanOut(t *testing.T) {
	bus := NewMemoryBus()
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := bus.SubscribeNotifications(ctx)
	require.NoError(t, err)
	b, err := bus.SubscribeNotifications(ctx)
	require.NoError(t, err)

	n := &Notification{ConnectionID: "c1", Event: "onComplete", Payload: json.RawMessage(`"done"`)}
	require.NoError(t, bus.PublishNotification(ctx, n))

	for _, ch := range []<-chan *Notification{a, b} {
		select {
		case got := <-ch:
			assert.Equal(t, "c1", got.ConnectionID)
			assert.JSONEq(t, `"done"`, string(got.Payload))
		case <-time.After(time.Second):
			t.Fatal("notification not delivered")
		}
	}
}

// TestMemoryBus_CancelClosesChannel 取消订阅后 channel 关闭
func TestMemoryBus_CancelClosesChannel(t *testing.T) {
	bus := NewMemoryBus()
	ctx, cancel := context.WithCancel(context.Background())
	ch, err := bus.SubscribeNotifications(ctx)
	require.NoError(t, err)

	cancel()
	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("channel not closed")
	}
}
