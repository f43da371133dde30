package notify_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hugh/zerogap/internal/notify"
	"github.com/hugh/zerogap/internal/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"
)

type recordingSink struct {
	mu   sync.Mutex
	seen []notify.Notification
	err  error
}

func (s *recordingSink) Deliver(_ context.Context, n notify.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = append(s.seen, n)
	return s.err
}

func newDispatcher(sinks ...notify.Sink) (*notify.Dispatcher, *testingclock.FakeClock) {
	clk := testingclock.NewFakeClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	return notify.NewDispatcher(clk, 5*time.Second, testutil.NewTestLogger(), sinks...), clk
}

func visible(d *notify.Dispatcher) bool {
	_, ok := d.Current()
	return ok
}

func TestDispatcher_AutoDismiss(t *testing.T) {
	d, clk := newDispatcher()

	n := d.Success("Scan completed! 3 vulnerabilities detected.")
	assert.Equal(t, notify.KindSuccess, n.Kind)
	assert.Equal(t, clk.Now(), n.ShownAt)

	current, ok := d.Current()
	require.True(t, ok)
	assert.Equal(t, n.ID, current.ID)

	clk.Step(4999 * time.Millisecond)
	assert.True(t, visible(d))

	clk.Step(time.Millisecond)
	assert.Eventually(t, func() bool { return !visible(d) }, time.Second, 5*time.Millisecond)
}

func TestDispatcher_ReplaceRestartsTimer(t *testing.T) {
	d, clk := newDispatcher()

	d.Success("first")
	clk.Step(4 * time.Second)

	second := d.Error("second")
	clk.Step(4 * time.Second)

	current, ok := d.Current()
	require.True(t, ok)
	assert.Equal(t, second.ID, current.ID)
	assert.Equal(t, "second", current.Message)

	clk.Step(time.Second)
	assert.Eventually(t, func() bool { return !visible(d) }, time.Second, 5*time.Millisecond)
}

func TestDispatcher_Dismiss(t *testing.T) {
	d, clk := newDispatcher()

	assert.False(t, d.Dismiss())

	d.Success("hello")
	assert.True(t, d.Dismiss())
	assert.False(t, visible(d))

	// a later notification is unaffected by the cancelled timer
	next := d.Success("again")
	clk.Step(time.Second)
	current, ok := d.Current()
	require.True(t, ok)
	assert.Equal(t, next.ID, current.ID)
}

func TestDispatcher_Close(t *testing.T) {
	sink := &recordingSink{}
	d, _ := newDispatcher(sink)

	d.Success("before")
	d.Close()
	assert.False(t, visible(d))

	d.Success("after")
	assert.False(t, visible(d))
	assert.Len(t, sink.seen, 1)
}

func TestDispatcher_SinksReceiveEveryNotification(t *testing.T) {
	failing := &recordingSink{err: errors.New("down")}
	ok := &recordingSink{}
	d, _ := newDispatcher(failing, ok)

	d.Success("one")
	d.Error("two")

	require.Len(t, ok.seen, 2)
	assert.Equal(t, "one", ok.seen[0].Message)
	assert.Equal(t, notify.KindError, ok.seen[1].Kind)
	assert.Len(t, failing.seen, 2)
}

func TestWriterSink(t *testing.T) {
	var buf bytes.Buffer
	sink := notify.NewWriterSink(&buf)

	require.NoError(t, sink.Deliver(context.Background(), notify.Notification{Kind: notify.KindSuccess, Message: "done"}))
	require.NoError(t, sink.Deliver(context.Background(), notify.Notification{Kind: notify.KindError, Message: "oops"}))

	assert.Equal(t, "[+] done\n[!] oops\n", buf.String())
}

func TestLogSink(t *testing.T) {
	sink := notify.NewLogSink(testutil.NewTestLogger())
	assert.NoError(t, sink.Deliver(context.Background(), notify.Notification{Kind: notify.KindError, Message: "x"}))
}

type fakePublisher struct {
	channel string
	payload []byte
	err     error
}

func (p *fakePublisher) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	p.channel = channel
	p.payload, _ = message.([]byte)
	return redis.NewIntResult(1, p.err)
}

func TestRedisSink(t *testing.T) {
	pub := &fakePublisher{}
	sink := notify.NewRedisSink(pub, "")

	n := notify.Notification{Kind: notify.KindSuccess, Message: "Scan completed! 3 vulnerabilities detected."}
	require.NoError(t, sink.Deliver(context.Background(), n))
	assert.Equal(t, notify.DefaultRedisChannel, pub.channel)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(pub.payload, &got))
	assert.Equal(t, "success", got["type"])
	assert.Equal(t, n.Message, got["message"])

	pub.err = errors.New("connection reset")
	err := sink.Deliver(context.Background(), n)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}
