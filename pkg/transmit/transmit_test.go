package transmit

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/littleblus/breezechat/pkg/types"
)

type fakeUserClient struct {
	info types.UserInfo
	err  error
}

func (f *fakeUserClient) GetUserInfo(_ context.Context, _, _ string) (types.UserInfo, error) {
	return f.info, f.err
}

type fakeSessionStore struct {
	members map[string][]string
	err     error
}

func (f *fakeSessionStore) ListSessionMembers(_ context.Context, sessionID string) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.members[sessionID], nil
}

type fakePublisher struct {
	published [][]byte
	exchange  string
	routing   string
	ok        bool
}

func (f *fakePublisher) Publish(exchange, routingKey string, payload []byte) bool {
	f.exchange, f.routing = exchange, routingKey
	f.published = append(f.published, payload)
	return f.ok
}

// TestTransmitFanOut covers scenario S4: session s1 has members {uA,uB};
// transmitting as uA yields a success response whose target list is a
// permutation of {uA,uB}, a 16-hex message id, a timestamp within ±2s of
// wall clock, and exactly one broker payload equal to the returned
// envelope serialized.
func TestTransmitFanOut(t *testing.T) {
	users := &fakeUserClient{info: types.UserInfo{UserID: "uA", Nickname: "alice"}}
	sessions := &fakeSessionStore{members: map[string][]string{"s1": {"uA", "uB"}}}
	pub := &fakePublisher{ok: true}

	svc := &Service{Users: users, Sessions: sessions, Pub: pub, Exchange: "breezechat"}

	before := time.Now()
	res := svc.GetTransmitTarget(context.Background(), "r2", "uA", "s1", types.Message{
		Type:    types.MessageTypeString,
		Content: "hi",
	})
	after := time.Now()

	require.True(t, res.Success)
	assert.Equal(t, "r2", res.RequestID)
	assert.ElementsMatch(t, []string{"uA", "uB"}, res.TargetIDList)

	assert.Len(t, res.Envelope.MessageID, 16)
	assert.Regexp(t, "^[0-9a-f]{16}$", res.Envelope.MessageID)

	ts := time.Unix(res.Envelope.Timestamp, 0)
	assert.WithinDuration(t, before, ts, 2*time.Second)
	assert.WithinDuration(t, after, ts, 2*time.Second)

	require.Len(t, pub.published, 1)
	var onWire types.MessageInfo
	require.NoError(t, json.Unmarshal(pub.published[0], &onWire))

	// Strip the monotonic reading time.Now() attaches and normalize the
	// location to UTC, neither of which a JSON round-trip reproduces (a zero
	// local offset decodes as UTC, not Local), before comparing the two
	// envelopes.
	expected := res.Envelope
	expected.Message.CreateTime = expected.Message.CreateTime.Round(0).UTC()
	onWire.Message.CreateTime = onWire.Message.CreateTime.Round(0).UTC()
	assert.Equal(t, expected, onWire)
	assert.Equal(t, "breezechat", pub.exchange)
}

func TestTransmitFailsWhenUserServiceUnavailable(t *testing.T) {
	users := &fakeUserClient{err: errors.New("dial failed")}
	sessions := &fakeSessionStore{members: map[string][]string{"s1": {"uA", "uB"}}}
	pub := &fakePublisher{ok: true}

	svc := &Service{Users: users, Sessions: sessions, Pub: pub, Exchange: "breezechat"}
	res := svc.GetTransmitTarget(context.Background(), "r1", "uA", "s1", types.Message{Type: types.MessageTypeString})

	assert.False(t, res.Success)
	assert.Equal(t, "获取user服务失败", res.ErrMsg)
	assert.Empty(t, pub.published)
}

func TestTransmitFailsWhenPublishRejected(t *testing.T) {
	users := &fakeUserClient{info: types.UserInfo{UserID: "uA"}}
	sessions := &fakeSessionStore{members: map[string][]string{"s1": {"uA", "uB"}}}
	pub := &fakePublisher{ok: false}

	svc := &Service{Users: users, Sessions: sessions, Pub: pub, Exchange: "breezechat"}
	res := svc.GetTransmitTarget(context.Background(), "r1", "uA", "s1", types.Message{Type: types.MessageTypeString})

	assert.False(t, res.Success)
	assert.Equal(t, "消息发布失败", res.ErrMsg)
}

// TestTransmitDoesNotDeduplicateMessageIDs covers spec.md §4.9's idempotence
// note: identical requests produce distinct message_ids.
func TestTransmitDoesNotDeduplicateMessageIDs(t *testing.T) {
	users := &fakeUserClient{info: types.UserInfo{UserID: "uA"}}
	sessions := &fakeSessionStore{members: map[string][]string{"s1": {"uA", "uB"}}}
	pub := &fakePublisher{ok: true}
	svc := &Service{Users: users, Sessions: sessions, Pub: pub, Exchange: "breezechat"}

	msg := types.Message{Type: types.MessageTypeString, Content: "hi"}
	res1 := svc.GetTransmitTarget(context.Background(), "r1", "uA", "s1", msg)
	res2 := svc.GetTransmitTarget(context.Background(), "r1", "uA", "s1", msg)

	require.True(t, res1.Success)
	require.True(t, res2.Success)
	assert.NotEqual(t, res1.Envelope.MessageID, res2.Envelope.MessageID)
}
