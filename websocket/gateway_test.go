package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"doc-collab/backend/metrics"
	"doc-collab/backend/mocks"
	"doc-collab/backend/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type gatewayFixture struct {
	gateway *Gateway
	rooms   *RoomManager
	store   *mocks.MockMessageStore
	users   *mocks.MockUserLookup
	metrics *metrics.Metrics
	sinks   map[string]*recordingSink
}

func newGatewayFixture(t *testing.T, cfg GatewayConfig) *gatewayFixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	f := &gatewayFixture{
		store:   mocks.NewMockMessageStore(ctrl),
		users:   mocks.NewMockUserLookup(ctrl),
		metrics: metrics.NewMetrics(),
		sinks:   make(map[string]*recordingSink),
	}
	registry := NewConnectionRegistry()
	f.rooms = NewRoomManager(registry)
	cfg.Metrics = f.metrics
	f.gateway = NewGateway(registry, f.rooms, NewRelay(f.store, f.users, RelayConfig{MaxLength: 100}), cfg)
	return f
}

func (f *gatewayFixture) connect(t *testing.T, connID, userID string) *recordingSink {
	t.Helper()
	sink := &recordingSink{}
	require.NoError(t, f.gateway.Connect(connID, userID, sink))
	f.sinks[connID] = sink
	return sink
}

func (f *gatewayFixture) join(t *testing.T, connID, userID, documentID string) {
	t.Helper()
	reply := f.gateway.Dispatch(context.Background(), connID, JoinDocument{DocumentID: documentID, UserID: userID})
	require.Nil(t, reply.Event)
	require.Equal(t, StateInRoom, reply.State)
}

func TestGatewayConnectRejectsDuplicateIDs(t *testing.T) {
	f := newGatewayFixture(t, GatewayConfig{})
	f.connect(t, "a", "u1")

	assert.ErrorIs(t, f.gateway.Connect("a", "u2", &recordingSink{}), ErrDuplicateConnection)
	assert.Equal(t, StateConnected, f.gateway.State("a"))
}

func TestGatewayJoinErrorsKeepState(t *testing.T) {
	tests := []struct {
		name string
		ev   JoinDocument
	}{
		{name: "missing user", ev: JoinDocument{DocumentID: "doc1"}},
		{name: "other user", ev: JoinDocument{DocumentID: "doc1", UserID: "u2"}},
		{name: "missing document", ev: JoinDocument{UserID: "u1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newGatewayFixture(t, GatewayConfig{})
			f.connect(t, "a", "u1")

			reply := f.gateway.Dispatch(context.Background(), "a", tt.ev)

			require.NotNil(t, reply.Event)
			assert.Equal(t, models.EventError, reply.Event.Name)
			assert.Equal(t, models.ErrorTypeJoin, reply.Event.Data.(models.ErrorPayload).Type)
			assert.Equal(t, StateConnected, reply.State)
			assert.Zero(t, f.rooms.RoomCount())
			assert.EqualValues(t, 1, f.metrics.Snapshot()["join_errors"])
		})
	}
}

func TestGatewayMessageReachesEveryMember(t *testing.T) {
	f := newGatewayFixture(t, GatewayConfig{})
	a := f.connect(t, "a", "u1")
	b := f.connect(t, "b", "u2")
	f.join(t, "a", "u1", "doc1")
	f.join(t, "b", "u2", "doc1")
	a.reset()

	created := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)
	f.store.EXPECT().CreateMessage(gomock.Any(), "doc1", "u1", "hello").
		Return(&models.Message{ID: "m1", DocumentID: "doc1", UserID: "u1", Content: "hello", CreatedAt: created}, nil)
	f.users.EXPECT().GetUserByID(gomock.Any(), "u1").Return(&models.User{ID: "u1", Name: "Ada", Role: "owner"}, nil)

	reply := f.gateway.Dispatch(context.Background(), "a", SendMessage{DocumentID: "doc1", Content: "hello", UserID: "u1"})
	assert.Nil(t, reply.Event)
	assert.Equal(t, StateInRoom, reply.State)

	for name, sink := range map[string]*recordingSink{"a": a, "b": b} {
		require.Equal(t, []string{models.EventNewMessage}, sink.events(), "member %s", name)
		msg := decodeData[models.Message](t, sink.last(t))
		assert.Equal(t, "m1", msg.ID)
		assert.Equal(t, "hello", msg.Content)
		assert.Equal(t, "Ada", msg.Author.Name)
		assert.True(t, created.Equal(msg.CreatedAt))
	}
	assert.EqualValues(t, 1, f.metrics.Snapshot()["messages_total"])
}

func TestGatewaySendDefaultsToCurrentDocument(t *testing.T) {
	f := newGatewayFixture(t, GatewayConfig{})
	a := f.connect(t, "a", "u1")
	f.join(t, "a", "u1", "doc1")

	f.store.EXPECT().CreateMessage(gomock.Any(), "doc1", "u1", "hi").
		Return(&models.Message{ID: "m1", DocumentID: "doc1", UserID: "u1", Content: "hi"}, nil)
	f.users.EXPECT().GetUserByID(gomock.Any(), "u1").Return(&models.User{ID: "u1"}, nil)

	reply := f.gateway.Dispatch(context.Background(), "a", SendMessage{Content: "hi"})
	assert.Nil(t, reply.Event)
	assert.Equal(t, []string{models.EventNewMessage}, a.events())
}

func TestGatewaySendRejections(t *testing.T) {
	tests := []struct {
		name      string
		join      bool
		ev        SendMessage
		wantState ConnState
	}{
		{name: "not joined", ev: SendMessage{DocumentID: "doc1", Content: "hi"}, wantState: StateConnected},
		{name: "other document", join: true, ev: SendMessage{DocumentID: "doc2", Content: "hi"}, wantState: StateInRoom},
		{name: "impersonation", join: true, ev: SendMessage{DocumentID: "doc1", Content: "hi", UserID: "u2"}, wantState: StateInRoom},
		{name: "empty content", join: true, ev: SendMessage{DocumentID: "doc1", Content: "  "}, wantState: StateInRoom},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newGatewayFixture(t, GatewayConfig{})
			f.store.EXPECT().CreateMessage(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
			a := f.connect(t, "a", "u1")
			b := f.connect(t, "b", "u2")
			if tt.join {
				f.join(t, "a", "u1", "doc1")
			}
			f.join(t, "b", "u2", "doc1")
			a.reset()
			b.reset()

			reply := f.gateway.Dispatch(context.Background(), "a", tt.ev)

			require.NotNil(t, reply.Event)
			assert.Equal(t, models.ErrorTypeMessage, reply.Event.Data.(models.ErrorPayload).Type)
			assert.Equal(t, tt.wantState, reply.State)
			assert.Empty(t, a.events())
			assert.Empty(t, b.events())
		})
	}
}

func TestGatewayPersistenceFailureOnlyTellsSender(t *testing.T) {
	f := newGatewayFixture(t, GatewayConfig{})
	a := f.connect(t, "a", "u1")
	b := f.connect(t, "b", "u2")
	f.join(t, "a", "u1", "doc1")
	f.join(t, "b", "u2", "doc1")
	a.reset()

	f.store.EXPECT().CreateMessage(gomock.Any(), "doc1", "u1", "x").Return(nil, errors.New("connection refused"))

	reply := f.gateway.Dispatch(context.Background(), "a", SendMessage{DocumentID: "doc1", Content: "x"})

	require.NotNil(t, reply.Event)
	assert.Equal(t, models.ErrorPayload{Type: models.ErrorTypeMessage, Message: "Error sending the message"}, reply.Event.Data)
	assert.Equal(t, StateInRoom, reply.State)
	assert.Empty(t, a.events())
	assert.Empty(t, b.events())
	assert.EqualValues(t, 1, f.metrics.Snapshot()["message_errors"])
}

func TestGatewaySendTimeout(t *testing.T) {
	f := newGatewayFixture(t, GatewayConfig{OperationTimeout: 20 * time.Millisecond})
	f.connect(t, "a", "u1")
	f.join(t, "a", "u1", "doc1")

	f.store.EXPECT().CreateMessage(gomock.Any(), "doc1", "u1", "slow").
		DoAndReturn(func(ctx context.Context, _, _, _ string) (*models.Message, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		})

	reply := f.gateway.Dispatch(context.Background(), "a", SendMessage{DocumentID: "doc1", Content: "slow"})

	require.NotNil(t, reply.Event)
	assert.Equal(t, models.ErrorTypeTimeout, reply.Event.Data.(models.ErrorPayload).Type)
	assert.Equal(t, StateInRoom, reply.State)
}

func TestGatewayRateLimit(t *testing.T) {
	f := newGatewayFixture(t, GatewayConfig{Limiter: NewRateLimiter(1, time.Minute)})
	f.connect(t, "a", "u1")
	f.join(t, "a", "u1", "doc1")

	f.store.EXPECT().CreateMessage(gomock.Any(), "doc1", "u1", "one").
		Return(&models.Message{ID: "m1", DocumentID: "doc1", UserID: "u1", Content: "one"}, nil)
	f.users.EXPECT().GetUserByID(gomock.Any(), "u1").Return(&models.User{ID: "u1"}, nil)

	reply := f.gateway.Dispatch(context.Background(), "a", SendMessage{Content: "one"})
	require.Nil(t, reply.Event)

	reply = f.gateway.Dispatch(context.Background(), "a", SendMessage{Content: "two"})
	require.NotNil(t, reply.Event)
	assert.Contains(t, reply.Event.Data.(models.ErrorPayload).Message, "too quickly")
}

func TestGatewayRetargetNotifiesBothRooms(t *testing.T) {
	f := newGatewayFixture(t, GatewayConfig{})
	f.connect(t, "a", "u1")
	b := f.connect(t, "b", "u2")
	c := f.connect(t, "c", "u3")
	f.join(t, "a", "u1", "doc1")
	f.join(t, "b", "u2", "doc1")
	f.join(t, "c", "u3", "doc2")
	b.reset()
	c.reset()

	f.join(t, "a", "u1", "doc2")

	require.Equal(t, []string{models.EventUserLeft}, b.events())
	assert.Equal(t, "u1", decodeData[models.PresencePayload](t, b.last(t)).UserID)
	require.Equal(t, []string{models.EventUserJoined}, c.events())
	assert.Equal(t, "u1", decodeData[models.PresencePayload](t, c.last(t)).UserID)
}

func TestGatewayDisconnectIsIdempotent(t *testing.T) {
	f := newGatewayFixture(t, GatewayConfig{})
	f.connect(t, "a", "u1")
	b := f.connect(t, "b", "u2")
	f.join(t, "a", "u1", "doc1")
	f.join(t, "b", "u2", "doc1")
	b.reset()

	assert.True(t, f.gateway.Disconnect("a"))
	assert.False(t, f.gateway.Disconnect("a"))

	assert.Equal(t, []string{models.EventUserLeft}, b.events())
	assert.Equal(t, StateDisconnected, f.gateway.State("a"))
	assert.Equal(t, []string{"u2"}, f.rooms.PresentUsers("doc1"))
	assert.EqualValues(t, 1, f.metrics.Snapshot()["active_connections"])

	reply := f.gateway.Dispatch(context.Background(), "a", SendMessage{Content: "late"})
	assert.Equal(t, StateDisconnected, reply.State)
	assert.Nil(t, reply.Event)
}

func TestGatewayLastMemberLeavingRemovesRoom(t *testing.T) {
	f := newGatewayFixture(t, GatewayConfig{})
	f.connect(t, "a", "u1")
	f.join(t, "a", "u1", "doc1")

	f.gateway.Disconnect("a")

	_, ok := f.rooms.State("doc1")
	assert.False(t, ok)
}

func TestGatewayHandleFrame(t *testing.T) {
	f := newGatewayFixture(t, GatewayConfig{})
	f.connect(t, "a", "u1")

	for _, raw := range []string{`not json`, `{"event":"delete-document","data":{}}`, `{"event":"join-document","data":"oops"}`} {
		reply := f.gateway.HandleFrame(context.Background(), "a", []byte(raw))
		require.NotNil(t, reply.Event, raw)
		assert.Equal(t, models.ErrorTypeInvalidEvent, reply.Event.Data.(models.ErrorPayload).Type, raw)
		assert.Equal(t, StateConnected, reply.State)
	}

	reply := f.gateway.HandleFrame(context.Background(), "a", []byte(`{"event":"join-document","data":{"documentId":"doc1","userId":"u1"}}`))
	assert.Nil(t, reply.Event)
	assert.Equal(t, StateInRoom, reply.State)
}

func TestDecodeInbound(t *testing.T) {
	in, err := DecodeInbound([]byte(`{"event":"send-message","data":{"documentId":"doc1","content":"hi","userId":"u1"}}`))
	require.NoError(t, err)
	assert.Equal(t, SendMessage{DocumentID: "doc1", Content: "hi", UserID: "u1"}, in)

	in, err = DecodeInbound([]byte(`{"event":"join-document"}`))
	require.NoError(t, err)
	assert.Equal(t, JoinDocument{}, in)
}

func TestGatewayRoomMessagesFollowStoreOrder(t *testing.T) {
	f := newGatewayFixture(t, GatewayConfig{})
	f.connect(t, "a", "u1")
	f.connect(t, "b", "u2")
	c := f.connect(t, "c", "u3")
	f.join(t, "a", "u1", "doc1")
	f.join(t, "b", "u2", "doc1")
	f.join(t, "c", "u3", "doc1")
	c.reset()

	firstStored := make(chan struct{})
	release := make(chan struct{})
	f.store.EXPECT().CreateMessage(gomock.Any(), "doc1", "u1", "first").
		DoAndReturn(func(context.Context, string, string, string) (*models.Message, error) {
			close(firstStored)
			<-release
			return &models.Message{ID: "1", DocumentID: "doc1", UserID: "u1", Content: "first"}, nil
		})
	f.store.EXPECT().CreateMessage(gomock.Any(), "doc1", "u2", "second").
		Return(&models.Message{ID: "2", DocumentID: "doc1", UserID: "u2", Content: "second"}, nil)
	f.users.EXPECT().GetUserByID(gomock.Any(), gomock.Any()).Return(&models.User{}, nil).AnyTimes()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		f.gateway.Dispatch(context.Background(), "a", SendMessage{Content: "first"})
	}()
	<-firstStored
	go func() {
		defer wg.Done()
		f.gateway.Dispatch(context.Background(), "b", SendMessage{Content: "second"})
	}()
	// the second sender would overtake here if the room were not sequenced
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	var ids []string
	for _, frame := range c.frames {
		require.Equal(t, models.EventNewMessage, frame.Event)
		ids = append(ids, decodeData[models.Message](t, frame).ID)
	}
	assert.Equal(t, []string{"1", "2"}, ids)
	assert.Zero(t, f.gateway.sequence.size(), "idle rooms hold no sequencing lock")
}

func TestGatewayInvalidMessageKeepsRateBudget(t *testing.T) {
	f := newGatewayFixture(t, GatewayConfig{Limiter: NewRateLimiter(1, time.Minute)})
	f.connect(t, "a", "u1")
	f.join(t, "a", "u1", "doc1")

	reply := f.gateway.Dispatch(context.Background(), "a", SendMessage{Content: "   "})
	require.NotNil(t, reply.Event)
	assert.Contains(t, reply.Event.Data.(models.ErrorPayload).Message, ErrInvalidMessage.Error())

	f.store.EXPECT().CreateMessage(gomock.Any(), "doc1", "u1", "real").
		Return(&models.Message{ID: "m1", DocumentID: "doc1", UserID: "u1", Content: "real"}, nil)
	f.users.EXPECT().GetUserByID(gomock.Any(), "u1").Return(&models.User{ID: "u1"}, nil)

	reply = f.gateway.Dispatch(context.Background(), "a", SendMessage{Content: "real"})
	assert.Nil(t, reply.Event)
}

func TestGatewayFrameLimitFitsLongestMessage(t *testing.T) {
	newGateway := func(maxLength int) *Gateway {
		relay := NewRelay(nil, nil, RelayConfig{MaxLength: maxLength})
		return NewGateway(NewConnectionRegistry(), nil, relay, GatewayConfig{})
	}

	assert.EqualValues(t, defaultFrameLimit, newGateway(0).FrameLimit())
	assert.EqualValues(t, defaultFrameLimit, newGateway(100).FrameLimit())

	frame, err := json.Marshal(models.Event{
		Name: models.EventSendMessage,
		Data: models.SendMessagePayload{
			DocumentID: "3f2b8c1e-5a7d-4e9f-8b6a-0c1d2e3f4a5b",
			Content:    strings.Repeat("\x01", 4000),
			UserID:     "9e8d7c6b-5a4f-4e3d-2c1b-0a9f8e7d6c5b",
		},
	})
	require.NoError(t, err)
	assert.Greater(t, len(frame), defaultFrameLimit)
	assert.LessOrEqual(t, int64(len(frame)), newGateway(4000).FrameLimit())
}
