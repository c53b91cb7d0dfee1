package backplane

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"chat-sync/contract"
	"chat-sync/domain"
	"chat-sync/domain/event"
	"chat-sync/mocks"
	"chat-sync/runtime"
	"chat-sync/sink"

	"github.com/mama165/sdk-go/logs"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestBackplane_RoundTrip(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// Given node-a publishes a typing event for chat c1, excluding bob's own connections
	writer := mocks.NewMockIKafkaWriter(ctrl)
	var published []kafka.Message
	writer.EXPECT().WriteMessages(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, msgs ...kafka.Message) error {
			published = append(published, msgs...)
			return nil
		}).Times(2)
	publisher := NewPublisher("node-a", writer, log)
	started := event.TypingStarted{ChatID: "c1", User: domain.Typist{ID: "bob", DisplayName: "Bob"}}
	req.NoError(publisher.Publish(ctx, domain.ChatRoom("c1"), started, contract.Exclude{User: "bob"}))
	req.Len(published, 1)
	req.Equal([]byte(domain.ChatRoom("c1")), published[0].Key)

	// And node-b has alice and bob viewing c1
	registry := runtime.NewRegistry(log)
	aliceRec, bobRec := sink.NewRecorder("alice"), sink.NewRecorder("bob")
	alice := domain.Connection{ID: "conn-alice", UserID: "alice"}
	bob := domain.Connection{ID: "conn-bob", UserID: "bob"}
	registry.Register(alice, aliceRec)
	registry.Register(bob, bobRec)
	registry.Join(alice.ID, domain.ChatRoom("c1"))
	registry.Join(bob.ID, domain.ChatRoom("c1"))

	// And node-b also sees its own records on the topic
	req.NoError(NewPublisher("node-b", writer, log).Publish(ctx, domain.ChatRoom("c1"), started, contract.Exclude{}))

	reader := mocks.NewMockIKafkaReader(ctrl)
	gomock.InOrder(
		reader.EXPECT().FetchMessage(gomock.Any()).Return(published[0], nil),
		reader.EXPECT().CommitMessages(gomock.Any(), published[0]).Return(nil),
		reader.EXPECT().FetchMessage(gomock.Any()).Return(published[1], nil),
		reader.EXPECT().CommitMessages(gomock.Any(), published[1]).Return(nil),
		reader.EXPECT().FetchMessage(gomock.Any()).DoAndReturn(func(ctx context.Context) (kafka.Message, error) {
			cancel()
			return kafka.Message{}, ctx.Err()
		}),
	)

	// When node-b consumes until cancellation
	err := NewConsumer("node-b", reader, registry, log).Run(ctx)

	// Then alice got the remote event once, bob is still excluded, and node-b's own record was skipped
	req.NoError(err)
	events := aliceRec.Named(event.UserStartedTyping)
	req.Len(events, 1)
	raw, ok := events[0].(event.Raw)
	req.True(ok)
	req.JSONEq(`{"chatId":"c1","user":{"id":"bob","displayName":"Bob"}}`, string(raw.Data))
	req.Empty(bobRec.Events())
}

func TestConsumer_Fetch_Error_Restarts(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	reader := mocks.NewMockIKafkaReader(ctrl)
	reader.EXPECT().FetchMessage(gomock.Any()).Return(kafka.Message{}, kafka.LeaderNotAvailable)

	err := NewConsumer("node-b", reader, mocks.NewMockIBroadcaster(ctrl), log).Run(context.Background())

	req.ErrorIs(err, kafka.LeaderNotAvailable)
}

func TestConsumer_Skips_Garbage(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	broadcaster := mocks.NewMockIBroadcaster(ctrl)
	consumer := NewConsumer("node-b", mocks.NewMockIKafkaReader(ctrl), broadcaster, log)

	// No broadcast is expected
	consumer.deliver(context.Background(), kafka.Message{Value: []byte("not json")})

	req.NotNil(consumer)
}
