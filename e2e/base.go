// Package e2e drives a running node through its public surfaces: REST, websocket and gRPC health.
package e2e

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"chat-sync/client"
	"chat-sync/domain"
	"chat-sync/domain/event"

	"github.com/google/uuid"
	"github.com/gookit/color"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/suite"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

type BaseSuite struct {
	suite.Suite
	Config Config
}

// SetupSuite loads the environment configuration before running tests
func (s *BaseSuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)
	if s.Config.ServerURL == "" {
		s.T().Skip("E2E_SERVER_URL is not set")
	}
}

func (s *BaseSuite) header(name string) {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	s.T().Log(header)
}

// GrpcConn initializes a gRPC connection with logging, colors, and JSON debugging
func (s *BaseSuite) GrpcConn(t *testing.T, name string) *grpc.ClientConn {
	s.header(name)
	marshaler := protojson.MarshalOptions{
		UseProtoNames:   true,
		Multiline:       true,
		EmitUnpopulated: true,
	}

	conn, err := grpc.NewClient(s.Config.GRPCAddr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
			start := time.Now()
			err := invoker(ctx, method, req, reply, cc, opts...)

			logBuilder := strings.Builder{}
			fmt.Fprintf(&logBuilder, "GRPC %s [%s] in %v", method, status.Code(err), time.Since(start))
			if s.Config.DebugJSON {
				fmt.Fprintln(&logBuilder, "\nREQUEST:")
				fmt.Fprintln(&logBuilder, marshaler.Format(req.(proto.Message)))
				if err == nil {
					fmt.Fprintln(&logBuilder, "RESPONSE:")
					fmt.Fprintln(&logBuilder, marshaler.Format(reply.(proto.Message)))
				}
			}
			t.Log(logBuilder.String())
			return err
		}),
	)
	s.Require().NoError(err, "Failed to connect to gRPC server at "+s.Config.GRPCAddr)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// User is a registered account with its REST client and a running socket.
type User struct {
	Profile domain.PublicUser
	API     *client.API
	Conn    *client.Conn
	Events  chan event.Envelope
}

// NewUser registers a fresh account and connects its socket. Received events are copied to Events
// until it is full.
func (s *BaseSuite) NewUser(name string) *User {
	s.header("Register " + name)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	api := client.NewAPI(s.Config.ServerURL, nil)
	email := fmt.Sprintf("%s-%s@e2e.chat", strings.ToLower(name), uuid.NewString()[:8])
	profile, err := api.Register(ctx, email, name, "Correct-Horse-42!")
	s.Require().NoError(err)

	wsURL := "ws" + strings.TrimPrefix(s.Config.ServerURL, "http") + "/ws"
	conn := client.New(client.DefaultConfig(wsURL), api.Token(), api, logs.GetLoggerFromLevel(slog.LevelDebug))
	user := &User{Profile: profile, API: api, Conn: conn, Events: make(chan event.Envelope, 64)}
	for _, evt := range []event.Name{event.Connected, event.NewMessage, event.NewMessageChatUpdate,
		event.UserOnline, event.UserOffline, event.UserStartedTyping, event.UserEndedTyping, event.Error} {
		conn.On(evt, func(env event.Envelope) {
			select {
			case user.Events <- env:
			default:
				s.T().Logf("Dropping %s for %s", env.Event, name)
			}
		})
	}

	runCtx, stop := context.WithCancel(context.Background())
	s.T().Cleanup(stop)
	go func() { _ = conn.Run(runCtx) }()
	s.Require().Equal(event.Connected, s.Next(user, event.Connected).Event)
	return user
}

// Next waits for the next event of u named name, skipping the others.
func (s *BaseSuite) Next(u *User, name event.Name) event.Envelope {
	timeout := time.After(5 * time.Second)
	for {
		select {
		case env := <-u.Events:
			if env.Event == name {
				return env
			}
		case <-timeout:
			s.FailNow("timed out waiting for " + string(name))
			return event.Envelope{}
		}
	}
}
