package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"chat-sync/client"
	"chat-sync/client/store"
	"chat-sync/domain"
	"chat-sync/domain/event"
	"chat-sync/errors"

	"github.com/Netflix/go-env"
	"github.com/gookit/color"
	"github.com/mama165/sdk-go/logs"
)

// Exit codes for the client application.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
	exitAuth    = 3
)

// Config defines the client-side environment variables.
type Config struct {
	ServerURL string `env:"CHAT_SERVER_URL,default=http://localhost:8080"`
	Email     string `env:"CHAT_EMAIL,required=true"`
	Password  string `env:"CHAT_PASSWORD,required=true"`
	PageSize  int    `env:"CHAT_PAGE_SIZE,default=20"`
	LogLevel  string `env:"LOG_LEVEL,default=WARN"`
}

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Client error: %v\n", err)
	}
	os.Exit(code)
}

func run() (int, error) {
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	api := client.NewAPI(config.ServerURL, nil)
	me, err := api.Login(ctx, config.Email, config.Password)
	if err != nil {
		return exitAuth, fmt.Errorf("login failed: %w", err)
	}

	wsURL := "ws" + strings.TrimPrefix(config.ServerURL, "http") + "/ws"
	conn := client.New(client.DefaultConfig(wsURL), api.Token(), api, log)
	messages := store.NewMessageStore(api, config.PageSize)
	chats := store.NewChatStore(me.ID)
	view := store.NewChatView(conn, messages, chats)
	client.Bind(ctx, conn, api, chats, view, log)

	t := &terminal{api: api, conn: conn, me: me, messages: messages, chats: chats, view: view}
	t.watch()

	done := make(chan error, 1)
	go func() { done <- conn.Run(ctx) }()

	color.Greenf(">>> Connected as %s. /chats, /open <chat>, /new <user>, /more, /quit\n", me.DisplayName)
	go t.prompt(ctx, stop)

	if err := <-done; err != nil {
		if errors.Is(err, client.ErrAuthTerminal) {
			return exitAuth, err
		}
		return exitRuntime, err
	}
	return exitOK, nil
}

type terminal struct {
	api      *client.API
	conn     *client.Conn
	me       domain.PublicUser
	messages *store.MessageStore
	chats    *store.ChatStore
	view     *store.ChatView
}

// watch prints what the stores receive.
func (t *terminal) watch() {
	t.conn.On(event.NewMessage, func(env event.Envelope) {
		var msg domain.PopulatedMessage
		if env.DecodeData(&msg) == nil {
			printMessage(msg)
		}
	})
	t.chats.Subscribe(store.ObserverFunc[[]store.ChatEntry](func(entries []store.ChatEntry) {
		if len(entries) > 0 && entries[0].Unread {
			color.Yellowf("* new activity in %s\n", entries[0].ID)
		}
	}))
	t.conn.On(event.UserOnline, func(env event.Envelope) {
		var online event.UserWentOnline
		if env.DecodeData(&online) == nil {
			color.Gray.Printf("%s is online\n", online.UserData.DisplayName)
		}
	})
	t.conn.On(event.UserOffline, func(env event.Envelope) {
		var offline event.UserWentOffline
		if env.DecodeData(&offline) == nil {
			color.Gray.Printf("%s is offline\n", offline.UserID)
		}
	})
}

func (t *terminal) prompt(ctx context.Context, quit func()) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		command, arg, _ := strings.Cut(line, " ")
		var err error
		switch command {
		case "/quit":
			quit()
			return
		case "/chats":
			err = t.listChats(ctx)
		case "/open":
			err = t.open(ctx, domain.ChatID(arg))
		case "/new":
			err = t.newChat(ctx, domain.UserID(arg))
		case "/more":
			err = t.more(ctx)
		default:
			err = t.send(ctx, line)
		}
		if err != nil {
			color.Redf("! %v\n", err)
		}
	}
}

func (t *terminal) listChats(ctx context.Context) error {
	list, err := t.api.Chats(ctx, "", 1, 50)
	if err != nil {
		return err
	}
	t.chats.SetChats(list.Chats)
	for _, entry := range t.chats.Chats() {
		marker := " "
		if entry.Unread {
			marker = "*"
		}
		preview := ""
		if entry.LatestMessage != nil {
			preview = entry.LatestMessage.Content
		}
		fmt.Printf("%s %s %s: %s\n", marker, entry.ID, entry.Name, preview)
	}
	return nil
}

func (t *terminal) open(ctx context.Context, chatID domain.ChatID) error {
	if err := t.view.Open(ctx, chatID); err != nil {
		return err
	}
	for _, msg := range t.messages.Messages() {
		printMessage(msg)
	}
	return nil
}

func (t *terminal) newChat(ctx context.Context, other domain.UserID) error {
	chat, created, err := t.api.CreateChat(ctx, client.NewChat{Participants: []domain.UserID{t.me.ID, other}})
	if err != nil {
		return err
	}
	t.chats.Upsert(chat)
	color.Greenf("chat %s (created: %t)\n", chat.ID, created)
	return t.open(ctx, chat.ID)
}

func (t *terminal) more(ctx context.Context) error {
	state, chatID := t.view.State()
	if state != store.Viewing {
		return fmt.Errorf("no chat open")
	}
	if !t.messages.HasMore() {
		color.Gray.Println("beginning of the conversation")
		return nil
	}
	before := len(t.messages.Messages())
	if err := t.messages.LoadMessages(ctx, chatID, false); err != nil {
		return err
	}
	older := t.messages.Messages()
	for _, msg := range older[:len(older)-before] {
		printMessage(msg)
	}
	return nil
}

func (t *terminal) send(ctx context.Context, content string) error {
	state, chatID := t.view.State()
	if state != store.Viewing {
		return fmt.Errorf("open a chat first")
	}
	ack, err := t.conn.EmitWithAck(ctx, event.SendMessage, event.SendMessagePayload{
		ChatID:      chatID,
		Content:     content,
		MessageType: domain.MessageTypeText,
	})
	if err != nil {
		return err
	}
	return store.AckError(ack)
}

func printMessage(msg domain.PopulatedMessage) {
	at := msg.CreatedAt.Local().Format(time.TimeOnly)
	if msg.IsSystemNote {
		color.Gray.Printf("[%s] %s\n", at, msg.Content)
		return
	}
	fmt.Printf("[%s] %s: %s\n", at, color.Cyan.Sprint(msg.Sender.DisplayName), msg.Content)
}
