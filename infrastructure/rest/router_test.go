package rest

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"chat-sync/auth"
	"chat-sync/domain"
	"chat-sync/errors"
	"chat-sync/mocks"
	"chat-sync/observability"
	"chat-sync/services"

	"github.com/gin-gonic/gin"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type onlineStub []domain.UserID

func (o onlineStub) OnlineUsers() []domain.UserID { return o }

type monitorStub observability.Snapshot

func (m monitorStub) Latest() observability.Snapshot { return observability.Snapshot(m) }

type fixture struct {
	router   *gin.Engine
	auth     *mocks.MockIAuthService
	chats    *mocks.MockIChatService
	messages *mocks.MockIMessageService
	token    string
}

func newFixture(t *testing.T) *fixture {
	gin.SetMode(gin.TestMode)
	ctrl := gomock.NewController(t)
	tokens := auth.NewTokenManager("secret", time.Hour, time.Minute)
	token, err := tokens.GenerateToken(domain.User{ID: "alice", DisplayName: "Alice"})
	require.NoError(t, err)
	f := &fixture{
		auth:     mocks.NewMockIAuthService(ctrl),
		chats:    mocks.NewMockIChatService(ctrl),
		messages: mocks.NewMockIMessageService(ctrl),
		token:    token,
	}
	f.router = NewRouter(Deps{
		Auth:     f.auth,
		Chats:    f.chats,
		Messages: f.messages,
		Online:   onlineStub{"alice", "bob"},
		Monitor:  monitorStub{Live: observability.LiveStats{Connections: 3}},
		Tokens:   tokens,
		Metrics:  http.NotFoundHandler(),
		Socket:   http.NotFoundHandler(),
		Log:      logs.GetLoggerFromLevel(slog.LevelDebug),
	})
	return f
}

func (f *fixture) do(method, path, body string, authenticated bool) *httptest.ResponseRecorder {
	r := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	r.Header.Set("Content-Type", "application/json")
	if authenticated {
		r.Header.Set("Authorization", "Bearer "+f.token)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, r)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error.Code
}

func TestRouter_Requires_Token(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/chats", "", false)

	req.Equal(http.StatusUnauthorized, rec.Code)
	req.Equal(string(errors.CodeUnauthorized), errorCode(t, rec))
}

func TestRouter_Login(t *testing.T) {
	testCases := []struct {
		name     string
		body     string
		err      error
		expected int
	}{
		{name: "Valid credentials", body: `{"email":"alice@chat.io","password":"pw"}`, expected: http.StatusOK},
		{name: "Wrong password", body: `{"email":"alice@chat.io","password":"pw"}`, err: errors.ErrInvalidCredentials, expected: http.StatusUnauthorized},
		{name: "Malformed json", body: `{"email":`, expected: http.StatusBadRequest},
		{name: "Missing email", body: `{"password":"pw"}`, expected: http.StatusBadRequest},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := require.New(t)
			f := newFixture(t)
			if tc.expected == http.StatusOK || tc.err != nil {
				f.auth.EXPECT().Login("alice@chat.io", "pw").Return(services.Session{Token: "t"}, tc.err)
			}

			rec := f.do(http.MethodPost, "/auth/login", tc.body, false)

			req.Equal(tc.expected, rec.Code, rec.Body.String())
		})
	}
}

func TestRouter_Refresh_From_Header(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	f.auth.EXPECT().Refresh(f.token).Return(services.Token("fresh"), nil)

	// When the client refreshes with an empty body
	rec := f.do(http.MethodPost, "/auth/refresh", "", true)

	// Then the bearer token is used
	req.Equal(http.StatusOK, rec.Code)
	req.JSONEq(`{"token":"fresh"}`, rec.Body.String())
}

func TestRouter_CreateChat(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	request := services.CreateChatRequest{Participants: []domain.UserID{"bob"}}
	f.chats.EXPECT().CreateChat(gomock.Any(), domain.UserID("alice"), request).
		Return(domain.ChatView{ID: "c1"}, true, nil)
	f.chats.EXPECT().CreateChat(gomock.Any(), domain.UserID("alice"), request).
		Return(domain.ChatView{ID: "c1"}, false, nil)

	// When the same chat is requested twice
	first := f.do(http.MethodPost, "/chats", `{"participants":["bob"]}`, true)
	second := f.do(http.MethodPost, "/chats", `{"participants":["bob"]}`, true)

	// Then only the first one reports a creation
	req.Equal(http.StatusCreated, first.Code)
	req.Equal(http.StatusOK, second.Code)
	req.Contains(second.Body.String(), `"created":false`)
}

func TestRouter_GetChats(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	f.chats.EXPECT().
		GetChats(gomock.Any(), domain.UserID("alice"), services.ChatFilter{Search: "bo"}, domain.Page{Number: 2, Limit: 5, Order: domain.Desc}).
		Return(services.ChatPage{TotalItems: 7, Page: 2, Limit: 5}, nil)

	rec := f.do(http.MethodGet, "/chats?search=bo&page=2&limit=5", "", true)
	req.Equal(http.StatusOK, rec.Code)
	req.Contains(rec.Body.String(), `"totalItems":7`)

	// Someone else's list is refused
	rec = f.do(http.MethodGet, "/chats?userId=bob", "", true)
	req.Equal(http.StatusForbidden, rec.Code)
}

func TestRouter_GetMessages(t *testing.T) {
	testCases := []struct {
		name     string
		query    string
		page     *domain.Page
		err      error
		expected int
	}{
		{name: "Defaults", query: "chatId=c1", page: &domain.Page{Number: 1, Limit: domain.DefaultPageLimit, Order: domain.Desc}, expected: http.StatusOK},
		{name: "Ascending", query: "chatId=c1&sortBy=createdAt&orderBy=asc&limit=500", page: &domain.Page{Number: 1, Limit: domain.MaxPageLimit, Order: domain.Asc}, expected: http.StatusOK},
		{name: "Not a participant", query: "chatId=c1", page: &domain.Page{Number: 1, Limit: domain.DefaultPageLimit, Order: domain.Desc}, err: errors.ErrForbidden, expected: http.StatusForbidden},
		{name: "Missing chat", query: "page=1", expected: http.StatusBadRequest},
		{name: "Bad page", query: "chatId=c1&page=zero", expected: http.StatusBadRequest},
		{name: "Bad sort", query: "chatId=c1&sortBy=content", expected: http.StatusBadRequest},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := require.New(t)
			f := newFixture(t)
			if tc.page != nil {
				f.messages.EXPECT().List(gomock.Any(), domain.UserID("alice"), domain.ChatID("c1"), *tc.page).
					Return(services.MessagePage{}, tc.err)
			}

			rec := f.do(http.MethodGet, "/messages?"+tc.query, "", true)

			req.Equal(tc.expected, rec.Code, rec.Body.String())
		})
	}
}

func TestRouter_MarkRead(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	f.messages.EXPECT().
		MarkRead(gomock.Any(), domain.UserID("alice"), services.MarkReadRequest{ChatID: "c1", MessageIDs: []domain.MessageID{"m1"}}).
		Return([]domain.PopulatedMessage{{ID: "m1"}}, nil)

	rec := f.do(http.MethodPost, "/messages/read", `{"chatId":"c1","messageIds":["m1"]}`, true)

	req.Equal(http.StatusOK, rec.Code)
	req.Contains(rec.Body.String(), `"id":"m1"`)
}

func TestRouter_Ops(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/users/online", "", true)
	req.Equal(http.StatusOK, rec.Code)
	req.JSONEq(`{"users":["alice","bob"],"count":2}`, rec.Body.String())

	rec = f.do(http.MethodGet, "/debug/stats", "", false)
	req.Equal(http.StatusUnauthorized, rec.Code)
	req.NotContains(rec.Body.String(), "connections")

	rec = f.do(http.MethodGet, "/debug/stats", "", true)
	req.Equal(http.StatusOK, rec.Code)
	req.Contains(rec.Body.String(), `"connections":3`)
}

func TestRouter_Internal_Errors_Are_Opaque(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	f.chats.EXPECT().GetChat(gomock.Any(), domain.UserID("alice"), domain.ChatID("c1")).
		Return(domain.ChatView{}, errors.ErrWorkerPanic)

	rec := f.do(http.MethodGet, "/chats/c1", "", true)

	req.Equal(http.StatusInternalServerError, rec.Code)
	req.NotContains(rec.Body.String(), "worker panic")
}
