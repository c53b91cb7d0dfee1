package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"chat-sync/client/store"
	"chat-sync/domain"
	"chat-sync/errors"
)

// API calls the REST endpoints of the server with the current token.
type API struct {
	baseURL string
	http    *http.Client

	mu    sync.Mutex
	token string
}

func NewAPI(baseURL string, httpClient *http.Client) *API {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &API{baseURL: baseURL, http: httpClient}
}

func (a *API) Token() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.token
}

func (a *API) SetToken(token string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.token = token
}

type session struct {
	Token string            `json:"token"`
	User  domain.PublicUser `json:"user"`
}

// Login exchanges credentials for a token, kept for the next calls.
func (a *API) Login(ctx context.Context, email, password string) (domain.PublicUser, error) {
	var out session
	body := map[string]string{"email": email, "password": password}
	if err := a.do(ctx, http.MethodPost, "/auth/login", nil, body, &out); err != nil {
		return domain.PublicUser{}, err
	}
	a.SetToken(out.Token)
	return out.User, nil
}

func (a *API) Register(ctx context.Context, email, displayName, password string) (domain.PublicUser, error) {
	var out session
	body := map[string]string{"email": email, "displayName": displayName, "password": password}
	if err := a.do(ctx, http.MethodPost, "/auth/register", nil, body, &out); err != nil {
		return domain.PublicUser{}, err
	}
	a.SetToken(out.Token)
	return out.User, nil
}

// Refresh renews token. The new token is kept by the API as well.
func (a *API) Refresh(ctx context.Context, token string) (string, error) {
	var out struct {
		Token string `json:"token"`
	}
	if err := a.do(ctx, http.MethodPost, "/auth/refresh", nil, map[string]string{"token": token}, &out); err != nil {
		return "", err
	}
	a.SetToken(out.Token)
	return out.Token, nil
}

// FetchMessages reads one page of the history of chatID, newest first.
func (a *API) FetchMessages(ctx context.Context, chatID domain.ChatID, page, limit int) (store.Page, error) {
	query := url.Values{
		"chatId":  {chatID.String()},
		"page":    {strconv.Itoa(page)},
		"limit":   {strconv.Itoa(limit)},
		"sortBy":  {"createdAt"},
		"orderBy": {"desc"},
	}
	var out store.Page
	err := a.do(ctx, http.MethodGet, "/messages", query, nil, &out)
	return out, err
}

type ChatList struct {
	Chats      []domain.ChatView `json:"chats"`
	TotalItems int               `json:"totalItems"`
}

func (a *API) Chats(ctx context.Context, search string, page, limit int) (ChatList, error) {
	query := url.Values{"page": {strconv.Itoa(page)}, "limit": {strconv.Itoa(limit)}}
	if search != "" {
		query.Set("search", search)
	}
	var out ChatList
	err := a.do(ctx, http.MethodGet, "/chats", query, nil, &out)
	return out, err
}

func (a *API) Chat(ctx context.Context, chatID domain.ChatID) (domain.ChatView, error) {
	var out domain.ChatView
	err := a.do(ctx, http.MethodGet, "/chats/"+url.PathEscape(string(chatID)), nil, nil, &out)
	return out, err
}

type NewChat struct {
	Participants []domain.UserID `json:"participants"`
	IsGroup      bool            `json:"isGroup"`
	Name         string          `json:"name,omitempty"`
	Admin        domain.UserID   `json:"admin,omitempty"`
}

// CreateChat opens a chat. For a one-to-one chat the existing one comes back with created false.
func (a *API) CreateChat(ctx context.Context, chat NewChat) (domain.ChatView, bool, error) {
	var out struct {
		Chat    domain.ChatView `json:"chat"`
		Created bool            `json:"created"`
	}
	err := a.do(ctx, http.MethodPost, "/chats", nil, chat, &out)
	return out.Chat, out.Created, err
}

func (a *API) MarkRead(ctx context.Context, chatID domain.ChatID, ids []domain.MessageID) error {
	body := map[string]any{"chatId": chatID, "messageIds": ids}
	return a.do(ctx, http.MethodPost, "/messages/read", nil, body, nil)
}

func (a *API) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	target := a.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s body: %w", path, err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token := a.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return errors.Transient(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeFailure(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// decodeFailure rebuilds the error of a {"error":{code,message}} body.
func decodeFailure(resp *http.Response) error {
	var failure struct {
		Error struct {
			Code    errors.Code `json:"code"`
			Message string      `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&failure); err != nil || failure.Error.Code == "" {
		if resp.StatusCode == http.StatusUnauthorized {
			return errors.ErrUnauthorized
		}
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return errors.FromCode(failure.Error.Code, failure.Error.Message)
}
