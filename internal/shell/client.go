package shell

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"
)

const defaultRequestTimeout = 30 * time.Second

var errMissingBaseURL = errors.New("shell: base url is required")

// Tag mirrors the server's tag JSON.
type Tag struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	Color     string    `json:"color"`
	CreatedAt time.Time `json:"created_at"`
}

// Note mirrors the server's note JSON.
type Note struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Tags      []Tag     `json:"tags"`
}

// TagIDs lists the ids of the attached tags.
func (n Note) TagIDs() []string {
	ids := make([]string, 0, len(n.Tags))
	for _, tag := range n.Tags {
		ids = append(ids, tag.ID)
	}
	return ids
}

// User is the profile returned by /me.
type User struct {
	ID          string `json:"id"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// NoteQuery carries the list filters. Empty fields are omitted.
type NoteQuery struct {
	Search string
	TagID  string
}

// NoteFields is the full-replacement body sent on create and save.
type NoteFields struct {
	Title   string   `json:"title"`
	Content string   `json:"content"`
	TagIDs  []string `json:"tagIds"`
}

// APIError is returned for any non-2xx response.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("shell: %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("shell: %d %s", e.StatusCode, e.Code)
}

// API is the server surface the Controller depends on.
type API interface {
	ListNotes(ctx context.Context, query NoteQuery) ([]Note, error)
	CreateNote(ctx context.Context, fields NoteFields) (Note, error)
	UpdateNote(ctx context.Context, noteID string, fields NoteFields) (Note, error)
	DeleteNote(ctx context.Context, noteID string) error
	ListTags(ctx context.Context) ([]Tag, error)
	CreateTag(ctx context.Context, name, color string) (Tag, error)
	Enhance(ctx context.Context, content, mode string) (string, error)
}

type ClientConfig struct {
	BaseURL string
	// SessionCookieName and SessionToken seed the cookie jar with the session
	// issued by the auth provider.
	SessionCookieName string
	SessionToken      string
	HTTPClient        *http.Client
}

// Client is an HTTP implementation of API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
}

func NewClient(cfg ClientConfig) (*Client, error) {
	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		return nil, errMissingBaseURL
	}
	baseURL, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil {
		return nil, fmt.Errorf("shell: parse base url: %w", err)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultRequestTimeout}
	}
	if httpClient.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("shell: cookie jar: %w", err)
		}
		clone := *httpClient
		clone.Jar = jar
		httpClient = &clone
	}
	if cfg.SessionToken != "" {
		cookieName := cfg.SessionCookieName
		if cookieName == "" {
			cookieName = "app_session"
		}
		httpClient.Jar.SetCookies(baseURL, []*http.Cookie{{Name: cookieName, Value: cfg.SessionToken, Path: "/"}})
	}

	return &Client{baseURL: baseURL, httpClient: httpClient}, nil
}

func (c *Client) ListNotes(ctx context.Context, query NoteQuery) ([]Note, error) {
	values := url.Values{}
	if query.Search != "" {
		values.Set("search", query.Search)
	}
	if query.TagID != "" {
		values.Set("tag", query.TagID)
	}
	path := "/notes"
	if encoded := values.Encode(); encoded != "" {
		path += "?" + encoded
	}
	var found []Note
	if err := c.do(ctx, http.MethodGet, path, nil, &found); err != nil {
		return nil, err
	}
	return found, nil
}

func (c *Client) GetNote(ctx context.Context, noteID string) (Note, error) {
	var note Note
	err := c.do(ctx, http.MethodGet, "/notes/"+url.PathEscape(noteID), nil, &note)
	return note, err
}

func (c *Client) CreateNote(ctx context.Context, fields NoteFields) (Note, error) {
	var note Note
	err := c.do(ctx, http.MethodPost, "/notes", normalizeFields(fields), &note)
	return note, err
}

func (c *Client) UpdateNote(ctx context.Context, noteID string, fields NoteFields) (Note, error) {
	var note Note
	err := c.do(ctx, http.MethodPut, "/notes/"+url.PathEscape(noteID), normalizeFields(fields), &note)
	return note, err
}

func (c *Client) DeleteNote(ctx context.Context, noteID string) error {
	return c.do(ctx, http.MethodDelete, "/notes/"+url.PathEscape(noteID), nil, nil)
}

func (c *Client) ListTags(ctx context.Context) ([]Tag, error) {
	var found []Tag
	if err := c.do(ctx, http.MethodGet, "/tags", nil, &found); err != nil {
		return nil, err
	}
	return found, nil
}

func (c *Client) CreateTag(ctx context.Context, name, color string) (Tag, error) {
	body := map[string]string{"name": name}
	if color != "" {
		body["color"] = color
	}
	var tag Tag
	err := c.do(ctx, http.MethodPost, "/tags", body, &tag)
	return tag, err
}

func (c *Client) DeleteTag(ctx context.Context, tagID string) error {
	return c.do(ctx, http.MethodDelete, "/tags/"+url.PathEscape(tagID), nil, nil)
}

func (c *Client) Enhance(ctx context.Context, content, mode string) (string, error) {
	var response struct {
		Text string `json:"text"`
	}
	err := c.do(ctx, http.MethodPost, "/ai/enhance", map[string]string{"content": content, "type": mode}, &response)
	return response.Text, err
}

func (c *Client) Me(ctx context.Context) (User, error) {
	var user User
	err := c.do(ctx, http.MethodGet, "/me", nil, &user)
	return user, err
}

func normalizeFields(fields NoteFields) NoteFields {
	if fields.TagIDs == nil {
		fields.TagIDs = []string{}
	}
	return fields
}

func (c *Client) do(ctx context.Context, method, path string, body any, destination any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("shell: encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	request, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, reader)
	if err != nil {
		return fmt.Errorf("shell: build request: %w", err)
	}
	request.Header.Set("Accept", "application/json")
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("shell: %s %s: %w", method, path, err)
	}
	defer response.Body.Close()

	payload, err := io.ReadAll(response.Body)
	if err != nil {
		return fmt.Errorf("shell: read response: %w", err)
	}
	if response.StatusCode < 200 || response.StatusCode > 299 {
		return decodeAPIError(response.StatusCode, payload)
	}
	if destination == nil || len(payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, destination); err != nil {
		return fmt.Errorf("shell: decode response: %w", err)
	}
	return nil
}

func decodeAPIError(status int, payload []byte) error {
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	apiErr := &APIError{StatusCode: status}
	if err := json.Unmarshal(payload, &body); err == nil {
		apiErr.Code = body.Error
		apiErr.Message = body.Message
	}
	if apiErr.Code == "" {
		apiErr.Code = strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
	return apiErr
}
