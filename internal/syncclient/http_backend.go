package syncclient

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/anonto42/reelshelf/backend/internal/apperrors"
	"github.com/anonto42/reelshelf/backend/internal/models"
	"github.com/anonto42/reelshelf/backend/internal/realtime"
	"github.com/anonto42/reelshelf/backend/pkg/logger"
)

// TokenSource returns the bearer token for the signed-in user
type TokenSource func(ctx context.Context) (string, error)

// StaticToken is a TokenSource for a token that never changes
func StaticToken(token string) TokenSource {
	return func(context.Context) (string, error) { return token, nil }
}

// HTTPBackend runs a Hook against the REST API and its event stream. The
// userID arguments are ignored by the server, which trusts only the token;
// they scope the local event filter.
type HTTPBackend struct {
	baseURL string
	token   TokenSource
	client  *http.Client
	stream  *http.Client
	log     *logger.Logger
}

// NewHTTPBackend creates a backend for the API rooted at baseURL
func NewHTTPBackend(baseURL string, token TokenSource, client *http.Client, log *logger.Logger) *HTTPBackend {
	if client == nil {
		client = http.DefaultClient
	}
	if log == nil {
		log = logger.Nop()
	}
	// The stream stays open indefinitely, so it must not inherit a client timeout.
	stream := &http.Client{Transport: client.Transport, Jar: client.Jar}
	return &HTTPBackend{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  client,
		stream:  stream,
		log:     log.With("component", "http_backend"),
	}
}

func (b *HTTPBackend) Fetch(ctx context.Context, _ string, store models.StoreKind) (models.Library, error) {
	var body map[string][]models.SavedItemView
	if err := b.do(ctx, http.MethodGet, "/api/user/"+string(store), nil, &body); err != nil {
		return models.Library{}, err
	}
	lib := models.Library{Movies: []models.SavedItemView{}, Shows: []models.SavedItemView{}}
	for _, v := range body[string(store)] {
		if v.ShowID != nil {
			lib.Shows = append(lib.Shows, v)
		} else {
			lib.Movies = append(lib.Movies, v)
		}
	}
	return lib, nil
}

type saveBody struct {
	MovieID   *int64                 `json:"movieId,omitempty"`
	ShowID    *int64                 `json:"showId,omitempty"`
	MovieData *models.CatalogPayload `json:"movieData,omitempty"`
	ShowData  *models.CatalogPayload `json:"showData,omitempty"`
}

func (b *HTTPBackend) Save(ctx context.Context, _ string, store models.StoreKind, ref models.ItemRef, payload *models.CatalogPayload) (string, error) {
	id := ref.ID
	req := saveBody{}
	if ref.Kind == models.MediaKindShow {
		req.ShowID, req.ShowData = &id, payload
	} else {
		req.MovieID, req.MovieData = &id, payload
	}
	var res struct {
		Message string `json:"message"`
	}
	if err := b.do(ctx, http.MethodPost, "/api/user/"+string(store), req, &res); err != nil {
		return "", err
	}
	return res.Message, nil
}

func (b *HTTPBackend) Unsave(ctx context.Context, _ string, store models.StoreKind, ref models.ItemRef) (string, error) {
	q := url.Values{}
	if ref.Kind == models.MediaKindShow {
		q.Set("showId", strconv.FormatInt(ref.ID, 10))
	} else {
		q.Set("movieId", strconv.FormatInt(ref.ID, 10))
	}
	var res struct {
		Message string `json:"message"`
	}
	if err := b.do(ctx, http.MethodDelete, "/api/user/"+string(store)+"?"+q.Encode(), nil, &res); err != nil {
		return "", err
	}
	return res.Message, nil
}

// Subscribe opens GET /api/user/stream and decodes its change events. The
// stream ends when the subscription is closed or the server hangs up.
func (b *HTTPBackend) Subscribe(ctx context.Context, _ string, store models.StoreKind) (Subscription, error) {
	ctx, cancel := context.WithCancel(ctx)
	req, err := b.newRequest(ctx, http.MethodGet, "/api/user/stream?store="+url.QueryEscape(string(store)), nil)
	if err != nil {
		cancel()
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := b.stream.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("open stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		cancel()
		return nil, decodeError(resp)
	}

	sub := &streamSubscription{ch: make(chan realtime.Event, 16), cancel: cancel}
	go func() {
		defer close(sub.ch)
		defer resp.Body.Close()
		err := readSSE(resp.Body, func(event, data string) {
			if event != "change" {
				return
			}
			var ev realtime.Event
			if err := json.Unmarshal([]byte(data), &ev); err != nil {
				b.log.Warn("bad change event", "error", err)
				return
			}
			select {
			case sub.ch <- ev:
			default:
			}
		})
		if err != nil && ctx.Err() == nil {
			b.log.Warn("event stream ended", "error", err)
		}
	}()
	return sub, nil
}

type streamSubscription struct {
	ch     chan realtime.Event
	cancel context.CancelFunc
	once   sync.Once
}

func (s *streamSubscription) C() <-chan realtime.Event { return s.ch }
func (s *streamSubscription) Close()                   { s.once.Do(s.cancel) }

func (b *HTTPBackend) newRequest(ctx context.Context, method, path string, body interface{}) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		r = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, r)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if b.token != nil {
		token, err := b.token(ctx)
		if err != nil {
			return nil, fmt.Errorf("token: %w", err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
	return req, nil
}

func (b *HTTPBackend) do(ctx context.Context, method, path string, body, out interface{}) error {
	req, err := b.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return apperrors.Persistence("Request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.Persistence("Malformed response", err)
	}
	return nil
}

// decodeError turns an { "error": msg } response back into a coded error
func decodeError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(raw, &body); err != nil || body.Error == "" {
		body.Error = http.StatusText(resp.StatusCode)
	}
	cause := fmt.Errorf("status %d", resp.StatusCode)
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return &apperrors.Error{Code: apperrors.CodeUnauthorized, Message: body.Error}
	case http.StatusBadRequest:
		return apperrors.InvalidRequest(body.Error, cause)
	case http.StatusNotFound:
		return apperrors.NotFound(body.Error)
	default:
		return apperrors.Persistence(body.Error, cause)
	}
}

// readSSE calls onEvent for every complete event on r until r ends
func readSSE(r io.Reader, onEvent func(event, data string)) error {
	br := bufio.NewReader(r)
	var (
		eventName string
		dataLines []string
	)
	flush := func() {
		if len(dataLines) > 0 {
			onEvent(eventName, strings.Join(dataLines, "\n"))
		}
		eventName, dataLines = "", nil
	}

	for {
		line, err := br.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		eof := err != nil
		line = strings.TrimRight(line, "\r\n")
		switch {
		case line == "":
			flush()
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event:"):
			eventName = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			dataLines = append(dataLines, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
		if eof {
			flush()
			return nil
		}
	}
}
