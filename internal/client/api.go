// Package client is a small HTTP client for the registry API, used by the
// guest command-line tool.  It consumes the same JSON views the web UI
// does and reads the live feed over Server-Sent Events.
package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/akarels/giftregistry/internal/model"
)

// API wraps the registry's guest-facing endpoints.
type API struct {
	BaseURL string
	HTTP    *http.Client
}

// New returns an API client for the given base URL.
func New(baseURL string) *API {
	return &API{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: 15 * time.Second},
	}
}

// apiError is the JSON error envelope every endpoint uses.
type apiError struct {
	Error string `json:"error"`
}

// List fetches the current wishlist snapshot.
func (a *API) List(ctx context.Context) ([]model.ItemView, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.BaseURL+"/v1/wishlist", nil)
	if err != nil {
		return nil, err
	}
	res, err := a.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, decodeError(res)
	}
	var out struct {
		Items []model.ItemView `json:"items"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// Claim reserves the item under the given token.
func (a *API) Claim(ctx context.Context, id, token string, graceMinutes int) (*model.ItemView, error) {
	body := map[string]interface{}{"token": token}
	if graceMinutes > 0 {
		body["grace_minutes"] = graceMinutes
	}
	return a.postItem(ctx, fmt.Sprintf("/v1/wishlist/%s/claim", id), body)
}

// Release gives the item back using the token it was claimed with.
func (a *API) Release(ctx context.Context, id, token string) (*model.ItemView, error) {
	return a.postItem(ctx, fmt.Sprintf("/v1/wishlist/%s/release", id), map[string]interface{}{"token": token})
}

func (a *API) postItem(ctx context.Context, path string, body map[string]interface{}) (*model.ItemView, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := a.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, decodeError(res)
	}
	var out struct {
		Item model.ItemView `json:"item"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, err
	}
	return &out.Item, nil
}

func decodeError(res *http.Response) error {
	var e apiError
	if err := json.NewDecoder(res.Body).Decode(&e); err == nil && e.Error != "" {
		return fmt.Errorf("%s (HTTP %d)", e.Error, res.StatusCode)
	}
	return fmt.Errorf("unexpected status %d", res.StatusCode)
}

// Stream consumes the SSE feed until ctx is cancelled, invoking onItems
// for every snapshot and onError for server-reported feed failures.  The
// connection is re-established with backoff when it drops.
func (a *API) Stream(ctx context.Context, onItems func([]model.ItemView), onError func(error)) error {
	backoff := time.Second
	for {
		err := a.streamOnce(ctx, onItems, onError)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			onError(err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

func (a *API) streamOnce(ctx context.Context, onItems func([]model.ItemView), onError func(error)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.BaseURL+"/v1/wishlist/stream", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	// No client timeout on the stream itself; cancellation comes from ctx.
	httpClient := &http.Client{}
	res, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", res.StatusCode)
	}

	scanner := bufio.NewScanner(res.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	eventName := ""
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			eventName = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data := strings.TrimPrefix(line, "data: ")
			switch eventName {
			case "items":
				var items []model.ItemView
				if err := json.Unmarshal([]byte(data), &items); err == nil {
					onItems(items)
				}
			case "error":
				var e apiError
				if err := json.Unmarshal([]byte(data), &e); err == nil && e.Error != "" {
					onError(errors.New(e.Error))
				}
			}
		case line == "":
			eventName = ""
		}
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
