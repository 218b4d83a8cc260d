package loadgen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/okian/satobs/internal/adapters/progress"
	"github.com/okian/satobs/internal/domain/model"
)

// ErrRefused is returned when the server turns a batch away (413/429/503).
var ErrRefused = errors.New("batch refused")

type client struct {
	base string
	http *http.Client
}

type submitRequest struct {
	Records []model.Record `json:"records"`
}

func (c *client) health(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, "/healthz", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned %d", resp.StatusCode)
	}
	return nil
}

func (c *client) submit(ctx context.Context, recs []model.Record) (string, error) {
	body, err := json.Marshal(submitRequest{Records: recs})
	if err != nil {
		return "", fmt.Errorf("marshal batch: %w", err)
	}
	resp, err := c.do(ctx, http.MethodPost, "/batches", body)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusAccepted:
	case http.StatusRequestEntityTooLarge, http.StatusTooManyRequests, http.StatusServiceUnavailable:
		return "", fmt.Errorf("%w: status %d", ErrRefused, resp.StatusCode)
	default:
		return "", fmt.Errorf("submit returned %d", resp.StatusCode)
	}
	var ack struct {
		BatchID string `json:"batch_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		return "", fmt.Errorf("decode ack: %w", err)
	}
	return ack.BatchID, nil
}

func (c *client) status(ctx context.Context, id string) (progress.Snapshot, error) {
	resp, err := c.do(ctx, http.MethodGet, "/batches/"+id, nil)
	if err != nil {
		return progress.Snapshot{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return progress.Snapshot{}, fmt.Errorf("status returned %d", resp.StatusCode)
	}
	var snap progress.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return progress.Snapshot{}, fmt.Errorf("decode status: %w", err)
	}
	return snap, nil
}

func (c *client) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	return resp, nil
}
