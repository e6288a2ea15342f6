package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/dstepanov-dev/localnotes/internal/common"
	"github.com/dstepanov-dev/localnotes/internal/models"
)

// DefaultCallTimeout bounds every individual request. A timed-out call is a
// transient failure, subject to the queue's retry policy like any other.
const DefaultCallTimeout = 15 * time.Second

// TokenSource supplies the current bearer token. Kept as a function so the
// session can rotate tokens without the client noticing.
type TokenSource func() string

// HTTPClient implements Service over the backend's JSON API.
type HTTPClient struct {
	baseURL string
	token   TokenSource
	http    *http.Client
	timeout time.Duration
}

// NewHTTPClient returns an HTTPClient for the given base URL (scheme://host[:port]).
func NewHTTPClient(baseURL string, token TokenSource) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{},
		timeout: DefaultCallTimeout,
	}
}

func (c *HTTPClient) do(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.token(); token != "" {
		req.Header.Set(common.AuthHeaderName, common.BearerPrefix+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if err := mapStatus(resp.StatusCode); err != nil {
		return err
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// mapStatus translates HTTP status codes into the shared error taxonomy.
func mapStatus(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return common.ErrUnauthorized
	case code == http.StatusNotFound:
		return common.ErrNotFound
	case code == http.StatusConflict:
		return common.ErrVersionConflict
	case code >= 500:
		return fmt.Errorf("%w: server returned %d", common.ErrUnavailable, code)
	default:
		return fmt.Errorf("unexpected status %d", code)
	}
}

func typePath(t models.EntityType) string {
	return "/api/v1/" + string(t)
}

func (c *HTTPClient) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil, nil)
}

func (c *HTTPClient) FetchAll(ctx context.Context, t models.EntityType) ([]models.Record, error) {
	var recs []models.Record
	if err := c.do(ctx, http.MethodGet, typePath(t), nil, nil, &recs); err != nil {
		return nil, err
	}
	return recs, nil
}

func (c *HTTPClient) FetchSince(ctx context.Context, t models.EntityType, since int64) ([]models.Record, error) {
	q := url.Values{"since": {strconv.FormatInt(since, 10)}}
	var recs []models.Record
	if err := c.do(ctx, http.MethodGet, typePath(t), q, nil, &recs); err != nil {
		return nil, err
	}
	return recs, nil
}

func (c *HTTPClient) Fetch(ctx context.Context, t models.EntityType, id string) (*models.Record, error) {
	var rec models.Record
	err := c.do(ctx, http.MethodGet, typePath(t)+"/"+id, nil, nil, &rec)
	if errors.Is(err, common.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (c *HTTPClient) Insert(ctx context.Context, t models.EntityType, rec models.Record) (*models.Record, error) {
	var confirmed models.Record
	if err := c.do(ctx, http.MethodPost, typePath(t), nil, rec, &confirmed); err != nil {
		return nil, err
	}
	return &confirmed, nil
}

func (c *HTTPClient) Update(ctx context.Context, t models.EntityType, rec models.Record, force bool) (*models.Record, error) {
	var q url.Values
	if force {
		q = url.Values{"force": {"1"}}
	}
	var confirmed models.Record
	if err := c.do(ctx, http.MethodPut, typePath(t)+"/"+rec.ID, q, rec, &confirmed); err != nil {
		return nil, err
	}
	return &confirmed, nil
}

func (c *HTTPClient) Delete(ctx context.Context, t models.EntityType, id string) error {
	err := c.do(ctx, http.MethodDelete, typePath(t)+"/"+id, nil, nil, nil)
	// Idempotent delete: the row being gone already is success.
	if errors.Is(err, common.ErrNotFound) {
		return nil
	}
	return err
}

func (c *HTTPClient) GetVersion(ctx context.Context, t models.EntityType, id string) (*models.VersionInfo, error) {
	var vi models.VersionInfo
	err := c.do(ctx, http.MethodGet, typePath(t)+"/"+id+"/version", nil, nil, &vi)
	if errors.Is(err, common.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &vi, nil
}
