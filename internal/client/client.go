// Package client talks to the ocrdesk server over HTTP.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/ocrdesk/ocrdesk/internal/logging"
	"github.com/ocrdesk/ocrdesk/internal/models"
)

// RequestError is a non-2xx answer. Detail carries the server's "detail"
// field when there is one.
type RequestError struct {
	Op     string
	Status int
	Detail string
}

func (e *RequestError) Error() string {
	if e.Detail != "" {
		return e.Detail
	}
	return fmt.Sprintf("%s failed with status %d", e.Op, e.Status)
}

// ErrCancelled is returned when a request is abandoned through its context.
var ErrCancelled = errors.New("request cancelled")

// IsCancelled reports whether err comes from a cancelled request.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled)
}

// OCRResponse is a streaming OCR answer. The caller closes Body.
type OCRResponse struct {
	Filename string
	Body     io.ReadCloser
}

// Client is safe for concurrent use.
type Client struct {
	base    *url.URL
	http    *http.Client
	timeout time.Duration
	log     zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client. It must not set a
// Timeout, since OCR responses stream for as long as the model runs.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithTimeout bounds every call except the OCR stream.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.log = logging.Component(l, "client") }
}

func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("server url %q must include scheme and host", baseURL)
	}
	c := &Client{
		base:    u,
		http:    &http.Client{},
		timeout: 30 * time.Second,
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) endpoint(path string) string {
	return c.base.String() + path
}

// OCR uploads one image and returns the streaming body. The stream lives
// as long as ctx.
func (c *Client) OCR(ctx context.Context, file models.PendingFile, typ models.SessionType) (*OCRResponse, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	contentType := file.ContentType
	if contentType == "" {
		contentType = http.DetectContentType(file.Data)
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, file.Name))
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("build upload: %w", err)
	}
	if _, err := part.Write(file.Data); err != nil {
		return nil, fmt.Errorf("build upload: %w", err)
	}
	if err := mw.WriteField("type", string(typ)); err != nil {
		return nil, fmt.Errorf("build upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("build upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/ocr"), &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	c.log.Debug().Str("file", file.Name).Int64("size", file.Size()).Str("type", string(typ)).Msg("uploading")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, c.wrap(ctx, "ocr", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, readError("ocr", resp, "OCR Failed")
	}

	name := resp.Header.Get("X-Filename")
	if name == "" {
		name = file.Name
	}
	return &OCRResponse{Filename: name, Body: resp.Body}, nil
}

// Cancel asks the server to abort all running jobs.
func (c *Client) Cancel(ctx context.Context) error {
	var out models.StatusResponse
	return c.doJSON(ctx, http.MethodPost, "/cancel", nil, &out, "cancel")
}

// Save creates or updates a session record.
func (c *Client) Save(ctx context.Context, req models.SaveRequest) (models.SaveResponse, error) {
	var out models.SaveResponse
	err := c.doJSON(ctx, http.MethodPost, "/save", req, &out, "save")
	return out, err
}

// History lists saved sessions, newest first. Records arrive as msgpack.
func (c *Client) History(ctx context.Context) ([]models.SessionRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/history"), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/msgpack")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, c.wrap(ctx, "history", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, readError("history", resp, "")
	}

	var records []models.SessionRecord
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/msgpack") {
		err = msgpack.NewDecoder(resp.Body).Decode(&records)
	} else {
		err = json.NewDecoder(resp.Body).Decode(&records)
	}
	if err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	return records, nil
}

// DeleteSession removes a saved session.
func (c *Client) DeleteSession(ctx context.Context, id string) error {
	var out models.StatusResponse
	return c.doJSON(ctx, http.MethodDelete, "/session/"+url.PathEscape(id), nil, &out, "delete session")
}

// GPU reports accelerator status.
func (c *Client) GPU(ctx context.Context) (models.GPUStatus, error) {
	var out models.GPUStatus
	err := c.doJSON(ctx, http.MethodGet, "/gpu", nil, &out, "gpu")
	return out, err
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any, op string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", op, err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return c.wrap(ctx, op, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return readError(op, resp, "")
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", op, err)
	}
	return nil
}

func (c *Client) wrap(ctx context.Context, op string, err error) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return fmt.Errorf("%s: %w", op, ErrCancelled)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// readError builds a RequestError from a JSON {"detail": ...} body when
// present, falling back to fallback.
func readError(op string, resp *http.Response, fallback string) error {
	var payload struct {
		Detail string `json:"detail"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err := json.Unmarshal(data, &payload); err != nil || payload.Detail == "" {
		payload.Detail = fallback
	}
	return &RequestError{Op: op, Status: resp.StatusCode, Detail: payload.Detail}
}
