// Package upstream talks to the appointment service's admin REST API.
package upstream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/hackgods/appointment-admin-console/internal/appointment"
)

// StatusError is a non-2xx answer from the appointment service.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Message)
}

type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *zap.Logger
}

var _ appointment.Repository = (*Client)(nil)

func NewClient(baseURL, token string, timeout time.Duration, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

type rescheduleBody struct {
	NewDateTime string `json:"newDateTime"`
}

func (c *Client) ListAppointments(ctx context.Context, status string) ([]appointment.Appointment, error) {
	path := "/admin/appointments"
	if status != "" {
		path += "?status=" + url.QueryEscape(status)
	}

	body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	return c.decodeList(body)
}

func (c *Client) RescheduleAppointment(ctx context.Context, id appointment.ID, newLocalDateTime string) error {
	_, err := c.do(ctx, http.MethodPut, appointmentPath(id, "reschedule"), rescheduleBody{NewDateTime: newLocalDateTime})
	return err
}

func (c *Client) CancelOrDeleteAppointment(ctx context.Context, id appointment.ID) error {
	_, err := c.do(ctx, http.MethodDelete, appointmentPath(id, ""), nil)
	var se *StatusError
	if errors.As(err, &se) && alreadyCancelled(se) {
		return fmt.Errorf("%w: %s", appointment.ErrAlreadyCancelled, se.Message)
	}
	return err
}

func (c *Client) SendReminder(ctx context.Context, id appointment.ID) error {
	_, err := c.do(ctx, http.MethodPost, appointmentPath(id, "reminder"), nil)
	return err
}

func appointmentPath(id appointment.ID, action string) string {
	p := "/admin/appointments/" + url.PathEscape(string(id))
	if action != "" {
		p += "/" + action
	}
	return p
}

func (c *Client) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s %s body: %w", method, path, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create request %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s %s response: %w", method, path, err)
	}

	c.logger.Debug("appointment service call",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Message:    errorMessage(body),
		}
	}
	return body, nil
}

// decodeList accepts a bare JSON array or an envelope carrying the array under
// "data" or "content". Records are decoded one by one; a record that does not
// decode is logged and skipped so the rest of the list still loads.
func (c *Client) decodeList(body []byte) ([]appointment.Appointment, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return []appointment.Appointment{}, nil
	}

	var records []json.RawMessage
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, fmt.Errorf("decode appointments: %w", err)
		}
		return c.decodeRecords(records), nil
	}

	var envelope struct {
		Data    []json.RawMessage `json:"data"`
		Content []json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return nil, fmt.Errorf("decode appointments: %w", err)
	}
	if envelope.Data != nil {
		return c.decodeRecords(envelope.Data), nil
	}
	return c.decodeRecords(envelope.Content), nil
}

func (c *Client) decodeRecords(records []json.RawMessage) []appointment.Appointment {
	list := make([]appointment.Appointment, 0, len(records))
	for i, raw := range records {
		var a appointment.Appointment
		if err := json.Unmarshal(raw, &a); err != nil {
			c.logger.Warn("skipping malformed appointment record",
				zap.Int("index", i),
				zap.ByteString("record", truncate(raw, 256)),
				zap.Error(err),
			)
			continue
		}
		list = append(list, a)
	}
	return list
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}

// errorMessage pulls a human message out of an error body, falling back to
// the raw text.
func errorMessage(body []byte) string {
	var e struct {
		Message string `json:"message"`
		Error   string `json:"error"`
		Details string `json:"details"`
	}
	if err := json.Unmarshal(body, &e); err == nil {
		for _, m := range []string{e.Message, e.Details, e.Error} {
			if m != "" {
				return m
			}
		}
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}

func alreadyCancelled(se *StatusError) bool {
	if se.StatusCode < 400 || se.StatusCode > 499 {
		return false
	}
	msg := strings.ToLower(se.Message)
	return strings.Contains(msg, "already cancelled") || strings.Contains(msg, "already canceled")
}
