package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/autopeer-io/beacon/internal/beaconhub/core/model"
)

// Client talks to the hub REST API.
type Client struct {
	base *url.URL
	http *http.Client
}

// APIError is a non-2xx response from the hub.
type APIError struct {
	Status  int
	Message string `json:"error"`
	Reason  string `json:"reason"`
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	if e.Reason != "" {
		return fmt.Sprintf("hub returned %d (%s): %s", e.Status, e.Reason, msg)
	}
	return fmt.Sprintf("hub returned %d: %s", e.Status, msg)
}

type Device struct {
	DeviceID string                 `json:"deviceId"`
	Latest   *model.TelemetryRecord `json:"latest"`
}

type deviceList struct {
	Devices []Device `json:"devices"`
}

type eventList struct {
	Events []*model.Event `json:"events"`
}

type AckResult struct {
	DeviceID  string `json:"deviceId"`
	Delivered int    `json:"delivered"`
}

func NewClient(server string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(strings.TrimSuffix(server, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid server %q: %w", server, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid server %q: scheme must be http or https", server)
	}
	return &Client{base: u, http: &http.Client{Timeout: timeout}}, nil
}

func (c *Client) Devices(ctx context.Context) ([]Device, error) {
	var out deviceList
	if err := c.do(ctx, http.MethodGet, "/devices", nil, &out); err != nil {
		return nil, err
	}
	return out.Devices, nil
}

func (c *Client) Events(ctx context.Context, deviceID string) ([]*model.Event, error) {
	path := "/alerts"
	if deviceID != "" {
		path = "/alerts/device/" + url.PathEscape(deviceID)
	}
	var out eventList
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Events, nil
}

func (c *Client) Send(ctx context.Context, sub model.Submission) (*model.Ack, error) {
	var ack model.Ack
	if err := c.do(ctx, http.MethodPost, "/alerts", sub, &ack); err != nil {
		return nil, err
	}
	return &ack, nil
}

func (c *Client) Acknowledge(ctx context.Context, deviceID string) (*AckResult, error) {
	var out AckResult
	if err := c.do(ctx, http.MethodPost, "/acknowledge", map[string]string{"deviceId": deviceID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Delete(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/alerts/"+url.PathEscape(id), nil, nil)
}

func (c *Client) DeleteAll(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/alerts", nil, nil)
}

// LiveURL returns the websocket URL of the live channel for role.
func (c *Client) LiveURL(role model.Role) string {
	u := *c.base
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path += "/ws"
	u.RawQuery = url.Values{"role": {string(role)}}.Encode()
	return u.String()
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		apiErr := &APIError{Status: resp.StatusCode}
		_ = json.NewDecoder(resp.Body).Decode(apiErr)
		return apiErr
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
