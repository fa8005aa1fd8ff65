// Package heartbeat implements the outbound HTTP client the
// orchestrator's heartbeat loop uses to advertise the server, per §4.6
// and §6. It owns only the wire shape and the request/response
// round-trip; salt rotation and the one-shot advertised-URL cell stay
// with the orchestrator, which is the thing that actually needs them.
package heartbeat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// Request is every field the heartbeat protocol's query string carries.
type Request struct {
	Port   uint16
	Max    int
	Name   string
	Public bool
	Salt   string
	Users  int
}

// Response mirrors the heartbeat service's JSON reply:
// {status, response, errors: [[string]]}.
type Response struct {
	Status   string     `json:"status"`
	Response string     `json:"response"`
	Errors   [][]string `json:"errors"`
}

// Succeeded reports whether the service accepted the ping.
func (r *Response) Succeeded() bool { return r.Status == "success" }

// Client issues heartbeat GET requests against a configured URL.
type Client struct {
	HTTP *http.Client
}

// NewClient returns a Client using http.DefaultTransport.
func NewClient() *Client {
	return &Client{HTTP: &http.Client{}}
}

// Ping issues one GET to target, bounded by ctx, and decodes the JSON
// reply. A non-200 status or a malformed body is reported as an error;
// the caller (the heartbeat loop) is responsible for treating that as
// a warning and retrying on the next tick rather than failing hard.
func (c *Client) Ping(ctx context.Context, target string, req Request) (*Response, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("heartbeat: parse url: %w", err)
	}
	q := u.Query()
	q.Set("port", strconv.Itoa(int(req.Port)))
	q.Set("max", strconv.Itoa(req.Max))
	q.Set("name", req.Name)
	q.Set("public", strconv.FormatBool(req.Public))
	q.Set("version", "7")
	q.Set("salt", req.Salt)
	q.Set("users", strconv.Itoa(req.Users))
	q.Set("json", "true")
	u.RawQuery = q.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("heartbeat: build request: %w", err)
	}

	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("heartbeat: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("heartbeat: got status %d", resp.StatusCode)
	}

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("heartbeat: decode response: %w", err)
	}
	return &out, nil
}
