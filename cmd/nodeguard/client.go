package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultAPIUrl = "http://127.0.0.1:8617/api"

// APIClient talks to a running agent's control API.
type APIClient struct {
	base   string
	client *http.Client
}

func NewAPIClient(base string, timeout time.Duration) *APIClient {
	if base == "" {
		base = defaultAPIUrl
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &APIClient{
		base:   strings.TrimRight(base, "/"),
		client: &http.Client{Timeout: timeout},
	}
}

// IsReachable probes the healthz endpoint.
func (c *APIClient) IsReachable() bool {
	resp, err := c.client.Get(c.base + "/healthz")
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}

// Status fetches the status of one program, or all when name is empty.
func (c *APIClient) Status(name string) (json.RawMessage, error) {
	u := c.base + "/status"
	if name != "" {
		u += "?name=" + url.QueryEscape(name)
	}
	resp, err := c.client.Get(u)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	return decodeResponse(resp)
}

// StartProgram asks the agent to start a stopped program.
func (c *APIClient) StartProgram(name string) error {
	return c.post("/start", name)
}

// StopProgram asks the agent to gracefully stop a program.
func (c *APIClient) StopProgram(name string) error {
	return c.post("/stop", name)
}

func (c *APIClient) post(path, name string) error {
	u := c.base + path + "?name=" + url.QueryEscape(name)
	resp, err := c.client.Post(u, "application/json", nil)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	_, err = decodeResponse(resp)
	return err
}

func decodeResponse(resp *http.Response) (json.RawMessage, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		var er struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &er) == nil && er.Error != "" {
			return nil, fmt.Errorf("agent: %s", er.Error)
		}
		return nil, fmt.Errorf("agent: unexpected status %d", resp.StatusCode)
	}
	return body, nil
}
