package tui

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/fentz26/jml/internal/lifecycle"
	"github.com/fentz26/jml/internal/models"
)

// DefaultClientTimeout is the default timeout for API requests.
const DefaultClientTimeout = 10 * time.Second

// Client wraps HTTP calls to the JML daemon API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new API client with timeout
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: DefaultClientTimeout,
		},
	}
}

// ListEvents fetches lifecycle events, optionally filtered by status.
func (c *Client) ListEvents(status string) ([]models.LifecycleEvent, error) {
	path := "/api/events/"
	if status != "" {
		path += "?status=" + url.QueryEscape(status)
	}
	var events []models.LifecycleEvent
	if err := c.get(path, &events); err != nil {
		return nil, err
	}
	return events, nil
}

// GetEvent fetches a single event with its tasks.
func (c *Client) GetEvent(id string) (*models.LifecycleEvent, error) {
	var ev models.LifecycleEvent
	if err := c.get("/api/events/"+url.PathEscape(id), &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

// GetAuditTrail fetches the decision records written for an event.
func (c *Client) GetAuditTrail(id string) ([]models.PDREntry, error) {
	var entries []models.PDREntry
	if err := c.get("/api/events/"+url.PathEscape(id)+"/audit", &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// ResumeEvent asks the daemon to run a pending event now.
func (c *Client) ResumeEvent(id string) (*models.LifecycleEvent, error) {
	var ev models.LifecycleEvent
	if err := c.post("/api/events/"+url.PathEscape(id)+"/resume", nil, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

// CancelEvent cancels a pending event.
func (c *Client) CancelEvent(id string) (*models.LifecycleEvent, error) {
	var ev models.LifecycleEvent
	if err := c.post("/api/events/"+url.PathEscape(id)+"/cancel", nil, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

// Detect runs a joiner/leaver detection pass on the daemon.
func (c *Client) Detect() (*lifecycle.DetectionResult, error) {
	var res lifecycle.DetectionResult
	if err := c.post("/api/detect", nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// FlushNotifications retries delivery of pending notifications.
func (c *Client) FlushNotifications() (int, error) {
	var res struct {
		Delivered int `json:"delivered"`
	}
	if err := c.post("/api/notifications/flush", nil, &res); err != nil {
		return 0, err
	}
	return res.Delivered, nil
}

// CheckHealth checks if the daemon is healthy
func (c *Client) CheckHealth() (bool, error) {
	resp, err := c.httpClient.Get(c.baseURL + "/health")
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, nil
	}

	var health struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return false, err
	}

	return health.OK, nil
}

func (c *Client) get(path string, out any) error {
	resp, err := c.httpClient.Get(c.baseURL + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeResponse(resp, out)
}

func (c *Client) post(path string, data, out any) error {
	var body io.Reader = http.NoBody
	if data != nil {
		jsonData, err := json.Marshal(data)
		if err != nil {
			return err
		}
		body = bytes.NewReader(jsonData)
	}

	resp, err := c.httpClient.Post(c.baseURL+path, "application/json", body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeResponse(resp, out)
}

func decodeResponse(resp *http.Response, out any) error {
	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		body, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("API error (%d): %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("API error (%d): %s", resp.StatusCode, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
