// Package taskapi is the HTTP client for the delivery backend's driver,
// task and order endpoints.
package taskapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"driver-nav-service/internal/domain"
	"driver-nav-service/internal/platform/httpx"
	"driver-nav-service/internal/platform/obs"
	"driver-nav-service/internal/ports"

	"github.com/google/uuid"
)

// Client implements ports.TaskAPI.
type Client struct {
	http    *httpx.Client
	baseURL string
	log     *slog.Logger
}

// New returns a client for baseURL, which includes the version prefix
// (for example http://localhost:8000/v1).
func New(baseURL string, timeout time.Duration, lg *slog.Logger) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("task api: base url is required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("task api: parse base url: %w", err)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		http:    httpx.NewClient(timeout),
		baseURL: strings.TrimRight(baseURL, "/"),
		log:     lg,
	}, nil
}

// IdempotencyKey is stable per (action, id) so a retried call replays the
// backend's stored response instead of acting twice.
func IdempotencyKey(action, id string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(action+"/"+id)).String()
}

type call struct {
	method  string
	path    string
	query   url.Values
	body    any
	idemKey string
}

func (c *Client) do(ctx context.Context, cl call) (*http.Response, error) {
	var payload []byte
	if cl.body != nil {
		b, err := json.Marshal(cl.body)
		if err != nil {
			return nil, fmt.Errorf("encode body: %w", err)
		}
		payload = b
	}

	u := c.baseURL + cl.path
	if len(cl.query) > 0 {
		u += "?" + cl.query.Encode()
	}

	return c.http.DoWithRetry(ctx, func() (*http.Request, error) {
		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, cl.method, u, body)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if cl.idemKey != "" {
			req.Header.Set("Idempotency-Key", cl.idemKey)
		}
		if id := obs.RequestID(ctx); id != "" {
			req.Header.Set("X-Request-ID", id)
		}
		return req, nil
	})
}

func (c *Client) post(ctx context.Context, cl call) error {
	cl.method = http.MethodPost
	resp, err := c.do(ctx, cl)
	if err != nil {
		return err
	}
	io.Copy(io.Discard, resp.Body)
	return resp.Body.Close()
}

type waypointWire struct {
	Lat     *float64 `json:"lat"`
	Lng     *float64 `json:"lng"`
	Name    string   `json:"name"`
	Address string   `json:"address"`
}

func (w *waypointWire) toDomain() *domain.Waypoint {
	if w == nil || w.Lat == nil || w.Lng == nil {
		return nil
	}
	return &domain.Waypoint{Lat: *w.Lat, Lng: *w.Lng, Name: w.Name, Address: w.Address}
}

type taskWire struct {
	ID       string            `json:"id"`
	OrderID  string            `json:"order_id"`
	Status   domain.TaskStatus `json:"status"`
	Pickup   *waypointWire     `json:"pickup"`
	Delivery *waypointWire     `json:"delivery"`
}

type taskResponse struct {
	Task *taskWire `json:"task"`
}

// GetTask returns the driver's offered or active task, nil when there is
// none. Waypoints with missing coordinates come back nil.
func (c *Client) GetTask(ctx context.Context, driverID string) (_ *domain.Task, err error) {
	defer obs.Time(ctx, c.log, "taskapi.GetTask")(&err)

	resp, err := c.do(ctx, call{method: http.MethodGet, path: "/drivers/" + url.PathEscape(driverID) + "/task"})
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	defer resp.Body.Close()

	var body taskResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("get task: decode response: %w", err)
	}
	if body.Task == nil {
		return nil, nil
	}
	t := body.Task
	return &domain.Task{
		ID:       t.ID,
		OrderID:  t.OrderID,
		Status:   t.Status,
		Pickup:   t.Pickup.toDomain(),
		Delivery: t.Delivery.toDomain(),
	}, nil
}

func (c *Client) UpdateDriver(ctx context.Context, driverID string, u ports.DriverUpdate) (err error) {
	defer obs.Time(ctx, c.log, "taskapi.UpdateDriver")(&err)

	if err := c.post(ctx, call{path: "/drivers/" + url.PathEscape(driverID), body: u}); err != nil {
		return fmt.Errorf("update driver: %w", err)
	}
	return nil
}

func (c *Client) taskAction(ctx context.Context, action, taskID, driverID string) (err error) {
	defer obs.Time(ctx, c.log, "taskapi."+action)(&err)

	cl := call{
		path:    "/tasks/" + url.PathEscape(taskID) + "/" + action,
		idemKey: IdempotencyKey(action, taskID),
	}
	if driverID != "" {
		cl.query = url.Values{"driver_id": {driverID}}
	}
	if err := c.post(ctx, cl); err != nil {
		return fmt.Errorf("%s task %s: %w", action, taskID, err)
	}
	return nil
}

func (c *Client) Accept(ctx context.Context, taskID, driverID string) error {
	return c.taskAction(ctx, "accept", taskID, driverID)
}

func (c *Client) Reject(ctx context.Context, taskID, driverID string) error {
	return c.taskAction(ctx, "reject", taskID, driverID)
}

func (c *Client) Start(ctx context.Context, taskID, driverID string) error {
	return c.taskAction(ctx, "start", taskID, driverID)
}

func (c *Client) Complete(ctx context.Context, taskID, driverID string) error {
	return c.taskAction(ctx, "complete", taskID, driverID)
}

func (c *Client) CompleteReturn(ctx context.Context, taskID string) error {
	return c.taskAction(ctx, "return/complete", taskID, "")
}

type gpsWire struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// DoorstepIDCheck submits a scan session. A 403 is a failed check, not an
// error; its body carries the reason code.
func (c *Client) DoorstepIDCheck(ctx context.Context, orderID, sessionRef string) (_ ports.IDCheckResult, err error) {
	defer obs.Time(ctx, c.log, "taskapi.DoorstepIDCheck")(&err)

	err = c.post(ctx, call{
		path:    "/orders/" + url.PathEscape(orderID) + "/doorstep_id_check/submit",
		body:    map[string]string{"session_ref": sessionRef},
		idemKey: IdempotencyKey("doorstep_id_check", orderID+"/"+sessionRef),
	})
	if err == nil {
		return ports.IDCheckResult{Passed: true}, nil
	}

	var se *httpx.StatusError
	if errors.As(err, &se) && se.Code == http.StatusForbidden {
		return ports.IDCheckResult{ReasonCode: reasonCode(se.Body)}, nil
	}
	return ports.IDCheckResult{}, fmt.Errorf("doorstep id check %s: %w", orderID, err)
}

// reasonCode extracts the code from {"detail": "..."} or {"reason_code": "..."}
// bodies, falling back to the raw text.
func reasonCode(body string) string {
	var v struct {
		Detail     string `json:"detail"`
		ReasonCode string `json:"reason_code"`
	}
	if json.Unmarshal([]byte(body), &v) == nil {
		if v.ReasonCode != "" {
			return v.ReasonCode
		}
		if v.Detail != "" {
			return v.Detail
		}
	}
	if body == "" {
		return "UNKNOWN"
	}
	return body
}

func (c *Client) DeliverConfirm(ctx context.Context, orderID, attestationRef string, gps domain.LatLng) (err error) {
	defer obs.Time(ctx, c.log, "taskapi.DeliverConfirm")(&err)

	err = c.post(ctx, call{
		path: "/orders/" + url.PathEscape(orderID) + "/deliver/confirm",
		body: struct {
			AttestationRef string  `json:"attestation_ref"`
			GPS            gpsWire `json:"gps"`
		}{attestationRef, gpsWire{gps.Lat, gps.Lng}},
		idemKey: IdempotencyKey("deliver_confirm", orderID),
	})
	if err != nil {
		return fmt.Errorf("confirm delivery %s: %w", orderID, err)
	}
	return nil
}

func (c *Client) Refuse(ctx context.Context, orderID, reasonCode, notes string, gps domain.LatLng) (err error) {
	defer obs.Time(ctx, c.log, "taskapi.Refuse")(&err)

	var n *string
	if notes != "" {
		n = &notes
	}
	err = c.post(ctx, call{
		path: "/orders/" + url.PathEscape(orderID) + "/refuse",
		body: struct {
			ReasonCode string  `json:"reason_code"`
			Notes      *string `json:"notes"`
			GPS        gpsWire `json:"gps"`
		}{reasonCode, n, gpsWire{gps.Lat, gps.Lng}},
		idemKey: IdempotencyKey("refuse", orderID),
	})
	if err != nil {
		return fmt.Errorf("refuse order %s: %w", orderID, err)
	}
	return nil
}
