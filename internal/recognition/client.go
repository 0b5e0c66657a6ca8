package recognition

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/kiliankoe/semadash/internal/semaphore"
)

// ErrUnavailable signals that the recognition service could not be reached
// or answered with garbage. It is surfaced at most once per notice window;
// suppressed failures look like "no detection".
var ErrUnavailable = errors.New("recognition service unavailable")

// DefaultNoticeWindow is how long outage notices stay suppressed after one
// has been surfaced.
const DefaultNoticeWindow = 10 * time.Second

// Result is one accepted classification: the detected letter and the
// confidence the service reported for it.
type Result struct {
	Letter     semaphore.Letter `json:"letter"`
	Confidence float64          `json:"confidence"`
}

// Client consumes the remote semaphore classifier. A Client issues exactly
// one request per Detect call; retrying is the job of the next scheduled
// poll.
type Client struct {
	BaseURL   string
	Threshold float64

	NoticeWindow time.Duration

	http *http.Client

	mu         sync.Mutex
	nextNotice time.Time
	now        func() time.Time
}

func New(baseURL string, threshold float64) *Client {
	return &Client{
		BaseURL:      strings.TrimRight(baseURL, "/"),
		Threshold:    threshold,
		NoticeWindow: DefaultNoticeWindow,
		http:         &http.Client{Timeout: 10 * time.Second},
		now:          time.Now,
	}
}

type predictRequest struct {
	Image string `json:"image"`
}

type predictResponse struct {
	DetectedLetter string  `json:"detected_letter"`
	Confidence     float64 `json:"confidence"`
}

// Detect sends one captured frame to the classifier and returns the
// recognized letter, or (nil, nil) when nothing usable was detected this
// tick. Service failures are folded into "no detection" as well, except
// that the first failure per notice window returns ErrUnavailable so the
// caller can surface it once.
func (c *Client) Detect(ctx context.Context, frame []byte) (*Result, error) {
	payload := predictRequest{Image: base64.StdEncoding.EncodeToString(frame)}
	b, _ := json.Marshal(payload)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/predict", bytes.NewReader(b))
	if err != nil {
		return nil, c.outage(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, c.outage(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, c.outage(fmt.Errorf("status %d", resp.StatusCode))
	}

	var out predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, c.outage(err)
	}
	if out.DetectedLetter == "" || out.Confidence < c.Threshold {
		return nil, nil
	}
	letter := semaphore.Letter(strings.ToUpper(out.DetectedLetter))
	if !semaphore.Valid(letter) {
		return nil, nil
	}
	return &Result{Letter: letter, Confidence: out.Confidence}, nil
}

// Ping probes the service with a bare GET. Meant for a startup liveness
// check; failure is advisory, not fatal.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/predict", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("recognition service status %d", resp.StatusCode)
	}
	return nil
}

// outage records a service failure and decides whether it should be
// surfaced. The cooldown timestamp keeps transient flakiness from spamming
// the player with notices.
func (c *Client) outage(cause error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if now.Before(c.nextNotice) {
		return nil
	}
	c.nextNotice = now.Add(c.NoticeWindow)
	return fmt.Errorf("%w: %v", ErrUnavailable, cause)
}
