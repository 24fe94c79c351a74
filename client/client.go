package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"ibisync/internal/model"
	v1 "ibisync/pkg/api/v1"
	"ibisync/pkg/logger"

	"go.uber.org/zap"
)

// SyncClient is the library the entity services (inbound, outbound,
// production, stock mutation) embed to push synchronization work and follow
// its outcome. Queue and document calls authenticate with the service API
// key; the event stream needs an operator bearer token.
type SyncClient struct {
	addr        string
	apiKey      string
	bearerToken string
	httpClient  *http.Client

	mu      sync.Mutex
	lastSeq int64

	ctx    context.Context
	cancel context.CancelFunc
}

// EnqueueInput mirrors the enqueue endpoint body.
type EnqueueInput struct {
	SyncType   string `json:"sync_type"`
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
	EntityData string `json:"entity_data"`
	Priority   string `json:"priority,omitempty"`
	Actor      string `json:"actor,omitempty"`
}

// SubmitInput mirrors the customs submission endpoint body.
type SubmitInput struct {
	DocumentNumber string `json:"document_number"`
	DocumentType   string `json:"document_type"`
	Payload        string `json:"payload"`
}

func NewSyncClient(addr, apiKey string) *SyncClient {
	ctx, cancel := context.WithCancel(context.Background())
	return &SyncClient{
		addr:       addr,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 0},
		ctx:        ctx,
		cancel:     cancel,
	}
}

// SetBearerToken enables the operator endpoints, including WatchEvents.
func (c *SyncClient) SetBearerToken(token string) {
	c.bearerToken = token
}

func (c *SyncClient) Close() {
	c.cancel()
}

func (c *SyncClient) Enqueue(ctx context.Context, in EnqueueInput) (*model.SyncQueueItem, error) {
	var out struct {
		Item *model.SyncQueueItem `json:"item"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/v1/sync/queue", in, &out); err != nil {
		return nil, err
	}
	return out.Item, nil
}

func (c *SyncClient) GetItem(ctx context.Context, itemID string) (*model.SyncQueueItem, error) {
	var item model.SyncQueueItem
	if err := c.doJSON(ctx, http.MethodGet, "/v1/sync/queue/"+itemID, nil, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

func (c *SyncClient) ListQueue(ctx context.Context, status string) ([]model.SyncQueueItem, error) {
	path := "/v1/sync/queue"
	if status != "" {
		path += "?status=" + status
	}
	var out struct {
		Items []model.SyncQueueItem `json:"items"`
	}
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

func (c *SyncClient) SubmitDocument(ctx context.Context, in SubmitInput) (string, error) {
	var out struct {
		CeisaReference string `json:"ceisa_reference"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/v1/sync/ceisa/documents", in, &out); err != nil {
		return "", err
	}
	return out.CeisaReference, nil
}

func (c *SyncClient) CheckDocumentStatus(ctx context.Context, reference string) (*model.CeisaStatusRecord, error) {
	var out struct {
		Record *model.CeisaStatusRecord `json:"record"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/sync/ceisa/documents/"+reference, nil, &out); err != nil {
		return nil, err
	}
	return out.Record, nil
}

func (c *SyncClient) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body *bytes.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.addr+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Ibis-Key", c.apiKey)
	if c.bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearerToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		if apiErr.Error != "" {
			return fmt.Errorf("%s %s: %s (status %d)", method, path, apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// WatchEvents follows the server event stream, reconnecting with exponential
// backoff and resuming from the last sequence seen. When the server signals
// that the replay window was missed, onResync is called so the caller can
// refetch the queue and submission listings before events resume.
func (c *SyncClient) WatchEvents(onEvent func(v1.SyncEvent), onResync func()) {
	go c.runWatchLoop(onEvent, onResync)
}

func (c *SyncClient) runWatchLoop(onEvent func(v1.SyncEvent), onResync func()) {
	backoff := time.Second
	maxBackoff := 30 * time.Second
	for {
		select {
		case <-c.ctx.Done():
			return
		default:
			c.mu.Lock()
			url := fmt.Sprintf("%s/v1/admin/stream?last_seq=%d", c.addr, c.lastSeq)
			c.mu.Unlock()

			// Use sub-context for request cancellation
			reqCtx, reqCancel := context.WithCancel(c.ctx)
			req, _ := http.NewRequestWithContext(reqCtx, "GET", url, nil)
			req.Header.Set("Accept", "text/event-stream")
			if c.bearerToken != "" {
				req.Header.Set("Authorization", "Bearer "+c.bearerToken)
			}
			resp, err := c.httpClient.Do(req)
			if err != nil {
				reqCancel()
				jitter := time.Duration(rand.Int63n(int64(backoff / 2)))
				logger.Warn("event stream disconnected", zap.Error(err))
				time.Sleep(backoff + jitter)
				backoff *= 2
				if backoff > maxBackoff {
					backoff = maxBackoff
				}
				continue
			}

			// Watchdog for heartbeats
			var lastActivity int64 = time.Now().Unix()
			go func() {
				ticker := time.NewTicker(5 * time.Second)
				defer ticker.Stop()
				for {
					select {
					case <-reqCtx.Done():
						return
					case <-ticker.C:
						if time.Now().Unix()-atomic.LoadInt64(&lastActivity) > 25 {
							logger.Warn("event stream heartbeat timeout, reconnecting")
							reqCancel()
							return
						}
					}
				}
			}()

			backoff = time.Second
			scanner := bufio.NewScanner(resp.Body)

			var eventType string
			var dataBuffer bytes.Buffer

			for scanner.Scan() {
				atomic.StoreInt64(&lastActivity, time.Now().Unix())
				line := scanner.Text()
				if line == "" {
					// Process the accumulated message
					if eventType == "reset" {
						logger.Warn("replay window missed, resync required")
						c.mu.Lock()
						c.lastSeq = 0
						c.mu.Unlock()
						if onResync != nil {
							onResync()
						}
					} else if eventType == "ping" {
						eventType = ""
						dataBuffer.Reset()
						continue
					} else if dataBuffer.Len() > 0 {
						var ev v1.SyncEvent
						if err := json.Unmarshal(dataBuffer.Bytes(), &ev); err == nil {
							c.handleEvent(ev, onEvent)
						} else {
							logger.Error("failed to unmarshal sync event", zap.Error(err))
						}
					}

					// Reset buffers for next message
					eventType = ""
					dataBuffer.Reset()
					continue
				}

				if strings.HasPrefix(line, "event: ") {
					eventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
				} else if strings.HasPrefix(line, "data:") {
					// SSE permits multiple data lines, joined by newline
					if dataBuffer.Len() > 0 {
						dataBuffer.WriteString("\n")
					}
					dataBuffer.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
				}
			}
			reqCancel()
			resp.Body.Close()
		}
	}
}

func (c *SyncClient) handleEvent(ev v1.SyncEvent, onEvent func(v1.SyncEvent)) {
	c.mu.Lock()
	if ev.Seq <= c.lastSeq {
		c.mu.Unlock()
		return
	}
	c.lastSeq = ev.Seq
	c.mu.Unlock()

	if onEvent != nil {
		onEvent(ev)
	}
}
