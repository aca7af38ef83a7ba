// Package relay implements the transport adapter over a websocket relay
// speaking a small JSON-array protocol (see messages.go). The client keeps a
// single connection, multiplexes subscriptions over it, and correlates
// publish acks by event id.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"nhooyr.io/websocket"

	"github.com/opentill/tillsync/internal/models"
	"github.com/opentill/tillsync/internal/transport"
)

// sessionTokenTTL bounds how long a minted AUTH token stays valid.
const sessionTokenTTL = 12 * time.Hour

// maxFrameSize bounds incoming frames; envelopes for binary-heavy records can
// be large.
const maxFrameSize = 4 << 20

// okResult is the outcome of a publish, delivered by the read loop.
type okResult struct {
	accepted bool
	reason   string
}

// subscription routes incoming EVENT frames for one subscription id.
type subscription struct {
	events  chan Event    // query collection, nil for live subscriptions
	eose    chan struct{} // closed once the relay signals end-of-stored-events
	quit    chan struct{} // closed by endSubscription, unblocks pending sends
	handler transport.Handler
}

// Client is a websocket relay client implementing transport.Adapter.
type Client struct {
	author string
	logger *slog.Logger

	conn    *websocket.Conn
	writeMu sync.Mutex // one writer at a time on the socket

	mu      sync.Mutex
	pending map[string]chan okResult
	subs    map[string]*subscription
	closed  bool

	done chan struct{} // closed when the read loop exits
}

// compile-time conformance check
var _ transport.Adapter = (*Client)(nil)

// Dial connects to the relay, authenticates with a session token, and starts
// the read loop. The author string identifies this device on the relay.
func Dial(ctx context.Context, url, tenantSecret, author string, logger *slog.Logger) (*Client, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial relay: %w", err)
	}
	conn.SetReadLimit(maxFrameSize)

	c := &Client{
		author:  author,
		logger:  logger,
		conn:    conn,
		pending: make(map[string]chan okResult),
		subs:    make(map[string]*subscription),
		done:    make(chan struct{}),
	}

	token, err := SessionToken(tenantSecret, author, sessionTokenTTL)
	if err != nil {
		conn.Close(websocket.StatusInternalError, "auth failed")
		return nil, err
	}
	if err := c.writeFrame(ctx, verbAuth, token); err != nil {
		conn.Close(websocket.StatusInternalError, "auth failed")
		return nil, err
	}

	go c.readLoop()

	return c, nil
}

// Close shuts the connection down and fails all in-flight operations.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	err := c.conn.Close(websocket.StatusNormalClosure, "client closed")
	<-c.done
	return err
}

// Publish sends an addressable record and waits for the relay's OK.
func (c *Client) Publish(ctx context.Context, kind int, identifier string, payload []byte, tags []transport.Tag) (*transport.Ack, error) {
	event := Event{
		ID:         ComputeEventID(c.author, kind, identifier, payload),
		Author:     c.author,
		Kind:       kind,
		Identifier: identifier,
		Payload:    payload,
		CreatedAt:  time.Now().UnixMilli(),
	}
	for _, tag := range tags {
		event.Tags = append(event.Tags, [2]string{tag.Name, tag.Value})
	}

	ok := make(chan okResult, 1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, fmt.Errorf("relay connection closed")
	}
	c.pending[event.ID] = ok
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, event.ID)
		c.mu.Unlock()
	}()

	if err := c.writeFrame(ctx, verbEvent, event); err != nil {
		return nil, err
	}

	select {
	case res := <-ok:
		if !res.accepted {
			return nil, fmt.Errorf("relay rejected event %s: %s", event.ID, res.reason)
		}
		return &transport.Ack{RemoteID: event.ID}, nil
	case <-c.done:
		return nil, fmt.Errorf("relay connection lost")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Query fetches stored records matching the filter: a REQ that collects
// events until EOSE, then closes the subscription.
func (c *Client) Query(ctx context.Context, filter models.RemoteRecordFilter) ([]transport.RemoteRecord, error) {
	subID := uuid.New().String()
	sub := &subscription{
		events: make(chan Event, 64),
		eose:   make(chan struct{}),
		quit:   make(chan struct{}),
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, fmt.Errorf("relay connection closed")
	}
	c.subs[subID] = sub
	c.mu.Unlock()

	defer c.endSubscription(subID)

	if err := c.writeFrame(ctx, verbReq, subID, filter); err != nil {
		return nil, err
	}

	var records []transport.RemoteRecord
	for {
		select {
		case event := <-sub.events:
			records = append(records, toRemoteRecord(event))
		case <-sub.eose:
			// Drain anything buffered before EOSE was observed.
			for {
				select {
				case event := <-sub.events:
					records = append(records, toRemoteRecord(event))
				default:
					return records, nil
				}
			}
		case <-c.done:
			return nil, fmt.Errorf("relay connection lost")
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Subscribe opens a live subscription; fn is invoked from the read loop for
// every matching record until stop is called or ctx is cancelled.
func (c *Client) Subscribe(ctx context.Context, filter models.RemoteRecordFilter, fn transport.Handler) (func(), error) {
	subID := uuid.New().String()
	sub := &subscription{
		eose:    make(chan struct{}),
		quit:    make(chan struct{}),
		handler: fn,
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, fmt.Errorf("relay connection closed")
	}
	c.subs[subID] = sub
	c.mu.Unlock()

	if err := c.writeFrame(ctx, verbReq, subID, filter); err != nil {
		c.endSubscription(subID)
		return nil, err
	}

	var once sync.Once
	stop := func() {
		once.Do(func() { c.endSubscription(subID) })
	}

	go func() {
		select {
		case <-ctx.Done():
			stop()
		case <-c.done:
		}
	}()

	return stop, nil
}

// endSubscription unregisters the subscription and tells the relay to stop.
func (c *Client) endSubscription(subID string) {
	c.mu.Lock()
	sub, ok := c.subs[subID]
	delete(c.subs, subID)
	closed := c.closed
	c.mu.Unlock()

	if ok {
		close(sub.quit)
	}

	if ok && !closed {
		// Best effort: the connection may already be gone.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.writeFrame(ctx, verbClose, subID); err != nil {
			c.logger.Debug("failed to close subscription", "sub_id", subID, "error", err)
		}
	}
}

// readLoop dispatches incoming frames to pending publishes and live
// subscriptions until the connection dies.
func (c *Client) readLoop() {
	defer close(c.done)

	ctx := context.Background()
	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			c.mu.Lock()
			alreadyClosed := c.closed
			c.closed = true
			c.mu.Unlock()
			if !alreadyClosed {
				c.logger.Warn("relay connection lost", "error", err)
			}
			return
		}

		verb, args, err := decodeFrame(data)
		if err != nil {
			c.logger.Warn("dropping malformed relay frame", "error", err)
			continue
		}

		switch verb {
		case verbOK:
			c.handleOK(args)
		case verbEvent:
			c.handleEvent(args)
		case verbEOSE:
			c.handleEOSE(args)
		case verbNotice:
			var msg string
			if len(args) > 0 {
				_ = json.Unmarshal(args[0], &msg)
			}
			c.logger.Info("relay notice", "message", msg)
		default:
			c.logger.Debug("ignoring unknown relay verb", "verb", verb)
		}
	}
}

func (c *Client) handleOK(args []json.RawMessage) {
	if len(args) < 2 {
		return
	}

	var eventID string
	var accepted bool
	if err := json.Unmarshal(args[0], &eventID); err != nil {
		return
	}
	if err := json.Unmarshal(args[1], &accepted); err != nil {
		return
	}

	var reason string
	if len(args) > 2 {
		_ = json.Unmarshal(args[2], &reason)
	}

	c.mu.Lock()
	ok, exists := c.pending[eventID]
	c.mu.Unlock()
	if exists {
		ok <- okResult{accepted: accepted, reason: reason}
	}
}

func (c *Client) handleEvent(args []json.RawMessage) {
	if len(args) < 2 {
		return
	}

	var subID string
	if err := json.Unmarshal(args[0], &subID); err != nil {
		return
	}

	var event Event
	if err := json.Unmarshal(args[1], &event); err != nil {
		c.logger.Warn("dropping malformed relay event", "error", err)
		return
	}

	c.mu.Lock()
	sub, exists := c.subs[subID]
	c.mu.Unlock()
	if !exists {
		return
	}

	if sub.handler != nil {
		sub.handler(toRemoteRecord(event))
		return
	}

	// Block rather than drop: a dropped stored event would be skipped for
	// good once the pull watermark advances past it. The send unblocks when
	// the query consumes, the query ends, or the connection dies.
	select {
	case sub.events <- event:
	case <-sub.quit:
	case <-c.done:
	}
}

func (c *Client) handleEOSE(args []json.RawMessage) {
	if len(args) < 1 {
		return
	}

	var subID string
	if err := json.Unmarshal(args[0], &subID); err != nil {
		return
	}

	c.mu.Lock()
	sub, exists := c.subs[subID]
	c.mu.Unlock()
	if exists {
		select {
		case <-sub.eose:
		default:
			close(sub.eose)
		}
	}
}

// writeFrame serializes and sends one frame under the write lock.
func (c *Client) writeFrame(ctx context.Context, verb string, args ...any) error {
	data, err := encodeFrame(verb, args...)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("failed to write %s frame: %w", verb, err)
	}
	return nil
}

func toRemoteRecord(event Event) transport.RemoteRecord {
	record := transport.RemoteRecord{
		RemoteID:   event.ID,
		Author:     event.Author,
		Kind:       event.Kind,
		Identifier: event.Identifier,
		Payload:    event.Payload,
		CreatedAt:  event.CreatedAt,
	}
	for _, tag := range event.Tags {
		record.Tags = append(record.Tags, transport.Tag{Name: tag[0], Value: tag[1]})
	}
	return record
}
