package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var errClientClosed = errors.New("rpc connection closed")

// RPCClient implements Client as JSON-RPC over a single websocket
// connection. Calls may be issued concurrently; responses are routed back
// by request id.
type RPCClient struct {
	conn    *websocket.Conn
	logger  *zap.SugaredLogger
	timeout time.Duration

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan *RPCResponse
	err     error

	done chan struct{}
}

// Dial connects to the repository at url. timeout bounds calls whose context
// carries no deadline; zero disables it.
func Dial(ctx context.Context, url string, timeout time.Duration, logger *zap.SugaredLogger) (*RPCClient, error) {
	dialer := *websocket.DefaultDialer
	dialer.EnableCompression = true

	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to repository %s: %w", url, err)
	}

	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	c := &RPCClient{
		conn:    conn,
		logger:  logger,
		timeout: timeout,
		pending: make(map[string]chan *RPCResponse),
		done:    make(chan struct{}),
	}
	go c.readLoop()

	return c, nil
}

// Close shuts the connection down and waits for the reader to exit.
func (c *RPCClient) Close() error {
	c.writeMu.Lock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	c.writeMu.Unlock()

	err := c.conn.Close()
	<-c.done
	return err
}

func (c *RPCClient) readLoop() {
	defer close(c.done)

	for {
		_, r, err := c.conn.NextReader()
		if err != nil {
			c.fail(err)
			return
		}

		var res RPCResponse
		if err := json.NewDecoder(r).Decode(&res); err != nil {
			c.logger.Warnf("[RPC] Dropping undecodable response: %v", err)
			continue
		}

		c.mu.Lock()
		ch, ok := c.pending[res.ID]
		delete(c.pending, res.ID)
		c.mu.Unlock()

		if !ok {
			c.logger.Debugf("[RPC] Response for unknown request %s", res.ID)
			continue
		}
		ch <- &res
	}
}

func (c *RPCClient) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if websocket.IsCloseError(err, websocket.CloseNormalClosure) || errors.Is(err, websocket.ErrCloseSent) {
		err = errClientClosed
	}
	c.err = err
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
}

func (c *RPCClient) call(ctx context.Context, method string, result any, params ...any) error {
	if _, ok := ctx.Deadline(); !ok && c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	id := uuid.NewString()
	ch := make(chan *RPCResponse, 1)

	c.mu.Lock()
	if c.err != nil {
		err := c.err
		c.mu.Unlock()
		return fmt.Errorf("%s: %w", method, err)
	}
	c.pending[id] = ch
	c.mu.Unlock()

	c.writeMu.Lock()
	err := c.conn.WriteJSON(RPCRequest{ID: id, Method: method, Params: params})
	c.writeMu.Unlock()
	if err != nil {
		c.forget(id)
		return fmt.Errorf("failed to send %s: %w", method, err)
	}

	select {
	case <-ctx.Done():
		c.forget(id)
		return fmt.Errorf("%s: %w", method, ctx.Err())
	case res, ok := <-ch:
		if !ok {
			c.mu.Lock()
			err := c.err
			c.mu.Unlock()
			return fmt.Errorf("%s: %w", method, err)
		}
		if res.Error != nil {
			return fmt.Errorf("%s: %w", method, res.Error)
		}
		if result == nil || len(res.Result) == 0 {
			return nil
		}
		dec := json.NewDecoder(bytes.NewReader(res.Result))
		dec.UseNumber()
		if err := dec.Decode(result); err != nil {
			return fmt.Errorf("failed to decode %s result: %w", method, err)
		}
		return nil
	}
}

func (c *RPCClient) forget(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *RPCClient) ListDocuments(ctx context.Context, filters map[string]any) (*ListResult, error) {
	var res ListResult
	if err := c.call(ctx, "listDocuments", &res, filters); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *RPCClient) GetDocument(ctx context.Context, identification string, viaIdentification bool, filters map[string]any) (Record, error) {
	var rec Record
	if err := c.call(ctx, "getDocument", &rec, identification, viaIdentification, filters); err != nil {
		return nil, err
	}
	return rec, nil
}

func (c *RPCClient) GetAllVersions(ctx context.Context, uuid string) ([]Version, error) {
	var versions []Version
	if err := c.call(ctx, "getAllVersions", &versions, uuid); err != nil {
		return nil, err
	}
	return versions, nil
}

func (c *RPCClient) CreateDocument(ctx context.Context, identification string, data map[string]any, content []byte) (Record, error) {
	var rec Record
	if err := c.call(ctx, "createDocument", &rec, identification, data, content); err != nil {
		return nil, err
	}
	return rec, nil
}

func (c *RPCClient) UpdateDocument(ctx context.Context, uuid, lock string, data map[string]any, content []byte) (Record, error) {
	var rec Record
	if err := c.call(ctx, "updateDocument", &rec, uuid, lock, data, content); err != nil {
		return nil, err
	}
	return rec, nil
}

func (c *RPCClient) DeleteDocument(ctx context.Context, uuid string) error {
	return c.call(ctx, "deleteDocument", nil, uuid)
}

func (c *RPCClient) ObliterateDocument(ctx context.Context, uuid string) error {
	return c.call(ctx, "obliterateDocument", nil, uuid)
}

func (c *RPCClient) LockDocument(ctx context.Context, uuid, lock string) error {
	return c.call(ctx, "lockDocument", nil, uuid, lock)
}

func (c *RPCClient) UnlockDocument(ctx context.Context, uuid, lock string) error {
	return c.call(ctx, "unlockDocument", nil, uuid, lock)
}

func (c *RPCClient) CreateUsageRights(ctx context.Context, data map[string]any) (Record, error) {
	var rec Record
	if err := c.call(ctx, "createUsageRights", &rec, data); err != nil {
		return nil, err
	}
	return rec, nil
}

func (c *RPCClient) ListUsageRights(ctx context.Context, filters map[string]any) (*ListResult, error) {
	var res ListResult
	if err := c.call(ctx, "listUsageRights", &res, filters); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *RPCClient) CreateObjectRelation(ctx context.Context, data map[string]any) (Record, error) {
	var rec Record
	if err := c.call(ctx, "createObjectRelation", &rec, data); err != nil {
		return nil, err
	}
	return rec, nil
}

func (c *RPCClient) ListObjectRelations(ctx context.Context, filters map[string]any) (*ListResult, error) {
	var res ListResult
	if err := c.call(ctx, "listObjectRelations", &res, filters); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *RPCClient) ListAllObjectRelations(ctx context.Context) (*ListResult, error) {
	var res ListResult
	if err := c.call(ctx, "listAllObjectRelations", &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *RPCClient) DeleteObjectRelation(ctx context.Context, uuid string) error {
	return c.call(ctx, "deleteObjectRelation", nil, uuid)
}
