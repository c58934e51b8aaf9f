// Package caller implements the component's call out to its backing
// application: for every grouped match a query produces, the component asks
// the application what deltas (if any) that match should yield.
package caller

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/magbak/mbei/internal/domain/event"
	"github.com/magbak/mbei/internal/domain/graph"
	"github.com/magbak/mbei/internal/domain/query"
	mbeierrors "github.com/magbak/mbei/internal/infrastructure/errors"
)

// Logger is the narrow logging surface Caller depends on.
type Logger interface {
	Debug(msg string, fields ...interface{})
}

// ApplicationRequest is what a component sends its application for one
// grouped match produced by one event.
type ApplicationRequest struct {
	QueryName       string
	ApplicationName string
	Matches         []query.QueryMatch
	QueryGraph      graph.Graph
	Event           event.Event
}

// ApplicationResponse carries back the deltas the application wants
// asserted in response to the request's match, if any.
type ApplicationResponse struct {
	Deltas []graph.Delta
}

// Caller holds one connection to an application's TCP endpoint, opened by
// Start and reused across calls. After a send or read failure it drops the
// connection and later calls return an error; it does not redial.
type Caller struct {
	addr string
	log  Logger

	mu   sync.Mutex
	conn net.Conn
}

func New(addr string, log Logger) *Caller {
	return &Caller{addr: addr, log: log}
}

// Start performs an initial connection attempt with bounded exponential
// backoff, so a component fails fast at startup rather than discovering an
// unreachable application only on the first match.
func (c *Caller) Start(maxElapsedTime time.Duration) error {
	c.log.Debug("caller: starting", "addr", c.addr)
	b := backoff.NewExponentialBackOff()
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = maxElapsedTime

	conn, err := backoff.RetryWithData(func() (net.Conn, error) {
		return net.Dial("tcp", c.addr)
	}, b)
	if err != nil {
		return mbeierrors.NewNetworkError(c.addr, "connect", err, true)
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.log.Debug("caller: started", "addr", c.addr)
	return nil
}

// CallFunction asks the application for the deltas one grouped match of q
// produces for e. A nil response (or an empty delta list) means no deltas
// — the match doesn't yield anything new right now, which is a normal
// outcome, not an error.
func (c *Caller) CallFunction(q query.Query, match query.GroupedQueryMatch, e event.Event) (*event.Deltas, error) {
	req := ApplicationRequest{
		QueryName:       q.Name,
		ApplicationName: q.Application,
		Matches:         match.GroupedMatches,
		QueryGraph:      q.Graph,
		Event:           e,
	}

	resp, err := c.send(req)
	if err != nil {
		return nil, err
	}
	if len(resp.Deltas) == 0 {
		return nil, nil
	}

	return &event.Deltas{
		DeltasID:        uuid.NewString(),
		OriginID:        e.EventID,
		OriginTimestamp: e.Timestamp,
		Deltas:          resp.Deltas,
	}, nil
}

func (c *Caller) send(req ApplicationRequest) (ApplicationResponse, error) {
	conn, err := c.connection()
	if err != nil {
		return ApplicationResponse{}, err
	}

	payload, err := encode(req)
	if err != nil {
		return ApplicationResponse{}, err
	}
	if err := writeFrame(conn, payload); err != nil {
		c.reset()
		return ApplicationResponse{}, fmt.Errorf("caller: sending request: %w", err)
	}

	respPayload, err := readFrame(conn)
	if err != nil {
		c.reset()
		return ApplicationResponse{}, fmt.Errorf("caller: reading response: %w", err)
	}

	var resp ApplicationResponse
	if err := decode(respPayload, &resp); err != nil {
		return ApplicationResponse{}, err
	}
	return resp, nil
}

func (c *Caller) connection() (net.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil, fmt.Errorf("caller: not started; call Start before CallFunction")
	}
	return c.conn, nil
}

func (c *Caller) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

func (c *Caller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

const maxFrameSize = 64 * 1024 * 1024

func writeFrame(w io.Writer, payload []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

func readFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > maxFrameSize {
		return nil, fmt.Errorf("caller: frame size %d exceeds maximum %d", n, maxFrameSize)
	}
	payload := make([]byte, n)
	_, err := io.ReadFull(r, payload)
	return payload, err
}

func encode(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("caller: encoding: %w", err)
	}
	return buf.Bytes(), nil
}

func decode(payload []byte, v interface{}) error {
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(v); err != nil {
		return fmt.Errorf("caller: decoding: %w", err)
	}
	return nil
}
