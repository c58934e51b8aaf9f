package transport

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	mbeierrors "github.com/magbak/mbei/internal/infrastructure/errors"

	"github.com/magbak/mbei/internal/domain/event"
)

// MaxQueueSize is the peer queue size past which Client.Send logs a Warn.
// Send still returns the acked size and succeeds; it does not delay or
// refuse later sends when the size is exceeded.
const MaxQueueSize = 10000

// Client dials a single peer address over TCP and delivers framed updates
// to it, reconnecting with exponential backoff on dial failure. It
// implements the router's Sender interface.
type Client struct {
	addr string
	log  Logger

	mu   sync.Mutex
	conn net.Conn
}

func NewClient(addr string, log Logger) *Client {
	return &Client{addr: addr, log: log}
}

// Send encodes u, dials (or reuses) a connection to the peer with
// exponential backoff, writes the framed payload, and reads back the
// peer's queue-size acknowledgement. maxElapsed bounds how long dialing
// may retry before giving up; zero means retry indefinitely.
func (c *Client) Send(topic string, u event.Update, maxElapsed time.Duration) (queueSize int, err error) {
	payload, err := encodeFrame(u)
	if err != nil {
		return 0, err
	}

	conn, err := c.connect(maxElapsed)
	if err != nil {
		return 0, err
	}

	if err := writeFrame(conn, payload); err != nil {
		c.closeConn()
		return 0, fmt.Errorf("transport: sending to %s: %w", c.addr, err)
	}
	ackPayload, err := readFrame(conn)
	if err != nil {
		c.closeConn()
		return 0, fmt.Errorf("transport: reading ack from %s: %w", c.addr, err)
	}
	size, err := decodeAck(ackPayload)
	if err != nil {
		return 0, err
	}
	if size > MaxQueueSize {
		c.log.Warn("transport: peer queue size exceeds maximum", "peer", c.addr, "topic", topic, "queue_size", size)
	}
	return size, nil
}

func (c *Client) connect(maxElapsed time.Duration) (net.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return c.conn, nil
	}

	b := backoff.NewExponentialBackOff()
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = maxElapsed

	c.log.Debug("transport: dialing peer", "addr", c.addr)
	conn, err := backoff.RetryWithData(func() (net.Conn, error) {
		return net.Dial("tcp", c.addr)
	}, b)
	if err != nil {
		return nil, mbeierrors.NewNetworkError(c.addr, "dial", err, true)
	}
	c.log.Debug("transport: connected to peer", "addr", c.addr)
	c.conn = conn
	return conn, nil
}

func (c *Client) closeConn() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}
