package transport

import (
	"fmt"
	"sync"
	"time"

	"github.com/magbak/mbei/internal/domain/event"
)

// DefaultDialTimeout bounds how long PeerSender retries a dial before
// reporting the send as failed. Unlike a permanently retrying background
// client, a router send is synchronous with the consistency loop, so it
// cannot block forever on an unreachable peer.
const DefaultDialTimeout = 30 * time.Second

// PeerSender implements router.Sender over one Client per topic, dialing
// lazily and reusing the connection across sends.
type PeerSender struct {
	log Logger

	mu      sync.Mutex
	clients map[string]*Client
	addrs   map[string]string
}

// NewPeerSender builds a sender for the given topic-to-address map, where
// each topic names a peer component (or "central") and its TCP address.
func NewPeerSender(topicAddrs map[string]string, log Logger) *PeerSender {
	return &PeerSender{
		log:     log,
		clients: make(map[string]*Client),
		addrs:   topicAddrs,
	}
}

// Send implements router.Sender.
func (p *PeerSender) Send(topic string, u event.Update) error {
	c, err := p.clientFor(topic)
	if err != nil {
		return err
	}
	_, err = c.Send(topic, u, DefaultDialTimeout)
	return err
}

func (p *PeerSender) clientFor(topic string) (*Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.clients[topic]; ok {
		return c, nil
	}
	addr, ok := p.addrs[topic]
	if !ok {
		return nil, fmt.Errorf("transport: no address configured for topic %q", topic)
	}
	c := NewClient(addr, p.log)
	p.clients[topic] = c
	return c, nil
}

// Close tears down every dialed peer connection.
func (p *PeerSender) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var firstErr error
	for _, c := range p.clients {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
