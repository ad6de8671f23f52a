package cache

import (
	"encoding/json"
	"fmt"
	"net"
	"sync"

	"looptrader/internal/domain"
)

// Client is a thin synchronous client for the cache service. It keeps one
// connection and allows one in-flight request at a time. There is no retry
// and no buffering: a request/reply failure propagates to the caller, whose
// own retry discipline is the single place failure policy lives.
type Client struct {
	addr string

	mu   sync.Mutex
	conn net.Conn
	enc  *json.Encoder
	dec  *json.Decoder
}

// NewClient creates a client for the given cache service address. The
// connection is established lazily on the first request.
func NewClient(addr string) *Client {
	return &Client{addr: addr}
}

// Read returns the current full snapshot.
func (c *Client) Read() (*Snapshot, error) {
	resp, err := c.do(&Request{Action: ActionRead})
	if err != nil {
		return nil, err
	}
	if resp.Snapshot == nil {
		return nil, fmt.Errorf("cache read: reply carried no snapshot")
	}
	return resp.Snapshot, nil
}

// WritePrice records a price tick in the cache.
func (c *Client) WritePrice(tick domain.PriceTick) error {
	_, err := c.do(&Request{Action: ActionWrite, Kind: KindPrice, Price: &tick})
	return err
}

// WriteOrder records an order status update in the cache.
func (c *Client) WriteOrder(order domain.OrderRecord) error {
	_, err := c.do(&Request{Action: ActionWrite, Kind: KindOrder, Order: &order})
	return err
}

// Close closes the connection if one is open.
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

// do sends one request and waits for its reply. On any transport error the
// connection is dropped so the next request dials fresh.
func (c *Client) do(req *Request) (*Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		conn, err := net.Dial("tcp", c.addr)
		if err != nil {
			return nil, fmt.Errorf("dialing cache at %s: %w", c.addr, err)
		}
		c.conn = conn
		c.enc = json.NewEncoder(conn)
		c.dec = json.NewDecoder(conn)
	}

	if err := c.enc.Encode(req); err != nil {
		c.dropLocked()
		return nil, fmt.Errorf("sending %s request: %w", req.Action, err)
	}

	var resp Response
	if err := c.dec.Decode(&resp); err != nil {
		c.dropLocked()
		return nil, fmt.Errorf("receiving %s reply: %w", req.Action, err)
	}
	if resp.Status != "ok" {
		return nil, fmt.Errorf("cache %s failed: %s", req.Action, resp.Error)
	}
	return &resp, nil
}

func (c *Client) dropLocked() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}
