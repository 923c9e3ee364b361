package websocket

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"auction-storefront/internal/domain"
	"auction-storefront/pkg/logger"

	"github.com/gorilla/websocket"
)

const (
	subjectPlaceholder = "{subject}"
	writeWait          = 5 * time.Second
)

type DialerConfig struct {
	BaseURL          string
	PathTemplate     string
	HandshakeTimeout time.Duration
	PingInterval     time.Duration
	// PongWait is how long the socket may stay silent (no pong, no data)
	// before reads fail. Only enforced when PingInterval is set.
	PongWait time.Duration
}

// Dialer opens live-update sockets for a subject. It implements domain.LiveDialer.
type Dialer struct {
	cfg      DialerConfig
	identity domain.IdentitySource
	log      logger.Logger
}

func NewDialer(cfg DialerConfig, identity domain.IdentitySource, log logger.Logger) *Dialer {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if cfg.PingInterval > 0 && cfg.PongWait <= 0 {
		cfg.PongWait = 2 * cfg.PingInterval
	}
	return &Dialer{cfg: cfg, identity: identity, log: log}
}

// URL builds the socket URL for subjectID from the base URL and path template.
func (d *Dialer) URL(subjectID string) (string, error) {
	base, err := url.Parse(strings.TrimRight(d.cfg.BaseURL, "/"))
	if err != nil {
		return "", fmt.Errorf("failed to parse live base URL '%s': %w", d.cfg.BaseURL, err)
	}
	if base.Scheme != "ws" && base.Scheme != "wss" {
		return "", fmt.Errorf("live base URL '%s' must be ws or wss", d.cfg.BaseURL)
	}

	path := strings.ReplaceAll(d.cfg.PathTemplate, subjectPlaceholder, url.PathEscape(subjectID))
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return base.String() + path, nil
}

func (d *Dialer) Dial(ctx context.Context, subjectID string) (domain.LiveTransport, error) {
	target, err := d.URL(subjectID)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	if ident, ok := d.identity.Current(); ok && ident.Token != "" {
		header.Set("Authorization", "Bearer "+ident.Token)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: d.cfg.HandshakeTimeout,
	}
	conn, resp, err := dialer.DialContext(ctx, target, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("handshake with %s failed with status %d: %w", target, resp.StatusCode, err)
		}
		return nil, err
	}

	c := &Connection{
		conn:    conn,
		subject: subjectID,
		done:    make(chan struct{}),
		log:     d.log,
	}
	if d.cfg.PingInterval > 0 {
		c.pongWait = d.cfg.PongWait
		c.extendDeadline()
		conn.SetPongHandler(func(string) error {
			c.extendDeadline()
			return nil
		})
		go c.pingLoop(d.cfg.PingInterval)
	}

	d.log.Debug("Live socket dialed", "url", target)
	return c, nil
}

// Connection is one open live-update socket.
type Connection struct {
	conn    *websocket.Conn
	subject string
	log     logger.Logger

	pongWait time.Duration

	writeMu   sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
}

// ReadMessage blocks until the next data frame arrives.
func (c *Connection) ReadMessage() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			c.log.Debug("Live socket closed unexpectedly", "subject", c.subject, "error", err)
		}
		return nil, err
	}
	c.extendDeadline()
	return data, nil
}

func (c *Connection) extendDeadline() {
	if c.pongWait <= 0 {
		return
	}
	if err := c.conn.SetReadDeadline(time.Now().Add(c.pongWait)); err != nil {
		c.log.Debug("Failed to extend live socket read deadline", "subject", c.subject, "error", err)
	}
}

func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)

		c.writeMu.Lock()
		c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait),
		)
		c.writeMu.Unlock()

		err = c.conn.Close()
	})
	return err
}

func (c *Connection) pingLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			c.writeMu.Unlock()
			if err != nil {
				c.log.Debug("Live socket ping failed", "subject", c.subject, "error", err)
				// Unblocks ReadMessage so the owner sees the failure.
				c.conn.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}
