// Package chat harvests live chat over the Twitch IRC protocol for
// bounded wall-clock windows.
package chat

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"
)

// DefaultServer is the public Twitch IRC endpoint.
const DefaultServer = "irc.chat.twitch.tv:6667"

// anonymousNick is the read-only viewer identity Twitch accepts without
// credentials.
const anonymousNick = "justinfan12345"

// readSlice bounds each blocking read so the wall-clock window is
// re-checked at least once a second. The window is best-effort: a read
// already in flight may extend slightly past the deadline.
const readSlice = time.Second

// ErrNotConnected is returned by Collect before a successful Connect.
var ErrNotConnected = errors.New("chat: not connected")

// Message is one parsed chat line.
type Message struct {
	Username    string    `json:"username"`
	Text        string    `json:"text"`
	CollectedAt time.Time `json:"collected_at"`
}

// Result is the outcome of one Collect window.
type Result struct {
	MessageCount int       `json:"message_count"`
	Messages     []Message `json:"messages"`
}

// Client is a bounded-duration IRC chat collector. One client serves one
// Connect/Collect/Disconnect sequence; it is not safe for concurrent use.
type Client struct {
	addr    string
	dial    func(ctx context.Context, network, addr string) (net.Conn, error)
	conn    net.Conn
	reader  *bufio.Reader
	channel string
}

// NewClient creates a collector for the given IRC server address.
func NewClient(addr string) *Client {
	if addr == "" {
		addr = DefaultServer
	}
	d := &net.Dialer{Timeout: 10 * time.Second}
	return &Client{addr: addr, dial: d.DialContext}
}

// Connect dials the server, authenticates (anonymously when token is
// empty), and joins the channel's chat room.
func (c *Client) Connect(ctx context.Context, channel, token string) error {
	conn, err := c.dial(ctx, "tcp", c.addr)
	if err != nil {
		return fmt.Errorf("chat: connect %s: %w", c.addr, err)
	}
	c.conn = conn
	c.reader = bufio.NewReader(conn)
	c.channel = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(channel), "#"))

	if token != "" {
		if err := c.send("PASS oauth:" + token); err != nil {
			c.Disconnect()
			return err
		}
	}
	if err := c.send("NICK " + anonymousNick); err != nil {
		c.Disconnect()
		return err
	}
	if err := c.send("JOIN #" + c.channel); err != nil {
		c.Disconnect()
		return err
	}
	slog.Info("Chat collector connected", "server", c.addr, "channel", c.channel)
	return nil
}

// Collect reads the stream for roughly the given duration and returns
// every chat message that arrived. Keepalive challenges are answered
// inline and not counted; malformed lines are skipped. A connection-level
// I/O error ends the window early and is returned alongside the partial
// result.
func (c *Client) Collect(duration time.Duration) (*Result, error) {
	if c.conn == nil {
		return nil, ErrNotConnected
	}

	result := &Result{}
	deadline := time.Now().Add(duration)

	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		slice := readSlice
		if remaining < slice {
			slice = remaining
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(slice))

		line, err := c.reader.ReadString('\n')
		if line != "" {
			c.handleLine(strings.TrimRight(line, "\r\n"), result)
		}
		if err != nil {
			var nerr net.Error
			if errors.As(err, &nerr) && nerr.Timeout() {
				continue
			}
			slog.Warn("Chat collector read error", "channel", c.channel, "error", err)
			return result, fmt.Errorf("chat: read: %w", err)
		}
	}
	return result, nil
}

func (c *Client) handleLine(line string, result *Result) {
	if line == "" {
		return
	}
	if strings.HasPrefix(line, "PING") {
		reply := "PONG" + strings.TrimPrefix(line, "PING")
		if err := c.send(reply); err != nil {
			slog.Warn("Chat collector keepalive reply failed", "error", err)
		}
		return
	}
	username, text, ok := parsePrivmsg(line)
	if !ok {
		return
	}
	result.MessageCount++
	result.Messages = append(result.Messages, Message{
		Username:    username,
		Text:        text,
		CollectedAt: time.Now(),
	})
}

// parsePrivmsg extracts the sender and body from a line shaped like
// ":nick!nick@host PRIVMSG #channel :message text".
func parsePrivmsg(line string) (username, text string, ok bool) {
	if !strings.Contains(line, "PRIVMSG") {
		return "", "", false
	}
	parts := strings.SplitN(line, ":", 3)
	if len(parts) < 3 {
		return "", "", false
	}
	username = strings.SplitN(parts[1], "!", 2)[0]
	username = strings.TrimSpace(username)
	if username == "" {
		return "", "", false
	}
	return username, parts[2], true
}

// Disconnect closes the connection. Safe to call at any time, in any
// state, repeatedly.
func (c *Client) Disconnect() {
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
		c.reader = nil
	}
}

func (c *Client) send(line string) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	_, err := c.conn.Write([]byte(line + "\r\n"))
	return err
}
