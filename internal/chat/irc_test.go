package chat

import (
	"bufio"
	"context"
	"net"
	"strings"
	"testing"
	"time"
)

// pipeClient wires a client to an in-memory connection and returns the
// server side.
func pipeClient(t *testing.T) (*Client, net.Conn) {
	t.Helper()
	clientSide, serverSide := net.Pipe()
	c := NewClient("fake.irc.local:6667")
	c.dial = func(ctx context.Context, network, addr string) (net.Conn, error) {
		return clientSide, nil
	}
	t.Cleanup(func() {
		c.Disconnect()
		serverSide.Close()
	})
	return c, serverSide
}

func readLine(t *testing.T, r *bufio.Reader) string {
	t.Helper()
	line, err := r.ReadString('\n')
	if err != nil {
		t.Fatalf("server read: %v", err)
	}
	return strings.TrimRight(line, "\r\n")
}

// tryReadLine is readLine for server goroutines, where failing the test
// directly is not allowed.
func tryReadLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	return strings.TrimRight(line, "\r\n"), err
}

func TestConnectHandshakeAnonymous(t *testing.T) {
	c, server := pipeClient(t)
	r := bufio.NewReader(server)

	done := make(chan error, 1)
	go func() { done <- c.Connect(context.Background(), "#Ninja", "") }()

	if got := readLine(t, r); got != "NICK justinfan12345" {
		t.Errorf("nick line = %q", got)
	}
	if got := readLine(t, r); got != "JOIN #ninja" {
		t.Errorf("join line = %q", got)
	}
	if err := <-done; err != nil {
		t.Fatalf("Connect: %v", err)
	}
}

func TestConnectHandshakeWithToken(t *testing.T) {
	c, server := pipeClient(t)
	r := bufio.NewReader(server)

	done := make(chan error, 1)
	go func() { done <- c.Connect(context.Background(), "ninja", "abc123") }()

	if got := readLine(t, r); got != "PASS oauth:abc123" {
		t.Errorf("pass line = %q", got)
	}
	if got := readLine(t, r); got != "NICK justinfan12345" {
		t.Errorf("nick line = %q", got)
	}
	if got := readLine(t, r); got != "JOIN #ninja" {
		t.Errorf("join line = %q", got)
	}
	if err := <-done; err != nil {
		t.Fatalf("Connect: %v", err)
	}
}

func TestCollectWindow(t *testing.T) {
	c, server := pipeClient(t)
	r := bufio.NewReader(server)

	pong := make(chan string, 1)
	go func() {
		// Consume the handshake, then play a short session.
		tryReadLine(r)
		tryReadLine(r)
		script := []string{
			":alice!alice@alice.tmi.twitch.tv PRIVMSG #ninja :first message",
			"PING :tmi.twitch.tv",
			":bob!bob@bob.tmi.twitch.tv PRIVMSG #ninja :second: with colon",
			"this line is not irc at all",
			":carol!carol@carol.tmi.twitch.tv PRIVMSG #ninja :third",
		}
		for _, line := range script {
			if _, err := server.Write([]byte(line + "\r\n")); err != nil {
				return
			}
			if strings.HasPrefix(line, "PING") {
				reply, err := tryReadLine(r)
				if err != nil {
					return
				}
				pong <- reply
			}
		}
	}()

	if err := c.Connect(context.Background(), "ninja", ""); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	res, err := c.Collect(1200 * time.Millisecond)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if res.MessageCount != 3 || len(res.Messages) != 3 {
		t.Fatalf("expected 3 messages, got count=%d len=%d", res.MessageCount, len(res.Messages))
	}
	select {
	case reply := <-pong:
		if reply != "PONG :tmi.twitch.tv" {
			t.Errorf("keepalive reply = %q", reply)
		}
	default:
		t.Error("keepalive challenge was never answered")
	}
	if res.Messages[0].Username != "alice" || res.Messages[0].Text != "first message" {
		t.Errorf("first message wrong: %+v", res.Messages[0])
	}
	if res.Messages[1].Text != "second: with colon" {
		t.Errorf("colons in body must survive: %+v", res.Messages[1])
	}
	if res.Messages[2].Username != "carol" {
		t.Errorf("third message wrong: %+v", res.Messages[2])
	}
	for _, m := range res.Messages {
		if m.CollectedAt.IsZero() {
			t.Errorf("message missing timestamp: %+v", m)
		}
	}
}

func TestCollectReturnsPartialOnDisconnect(t *testing.T) {
	c, server := pipeClient(t)
	r := bufio.NewReader(server)

	go func() {
		tryReadLine(r)
		tryReadLine(r)
		server.Write([]byte(":dave!dave@d PRIVMSG #ninja :only one\r\n"))
		server.Close()
	}()

	if err := c.Connect(context.Background(), "ninja", ""); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	start := time.Now()
	res, err := c.Collect(10 * time.Second)
	if err == nil {
		t.Fatal("expected a read error after disconnect")
	}
	if time.Since(start) > 5*time.Second {
		t.Error("disconnect did not end the window early")
	}
	if res == nil || res.MessageCount != 1 {
		t.Fatalf("expected the partial result, got %+v", res)
	}
}

func TestCollectBeforeConnect(t *testing.T) {
	c := NewClient("")
	if c.addr != DefaultServer {
		t.Errorf("empty address must default to %s, got %s", DefaultServer, c.addr)
	}
	if _, err := c.Collect(time.Second); err != ErrNotConnected {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
}

func TestDisconnectIsAlwaysSafe(t *testing.T) {
	c := NewClient("")
	c.Disconnect()
	c.Disconnect()

	connected, server := pipeClient(t)
	r := bufio.NewReader(server)
	go func() {
		tryReadLine(r)
		tryReadLine(r)
	}()
	if err := connected.Connect(context.Background(), "ninja", ""); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	connected.Disconnect()
	connected.Disconnect()
	if _, err := connected.Collect(time.Second); err != ErrNotConnected {
		t.Errorf("collect after disconnect should report not connected, got %v", err)
	}
}

func TestParsePrivmsg(t *testing.T) {
	cases := []struct {
		line     string
		username string
		text     string
		ok       bool
	}{
		{":nick!nick@host PRIVMSG #chan :hello", "nick", "hello", true},
		{":nick!nick@host PRIVMSG #chan :a:b:c", "nick", "a:b:c", true},
		{"PING :tmi.twitch.tv", "", "", false},
		{":tmi.twitch.tv 001 justinfan12345 :Welcome", "", "", false},
		{"garbage", "", "", false},
		{":!@ PRIVMSG #chan :no sender", "", "", false},
	}
	for _, tc := range cases {
		u, text, ok := parsePrivmsg(tc.line)
		if ok != tc.ok || u != tc.username || text != tc.text {
			t.Errorf("parsePrivmsg(%q) = (%q, %q, %v), want (%q, %q, %v)",
				tc.line, u, text, ok, tc.username, tc.text, tc.ok)
		}
	}
}
