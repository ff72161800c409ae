// Package testutil holds helpers shared by integration tests.
package testutil

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"testing"
	"time"
)

// DefaultTimeout bounds each read or write made by a TelnetClient.
const DefaultTimeout = 5 * time.Second

// TelnetClient is a line-oriented Telnet client for integration testing.
type TelnetClient struct {
	conn   net.Conn
	reader *bufio.Reader
	t      testing.TB
	name   string
}

// NewTelnetClient dials the given address and returns a test client.
//
// Precondition: addr must be a valid "host:port" string with a listening server.
// Postcondition: Returns a connected TelnetClient or fails the test.
func NewTelnetClient(t testing.TB, addr string) *TelnetClient {
	t.Helper()
	start := time.Now()

	conn, err := net.DialTimeout("tcp", addr, DefaultTimeout)
	if err != nil {
		t.Fatalf("connecting to %s: %v [%s]", addr, err, time.Since(start))
	}

	t.Cleanup(func() {
		conn.Close()
	})

	return &TelnetClient{
		conn:   conn,
		reader: bufio.NewReader(conn),
		t:      t,
		name:   conn.LocalAddr().String(),
	}
}

// ReadLine returns the next server line without its CRLF terminator.
//
// Postcondition: Returns a line or fails the test on timeout or EOF.
func (c *TelnetClient) ReadLine() string {
	c.t.Helper()
	line, err := c.readLine()
	if err != nil {
		c.t.Fatalf("%s: reading line: %v", c.name, err)
	}
	return line
}

// Expect reads lines until one equals want, returning the lines skipped
// over before it.
//
// Postcondition: want has been consumed, or the test has failed.
func (c *TelnetClient) Expect(want string) []string {
	c.t.Helper()
	var skipped []string
	for {
		line, err := c.readLine()
		if err != nil {
			c.t.Fatalf("%s: expecting %q after %q: %v", c.name, want, skipped, err)
		}
		if line == want {
			return skipped
		}
		skipped = append(skipped, line)
	}
}

// ReadUntil reads lines until one contains substr and returns all of them,
// joined by newlines.
//
// Precondition: substr must be non-empty.
func (c *TelnetClient) ReadUntil(substr string) string {
	c.t.Helper()
	var seen []string
	for {
		line, err := c.readLine()
		if err != nil {
			c.t.Fatalf("%s: reading until %q: got %q, error: %v", c.name, substr, seen, err)
		}
		seen = append(seen, line)
		if strings.Contains(line, substr) {
			return strings.Join(seen, "\n")
		}
	}
}

// ExpectClosed drains the connection until the server closes it.
//
// Postcondition: Returns the lines received before EOF, or fails on timeout.
func (c *TelnetClient) ExpectClosed() []string {
	c.t.Helper()
	var rest []string
	for {
		line, err := c.readLine()
		if errors.Is(err, io.EOF) {
			return rest
		}
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				c.t.Fatalf("%s: connection still open after %q", c.name, rest)
			}
			// Reset by peer also counts as closed.
			return rest
		}
		rest = append(rest, line)
	}
}

// Send writes a line of text to the server, appending \r\n.
//
// Precondition: text should not contain trailing newline characters.
// Postcondition: text + \r\n is written to the connection.
func (c *TelnetClient) Send(text string) {
	c.t.Helper()
	c.SendRaw([]byte(text + "\r\n"))
}

// SendRaw writes b to the server unchanged.
func (c *TelnetClient) SendRaw(b []byte) {
	c.t.Helper()
	_ = c.conn.SetWriteDeadline(time.Now().Add(DefaultTimeout))
	if _, err := c.conn.Write(b); err != nil {
		c.t.Fatalf("%s: sending %q: %v", c.name, b, err)
	}
}

// Close closes the underlying connection.
func (c *TelnetClient) Close() {
	c.conn.Close()
}

func (c *TelnetClient) readLine() (string, error) {
	_ = c.conn.SetReadDeadline(time.Now().Add(DefaultTimeout))
	line, err := c.reader.ReadString('\n')
	if err != nil {
		if line != "" && errors.Is(err, io.EOF) {
			return "", fmt.Errorf("partial line %q: %w", line, err)
		}
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
