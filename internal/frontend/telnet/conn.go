// Package telnet provides the line-oriented TCP transport for the Mancala
// server: framing of client input and the accept path.
package telnet

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"
)

// Telnet IAC (Interpret As Command) constants per RFC 854.
const (
	IAC  byte = 255 // Interpret As Command
	DONT byte = 254
	DO   byte = 253
	WONT byte = 252
	WILL byte = 251
	SB   byte = 250 // Sub-negotiation Begin
	SE   byte = 240 // Sub-negotiation End
	NOP  byte = 241
)

// ErrLineTooLong is returned by ReadLine when a line grows past its limit
// before a terminator arrives.
var ErrLineTooLong = errors.New("line exceeds limit")

// Conn wraps a TCP connection with line framing. Reads and writes may run
// on different goroutines; at most one goroutine may read.
type Conn struct {
	raw    net.Conn
	reader *bufio.Reader
	mu     sync.Mutex

	// skipLF drops a '\n' that immediately follows a '\r' terminator.
	skipLF bool

	writeTimeout time.Duration
}

// NewConn wraps a raw TCP connection.
//
// Precondition: raw must be a valid, open network connection.
// Postcondition: Returns a Conn ready for reading and writing.
func NewConn(raw net.Conn, writeTimeout time.Duration) *Conn {
	return &Conn{
		raw:          raw,
		reader:       bufio.NewReaderSize(raw, 4096),
		writeTimeout: writeTimeout,
	}
}

// ReadLine reads one line terminated by "\n", "\r" or "\r\n", filtering
// Telnet IAC sequences and control bytes other than tab. The terminator is
// discarded and the result is trimmed of surrounding whitespace.
//
// Precondition: limit >= 1.
// Postcondition: Returns the line, or ErrLineTooLong when more than limit
// bytes arrive before a terminator, or the underlying read error (io.EOF
// when the peer closed before a terminator).
func (c *Conn) ReadLine(limit int) (string, error) {
	var line bytes.Buffer
	for {
		b, err := c.reader.ReadByte()
		if err != nil {
			return line.String(), err
		}

		if c.skipLF {
			c.skipLF = false
			if b == '\n' {
				continue
			}
		}

		if b == IAC {
			if err := c.handleIAC(); err != nil {
				return line.String(), err
			}
			continue
		}

		if b == '\n' {
			break
		}
		if b == '\r' {
			c.skipLF = true
			break
		}

		if b < 32 && b != '\t' {
			continue
		}

		if line.Len() >= limit {
			return line.String(), fmt.Errorf("%d bytes without terminator: %w", line.Len()+1, ErrLineTooLong)
		}
		line.WriteByte(b)
	}

	return strings.TrimSpace(line.String()), nil
}

// handleIAC processes a Telnet IAC sequence after the initial IAC byte
// has been read.
func (c *Conn) handleIAC() error {
	cmd, err := c.reader.ReadByte()
	if err != nil {
		return err
	}

	switch cmd {
	case WILL, WONT, DO, DONT:
		_, err := c.reader.ReadByte()
		return err
	case SB:
		for {
			b, err := c.reader.ReadByte()
			if err != nil {
				return err
			}
			if b != IAC {
				continue
			}
			next, err := c.reader.ReadByte()
			if err != nil {
				return err
			}
			if next == SE {
				return nil
			}
		}
	default:
		// NOP, GA, escaped IAC and the rest carry no text.
	}
	return nil
}

// WriteLine sends a line of text followed by \r\n to the client.
//
// Precondition: text should not contain trailing newline characters.
// Postcondition: text + \r\n is written to the connection.
func (c *Conn) WriteLine(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.writeTimeout > 0 {
		_ = c.raw.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	_, err := fmt.Fprintf(c.raw, "%s\r\n", text)
	return err
}

// Close closes the underlying TCP connection. A blocked ReadLine returns
// with an error.
//
// Postcondition: The connection is closed and no longer usable.
func (c *Conn) Close() error {
	return c.raw.Close()
}

// RemoteAddr returns the remote network address of the client.
func (c *Conn) RemoteAddr() net.Addr {
	return c.raw.RemoteAddr()
}
