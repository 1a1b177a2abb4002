package adb

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"
)

// ADB host protocol framing: requests and string replies are prefixed with
// their length as four hex digits; every request is answered by OKAY or FAIL.
const (
	statusOkay = "OKAY"
	statusFail = "FAIL"

	defaultOpTimeout = 10 * time.Second
	maxReplyLen      = 1 << 16
)

// FailError is a FAIL reply from the ADB server.
type FailError struct {
	Request string
	Message string
}

func (e *FailError) Error() string {
	return fmt.Sprintf("adb %s: %s", e.Request, e.Message)
}

type hostConn struct {
	conn net.Conn
	r    *bufio.Reader
}

// dialer matches net.Dialer.DialContext.
type dialer func(ctx context.Context, network, addr string) (net.Conn, error)

func openHost(ctx context.Context, dial dialer, addr string) (*hostConn, error) {
	conn, err := dial(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial adb server %s: %w", addr, err)
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultOpTimeout)
	}
	_ = conn.SetDeadline(deadline)
	return &hostConn{conn: conn, r: bufio.NewReader(conn)}, nil
}

func (h *hostConn) Close() error { return h.conn.Close() }

// request sends one host request and consumes the OKAY/FAIL status.
func (h *hostConn) request(req string) error {
	if _, err := fmt.Fprintf(h.conn, "%04x%s", len(req), req); err != nil {
		return fmt.Errorf("write adb request %q: %w", req, err)
	}
	status := make([]byte, 4)
	if _, err := io.ReadFull(h.r, status); err != nil {
		return fmt.Errorf("read adb status for %q: %w", req, err)
	}
	switch string(status) {
	case statusOkay:
		return nil
	case statusFail:
		msg, err := h.readString()
		if err != nil {
			return fmt.Errorf("read adb failure for %q: %w", req, err)
		}
		return &FailError{Request: req, Message: msg}
	default:
		return fmt.Errorf("adb %q: unexpected status %q", req, status)
	}
}

// readString reads one length-prefixed reply.
func (h *hostConn) readString() (string, error) {
	head := make([]byte, 4)
	if _, err := io.ReadFull(h.r, head); err != nil {
		return "", err
	}
	n, err := strconv.ParseUint(string(head), 16, 32)
	if err != nil {
		return "", fmt.Errorf("bad length prefix %q: %w", head, err)
	}
	if n > maxReplyLen {
		return "", fmt.Errorf("reply too large: %d bytes", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(h.r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

// readAll drains a stream reply (shell output) until the server closes it.
func (h *hostConn) readAll() (string, error) {
	b, err := io.ReadAll(io.LimitReader(h.r, maxReplyLen*16))
	if err != nil && !errors.Is(err, io.EOF) {
		return string(b), err
	}
	return string(b), nil
}
