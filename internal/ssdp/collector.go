package ssdp

import (
	"context"
	"errors"
	"net"
	"os"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
)

type Collector struct {
	logger *zap.Logger
}

func NewCollector(logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Collector{logger: logger}
}

type datagram struct {
	sock    *Socket
	payload []byte
	err     error
}

// Collect reads search responses from every socket until the deadline
// passes, ctx is done or no socket is left. It returns the entries seen so
// far, one per location in arrival order, and closes every socket before
// returning.
func (c *Collector) Collect(ctx context.Context, sockets []*Socket, deadline time.Time) []Entry {
	defer closeAll(sockets)

	entries := []Entry{}
	wait := time.Until(deadline)
	if len(sockets) == 0 || wait <= 0 {
		return entries
	}

	events := make(chan datagram)
	done := make(chan struct{})
	var readers sync.WaitGroup
	for _, sock := range sockets {
		readers.Add(1)
		go func(sock *Socket) {
			defer readers.Done()
			readSocket(sock, deadline, events, done)
		}(sock)
	}
	defer func() {
		close(done)
		closeAll(sockets)
		readers.Wait()
	}()

	timer := time.NewTimer(wait)
	defer timer.Stop()

	seen := make(map[string]struct{})
	remaining := len(sockets)
	for remaining > 0 {
		select {
		case <-ctx.Done():
			return entries
		case <-timer.C:
			return entries
		case ev := <-events:
			if ev.err != nil {
				remaining--
				if !isTimeout(ev.err) {
					c.logger.Warn("ssdp_socket_error",
						zap.Stringer("socket", ev.sock),
						zap.Error(ev.err),
					)
					_ = ev.sock.Close()
				}
				continue
			}

			if !utf8.Valid(ev.payload) {
				c.logger.Debug("ssdp_response_not_text", zap.Stringer("socket", ev.sock))
				continue
			}
			location, ok := ParseLocation(ev.payload)
			if !ok {
				c.logger.Debug("ssdp_response_without_location", zap.Stringer("socket", ev.sock))
				continue
			}
			if _, dup := seen[location]; dup {
				continue
			}
			seen[location] = struct{}{}
			entries = append(entries, Entry{Location: location, InterfaceIP: ev.sock.IP})
		}
	}
	return entries
}

func readSocket(sock *Socket, deadline time.Time, events chan<- datagram, done <-chan struct{}) {
	emit := func(ev datagram) bool {
		select {
		case events <- ev:
			return true
		case <-done:
			return false
		}
	}

	if err := sock.Conn.SetReadDeadline(deadline); err != nil {
		emit(datagram{sock: sock, err: err})
		return
	}

	buf := make([]byte, maxDatagram)
	for {
		n, _, err := sock.Conn.ReadFrom(buf)
		if err != nil {
			emit(datagram{sock: sock, err: err})
			return
		}
		payload := append([]byte(nil), buf[:n]...)
		if !emit(datagram{sock: sock, payload: payload}) {
			return
		}
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
