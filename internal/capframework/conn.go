/**
 * Connection Deadline Helper.
 *
 * Handler's Conn interface is deliberately narrow (io.Reader/io.Writer)
 * so --in-fd/--out-fd pipes and --connect sockets share one code path.
 * That means there's no fd to select() on directly; readWithDeadline
 * emulates the same bounded wait either by using the real deadline if
 * the underlying Conn supports it (e.g. *net.TCPConn, *net.UnixConn) or,
 * for a plain os.File pipe pair, via a background reader goroutine.
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */

package capframework

import (
	"errors"
	"net"
	"os"
	"time"
)

type deadlineReader interface {
	SetReadDeadline(t time.Time) error
}

func isTimeout(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) {
		return ne.Timeout()
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	return false
}

// pipeReadResult carries one background read's outcome back to the
// polling goroutine that started it.
type pipeReadResult struct {
	n   int
	err error
}

// readWithDeadline reads into buf, returning once data/EOF/error arrives
// or d elapses (in which case it returns a timeout error satisfying
// isTimeout). If conn implements deadlineReader, that facility is used
// directly and the read is synchronous and cheap; otherwise a
// background goroutine does the blocking read and pendingRead carries
// it across polls so no bytes already read are ever dropped on a
// timeout.
func (h *Handler) readWithDeadline(buf []byte, d time.Duration) (int, error) {
	if dr, ok := h.conn.(deadlineReader); ok {
		_ = dr.SetReadDeadline(time.Now().Add(d))
		return h.conn.Read(buf)
	}

	if h.pendingRead == nil {
		ch := make(chan pipeReadResult, 1)
		h.pendingRead = ch
		go func() {
			n, err := h.conn.Read(buf)
			ch <- pipeReadResult{n: n, err: err}
		}()
	}

	select {
	case res := <-h.pendingRead:
		h.pendingRead = nil
		return res.n, res.err
	case <-time.After(d):
		return 0, errTimeout{}
	}
}

type errTimeout struct{}

func (errTimeout) Error() string   { return "capframework: read deadline exceeded" }
func (errTimeout) Timeout() bool   { return true }
func (errTimeout) Temporary() bool { return true }
