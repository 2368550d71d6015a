/**
 * Transport Construction.
 *
 * Turns a parsed Flags into the Conn a Handler needs: either the
 * inherited --in-fd/--out-fd pair (the common case, when Kismet itself
 * spawns the capture binary) or a --connect socket (TCP host:port or a
 * unix:/path), for running a capture helper standalone or over a
 * network link to a remote sensor.
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */

package capframework

import (
	"fmt"
	"net"
	"os"
	"strings"
)

// fdConn pairs a read fd and a write fd into a single Conn, since
// --in-fd and --out-fd name two different inherited descriptors rather
// than one bidirectional one.
type fdConn struct {
	r *os.File
	w *os.File
}

func (c *fdConn) Read(p []byte) (int, error)  { return c.r.Read(p) }
func (c *fdConn) Write(p []byte) (int, error) { return c.w.Write(p) }

// Dial builds the Conn named by f: an inherited fd pair, or a
// --connect target. A "unix:" prefix selects a unix socket; anything
// else is dialed as TCP.
func Dial(f *Flags) (Conn, error) {
	if f.Connect != "" {
		if path, ok := strings.CutPrefix(f.Connect, "unix:"); ok {
			c, err := net.Dial("unix", path)
			if err != nil {
				return nil, fmt.Errorf("capframework: dial unix %s: %w", path, err)
			}
			return c, nil
		}
		c, err := net.Dial("tcp", f.Connect)
		if err != nil {
			return nil, fmt.Errorf("capframework: dial tcp %s: %w", f.Connect, err)
		}
		return c, nil
	}
	return &fdConn{
		r: os.NewFile(uintptr(f.InFD), "in-fd"),
		w: os.NewFile(uintptr(f.OutFD), "out-fd"),
	}, nil
}
