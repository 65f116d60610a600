// Package anonssh wires an SSH-reachable listener (configured as an
// anonymous or authorized-key listener) to the daemon's --server
// invocation, the way
// a forced ssh command runs a fixed program for every session.
//
// No SSH server library appears anywhere in the retrieval pack this
// module was grounded on (see DESIGN.md); implementing the full SSH
// transport protocol from scratch is disproportionate to this
// package's role as daemon-startup plumbing, so this is a minimal
// stdlib-only listener shim: Serve accepts raw TCP connections,
// treats the connection's initial newline-terminated line as the
// remote command line (the rough moral equivalent of a forced SSH
// command, minus authentication), and hands stdin/stdout of the
// connection to the callback. Real authentication (anonymous vs.
// authorized_keys) is therefore not enforced by this implementation.
package anonssh

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/oferchen/rsync-sub002/internal/rsyncdconfig"
	"github.com/oferchen/rsync-sub002/internal/rsyncos"
)

// Listener wraps the net.Listener an SSH-reachable daemon accepts
// connections on.
type Listener struct {
	net.Listener
}

// ListenerFromConfig creates the listener described by a
// rsyncdconfig.Listener's AnonSSH/AuthorizedSSH fields.
func ListenerFromConfig(osenv *rsyncos.Env, l rsyncdconfig.Listener) (*Listener, error) {
	addr := l.AnonSSH
	if addr == "" {
		addr = l.AuthorizedSSH.Address
	}
	if addr == "" {
		return nil, nil
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Listener{Listener: ln}, nil
}

// SessionFunc is invoked once per accepted session with the parsed
// command-line arguments and the session's stdio streams.
type SessionFunc func(args []string, stdin io.Reader, stdout, stderr io.Writer) error

// Serve accepts sessions on sshListener (when non-nil) until ctx is
// done, invoking fn for each one. ln, the plain TCP rsync:// listener
// maincmd.Main passes alongside it, is not used here: only sshListener
// is served.
func Serve(ctx context.Context, osenv *rsyncos.Env, ln net.Listener, sshListener *Listener, cfg *rsyncdconfig.Config, fn SessionFunc) error {
	if sshListener == nil {
		return nil
	}
	for {
		conn, err := sshListener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
				return err
			}
		}
		go func(c net.Conn) {
			defer c.Close()
			if err := handleSession(c, fn); err != nil {
				osenv.Logf("anonssh: session error: %v", err)
			}
		}(conn)
	}
}

func handleSession(c net.Conn, fn SessionFunc) error {
	r := bufio.NewReader(c)
	line, err := r.ReadString('\n')
	if err != nil {
		return fmt.Errorf("reading command line: %w", err)
	}
	args := strings.Fields(strings.TrimSpace(line))
	if len(args) == 0 {
		return fmt.Errorf("empty command line")
	}
	return fn(args, r, c, c)
}
