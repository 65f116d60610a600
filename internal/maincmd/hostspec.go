package maincmd

import (
	"bufio"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/oferchen/rsync-sub002/internal/log"
	"github.com/oferchen/rsync-sub002/internal/rsyncopts"
	"github.com/oferchen/rsync-sub002/internal/rsyncos"
	"github.com/oferchen/rsync-sub002/internal/rsyncstats"
	"github.com/oferchen/rsync-sub002/internal/version"
)

const defaultRsyncdPort = 873

// checkForHostspec recognizes the rsync CLI's three ways of naming a
// remote: "rsync://host[:port]/module/path", "host::module/path" and
// "host:path" (the last one implying a remote shell transfer, not a
// daemon connection). It returns port == 0 for local paths.
//
// rsync/main.c:check_for_hostspec
func checkForHostspec(s string) (host, path string, port int, err error) {
	if strings.HasPrefix(s, "rsync://") {
		rest := s[len("rsync://"):]
		slash := strings.IndexByte(rest, '/')
		if slash < 0 {
			return "", "", 0, fmt.Errorf("malformed rsync:// URL %q", s)
		}
		hostport := rest[:slash]
		path = rest[slash+1:]
		host, port, err = splitHostPort(hostport, defaultRsyncdPort)
		return host, path, port, err
	}
	if idx := strings.Index(s, "::"); idx >= 0 {
		host, port, err = splitHostPort(s[:idx], defaultRsyncdPort)
		if err != nil {
			return "", "", 0, err
		}
		return host, s[idx+2:], port, nil
	}
	// A single colon only counts as a hostspec when there is no slash
	// before the first colon, rsync's own rule. Windows drive letters
	// are not special-cased: "C:foo" parses as host "C".
	if idx := strings.IndexByte(s, ':'); idx >= 0 && !strings.Contains(s[:idx], "/") {
		return s[:idx], s[idx+1:], 0, nil
	}
	return "", "", 0, fmt.Errorf("%q is not a hostspec", s)
}

func splitHostPort(hostport string, defaultPort int) (string, int, error) {
	if !strings.Contains(hostport, ":") {
		return hostport, defaultPort, nil
	}
	h, p, err := net.SplitHostPort(hostport)
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.Atoi(p)
	if err != nil {
		return "", 0, err
	}
	return h, port, nil
}

// socketClient dials an rsync daemon directly over TCP (no remote
// shell) and runs the in-band @RSYNCD handshake before handing off to
// clientRun over the raw socket.
//
// rsync/main.c:start_socket_client
func socketClient(ctx context.Context, osenv rsyncos.Std, opts *rsyncopts.Options, host, path string, port int, other string) (*rsyncstats.TransferStats, error) {
	if port == 0 {
		port = defaultRsyncdPort
	}
	d := net.Dialer{Timeout: time.Duration(opts.ConnectTimeoutSeconds()) * time.Second}
	if d.Timeout == 0 {
		d.Timeout = 30 * time.Second
	}
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", host, err)
	}
	defer conn.Close()

	done, err := startInbandExchange(osenv, opts, conn, moduleOf(path), path)
	if err != nil {
		return nil, err
	}
	if done {
		return nil, nil
	}

	other2 := other
	return clientRun(osenv, opts, conn, []string{other2}, false /* negotiated during the daemon handshake */)
}

func moduleOf(path string) string {
	if idx := strings.IndexByte(path, '/'); idx >= 0 {
		return path[:idx]
	}
	return path
}

// startInbandExchange performs the rsync daemon greeting over conn:
// protocol line, module name, MOTD lines terminated by an empty line,
// and the server's initial argument list when listing modules.
// Returns done=true when the exchange itself fully answered the
// request (e.g. a bare module listing) and no further transfer phase
// follows.
//
// rsync/clientserver.c:start_inband_exchange
func startInbandExchange(osenv rsyncos.Std, opts *rsyncopts.Options, conn net.Conn, module, path string) (bool, error) {
	greeting := fmt.Sprintf("@RSYNCD: %d.0\n", protocolMajor(opts))
	if _, err := fmt.Fprint(conn, greeting); err != nil {
		return false, err
	}
	r := bufio.NewReader(conn)
	line, err := r.ReadString('\n')
	if err != nil {
		return false, fmt.Errorf("reading daemon greeting: %w", err)
	}
	if opts.Verbose() {
		log.Printf("daemon greeting: %q", strings.TrimRight(line, "\n"))
	}
	if !strings.HasPrefix(line, "@RSYNCD: ") {
		return false, fmt.Errorf("garbled daemon greeting %q", line)
	}

	if module == "" {
		if _, err := fmt.Fprint(conn, "#list\n"); err != nil {
			return false, err
		}
	} else {
		if _, err := fmt.Fprintf(conn, "%s\n", module); err != nil {
			return false, err
		}
	}

	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return false, fmt.Errorf("reading daemon response: %w", err)
		}
		line = strings.TrimRight(line, "\r\n")
		switch {
		case line == "@RSYNCD: OK":
			return false, nil
		case line == "@RSYNCD: EXIT":
			return true, nil
		case strings.HasPrefix(line, "@ERROR"):
			return false, fmt.Errorf("daemon: %s", line)
		default:
			if module == "" {
				fmt.Fprintln(osenv.Stdout, line)
			} else if opts.Verbose() {
				log.Printf("motd: %s", line)
			}
		}
	}
}

func protocolMajor(opts *rsyncopts.Options) int {
	_ = version.Read
	return 31
}

// serverOptions reconstructs the argv passed to a "--server" remote
// rsync invocation from the locally parsed Options, mirroring the
// subset of rsync/options.c:server_options this implementation
// understands.
func serverOptions(opts *rsyncopts.Options) []string {
	args := []string{"--server"}
	if opts.Sender() {
		args = append(args, "--sender")
	}
	if opts.Verbose() {
		args = append(args, "-v")
	}
	if opts.DryRun() {
		args = append(args, "-n")
	}
	if opts.Recurse() {
		args = append(args, "-r")
	}
	if opts.PreserveLinks() {
		args = append(args, "-l")
	}
	if opts.PreservePerms() {
		args = append(args, "-p")
	}
	if opts.PreserveMTimes() {
		args = append(args, "-t")
	}
	if opts.PreserveUid() {
		args = append(args, "-o")
	}
	if opts.PreserveGid() {
		args = append(args, "-g")
	}
	if opts.PreserveDevices() {
		args = append(args, "-D")
	}
	if opts.PreserveSpecials() {
		args = append(args, "-D")
	}
	if opts.PreserveHardLinks() {
		args = append(args, "-H")
	}
	if opts.DeleteMode() {
		args = append(args, "--delete")
	}
	if opts.AlwaysChecksum() {
		args = append(args, "-c")
	}
	return args
}
