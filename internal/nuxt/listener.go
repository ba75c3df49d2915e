package nuxt

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path"
	"strings"

	"github.com/yamatt/go-nuxt/internal/config"
)

// listen binds the UNIX socket when one is configured, otherwise host:port.
func listen(s config.ServerOptions) (net.Listener, error) {
	if s.Socket != "" {
		if err := removeStaleSocket(s.Socket); err != nil {
			return nil, err
		}
		ln, err := net.Listen("unix", s.Socket)
		if err != nil {
			return nil, fmt.Errorf("failed to listen on socket %s: %w", s.Socket, err)
		}
		return ln, nil
	}

	addr := net.JoinHostPort(s.Host, string(s.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return ln, nil
}

// removeStaleSocket deletes a socket file left behind by a previous run.
// Any other kind of file at that path is left alone.
func removeStaleSocket(p string) error {
	info, err := os.Lstat(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if info.Mode()&os.ModeSocket == 0 {
		return fmt.Errorf("%s exists and is not a socket", p)
	}
	return os.Remove(p)
}

// listenURL renders the address users should open.
func listenURL(addr net.Addr, s config.ServerOptions, base string) string {
	if s.Socket != "" {
		return "unix:" + s.Socket
	}

	host := s.Host
	if ip := net.ParseIP(host); ip != nil && ip.IsUnspecified() {
		host = "localhost"
	}
	port := string(s.Port)
	if tcp, ok := addr.(*net.TCPAddr); ok {
		port = fmt.Sprint(tcp.Port)
	}

	p := path.Join("/", base)
	if !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return "http://" + net.JoinHostPort(host, port) + p
}
