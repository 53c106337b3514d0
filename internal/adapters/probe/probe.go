// Package probe implements the network-level readiness checks: a raw TCP
// connect against localhost and an HTTP status probe.
package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/melih/blitzkrieg/internal/core/ports"
	"github.com/melih/blitzkrieg/internal/core/provision"
)

// TCP probes ports on a host by attempting a connection.
type TCP struct {
	Host    string
	Timeout time.Duration
}

var _ ports.PortProbe = TCP{}

// Localhost returns a TCP probe against localhost.
func Localhost() TCP {
	return TCP{Host: "localhost", Timeout: 500 * time.Millisecond}
}

// InUse reports whether a connection to the port is accepted.
func (p TCP) InUse(port int) bool {
	conn, err := net.DialTimeout("tcp", net.JoinHostPort(p.Host, strconv.Itoa(port)), p.Timeout)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// Accepting is a readiness predicate that holds once the port accepts
// connections.
func (p TCP) Accepting(port int) provision.Predicate {
	return func(ctx context.Context, name string) (bool, error) {
		if p.InUse(port) {
			return true, nil
		}
		return false, fmt.Errorf("%s: port %d not accepting connections", name, port)
	}
}

// HTTPStatus is a readiness predicate that holds once a GET to url answers
// with want.
func HTTPStatus(url string, want int, timeout time.Duration) provision.Predicate {
	return func(ctx context.Context, name string) (bool, error) {
		agent := fiber.Get(url).Timeout(timeout)
		code, _, errs := agent.Bytes()
		if len(errs) > 0 {
			return false, errors.Join(errs...)
		}
		if code != want {
			return false, fmt.Errorf("%s: GET %s returned %d", name, url, code)
		}
		return true, nil
	}
}
