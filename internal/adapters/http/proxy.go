package http

import (
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"sort"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/melih/blitzkrieg/internal/core/domain"
	"github.com/melih/blitzkrieg/internal/core/ports"
)

// ProxyHandler forwards <container>.localhost requests to the host port the
// container publishes.
type ProxyHandler struct {
	runtime ports.ContainerRuntime
}

func NewProxyHandler(runtime ports.ContainerRuntime) *ProxyHandler {
	return &ProxyHandler{runtime: runtime}
}

// target picks the published host port of the lowest container port.
func target(c domain.Container) (int, bool) {
	if len(c.HostPorts) == 0 {
		return 0, false
	}
	keys := make([]string, 0, len(c.HostPorts))
	for k := range c.HostPorts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return c.HostPorts[keys[0]], true
}

func (h *ProxyHandler) ProxyRequest(c *fiber.Ctx) error {
	host, _, _ := strings.Cut(c.Hostname(), ":")
	name, rest, ok := strings.Cut(host, ".")
	if !ok || rest != "localhost" || name == "" || name == "www" {
		return c.Next()
	}

	ctr, err := h.runtime.ContainerGet(c.UserContext(), name)
	if domain.IsNotFound(err) {
		return c.Status(fiber.StatusNotFound).SendString(fmt.Sprintf("container %q not found", name))
	}
	if err != nil {
		return c.Status(fiber.StatusBadGateway).SendString(err.Error())
	}
	port, published := target(ctr)
	if !ctr.Running() || !published {
		return c.Status(fiber.StatusServiceUnavailable).SendString(fmt.Sprintf("container %q is not serving", name))
	}

	remote := &url.URL{Scheme: "http", Host: fmt.Sprintf("127.0.0.1:%d", port)}
	proxy := httputil.NewSingleHostReverseProxy(remote)
	director := proxy.Director
	proxy.Director = func(req *http.Request) {
		director(req)
		req.Host = remote.Host
	}
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		w.WriteHeader(http.StatusBadGateway)
		fmt.Fprintf(w, "proxy to %s: %v", remote.Host, err)
	}
	return adaptor.HTTPHandler(proxy)(c)
}
