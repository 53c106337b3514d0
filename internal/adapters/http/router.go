package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

// NewApp wires the proxy and the v1 API into a fiber app.
func NewApp(h *WorkspaceHandler, proxy *ProxyHandler) *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Use(recover.New())
	app.Use(proxy.ProxyRequest)

	v1 := app.Group("/api").Group("/v1")

	containers := v1.Group("/containers")
	containers.Get("/", h.ListContainers)
	containers.Get("/:name/logs", h.GetContainerLogs)

	workspaces := v1.Group("/workspaces")
	workspaces.Get("/:name", h.GetWorkspace)
	workspaces.Get("/:name/connection", h.GetConnection)
	workspaces.Post("/:name", h.CreateWorkspace)
	workspaces.Delete("/:name", h.DeleteWorkspace)

	return app
}
