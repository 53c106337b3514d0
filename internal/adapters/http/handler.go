package http

import (
	"errors"
	"io"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/melih/blitzkrieg/internal/core/domain"
	"github.com/melih/blitzkrieg/internal/core/ports"
	"github.com/melih/blitzkrieg/internal/core/workspace"
)

// PlanFunc resolves a workspace name to its plan.
type PlanFunc func(name string) (*workspace.Plan, error)

// WorkspaceHandler serves workspace status and lifecycle endpoints.
type WorkspaceHandler struct {
	service *workspace.Service
	runtime ports.ContainerRuntime
	plan    PlanFunc
	log     zerolog.Logger
}

func NewWorkspaceHandler(log zerolog.Logger, service *workspace.Service, runtime ports.ContainerRuntime, plan PlanFunc) *WorkspaceHandler {
	return &WorkspaceHandler{service: service, runtime: runtime, plan: plan, log: log}
}

type handleView struct {
	Name    string    `json:"name"`
	Kind    string    `json:"kind"`
	Port    int       `json:"port,omitempty"`
	State   string    `json:"state"`
	Error   string    `json:"error,omitempty"`
	Updated time.Time `json:"updated"`
}

func viewHandles(handles []domain.ResourceHandle) []handleView {
	out := make([]handleView, 0, len(handles))
	for _, h := range handles {
		v := handleView{Name: h.Name, Kind: string(h.Kind), Port: h.Port, State: string(h.State), Updated: h.Updated}
		if h.LastErr != nil {
			v.Error = h.LastErr.Error()
		}
		out = append(out, v)
	}
	return out
}

func errorStrings(errs []error) []string {
	out := make([]string, 0, len(errs))
	for _, err := range errs {
		out = append(out, err.Error())
	}
	return out
}

func fail(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	var ferr *fiber.Error
	switch {
	case errors.As(err, &ferr):
		status = ferr.Code
	case domain.IsNotFound(err):
		status = fiber.StatusNotFound
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}

func (h *WorkspaceHandler) resolve(c *fiber.Ctx) (*workspace.Plan, error) {
	p, err := h.plan(c.Params("name"))
	if err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return p, nil
}

func (h *WorkspaceHandler) ListContainers(c *fiber.Ctx) error {
	containers, err := h.runtime.ListContainers(c.UserContext())
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(containers)
}

// GetWorkspace reports the state of each workspace resource as the runtime
// sees it now.
func (h *WorkspaceHandler) GetWorkspace(c *fiber.Ctx) error {
	p, err := h.resolve(c)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{
		"workspace": p.Name,
		"resources": viewHandles(h.service.Status(c.UserContext(), p)),
	})
}

func (h *WorkspaceHandler) GetConnection(c *fiber.Ctx) error {
	p, err := h.resolve(c)
	if err != nil {
		return fail(c, err)
	}
	conn, err := h.service.Connection(c.UserContext(), p)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{
		"connection": conn,
		"url":        conn.URL(),
		"env":        conn.Vars(),
	})
}

// CreateWorkspace provisions the workspace synchronously.
func (h *WorkspaceHandler) CreateWorkspace(c *fiber.Ctx) error {
	p, err := h.resolve(c)
	if err != nil {
		return fail(c, err)
	}
	res := h.service.Create(c.UserContext(), p)
	status := fiber.StatusCreated
	if !res.Success {
		status = fiber.StatusInternalServerError
		h.log.Warn().Str("workspace", p.Name).Str("failed_step", res.FailedStep).Msg("workspace creation failed")
	}
	return c.Status(status).JSON(fiber.Map{
		"workspace":   p.Name,
		"success":     res.Success,
		"failed_step": res.FailedStep,
		"resources":   viewHandles(res.Handles),
		"errors":      errorStrings(res.Errors),
	})
}

// DeleteWorkspace tears the workspace down. ?purge=true also removes its
// directory.
func (h *WorkspaceHandler) DeleteWorkspace(c *fiber.Ctx) error {
	p, err := h.resolve(c)
	if err != nil {
		return fail(c, err)
	}
	res := h.service.Teardown(c.UserContext(), p, c.QueryBool("purge"))

	type stepView struct {
		Name  string `json:"name"`
		Kind  string `json:"kind"`
		Error string `json:"error,omitempty"`
	}
	steps := make([]stepView, 0, len(res.Steps))
	for _, s := range res.Steps {
		v := stepView{Name: s.Name, Kind: s.Kind}
		if s.Err != nil {
			v.Error = s.Err.Error()
		}
		steps = append(steps, v)
	}
	status := fiber.StatusOK
	if !res.Success() {
		status = fiber.StatusInternalServerError
	}
	return c.Status(status).JSON(fiber.Map{
		"workspace": p.Name,
		"success":   res.Success(),
		"steps":     steps,
	})
}

func (h *WorkspaceHandler) GetContainerLogs(c *fiber.Ctx) error {
	logs, err := h.runtime.ContainerLogs(c.UserContext(), c.Params("name"))
	if err != nil {
		return fail(c, err)
	}
	defer logs.Close()
	body, err := io.ReadAll(logs)
	if err != nil {
		return fail(c, err)
	}
	c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
	return c.Send(body)
}
