// Package ui renders provisioning progress and status for humans.
package ui

import (
	"fmt"
	"io"
	"strconv"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/melih/blitzkrieg/internal/core/domain"
	"github.com/melih/blitzkrieg/internal/core/provision"
)

var (
	purple = lipgloss.Color("99")
	green  = lipgloss.Color("76")
	red    = lipgloss.Color("204")
	yellow = lipgloss.Color("214")
	dim    = lipgloss.Color("243")
	faint  = lipgloss.Color("238")
)

var (
	stepStyle    = lipgloss.NewStyle().Foreground(purple).Bold(true)
	successStyle = lipgloss.NewStyle().Foreground(green)
	errorStyle   = lipgloss.NewStyle().Foreground(red)
	warnStyle    = lipgloss.NewStyle().Foreground(yellow)
	mutedStyle   = lipgloss.NewStyle().Foreground(dim)
)

// Console writes step headers and outcome lines to an io.Writer.
type Console struct {
	mu  sync.Mutex
	out io.Writer
}

func NewConsole(out io.Writer) *Console {
	return &Console{out: out}
}

var _ provision.Reporter = (*Console)(nil)

func (c *Console) println(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, s)
}

func (c *Console) Step(title string) {
	c.println(stepStyle.Render("==> " + title))
}

func (c *Console) Success(format string, args ...any) {
	c.println(successStyle.Render("✓") + " " + fmt.Sprintf(format, args...))
}

func (c *Console) Failure(format string, args ...any) {
	c.println(errorStyle.Render("✗") + " " + fmt.Sprintf(format, args...))
}

func (c *Console) Info(format string, args ...any) {
	c.println(mutedStyle.Render("●") + " " + fmt.Sprintf(format, args...))
}

func stateStyle(s domain.State) lipgloss.Style {
	switch s {
	case domain.StateRunning:
		return successStyle
	case domain.StateFailed:
		return errorStyle
	case domain.StateStarting, domain.StateStopping:
		return warnStyle
	default:
		return mutedStyle
	}
}

// HandleTable renders one row per handle.
func HandleTable(handles []domain.ResourceHandle) string {
	rows := make([][]string, 0, len(handles))
	for _, h := range handles {
		port := "-"
		if h.Port > 0 {
			port = strconv.Itoa(h.Port)
		}
		errText := ""
		if h.LastErr != nil {
			errText = h.LastErr.Error()
		}
		rows = append(rows, []string{h.Name, string(h.Kind), port, stateStyle(h.State).Render(string(h.State)), errText})
	}
	return render([]string{"NAME", "KIND", "PORT", "STATE", "ERROR"}, rows)
}

// ContainerTable renders the observed containers of a workspace.
func ContainerTable(containers []domain.Container) string {
	rows := make([][]string, 0, len(containers))
	for _, c := range containers {
		ports := ""
		for cp, hp := range c.HostPorts {
			if ports != "" {
				ports += ", "
			}
			ports += fmt.Sprintf("%d->%s", hp, cp)
		}
		state := mutedStyle
		if c.Running() {
			state = successStyle
		}
		rows = append(rows, []string{c.Name, c.Image, state.Render(c.State), ports})
	}
	return render([]string{"NAME", "IMAGE", "STATE", "PORTS"}, rows)
}

func render(headers []string, rows [][]string) string {
	headerStyle := lipgloss.NewStyle().Foreground(purple).Bold(true).Padding(0, 1)
	cellStyle := lipgloss.NewStyle().Padding(0, 1)

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(faint)).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers(headers...).
		Rows(rows...)
	return t.String()
}
