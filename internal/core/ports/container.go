package ports

import (
	"context"
	"io"

	"github.com/melih/blitzkrieg/internal/core/domain"
)

// ContainerRuntime defines the operations the provisioning core needs from a
// container engine. Implementations return errors matching domain.ErrNotFound
// when the named object does not exist and domain.ErrRuntimeAPI for any other
// rejection, so callers never depend on the engine's own error types.
type ContainerRuntime interface {
	NetworkCreate(ctx context.Context, name string) error
	NetworkRemove(ctx context.Context, name string) error
	NetworkExists(ctx context.Context, name string) (bool, error)

	// ContainerRun creates and starts a container. It returns as soon as the
	// engine accepts the request, not when the process inside is ready.
	ContainerRun(ctx context.Context, spec domain.ContainerSpec) (string, error)
	ContainerGet(ctx context.Context, name string) (domain.Container, error)
	ContainerRemove(ctx context.Context, name string, force bool) error
	ContainerPutFile(ctx context.Context, name, path string, content []byte) error
	ContainerExec(ctx context.Context, name string, cmd []string) (domain.ExecResult, error)
	ContainerLogs(ctx context.Context, name string) (io.ReadCloser, error)
	ListContainers(ctx context.Context) ([]domain.Container, error)

	VolumeCreate(ctx context.Context, name string) error
	VolumeRemove(ctx context.Context, name string) error
}

// PortProbe reports whether something is listening on a local TCP port.
type PortProbe interface {
	InUse(port int) bool
}
