package provision

import (
	"context"
	"fmt"
	"strings"

	"github.com/melih/blitzkrieg/internal/core/ports"
)

// ContainerRunning holds once the runtime reports the container running.
func ContainerRunning(rt ports.ContainerRuntime) Predicate {
	return func(ctx context.Context, name string) (bool, error) {
		c, err := rt.ContainerGet(ctx, name)
		if err != nil {
			return false, err
		}
		return c.Running(), nil
	}
}

// NetworkReady holds once the network exists.
func NetworkReady(rt ports.ContainerRuntime) Predicate {
	return func(ctx context.Context, name string) (bool, error) {
		return rt.NetworkExists(ctx, name)
	}
}

// ExecSucceeds runs cmd inside the container and holds when it exits 0. When
// marker is non-empty the output must also contain it.
func ExecSucceeds(rt ports.ContainerRuntime, cmd []string, marker string) Predicate {
	return func(ctx context.Context, name string) (bool, error) {
		res, err := rt.ContainerExec(ctx, name, cmd)
		if err != nil {
			return false, err
		}
		if res.ExitCode != 0 {
			return false, fmt.Errorf("%s exited %d: %s", cmd[0], res.ExitCode, strings.TrimSpace(res.Output))
		}
		if marker != "" && !strings.Contains(res.Output, marker) {
			return false, nil
		}
		return true, nil
	}
}

// All holds when every predicate holds, evaluated in order and stopping at
// the first one that does not.
func All(preds ...Predicate) Predicate {
	return func(ctx context.Context, name string) (bool, error) {
		for _, p := range preds {
			ok, err := p(ctx, name)
			if !ok || err != nil {
				return false, err
			}
		}
		return true, nil
	}
}
