package workspace

import (
	"context"
	"fmt"
	"strings"

	"github.com/melih/blitzkrieg/internal/core/domain"
	"github.com/melih/blitzkrieg/internal/core/ports"
)

// ServersPath is where pgAdmin looks for its server import file.
const ServersPath = "/pgadmin4/servers.json"

var serversProbe = []string{"sh", "-c", "if [ -f " + ServersPath + " ]; then echo exists; else echo not_exists; fi"}

// RegisterServer uploads doc into the admin container and imports it for
// user, unless a servers file is already present. It reports whether the
// upload happened.
func RegisterServer(ctx context.Context, rt ports.ContainerRuntime, container, user string, doc []byte) (bool, error) {
	res, err := rt.ContainerExec(ctx, container, serversProbe)
	if err != nil {
		return false, domain.NewError("probe servers file", container, domain.Classify(err), err)
	}
	switch out := strings.TrimSpace(res.Output); out {
	case "exists":
		return false, nil
	case "not_exists":
	default:
		return false, domain.NewError("probe servers file", container, domain.ErrUnexpectedProbeResult,
			fmt.Errorf("exit %d, output %q", res.ExitCode, out))
	}

	if err := rt.ContainerPutFile(ctx, container, ServersPath, doc); err != nil {
		return false, domain.NewError("upload servers file", container, domain.Classify(err), err)
	}
	load := []string{"/venv/bin/python3", "/pgadmin4/setup.py", "load-servers", ServersPath, "--user", user}
	res, err = rt.ContainerExec(ctx, container, load)
	if err != nil {
		return true, domain.NewError("load servers", container, domain.Classify(err), err)
	}
	if res.ExitCode != 0 {
		return true, domain.NewError("load servers", container, domain.ErrRuntimeAPI,
			fmt.Errorf("setup.py exited %d: %s", res.ExitCode, strings.TrimSpace(res.Output)))
	}
	return true, nil
}
