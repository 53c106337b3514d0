package docker

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/api/types/volume"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"
	"github.com/melih/blitzkrieg/internal/core/domain"
	"github.com/melih/blitzkrieg/internal/core/ports"
	"github.com/rs/zerolog"
)

// LabelManaged marks every object created by this adapter.
const LabelManaged = "blitzkrieg.managed"

// Adapter implements ports.ContainerRuntime using the Docker SDK
type Adapter struct {
	cli *client.Client
	log zerolog.Logger
}

var _ ports.ContainerRuntime = (*Adapter)(nil)

// NewAdapter creates a Docker adapter. An empty host uses DOCKER_HOST and the
// other standard environment variables.
func NewAdapter(log zerolog.Logger, host string) (*Adapter, error) {
	opts := []client.Opt{client.WithAPIVersionNegotiation()}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	} else {
		opts = append(opts, client.FromEnv)
	}
	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return &Adapter{cli: cli, log: log.With().Str("component", "docker").Logger()}, nil
}

func (a *Adapter) Close() error {
	return a.cli.Close()
}

// classify maps engine errors onto the domain error kinds.
func classify(op, name string, err error) error {
	if errdefs.IsNotFound(err) {
		return fmt.Errorf("%s %s: %w: %w", op, name, domain.ErrNotFound, err)
	}
	return fmt.Errorf("%s %s: %w: %w", op, name, domain.ErrRuntimeAPI, err)
}

func (a *Adapter) NetworkCreate(ctx context.Context, name string) error {
	_, err := a.cli.NetworkCreate(ctx, name, network.CreateOptions{
		Driver: "bridge",
		Labels: map[string]string{LabelManaged: "true"},
	})
	if err != nil {
		return classify("create network", name, err)
	}
	return nil
}

func (a *Adapter) NetworkRemove(ctx context.Context, name string) error {
	if err := a.cli.NetworkRemove(ctx, name); err != nil {
		return classify("remove network", name, err)
	}
	return nil
}

func (a *Adapter) NetworkExists(ctx context.Context, name string) (bool, error) {
	_, err := a.cli.NetworkInspect(ctx, name, network.InspectOptions{})
	if err == nil {
		return true, nil
	}
	if errdefs.IsNotFound(err) {
		return false, nil
	}
	return false, classify("inspect network", name, err)
}

// ContainerRun pulls the image when it is not present locally, then creates
// and starts the container. It does not wait for the process to be ready.
func (a *Adapter) ContainerRun(ctx context.Context, spec domain.ContainerSpec) (string, error) {
	if err := a.ensureImage(ctx, spec.Image); err != nil {
		return "", err
	}

	labels := map[string]string{LabelManaged: "true"}
	for k, v := range spec.Labels {
		labels[k] = v
	}
	exposed := nat.PortSet{}
	bindings := nat.PortMap{}
	for _, p := range spec.Ports {
		port := nat.Port(p.ContainerPort)
		exposed[port] = struct{}{}
		bindings[port] = append(bindings[port], nat.PortBinding{HostPort: strconv.Itoa(p.HostPort)})
	}
	var mounts []mount.Mount
	for _, v := range spec.Volumes {
		mounts = append(mounts, mount.Mount{Type: mount.TypeVolume, Source: v.Volume, Target: v.Target})
	}

	hostConfig := &container.HostConfig{
		PortBindings: bindings,
		Mounts:       mounts,
	}
	var netConfig *network.NetworkingConfig
	if spec.Network != "" {
		hostConfig.NetworkMode = container.NetworkMode(spec.Network)
		netConfig = &network.NetworkingConfig{
			EndpointsConfig: map[string]*network.EndpointSettings{
				spec.Network: {Aliases: []string{spec.Name}},
			},
		}
	}

	resp, err := a.cli.ContainerCreate(ctx, &container.Config{
		Image:        spec.Image,
		Env:          envList(spec.Env),
		ExposedPorts: exposed,
		Labels:       labels,
	}, hostConfig, netConfig, nil, spec.Name)
	if err != nil {
		return "", classify("create container", spec.Name, err)
	}

	if err := a.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return resp.ID, classify("start container", spec.Name, err)
	}
	return resp.ID, nil
}

func (a *Adapter) ensureImage(ctx context.Context, ref string) error {
	_, err := a.cli.ImageInspect(ctx, ref)
	if err == nil {
		return nil
	}
	if !errdefs.IsNotFound(err) {
		return classify("inspect image", ref, err)
	}

	a.log.Info().Str("image", ref).Msg("pulling image")
	reader, err := a.cli.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return classify("pull image", ref, err)
	}
	defer reader.Close()
	// The pull only completes once the progress stream is drained.
	if _, err := io.Copy(io.Discard, reader); err != nil {
		return classify("pull image", ref, err)
	}
	return nil
}

func (a *Adapter) ContainerGet(ctx context.Context, name string) (domain.Container, error) {
	info, err := a.cli.ContainerInspect(ctx, name)
	if err != nil {
		return domain.Container{}, classify("inspect container", name, err)
	}
	if info.ContainerJSONBase == nil || info.State == nil {
		return domain.Container{}, fmt.Errorf("inspect container %s: %w: empty response", name, domain.ErrRuntimeAPI)
	}

	c := domain.Container{
		ID:        info.ID,
		Name:      strings.TrimPrefix(info.Name, "/"),
		State:     string(info.State.Status),
		Status:    string(info.State.Status),
		HostPorts: map[string]int{},
	}
	if info.Config != nil {
		c.Image = info.Config.Image
	}
	if info.NetworkSettings != nil {
		for port, bindings := range info.NetworkSettings.Ports {
			for _, b := range bindings {
				if hp, err := strconv.Atoi(b.HostPort); err == nil {
					c.HostPorts[string(port)] = hp
					break
				}
			}
		}
	}
	return c, nil
}

func (a *Adapter) ContainerRemove(ctx context.Context, name string, force bool) error {
	if err := a.cli.ContainerRemove(ctx, name, container.RemoveOptions{Force: force}); err != nil {
		return classify("remove container", name, err)
	}
	return nil
}

// ContainerPutFile writes content to an absolute path inside the container.
func (a *Adapter) ContainerPutFile(ctx context.Context, name, dst string, content []byte) error {
	archive, err := singleFileArchive(path.Base(dst), content)
	if err != nil {
		return err
	}
	err = a.cli.CopyToContainer(ctx, name, path.Dir(dst), archive, container.CopyToContainerOptions{})
	if err != nil {
		return classify("copy to container", name, err)
	}
	return nil
}

// singleFileArchive returns a tar stream holding one 0644 regular file.
func singleFileArchive(name string, content []byte) (*bytes.Buffer, error) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	hdr := &tar.Header{
		Typeflag: tar.TypeReg,
		Name:     name,
		Mode:     0o644,
		Size:     int64(len(content)),
		ModTime:  time.Now(),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return nil, fmt.Errorf("write tar header: %w", err)
	}
	if _, err := tw.Write(content); err != nil {
		return nil, fmt.Errorf("write tar body: %w", err)
	}
	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("close tar stream: %w", err)
	}
	return &buf, nil
}

// ContainerExec runs cmd in the container and waits for it to finish.
func (a *Adapter) ContainerExec(ctx context.Context, name string, cmd []string) (domain.ExecResult, error) {
	created, err := a.cli.ContainerExecCreate(ctx, name, container.ExecOptions{
		Cmd:          cmd,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return domain.ExecResult{}, classify("exec create", name, err)
	}

	att, err := a.cli.ContainerExecAttach(ctx, created.ID, container.ExecAttachOptions{})
	if err != nil {
		return domain.ExecResult{}, classify("exec attach", name, err)
	}
	defer att.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, att.Reader); err != nil {
		return domain.ExecResult{}, fmt.Errorf("exec %s: read output: %w", name, err)
	}

	// The exit code can lag the end of the output stream by a few ms.
	for i := 0; ; i++ {
		insp, err := a.cli.ContainerExecInspect(ctx, created.ID)
		if err != nil {
			return domain.ExecResult{}, classify("exec inspect", name, err)
		}
		if !insp.Running || i == 20 {
			return domain.ExecResult{ExitCode: insp.ExitCode, Output: stdout.String() + stderr.String()}, nil
		}
		time.Sleep(50 * time.Millisecond)
	}
}

// ContainerLogs returns the demultiplexed stdout and stderr of a container.
func (a *Adapter) ContainerLogs(ctx context.Context, name string) (io.ReadCloser, error) {
	rc, err := a.cli.ContainerLogs(ctx, name, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Timestamps: true,
	})
	if err != nil {
		return nil, classify("container logs", name, err)
	}
	pr, pw := io.Pipe()
	go func() {
		_, err := stdcopy.StdCopy(pw, pw, rc)
		rc.Close()
		pw.CloseWithError(err)
	}()
	return pr, nil
}

// ListContainers returns every container, running or not.
func (a *Adapter) ListContainers(ctx context.Context) ([]domain.Container, error) {
	list, err := a.cli.ContainerList(ctx, container.ListOptions{All: true})
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w: %w", domain.ErrRuntimeAPI, err)
	}

	result := make([]domain.Container, 0, len(list))
	for _, c := range list {
		// Use the first name if available, remove slash
		name := ""
		if len(c.Names) > 0 {
			name = strings.TrimPrefix(c.Names[0], "/")
		}
		hostPorts := map[string]int{}
		for _, p := range c.Ports {
			if p.PublicPort != 0 {
				hostPorts[fmt.Sprintf("%d/%s", p.PrivatePort, p.Type)] = int(p.PublicPort)
			}
		}
		result = append(result, domain.Container{
			ID:        c.ID,
			Name:      name,
			Image:     c.Image,
			Status:    c.Status,
			State:     string(c.State),
			HostPorts: hostPorts,
		})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (a *Adapter) VolumeCreate(ctx context.Context, name string) error {
	_, err := a.cli.VolumeCreate(ctx, volume.CreateOptions{
		Name:   name,
		Labels: map[string]string{LabelManaged: "true"},
	})
	if err != nil {
		return classify("create volume", name, err)
	}
	return nil
}

func (a *Adapter) VolumeRemove(ctx context.Context, name string) error {
	if err := a.cli.VolumeRemove(ctx, name, false); err != nil {
		return classify("remove volume", name, err)
	}
	return nil
}

func envList(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}
