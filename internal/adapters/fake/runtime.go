// Package fake provides an in-memory container runtime for tests.
package fake

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/melih/blitzkrieg/internal/core/domain"
	"github.com/melih/blitzkrieg/internal/core/ports"
)

var _ ports.ContainerRuntime = (*Runtime)(nil)

type container struct {
	domain.Container
	spec  domain.ContainerSpec
	polls int
	files map[string][]byte
}

type network struct {
	polls int
}

// Runtime is an in-memory ports.ContainerRuntime. Containers report
// "created" until they have been inspected ReadyAfter times, then "running";
// networks likewise only report existence after ReadyAfter polls.
type Runtime struct {
	mu         sync.Mutex
	containers map[string]*container
	networks   map[string]*network
	volumes    map[string]bool
	logs       map[string]string
	failures   map[string]error
	neverReady map[string]bool
	calls      []string
	seq        int

	ReadyAfter int
	// Exec answers ContainerExec. The default reports success with no output.
	Exec func(name string, cmd []string) (domain.ExecResult, error)
}

func NewRuntime() *Runtime {
	return &Runtime{
		containers: map[string]*container{},
		networks:   map[string]*network{},
		volumes:    map[string]bool{},
		logs:       map[string]string{},
		failures:   map[string]error{},
		neverReady: map[string]bool{},
	}
}

// FailOn makes the given operation on name return err. Op is the method
// name, e.g. "NetworkRemove".
func (r *Runtime) FailOn(op, name string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[op+" "+name] = err
}

// NeverReady keeps name in the "created" state forever.
func (r *Runtime) NeverReady(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.neverReady[name] = true
}

// SetLogs sets the log output returned for a container.
func (r *Runtime) SetLogs(name, logs string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs[name] = logs
}

// Calls returns every recorded call as "Op name".
func (r *Runtime) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

// CountCalls returns how many times op was called for name.
func (r *Runtime) CountCalls(op, name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if c == op+" "+name {
			n++
		}
	}
	return n
}

// Containers returns the names of existing containers, sorted.
func (r *Runtime) Containers() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.containers))
	for n := range r.containers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (r *Runtime) HasNetwork(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.networks[name]
	return ok
}

func (r *Runtime) HasVolume(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.volumes[name]
}

// Spec returns the launch request of an existing container.
func (r *Runtime) Spec(name string) (domain.ContainerSpec, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.containers[name]
	if !ok {
		return domain.ContainerSpec{}, false
	}
	return c.spec, true
}

// File returns a file previously written with ContainerPutFile.
func (r *Runtime) File(name, path string) ([]byte, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.containers[name]
	if !ok {
		return nil, false
	}
	b, ok := c.files[path]
	return b, ok
}

// record must be called with r.mu held.
func (r *Runtime) record(op, name string) error {
	r.calls = append(r.calls, op+" "+name)
	return r.failures[op+" "+name]
}

func (r *Runtime) NetworkCreate(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.record("NetworkCreate", name); err != nil {
		return err
	}
	if _, ok := r.networks[name]; ok {
		return fmt.Errorf("%w: network %s already exists", domain.ErrRuntimeAPI, name)
	}
	r.networks[name] = &network{}
	return nil
}

func (r *Runtime) NetworkRemove(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.record("NetworkRemove", name); err != nil {
		return err
	}
	if _, ok := r.networks[name]; !ok {
		return domain.NotFoundf("network %s", name)
	}
	for _, c := range r.containers {
		if c.spec.Network == name {
			return fmt.Errorf("%w: network %s has active endpoints", domain.ErrRuntimeAPI, name)
		}
	}
	delete(r.networks, name)
	return nil
}

func (r *Runtime) NetworkExists(ctx context.Context, name string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.record("NetworkExists", name); err != nil {
		return false, err
	}
	n, ok := r.networks[name]
	if !ok {
		return false, nil
	}
	n.polls++
	return n.polls >= r.ReadyAfter && !r.neverReady[name], nil
}

func (r *Runtime) ContainerRun(ctx context.Context, spec domain.ContainerSpec) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.record("ContainerRun", spec.Name); err != nil {
		return "", err
	}
	if _, ok := r.containers[spec.Name]; ok {
		return "", fmt.Errorf("%w: container name %s is already in use", domain.ErrRuntimeAPI, spec.Name)
	}
	if spec.Network != "" {
		if _, ok := r.networks[spec.Network]; !ok {
			return "", fmt.Errorf("%w: network %s not found", domain.ErrRuntimeAPI, spec.Network)
		}
	}
	r.seq++
	id := fmt.Sprintf("%064x", r.seq)
	hostPorts := map[string]int{}
	for _, p := range spec.Ports {
		hostPorts[p.ContainerPort] = p.HostPort
	}
	r.containers[spec.Name] = &container{
		Container: domain.Container{
			ID:        id,
			Name:      spec.Name,
			Image:     spec.Image,
			State:     "created",
			Status:    "Created",
			HostPorts: hostPorts,
		},
		spec:  spec,
		files: map[string][]byte{},
	}
	return id, nil
}

func (r *Runtime) ContainerGet(ctx context.Context, name string) (domain.Container, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.record("ContainerGet", name); err != nil {
		return domain.Container{}, err
	}
	c, ok := r.containers[name]
	if !ok {
		return domain.Container{}, domain.NotFoundf("container %s", name)
	}
	c.polls++
	if c.polls >= r.ReadyAfter && !r.neverReady[name] {
		c.State = "running"
		c.Status = "Up"
	}
	return c.Container, nil
}

func (r *Runtime) ContainerRemove(ctx context.Context, name string, force bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.record("ContainerRemove", name); err != nil {
		return err
	}
	c, ok := r.containers[name]
	if !ok {
		return domain.NotFoundf("container %s", name)
	}
	if c.State == "running" && !force {
		return fmt.Errorf("%w: container %s is running", domain.ErrRuntimeAPI, name)
	}
	delete(r.containers, name)
	return nil
}

func (r *Runtime) ContainerPutFile(ctx context.Context, name, path string, content []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.record("ContainerPutFile", name); err != nil {
		return err
	}
	c, ok := r.containers[name]
	if !ok {
		return domain.NotFoundf("container %s", name)
	}
	c.files[path] = append([]byte(nil), content...)
	return nil
}

func (r *Runtime) ContainerExec(ctx context.Context, name string, cmd []string) (domain.ExecResult, error) {
	r.mu.Lock()
	if err := r.record("ContainerExec", name); err != nil {
		r.mu.Unlock()
		return domain.ExecResult{}, err
	}
	_, ok := r.containers[name]
	exec := r.Exec
	r.mu.Unlock()

	if !ok {
		return domain.ExecResult{}, domain.NotFoundf("container %s", name)
	}
	if exec == nil {
		return domain.ExecResult{}, nil
	}
	return exec(name, cmd)
}

func (r *Runtime) ContainerLogs(ctx context.Context, name string) (io.ReadCloser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.record("ContainerLogs", name); err != nil {
		return nil, err
	}
	if _, ok := r.containers[name]; !ok {
		return nil, domain.NotFoundf("container %s", name)
	}
	return io.NopCloser(strings.NewReader(r.logs[name])), nil
}

func (r *Runtime) ListContainers(ctx context.Context) ([]domain.Container, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.record("ListContainers", ""); err != nil {
		return nil, err
	}
	out := make([]domain.Container, 0, len(r.containers))
	for _, c := range r.containers {
		out = append(out, c.Container)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *Runtime) VolumeCreate(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.record("VolumeCreate", name); err != nil {
		return err
	}
	r.volumes[name] = true
	return nil
}

func (r *Runtime) VolumeRemove(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.record("VolumeRemove", name); err != nil {
		return err
	}
	if !r.volumes[name] {
		return domain.NotFoundf("volume %s", name)
	}
	delete(r.volumes, name)
	return nil
}
