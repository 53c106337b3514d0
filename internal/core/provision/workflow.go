package provision

import (
	"context"
	"fmt"
	"sort"

	"github.com/melih/blitzkrieg/internal/core/domain"
	"github.com/melih/blitzkrieg/internal/core/ports"
)

// ReadinessFunc returns the readiness predicate for a resource once its
// handle (and so its host port) is known. Returning nil selects the default:
// the network exists, or the container is running.
type ReadinessFunc func(spec domain.ResourceSpec, h *domain.ResourceHandle) Predicate

// PostStep is a configuration step run once every resource is Running.
type PostStep struct {
	Name string
	Run  func(ctx context.Context, handles map[string]domain.ResourceHandle) error
}

// Workflow provisions an ordered set of resources, strictly one at a time.
type Workflow struct {
	env       Env
	runtime   ports.ContainerRuntime
	ports     *PortAllocator
	lifecycle *Lifecycle
	readiness ReadinessFunc
}

func NewWorkflow(env Env, runtime ports.ContainerRuntime, alloc *PortAllocator, readiness ReadinessFunc) *Workflow {
	return &Workflow{
		env:       env,
		runtime:   runtime,
		ports:     alloc,
		lifecycle: NewLifecycle(env, runtime),
		readiness: readiness,
	}
}

// Lifecycle exposes the container lifecycle the workflow drives.
func (w *Workflow) Lifecycle() *Lifecycle {
	return w.lifecycle
}

// Run provisions specs in dependency order and stops at the first resource
// that fails. Resources that were already started are left running; teardown
// is a separate operation. Post steps run only when every resource is
// Running; their failures are reported without unwinding anything.
func (w *Workflow) Run(ctx context.Context, specs []domain.ResourceSpec, post ...PostStep) domain.ProvisioningResult {
	rep := w.env.reporter()
	ordered, err := Order(specs)
	if err != nil {
		rep.Failure("invalid resource plan: %v", err)
		return domain.ProvisioningResult{Errors: []error{err}}
	}

	handles := make([]*domain.ResourceHandle, len(ordered))
	for i, s := range ordered {
		handles[i] = domain.NewHandle(s.Name, s.Kind)
	}

	var errs []error
	failed := ""
	for i, spec := range ordered {
		rep.Step(fmt.Sprintf("Provisioning %s %s", spec.Kind, spec.Name))
		h, err := w.provision(ctx, spec)
		handles[i] = h
		if err != nil {
			w.env.Log.Error().Err(err).Str("resource", spec.Name).Msg("provisioning aborted")
			rep.Failure("%s: %v", spec.Name, err)
			errs = append(errs, err)
			failed = spec.Name
			break
		}
		if h.Port > 0 {
			rep.Success("%s is ready on port %d", spec.Name, h.Port)
		} else {
			rep.Success("%s is ready", spec.Name)
		}
	}

	if failed == "" && len(post) > 0 {
		snapshot := make(map[string]domain.ResourceHandle, len(handles))
		for _, h := range handles {
			snapshot[h.Name] = *h
		}
		for _, step := range post {
			rep.Step(step.Name)
			if err := step.Run(ctx, snapshot); err != nil {
				w.env.Log.Warn().Err(err).Str("step", step.Name).Msg("post-provision step failed")
				rep.Failure("%s: %v", step.Name, err)
				errs = append(errs, fmt.Errorf("%s: %w", step.Name, err))
				continue
			}
			rep.Success("%s", step.Name)
		}
	}

	res := domain.ProvisioningResult{Success: true, Errors: errs, FailedStep: failed}
	for _, h := range handles {
		res.Handles = append(res.Handles, *h)
		if h.State == domain.StateFailed {
			res.Success = false
		}
	}
	return res
}

func (w *Workflow) provision(ctx context.Context, spec domain.ResourceSpec) (*domain.ResourceHandle, error) {
	timeout, interval := w.env.timeouts()
	var (
		h   *domain.ResourceHandle
		err error
	)
	if spec.Kind.IsContainer() {
		h, err = w.startContainer(ctx, spec)
	} else {
		h, err = w.createNetwork(ctx, spec)
	}
	if err != nil {
		return h, err
	}

	ready := w.predicate(spec, h)
	if err := w.lifecycle.WaitUntilReady(ctx, spec.Name, ready, timeout, interval); err != nil {
		h.Fail(err)
		return h, err
	}
	if err := h.Transition(domain.StateRunning); err != nil {
		h.Fail(err)
		return h, err
	}
	return h, nil
}

func (w *Workflow) startContainer(ctx context.Context, spec domain.ResourceSpec) (*domain.ResourceHandle, error) {
	port := 0
	if spec.PreferredPort > 0 {
		p, err := w.ports.FindAvailablePort(spec.PreferredPort)
		if err != nil {
			h := domain.NewHandle(spec.Name, spec.Kind)
			h.Fail(err)
			return h, err
		}
		port = p
	}
	for _, v := range spec.Volumes {
		if err := w.runtime.VolumeCreate(ctx, v.Volume); err != nil {
			perr := domain.NewError("create volume", v.Volume, domain.Classify(err), err)
			h := domain.NewHandle(spec.Name, spec.Kind)
			h.Fail(perr)
			return h, perr
		}
	}
	h, err := w.lifecycle.Start(ctx, spec.ContainerSpec(port))
	h.Kind = spec.Kind
	return h, err
}

// createNetwork reuses an existing network: containers of a previous run may
// still be attached to it, and a bridge network carries no configuration
// that could have drifted.
func (w *Workflow) createNetwork(ctx context.Context, spec domain.ResourceSpec) (*domain.ResourceHandle, error) {
	h := domain.NewHandle(spec.Name, spec.Kind)
	_ = h.Transition(domain.StateStarting)
	exists, err := w.runtime.NetworkExists(ctx, spec.Name)
	if err != nil {
		perr := domain.NewError("inspect network", spec.Name, domain.Classify(err), err)
		h.Fail(perr)
		return h, perr
	}
	if exists {
		w.env.Log.Info().Str("resource", spec.Name).Msg("network already exists")
		return h, nil
	}
	if err := w.runtime.NetworkCreate(ctx, spec.Name); err != nil {
		perr := domain.NewError("create network", spec.Name, domain.Classify(err), err)
		h.Fail(perr)
		return h, perr
	}
	w.env.Log.Info().Str("resource", spec.Name).Msg("network created")
	return h, nil
}

func (w *Workflow) predicate(spec domain.ResourceSpec, h *domain.ResourceHandle) Predicate {
	if w.readiness != nil {
		if p := w.readiness(spec, h); p != nil {
			return p
		}
	}
	if spec.Kind.IsContainer() {
		return ContainerRunning(w.runtime)
	}
	return NetworkReady(w.runtime)
}

// Teardown removes containers in reverse dependency order, then networks,
// then named volumes. Every removal is attempted regardless of earlier
// failures; missing resources count as removed.
func (w *Workflow) Teardown(ctx context.Context, specs []domain.ResourceSpec) domain.TeardownResult {
	rep := w.env.reporter()
	ordered, err := Order(specs)
	if err != nil {
		w.env.Log.Warn().Err(err).Msg("tearing down in declaration order")
		ordered = specs
	}

	var res domain.TeardownResult
	record := func(name, kind string, err error) {
		res.Steps = append(res.Steps, domain.TeardownStep{Name: name, Kind: kind, Err: err})
		if err != nil {
			w.env.Log.Warn().Err(err).Str("resource", name).Msg("teardown step failed")
			rep.Failure("remove %s %s: %v", kind, name, err)
			return
		}
		rep.Success("removed %s %s", kind, name)
	}

	for i := len(ordered) - 1; i >= 0; i-- {
		if s := ordered[i]; s.Kind.IsContainer() {
			record(s.Name, "container", w.lifecycle.StopAndRemove(ctx, s.Name))
		}
	}
	for i := len(ordered) - 1; i >= 0; i-- {
		if s := ordered[i]; s.Kind == domain.KindNetwork {
			record(s.Name, "network", w.removeNetwork(ctx, s.Name))
		}
	}
	seen := map[string]bool{}
	for i := len(ordered) - 1; i >= 0; i-- {
		for _, v := range ordered[i].Volumes {
			if seen[v.Volume] {
				continue
			}
			seen[v.Volume] = true
			record(v.Volume, "volume", w.removeVolume(ctx, v.Volume))
		}
	}
	return res
}

func (w *Workflow) removeNetwork(ctx context.Context, name string) error {
	err := w.runtime.NetworkRemove(ctx, name)
	if err == nil || domain.IsNotFound(err) {
		return nil
	}
	return domain.NewError("remove network", name, domain.Classify(err), err)
}

func (w *Workflow) removeVolume(ctx context.Context, name string) error {
	err := w.runtime.VolumeRemove(ctx, name)
	if err == nil || domain.IsNotFound(err) {
		return nil
	}
	return domain.NewError("remove volume", name, domain.Classify(err), err)
}

// Order sorts specs so every resource follows its dependencies. Ties keep
// declaration order. Unknown dependencies, duplicate names and cycles are
// ErrDependency errors.
func Order(specs []domain.ResourceSpec) ([]domain.ResourceSpec, error) {
	index := make(map[string]int, len(specs))
	for i, s := range specs {
		if _, dup := index[s.Name]; dup {
			return nil, domain.NewError("order resources", s.Name, domain.ErrDependency, fmt.Errorf("duplicate resource name"))
		}
		index[s.Name] = i
	}

	indegree := make([]int, len(specs))
	dependents := make([][]int, len(specs))
	for i, s := range specs {
		for _, dep := range s.DependsOn {
			j, ok := index[dep]
			if !ok {
				return nil, domain.NewError("order resources", s.Name, domain.ErrDependency, fmt.Errorf("unknown dependency %q", dep))
			}
			indegree[i]++
			dependents[j] = append(dependents[j], i)
		}
	}

	var ready []int
	for i := range specs {
		if indegree[i] == 0 {
			ready = append(ready, i)
		}
	}
	out := make([]domain.ResourceSpec, 0, len(specs))
	for len(ready) > 0 {
		sort.Ints(ready)
		i := ready[0]
		ready = ready[1:]
		out = append(out, specs[i])
		for _, d := range dependents[i] {
			indegree[d]--
			if indegree[d] == 0 {
				ready = append(ready, d)
			}
		}
	}
	if len(out) != len(specs) {
		var stuck []string
		for i, n := range indegree {
			if n > 0 {
				stuck = append(stuck, specs[i].Name)
			}
		}
		return nil, domain.NewError("order resources", "", domain.ErrDependency, fmt.Errorf("dependency cycle among %v", stuck))
	}
	return out, nil
}
