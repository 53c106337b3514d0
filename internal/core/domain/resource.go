package domain

import (
	"fmt"
	"time"
)

// Kind is the type of a provisionable resource.
type Kind string

const (
	KindNetwork  Kind = "network"
	KindDatabase Kind = "database-container"
	KindAdminUI  Kind = "admin-ui-container"
)

// IsContainer reports whether resources of this kind are containers.
func (k Kind) IsContainer() bool {
	return k == KindDatabase || k == KindAdminUI
}

func (k Kind) Valid() bool {
	switch k {
	case KindNetwork, KindDatabase, KindAdminUI:
		return true
	}
	return false
}

// ResourceSpec describes one resource of a workspace. It is built once per
// run from configuration and never mutated afterwards.
type ResourceSpec struct {
	Name string
	Kind Kind

	Image string
	// PreferredPort is the first host port tried for ContainerPort. Zero means
	// the resource publishes no port.
	PreferredPort int
	ContainerPort string
	Network       string
	Env           map[string]string
	Volumes       []VolumeMount
	DependsOn     []string
}

// ContainerSpec converts the resource into a launch request bound to port.
func (s ResourceSpec) ContainerSpec(port int) ContainerSpec {
	cs := ContainerSpec{
		Name:    s.Name,
		Image:   s.Image,
		Network: s.Network,
		Env:     s.Env,
		Volumes: s.Volumes,
		Labels:  map[string]string{LabelKind: string(s.Kind)},
	}
	if port > 0 && s.ContainerPort != "" {
		cs.Ports = []PortBinding{{ContainerPort: s.ContainerPort, HostPort: port}}
	}
	return cs
}

// LabelKind is attached to every container the workflow launches.
const LabelKind = "blitzkrieg.kind"

// State is the lifecycle state of a ResourceHandle.
type State string

const (
	StateAbsent   State = "absent"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
	StateFailed   State = "failed"
)

var transitions = map[State][]State{
	StateAbsent:   {StateStarting},
	StateStarting: {StateRunning, StateFailed},
	StateRunning:  {StateStopping, StateFailed},
	StateStopping: {StateAbsent},
}

// ResourceHandle is the runtime state of one provisioned resource.
type ResourceHandle struct {
	Name    string
	Kind    Kind
	Port    int
	State   State
	LastErr error
	Updated time.Time
}

// NewHandle returns a handle in the Absent state.
func NewHandle(name string, kind Kind) *ResourceHandle {
	return &ResourceHandle{Name: name, Kind: kind, State: StateAbsent, Updated: time.Now()}
}

// Transition moves the handle to state to. Failed is terminal.
func (h *ResourceHandle) Transition(to State) error {
	for _, next := range transitions[h.State] {
		if next == to {
			h.State = to
			h.Updated = time.Now()
			return nil
		}
	}
	return fmt.Errorf("resource %s: illegal transition %s -> %s", h.Name, h.State, to)
}

// Fail records err and moves the handle to Failed when allowed. A handle that
// is Absent is first moved to Starting, since every failure happens while
// bringing it up.
func (h *ResourceHandle) Fail(err error) {
	h.LastErr = err
	if h.State == StateFailed {
		return
	}
	if h.State == StateAbsent {
		h.State = StateStarting
	}
	if h.State == StateStopping {
		return
	}
	_ = h.Transition(StateFailed)
}

// ProvisioningResult is the immutable outcome of a workflow run.
type ProvisioningResult struct {
	Handles []ResourceHandle
	Success bool
	Errors  []error
	// FailedStep names the resource whose provisioning aborted the run.
	FailedStep string
}

// Handle returns a copy of the named handle.
func (r ProvisioningResult) Handle(name string) (ResourceHandle, bool) {
	for _, h := range r.Handles {
		if h.Name == name {
			return h, true
		}
	}
	return ResourceHandle{}, false
}

// States returns the final state of each handle, in run order.
func (r ProvisioningResult) States() []State {
	out := make([]State, len(r.Handles))
	for i, h := range r.Handles {
		out[i] = h.State
	}
	return out
}

// TeardownStep is the outcome of removing one resource.
type TeardownStep struct {
	Name string
	Kind string // container, network, volume or directory
	Err  error
}

// TeardownResult lists every removal attempt in execution order.
type TeardownResult struct {
	Steps []TeardownStep
}

func (r TeardownResult) Success() bool {
	return len(r.Errors()) == 0
}

func (r TeardownResult) Errors() []error {
	var errs []error
	for _, s := range r.Steps {
		if s.Err != nil {
			errs = append(errs, s.Err)
		}
	}
	return errs
}

// Step returns the removal outcome for name.
func (r TeardownResult) Step(name string) (TeardownStep, bool) {
	for _, s := range r.Steps {
		if s.Name == name {
			return s, true
		}
	}
	return TeardownStep{}, false
}
