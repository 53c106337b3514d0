package domain

// Container represents a container as reported by the runtime.
type Container struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Image  string `json:"image"`
	Status string `json:"status"`
	State  string `json:"state"` // running, exited, created, etc.

	// HostPorts maps a container port ("5432/tcp") to the published host port.
	HostPorts map[string]int `json:"host_ports,omitempty"`
}

// Running reports whether the runtime considers the container running.
func (c Container) Running() bool {
	return c.State == "running"
}

// HostPort returns the host port published for the given container port.
func (c Container) HostPort(containerPort string) (int, bool) {
	p, ok := c.HostPorts[containerPort]
	return p, ok
}

// PortBinding publishes a container port on a host port.
type PortBinding struct {
	ContainerPort string `json:"container_port" yaml:"container_port"` // e.g. "5432/tcp"
	HostPort      int    `json:"host_port" yaml:"host_port"`
}

// VolumeMount mounts a named volume into a container.
type VolumeMount struct {
	Volume string `json:"volume" yaml:"volume"`
	Target string `json:"target" yaml:"target"`
}

// ContainerSpec is everything the runtime needs to launch a named container.
type ContainerSpec struct {
	Name    string
	Image   string
	Network string
	Env     map[string]string
	Ports   []PortBinding
	Volumes []VolumeMount
	Labels  map[string]string
}

// ExecResult is the outcome of a command executed inside a container.
type ExecResult struct {
	ExitCode int
	Output   string
}
