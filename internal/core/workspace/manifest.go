package workspace

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/melih/blitzkrieg/internal/core/domain"
)

// Manifest lists resources to add to or override in a workspace plan.
type Manifest struct {
	Resources []ManifestResource `yaml:"resources"`
}

type ManifestResource struct {
	Name          string               `yaml:"name"`
	Kind          domain.Kind          `yaml:"kind"`
	Image         string               `yaml:"image,omitempty"`
	Port          int                  `yaml:"port,omitempty"`
	ContainerPort string               `yaml:"container_port,omitempty"`
	Network       string               `yaml:"network,omitempty"`
	Env           map[string]string    `yaml:"env,omitempty"`
	Volumes       []domain.VolumeMount `yaml:"volumes,omitempty"`
	DependsOn     []string             `yaml:"depends_on,omitempty"`
}

// ParseManifest decodes a manifest, rejecting unknown fields.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	for i, r := range m.Resources {
		if r.Name == "" {
			return nil, fmt.Errorf("manifest resource %d has no name", i)
		}
		if !r.Kind.Valid() {
			return nil, fmt.Errorf("manifest resource %s: unknown kind %q", r.Name, r.Kind)
		}
		if r.Kind.IsContainer() && r.Image == "" {
			return nil, fmt.Errorf("manifest resource %s: image is required", r.Name)
		}
	}
	return &m, nil
}

// LoadManifest reads and parses a manifest file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return ParseManifest(data)
}

// Specs converts the manifest entries to resource specs.
func (m *Manifest) Specs() []domain.ResourceSpec {
	out := make([]domain.ResourceSpec, 0, len(m.Resources))
	for _, r := range m.Resources {
		out = append(out, domain.ResourceSpec{
			Name:          r.Name,
			Kind:          r.Kind,
			Image:         r.Image,
			PreferredPort: r.Port,
			ContainerPort: r.ContainerPort,
			Network:       r.Network,
			Env:           r.Env,
			Volumes:       r.Volumes,
			DependsOn:     r.DependsOn,
		})
	}
	return out
}
