package domain

import (
	"encoding/json"
	"strconv"
)

// ServerEntry is one server in a pgAdmin servers.json document.
type ServerEntry struct {
	Name          string `json:"Name"`
	Group         string `json:"Group,omitempty"`
	Host          string `json:"Host"`
	Port          int    `json:"Port"`
	MaintenanceDB string `json:"MaintenanceDB"`
	Username      string `json:"Username"`
	SSLMode       string `json:"SSLMode"`
	PassFile      string `json:"PassFile,omitempty"`
}

// ServerRegistration is the servers.json document pgAdmin imports.
type ServerRegistration struct {
	Servers map[string]ServerEntry `json:"Servers"`
}

// NewServerRegistration returns a document with no servers.
func NewServerRegistration() *ServerRegistration {
	return &ServerRegistration{Servers: map[string]ServerEntry{}}
}

// Add registers entry under the given numeric id.
func (r *ServerRegistration) Add(id int, entry ServerEntry) {
	r.Servers[strconv.Itoa(id)] = entry
}

func (r *ServerRegistration) Marshal() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}
