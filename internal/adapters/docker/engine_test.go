package docker

import (
	"archive/tar"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/docker/docker/client"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/melih/blitzkrieg/internal/core/domain"
)

const apiVersion = "1.47"

type createRequest struct {
	Image        string              `json:"Image"`
	Env          []string            `json:"Env"`
	ExposedPorts map[string]struct{} `json:"ExposedPorts"`
	Labels       map[string]string   `json:"Labels"`
	HostConfig   struct {
		NetworkMode  string `json:"NetworkMode"`
		PortBindings map[string][]struct {
			HostIP   string `json:"HostIp"`
			HostPort string `json:"HostPort"`
		} `json:"PortBindings"`
		Mounts []struct {
			Type   string `json:"Type"`
			Source string `json:"Source"`
			Target string `json:"Target"`
		} `json:"Mounts"`
	} `json:"HostConfig"`
	NetworkingConfig struct {
		EndpointsConfig map[string]struct {
			Aliases []string `json:"Aliases"`
		} `json:"EndpointsConfig"`
	} `json:"NetworkingConfig"`
}

type recorded struct {
	createName string
	create     createRequest
	started    []string
	archive    []byte
	archiveDir string
}

// engine is a minimal Docker Engine API that records what it receives.
type engine struct {
	mu  sync.Mutex
	got recorded
}

func (e *engine) snapshot() recorded {
	e.mu.Lock()
	defer e.mu.Unlock()
	r := e.got
	r.started = append([]string(nil), e.got.started...)
	r.archive = append([]byte(nil), e.got.archive...)
	return r
}

func (e *engine) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	prefix := "/v" + apiVersion

	mux.HandleFunc("GET "+prefix+"/images/{ref}/json", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"Id":"sha256:0123"}`)
	})
	mux.HandleFunc("POST "+prefix+"/containers/create", func(w http.ResponseWriter, r *http.Request) {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.got.createName = r.URL.Query().Get("name")
		if err := json.NewDecoder(r.Body).Decode(&e.got.create); err != nil {
			t.Errorf("decode create body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"Id":"4f1c0ffee0ddba11","Warnings":[]}`)
	})
	mux.HandleFunc("POST "+prefix+"/containers/{id}/start", func(w http.ResponseWriter, r *http.Request) {
		e.mu.Lock()
		e.got.started = append(e.got.started, r.PathValue("id"))
		e.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("PUT "+prefix+"/containers/{name}/archive", func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("read archive body: %v", err)
		}
		e.mu.Lock()
		e.got.archive = body
		e.got.archiveDir = r.URL.Query().Get("path")
		e.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("GET "+prefix+"/containers/{name}/json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.PathValue("name") != "w-postgres" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"message":"No such container: `+r.PathValue("name")+`"}`)
			return
		}
		_, _ = io.WriteString(w, `{
			"Id": "4f1c0ffee0ddba11",
			"Name": "/w-postgres",
			"State": {"Status": "running", "Running": true},
			"Config": {"Image": "postgres:16"},
			"NetworkSettings": {"Ports": {
				"5432/tcp": [{"HostIp": "0.0.0.0", "HostPort": "5433"}, {"HostIp": "::", "HostPort": "5433"}],
				"9187/tcp": null
			}}
		}`)
	})
	return mux
}

func newEngineAdapter(t *testing.T) (*Adapter, *engine) {
	t.Helper()
	e := &engine{}
	srv := httptest.NewServer(e.handler(t))
	t.Cleanup(srv.Close)

	cli, err := client.NewClientWithOpts(
		client.WithHost("tcp://"+strings.TrimPrefix(srv.URL, "http://")),
		client.WithVersion(apiVersion),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cli.Close() })
	return &Adapter{cli: cli, log: zerolog.Nop()}, e
}

func readArchive(t *testing.T, data []byte) []*tar.Header {
	t.Helper()
	var headers []*tar.Header
	tr := tar.NewReader(bytes.NewReader(data))
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return headers
		}
		require.NoError(t, err)
		headers = append(headers, hdr)
	}
}

func TestSingleFileArchive(t *testing.T) {
	buf, err := singleFileArchive("servers.json", []byte(`{"Servers":{}}`))
	require.NoError(t, err)

	tr := tar.NewReader(buf)
	hdr, err := tr.Next()
	require.NoError(t, err)
	assert.Equal(t, "servers.json", hdr.Name)
	assert.Equal(t, int64(0o644), hdr.Mode)
	assert.Equal(t, byte(tar.TypeReg), hdr.Typeflag)
	body, err := io.ReadAll(tr)
	require.NoError(t, err)
	assert.Equal(t, `{"Servers":{}}`, string(body))

	_, err = tr.Next()
	assert.Equal(t, io.EOF, err)
}

func TestContainerPutFileUploadsOneFile(t *testing.T) {
	a, eng := newEngineAdapter(t)

	err := a.ContainerPutFile(context.Background(), "w-pgadmin", "/pgadmin4/servers.json", []byte("{}"))
	require.NoError(t, err)
	e := eng.snapshot()

	assert.Equal(t, "/pgadmin4", e.archiveDir)
	headers := readArchive(t, e.archive)
	require.Len(t, headers, 1)
	assert.Equal(t, "servers.json", headers[0].Name)
	assert.Equal(t, int64(0o644), headers[0].Mode)
	assert.Equal(t, int64(2), headers[0].Size)
}

func TestContainerRunSendsBindingsAndMounts(t *testing.T) {
	a, eng := newEngineAdapter(t)

	id, err := a.ContainerRun(context.Background(), domain.ContainerSpec{
		Name:    "w-postgres",
		Image:   "postgres:16",
		Network: "w-network",
		Env:     map[string]string{"POSTGRES_DB": "w"},
		Ports:   []domain.PortBinding{{ContainerPort: "5432/tcp", HostPort: 5433}},
		Volumes: []domain.VolumeMount{{Volume: "w-pgdata", Target: "/var/lib/postgresql/data"}},
		Labels:  map[string]string{domain.LabelKind: string(domain.KindDatabase)},
	})
	require.NoError(t, err)
	e := eng.snapshot()
	assert.Equal(t, "4f1c0ffee0ddba11", id)
	assert.Equal(t, []string{"4f1c0ffee0ddba11"}, e.started)

	req := e.create
	assert.Equal(t, "w-postgres", e.createName)
	assert.Equal(t, "postgres:16", req.Image)
	assert.Equal(t, []string{"POSTGRES_DB=w"}, req.Env)
	assert.Contains(t, req.ExposedPorts, "5432/tcp")
	assert.Equal(t, "true", req.Labels[LabelManaged])
	assert.Equal(t, string(domain.KindDatabase), req.Labels[domain.LabelKind])

	require.Len(t, req.HostConfig.PortBindings["5432/tcp"], 1)
	assert.Equal(t, "5433", req.HostConfig.PortBindings["5432/tcp"][0].HostPort)
	require.Len(t, req.HostConfig.Mounts, 1)
	assert.Equal(t, "volume", req.HostConfig.Mounts[0].Type)
	assert.Equal(t, "w-pgdata", req.HostConfig.Mounts[0].Source)
	assert.Equal(t, "/var/lib/postgresql/data", req.HostConfig.Mounts[0].Target)
	assert.Equal(t, "w-network", req.HostConfig.NetworkMode)
	assert.Equal(t, []string{"w-postgres"}, req.NetworkingConfig.EndpointsConfig["w-network"].Aliases)
}

func TestContainerGetMapsInspect(t *testing.T) {
	a, _ := newEngineAdapter(t)

	c, err := a.ContainerGet(context.Background(), "w-postgres")
	require.NoError(t, err)
	assert.Equal(t, "w-postgres", c.Name)
	assert.Equal(t, "postgres:16", c.Image)
	assert.True(t, c.Running())
	assert.Equal(t, map[string]int{"5432/tcp": 5433}, c.HostPorts)

	_, err = a.ContainerGet(context.Background(), "ghost")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
