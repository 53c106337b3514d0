package domain

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleTransitions(t *testing.T) {
	h := NewHandle("w-postgres", KindDatabase)
	require.Equal(t, StateAbsent, h.State)

	require.Error(t, h.Transition(StateRunning))
	require.NoError(t, h.Transition(StateStarting))
	require.NoError(t, h.Transition(StateRunning))
	require.NoError(t, h.Transition(StateStopping))
	require.NoError(t, h.Transition(StateAbsent))
}

func TestFailedIsTerminal(t *testing.T) {
	h := NewHandle("w-postgres", KindDatabase)
	boom := errors.New("boom")
	h.Fail(boom)

	require.Equal(t, StateFailed, h.State)
	require.Equal(t, boom, h.LastErr)
	for _, s := range []State{StateAbsent, StateStarting, StateRunning, StateStopping} {
		assert.Error(t, h.Transition(s))
	}
	require.Equal(t, StateFailed, h.State)
}

func TestContainerSpecFromResource(t *testing.T) {
	spec := ResourceSpec{
		Name:          "w-pgadmin",
		Kind:          KindAdminUI,
		Image:         "dpage/pgadmin4",
		ContainerPort: "80/tcp",
		Network:       "w-network",
	}

	cs := spec.ContainerSpec(5051)
	require.Equal(t, []PortBinding{{ContainerPort: "80/tcp", HostPort: 5051}}, cs.Ports)
	require.Equal(t, string(KindAdminUI), cs.Labels[LabelKind])

	require.Empty(t, spec.ContainerSpec(0).Ports)
}

func TestProvisionErrorMatchesKind(t *testing.T) {
	cause := errors.New("no such container")
	err := NewError("remove container", "w-postgres", ErrNotFound, cause)

	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, err, cause)
	require.NotErrorIs(t, err, ErrTimeout)
	require.Equal(t, "remove container w-postgres: not found: no such container", err.Error())
	require.Equal(t, ErrNotFound, Classify(err))
	require.Equal(t, ErrRuntimeAPI, Classify(cause))
	require.ErrorIs(t, NewError("run", "x", nil, cause), ErrRuntimeAPI)
}

func TestServerRegistrationDocument(t *testing.T) {
	reg := NewServerRegistration()
	reg.Add(1, ServerEntry{
		Name:          "W PostgreSQL",
		Host:          "w-postgres",
		Port:          5432,
		MaintenanceDB: "w",
		Username:      "w-db-user",
		SSLMode:       "prefer",
		PassFile:      "/var/lib/pgadmin/pgpassfile",
	})
	b, err := reg.Marshal()
	require.NoError(t, err)

	var doc map[string]map[string]map[string]any
	require.NoError(t, json.Unmarshal(b, &doc))
	server := doc["Servers"]["1"]
	require.Equal(t, "w-postgres", server["Host"])
	require.EqualValues(t, 5432, server["Port"])
	require.Equal(t, "w", server["MaintenanceDB"])
	require.Equal(t, "w-db-user", server["Username"])
	require.Equal(t, "prefer", server["SSLMode"])
	require.Equal(t, "/var/lib/pgadmin/pgpassfile", server["PassFile"])
}
