package provision

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/melih/blitzkrieg/internal/adapters/fake"
	"github.com/melih/blitzkrieg/internal/core/domain"
	"github.com/stretchr/testify/require"
)

func workspaceSpecs() []domain.ResourceSpec {
	return []domain.ResourceSpec{
		{Name: "w-net", Kind: domain.KindNetwork},
		{
			Name:          "w-postgres",
			Kind:          domain.KindDatabase,
			Image:         "postgres:latest",
			PreferredPort: 5432,
			ContainerPort: "5432/tcp",
			Network:       "w-net",
			Volumes:       []domain.VolumeMount{{Volume: "w-pgdata", Target: "/var/lib/postgresql/data"}},
			DependsOn:     []string{"w-net"},
		},
		{
			Name:          "w-pgadmin",
			Kind:          domain.KindAdminUI,
			Image:         "dpage/pgadmin4",
			PreferredPort: 5050,
			ContainerPort: "80/tcp",
			Network:       "w-net",
			DependsOn:     []string{"w-net", "w-postgres"},
		},
	}
}

func newTestWorkflow(rt *fake.Runtime, env Env) *Workflow {
	return NewWorkflow(env, rt, NewPortAllocator(busyPorts{5432: true}, 10), nil)
}

func TestRunProvisionsAllResources(t *testing.T) {
	rt := fake.NewRuntime()
	rt.ReadyAfter = 2
	wf := newTestWorkflow(rt, testEnv())

	res := wf.Run(context.Background(), workspaceSpecs())

	require.True(t, res.Success)
	require.Empty(t, res.Errors)
	require.Equal(t, []domain.State{domain.StateRunning, domain.StateRunning, domain.StateRunning}, res.States())
	require.Equal(t, "w-net", res.Handles[0].Name)
	require.Equal(t, "w-postgres", res.Handles[1].Name)
	require.Equal(t, "w-pgadmin", res.Handles[2].Name)

	pg, ok := res.Handle("w-postgres")
	require.True(t, ok)
	require.Equal(t, 5433, pg.Port)

	spec, ok := rt.Spec("w-postgres")
	require.True(t, ok)
	require.Equal(t, []domain.PortBinding{{ContainerPort: "5432/tcp", HostPort: 5433}}, spec.Ports)
	require.Equal(t, "w-net", spec.Network)
	require.True(t, rt.HasVolume("w-pgdata"))
}

func TestRunAbortsWhenDatabaseNeverReady(t *testing.T) {
	rt := fake.NewRuntime()
	rt.ReadyAfter = 2
	rt.NeverReady("w-postgres")
	env := testEnv()
	env.Timeout = 50 * time.Millisecond
	wf := newTestWorkflow(rt, env)

	start := time.Now()
	res := wf.Run(context.Background(), workspaceSpecs())

	require.GreaterOrEqual(t, time.Since(start), env.Timeout)
	require.False(t, res.Success)
	require.Equal(t, "w-postgres", res.FailedStep)
	require.Equal(t, []domain.State{domain.StateRunning, domain.StateFailed, domain.StateAbsent}, res.States())
	require.Len(t, res.Errors, 1)
	require.ErrorIs(t, res.Errors[0], domain.ErrTimeout)
	require.Zero(t, rt.CountCalls("ContainerRun", "w-pgadmin"))
}

func TestTeardownContinuesPastNetworkFailure(t *testing.T) {
	rt := fake.NewRuntime()
	rt.ReadyAfter = 2
	wf := newTestWorkflow(rt, testEnv())
	ctx := context.Background()

	res := wf.Run(ctx, workspaceSpecs())
	require.True(t, res.Success)

	rt.FailOn("NetworkRemove", "w-net", errors.New("network has active endpoints"))
	td := wf.Teardown(ctx, workspaceSpecs())

	require.False(t, td.Success())
	require.Len(t, td.Errors(), 1)

	var names []string
	for _, s := range td.Steps {
		names = append(names, s.Name)
	}
	require.Equal(t, []string{"w-pgadmin", "w-postgres", "w-net", "w-pgdata"}, names)

	step, ok := td.Step("w-net")
	require.True(t, ok)
	require.ErrorIs(t, step.Err, domain.ErrRuntimeAPI)
	for _, name := range []string{"w-pgadmin", "w-postgres", "w-pgdata"} {
		s, _ := td.Step(name)
		require.NoError(t, s.Err, name)
	}
	require.Empty(t, rt.Containers())
	require.False(t, rt.HasVolume("w-pgdata"))
}

func TestTeardownOfNothingSucceeds(t *testing.T) {
	wf := newTestWorkflow(fake.NewRuntime(), testEnv())

	td := wf.Teardown(context.Background(), workspaceSpecs())
	require.True(t, td.Success())
	require.Len(t, td.Steps, 4)
}

func TestRunExecutesPostStepsWithoutUnwinding(t *testing.T) {
	rt := fake.NewRuntime()
	wf := newTestWorkflow(rt, testEnv())

	var seen map[string]domain.ResourceHandle
	ran := []string{}
	res := wf.Run(context.Background(), workspaceSpecs(),
		PostStep{Name: "register", Run: func(ctx context.Context, h map[string]domain.ResourceHandle) error {
			seen = h
			ran = append(ran, "register")
			return errors.New("upload refused")
		}},
		PostStep{Name: "record", Run: func(ctx context.Context, h map[string]domain.ResourceHandle) error {
			ran = append(ran, "record")
			return nil
		}},
	)

	require.Equal(t, []string{"register", "record"}, ran)
	require.Equal(t, 5433, seen["w-postgres"].Port)
	require.True(t, res.Success)
	require.Len(t, res.Errors, 1)
	require.Len(t, rt.Containers(), 2)
}

func TestRunSkipsPostStepsAfterFailure(t *testing.T) {
	rt := fake.NewRuntime()
	rt.FailOn("ContainerRun", "w-pgadmin", errors.New("boom"))
	wf := newTestWorkflow(rt, testEnv())

	called := false
	res := wf.Run(context.Background(), workspaceSpecs(), PostStep{Name: "register", Run: func(context.Context, map[string]domain.ResourceHandle) error {
		called = true
		return nil
	}})

	require.False(t, res.Success)
	require.False(t, called)
	require.Equal(t, "w-pgadmin", res.FailedStep)
}

func TestRunFailsOnPortExhaustion(t *testing.T) {
	rt := fake.NewRuntime()
	busy := busyPorts{}
	for p := 5432; p < 5442; p++ {
		busy[p] = true
	}
	wf := NewWorkflow(testEnv(), rt, NewPortAllocator(busy, 10), nil)

	res := wf.Run(context.Background(), workspaceSpecs())
	require.False(t, res.Success)
	require.ErrorIs(t, res.Errors[0], domain.ErrPortRangeExhausted)
	h, _ := res.Handle("w-postgres")
	require.Equal(t, domain.StateFailed, h.State)
	require.Zero(t, rt.CountCalls("ContainerRun", "w-postgres"))
}

func TestRunUsesCustomReadiness(t *testing.T) {
	rt := fake.NewRuntime()
	polls := map[string]int{}
	readiness := func(spec domain.ResourceSpec, h *domain.ResourceHandle) Predicate {
		if spec.Kind != domain.KindAdminUI {
			return nil
		}
		return func(ctx context.Context, name string) (bool, error) {
			polls[name]++
			return polls[name] > 1, nil
		}
	}
	wf := NewWorkflow(testEnv(), rt, NewPortAllocator(busyPorts{}, 10), readiness)

	res := wf.Run(context.Background(), workspaceSpecs())
	require.True(t, res.Success)
	require.Equal(t, 2, polls["w-pgadmin"])
}

func TestRunRejectsInvalidPlans(t *testing.T) {
	rt := fake.NewRuntime()
	wf := newTestWorkflow(rt, testEnv())

	specs := workspaceSpecs()
	specs[0].DependsOn = []string{"w-pgadmin"}
	res := wf.Run(context.Background(), specs)

	require.False(t, res.Success)
	require.Empty(t, res.Handles)
	require.ErrorIs(t, res.Errors[0], domain.ErrDependency)
	require.Empty(t, rt.Calls())
}

func TestOrder(t *testing.T) {
	specs := []domain.ResourceSpec{
		{Name: "admin", DependsOn: []string{"db", "net"}},
		{Name: "db", DependsOn: []string{"net"}},
		{Name: "cache"},
		{Name: "net"},
	}
	ordered, err := Order(specs)
	require.NoError(t, err)

	var names []string
	for _, s := range ordered {
		names = append(names, s.Name)
	}
	require.Equal(t, []string{"cache", "net", "db", "admin"}, names)

	_, err = Order([]domain.ResourceSpec{{Name: "a", DependsOn: []string{"missing"}}})
	require.ErrorIs(t, err, domain.ErrDependency)

	_, err = Order([]domain.ResourceSpec{{Name: "a"}, {Name: "a"}})
	require.ErrorIs(t, err, domain.ErrDependency)
}
