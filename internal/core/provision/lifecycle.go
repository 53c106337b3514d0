package provision

import (
	"context"
	"time"

	"github.com/melih/blitzkrieg/internal/core/domain"
	"github.com/melih/blitzkrieg/internal/core/ports"
)

// Predicate reports whether the named resource is ready for use. An error is
// treated as "not ready yet" and remembered for the timeout report.
type Predicate func(ctx context.Context, name string) (bool, error)

// Lifecycle manages named containers end to end on a ContainerRuntime.
type Lifecycle struct {
	env     Env
	runtime ports.ContainerRuntime
}

func NewLifecycle(env Env, runtime ports.ContainerRuntime) *Lifecycle {
	return &Lifecycle{env: env, runtime: runtime}
}

// Exists reports whether a container with the given name exists.
func (l *Lifecycle) Exists(ctx context.Context, name string) (bool, error) {
	_, err := l.runtime.ContainerGet(ctx, name)
	if err == nil {
		return true, nil
	}
	if domain.IsNotFound(err) {
		return false, nil
	}
	return false, domain.NewError("inspect container", name, domain.ErrRuntimeAPI, err)
}

// Start launches spec.Name, destroying any existing container with the same
// name first. Configuration of an existing container is never compared, so
// a restart always yields a fresh container. The returned handle is Starting
// on success and Failed otherwise.
func (l *Lifecycle) Start(ctx context.Context, spec domain.ContainerSpec) (*domain.ResourceHandle, error) {
	log := l.env.Log.With().Str("resource", spec.Name).Logger()
	h := domain.NewHandle(spec.Name, domain.Kind(spec.Labels[domain.LabelKind]))
	if len(spec.Ports) > 0 {
		h.Port = spec.Ports[0].HostPort
	}
	_ = h.Transition(domain.StateStarting)

	exists, err := l.Exists(ctx, spec.Name)
	if err != nil {
		h.Fail(err)
		return h, err
	}
	if exists {
		log.Info().Msg("removing existing container before start")
		if err := l.runtime.ContainerRemove(ctx, spec.Name, true); err != nil && !domain.IsNotFound(err) {
			perr := domain.NewError("remove container", spec.Name, domain.Classify(err), err)
			h.Fail(perr)
			return h, perr
		}
	}

	id, err := l.runtime.ContainerRun(ctx, spec)
	if err != nil {
		perr := domain.NewError("run container", spec.Name, domain.Classify(err), err)
		log.Error().Err(err).Str("image", spec.Image).Msg("container run failed")
		h.Fail(perr)
		return h, perr
	}
	log.Info().Str("id", shortID(id)).Str("image", spec.Image).Msg("container started")
	return h, nil
}

// WaitUntilReady polls ready every interval until it returns true or timeout
// elapses. It returns nil as soon as the predicate holds and an ErrTimeout
// ProvisionError otherwise. Total wall time is bounded by timeout plus one
// predicate call.
func (l *Lifecycle) WaitUntilReady(ctx context.Context, name string, ready Predicate, timeout, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultInterval
	}
	log := l.env.Log.With().Str("resource", name).Logger()
	deadline := time.Now().Add(timeout)
	var lastErr error
	for attempt := 1; ; attempt++ {
		ok, err := ready(ctx, name)
		if ok {
			log.Debug().Int("attempt", attempt).Msg("resource ready")
			return nil
		}
		if err != nil {
			lastErr = err
			log.Debug().Err(err).Int("attempt", attempt).Msg("readiness probe failed")
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return domain.NewError("wait for", name, domain.ErrTimeout, lastErr)
		}
		wait := interval
		if remaining < wait {
			wait = remaining
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return domain.NewError("wait for", name, domain.ErrTimeout, ctx.Err())
		case <-timer.C:
		}
	}
}

// StopAndRemove force-removes the named container. A container that does not
// exist counts as removed.
func (l *Lifecycle) StopAndRemove(ctx context.Context, name string) error {
	err := l.runtime.ContainerRemove(ctx, name, true)
	if err == nil || domain.IsNotFound(err) {
		l.env.Log.Debug().Str("resource", name).Bool("existed", err == nil).Msg("container removed")
		return nil
	}
	return domain.NewError("remove container", name, domain.Classify(err), err)
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
