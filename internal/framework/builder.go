package framework

import (
	"context"
	"fmt"

	core "github.com/openmuni/grievance-core/internal/app/core/service"
	"github.com/openmuni/grievance-core/internal/framework/lifecycle"
)

// ServiceBuilder provides a fluent API for constructing services with a
// manifest, lifecycle hooks, and a readiness check, reducing boilerplate
// across the per-domain services under internal/app/services.
type ServiceBuilder struct {
	name     string
	domain   string
	manifest *Manifest
	hooks    *lifecycle.Hooks
	readyFn  func(context.Context) error
	bus      BusClient

	startFn func(context.Context) error
	stopFn  func(context.Context) error

	errs []error
}

// NewService creates a new ServiceBuilder with the given name and domain.
func NewService(name, domain string) *ServiceBuilder {
	return &ServiceBuilder{
		name:   name,
		domain: domain,
		hooks:  lifecycle.NewHooks(),
		manifest: &Manifest{
			Name:   name,
			Domain: domain,
			Layer:  "engine",
		},
	}
}

// WithDescription sets the service description.
func (b *ServiceBuilder) WithDescription(desc string) *ServiceBuilder {
	b.manifest.Description = desc
	return b
}

// WithLayer sets the service layer (ingress, adapter, engine, data, security).
func (b *ServiceBuilder) WithLayer(layer string) *ServiceBuilder {
	b.manifest.Layer = layer
	return b
}

// WithCapabilities adds capabilities to the service manifest.
func (b *ServiceBuilder) WithCapabilities(caps ...string) *ServiceBuilder {
	b.manifest.Capabilities = append(b.manifest.Capabilities, caps...)
	return b
}

// DependsOn declares service dependencies.
func (b *ServiceBuilder) DependsOn(deps ...string) *ServiceBuilder {
	b.manifest.DependsOn = append(b.manifest.DependsOn, deps...)
	return b
}

// RequiresAPI declares required API surfaces.
func (b *ServiceBuilder) RequiresAPI(apis ...string) *ServiceBuilder {
	b.manifest.RequiresAPIs = append(b.manifest.RequiresAPIs, apis...)
	return b
}

// WithValidatorFunc adds a custom manifest validation function.
func (b *ServiceBuilder) WithValidatorFunc(fn func(*Manifest) error) *ServiceBuilder {
	if fn != nil {
		if err := fn(b.manifest); err != nil {
			b.errs = append(b.errs, err)
		}
	}
	return b
}

// OnPreStart adds a pre-start hook.
func (b *ServiceBuilder) OnPreStart(fn func(context.Context) error) *ServiceBuilder {
	b.hooks.OnPreStart(fn)
	return b
}

// OnPostStart adds a post-start hook.
func (b *ServiceBuilder) OnPostStart(fn func(context.Context) error) *ServiceBuilder {
	b.hooks.OnPostStart(fn)
	return b
}

// OnPreStop adds a pre-stop hook.
func (b *ServiceBuilder) OnPreStop(fn func(context.Context) error) *ServiceBuilder {
	b.hooks.OnPreStop(fn)
	return b
}

// OnPostStop adds a post-stop hook (run in reverse registration order).
func (b *ServiceBuilder) OnPostStop(fn func(context.Context) error) *ServiceBuilder {
	b.hooks.OnPostStop(fn)
	return b
}

// OnStart sets the main start function (runs after pre-start hooks).
func (b *ServiceBuilder) OnStart(fn func(context.Context) error) *ServiceBuilder {
	b.startFn = fn
	return b
}

// OnStop sets the main stop function (runs after pre-stop hooks).
func (b *ServiceBuilder) OnStop(fn func(context.Context) error) *ServiceBuilder {
	b.stopFn = fn
	return b
}

// WithReadyCheck sets a custom readiness check function.
func (b *ServiceBuilder) WithReadyCheck(fn func(context.Context) error) *ServiceBuilder {
	b.readyFn = fn
	return b
}

// WithBus sets the bus client for the service.
func (b *ServiceBuilder) WithBus(bus BusClient) *ServiceBuilder {
	b.bus = bus
	return b
}

// Build creates the service. Returns an error if validation fails.
func (b *ServiceBuilder) Build() (*BuiltService, error) {
	if b.name == "" {
		return nil, fmt.Errorf("%w: service name required", ErrInvalidManifest)
	}
	if b.domain == "" {
		return nil, fmt.Errorf("%w: service domain required", ErrInvalidManifest)
	}

	b.manifest.Name = b.name
	b.manifest.Domain = b.domain
	b.manifest.Normalize()

	if err := b.manifest.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}
	if len(b.errs) > 0 {
		return nil, fmt.Errorf("builder errors: %v", b.errs)
	}

	svc := &BuiltService{
		ServiceBase: *NewServiceBase(b.name, b.domain),
		manifest:    b.manifest,
		hooks:       b.hooks,
		startFn:     b.startFn,
		stopFn:      b.stopFn,
		readyFn:     b.readyFn,
		bus:         b.bus,
		shutdown:    lifecycle.NewGracefulShutdown(),
	}
	return svc, nil
}

// MustBuild creates the service or panics on error. Use only in init-time
// wiring where a build failure indicates a programming error.
func (b *ServiceBuilder) MustBuild() *BuiltService {
	svc, err := b.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to build service %q: %v", b.name, err))
	}
	return svc
}

// BuiltService is a service created by ServiceBuilder. It satisfies the
// system.Service and system.DescriptorProvider interfaces.
type BuiltService struct {
	ServiceBase

	manifest *Manifest
	hooks    *lifecycle.Hooks
	startFn  func(context.Context) error
	stopFn   func(context.Context) error
	readyFn  func(context.Context) error
	bus      BusClient
	shutdown *lifecycle.GracefulShutdown

	started bool
}

// Manifest returns the service manifest.
func (s *BuiltService) Manifest() *Manifest { return s.manifest }

// Start runs pre-start hooks, the start function, then post-start hooks.
func (s *BuiltService) Start(ctx context.Context) error {
	if s.started {
		return ErrServiceAlreadyStarted
	}
	if err := s.hooks.RunPreStart(ctx); err != nil {
		return NewHookError(s.Name(), "PreStart", err)
	}
	if s.startFn != nil {
		if err := s.startFn(ctx); err != nil {
			return WrapServiceError(s.Name(), "start", err)
		}
	}
	s.MarkReady(true)
	s.started = true
	if err := s.hooks.RunPostStart(ctx); err != nil {
		return NewHookError(s.Name(), "PostStart", err)
	}
	return nil
}

// Stop runs pre-stop hooks, the stop function, then post-stop hooks in
// reverse registration order.
func (s *BuiltService) Stop(ctx context.Context) error {
	if !s.started {
		return nil
	}
	s.shutdown.Shutdown()

	if err := s.hooks.RunPreStop(ctx); err != nil {
		return NewHookError(s.Name(), "PreStop", err)
	}
	s.MarkReady(false)
	if s.stopFn != nil {
		if err := s.stopFn(ctx); err != nil {
			return WrapServiceError(s.Name(), "stop", err)
		}
	}
	s.started = false
	if err := s.hooks.RunPostStop(ctx); err != nil {
		return NewHookError(s.Name(), "PostStop", err)
	}
	return nil
}

// Ready checks base readiness then the custom ready check, if any.
func (s *BuiltService) Ready(ctx context.Context) error {
	if err := s.ServiceBase.Ready(ctx); err != nil {
		return err
	}
	if s.readyFn != nil {
		return s.readyFn(ctx)
	}
	return nil
}

// Bus returns the service's bus client.
func (s *BuiltService) Bus() BusClient { return s.bus }

// Descriptor returns the service descriptor for the system status endpoint.
func (s *BuiltService) Descriptor() core.Descriptor {
	return s.manifest.ToDescriptor()
}

// IsStarted returns true if the service has been started.
func (s *BuiltService) IsStarted() bool { return s.started }
