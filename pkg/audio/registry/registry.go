// Package registry keeps the audio backends compiled into the binary and
// resolves one of them by name (or by priority for "auto") at startup.
package registry

import (
	"context"
	"fmt"
	"io"
	"reflect"
	"sort"
	"sync"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/hashicorp/go-multierror"
	"github.com/xaionaro-go/poise/pkg/audio/types"
	"github.com/xaionaro-go/poise/pkg/errkind"
)

const NameAuto = "auto"

// Factory creates a backend. The returned value implements
// types.CaptureBackend, types.RenderBackend or both.
type Factory interface {
	NewBackend(ctx context.Context) (io.Closer, error)
}

type Entry struct {
	Name     string
	Priority int
	Factory  Factory
}

type Registry struct {
	locker  sync.Mutex
	entries map[reflect.Type]Entry

	lastSuccessful map[kind]string
}

type kind int

const (
	kindCapture = kind(iota)
	kindRender
	kindCombined
)

func (k kind) String() string {
	switch k {
	case kindCapture:
		return "capture"
	case kindRender:
		return "render"
	case kindCombined:
		return "capture+render"
	default:
		return fmt.Sprintf("unknown_kind_%d", int(k))
	}
}

func New() *Registry {
	return &Registry{
		entries:        map[reflect.Type]Entry{},
		lastSuccessful: map[kind]string{},
	}
}

var Default = New()

func RegisterFactory(name string, priority int, factory Factory) {
	Default.RegisterFactory(name, priority, factory)
}

func (r *Registry) RegisterFactory(
	name string,
	priority int,
	factory Factory,
) {
	t := reflect.ValueOf(factory).Type()
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	r.locker.Lock()
	defer r.locker.Unlock()
	if _, ok := r.entries[t]; ok {
		panic(fmt.Errorf("there is already registered a backend factory of type %v", t))
	}
	for _, entry := range r.entries {
		if entry.Name == name {
			panic(fmt.Errorf("there is already registered a backend factory with name %q", name))
		}
	}
	r.entries[t] = Entry{
		Name:     name,
		Priority: priority,
		Factory:  factory,
	}
}

func Factories() []Entry {
	return Default.Factories()
}

// Factories returns the entries ordered by priority, highest first.
func (r *Registry) Factories() []Entry {
	r.locker.Lock()
	defer r.locker.Unlock()

	entries := make([]Entry, 0, len(r.entries))
	for _, entry := range r.entries {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Priority != entries[j].Priority {
			return entries[i].Priority > entries[j].Priority
		}
		return entries[i].Name < entries[j].Name
	})
	return entries
}

func Names() []string {
	return Default.Names()
}

func (r *Registry) Names() []string {
	var names []string
	for _, entry := range r.Factories() {
		names = append(names, entry.Name)
	}
	return names
}

func NewCaptureBackend(ctx context.Context, name string) (types.CaptureBackend, error) {
	return Default.NewCaptureBackend(ctx, name)
}

func (r *Registry) NewCaptureBackend(ctx context.Context, name string) (types.CaptureBackend, error) {
	b, err := r.newBackend(ctx, name, kindCapture)
	if err != nil {
		return nil, err
	}
	return b.(types.CaptureBackend), nil
}

func NewRenderBackend(ctx context.Context, name string) (types.RenderBackend, error) {
	return Default.NewRenderBackend(ctx, name)
}

func (r *Registry) NewRenderBackend(ctx context.Context, name string) (types.RenderBackend, error) {
	b, err := r.newBackend(ctx, name, kindRender)
	if err != nil {
		return nil, err
	}
	return b.(types.RenderBackend), nil
}

// NewBackend returns a backend serving both capture and render.
func NewBackend(ctx context.Context, name string) (types.Backend, error) {
	return Default.NewBackend(ctx, name)
}

func (r *Registry) NewBackend(ctx context.Context, name string) (types.Backend, error) {
	b, err := r.newBackend(ctx, name, kindCombined)
	if err != nil {
		return nil, err
	}
	return b.(types.Backend), nil
}

func supports(b io.Closer, k kind) bool {
	switch k {
	case kindCapture:
		_, ok := b.(types.CaptureBackend)
		return ok
	case kindRender:
		_, ok := b.(types.RenderBackend)
		return ok
	case kindCombined:
		_, ok := b.(types.Backend)
		return ok
	}
	return false
}

type pinger interface {
	Ping(ctx context.Context) error
}

func (r *Registry) tryEntry(ctx context.Context, entry Entry, k kind) (io.Closer, error) {
	b, err := entry.Factory.NewBackend(ctx)
	logger.Debugf(ctx, "initializing backend %q result is %v", entry.Name, err)
	if err != nil {
		return nil, fmt.Errorf("unable to initialize %q: %w", entry.Name, err)
	}
	if !supports(b, k) {
		b.Close()
		return nil, errkind.Configf("backend %q does not support %s", entry.Name, k)
	}
	if p, ok := b.(pinger); ok {
		err = p.Ping(ctx)
		logger.Debugf(ctx, "pinging backend %q result is %v", entry.Name, err)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("unable to ping %q: %w", entry.Name, err)
		}
	}
	return b, nil
}

func (r *Registry) newBackend(
	ctx context.Context,
	name string,
	k kind,
) (_ret io.Closer, _err error) {
	logger.Debugf(ctx, "newBackend(%q, %s)", name, k)
	defer func() { logger.Debugf(ctx, "/newBackend(%q, %s): %v", name, k, _err) }()

	entries := r.Factories()
	if name != "" && name != NameAuto {
		for _, entry := range entries {
			if entry.Name == name {
				return r.tryEntry(ctx, entry, k)
			}
		}
		return nil, errkind.Configf("unknown audio backend %q, known backends: %v", name, r.Names())
	}

	if len(entries) == 0 {
		return nil, errkind.Configf("no audio backends are compiled in")
	}

	r.locker.Lock()
	last := r.lastSuccessful[k]
	r.locker.Unlock()

	var mErr *multierror.Error
	for _, entry := range entries {
		if entry.Name != last {
			continue
		}
		b, err := r.tryEntry(ctx, entry, k)
		if err == nil {
			return b, nil
		}
		mErr = multierror.Append(mErr, err)
	}
	for _, entry := range entries {
		if entry.Name == last {
			continue
		}
		b, err := r.tryEntry(ctx, entry, k)
		if err != nil {
			mErr = multierror.Append(mErr, err)
			continue
		}
		r.locker.Lock()
		r.lastSuccessful[k] = entry.Name
		r.locker.Unlock()
		return b, nil
	}
	return nil, errkind.Config(fmt.Errorf("was unable to initialize any %s backend: %w", k, mErr.ErrorOrNil()))
}
