package endpoint_test

import (
	"context"
	"errors"
	"testing"

	"github.com/nucleus/ucl-kintone/internal/endpoint"
)

// =============================================================================
// REGISTRY TESTS
// These tests use ONLY endpoint interfaces.
// =============================================================================

type fakeEndpoint struct{ closed bool }

func (f *fakeEndpoint) ID() string { return "test.fake" }
func (f *fakeEndpoint) ValidateConfig(ctx context.Context, config map[string]any) (*endpoint.ValidationResult, error) {
	return &endpoint.ValidationResult{Valid: true}, nil
}
func (f *fakeEndpoint) GetCapabilities() *endpoint.Capabilities { return &endpoint.Capabilities{} }
func (f *fakeEndpoint) GetDescriptor() *endpoint.Descriptor     { return &endpoint.Descriptor{ID: f.ID()} }
func (f *fakeEndpoint) Close() error {
	f.closed = true
	return nil
}

func TestRegistry_RegisterAndCreate(t *testing.T) {
	registry := endpoint.NewRegistry()
	registry.Register("test.fake", func(config map[string]any) (endpoint.Endpoint, error) {
		return &fakeEndpoint{}, nil
	})

	ep, err := registry.Create("test.fake", nil)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if ep.ID() != "test.fake" {
		t.Errorf("expected test.fake, got %s", ep.ID())
	}

	if _, err := registry.Create("test.missing", nil); err == nil {
		t.Error("expected error for unknown template")
	}
}

func TestRegistry_DuplicatePanics(t *testing.T) {
	registry := endpoint.NewRegistry()
	factory := func(config map[string]any) (endpoint.Endpoint, error) { return &fakeEndpoint{}, nil }
	registry.Register("test.fake", factory)

	defer func() {
		if recover() == nil {
			t.Error("expected panic on duplicate registration")
		}
	}()
	registry.Register("test.fake", factory)
}

func TestRegistry_ListSorted(t *testing.T) {
	registry := endpoint.NewRegistry()
	for _, id := range []string{"http.b", "http.a", "jdbc.c"} {
		registry.Register(id, func(config map[string]any) (endpoint.Endpoint, error) { return &fakeEndpoint{}, nil })
	}

	got := registry.List()
	want := []string{"http.a", "http.b", "jdbc.c"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("List() = %v, want %v", got, want)
		}
	}
}

func TestRegistry_CreateSourceRejectsNonSource(t *testing.T) {
	registry := endpoint.NewRegistry()
	fake := &fakeEndpoint{}
	registry.Register("test.fake", func(config map[string]any) (endpoint.Endpoint, error) { return fake, nil })

	if _, err := registry.CreateSource("test.fake", nil); err == nil {
		t.Fatal("expected error for non-source endpoint")
	}
	if !fake.closed {
		t.Error("expected rejected endpoint to be closed")
	}
}

func TestRegistry_FactoryErrorWrapped(t *testing.T) {
	registry := endpoint.NewRegistry()
	boom := errors.New("boom")
	registry.Register("test.fake", func(config map[string]any) (endpoint.Endpoint, error) { return nil, boom })

	_, err := registry.Create("test.fake", nil)
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped factory error, got %v", err)
	}
}
