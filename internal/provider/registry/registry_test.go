package registry_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/emberio/hearth/internal/domain"
	"github.com/emberio/hearth/internal/provider/registry"
)

// fakeProvider is a minimal Provider for registry tests.
type fakeProvider struct {
	name   string
	health *domain.HealthTracker
}

func newFakeProvider(name string) *fakeProvider {
	return &fakeProvider{name: name, health: domain.NewHealthTracker()}
}

func (f *fakeProvider) Generate(_ context.Context, _ *domain.GenerationRequest) (*domain.GenerationResponse, error) {
	return &domain.GenerationResponse{Provider: f.name}, nil
}

func (f *fakeProvider) GenerateStream(_ context.Context, _ *domain.GenerationRequest) (<-chan domain.StreamChunk, error) {
	chunks := make(chan domain.StreamChunk)
	close(chunks)
	return chunks, nil
}

func (f *fakeProvider) Name() string                                  { return f.name }
func (f *fakeProvider) Available() bool                               { return f.health.Available() }
func (f *fakeProvider) ModelForTask(_ domain.TaskType) string         { return f.name + "-model" }
func (f *fakeProvider) ModelForCapability(_ domain.Capability) string { return f.name + "-model" }
func (f *fakeProvider) ValidateConfig() error                         { return nil }
func (f *fakeProvider) Health() *domain.HealthTracker                 { return f.health }

func candidateNames(t *testing.T, reg *registry.Registry) []string {
	t.Helper()
	candidates := reg.Candidates(context.Background())
	names := make([]string, 0, len(candidates))
	for _, p := range candidates {
		names = append(names, p.Name())
	}
	return names
}

func TestRegistry_Register(t *testing.T) {
	ctx := context.Background()

	t.Run("should register and retrieve a provider", func(t *testing.T) {
		reg := registry.NewRegistry()
		require.NoError(t, reg.Register(ctx, newFakeProvider("openai"), 1, 70))

		p, err := reg.Get(ctx, "openai")
		require.NoError(t, err)
		require.Equal(t, "openai", p.Name())
	})

	t.Run("should reject duplicate names", func(t *testing.T) {
		reg := registry.NewRegistry()
		require.NoError(t, reg.Register(ctx, newFakeProvider("openai"), 1, 70))

		err := reg.Register(ctx, newFakeProvider("openai"), 2, 20)
		require.Error(t, err)
		require.Contains(t, err.Error(), "already registered")
	})

	t.Run("should reject nil provider", func(t *testing.T) {
		reg := registry.NewRegistry()
		require.Error(t, reg.Register(ctx, nil, 1, 10))
	})

	t.Run("should return not-found for unknown names", func(t *testing.T) {
		reg := registry.NewRegistry()

		_, err := reg.Get(ctx, "nonexistent")
		require.ErrorIs(t, err, domain.ErrProviderNotFound)
	})
}

func TestRegistry_Candidates(t *testing.T) {
	ctx := context.Background()

	t.Run("should order candidates by ascending priority", func(t *testing.T) {
		reg := registry.NewRegistry()
		require.NoError(t, reg.Register(ctx, newFakeProvider("echo"), 9, 10))
		require.NoError(t, reg.Register(ctx, newFakeProvider("openai"), 1, 70))
		require.NoError(t, reg.Register(ctx, newFakeProvider("compat"), 2, 20))

		require.Equal(t, []string{"openai", "compat", "echo"}, candidateNames(t, reg))
	})

	t.Run("should break priority ties by registration order", func(t *testing.T) {
		reg := registry.NewRegistry()
		require.NoError(t, reg.Register(ctx, newFakeProvider("first"), 1, 50))
		require.NoError(t, reg.Register(ctx, newFakeProvider("second"), 1, 50))

		require.Equal(t, []string{"first", "second"}, candidateNames(t, reg))
	})

	t.Run("should exclude disabled entries without disturbing order", func(t *testing.T) {
		reg := registry.NewRegistry()
		require.NoError(t, reg.Register(ctx, newFakeProvider("openai"), 1, 70))
		require.NoError(t, reg.Register(ctx, newFakeProvider("compat"), 2, 20))
		require.NoError(t, reg.Register(ctx, newFakeProvider("echo"), 9, 10))

		require.NoError(t, reg.SetEnabled(ctx, "compat", false))
		require.Equal(t, []string{"openai", "echo"}, candidateNames(t, reg))

		require.NoError(t, reg.SetEnabled(ctx, "compat", true))
		require.Equal(t, []string{"openai", "compat", "echo"}, candidateNames(t, reg))
	})
}

func TestRegistry_SetEnabled(t *testing.T) {
	ctx := context.Background()

	t.Run("should return not-found for unknown names", func(t *testing.T) {
		reg := registry.NewRegistry()

		err := reg.SetEnabled(ctx, "nonexistent", false)
		require.ErrorIs(t, err, domain.ErrProviderNotFound)
	})

	t.Run("should keep the enabled flag independent of health", func(t *testing.T) {
		reg := registry.NewRegistry()
		p := newFakeProvider("openai")
		p.health.Disable("bad key")
		require.NoError(t, reg.Register(ctx, p, 1, 70))

		// Unhealthy but still enabled: present in the candidate list, the
		// engine itself skips it via Available.
		require.Equal(t, []string{"openai"}, candidateNames(t, reg))
	})
}

func TestRegistry_Entries(t *testing.T) {
	ctx := context.Background()

	t.Run("should snapshot priority, weight, enabled flag and health", func(t *testing.T) {
		reg := registry.NewRegistry()
		require.NoError(t, reg.Register(ctx, newFakeProvider("openai"), 1, 70))
		require.NoError(t, reg.Register(ctx, newFakeProvider("echo"), 9, 10))
		require.NoError(t, reg.SetEnabled(ctx, "echo", false))

		entries := reg.Entries(ctx)
		require.Len(t, entries, 2)

		require.Equal(t, "openai", entries[0].Name)
		require.Equal(t, 1, entries[0].Priority)
		require.Equal(t, 70, entries[0].Weight)
		require.True(t, entries[0].Enabled)
		require.Equal(t, domain.StatusAvailable, entries[0].Health.Status)

		require.Equal(t, "echo", entries[1].Name)
		require.False(t, entries[1].Enabled)
	})
}
