package tool

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentverse/internal/domain"
)

type mockTool struct {
	name string
}

func (m *mockTool) Name() string              { return m.name }
func (m *mockTool) Description() string       { return "mock" }
func (m *mockTool) Schema() domain.ToolSchema { return domain.ToolSchema{Name: m.name} }
func (m *mockTool) Execute(context.Context, json.RawMessage) (*domain.ToolResult, error) {
	return TextResult(m.name), nil
}

func TestRegistryBasic(t *testing.T) {
	reg := NewRegistry(nil)
	require.NoError(t, reg.Register(&mockTool{name: "runAgent"}))

	got, err := reg.Get("runAgent")
	require.NoError(t, err)
	res, err := got.Execute(context.Background(), json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.Equal(t, "runAgent", res.Content)
}

func TestRegistryNotFound(t *testing.T) {
	reg := NewRegistry(nil)
	_, err := reg.Get("nope")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrToolNotFound))
}

func TestRegistryDuplicate(t *testing.T) {
	reg := NewRegistry(nil)
	require.NoError(t, reg.Register(&mockTool{name: "a"}))
	assert.Error(t, reg.Register(&mockTool{name: "a"}))
}

func TestRegistryListSorted(t *testing.T) {
	reg := NewRegistry(nil)
	for _, n := range []string{"zeta", "alpha", "mid"} {
		require.NoError(t, reg.Register(&mockTool{name: n}))
	}

	var names []string
	for _, tl := range reg.List() {
		names = append(names, tl.Name())
	}
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, names)

	schemas := reg.Schemas()
	require.Len(t, schemas, 3)
	assert.Equal(t, "alpha", schemas[0].Name)
}

func TestRegistryListEmpty(t *testing.T) {
	reg := NewRegistry(nil)
	assert.Empty(t, reg.List())
	assert.Empty(t, reg.Schemas())
}
