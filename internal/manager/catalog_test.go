package manager

import (
	"testing"

	"McpAgent/internal/models"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tools(names ...string) []models.ToolDescriptor {
	out := make([]models.ToolDescriptor, 0, len(names))
	for _, n := range names {
		out = append(out, models.ToolDescriptor{Name: n, InputSchema: map[string]any{"type": "object"}})
	}
	return out
}

func TestBuildCatalog(t *testing.T) {
	c := BuildCatalog([]CatalogSource{
		{Server: "math", Tools: tools("add_numbers", "echo")},
		{Server: "weather", Tools: tools("get_weather_forecast", "echo")},
	})

	assert.Equal(t, 3, c.Len())
	assert.Equal(t, []string{"add_numbers", "echo", "get_weather_forecast"}, c.Names())

	for _, tool := range c.FlatToolList() {
		owner, err := c.ResolveOwner(tool.Name)
		require.NoError(t, err)
		assert.Equal(t, tool.OwnerServer, owner)
	}

	owner, err := c.ResolveOwner("echo")
	require.NoError(t, err)
	assert.Equal(t, "math", owner)

	assert.Equal(t, []ShadowedTool{{Name: "echo", Server: "weather", Owner: "math"}}, c.Shadowed())
	assert.Equal(t, []string{"echo"}, c.ShadowedBy("weather"))
	assert.Empty(t, c.ShadowedBy("math"))
}

func TestResolveOwnerUnknown(t *testing.T) {
	_, err := EmptyCatalog().ResolveOwner("nope")
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrToolNotFound))
	assert.Contains(t, err.Error(), "tool nope not found in any connected server")
}

func TestFlatToolListIsCopy(t *testing.T) {
	c := BuildCatalog([]CatalogSource{{Server: "math", Tools: tools("add_numbers")}})

	list := c.FlatToolList()
	list[0].Name = "mutated"

	assert.Equal(t, []string{"add_numbers"}, c.Names())
	assert.Equal(t, 1, c.Len())
}

func TestBuildCatalogDoesNotMutateSources(t *testing.T) {
	src := tools("echo")
	BuildCatalog([]CatalogSource{{Server: "math", Tools: src}})
	assert.Empty(t, src[0].OwnerServer)
}
