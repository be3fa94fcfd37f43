package plugins

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaban/audiograph/host"
	"github.com/shaban/audiograph/host/soft"
)

func TestList(t *testing.T) {
	infos := List(soft.DefaultRegistry())
	require.Len(t, infos, 5)

	effects := infos.ByType("aufx")
	assert.Len(t, effects, 3)
	assert.Len(t, infos.ByCategory("instrument"), 1)
	assert.Len(t, infos.ByManufacturer("appl"), 2)
	assert.Len(t, infos.BySubtype("trem"), 1)

	zita := infos.ByName("zita")
	require.Len(t, zita, 1)
	assert.Equal(t, "Zita Reverb", zita[0].Name)
	assert.Equal(t, host.ZitaReverb, zita[0].Description())

	assert.Empty(t, infos.ByName("nothing like this"))
}

func TestIntrospect(t *testing.T) {
	reg := soft.DefaultRegistry()
	trem := List(reg).BySubtype("trem")
	require.Len(t, trem, 1)

	plugin, err := trem[0].Introspect(reg)
	require.NoError(t, err)
	assert.Equal(t, "Tremolo", plugin.Name)
	assert.Equal(t, len(host.TremoloParameters), plugin.ParameterCount())
	assert.Equal(t, "Tremolo (AuKt) - 2 parameters", plugin.Summary())

	depth, ok := plugin.Parameter("depth")
	require.True(t, ok)
	assert.Equal(t, host.TremoloDepth, depth.Address)
	assert.Equal(t, depth.DefaultValue, depth.CurrentValue)
	assert.Len(t, plugin.GetParametersByUnit("Hz"), 1)
	assert.Len(t, plugin.GetRampableParameters(), 2)

	_, ok = plugin.Parameter("nope")
	assert.False(t, ok)
}

func TestIntrospectAll(t *testing.T) {
	reg := soft.DefaultRegistry()
	all, err := List(reg).Introspect(reg)
	require.NoError(t, err)
	require.Len(t, all, 5)

	assert.Len(t, all.WithParameters(), 5)
	assert.Len(t, all.ByType("aumx"), 1)
	assert.Len(t, all.ByManufacturer("AuKt"), 3)
	assert.Len(t, all.ByName("FLUTE"), 1)
}

func TestIntrospectWithoutTree(t *testing.T) {
	reg := host.NewRegistry()
	soft.Register(reg, soft.WithoutTree())

	plugin, err := List(reg).ByName("mixer")[0].Introspect(reg)
	require.NoError(t, err)
	assert.Zero(t, plugin.ParameterCount())
	assert.Empty(t, Plugins{plugin}.WithParameters())
}

func TestIntrospectFailure(t *testing.T) {
	reg := host.NewRegistry()
	d := host.Description{Type: "aufx", Subtype: "fail", Manufacturer: "test"}
	boom := errors.New("boom")
	reg.Register(d, func(string) (host.Unit, error) { return nil, boom })

	_, err := List(reg).Introspect(reg)
	require.ErrorIs(t, err, boom)

	_, err = PluginInfo{Type: "aufx", Subtype: "gone"}.Introspect(reg)
	require.ErrorIs(t, err, host.ErrUnknownUnit)
}

func TestPluginJSON(t *testing.T) {
	reg := soft.DefaultRegistry()
	plugin, err := List(reg).ByName("mixer")[0].Introspect(reg)
	require.NoError(t, err)

	data, err := json.Marshal(plugin)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "Mixer", raw["name"])
	assert.Equal(t, "Mixer", raw["category"])
	params := raw["parameters"].([]any)
	require.Len(t, params, 1)
	vol := params[0].(map[string]any)
	assert.Equal(t, "volume", vol["name"])
	assert.Equal(t, 1.0, vol["currentValue"])
}
