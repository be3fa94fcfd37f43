// Package plugins enumerates the audio unit components a host registry can
// instantiate and introspects their parameters.
//
// Model:
//   - List returns lightweight PluginInfo entries without instantiating anything.
//   - PluginInfo.Introspect instantiates the component once and reads its
//     parameter tree together with the values a fresh instance starts with.
//   - Filter chains (ByType/BySubtype/ByManufacturer/ByName/ByCategory) work on
//     both PluginInfos and Plugins.
package plugins

import (
	"fmt"
	"strings"

	"github.com/shaban/audiograph/host"
	"github.com/shaban/audiograph/param"
)

// PluginInfo is the quick-scan view of a registered component.
type PluginInfo struct {
	Name           string `json:"name"`
	ManufacturerID string `json:"manufacturerID"`
	Type           string `json:"type"`
	Subtype        string `json:"subtype"`
	Category       string `json:"category"`
}

// Description returns the component description the info was built from.
func (info PluginInfo) Description() host.Description {
	return host.Description{Type: info.Type, Subtype: info.Subtype, Manufacturer: info.ManufacturerID}
}

// PluginInfos represents a collection of PluginInfo objects with filtering methods
type PluginInfos []PluginInfo

// Plugin is an introspected component with its parameters.
type Plugin struct {
	PluginInfo
	Parameters []Parameter `json:"parameters"`
}

// Parameter is a parameter definition plus the value a fresh instance reports.
type Parameter struct {
	param.Parameter
	CurrentValue float64 `json:"currentValue"`
}

// Plugins represents a collection of Plugin objects with filtering methods
type Plugins []Plugin

func infoFor(d host.Description) PluginInfo {
	return PluginInfo{
		Name:           host.ComponentName(d),
		ManufacturerID: d.Manufacturer,
		Type:           d.Type,
		Subtype:        d.Subtype,
		Category:       d.Category(),
	}
}

// List enumerates the components registered in reg.
func List(reg *host.Registry) PluginInfos {
	descs := reg.Descriptions()
	infos := make(PluginInfos, 0, len(descs))
	for _, d := range descs {
		infos = append(infos, infoFor(d))
	}
	return infos
}

// Introspect instantiates the component and reads its parameters. Components
// that expose no parameter tree yield a Plugin without parameters.
func (info PluginInfo) Introspect(reg *host.Registry) (Plugin, error) {
	u, err := reg.Instantiate(info.Description(), info.Name)
	if err != nil {
		return Plugin{}, fmt.Errorf("introspect %s: %w", info.Name, err)
	}
	plugin := Plugin{PluginInfo: info}
	tree := u.Tree()
	if tree == nil {
		return plugin, nil
	}
	for _, p := range tree.All() {
		cur, ok := u.Value(p.Address)
		if !ok {
			cur = p.DefaultValue
		}
		plugin.Parameters = append(plugin.Parameters, Parameter{Parameter: p, CurrentValue: cur})
	}
	return plugin, nil
}

// Introspect maps Introspect over the slice and stops at the first failure.
func (infos PluginInfos) Introspect(reg *host.Registry) (Plugins, error) {
	out := make(Plugins, 0, len(infos))
	for _, info := range infos {
		p, err := info.Introspect(reg)
		if err != nil {
			return out, err
		}
		out = append(out, p)
	}
	return out, nil
}

func filterInfos(infos PluginInfos, keep func(PluginInfo) bool) PluginInfos {
	var filtered PluginInfos
	for _, info := range infos {
		if keep(info) {
			filtered = append(filtered, info)
		}
	}
	return filtered
}

// ByManufacturer returns entries with the given manufacturer code.
func (infos PluginInfos) ByManufacturer(manufacturerID string) PluginInfos {
	return filterInfos(infos, func(i PluginInfo) bool { return i.ManufacturerID == manufacturerID })
}

func (infos PluginInfos) ByType(pluginType string) PluginInfos {
	return filterInfos(infos, func(i PluginInfo) bool { return i.Type == pluginType })
}

func (infos PluginInfos) BySubtype(subtype string) PluginInfos {
	return filterInfos(infos, func(i PluginInfo) bool { return i.Subtype == subtype })
}

// ByName returns entries whose name contains namePattern, ignoring case.
func (infos PluginInfos) ByName(namePattern string) PluginInfos {
	return filterInfos(infos, func(i PluginInfo) bool { return matchesPattern(i.Name, namePattern) })
}

func (infos PluginInfos) ByCategory(category string) PluginInfos {
	return filterInfos(infos, func(i PluginInfo) bool { return strings.EqualFold(i.Category, category) })
}

func filterPlugins(plugins Plugins, keep func(Plugin) bool) Plugins {
	var filtered Plugins
	for _, p := range plugins {
		if keep(p) {
			filtered = append(filtered, p)
		}
	}
	return filtered
}

func (plugins Plugins) ByManufacturer(manufacturerID string) Plugins {
	return filterPlugins(plugins, func(p Plugin) bool { return p.ManufacturerID == manufacturerID })
}

func (plugins Plugins) ByType(pluginType string) Plugins {
	return filterPlugins(plugins, func(p Plugin) bool { return p.Type == pluginType })
}

func (plugins Plugins) ByName(namePattern string) Plugins {
	return filterPlugins(plugins, func(p Plugin) bool { return matchesPattern(p.Name, namePattern) })
}

// WithParameters returns plugins exposing at least one parameter.
func (plugins Plugins) WithParameters() Plugins {
	return filterPlugins(plugins, func(p Plugin) bool { return len(p.Parameters) > 0 })
}

func matchesPattern(name, pattern string) bool {
	return strings.Contains(strings.ToUpper(name), strings.ToUpper(pattern))
}

// GetParametersByUnit returns parameters of a specific unit type
func (plugin Plugin) GetParametersByUnit(unit string) []Parameter {
	var filtered []Parameter
	for _, p := range plugin.Parameters {
		if p.Unit == unit {
			filtered = append(filtered, p)
		}
	}
	return filtered
}

// GetRampableParameters returns only parameters that can ramp
func (plugin Plugin) GetRampableParameters() []Parameter {
	var filtered []Parameter
	for _, p := range plugin.Parameters {
		if p.CanRamp {
			filtered = append(filtered, p)
		}
	}
	return filtered
}

// Parameter looks up a parameter by name.
func (plugin Plugin) Parameter(name string) (Parameter, bool) {
	for _, p := range plugin.Parameters {
		if p.Name == name {
			return p, true
		}
	}
	return Parameter{}, false
}

// Summary returns a brief summary of the plugin
func (plugin Plugin) Summary() string {
	return fmt.Sprintf("%s (%s) - %d parameters", plugin.Name, plugin.ManufacturerID, len(plugin.Parameters))
}

func (plugin Plugin) ParameterCount() int { return len(plugin.Parameters) }
