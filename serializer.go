package audiograph

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/shaban/audiograph/session"
)

// StateVersion is the version of the state format written by Serializer.
const StateVersion = "1.0.0"

// EngineState is the serializable state of an engine.
type EngineState struct {
	Version      string            `json:"version"`
	Engine       string            `json:"engine"`
	Running      bool              `json:"running"`
	AudioSpec    session.AudioSpec `json:"audioSpec"`
	InputDevice  string            `json:"inputDevice,omitempty"`
	OutputDevice string            `json:"outputDevice,omitempty"`
	FinalVolume  float64           `json:"finalVolume"`
	Nodes        []NodeState       `json:"nodes"`
	Connections  []Connection      `json:"connections"`
	Output       string            `json:"output,omitempty"`
	Timestamp    int64             `json:"timestamp"`
}

// NodeState is the state of one node.
type NodeState struct {
	ID           string             `json:"id"`
	Name         string             `json:"name"`
	Component    string             `json:"component"`
	Started      bool               `json:"started"`
	RampDuration time.Duration      `json:"rampDuration"`
	Parameters   map[string]float64 `json:"parameters"`
}

// Connection is a directed edge between two nodes. "final" names the final mixer.
type Connection struct {
	From string `json:"from"`
	To   string `json:"to"`
}

const finalMixerRef = "final"

// Serializer handles engine state persistence and restoration
type Serializer struct {
	engine *Engine
	now    func() time.Time
}

func NewSerializer(engine *Engine) *Serializer {
	return &Serializer{engine: engine, now: time.Now}
}

// GetState captures the complete engine state
func (s *Serializer) GetState() EngineState {
	e := s.engine
	state := EngineState{
		Version:      StateVersion,
		Engine:       e.ID(),
		Running:      e.IsRunning(),
		AudioSpec:    e.AudioSpec(),
		InputDevice:  e.InputDevice(),
		OutputDevice: e.OutputDevice(),
		FinalVolume:  e.final.Volume(),
		Nodes:        []NodeState{},
		Connections:  []Connection{},
		Timestamp:    s.now().Unix(),
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, id := range e.sortedIDsLocked() {
		n := e.nodes[id]
		state.Nodes = append(state.Nodes, NodeState{
			ID:           id,
			Name:         n.Name(),
			Component:    n.Description().String(),
			Started:      n.IsStarted(),
			RampDuration: n.RampDuration(),
			Parameters:   n.Values(),
		})
	}
	for src, dst := range e.links {
		if dst == e.final.ID() {
			dst = finalMixerRef
		}
		state.Connections = append(state.Connections, Connection{From: src, To: dst})
	}
	sort.Slice(state.Connections, func(i, j int) bool {
		return state.Connections[i].From < state.Connections[j].From
	})
	state.Output = e.output
	return state
}

// SetState applies a state to the nodes the engine already has: parameter
// values, ramp durations, started flags, connections and the output. Nodes
// are matched by id, then by name.
func (s *Serializer) SetState(ctx context.Context, state EngineState) error {
	if state.Version != StateVersion {
		return fmt.Errorf("%w: got %s, expected %s", ErrStateVersion, state.Version, StateVersion)
	}
	e := s.engine

	byRef := map[string]Node{finalMixerRef: e.final}
	for _, ns := range state.Nodes {
		n, err := s.resolve(ns)
		if err != nil {
			return err
		}
		byRef[ns.ID] = n
	}

	if err := e.final.SetVolume(state.FinalVolume); err != nil {
		return fmt.Errorf("final mixer: %w", err)
	}
	for _, ns := range state.Nodes {
		n := byRef[ns.ID]
		n.SetRampDuration(ns.RampDuration)
		names := make([]string, 0, len(ns.Parameters))
		for name := range ns.Parameters {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if err := n.Set(name, ns.Parameters[name]); err != nil {
				return fmt.Errorf("node %s: %w", ns.Name, err)
			}
		}
		if ns.Started {
			n.Start()
		} else {
			n.Stop()
		}
	}

	for _, c := range state.Connections {
		if c.From == state.Output {
			continue
		}
		src, dst := byRef[c.From], byRef[c.To]
		if src == nil || dst == nil {
			return fmt.Errorf("%w: connection %s -> %s", ErrUnknownNode, c.From, c.To)
		}
		if err := e.Connect(src, dst); err != nil {
			return err
		}
	}
	if state.Output != "" {
		out := byRef[state.Output]
		if out == nil {
			return fmt.Errorf("%w: output %s", ErrUnknownNode, state.Output)
		}
		if err := e.SetOutput(ctx, out); err != nil {
			return err
		}
	}
	return nil
}

func (s *Serializer) resolve(ns NodeState) (Node, error) {
	if n, ok := s.engine.Node(ns.ID); ok {
		return n, nil
	}
	for _, n := range s.engine.Nodes() {
		if n.Name() == ns.Name && n.Description().String() == ns.Component {
			return n, nil
		}
	}
	return nil, fmt.Errorf("%w: %s (%s)", ErrUnknownNode, ns.Name, ns.Component)
}

// SaveToWriter saves the engine state to a writer (JSON format)
func (s *Serializer) SaveToWriter(writer io.Writer) error {
	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(s.GetState()); err != nil {
		return fmt.Errorf("failed to encode engine state: %w", err)
	}
	return nil
}

// LoadFromReader loads engine state from a reader (JSON format)
func (s *Serializer) LoadFromReader(ctx context.Context, reader io.Reader) error {
	var state EngineState
	if err := json.NewDecoder(reader).Decode(&state); err != nil {
		return fmt.Errorf("failed to decode engine state: %w", err)
	}
	return s.SetState(ctx, state)
}
