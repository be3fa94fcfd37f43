package metrics

import "time"

// Nop discards everything.
type Nop struct{}

var _ Recorder = Nop{}

func (Nop) RecordParameterWrite(string, string) {}
func (Nop) RecordGraphOp(string, error)         {}
func (Nop) RecordOutputReconnect(string)        {}
func (Nop) RecordRender(int, time.Duration)     {}
func (Nop) RecordDeviceSelection(string, error) {}
func (Nop) OnEngineStart(time.Duration, error)  {}
func (Nop) OnEngineStop(time.Duration)          {}
func (Nop) OnConfigure(error)                   {}
