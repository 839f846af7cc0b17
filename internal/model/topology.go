package model

// TestType distinguishes the two exam topologies.
type TestType string

const (
	TestTypePartial TestType = "partial"
	TestTypeMock    TestType = "mock"
)

// ModuleType identifies one timed segment of an exam.
type ModuleType string

const (
	ModuleListening ModuleType = "listening"
	ModuleReading   ModuleType = "reading"
	ModuleWriting   ModuleType = "writing"
)

// CanonicalModuleOrder is the fixed module sequence for mock exams.
// Absent modules are skipped; the order itself never changes.
var CanonicalModuleOrder = []ModuleType{ModuleListening, ModuleReading, ModuleWriting}

// ModuleTracks holds the track selected for each module of a mock exam.
// An empty string means the module is not part of this exam.
type ModuleTracks struct {
	Listening string `json:"listening,omitempty"`
	Reading   string `json:"reading,omitempty"`
	Writing   string `json:"writing,omitempty"`
}

// TrackFor returns the track id selected for a module.
func (t ModuleTracks) TrackFor(m ModuleType) string {
	switch m {
	case ModuleListening:
		return t.Listening
	case ModuleReading:
		return t.Reading
	case ModuleWriting:
		return t.Writing
	}
	return ""
}

// ModuleDurations holds per-module durations in minutes for a mock exam.
type ModuleDurations struct {
	Listening int `json:"listening,omitempty"`
	Reading   int `json:"reading,omitempty"`
	Writing   int `json:"writing,omitempty"`
}

// DurationFor returns the duration in minutes configured for a module.
func (d ModuleDurations) DurationFor(m ModuleType) int {
	switch m {
	case ModuleListening:
		return d.Listening
	case ModuleReading:
		return d.Reading
	case ModuleWriting:
		return d.Writing
	}
	return 0
}

// Topology is the tagged variant describing an exam's module layout.
// Exactly one of the two concrete types applies; modeling it this way
// keeps "field present but topology says it shouldn't be" states
// unrepresentable in the timing code.
type Topology interface {
	TestType() TestType
	// Modules returns the ordered modules this exam runs through.
	Modules() []ModuleType
	// TotalDurationMinutes is the full exam length.
	TotalDurationMinutes() int
}

// Partial is a single-module exam.
type Partial struct {
	TrackID         string
	TrackName       string
	Module          ModuleType
	DurationMinutes int
}

func (p Partial) TestType() TestType        { return TestTypePartial }
func (p Partial) Modules() []ModuleType     { return []ModuleType{p.Module} }
func (p Partial) TotalDurationMinutes() int { return p.DurationMinutes }

// Mock is a multi-module exam following the canonical module order.
type Mock struct {
	Tracks    ModuleTracks
	Durations ModuleDurations
}

func (m Mock) TestType() TestType { return TestTypeMock }

// Modules returns the selected modules in canonical order, skipping any the
// admin did not include.
func (m Mock) Modules() []ModuleType {
	var mods []ModuleType
	for _, mod := range CanonicalModuleOrder {
		if m.Tracks.TrackFor(mod) != "" {
			mods = append(mods, mod)
		}
	}
	return mods
}

func (m Mock) TotalDurationMinutes() int {
	total := 0
	for _, mod := range m.Modules() {
		total += m.Durations.DurationFor(mod)
	}
	return total
}
