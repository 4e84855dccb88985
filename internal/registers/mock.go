package registers

import (
	"slices"
	"sync"

	"github.com/banshee-data/equalisation/internal/geometry"
)

// MockCall is one recorded Writer call.
type MockCall struct {
	Chip     geometry.Chip
	Register Register // empty for SetThresholdAdj and LoadConfig
	Value    int
	Adj      []int16
	Load     bool
}

// MockWriter implements Writer for testing.
type MockWriter struct {
	mu sync.Mutex

	Calls     []MockCall
	SetError  error
	LoadError error
}

func (m *MockWriter) record(c MockCall, err error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		return err
	}
	m.Calls = append(m.Calls, c)
	return nil
}

func (m *MockWriter) SetThreshold0(chip geometry.Chip, value int) error {
	return m.record(MockCall{Chip: chip, Register: Threshold0, Value: value}, m.SetError)
}

func (m *MockWriter) SetThresholdN(chip geometry.Chip, value int) error {
	return m.record(MockCall{Chip: chip, Register: ThresholdN, Value: value}, m.SetError)
}

func (m *MockWriter) SetDACPixel(chip geometry.Chip, value int) error {
	return m.record(MockCall{Chip: chip, Register: DACPixel, Value: value}, m.SetError)
}

func (m *MockWriter) SetThresholdAdj(chip geometry.Chip, adj []int16) error {
	return m.record(MockCall{Chip: chip, Adj: slices.Clone(adj)}, m.SetError)
}

func (m *MockWriter) LoadConfig(chip geometry.Chip) error {
	return m.record(MockCall{Chip: chip, Load: true}, m.LoadError)
}

// Loaded returns the chips LoadConfig was called for, in call order.
func (m *MockWriter) Loaded() []geometry.Chip {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []geometry.Chip
	for _, c := range m.Calls {
		if c.Load {
			out = append(out, c.Chip)
		}
	}
	return out
}
