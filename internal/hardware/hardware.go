// Package hardware is the capability surface the tools drive: digital
// I/O, analog reads, and PWM on a XIAO ESP32C3 pin map.
//
// Board is an in-memory implementation of that surface. It enforces the
// configured pin allow-lists and PWM channel budget, and its
// input levels and ADC readings can be injected (from MQTT or tests),
// so the agent can be run and exercised off-device.
package hardware

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
)

// ADCMax is the full-scale 12-bit ADC reading.
const ADCMax = 4095

// Capability errors.
var (
	ErrPinNotAllowed = errors.New("pin not allowed")
	ErrNotADCPin     = errors.New("not an ADC pin")
	ErrNoPWMChannel  = errors.New("no PWM channel available")
	ErrInvalidValue  = errors.New("invalid value")
)

// Capability is what tool handlers need from the hardware. Every call
// is synchronous and bounded.
type Capability interface {
	DigitalRead(pin int) (int, error)
	DigitalWrite(pin, value int) error
	AnalogRead(pin int) (Reading, error)
	SetPWM(pin, dutyPercent, freqHz int) (PWM, error)
	Status() Status
}

// Mode is a pin's current function.
type Mode int

const (
	ModeUnused Mode = iota
	ModeInput
	ModeOutput
	ModeADC
	ModePWM
)

func (m Mode) String() string {
	switch m {
	case ModeInput:
		return "INPUT"
	case ModeOutput:
		return "OUTPUT"
	case ModeADC:
		return "ADC"
	case ModePWM:
		return "PWM"
	default:
		return "UNUSED"
	}
}

// Reading is one ADC conversion.
type Reading struct {
	Raw        int
	VoltageMV  int
	Percentage int
}

// PWM is the applied PWM setting after clamping.
type PWM struct {
	Duty    int
	FreqHz  int
	Channel int
}

// PinStatus is one configured pin. Only the fields for its mode are set.
type PinStatus struct {
	Pin   int    `json:"pin"`
	Label string `json:"label"`
	Mode  string `json:"mode"`
	Value *int   `json:"value,omitempty"`
	Raw   *int   `json:"raw,omitempty"`
	Duty  *int   `json:"duty,omitempty"`
	Freq  *int   `json:"freq,omitempty"`
}

// Status lists every pin that has been used, in pin order.
type Status struct {
	Pins []PinStatus `json:"pins"`
}

// Label returns the XIAO silkscreen name for a GPIO number.
func Label(pin int) string {
	return xiaoLabels[pin]
}

var xiaoLabels = map[int]string{
	2:  "D0/A0",
	3:  "D1/A1",
	4:  "D2/A2",
	5:  "D3",
	6:  "D4",
	7:  "D5",
	8:  "D8",
	10: "D10",
	20: "D7",
	21: "D6",
}

// BoardConfig bounds a Board.
type BoardConfig struct {
	AllowedPins    []int
	ADCPins        []int
	MaxPWMChannels int
	DefaultPWMFreq int
	VRefMillivolts int
}

type pinState struct {
	mode       Mode
	value      int // digital level or last ADC raw
	input      int // injected input level
	analog     int // injected ADC raw
	pwmChannel int // -1 when unassigned
	duty       int
	freq       int
}

// Board is a simulated board. It is safe for concurrent use.
type Board struct {
	cfg    BoardConfig
	logger *slog.Logger

	mu          sync.Mutex
	pins        map[int]*pinState
	nextChannel int
}

// NewBoard creates a board with every allowed pin unused.
func NewBoard(cfg BoardConfig, logger *slog.Logger) *Board {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DefaultPWMFreq <= 0 {
		cfg.DefaultPWMFreq = 1000
	}
	if cfg.VRefMillivolts <= 0 {
		cfg.VRefMillivolts = 3300
	}
	b := &Board{
		cfg:    cfg,
		logger: logger,
		pins:   make(map[int]*pinState, len(cfg.AllowedPins)),
	}
	for _, p := range cfg.AllowedPins {
		b.pins[p] = &pinState{pwmChannel: -1}
	}
	return b
}

func (b *Board) pin(n int) (*pinState, error) {
	st, ok := b.pins[n]
	if !ok {
		return nil, fmt.Errorf("GPIO%d: %w", n, ErrPinNotAllowed)
	}
	return st, nil
}

// DigitalRead returns the pin level. Output pins read back what was
// written; any other pin is switched to input first.
func (b *Board) DigitalRead(pin int) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	st, err := b.pin(pin)
	if err != nil {
		return 0, err
	}
	if st.mode == ModeOutput {
		return st.value, nil
	}
	st.mode = ModeInput
	st.value = st.input
	b.logger.Debug("gpio read", "pin", pin, "value", st.value)
	return st.value, nil
}

// DigitalWrite drives the pin to 0 or 1, stopping any PWM on it.
func (b *Board) DigitalWrite(pin, value int) error {
	if value != 0 && value != 1 {
		return fmt.Errorf("GPIO%d: value %d must be 0 or 1: %w", pin, value, ErrInvalidValue)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	st, err := b.pin(pin)
	if err != nil {
		return err
	}
	st.mode = ModeOutput
	st.value = value
	st.duty = 0
	b.logger.Debug("gpio write", "pin", pin, "value", value)
	return nil
}

// AnalogRead converts the pin's current analog level.
func (b *Board) AnalogRead(pin int) (Reading, error) {
	if !slices.Contains(b.cfg.ADCPins, pin) {
		return Reading{}, fmt.Errorf("GPIO%d: %w", pin, ErrNotADCPin)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	st, err := b.pin(pin)
	if err != nil {
		return Reading{}, err
	}
	raw := st.analog
	st.mode = ModeADC
	st.value = raw

	r := Reading{
		Raw:        raw,
		VoltageMV:  raw * b.cfg.VRefMillivolts / ADCMax,
		Percentage: raw * 100 / ADCMax,
	}
	b.logger.Debug("adc read", "pin", pin, "raw", r.Raw, "voltage_mv", r.VoltageMV)
	return r, nil
}

// SetPWM starts PWM on pin. Duty is clamped to 0..100 and a
// non-positive frequency selects the default. A channel is allocated
// on first use and kept for the pin's lifetime.
func (b *Board) SetPWM(pin, dutyPercent, freqHz int) (PWM, error) {
	dutyPercent = max(0, min(100, dutyPercent))
	if freqHz <= 0 {
		freqHz = b.cfg.DefaultPWMFreq
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	st, err := b.pin(pin)
	if err != nil {
		return PWM{}, err
	}
	if st.pwmChannel < 0 {
		if b.nextChannel >= b.cfg.MaxPWMChannels {
			return PWM{}, fmt.Errorf("GPIO%d: %w (%d in use)", pin, ErrNoPWMChannel, b.nextChannel)
		}
		st.pwmChannel = b.nextChannel
		b.nextChannel++
	}
	st.mode = ModePWM
	st.duty = dutyPercent
	st.freq = freqHz

	b.logger.Debug("pwm set", "pin", pin, "duty", dutyPercent, "freq", freqHz, "channel", st.pwmChannel)
	return PWM{Duty: dutyPercent, FreqHz: freqHz, Channel: st.pwmChannel}, nil
}

// Status reports every pin that has been used.
func (b *Board) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()

	nums := make([]int, 0, len(b.pins))
	for n, st := range b.pins {
		if st.mode != ModeUnused {
			nums = append(nums, n)
		}
	}
	slices.Sort(nums)

	out := Status{Pins: make([]PinStatus, 0, len(nums))}
	for _, n := range nums {
		st := b.pins[n]
		ps := PinStatus{Pin: n, Label: Label(n), Mode: st.mode.String()}
		switch st.mode {
		case ModeInput, ModeOutput:
			v := st.value
			ps.Value = &v
		case ModeADC:
			v := st.value
			ps.Raw = &v
		case ModePWM:
			d, f := st.duty, st.freq
			ps.Duty, ps.Freq = &d, &f
		}
		out.Pins = append(out.Pins, ps)
	}
	return out
}

// SetInput sets the level an input pin will read.
func (b *Board) SetInput(pin, level int) error {
	if level != 0 && level != 1 {
		return fmt.Errorf("GPIO%d: level %d must be 0 or 1: %w", pin, level, ErrInvalidValue)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	st, err := b.pin(pin)
	if err != nil {
		return err
	}
	st.input = level
	return nil
}

// SetAnalog sets the raw value the next AnalogRead of pin returns.
func (b *Board) SetAnalog(pin, raw int) error {
	if !slices.Contains(b.cfg.ADCPins, pin) {
		return fmt.Errorf("GPIO%d: %w", pin, ErrNotADCPin)
	}
	if raw < 0 || raw > ADCMax {
		return fmt.Errorf("GPIO%d: raw %d outside 0..%d: %w", pin, raw, ADCMax, ErrInvalidValue)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	st, err := b.pin(pin)
	if err != nil {
		return err
	}
	st.analog = raw
	return nil
}
