package tools

import (
	"context"
	"errors"

	"github.com/seedclaw/seedclaw/internal/hardware"
)

// Hardware tool names.
const (
	ToolGPIORead   = "gpio_read"
	ToolGPIOWrite  = "gpio_write"
	ToolADCRead    = "adc_read"
	ToolPWMSet     = "pwm_set"
	ToolGPIOStatus = "gpio_status"
)

type hardwareTools struct {
	hw          hardware.Capability
	defaultFreq int
}

// RegisterHardware adds the pin tools backed by hw. defaultFreq is the
// PWM frequency reported when the model omits one.
func RegisterHardware(r *Registry, hw hardware.Capability, defaultFreq int) error {
	if defaultFreq <= 0 {
		defaultFreq = 1000
	}
	h := &hardwareTools{hw: hw, defaultFreq: defaultFreq}

	pin := map[string]any{
		"type":        "integer",
		"description": "GPIO number",
	}
	for _, t := range []*Tool{
		{
			Name:        ToolGPIORead,
			Description: "Read the digital level of a GPIO pin. Returns 0 (LOW) or 1 (HIGH).",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{"pin": pin},
				"required":   []string{"pin"},
			},
			Handler: h.read,
		},
		{
			Name:        ToolGPIOWrite,
			Description: "Set a GPIO pin HIGH (1) or LOW (0). Used to switch LEDs, relays and similar outputs.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"pin": pin,
					"value": map[string]any{
						"type":        "integer",
						"enum":        []int{0, 1},
						"description": "0=LOW, 1=HIGH",
					},
				},
				"required": []string{"pin", "value"},
			},
			Handler: h.write,
		},
		{
			Name:        ToolADCRead,
			Description: "Read an analog value (ADC) from a pin. Returns the raw value (0-4095), voltage in millivolts and a percentage. ADC pins: GPIO2(A0), GPIO3(A1), GPIO4(A2).",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"pin": map[string]any{
						"type":        "integer",
						"description": "ADC-capable GPIO number (2, 3 or 4)",
					},
				},
				"required": []string{"pin"},
			},
			Handler: h.adc,
		},
		{
			Name:        ToolPWMSet,
			Description: "Drive a pin with PWM. Used for LED brightness, servo position and motor speed.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"pin": pin,
					"duty": map[string]any{
						"type":        "integer",
						"description": "Duty cycle in percent (0-100)",
					},
					"freq": map[string]any{
						"type":        "integer",
						"description": "Frequency in Hz. Default 1000. LED: 1000, servo: 50, motor: 25000",
					},
				},
				"required": []string{"pin", "duty"},
			},
			Handler: h.pwm,
		},
		{
			Name:        ToolGPIOStatus,
			Description: "Show the mode and current value of every GPIO pin in use.",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
			Handler: h.status,
		},
	} {
		if err := r.Register(t); err != nil {
			return err
		}
	}
	return nil
}

func levelName(v int) string {
	if v != 0 {
		return "HIGH"
	}
	return "LOW"
}

func (h *hardwareTools) read(_ context.Context, args map[string]any) (string, error) {
	pin, ok := intArg(args, "pin")
	if !ok {
		return "", argErrorf("Missing or invalid 'pin' parameter")
	}
	v, err := h.hw.DigitalRead(pin)
	if err != nil {
		return "", argErrorf("Failed to read GPIO%d (not allowed or error)", pin)
	}
	return jsonResult(map[string]any{
		"pin":   pin,
		"value": v,
		"state": levelName(v),
	}), nil
}

func (h *hardwareTools) write(_ context.Context, args map[string]any) (string, error) {
	pin, okPin := intArg(args, "pin")
	value, okVal := intArg(args, "value")
	if !okPin || !okVal {
		return "", argErrorf("Missing or invalid 'pin' or 'value' parameter")
	}
	if err := h.hw.DigitalWrite(pin, value); err != nil {
		return "", argErrorf("Failed to write GPIO%d", pin)
	}
	return jsonResult(map[string]any{
		"pin":   pin,
		"value": value,
		"state": levelName(value),
		"ok":    true,
	}), nil
}

func (h *hardwareTools) adc(_ context.Context, args map[string]any) (string, error) {
	pin, ok := intArg(args, "pin")
	if !ok {
		return "", argErrorf("Missing or invalid 'pin' parameter")
	}
	r, err := h.hw.AnalogRead(pin)
	if err != nil {
		return "", argErrorf("Failed to read ADC on GPIO%d (not an ADC pin or error)", pin)
	}
	return jsonResult(map[string]any{
		"pin":        pin,
		"raw":        r.Raw,
		"voltage_mv": r.VoltageMV,
		"percentage": r.Percentage,
	}), nil
}

func (h *hardwareTools) pwm(_ context.Context, args map[string]any) (string, error) {
	pin, okPin := intArg(args, "pin")
	duty, okDuty := intArg(args, "duty")
	if !okPin || !okDuty {
		return "", argErrorf("Missing or invalid 'pin' or 'duty' parameter")
	}
	freq, ok := intArg(args, "freq")
	if !ok || freq <= 0 {
		freq = h.defaultFreq
	}
	applied, err := h.hw.SetPWM(pin, duty, freq)
	if err != nil {
		if errors.Is(err, hardware.ErrNoPWMChannel) {
			return "", argErrorf("Failed to set PWM on GPIO%d (no free PWM channel)", pin)
		}
		return "", argErrorf("Failed to set PWM on GPIO%d", pin)
	}
	return jsonResult(map[string]any{
		"pin":  pin,
		"duty": applied.Duty,
		"freq": applied.FreqHz,
		"ok":   true,
	}), nil
}

func (h *hardwareTools) status(_ context.Context, _ map[string]any) (string, error) {
	return jsonResult(h.hw.Status()), nil
}
