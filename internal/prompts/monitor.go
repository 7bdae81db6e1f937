package prompts

import (
	"fmt"
	"strings"
)

const monitorTemplate = `Autonomous monitoring mode. Follow the rules below: check the sensors with tools, take any action a rule calls for, and report briefly only when you acted or detected something abnormal. If nothing changed, answer with exactly "%s" and nothing else.

Rules:
`

// MonitorPrompt builds the directive for an autonomous check. The
// noChange marker is what the model must answer when there is nothing
// to report; the caller suppresses any reply containing it.
func MonitorPrompt(rules []string, noChange string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, monitorTemplate, noChange)
	for i, r := range rules {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, r)
	}
	return sb.String()
}
