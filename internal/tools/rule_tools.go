package tools

import (
	"context"
	"errors"
	"time"

	"github.com/seedclaw/seedclaw/internal/rules"
)

// Rule tool names.
const (
	ToolRuleAdd         = "rule_add"
	ToolRuleRemove      = "rule_remove"
	ToolRuleClear       = "rule_clear"
	ToolSetAutoInterval = "set_auto_interval"
	ToolGetRules        = "get_rules"
)

type ruleTools struct {
	store *rules.Store
	poll  time.Duration
}

// RegisterRules adds the monitoring-rule tools. poll is the bridge's
// poll interval, used to tell the model how often checks will run.
func RegisterRules(r *Registry, store *rules.Store, poll time.Duration) error {
	h := &ruleTools{store: store, poll: poll}
	empty := map[string]any{"type": "object", "properties": map[string]any{}}

	for _, t := range []*Tool{
		{
			Name:        ToolRuleAdd,
			Description: "Add an autonomous monitoring rule in natural language, e.g. \"If the A0 sensor reads above 80%, turn on the GPIO5 LED\". After adding a rule, also call set_auto_interval so the rule actually runs.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"text": map[string]any{
						"type":        "string",
						"description": "The rule, in natural language",
					},
				},
				"required": []string{"text"},
			},
			Handler: h.add,
		},
		{
			Name:        ToolRuleRemove,
			Description: "Remove a monitoring rule by its index.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"index": map[string]any{
						"type":        "integer",
						"description": "Rule index (0-based)",
					},
				},
				"required": []string{"index"},
			},
			Handler: h.remove,
		},
		{
			Name:        ToolRuleClear,
			Description: "Remove all monitoring rules and stop autonomous monitoring.",
			Parameters:  empty,
			Handler:     h.clear,
		},
		{
			Name:        ToolSetAutoInterval,
			Description: "Set how often autonomous checks run, in poll cycles (one cycle is a few seconds). 0 disables monitoring.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"interval": map[string]any{
						"type":        "integer",
						"description": "Number of poll cycles between checks (0 disables)",
					},
				},
				"required": []string{"interval"},
			},
			Handler: h.setInterval,
		},
		{
			Name:        ToolGetRules,
			Description: "List the current monitoring rules and check interval.",
			Parameters:  empty,
			Handler:     h.list,
		},
	} {
		if err := r.Register(t); err != nil {
			return err
		}
	}
	return nil
}

func (h *ruleTools) add(_ context.Context, args map[string]any) (string, error) {
	text, ok := stringArg(args, "text")
	if !ok {
		return "", argErrorf("Missing 'text' parameter")
	}
	n, err := h.store.Add(text)
	switch {
	case errors.Is(err, rules.ErrFull):
		return "", argErrorf("Max rules reached (%d)", h.store.MaxRules())
	case errors.Is(err, rules.ErrEmpty):
		return "", argErrorf("Missing 'text' parameter")
	case err != nil:
		return "", err
	}
	return jsonResult(map[string]any{
		"ok":            true,
		"total_rules":   n,
		"auto_interval": h.store.Interval(),
	}), nil
}

func (h *ruleTools) remove(_ context.Context, args map[string]any) (string, error) {
	index, ok := intArg(args, "index")
	if !ok {
		return "", argErrorf("Missing 'index' parameter")
	}
	if err := h.store.Remove(index); err != nil {
		if errors.Is(err, rules.ErrIndex) {
			return "", argErrorf("Invalid rule index")
		}
		return "", err
	}
	return jsonResult(map[string]any{
		"ok":              true,
		"remaining_rules": h.store.Count(),
	}), nil
}

func (h *ruleTools) clear(_ context.Context, _ map[string]any) (string, error) {
	if err := h.store.Clear(); err != nil {
		return "", err
	}
	return jsonResult(map[string]any{
		"ok":      true,
		"message": "All rules cleared, monitoring stopped",
	}), nil
}

func (h *ruleTools) setInterval(_ context.Context, args map[string]any) (string, error) {
	n, ok := intArg(args, "interval")
	if !ok {
		return "", argErrorf("Missing 'interval' parameter")
	}
	applied, err := h.store.SetInterval(n)
	if err != nil {
		return "", err
	}
	out := map[string]any{
		"ok":       true,
		"interval": applied,
	}
	if applied > 0 && h.poll > 0 {
		out["check_every_seconds"] = int((time.Duration(applied) * h.poll).Seconds())
	}
	return jsonResult(out), nil
}

func (h *ruleTools) list(_ context.Context, _ map[string]any) (string, error) {
	list, interval := h.store.Snapshot()
	if list == nil {
		list = []string{}
	}
	return jsonResult(map[string]any{
		"rules":         list,
		"total_rules":   len(list),
		"auto_interval": interval,
	}), nil
}
