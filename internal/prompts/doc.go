// Package prompts holds the text SeedClaw sends to the model and the
// fixed replies it sends back to Discord.
//
// Prompt text lives in Go rather than config because it is program
// logic: the monitor prompt is assembled from the rule set, and tests
// pin the exact wording the no-change detection depends on. The system
// prompt is only a default; operators override it with `prompt`.
package prompts
