package prompts

// Fixed replies sent to the chat channel.
const (
	// BudgetExhausted is sent when a request uses up its tool-call budget.
	BudgetExhausted = "The request was too complex. Please simplify it and try again."

	// ExchangeFailed is sent when the backend fails without a diagnostic.
	ExchangeFailed = "Failed to get a response from the LLM."

	// MissingToolCalls is sent when the backend asks for tools but
	// names none.
	MissingToolCalls = "The LLM requested tools without saying which ones."
)

// OnlineNotice is announced once the bridge first reaches Discord.
func OnlineNotice(version string) string {
	return "SeedClaw is online (" + version + "). Send a message to control the board."
}
