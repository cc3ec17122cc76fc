// Package budget keeps a WaiterBot completion request inside the model
// context window. The persona context and menu passages are fixed; older
// conversation turns are dropped first. Token counts are estimated at about
// 4 characters per token since every backend tokenizes differently.
package budget

import (
	"github.com/cloudwego/eino/schema"
)

const (
	// charsPerToken is the character-to-token ratio used for estimation.
	charsPerToken = 4

	// messageOverhead is the per-message token cost most chat APIs add for
	// role framing.
	messageOverhead = 4

	// DefaultMaxContextTokens is used when MAX_CONTEXT_TOKENS is unset.
	DefaultMaxContextTokens = 6000
)

// Estimate returns a rough token count for s using the character heuristic.
func Estimate(s string) int {
	n := len(s) / charsPerToken
	if n == 0 && len(s) > 0 {
		return 1
	}
	return n
}

// EstimateMessages returns the estimated token cost of msgs, including the
// per-message role framing.
func EstimateMessages(msgs []*schema.Message) int {
	total := 0
	for _, m := range msgs {
		total += messageCost(m)
	}
	return total
}

func messageCost(m *schema.Message) int {
	return messageOverhead + Estimate(string(m.Role)) + Estimate(m.Content)
}

// TrimHistory drops guest and bot turns oldest-first until fixed plus the
// remaining turns fit within maxTokens. fixed (persona context and the
// latest guest turn) is never dropped; when fixed alone is over budget the
// result is empty.
func TrimHistory(fixed, history []*schema.Message, maxTokens int) []*schema.Message {
	total := EstimateMessages(fixed) + EstimateMessages(history)
	for len(history) > 0 && total > maxTokens {
		total -= messageCost(history[0])
		history = history[1:]
	}
	return history
}

// TrimLines is TrimHistory for prompt mode, where history is rendered as
// "User:" and "{BotName}:" lines under the persona context. The last line
// is always kept.
func TrimLines(fixed string, lines []string, maxTokens int) []string {
	total := Estimate(fixed)
	for _, l := range lines {
		total += Estimate(l)
	}
	for len(lines) > 1 && total > maxTokens {
		total -= Estimate(lines[0])
		lines = lines[1:]
	}
	return lines
}
