package conversation

// SystemMessage builds the mandatory first message of every transcript.
func SystemMessage(prompt string) Message {
	return Message{Role: RoleSystem, Content: prompt}
}

// Repair returns history with the system message at index 0, inserting it when the
// history is empty or starts with another role. The second result reports whether
// a repair happened. The input slice is never modified.
func Repair(history []Message, systemPrompt string) ([]Message, bool) {
	if len(history) > 0 && history[0].Role == RoleSystem {
		return history, false
	}

	repaired := make([]Message, 0, len(history)+1)
	repaired = append(repaired, SystemMessage(systemPrompt))
	repaired = append(repaired, history...)
	return repaired, true
}

// AppendAndTrim returns a new history with msgs appended. When the result exceeds
// maxTurns+1 entries, element 0 is kept together with the last maxTurns entries.
func AppendAndTrim(history []Message, maxTurns int, msgs ...Message) []Message {
	next := make([]Message, 0, len(history)+len(msgs))
	next = append(next, history...)
	next = append(next, msgs...)
	return Trim(next, maxTurns)
}

// Trim applies the history cap without appending anything.
func Trim(history []Message, maxTurns int) []Message {
	if maxTurns <= 0 || len(history) <= maxTurns+1 {
		return history
	}

	trimmed := make([]Message, 0, maxTurns+1)
	trimmed = append(trimmed, history[0])
	trimmed = append(trimmed, history[len(history)-maxTurns:]...)
	return trimmed
}

// Turns returns the history without its leading system message.
func Turns(history []Message) []Message {
	if len(history) > 0 && history[0].Role == RoleSystem {
		return history[1:]
	}
	return history
}
