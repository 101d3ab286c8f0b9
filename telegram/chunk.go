package telegram

import "github.com/0xmhha/csm-sentinel/internal/constants"

// MessageLimit stays below Telegram's ~4096-character message cap.
const MessageLimit = constants.MessageCharLimit

// ChunkText splits text into chunks not exceeding limit characters.
// It splits on newline boundaries when possible; a single line longer than
// the limit is hard-sliced. Joining the chunks with "\n" reconstructs the
// input exactly when no line exceeded the limit.
func ChunkText(s string, limit int) []string {
	if limit <= 0 {
		limit = MessageLimit
	}
	if len(s) <= limit {
		return []string{s}
	}

	var parts []string
	current := ""
	started := false

	flush := func() {
		if started {
			parts = append(parts, current)
			current = ""
			started = false
		}
	}

	start := 0
	for i := 0; i <= len(s); i++ {
		if i < len(s) && s[i] != '\n' {
			continue
		}
		line := s[start:i]
		start = i + 1

		for len(line) > limit {
			flush()
			parts = append(parts, line[:limit])
			line = line[limit:]
		}

		switch {
		case !started:
			current = line
			started = true
		case len(current)+1+len(line) <= limit:
			current += "\n" + line
		default:
			flush()
			current = line
			started = true
		}
	}
	flush()
	return parts
}
