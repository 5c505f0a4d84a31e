package enhance

import (
	"fmt"
	"strings"
)

// Mode selects the prompt template used for an enhancement.
type Mode string

const (
	ModeImprove   Mode = "improve"
	ModeSummarize Mode = "summarize"
	ModeExpand    Mode = "expand"
)

// Modes lists every supported mode in display order.
var Modes = []Mode{ModeImprove, ModeSummarize, ModeExpand}

// ParseMode validates a raw mode string. A blank value reports
// ErrMissingMode; anything unknown reports ErrInvalidMode.
func ParseMode(raw string) (Mode, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", ErrMissingMode
	}
	for _, mode := range Modes {
		if string(mode) == trimmed {
			return mode, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidMode, trimmed)
}

// Prompt embeds content verbatim in the mode's template.
func (m Mode) Prompt(content string) string {
	switch m {
	case ModeImprove:
		return "Improve the clarity, grammar, and tone of this note:\n\n" + content + "\n\nReturn only the improved text."
	case ModeSummarize:
		return "Summarize this note in 2-3 sentences:\n\n" + content
	case ModeExpand:
		return "Expand on this note with more details:\n\n" + content
	default:
		return ""
	}
}

// PastTense renders the mode for user-facing confirmations ("improved").
func (m Mode) PastTense() string {
	switch m {
	case ModeImprove:
		return "improved"
	case ModeSummarize:
		return "summarized"
	case ModeExpand:
		return "expanded"
	default:
		return string(m)
	}
}
