package history

// History keeps typed commands in the order they were entered and a recall
// cursor over them. It is not safe for concurrent use; the processor owns it.
type History struct {
	items  []string
	cursor int
}

const noSelection = -1

func New() *History {
	return &History{cursor: noSelection}
}

// Append records a command and resets the recall cursor.
func (h *History) Append(text string) {
	h.items = append(h.items, text)
	h.cursor = noSelection
}

// Previous steps the cursor back, wrapping to the newest item.
func (h *History) Previous() (string, bool) {
	n := len(h.items)
	if n == 0 {
		return "", false
	}
	if h.cursor == noSelection {
		h.cursor = n - 1
	} else {
		h.cursor = (h.cursor - 1 + n) % n
	}
	return h.items[h.cursor], true
}

// Next steps the cursor forward, wrapping to the oldest item.
func (h *History) Next() (string, bool) {
	n := len(h.items)
	if n == 0 {
		return "", false
	}
	if h.cursor == noSelection {
		h.cursor = 0
	} else {
		h.cursor = (h.cursor + 1) % n
	}
	return h.items[h.cursor], true
}

func (h *History) Len() int { return len(h.items) }

func (h *History) Items() []string {
	return append([]string(nil), h.items...)
}
