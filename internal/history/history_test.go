package history

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func recallN(h *History, n int, step func() (string, bool)) []string {
	var out []string
	for i := 0; i < n; i++ {
		s, ok := step()
		if !ok {
			break
		}
		out = append(out, s)
	}
	return out
}

func TestPreviousWrapsFromNewest(t *testing.T) {
	h := New()
	for _, s := range []string{"a", "b", "c"} {
		h.Append(s)
	}

	assert.Equal(t, []string{"c", "b", "a", "c"}, recallN(h, 4, h.Previous))
}

func TestNextWrapsFromOldest(t *testing.T) {
	h := New()
	for _, s := range []string{"a", "b", "c"} {
		h.Append(s)
	}

	assert.Equal(t, []string{"a", "b", "c", "a"}, recallN(h, 4, h.Next))
}

func TestAppendResetsCursor(t *testing.T) {
	h := New()
	h.Append("a")
	h.Append("b")

	s, _ := h.Previous()
	assert.Equal(t, "b", s)
	s, _ = h.Previous()
	assert.Equal(t, "a", s)

	h.Append("c")
	s, _ = h.Previous()
	assert.Equal(t, "c", s)
}

func TestEmptyHistoryRecallsNothing(t *testing.T) {
	h := New()

	_, ok := h.Previous()
	assert.False(t, ok)
	_, ok = h.Next()
	assert.False(t, ok)
	assert.Zero(t, h.Len())
}

func TestItemsReturnsCopy(t *testing.T) {
	h := New()
	h.Append("a")

	items := h.Items()
	items[0] = "mutated"

	assert.Equal(t, []string{"a"}, h.Items())
}
