package infra

import (
	"time"

	"github.com/gammazero/deque"
)

// history implementa domain.History sobre um deque: append no fim, poda no
// início. Como a ordem é não-decrescente, a contagem por janela percorre só o
// final da fila.
type history struct {
	q *deque.Deque
}

func newHistory() *history {
	return &history{q: deque.New()}
}

func (h *history) Prune(cutoff time.Time) int {
	removed := 0
	for h.q.Len() > 0 && h.q.Front().(time.Time).Before(cutoff) {
		h.q.PopFront()
		removed++
	}
	return removed
}

func (h *history) CountAfter(t time.Time) int {
	n := 0
	for i := h.q.Len() - 1; i >= 0; i-- {
		if !h.q.At(i).(time.Time).After(t) {
			break
		}
		n++
	}
	return n
}

// Append mantém a ordem mesmo se o relógio andar para trás: o timestamp é
// nivelado ao último registrado.
func (h *history) Append(t time.Time) {
	if h.q.Len() > 0 {
		if last := h.q.Back().(time.Time); t.Before(last) {
			t = last
		}
	}
	h.q.PushBack(t)
}

func (h *history) Len() int { return h.q.Len() }
