package queue_test

import (
	"testing"

	"github.com/flowfs/afio/internal/queue"
	"github.com/stretchr/testify/assert"
)

func Test_Ring(t *testing.T) {
	q := queue.NewRing[int](8)
	assert.Equal(t, 0, q.Len())

	for range 3 {
		for i := range 5 {
			q.Push(i)
		}
		assert.Equal(t, 5, q.Len())
		for i := range 5 {
			res := q.Pop()
			assert.Equal(t, i, res)
		}
		assert.Equal(t, 0, q.Len())
	}

	for range 8 {
		q.Push(0)
	}
	for range 8 {
		q.Pop()
	}
}

func Test_TicketPool(t *testing.T) {
	tp := queue.NewTicketPool[int](4)

	tickets := make([]int, 0, 4)
	for i := range 4 {
		tickets = append(tickets, tp.Acquire(i*10))
	}
	for i, ticket := range tickets {
		assert.Equal(t, i*10, tp.Get(ticket))
	}
	for _, ticket := range tickets {
		tp.Release(ticket)
	}

	// slots are reusable once released.
	for i := range 4 {
		ticket := tp.Acquire(i)
		assert.Equal(t, i, tp.Get(ticket))
	}
}
