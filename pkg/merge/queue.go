package merge

// workQueue is a FIFO of row positions. Requeued rows go to the tail.
type workQueue struct {
	items []int
	head  int
}

func newWorkQueue(n int) *workQueue {
	q := &workQueue{items: make([]int, 0, n)}
	for i := 0; i < n; i++ {
		q.items = append(q.items, i)
	}
	return q
}

func (q *workQueue) Push(i int) {
	q.items = append(q.items, i)
}

func (q *workQueue) Pop() (int, bool) {
	if q.head >= len(q.items) {
		return 0, false
	}
	i := q.items[q.head]
	q.head++
	// Reclaim the consumed prefix once it dominates the backing array
	if q.head > 64 && q.head*2 > len(q.items) {
		q.items = append(q.items[:0], q.items[q.head:]...)
		q.head = 0
	}
	return i, true
}

func (q *workQueue) Len() int {
	return len(q.items) - q.head
}

// Drain removes and returns everything still queued
func (q *workQueue) Drain() []int {
	rest := append([]int(nil), q.items[q.head:]...)
	q.items = q.items[:0]
	q.head = 0
	return rest
}
