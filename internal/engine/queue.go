package engine

import "container/heap"

// queue is a max-heap on priority with FIFO order inside one priority.
type queue []*entry

func (q queue) Len() int { return len(q) }

func (q queue) Less(i, j int) bool {
	if q[i].req.Priority != q[j].req.Priority {
		return q[i].req.Priority > q[j].req.Priority
	}
	return q[i].req.Seq < q[j].req.Seq
}

func (q queue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *queue) Push(x any) {
	e := x.(*entry)
	e.index = len(*q)
	*q = append(*q, e)
}

func (q *queue) Pop() any {
	old := *q
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*q = old[:n-1]
	return e
}

func (q *queue) push(e *entry) { heap.Push(q, e) }

func (q *queue) pop() *entry {
	if q.Len() == 0 {
		return nil
	}
	return heap.Pop(q).(*entry)
}

func (q *queue) remove(e *entry) bool {
	if e.index < 0 || e.index >= q.Len() || (*q)[e.index] != e {
		return false
	}
	heap.Remove(q, e.index)
	return true
}
