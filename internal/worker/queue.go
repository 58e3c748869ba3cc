package worker

import "container/list"

// fairQueue keeps one FIFO per caller key and rotates callers in LRU order,
// so a single caller cannot starve the others.
type fairQueue struct {
	queues    map[string][]*job
	ready     *list.List
	positions map[string]*list.Element
	size      int
}

func newFairQueue() *fairQueue {
	return &fairQueue{
		queues:    make(map[string][]*job),
		ready:     list.New(),
		positions: make(map[string]*list.Element),
	}
}

func (q *fairQueue) push(j *job) {
	q.queues[j.key] = append(q.queues[j.key], j)
	q.size++
	if _, ok := q.positions[j.key]; ok {
		return
	}
	q.positions[j.key] = q.ready.PushBack(j.key)
}

// pop takes the next job of the front caller and moves that caller to the back.
func (q *fairQueue) pop() *job {
	elem := q.ready.Front()
	if elem == nil {
		return nil
	}
	key := elem.Value.(string)
	jobs := q.queues[key]
	j := jobs[0]
	if len(jobs) == 1 {
		delete(q.queues, key)
		q.ready.Remove(elem)
		delete(q.positions, key)
	} else {
		q.queues[key] = jobs[1:]
		q.ready.MoveToBack(elem)
	}
	q.size--
	return j
}

func (q *fairQueue) drain() []*job {
	var out []*job
	for j := q.pop(); j != nil; j = q.pop() {
		out = append(out, j)
	}
	return out
}
