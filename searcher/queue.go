package searcher

// Item is a scored candidate in the result queue.
type Item struct {
	Distance float32
	Ord      uint32
	Label    string
}

// worse reports whether a ranks after b: larger distance, ties broken by
// larger ordinal so equal-distance results drain in insertion order.
func worse(a, b Item) bool {
	if a.Distance != b.Distance {
		return a.Distance > b.Distance
	}
	return a.Ord > b.Ord
}

// Queue is a fixed-capacity max-heap over candidates: the root is the worst
// item kept so far, so a full queue admits a new candidate by replacing the
// root. Value-based storage, no per-push allocation in the steady state.
type Queue struct {
	capacity int
	items    []Item
}

// NewQueue creates a bounded queue keeping the best capacity items.
func NewQueue(capacity int) *Queue {
	return &Queue{
		capacity: capacity,
		items:    make([]Item, 0, capacity),
	}
}

// Len returns the number of queued items.
func (q *Queue) Len() int {
	return len(q.items)
}

// Push offers a candidate. If the queue is full and the candidate is no
// better than the current worst, it is dropped.
func (q *Queue) Push(item Item) {
	if len(q.items) < q.capacity {
		q.items = append(q.items, item)
		q.siftUp(len(q.items) - 1)
		return
	}

	if !worse(item, q.items[0]) {
		q.items[0] = item
		q.siftDown(0)
	}
}

// Worst returns the current worst item without removing it.
func (q *Queue) Worst() (Item, bool) {
	if len(q.items) == 0 {
		return Item{}, false
	}
	return q.items[0], true
}

// Pop removes and returns the worst item.
func (q *Queue) Pop() (Item, bool) {
	n := len(q.items)
	if n == 0 {
		return Item{}, false
	}

	item := q.items[0]
	q.items[0] = q.items[n-1]
	q.items = q.items[:n-1]

	if len(q.items) > 0 {
		q.siftDown(0)
	}

	return item, true
}

// Drain empties the queue into a slice ordered ascending by distance, ties
// ascending by ordinal.
func (q *Queue) Drain() []Item {
	out := make([]Item, len(q.items))
	for i := len(q.items) - 1; i >= 0; i-- {
		out[i], _ = q.Pop()
	}
	return out
}

// Reset clears the queue for reuse, optionally growing its capacity.
func (q *Queue) Reset(capacity int) {
	q.capacity = capacity
	if cap(q.items) < capacity {
		q.items = make([]Item, 0, capacity)
	} else {
		q.items = q.items[:0]
	}
}

func (q *Queue) siftUp(i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if !worse(q.items[i], q.items[parent]) {
			break
		}
		q.items[i], q.items[parent] = q.items[parent], q.items[i]
		i = parent
	}
}

func (q *Queue) siftDown(i int) {
	n := len(q.items)
	for {
		left := 2*i + 1
		if left >= n {
			break
		}
		child := left
		if right := left + 1; right < n && worse(q.items[right], q.items[left]) {
			child = right
		}
		if !worse(q.items[child], q.items[i]) {
			break
		}
		q.items[i], q.items[child] = q.items[child], q.items[i]
		i = child
	}
}
