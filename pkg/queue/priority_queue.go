package queue

import (
	"container/heap"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/topic-crawler/pkg/models"
)

// --- Priority Queue Implementation ---

// PQItem represents a claimed crawl job waiting for a worker
type PQItem struct {
	job      *models.CrawlJob
	priority int    // Lower value means higher priority (job depth)
	seq      uint64 // Insertion order, breaks ties first-in first-out
	index    int    // The index of the item in the heap (required by heap interface)
}

// PriorityQueue implements heap.Interface
type PriorityQueue []*PQItem

func (pq PriorityQueue) Len() int { return len(pq) }

func (pq PriorityQueue) Less(i, j int) bool {
	if pq[i].priority != pq[j].priority {
		return pq[i].priority < pq[j].priority
	}
	return pq[i].seq < pq[j].seq
}

func (pq PriorityQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index = i
	pq[j].index = j
}

// Push adds an element to the heap
func (pq *PriorityQueue) Push(x any) {
	n := len(*pq)
	item := x.(*PQItem)
	item.index = n
	*pq = append(*pq, item)
}

// Pop removes and returns the highest priority element (minimum value) from the heap
func (pq *PriorityQueue) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil  // avoid memory leak
	item.index = -1 // for safety
	*pq = old[0 : n-1]
	return item
}

// ThreadSafePriorityQueue hands claimed jobs to workers, shallowest first.
// A job ID can be queued at most once at a time.
type ThreadSafePriorityQueue struct {
	pq      PriorityQueue
	queued  map[string]struct{}
	nextSeq uint64
	mu      sync.Mutex
	cond    *sync.Cond // Condition variable to wait for items
	closed  bool
	log     *logrus.Entry
}

// NewThreadSafePriorityQueue creates a new thread-safe priority queue
func NewThreadSafePriorityQueue(logger *logrus.Entry) *ThreadSafePriorityQueue {
	tspq := &ThreadSafePriorityQueue{queued: make(map[string]struct{}), log: logger}
	tspq.cond = sync.NewCond(&tspq.mu)
	heap.Init(&tspq.pq)
	return tspq
}

// Add pushes a job onto the queue with priority based on depth.
// Returns false if the queue is closed or the job is already queued.
func (tspq *ThreadSafePriorityQueue) Add(job *models.CrawlJob) bool {
	tspq.mu.Lock()
	defer tspq.mu.Unlock()

	if tspq.closed {
		tspq.log.Warnf("Attempted to add job to closed queue: %s", job.URL)
		return false
	}
	if _, dup := tspq.queued[job.ID]; dup {
		return false
	}

	tspq.queued[job.ID] = struct{}{}
	heap.Push(&tspq.pq, &PQItem{job: job, priority: job.Depth, seq: tspq.nextSeq})
	tspq.nextSeq++
	tspq.cond.Signal()
	return true
}

// Pop retrieves and removes the shallowest job.
// It blocks while the queue is empty and open.
// Returns nil and false once the queue is closed and empty.
func (tspq *ThreadSafePriorityQueue) Pop() (*models.CrawlJob, bool) {
	tspq.mu.Lock()
	defer tspq.mu.Unlock()

	for len(tspq.pq) == 0 {
		if tspq.closed {
			return nil, false
		}
		tspq.cond.Wait()
	}

	item := heap.Pop(&tspq.pq).(*PQItem)
	delete(tspq.queued, item.job.ID)
	return item.job, true
}

// Drain removes and returns every queued job without blocking
func (tspq *ThreadSafePriorityQueue) Drain() []*models.CrawlJob {
	tspq.mu.Lock()
	defer tspq.mu.Unlock()

	jobs := make([]*models.CrawlJob, 0, len(tspq.pq))
	for len(tspq.pq) > 0 {
		item := heap.Pop(&tspq.pq).(*PQItem)
		delete(tspq.queued, item.job.ID)
		jobs = append(jobs, item.job)
	}
	return jobs
}

// Close signals that no more jobs will be added. Queued jobs can still be popped.
func (tspq *ThreadSafePriorityQueue) Close() {
	tspq.mu.Lock()
	defer tspq.mu.Unlock()
	if !tspq.closed {
		tspq.closed = true
		tspq.cond.Broadcast() // Wake up ALL waiting workers so they can check the closed status
	}
}

// Len returns the current number of queued jobs
func (tspq *ThreadSafePriorityQueue) Len() int {
	tspq.mu.Lock()
	defer tspq.mu.Unlock()
	return len(tspq.pq)
}
