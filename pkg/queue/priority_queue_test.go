package queue

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/topic-crawler/pkg/models"
)

// testLogger returns a logger that discards output
func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

func testJob(url string, depth int) *models.CrawlJob {
	job := models.NewCrawlJob(url, "technology", depth, "", time.Now())
	return &job
}

// --- Basic Operations Tests ---

func TestThreadSafePriorityQueue_AddAndPop(t *testing.T) {
	pq := NewThreadSafePriorityQueue(testLogger())
	if pq.Len() != 0 {
		t.Errorf("New queue Len() = %d, want 0", pq.Len())
	}

	job := testJob("https://example.com", 0)
	if !pq.Add(job) {
		t.Fatal("Add() returned false on open queue")
	}
	if pq.Len() != 1 {
		t.Errorf("After Add, Len() = %d, want 1", pq.Len())
	}

	result, ok := pq.Pop()
	if !ok {
		t.Fatal("Pop() returned ok=false, want true")
	}
	if result.ID != job.ID {
		t.Errorf("Pop() ID = %q, want %q", result.ID, job.ID)
	}
	if pq.Len() != 0 {
		t.Errorf("After Pop, Len() = %d, want 0", pq.Len())
	}
}

func TestThreadSafePriorityQueue_DepthOrdering(t *testing.T) {
	pq := NewThreadSafePriorityQueue(testLogger())

	pq.Add(testJob("depth2", 2))
	pq.Add(testJob("depth0", 0))
	pq.Add(testJob("depth1-first", 1))
	pq.Add(testJob("depth3", 3))
	pq.Add(testJob("depth1-second", 1))

	// Shallowest first, insertion order within a depth
	expectedOrder := []string{"depth0", "depth1-first", "depth1-second", "depth2", "depth3"}
	for i, expected := range expectedOrder {
		job, ok := pq.Pop()
		if !ok {
			t.Fatalf("Pop() #%d returned ok=false", i)
		}
		if job.URL != expected {
			t.Errorf("Pop() #%d URL = %q, want %q", i, job.URL, expected)
		}
	}
}

func TestThreadSafePriorityQueue_RejectsQueuedDuplicate(t *testing.T) {
	pq := NewThreadSafePriorityQueue(testLogger())

	if !pq.Add(testJob("https://example.com/a", 1)) {
		t.Fatal("first Add() returned false")
	}
	if pq.Add(testJob("https://example.com/a", 1)) {
		t.Error("Add() of an already queued job returned true")
	}
	if pq.Len() != 1 {
		t.Errorf("Len() = %d, want 1", pq.Len())
	}

	// Once popped, the same job may be queued again
	pq.Pop()
	if !pq.Add(testJob("https://example.com/a", 1)) {
		t.Error("Add() after Pop returned false")
	}
}

func TestThreadSafePriorityQueue_Drain(t *testing.T) {
	pq := NewThreadSafePriorityQueue(testLogger())
	pq.Add(testJob("b", 1))
	pq.Add(testJob("a", 0))

	jobs := pq.Drain()
	if len(jobs) != 2 {
		t.Fatalf("Drain() returned %d jobs, want 2", len(jobs))
	}
	if jobs[0].URL != "a" {
		t.Errorf("Drain()[0] = %q, want shallowest first", jobs[0].URL)
	}
	if pq.Len() != 0 {
		t.Errorf("After Drain, Len() = %d, want 0", pq.Len())
	}
	if !pq.Add(testJob("a", 0)) {
		t.Error("drained job could not be queued again")
	}
}

// --- Close Tests ---

func TestThreadSafePriorityQueue_Close(t *testing.T) {
	pq := NewThreadSafePriorityQueue(testLogger())
	pq.Close()

	job, ok := pq.Pop()
	if ok {
		t.Error("Pop() on closed empty queue returned ok=true, want false")
	}
	if job != nil {
		t.Errorf("Pop() on closed empty queue returned job %v, want nil", job)
	}

	if pq.Add(testJob("late", 0)) {
		t.Error("Add() after Close returned true")
	}
	if pq.Len() != 0 {
		t.Errorf("Add after Close: Len() = %d, want 0", pq.Len())
	}

	pq.Close() // Double close must not panic
}

func TestThreadSafePriorityQueue_CloseWithItems(t *testing.T) {
	pq := NewThreadSafePriorityQueue(testLogger())

	pq.Add(testJob("a", 0))
	pq.Add(testJob("b", 1))
	pq.Close()

	for i := 0; i < 2; i++ {
		if job, ok := pq.Pop(); !ok || job == nil {
			t.Errorf("Pop() #%d after Close should return queued jobs", i)
		}
	}
	if _, ok := pq.Pop(); ok {
		t.Error("Pop() on closed empty queue returned ok=true")
	}
}

// --- Blocking Behavior Tests ---

func TestThreadSafePriorityQueue_PopBlocks(t *testing.T) {
	pq := NewThreadSafePriorityQueue(testLogger())

	resultChan := make(chan *models.CrawlJob, 1)
	go func() {
		job, _ := pq.Pop()
		resultChan <- job
	}()

	time.Sleep(50 * time.Millisecond)
	select {
	case <-resultChan:
		t.Fatal("Pop() returned before Add(), should have blocked")
	default:
	}

	pq.Add(testJob("unblock", 0))

	select {
	case job := <-resultChan:
		if job == nil || job.URL != "unblock" {
			t.Errorf("Pop() = %v, want the added job", job)
		}
	case <-time.After(1 * time.Second):
		t.Fatal("Pop() did not return after Add()")
	}
}

func TestThreadSafePriorityQueue_CloseUnblocksWaiters(t *testing.T) {
	pq := NewThreadSafePriorityQueue(testLogger())

	var wg sync.WaitGroup
	results := make(chan bool, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok := pq.Pop()
			results <- ok
		}()
	}

	time.Sleep(50 * time.Millisecond)
	pq.Close()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatal("Close() did not unblock waiting goroutines")
	}

	close(results)
	for ok := range results {
		if ok {
			t.Error("Blocked Pop() returned ok=true after Close()")
		}
	}
}

// --- Concurrency Tests ---

func TestThreadSafePriorityQueue_ConcurrentAddPop(t *testing.T) {
	pq := NewThreadSafePriorityQueue(testLogger())

	numProducers := 5
	numConsumers := 3
	itemsPerProducer := 20
	totalItems := numProducers * itemsPerProducer

	var popped atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < numConsumers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				if _, ok := pq.Pop(); !ok {
					return
				}
				popped.Add(1)
			}
		}()
	}

	var producerWg sync.WaitGroup
	for i := 0; i < numProducers; i++ {
		producerWg.Add(1)
		go func(producerID int) {
			defer producerWg.Done()
			for j := 0; j < itemsPerProducer; j++ {
				pq.Add(testJob(fmt.Sprintf("https://example.com/%d/%d", producerID, j), producerID))
			}
		}(i)
	}

	producerWg.Wait()
	pq.Close()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Consumers did not finish in time")
	}

	if int(popped.Load()) != totalItems {
		t.Errorf("Popped %d jobs, want %d", popped.Load(), totalItems)
	}
}
