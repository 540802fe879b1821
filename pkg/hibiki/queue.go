package hibiki

import (
	"math/rand"
	"sync"

	"github.com/pkg/errors"
)

// Queue holds the pending tracks for a single player
type Queue struct {
	mu    sync.RWMutex
	items []Track
}

// NewQueue creates an empty queue
func NewQueue() *Queue {
	return &Queue{items: make([]Track, 0)}
}

// Add appends tracks to the end of the queue
func (q *Queue) Add(tracks ...Track) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, tracks...)
}

// Next pops the head of the queue, reporting false when it is empty
func (q *Queue) Next() (Track, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return Track{}, false
	}
	track := q.items[0]
	q.items = q.items[1:]
	return track, true
}

// List returns a copy of the pending tracks
func (q *Queue) List() []Track {
	q.mu.RLock()
	defer q.mu.RUnlock()

	result := make([]Track, len(q.items))
	copy(result, q.items)
	return result
}

// Size returns the number of pending tracks
func (q *Queue) Size() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.items)
}

// Clear drops all pending tracks
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = q.items[:0]
}

// Remove removes the track at the given index
func (q *Queue) Remove(index int) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if index < 0 || index >= len(q.items) {
		return errors.Errorf("invalid queue index: %d", index)
	}
	q.items = append(q.items[:index], q.items[index+1:]...)
	return nil
}

// Shuffle randomizes the order of the pending tracks
func (q *Queue) Shuffle() {
	q.mu.Lock()
	defer q.mu.Unlock()
	rand.Shuffle(len(q.items), func(i, j int) {
		q.items[i], q.items[j] = q.items[j], q.items[i]
	})
}
