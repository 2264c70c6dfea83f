package feed

import (
	"container/heap"
	"sort"
	"sync"

	"github.com/wonny/signalhub/internal/realtime"
)

// assetPriorityItem represents an asset with its priority in the queue
type assetPriorityItem struct {
	priority *realtime.AssetPriority
	index    int // heap index
}

// PriorityQueue implements a max-heap for asset subscription priorities
// ⭐ SSOT: 스트리밍 구독 자산 선택은 이 큐에서만
type PriorityQueue struct {
	mu    sync.RWMutex
	items []*assetPriorityItem
	index map[string]int // asset -> heap index
}

// NewPriorityQueue creates a new priority queue
func NewPriorityQueue() *PriorityQueue {
	pq := &PriorityQueue{
		items: make([]*assetPriorityItem, 0),
		index: make(map[string]int),
	}
	heap.Init(pq)
	return pq
}

// Len returns the number of items in the queue
func (pq *PriorityQueue) Len() int {
	return len(pq.items)
}

// Less compares two items (max-heap: higher score first)
func (pq *PriorityQueue) Less(i, j int) bool {
	return pq.items[i].priority.Score > pq.items[j].priority.Score
}

// Swap swaps two items
func (pq *PriorityQueue) Swap(i, j int) {
	pq.items[i], pq.items[j] = pq.items[j], pq.items[i]
	pq.items[i].index = i
	pq.items[j].index = j
	pq.index[pq.items[i].priority.Asset] = i
	pq.index[pq.items[j].priority.Asset] = j
}

// Push adds an item to the queue (heap.Interface)
func (pq *PriorityQueue) Push(x interface{}) {
	item := x.(*assetPriorityItem)
	item.index = len(pq.items)
	pq.items = append(pq.items, item)
	pq.index[item.priority.Asset] = item.index
}

// Pop removes and returns the last item (heap.Interface)
func (pq *PriorityQueue) Pop() interface{} {
	old := pq.items
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	pq.items = old[0 : n-1]
	delete(pq.index, item.priority.Asset)
	return item
}

// Update inserts or re-scores an asset
func (pq *PriorityQueue) Update(priority *realtime.AssetPriority) {
	pq.mu.Lock()
	defer pq.mu.Unlock()

	priority.CalculateScore()

	if idx, exists := pq.index[priority.Asset]; exists {
		pq.items[idx].priority = priority
		heap.Fix(pq, idx)
		return
	}
	heap.Push(pq, &assetPriorityItem{priority: priority})
}

// Remove removes an asset from the queue
func (pq *PriorityQueue) Remove(asset string) {
	pq.mu.Lock()
	defer pq.mu.Unlock()

	if idx, exists := pq.index[asset]; exists {
		heap.Remove(pq, idx)
	}
}

// Top returns the n highest priority assets in score order (ties by asset name)
func (pq *PriorityQueue) Top(n int) []realtime.AssetPriority {
	pq.mu.RLock()
	all := make([]realtime.AssetPriority, len(pq.items))
	for i, item := range pq.items {
		all[i] = *item.priority
	}
	pq.mu.RUnlock()

	// 힙 배열은 부분 정렬이므로 복사본을 정렬
	sort.Slice(all, func(i, j int) bool {
		if all[i].Score != all[j].Score {
			return all[i].Score > all[j].Score
		}
		return all[i].Asset < all[j].Asset
	})

	if n > len(all) {
		n = len(all)
	}
	return all[:n]
}

// Contains checks if an asset is in the queue
func (pq *PriorityQueue) Contains(asset string) bool {
	pq.mu.RLock()
	defer pq.mu.RUnlock()

	_, exists := pq.index[asset]
	return exists
}
