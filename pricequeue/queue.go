// Copyright 2025 Quantstamp, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package pricequeue holds queued audit requests ordered by price, highest
// first, and by arrival among requests of equal price
package pricequeue

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/currency"
	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/internal/linkedset"
	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/types"
)

var ErrZeroPrice = errors.New("price must be greater than zero")

type AlreadyQueuedError struct {
	ID    types.RequestID
	Price currency.Amount
}

func (e *AlreadyQueuedError) Error() string {
	return fmt.Sprintf(
		"request %d is already queued at price %d",
		e.ID,
		e.Price,
	)
}

type Config struct {
	PromRegistry prometheus.Registerer
}

// Queue keeps one FIFO bucket per distinct price. Buckets are created on
// first insertion and dropped when emptied; prices holds their keys sorted
// ascending so the best bucket is always the last one.
type Queue struct {
	sync.RWMutex
	buckets map[currency.Amount]*linkedset.Set[types.RequestID]
	prices  []currency.Amount
	index   map[types.RequestID]currency.Amount
	metrics struct {
		length  prometheus.Gauge
		buckets prometheus.Gauge
	}
}

func New(cfg Config) *Queue {
	q := &Queue{
		buckets: make(map[currency.Amount]*linkedset.Set[types.RequestID]),
		index:   make(map[types.RequestID]currency.Amount),
	}
	if cfg.PromRegistry != nil {
		promautoFactory := promauto.With(cfg.PromRegistry)
		q.metrics.length = promautoFactory.NewGauge(prometheus.GaugeOpts{
			Name: "qsp_queue_length",
			Help: "current count of queued audit requests",
		})
		q.metrics.buckets = promautoFactory.NewGauge(prometheus.GaugeOpts{
			Name: "qsp_queue_price_buckets",
			Help: "current count of distinct queued prices",
		})
	}
	return q
}

// Enqueue appends id to the tail of the bucket for price
func (q *Queue) Enqueue(id types.RequestID, price currency.Amount) error {
	if price == 0 {
		return ErrZeroPrice
	}
	q.Lock()
	defer q.Unlock()
	if existing, ok := q.index[id]; ok {
		return &AlreadyQueuedError{ID: id, Price: existing}
	}
	bucket, ok := q.buckets[price]
	if !ok {
		bucket = linkedset.New[types.RequestID]()
		q.buckets[price] = bucket
		pos, _ := slices.BinarySearch(q.prices, price)
		q.prices = slices.Insert(q.prices, pos, price)
	}
	bucket.PushBack(id)
	q.index[id] = price
	q.updateMetrics()
	return nil
}

// PeekBest returns the request DequeueBest would return, without removing it
func (q *Queue) PeekBest() (types.RequestID, currency.Amount, bool) {
	q.RLock()
	defer q.RUnlock()
	if len(q.prices) == 0 {
		return 0, 0, false
	}
	price := q.prices[len(q.prices)-1]
	id, _ := q.buckets[price].Front()
	return id, price, true
}

// DequeueBest removes and returns the oldest request at the highest price
func (q *Queue) DequeueBest() (types.RequestID, currency.Amount, bool) {
	q.Lock()
	defer q.Unlock()
	if len(q.prices) == 0 {
		return 0, 0, false
	}
	price := q.prices[len(q.prices)-1]
	bucket := q.buckets[price]
	id, _ := bucket.PopFront()
	delete(q.index, id)
	if bucket.Len() == 0 {
		q.dropBucket(price)
	}
	q.updateMetrics()
	return id, price, true
}

// Remove excises id from its bucket. It returns false if id is not queued.
func (q *Queue) Remove(id types.RequestID) bool {
	q.Lock()
	defer q.Unlock()
	price, ok := q.index[id]
	if !ok {
		return false
	}
	bucket := q.buckets[price]
	bucket.Remove(id)
	delete(q.index, id)
	if bucket.Len() == 0 {
		q.dropBucket(price)
	}
	q.updateMetrics()
	return true
}

func (q *Queue) Contains(id types.RequestID) bool {
	q.RLock()
	defer q.RUnlock()
	_, ok := q.index[id]
	return ok
}

// Len returns the total count across all buckets
func (q *Queue) Len() int {
	q.RLock()
	defer q.RUnlock()
	return len(q.index)
}

// Prices returns the distinct queued prices, highest first
func (q *Queue) Prices() []currency.Amount {
	q.RLock()
	defer q.RUnlock()
	ret := slices.Clone(q.prices)
	slices.Reverse(ret)
	return ret
}

// Snapshot returns every queued id in dequeue order
func (q *Queue) Snapshot() []types.RequestID {
	q.RLock()
	defer q.RUnlock()
	ret := make([]types.RequestID, 0, len(q.index))
	for i := len(q.prices) - 1; i >= 0; i-- {
		ret = append(ret, q.buckets[q.prices[i]].Keys()...)
	}
	return ret
}

func (q *Queue) dropBucket(price currency.Amount) {
	delete(q.buckets, price)
	if pos, found := slices.BinarySearch(q.prices, price); found {
		q.prices = slices.Delete(q.prices, pos, pos+1)
	}
}

func (q *Queue) updateMetrics() {
	if q.metrics.length == nil {
		return
	}
	q.metrics.length.Set(float64(len(q.index)))
	q.metrics.buckets.Set(float64(len(q.prices)))
}
