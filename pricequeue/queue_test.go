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

package pricequeue

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/currency"
	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/types"
)

func enqueueAll(t *testing.T, q *Queue, prices ...currency.Amount) {
	t.Helper()
	for i, p := range prices {
		require.NoError(t, q.Enqueue(types.RequestID(i+1), p))
	}
}

func drain(q *Queue) []types.RequestID {
	var ret []types.RequestID
	for {
		id, _, ok := q.DequeueBest()
		if !ok {
			return ret
		}
		ret = append(ret, id)
	}
}

func TestOrdering(t *testing.T) {
	tests := []struct {
		name   string
		prices []currency.Amount
		want   []types.RequestID
	}{
		{name: "higher first then fifo", prices: []currency.Amount{124, 123, 123}, want: []types.RequestID{1, 2, 3}},
		{name: "later higher price wins", prices: []currency.Amount{123, 124}, want: []types.RequestID{2, 1}},
		{name: "mixed", prices: []currency.Amount{5, 9, 5, 1, 9, currency.MaxAmount}, want: []types.RequestID{6, 2, 5, 1, 3, 4}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			q := New(Config{})
			enqueueAll(t, q, tc.prices...)
			assert.Equal(t, tc.want, q.Snapshot())
			assert.Equal(t, tc.want, drain(q))
			assert.Equal(t, 0, q.Len())
			assert.Empty(t, q.Prices())
		})
	}
}

func TestEnqueueErrors(t *testing.T) {
	q := New(Config{})
	require.ErrorIs(t, q.Enqueue(1, 0), ErrZeroPrice)
	require.NoError(t, q.Enqueue(1, 10))
	var dupErr *AlreadyQueuedError
	require.ErrorAs(t, q.Enqueue(1, 20), &dupErr)
	assert.Equal(t, currency.Amount(10), dupErr.Price)
	assert.Equal(t, 1, q.Len())
}

func TestRemove(t *testing.T) {
	q := New(Config{})
	enqueueAll(t, q, 10, 10, 20, 10)
	assert.True(t, q.Remove(2))
	assert.False(t, q.Remove(2))
	assert.False(t, q.Remove(99))
	assert.Equal(t, 3, q.Len())

	// removing the only id at a price drops the bucket
	assert.True(t, q.Remove(3))
	assert.Equal(t, []currency.Amount{10}, q.Prices())

	id, price, ok := q.PeekBest()
	require.True(t, ok)
	assert.Equal(t, types.RequestID(1), id)
	assert.Equal(t, currency.Amount(10), price)
	assert.Equal(t, []types.RequestID{1, 4}, drain(q))
}

func TestReenqueueAfterDequeue(t *testing.T) {
	q := New(Config{})
	enqueueAll(t, q, 10, 10)
	id, _, _ := q.DequeueBest()
	require.Equal(t, types.RequestID(1), id)
	// a reclaimed request goes to the back of its bucket
	require.NoError(t, q.Enqueue(1, 10))
	assert.Equal(t, []types.RequestID{2, 1}, drain(q))
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	q := New(Config{PromRegistry: reg})
	enqueueAll(t, q, 1, 2, 2)
	assert.InDelta(t, 3, testutil.ToFloat64(q.metrics.length), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(q.metrics.buckets), 0)
	q.DequeueBest()
	assert.InDelta(t, 2, testutil.ToFloat64(q.metrics.length), 0)
}
