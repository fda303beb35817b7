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

package linkedset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushRemove(t *testing.T) {
	s := New[string]()
	require.True(t, s.PushBack("a"))
	require.True(t, s.PushBack("b"))
	require.True(t, s.PushBack("c"))
	require.False(t, s.PushBack("b"))
	assert.Equal(t, []string{"a", "b", "c"}, s.Keys())
	assert.Equal(t, 3, s.Len())

	// middle
	require.True(t, s.Remove("b"))
	assert.Equal(t, []string{"a", "c"}, s.Keys())
	next, ok := s.Next("a")
	require.True(t, ok)
	assert.Equal(t, "c", next)

	// head
	require.True(t, s.Remove("a"))
	front, ok := s.Front()
	require.True(t, ok)
	assert.Equal(t, "c", front)

	// tail and last
	require.True(t, s.Remove("c"))
	_, ok = s.Front()
	assert.False(t, ok)
	_, ok = s.Back()
	assert.False(t, ok)
	assert.False(t, s.Remove("c"))
	assert.Empty(t, s.Keys())
}

func TestRemoveTail(t *testing.T) {
	s := New[int]()
	s.PushBack(1)
	s.PushBack(2)
	s.Remove(2)
	back, ok := s.Back()
	require.True(t, ok)
	assert.Equal(t, 1, back)
	_, ok = s.Next(1)
	assert.False(t, ok)
	s.PushBack(3)
	assert.Equal(t, []int{1, 3}, s.Keys())
}

func TestPopFront(t *testing.T) {
	s := New[int]()
	for i := 1; i <= 3; i++ {
		s.PushBack(i)
	}
	for want := 1; want <= 3; want++ {
		got, ok := s.PopFront()
		require.True(t, ok)
		assert.Equal(t, want, got)
	}
	_, ok := s.PopFront()
	assert.False(t, ok)
}

func TestAllStopsEarly(t *testing.T) {
	s := New[int]()
	for i := range 10 {
		s.PushBack(i)
	}
	var seen []int
	for k := range s.All() {
		seen = append(seen, k)
		if k == 2 {
			break
		}
	}
	assert.Equal(t, []int{0, 1, 2}, seen)
	assert.False(t, s.Contains(42))
	assert.True(t, s.Contains(9))
}
