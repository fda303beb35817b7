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

// Package linkedset provides an insertion-ordered set addressed by key.
// Links are stored in a map rather than as pointers, so removal and
// insertion are O(1) map operations and iteration is bounded by the size.
package linkedset

import "iter"

type link[K comparable] struct {
	prev    K
	next    K
	hasPrev bool
	hasNext bool
}

// Set is an ordered set of keys. The zero value is not usable; call New.
type Set[K comparable] struct {
	links   map[K]*link[K]
	head    K
	tail    K
	hasHead bool
}

func New[K comparable]() *Set[K] {
	return &Set[K]{
		links: make(map[K]*link[K]),
	}
}

func (s *Set[K]) Len() int {
	return len(s.links)
}

func (s *Set[K]) Contains(key K) bool {
	_, ok := s.links[key]
	return ok
}

// PushBack appends key at the tail. It returns false if key is present.
func (s *Set[K]) PushBack(key K) bool {
	if _, ok := s.links[key]; ok {
		return false
	}
	l := &link[K]{}
	if s.hasHead {
		l.prev = s.tail
		l.hasPrev = true
		tailLink := s.links[s.tail]
		tailLink.next = key
		tailLink.hasNext = true
	} else {
		s.head = key
		s.hasHead = true
	}
	s.tail = key
	s.links[key] = l
	return true
}

// Remove unlinks key. It returns false if key was not present.
func (s *Set[K]) Remove(key K) bool {
	l, ok := s.links[key]
	if !ok {
		return false
	}
	var zero K
	if l.hasPrev {
		p := s.links[l.prev]
		p.next, p.hasNext = l.next, l.hasNext
	} else if l.hasNext {
		s.head = l.next
	} else {
		s.head = zero
		s.hasHead = false
	}
	if l.hasNext {
		n := s.links[l.next]
		n.prev, n.hasPrev = l.prev, l.hasPrev
	} else if l.hasPrev {
		s.tail = l.prev
	} else {
		s.tail = zero
	}
	delete(s.links, key)
	return true
}

// Front returns the oldest key
func (s *Set[K]) Front() (K, bool) {
	return s.head, s.hasHead
}

// Back returns the newest key
func (s *Set[K]) Back() (K, bool) {
	return s.tail, s.hasHead
}

// Next returns the key following key. The second result is false when key
// is the tail or is not a member.
func (s *Set[K]) Next(key K) (K, bool) {
	l, ok := s.links[key]
	if !ok || !l.hasNext {
		var zero K
		return zero, false
	}
	return l.next, true
}

// PopFront removes and returns the oldest key
func (s *Set[K]) PopFront() (K, bool) {
	key, ok := s.Front()
	if ok {
		s.Remove(key)
	}
	return key, ok
}

// All iterates the keys from oldest to newest. The walk visits at most Len
// keys, so a corrupted chain can never loop forever.
func (s *Set[K]) All() iter.Seq[K] {
	return func(yield func(K) bool) {
		if !s.hasHead {
			return
		}
		key := s.head
		for range len(s.links) {
			if !yield(key) {
				return
			}
			l, ok := s.links[key]
			if !ok || !l.hasNext {
				return
			}
			key = l.next
		}
	}
}

// Keys returns a snapshot of the keys in order
func (s *Set[K]) Keys() []K {
	ret := make([]K, 0, len(s.links))
	for k := range s.All() {
		ret = append(ret, k)
	}
	return ret
}
