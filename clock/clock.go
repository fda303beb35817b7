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

// Package clock provides the block height source used for every timeout
// and lock window. Heights are read at call time; nothing here runs a timer.
package clock

import (
	"sync"
	"time"

	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/types"
)

// Clock reports the current block height
type Clock interface {
	Height() types.Height
}

// ManualClock is a Clock that only moves when told to
type ManualClock struct {
	mu     sync.RWMutex
	height types.Height
}

func NewManualClock(start types.Height) *ManualClock {
	return &ManualClock{height: start}
}

func (c *ManualClock) Height() types.Height {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.height
}

// Advance moves the clock forward n blocks and returns the new height
func (c *ManualClock) Advance(n types.Height) types.Height {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.height = c.height.Add(n)
	return c.height
}

func (c *ManualClock) Set(h types.Height) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.height = h
}

// BlockClockConfig holds configuration for the BlockClock
type BlockClockConfig struct {
	// Genesis is the wall-clock time of height 0
	Genesis time.Time
	// BlockInterval is the duration of one block. Default: 1s
	BlockInterval time.Duration
}

// BlockClock derives a height from wall-clock time elapsed since genesis
type BlockClock struct {
	config BlockClockConfig
	// For testing: allow injection of custom time source
	nowFunc func() time.Time
}

func NewBlockClock(config BlockClockConfig) *BlockClock {
	if config.BlockInterval <= 0 {
		config.BlockInterval = time.Second
	}
	if config.Genesis.IsZero() {
		config.Genesis = time.Now()
	}
	return &BlockClock{
		config:  config,
		nowFunc: time.Now,
	}
}

func (c *BlockClock) Height() types.Height {
	elapsed := c.nowFunc().Sub(c.config.Genesis)
	if elapsed <= 0 {
		return 0
	}
	return types.Height(elapsed / c.config.BlockInterval)
}

// HeightTime returns the wall-clock time at which the given height starts
func (c *BlockClock) HeightTime(h types.Height) time.Time {
	return c.config.Genesis.Add(time.Duration(h) * c.config.BlockInterval)
}
