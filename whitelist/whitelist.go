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

// Package whitelist maintains the enumerable sets of authorized auditor and
// police addresses
package whitelist

import (
	"fmt"
	"io"
	"iter"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/event"
	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/internal/linkedset"
	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/types"
)

const (
	AddedEventType   event.EventType = "whitelist.added"
	RemovedEventType event.EventType = "whitelist.removed"
)

// MembershipEvent is published when an address joins or leaves a list
type MembershipEvent struct {
	List    string
	Address types.Address
}

type Config struct {
	// Name labels the list in logs, events and metrics, e.g. "auditors"
	Name         string
	Owner        types.Address
	EventBus     *event.EventBus
	Logger       *slog.Logger
	PromRegistry prometheus.Registerer
}

// departure remembers what followed an address when it was removed, so a
// rotation cursor left pointing at it can still find its way forward
type departure struct {
	next    types.Address
	hasNext bool
}

type Registry struct {
	sync.RWMutex
	config   Config
	logger   *slog.Logger
	members  *linkedset.Set[types.Address]
	departed map[types.Address]departure
	metrics  struct {
		members prometheus.Gauge
	}
}

func New(cfg Config) *Registry {
	r := &Registry{
		config:   cfg,
		members:  linkedset.New[types.Address](),
		departed: make(map[types.Address]departure),
	}
	if cfg.Logger == nil {
		r.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	} else {
		r.logger = cfg.Logger
	}
	if cfg.PromRegistry != nil {
		r.metrics.members = promauto.With(cfg.PromRegistry).NewGauge(
			prometheus.GaugeOpts{
				Name:        "qsp_whitelist_members",
				Help:        "current count of whitelisted addresses",
				ConstLabels: prometheus.Labels{"list": cfg.Name},
			},
		)
	}
	return r
}

func (r *Registry) Name() string {
	return r.config.Name
}

func (r *Registry) checkOwner(caller types.Address) error {
	if caller != r.config.Owner {
		return fmt.Errorf(
			"%w: %s is not the %s whitelist owner",
			types.ErrUnauthorized,
			caller,
			r.config.Name,
		)
	}
	return nil
}

// Add appends addr to the list. Adding a member again is a no-op.
func (r *Registry) Add(caller, addr types.Address) error {
	if err := r.checkOwner(caller); err != nil {
		return err
	}
	if addr.IsZero() {
		return ErrZeroAddress
	}
	r.Lock()
	defer r.Unlock()
	if !r.members.PushBack(addr) {
		return nil
	}
	delete(r.departed, addr)
	r.updateMetrics()
	r.logger.Info(
		"address added to whitelist",
		"component", "whitelist",
		"list", r.config.Name,
		"address", addr,
	)
	r.publish(AddedEventType, addr)
	return nil
}

// Remove unlinks addr from the list. Removing a non-member is a no-op.
func (r *Registry) Remove(caller, addr types.Address) error {
	if err := r.checkOwner(caller); err != nil {
		return err
	}
	r.Lock()
	defer r.Unlock()
	if !r.members.Contains(addr) {
		return nil
	}
	next, hasNext := r.members.Next(addr)
	r.members.Remove(addr)
	r.departed[addr] = departure{next: next, hasNext: hasNext}
	r.updateMetrics()
	r.logger.Info(
		"address removed from whitelist",
		"component", "whitelist",
		"list", r.config.Name,
		"address", addr,
	)
	r.publish(RemovedEventType, addr)
	return nil
}

func (r *Registry) IsMember(addr types.Address) bool {
	r.RLock()
	defer r.RUnlock()
	return r.members.Contains(addr)
}

func (r *Registry) Len() int {
	r.RLock()
	defer r.RUnlock()
	return r.members.Len()
}

// Head returns the first member of the enumeration
func (r *Registry) Head() (types.Address, bool) {
	r.RLock()
	defer r.RUnlock()
	return r.members.Front()
}

// Members returns a snapshot of the list from the head
func (r *Registry) Members() []types.Address {
	r.RLock()
	defer r.RUnlock()
	return r.members.Keys()
}

// All enumerates a snapshot of the list from the head. Every call restarts
// from the current head.
func (r *Registry) All() iter.Seq[types.Address] {
	members := r.Members()
	return func(yield func(types.Address) bool) {
		for _, m := range members {
			if !yield(m) {
				return
			}
		}
	}
}

// NextAfter returns the live member following addr, wrapping to the head at
// the end of the list. addr need not be a member: when it was removed, the
// walk resumes from the member that followed it at removal time. Unknown
// addresses resolve to the head. The second result is false only when the
// list is empty.
func (r *Registry) NextAfter(addr types.Address) (types.Address, bool) {
	r.RLock()
	defer r.RUnlock()
	head, ok := r.members.Front()
	if !ok {
		return "", false
	}
	if r.members.Contains(addr) {
		if next, ok := r.members.Next(addr); ok {
			return next, true
		}
		return head, true
	}
	cur := addr
	for range len(r.departed) {
		d, ok := r.departed[cur]
		if !ok || !d.hasNext {
			break
		}
		if r.members.Contains(d.next) {
			return d.next, true
		}
		cur = d.next
	}
	return head, true
}

func (r *Registry) updateMetrics() {
	if r.metrics.members != nil {
		r.metrics.members.Set(float64(r.members.Len()))
	}
}

func (r *Registry) publish(evtType event.EventType, addr types.Address) {
	if r.config.EventBus == nil {
		return
	}
	r.config.EventBus.PublishAsync(
		evtType,
		event.NewEvent(
			evtType,
			MembershipEvent{List: r.config.Name, Address: addr},
		),
	)
}
