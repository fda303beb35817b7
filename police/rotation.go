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

// Package police selects verifier nodes for submitted audit reports in
// round-robin order and tracks their verdicts
package police

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/currency"
	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/event"
	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/report"
	"github.com/quantstamp/qsp-protocol-audit-contract-sub000/types"
)

const (
	AssignedEventType  event.EventType = "police.assigned"
	SubmittedEventType event.EventType = "police.submitted"
)

type AssignedEvent struct {
	RequestID types.RequestID
	Nodes     []types.Address
	Deadline  types.Height
}

type SubmittedEvent struct {
	RequestID types.RequestID
	Node      types.Address
	Verified  bool
	Verdict   Verdict
	Height    types.Height
}

// NodeSet is the police whitelist as seen by the rotation
type NodeSet interface {
	IsMember(addr types.Address) bool
	Len() int
	Head() (types.Address, bool)
	NextAfter(addr types.Address) (types.Address, bool)
}

type Config struct {
	Nodes          NodeSet
	Reports        report.Store
	NodesPerReport int
	Timeout        types.Height
	EventBus       *event.EventBus
	Logger         *slog.Logger
	PromRegistry   prometheus.Registerer
}

// Pending describes a report a police node still has to check
type Pending struct {
	ID       types.RequestID
	Auditor  types.Address
	Price    currency.Amount
	URI      string
	Deadline types.Height
}

// Result is the outcome of an accepted police submission
type Result struct {
	Verdict Verdict
	// Slash is set by the first negative report, which makes the verdict
	// Invalid
	Slash   bool
	Auditor types.Address
	Price   currency.Amount
	Nodes   []types.Address
}

type record struct {
	Pending
	nodes     []types.Address
	submitted map[types.Address]bool
	positives int
	verdict   Verdict
}

type Rotation struct {
	sync.RWMutex
	config    Config
	logger    *slog.Logger
	perReport int
	timeout   types.Height
	cursor    types.Address
	hasCursor bool
	requests  map[types.RequestID]*record
	// pending holds each node's unchecked request ids, sorted ascending
	pending map[types.Address][]types.RequestID
	metrics struct {
		assignments prometheus.Counter
		submissions *prometheus.CounterVec
	}
}

func NewRotation(cfg Config) *Rotation {
	r := &Rotation{
		config:    cfg,
		perReport: cfg.NodesPerReport,
		timeout:   cfg.Timeout,
		requests:  make(map[types.RequestID]*record),
		pending:   make(map[types.Address][]types.RequestID),
	}
	if cfg.Logger == nil {
		r.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	} else {
		r.logger = cfg.Logger
	}
	if cfg.Reports == nil {
		r.config.Reports = report.NewMemoryStore()
	}
	if cfg.PromRegistry != nil {
		promautoFactory := promauto.With(cfg.PromRegistry)
		r.metrics.assignments = promautoFactory.NewCounter(prometheus.CounterOpts{
			Name: "qsp_police_assignments_total",
			Help: "total police node assignments",
		})
		r.metrics.submissions = promautoFactory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qsp_police_submissions_total",
				Help: "total accepted police reports by result",
			},
			[]string{"verified"},
		)
	}
	return r
}

func (r *Rotation) SetNodesPerReport(n int) error {
	if n <= 0 {
		return ErrInvalidPerReport
	}
	r.Lock()
	defer r.Unlock()
	r.perReport = n
	return nil
}

func (r *Rotation) SetTimeout(timeout types.Height) {
	r.Lock()
	defer r.Unlock()
	r.timeout = timeout
}

// Cursor returns the last node assigned by the rotation
func (r *Rotation) Cursor() (types.Address, bool) {
	r.RLock()
	defer r.RUnlock()
	return r.cursor, r.hasCursor
}

// Assign picks up to NodesPerReport distinct police nodes for a report,
// continuing the rotation after the last node picked by the previous call.
// With no police nodes the request is recorded with an empty committee.
func (r *Rotation) Assign(p Pending, now types.Height) ([]types.Address, error) {
	r.Lock()
	defer r.Unlock()
	if _, ok := r.requests[p.ID]; ok {
		return nil, ErrAlreadyAssigned
	}
	k := min(r.perReport, r.config.Nodes.Len())
	nodes := make([]types.Address, 0, k)
	for len(nodes) < k {
		var next types.Address
		var ok bool
		if r.hasCursor {
			next, ok = r.config.Nodes.NextAfter(r.cursor)
		} else {
			next, ok = r.config.Nodes.Head()
		}
		if !ok || slices.Contains(nodes, next) {
			break
		}
		nodes = append(nodes, next)
		r.cursor = next
		r.hasCursor = true
	}
	p.Deadline = now.Add(r.timeout)
	rec := &record{
		Pending:   p,
		nodes:     nodes,
		submitted: make(map[types.Address]bool, len(nodes)),
	}
	r.requests[p.ID] = rec
	for _, node := range nodes {
		ids := r.pending[node]
		pos, _ := slices.BinarySearch(ids, p.ID)
		r.pending[node] = slices.Insert(ids, pos, p.ID)
	}
	if r.metrics.assignments != nil {
		r.metrics.assignments.Add(float64(len(nodes)))
	}
	r.logger.Debug(
		"police nodes assigned",
		"component", "police",
		"request_id", p.ID,
		"nodes", nodes,
		"deadline", p.Deadline,
	)
	r.publish(AssignedEventType, AssignedEvent{
		RequestID: p.ID,
		Nodes:     slices.Clone(nodes),
		Deadline:  p.Deadline,
	})
	return slices.Clone(nodes), nil
}

// Check runs the validation of Submit without recording anything and
// returns the request details a submission would settle against
func (r *Rotation) Check(
	id types.RequestID,
	node types.Address,
	now types.Height,
) (Result, error) {
	if !r.config.Nodes.IsMember(node) {
		return Result{}, errNotPolice(node)
	}
	r.RLock()
	defer r.RUnlock()
	rec, err := r.check(id, node, now)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Auditor: rec.Auditor,
		Price:   rec.Price,
		Nodes:   slices.Clone(rec.nodes),
		Verdict: rec.verdict,
	}, nil
}

func errNotPolice(node types.Address) error {
	return fmt.Errorf(
		"%w: %s is not a whitelisted police node",
		types.ErrUnauthorized,
		node,
	)
}

func (r *Rotation) check(
	id types.RequestID,
	node types.Address,
	now types.Height,
) (*record, error) {
	rec, ok := r.requests[id]
	if !ok || !slices.Contains(rec.nodes, node) {
		return nil, ErrNotAssigned
	}
	if rec.submitted[node] {
		return nil, ErrAlreadySubmitted
	}
	if now > rec.Deadline {
		return nil, &SubmissionExpiredError{
			ID:       id,
			Node:     node,
			Deadline: rec.Deadline,
			Now:      now,
		}
	}
	if rec.verdict == VerdictInvalid {
		return nil, ErrVerdictFinal
	}
	return rec, nil
}

// Submit records a police report. The first negative report makes the
// verdict Invalid and is final; positives make it Valid once every assigned
// node has confirmed.
func (r *Rotation) Submit(
	id types.RequestID,
	node types.Address,
	data []byte,
	verified bool,
	now types.Height,
) (Result, error) {
	if !r.config.Nodes.IsMember(node) {
		return Result{}, errNotPolice(node)
	}
	r.Lock()
	defer r.Unlock()
	rec, err := r.check(id, node, now)
	if err != nil {
		var expired *SubmissionExpiredError
		if errors.As(err, &expired) {
			r.logger.Info(
				"police report past deadline",
				"component", "police",
				"request_id", id,
				"node", node,
				"deadline", expired.Deadline,
			)
		}
		return Result{}, err
	}
	if err := r.config.Reports.Put(report.PoliceKey(id, node), data); err != nil {
		return Result{}, fmt.Errorf("store police report: %w", err)
	}
	rec.submitted[node] = true
	r.dropPending(node, id)
	res := Result{
		Auditor: rec.Auditor,
		Price:   rec.Price,
		Nodes:   slices.Clone(rec.nodes),
	}
	if verified {
		rec.positives++
		if rec.positives == len(rec.nodes) {
			rec.verdict = VerdictValid
		}
	} else {
		rec.verdict = VerdictInvalid
		res.Slash = true
	}
	res.Verdict = rec.verdict
	if r.metrics.submissions != nil {
		r.metrics.submissions.WithLabelValues(fmt.Sprint(verified)).Inc()
	}
	r.logger.Info(
		"police report accepted",
		"component", "police",
		"request_id", id,
		"node", node,
		"verified", verified,
		"verdict", rec.verdict,
	)
	r.publish(SubmittedEventType, SubmittedEvent{
		RequestID: id,
		Node:      node,
		Verified:  verified,
		Verdict:   rec.verdict,
		Height:    now,
	})
	return res, nil
}

// Verdict returns the verdict of a request. An unverified request whose
// deadline has passed reports Expired.
func (r *Rotation) Verdict(id types.RequestID, now types.Height) (Verdict, error) {
	r.RLock()
	defer r.RUnlock()
	rec, ok := r.requests[id]
	if !ok {
		return VerdictUnverified, ErrUnknownRequest
	}
	return rec.currentVerdict(now), nil
}

// CanClaim reports whether the auditor reward for id may be paid out. A
// checked report becomes claimable once its police window has elapsed,
// even when every node already confirmed it.
func (r *Rotation) CanClaim(id types.RequestID, now types.Height) bool {
	r.RLock()
	defer r.RUnlock()
	rec, ok := r.requests[id]
	if !ok {
		return false
	}
	if len(rec.nodes) == 0 {
		return true
	}
	if rec.currentVerdict(now) == VerdictInvalid {
		return false
	}
	return now > rec.Deadline
}

// Nodes returns the police nodes assigned to id
func (r *Rotation) Nodes(id types.RequestID) []types.Address {
	r.RLock()
	defer r.RUnlock()
	if rec, ok := r.requests[id]; ok {
		return slices.Clone(rec.nodes)
	}
	return nil
}

// Deadline returns the police submission deadline of id
func (r *Rotation) Deadline(id types.RequestID) (types.Height, bool) {
	r.RLock()
	defer r.RUnlock()
	if rec, ok := r.requests[id]; ok {
		return rec.Deadline, true
	}
	return 0, false
}

func (r *Rotation) IsAssigned(id types.RequestID, node types.Address) bool {
	r.RLock()
	defer r.RUnlock()
	rec, ok := r.requests[id]
	return ok && slices.Contains(rec.nodes, node)
}

// Report returns the stored report a police node submitted for id
func (r *Rotation) Report(id types.RequestID, node types.Address) ([]byte, error) {
	return r.config.Reports.Get(report.PoliceKey(id, node))
}

// NextAssignment returns the first request after afterID that node still
// has to check. Pass 0 to start from the beginning. Entries that were
// submitted, are past their deadline or already have a final verdict are
// dropped along the way.
func (r *Rotation) NextAssignment(
	node types.Address,
	afterID types.RequestID,
	now types.Height,
) (Pending, bool) {
	r.Lock()
	defer r.Unlock()
	ids := r.pending[node]
	pos, found := slices.BinarySearch(ids, afterID)
	if found {
		pos++
	}
	keep := ids[:pos]
	var (
		ret     Pending
		matched bool
	)
	for i, id := range ids[pos:] {
		rec := r.requests[id]
		if rec.submitted[node] || now > rec.Deadline || rec.verdict == VerdictInvalid {
			continue
		}
		ret = rec.Pending
		matched = true
		keep = append(keep, ids[pos+i:]...)
		break
	}
	if len(keep) == 0 {
		delete(r.pending, node)
	} else {
		r.pending[node] = keep
	}
	return ret, matched
}

func (r *Rotation) dropPending(node types.Address, id types.RequestID) {
	ids := r.pending[node]
	if pos, found := slices.BinarySearch(ids, id); found {
		ids = slices.Delete(ids, pos, pos+1)
	}
	if len(ids) == 0 {
		delete(r.pending, node)
		return
	}
	r.pending[node] = ids
}

func (rec *record) currentVerdict(now types.Height) Verdict {
	if rec.verdict == VerdictUnverified && len(rec.nodes) > 0 && now > rec.Deadline {
		return VerdictExpired
	}
	return rec.verdict
}

func (r *Rotation) publish(evtType event.EventType, data any) {
	if r.config.EventBus == nil {
		return
	}
	r.config.EventBus.PublishAsync(evtType, event.NewEvent(evtType, data))
}
