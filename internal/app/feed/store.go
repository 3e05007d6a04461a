// Package feed keeps the live, ordered report feed in sync with the remote
// store and its change stream.
package feed

import (
	"sort"
	"sync"
	"time"

	"github.com/fardannozami/parking-reporter/internal/domain"
)

// Store is the canonical in-memory feed: unique ids, newest created_at first.
// Merge operations never fail; ambiguous input is a no-op.
type Store struct {
	mu         sync.Mutex
	reports    []domain.Report
	ids        map[string]struct{}
	live       map[string]domain.Report
	tombstones map[string]tombstone
	buriedIDs  []buriedID
	tombLimit  int
	pending    map[string]*pendingDelete
	seq        uint64
}

// maxTombstones bounds the deleted ids remembered per store. The oldest
// entries are forgotten first.
const maxTombstones = 4096

// tombstone marks a deleted id. A tombstone with a zero at was recorded before
// any row for the id was seen and hides every row with that id; otherwise at
// is the created_at of the deleted row and only strictly newer rows get
// through. Both sides of the comparison are server timestamps.
type tombstone struct {
	at  time.Time
	seq uint64
}

type buriedID struct {
	id  string
	seq uint64
}

type pendingDelete struct {
	seq           uint64
	report        domain.Report
	remoteDeleted bool
}

// UndoToken captures a row removed by OptimisticDelete.
type UndoToken struct {
	id  string
	seq uint64
}

func NewStore() *Store {
	return &Store{
		ids:        make(map[string]struct{}),
		live:       make(map[string]domain.Report),
		tombstones: make(map[string]tombstone),
		tombLimit:  maxTombstones,
		pending:    make(map[string]*pendingDelete),
	}
}

// Load replaces the collection with a snapshot. Rows merged through
// ApplyInsert since the previous Load are kept so that live events racing the
// snapshot query are not lost; tombstoned rows are filtered out.
func (s *Store) Load(initial []*domain.Report) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := make([]domain.Report, 0, len(initial)+len(s.live))
	seen := make(map[string]int, len(initial)+len(s.live))
	add := func(r domain.Report) {
		if r.ID == "" || s.buried(r) {
			return
		}
		if i, ok := seen[r.ID]; ok {
			if r.CreatedAt.After(rows[i].CreatedAt) {
				rows[i] = r
			}
			return
		}
		seen[r.ID] = len(rows)
		rows = append(rows, r)
	}
	for _, r := range initial {
		if r != nil {
			add(clone(*r))
		}
	}
	for _, r := range s.live {
		add(r)
	}

	sort.SliceStable(rows, func(i, j int) bool { return before(rows[i], rows[j]) })

	s.reports = rows
	s.ids = make(map[string]struct{}, len(rows))
	for _, r := range rows {
		s.ids[r.ID] = struct{}{}
	}
	s.live = make(map[string]domain.Report)
}

// ForgetLive drops the rows remembered for the next Load. Call it before
// fetching a resync snapshot: anything still alive is in that snapshot.
func (s *Store) ForgetLive() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.live = make(map[string]domain.Report)
}

// ApplyInsert merges r at its ordered position. It reports whether the
// collection changed; an id already present is a no-op.
func (s *Store) ApplyInsert(r domain.Report) bool {
	if r.ID == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ids[r.ID]; ok {
		return false
	}
	if s.buried(r) {
		return false
	}
	delete(s.tombstones, r.ID)

	r = clone(r)
	s.insertSorted(r)
	s.live[r.ID] = r
	return true
}

// ApplyDelete removes id if present. Unknown ids are remembered so a late
// insert or snapshot for the same row cannot bring it back.
func (s *Store) ApplyDelete(id string) bool {
	if id == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.pending[id]; ok {
		p.remoteDeleted = true
	}

	r, removed := s.remove(id)
	if removed {
		s.bury(id, r.CreatedAt)
	} else {
		s.buryUnseen(id)
	}
	return removed
}

// OptimisticDelete removes id before the remote delete is confirmed. The
// returned token restores the row through RollbackDelete.
func (s *Store) OptimisticDelete(id string) (UndoToken, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.remove(id)
	if !ok {
		return UndoToken{}, false
	}
	s.seq++
	s.pending[id] = &pendingDelete{seq: s.seq, report: r}
	s.bury(id, r.CreatedAt)
	return UndoToken{id: id, seq: s.seq}, true
}

// ConfirmDelete ends the undo window for tok.
func (s *Store) ConfirmDelete(tok UndoToken) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.pending[tok.id]; ok && p.seq == tok.seq {
		delete(s.pending, tok.id)
	}
}

// RollbackDelete restores the row captured by tok at its ordered position.
// It does nothing once the token was confirmed or rolled back, or when the
// change stream already reported the row as deleted.
func (s *Store) RollbackDelete(tok UndoToken) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pending[tok.id]
	if !ok || p.seq != tok.seq {
		return false
	}
	delete(s.pending, tok.id)
	if p.remoteDeleted {
		return false
	}

	delete(s.tombstones, tok.id)
	if _, present := s.ids[tok.id]; present {
		return false
	}
	s.insertSorted(p.report)
	return true
}

// Snapshot returns a copy of the ordered collection.
func (s *Store) Snapshot() []domain.Report {
	return s.Latest(-1)
}

// Latest returns up to n newest reports; n < 0 returns all of them.
func (s *Store) Latest(n int) []domain.Report {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n < 0 || n > len(s.reports) {
		n = len(s.reports)
	}
	out := make([]domain.Report, n)
	for i := 0; i < n; i++ {
		out[i] = clone(s.reports[i])
	}
	return out
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.reports)
}

func (s *Store) insertSorted(r domain.Report) {
	i := sort.Search(len(s.reports), func(i int) bool { return before(r, s.reports[i]) })
	s.reports = append(s.reports, domain.Report{})
	copy(s.reports[i+1:], s.reports[i:])
	s.reports[i] = r
	s.ids[r.ID] = struct{}{}
}

func (s *Store) remove(id string) (domain.Report, bool) {
	if _, ok := s.ids[id]; !ok {
		return domain.Report{}, false
	}
	for i, r := range s.reports {
		if r.ID == id {
			s.reports = append(s.reports[:i], s.reports[i+1:]...)
			delete(s.ids, id)
			delete(s.live, id)
			return r, true
		}
	}
	delete(s.ids, id)
	return domain.Report{}, false
}

// bury records that the row id created at at was deleted. An existing
// unconditional tombstone is kept.
func (s *Store) bury(id string, at time.Time) {
	t, ok := s.tombstones[id]
	if !ok {
		s.remember(id, at)
		return
	}
	if !t.at.IsZero() && at.After(t.at) {
		t.at = at
		s.tombstones[id] = t
	}
}

// buryUnseen records a delete for an id whose row was never seen. Ids are
// assigned once by the server, so every later row with that id is stale.
func (s *Store) buryUnseen(id string) {
	if _, ok := s.tombstones[id]; ok {
		return
	}
	s.remember(id, time.Time{})
}

func (s *Store) remember(id string, at time.Time) {
	s.seq++
	s.tombstones[id] = tombstone{at: at, seq: s.seq}
	s.buriedIDs = append(s.buriedIDs, buriedID{id: id, seq: s.seq})

	for len(s.tombstones) > s.tombLimit && len(s.buriedIDs) > 0 {
		oldest := s.buriedIDs[0]
		s.buriedIDs = s.buriedIDs[1:]
		if t, ok := s.tombstones[oldest.id]; ok && t.seq == oldest.seq {
			delete(s.tombstones, oldest.id)
		}
	}
	if len(s.buriedIDs) > 2*s.tombLimit {
		kept := make([]buriedID, 0, len(s.tombstones))
		for _, b := range s.buriedIDs {
			if t, ok := s.tombstones[b.id]; ok && t.seq == b.seq {
				kept = append(kept, b)
			}
		}
		s.buriedIDs = kept
	}
}

// buried reports whether r is a deleted row. Only a strictly newer row with
// the same id gets through, and none after an unseen delete.
func (s *Store) buried(r domain.Report) bool {
	t, ok := s.tombstones[r.ID]
	if !ok {
		return false
	}
	return t.at.IsZero() || !r.CreatedAt.After(t.at)
}

// before orders by created_at descending; ties break on id so that the order
// never depends on arrival.
func before(a, b domain.Report) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID < b.ID
}

func clone(r domain.Report) domain.Report {
	if r.Profile != nil {
		p := *r.Profile
		r.Profile = &p
	}
	return r
}
