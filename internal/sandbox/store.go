package sandbox

import (
	"errors"
	"fmt"
	"maps"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Layr-Labs/entity-client/pkg/entity"
)

var (
	ErrRowNotFound     = errors.New("row not found")
	ErrHistoryNotFound = errors.New("history entry not found")
	ErrBadFilter       = errors.New("invalid filter")
)

const (
	actionInsert   = "insert"
	actionUpdate   = "update"
	actionDelete   = "delete"
	actionRollback = "rollback"
)

// HistoryEntry records one change of one row.
type HistoryEntry struct {
	HistorySeq int64          `json:"history_seq"`
	Entity     string         `json:"entity"`
	Seq        int64          `json:"seq"`
	Action     string         `json:"action"`
	Before     map[string]any `json:"before"`
	After      map[string]any `json:"after"`
	CreatedAt  int64          `json:"created_at"`
}

type row struct {
	data    map[string]any
	deleted bool
}

type table struct {
	nextSeq int64
	rows    map[int64]*row
}

// Store is the sandbox's in-memory entity storage.
type Store struct {
	mu          sync.Mutex
	tables      map[string]*table
	history     []HistoryEntry
	nextHistory int64
	now         func() time.Time
}

func NewStore() *Store {
	return &Store{
		tables: make(map[string]*table),
		now:    time.Now,
	}
}

func (s *Store) table(entityName string) *table {
	t, ok := s.tables[entityName]
	if !ok {
		t = &table{rows: make(map[int64]*row)}
		s.tables[entityName] = t
	}
	return t
}

func withSeq(seq int64, data map[string]any) map[string]any {
	out := maps.Clone(data)
	if out == nil {
		out = make(map[string]any)
	}
	out["seq"] = seq
	return out
}

// Get returns a live row.
func (s *Store) Get(entityName string, seq int64) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.table(entityName).rows[seq]
	if !ok || r.deleted {
		return nil, fmt.Errorf("%w: %s/%d", ErrRowNotFound, entityName, seq)
	}
	return withSeq(seq, r.data), nil
}

// Count returns the number of live rows.
func (s *Store) Count(entityName string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, r := range s.table(entityName).rows {
		if !r.deleted {
			n++
		}
	}
	return n
}

// Page selects rows.
type Page struct {
	Page    int
	Limit   int
	OrderBy string
}

// Query returns one page of live rows matching every filter, plus the total
// number of matches.
func (s *Store) Query(entityName string, filters []entity.Filter, p Page) ([]map[string]any, int, error) {
	for _, f := range filters {
		if _, ok := filterOps[f.Op]; !ok {
			return nil, 0, fmt.Errorf("%w: unknown op %q", ErrBadFilter, f.Op)
		}
		if f.Field == "" {
			return nil, 0, fmt.Errorf("%w: empty field", ErrBadFilter)
		}
	}

	s.mu.Lock()
	var matched []map[string]any
	for seq, r := range s.table(entityName).rows {
		if r.deleted {
			continue
		}
		rec := withSeq(seq, r.data)
		if matchAll(rec, filters) {
			matched = append(matched, rec)
		}
	}
	s.mu.Unlock()

	sortRows(matched, p.OrderBy)
	total := len(matched)
	return paginate(matched, p.Page, p.Limit), total, nil
}

// Submit inserts data, or updates the row named by data["seq"].
func (s *Store) Submit(entityName string, data map[string]any) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.submitLocked(entityName, data)
}

func (s *Store) submitLocked(entityName string, data map[string]any) (int64, error) {
	t := s.table(entityName)
	fields := maps.Clone(data)
	rawSeq, update := fields["seq"]
	delete(fields, "seq")

	if !update {
		t.nextSeq++
		seq := t.nextSeq
		t.rows[seq] = &row{data: fields}
		s.record(entityName, seq, actionInsert, nil, fields)
		return seq, nil
	}

	seq, err := toSeq(rawSeq)
	if err != nil {
		return 0, err
	}
	r, ok := t.rows[seq]
	if !ok || r.deleted {
		return 0, fmt.Errorf("%w: %s/%d", ErrRowNotFound, entityName, seq)
	}
	before := maps.Clone(r.data)
	merged := make(map[string]any, len(r.data)+len(fields))
	maps.Copy(merged, r.data)
	maps.Copy(merged, fields)
	r.data = merged
	s.record(entityName, seq, actionUpdate, before, merged)
	return seq, nil
}

// Delete soft-deletes a row, or removes it entirely when hard is set.
func (s *Store) Delete(entityName string, seq int64, hard bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteLocked(entityName, seq, hard)
}

func (s *Store) deleteLocked(entityName string, seq int64, hard bool) error {
	t := s.table(entityName)
	r, ok := t.rows[seq]
	if !ok || (r.deleted && !hard) {
		return fmt.Errorf("%w: %s/%d", ErrRowNotFound, entityName, seq)
	}
	s.record(entityName, seq, actionDelete, maps.Clone(r.data), nil)
	if hard {
		delete(t.rows, seq)
		return nil
	}
	r.deleted = true
	return nil
}

// History returns one page of the history of a row, newest first.
func (s *Store) History(entityName string, seq int64, page, limit int) ([]HistoryEntry, int) {
	s.mu.Lock()
	var out []HistoryEntry
	for i := len(s.history) - 1; i >= 0; i-- {
		h := s.history[i]
		if h.Entity == entityName && h.Seq == seq {
			out = append(out, h)
		}
	}
	s.mu.Unlock()
	return paginate(out, page, limit), len(out)
}

// Rollback undoes the change recorded by historySeq: the row is restored to
// the state it had before that change.
func (s *Store) Rollback(entityName string, historySeq int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var entry *HistoryEntry
	for i := range s.history {
		if s.history[i].HistorySeq == historySeq && s.history[i].Entity == entityName {
			entry = &s.history[i]
			break
		}
	}
	if entry == nil {
		return 0, fmt.Errorf("%w: %s/%d", ErrHistoryNotFound, entityName, historySeq)
	}

	t := s.table(entityName)
	seq := entry.Seq
	r, exists := t.rows[seq]
	var current map[string]any
	if exists && !r.deleted {
		current = maps.Clone(r.data)
	}

	switch {
	case entry.Before == nil:
		if !exists {
			return 0, fmt.Errorf("%w: %s/%d", ErrRowNotFound, entityName, seq)
		}
		r.deleted = true
	case exists:
		r.data = maps.Clone(entry.Before)
		r.deleted = false
	default:
		t.rows[seq] = &row{data: maps.Clone(entry.Before)}
	}
	s.record(entityName, seq, actionRollback, current, maps.Clone(entry.Before))
	return seq, nil
}

// OpResult reports the outcome of one queued operation applied on commit.
type OpResult struct {
	Op     string `json:"op"`
	Entity string `json:"entity"`
	Seq    int64  `json:"seq"`
}

// Apply runs queued operations atomically: either all succeed or the store is
// left untouched. Placeholders "$tx.N" in submitted data are replaced with the
// seq produced by operation N.
func (s *Store) Apply(ops []queuedOp) ([]OpResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.snapshotLocked()
	results := make([]OpResult, 0, len(ops))
	for i, op := range ops {
		var (
			seq int64
			err error
		)
		switch op.Kind {
		case opSubmit:
			seq, err = s.submitLocked(op.Entity, resolveRefs(op.Data, results))
		case opDelete:
			seq = op.Seq
			err = s.deleteLocked(op.Entity, op.Seq, op.Hard)
		default:
			err = fmt.Errorf("unknown operation %q", op.Kind)
		}
		if err != nil {
			s.restoreLocked(snapshot)
			return nil, fmt.Errorf("operation %d (%s %s): %w", i, op.Kind, op.Entity, err)
		}
		results = append(results, OpResult{Op: op.Kind, Entity: op.Entity, Seq: seq})
	}
	return results, nil
}

type storeSnapshot struct {
	tables      map[string]*table
	history     []HistoryEntry
	nextHistory int64
}

func (s *Store) snapshotLocked() storeSnapshot {
	tables := make(map[string]*table, len(s.tables))
	for name, t := range s.tables {
		rows := make(map[int64]*row, len(t.rows))
		for seq, r := range t.rows {
			rows[seq] = &row{data: maps.Clone(r.data), deleted: r.deleted}
		}
		tables[name] = &table{nextSeq: t.nextSeq, rows: rows}
	}
	return storeSnapshot{
		tables:      tables,
		history:     append([]HistoryEntry(nil), s.history...),
		nextHistory: s.nextHistory,
	}
}

func (s *Store) restoreLocked(snap storeSnapshot) {
	s.tables = snap.tables
	s.history = snap.history
	s.nextHistory = snap.nextHistory
}

func (s *Store) record(entityName string, seq int64, action string, before, after map[string]any) {
	s.nextHistory++
	s.history = append(s.history, HistoryEntry{
		HistorySeq: s.nextHistory,
		Entity:     entityName,
		Seq:        seq,
		Action:     action,
		Before:     before,
		After:      maps.Clone(after),
		CreatedAt:  s.now().Unix(),
	})
}

func resolveRefs(data map[string]any, results []OpResult) map[string]any {
	out := maps.Clone(data)
	for k, v := range out {
		str, ok := v.(string)
		if !ok || !entity.Ref(str).Pending() {
			continue
		}
		idx, err := strconv.Atoi(strings.TrimPrefix(str, "$tx."))
		if err != nil || idx < 0 || idx >= len(results) {
			continue
		}
		out[k] = results[idx].Seq
	}
	return out
}

func toSeq(v any) (int64, error) {
	switch n := v.(type) {
	case float64:
		return int64(n), nil
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case string:
		seq, err := strconv.ParseInt(n, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid seq %q", n)
		}
		return seq, nil
	default:
		return 0, fmt.Errorf("invalid seq %v", v)
	}
}

var filterOps = map[string]func(cmp int, ok bool) bool{
	"eq":  func(cmp int, ok bool) bool { return ok && cmp == 0 },
	"ne":  func(cmp int, ok bool) bool { return !ok || cmp != 0 },
	"gt":  func(cmp int, ok bool) bool { return ok && cmp > 0 },
	"gte": func(cmp int, ok bool) bool { return ok && cmp >= 0 },
	"lt":  func(cmp int, ok bool) bool { return ok && cmp < 0 },
	"lte": func(cmp int, ok bool) bool { return ok && cmp <= 0 },
	// like and in are handled in matchOne
	"like": nil,
	"in":   nil,
}

func matchAll(rec map[string]any, filters []entity.Filter) bool {
	for _, f := range filters {
		if !matchOne(rec[f.Field], f) {
			return false
		}
	}
	return true
}

func matchOne(v any, f entity.Filter) bool {
	switch f.Op {
	case "like":
		pattern := strings.ToLower(strings.Trim(fmt.Sprint(f.Value), "%"))
		return v != nil && strings.Contains(strings.ToLower(fmt.Sprint(v)), pattern)
	case "in":
		list, ok := f.Value.([]any)
		if !ok {
			return false
		}
		for _, candidate := range list {
			if cmp, ok := compare(v, candidate); ok && cmp == 0 {
				return true
			}
		}
		return false
	default:
		cmp, ok := compare(v, f.Value)
		return filterOps[f.Op](cmp, ok)
	}
}

// compare orders numbers numerically and everything else as strings.
func compare(a, b any) (int, bool) {
	if a == nil || b == nil {
		return 0, a == nil && b == nil
	}
	if x, okA := toFloat(a); okA {
		if y, okB := toFloat(b); okB {
			switch {
			case x < y:
				return -1, true
			case x > y:
				return 1, true
			default:
				return 0, true
			}
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b)), true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

// sortRows orders by seq, or by orderBy ("field" ascending, "-field" descending).
func sortRows(rows []map[string]any, orderBy string) {
	field, desc := "seq", false
	if orderBy != "" {
		field = strings.TrimPrefix(orderBy, "-")
		desc = strings.HasPrefix(orderBy, "-")
	}
	sort.SliceStable(rows, func(i, j int) bool {
		cmp, _ := compare(rows[i][field], rows[j][field])
		if cmp == 0 {
			cmp, _ = compare(rows[i]["seq"], rows[j]["seq"])
		}
		if desc {
			return cmp > 0
		}
		return cmp < 0
	})
}

func paginate[T any](items []T, page, limit int) []T {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		return items
	}
	// Compare before multiplying so a huge page or limit cannot overflow.
	pages := len(items) / limit
	if len(items)%limit != 0 {
		pages++
	}
	if page-1 >= pages {
		return []T{}
	}
	start := (page - 1) * limit
	end := len(items)
	if limit < end-start {
		end = start + limit
	}
	return items[start:end]
}
