// Package errlog provides a process-local rolling log of classified errors,
// bounded per operation by capacity and by record age. It backs observability
// summaries only; nothing reads it for control flow.
package errlog

import (
	"container/list"
	"sync"
	"time"
)

// Record is one classified error occurrence.
type Record struct {
	ID        string    `json:"id"`
	Operation string    `json:"operation"`
	Category  string    `json:"category"`
	Severity  string    `json:"severity"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Log is a scoped rolling error log with per-operation LRU eviction and
// lazy age-based expiry.
type Log struct {
	mu           sync.Mutex
	maxPerOp     int
	ttl          time.Duration
	opLists      map[string]*list.List // operation -> list of *Record (front = most recent)
	totalRecords int
}

// New returns a Log retaining at most maxPerOp records per operation, each
// for at most ttl. ttl <= 0 disables age expiry.
func New(maxPerOp int, ttl time.Duration) *Log {
	return &Log{
		maxPerOp: maxPerOp,
		ttl:      ttl,
		opLists:  make(map[string]*list.List),
	}
}

// Append records one error occurrence.
func (l *Log) Append(r Record) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ll, ok := l.opLists[r.Operation]
	if !ok {
		ll = list.New()
		l.opLists[r.Operation] = ll
	}

	// Evict from back when at capacity.
	if ll.Len() >= l.maxPerOp {
		back := ll.Back()
		if back != nil {
			ll.Remove(back)
			l.totalRecords--
		}
	}

	rec := r
	ll.PushFront(&rec)
	l.totalRecords++
}

// Recent returns unexpired records for one operation, newest first.
func (l *Log) Recent(operation string) []Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	ll, ok := l.opLists[operation]
	if !ok {
		return nil
	}
	return l.collect(operation, ll, time.Time{})
}

// Since returns unexpired records across all operations with a timestamp
// after cutoff, newest first within each operation.
func (l *Log) Since(cutoff time.Time) []Record {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []Record
	for op, ll := range l.opLists {
		out = append(out, l.collect(op, ll, cutoff)...)
	}
	return out
}

// collect walks one operation list, dropping expired entries as it goes.
// Caller holds l.mu.
func (l *Log) collect(operation string, ll *list.List, cutoff time.Time) []Record {
	now := time.Now()
	var result []Record
	var toRemove []*list.Element

	for elem := ll.Front(); elem != nil; elem = elem.Next() {
		r := elem.Value.(*Record)
		if l.ttl > 0 && now.Sub(r.Timestamp) > l.ttl {
			toRemove = append(toRemove, elem)
			continue
		}
		if !cutoff.IsZero() && !r.Timestamp.After(cutoff) {
			continue
		}
		result = append(result, *r)
	}

	for _, elem := range toRemove {
		ll.Remove(elem)
		l.totalRecords--
	}
	if ll.Len() == 0 {
		delete(l.opLists, operation)
	}

	return result
}

// Len returns the total record count, including not-yet-evicted expired entries.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.totalRecords
}
