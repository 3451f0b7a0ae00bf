package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Tyrowin/timp-relay/internal/idgen"
)

// MemoryStore keeps the most recent extractions in process memory. When
// more than retention dates are held, the oldest received extraction is
// evicted.
type MemoryStore struct {
	mu        sync.RWMutex
	byDate    map[string]*Extraction
	order     []string // dates, oldest received first
	retention int
	nextClass int64

	log   zerolog.Logger
	newID idgen.Generator
	now   func() time.Time
}

// NewMemory returns an empty memory store. A non-positive retention uses
// DefaultRetention.
func NewMemory(retention int, log zerolog.Logger) *MemoryStore {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &MemoryStore{
		byDate:    make(map[string]*Extraction),
		retention: retention,
		log:       log.With().Str("component", "store").Str("driver", "memory").Logger(),
		newID:     idgen.Default,
		now:       time.Now,
	}
}

func (m *MemoryStore) Close() error { return nil }

// ReplaceByDate holds the write lock for the whole delete-then-insert, so
// replacements are atomic with respect to readers.
func (m *MemoryStore) ReplaceByDate(_ context.Context, sub Submission) (*Extraction, error) {
	if err := ValidDate(sub.Fecha); err != nil {
		return nil, err
	}

	ext := &Extraction{
		ID:          m.newID(),
		Fecha:       sub.Fecha,
		URL:         sub.URL,
		Timestamp:   sub.Timestamp,
		SourceRole:  sub.SourceRole,
		SourceID:    sub.SourceID,
		TotalClases: sub.TotalClases,
		ReceivedAt:  m.now().UTC(),
		Classes:     make([]Class, 0, len(sub.Classes)),
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byDate[sub.Fecha]; ok {
		delete(m.byDate, sub.Fecha)
		m.removeOrder(sub.Fecha)
	}

	for _, c := range sub.Classes {
		m.nextClass++
		c.ID = m.nextClass
		c.ExtractionID = ext.ID
		c.Fecha = ext.Fecha
		ext.Classes = append(ext.Classes, c)
	}
	m.byDate[ext.Fecha] = ext
	m.order = append(m.order, ext.Fecha)

	for len(m.order) > m.retention {
		oldest := m.order[0]
		m.order = m.order[1:]
		delete(m.byDate, oldest)
		m.log.Debug().Str("fecha", oldest).Msg("extraction evicted by retention")
	}

	return cloneExtraction(ext), nil
}

func (m *MemoryStore) removeOrder(fecha string) {
	for i, d := range m.order {
		if d == fecha {
			m.order = append(m.order[:i], m.order[i+1:]...)
			return
		}
	}
}

func (m *MemoryStore) ExtractionByDate(_ context.Context, fecha string) (*Extraction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ext, ok := m.byDate[fecha]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneExtraction(ext), nil
}

func (m *MemoryStore) ClassesByDate(_ context.Context, fecha string) ([]Class, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []Class{}
	if ext, ok := m.byDate[fecha]; ok {
		out = append(out, ext.Classes...)
	}
	return out, nil
}

func (m *MemoryStore) ClassesByInstructor(_ context.Context, instructor string) ([]Class, error) {
	key := instructorKey(instructor)
	return m.collect(func(c Class) bool { return instructorKey(c.Instructor) == key }), nil
}

func (m *MemoryStore) ClassesByDateRange(_ context.Context, from, to string) ([]Class, error) {
	return m.collect(func(c Class) bool { return c.Fecha >= from && c.Fecha <= to }), nil
}

// collect returns matching classes ordered by date, then submission order.
func (m *MemoryStore) collect(match func(Class) bool) []Class {
	m.mu.RLock()
	defer m.mu.RUnlock()

	dates := make([]string, 0, len(m.byDate))
	for d := range m.byDate {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	out := []Class{}
	for _, d := range dates {
		for _, c := range m.byDate[d].Classes {
			if match(c) {
				out = append(out, c)
			}
		}
	}
	return out
}

func (m *MemoryStore) RecentExtractions(_ context.Context, limit int) ([]Extraction, error) {
	limit = normalizeLimit(limit)

	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Extraction, 0, min(limit, len(m.order)))
	for i := len(m.order) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, *cloneExtraction(m.byDate[m.order[i]]))
	}
	return out, nil
}

func (m *MemoryStore) AggregateStats(_ context.Context) (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var st Stats
	instructors := make(map[string]struct{})
	for fecha, ext := range m.byDate {
		st.Extractions++
		if st.FirstDate == "" || fecha < st.FirstDate {
			st.FirstDate = fecha
		}
		if fecha > st.LastDate {
			st.LastDate = fecha
		}
		for _, c := range ext.Classes {
			st.Classes++
			st.Attendance.add(c.Attendance)
			if key := instructorKey(c.Instructor); key != "" {
				instructors[key] = struct{}{}
			}
		}
	}
	st.Instructors = len(instructors)
	return st, nil
}

func cloneExtraction(ext *Extraction) *Extraction {
	cp := *ext
	cp.Classes = append([]Class(nil), ext.Classes...)
	if cp.Classes == nil {
		cp.Classes = []Class{}
	}
	return &cp
}
