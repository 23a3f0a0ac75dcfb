package ledger

import (
	"context"
	"fmt"
	"sync"
)

// =============================================================================
// MEMORY LEDGER - In-memory implementation (for testing/dev)
// =============================================================================

// Memory keeps rows in a slice guarded by a RWMutex. Each call is atomic on
// its own, which is exactly as much as a real worksheet offers.
type Memory struct {
	mu   sync.RWMutex
	rows []Row

	// returned (wrapped as ErrUnavailable) by the next call, then cleared
	failNext error
}

// NewMemory creates a ledger seeded with the given rows. Pass a header row to
// start with an empty but initialized table, or nothing for a bare table.
func NewMemory(rows ...Row) *Memory {
	m := &Memory{}
	for _, r := range rows {
		m.rows = append(m.rows, r.Clone())
	}
	return m
}

func (m *Memory) ReadAll(_ context.Context) ([]Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure("read all"); err != nil {
		return nil, err
	}

	out := make([]Row, len(m.rows))
	for i, r := range m.rows {
		out[i] = r.Clone()
	}
	return out, nil
}

func (m *Memory) AppendRow(_ context.Context, row Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure("append row"); err != nil {
		return err
	}

	m.rows = append(m.rows, row.Clone())
	return nil
}

func (m *Memory) UpdateCells(_ context.Context, rowIndex int, cells []Cell) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure("update cells"); err != nil {
		return err
	}

	if rowIndex < 0 || rowIndex >= len(m.rows) {
		return fmt.Errorf("%w: %d", ErrRowOutOfRange, rowIndex)
	}
	updated, err := ApplyCells(m.rows[rowIndex], cells)
	if err != nil {
		return err
	}
	m.rows[rowIndex] = updated
	return nil
}

// =============================================================================
// OUT-OF-BAND EDITS - What another spreadsheet user might do
// =============================================================================

// InsertRow places row at index, shifting later rows down.
func (m *Memory) InsertRow(index int, row Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if index < 0 || index > len(m.rows) {
		return fmt.Errorf("%w: %d", ErrRowOutOfRange, index)
	}
	m.rows = append(m.rows, nil)
	copy(m.rows[index+1:], m.rows[index:])
	m.rows[index] = row.Clone()
	return nil
}

// DeleteRow removes the row at index, shifting later rows up.
func (m *Memory) DeleteRow(index int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if index < 0 || index >= len(m.rows) {
		return fmt.Errorf("%w: %d", ErrRowOutOfRange, index)
	}
	m.rows = append(m.rows[:index], m.rows[index+1:]...)
	return nil
}

// Len returns the number of rows including the header.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rows)
}

// FailNext makes the next ledger call fail with err wrapped as ErrUnavailable.
func (m *Memory) FailNext(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = err
}

func (m *Memory) takeFailure(op string) error {
	if m.failNext == nil {
		return nil
	}
	err := m.failNext
	m.failNext = nil
	return Unavailable(op, err)
}
