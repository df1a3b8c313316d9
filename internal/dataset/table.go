// Package dataset loads observed-data tables for fitting from CSV files and
// SQLite databases.
package dataset

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/rcliao/pksim/internal/model"
)

// Table is one observed-data table. Times has no missing entries; a nil
// cell in Columns is a missing observation.
type Table struct {
	Name    string
	Times   []float64
	Order   []string // observed column names in source order
	Columns map[string][]*float64
}

// Rows is the number of observation rows.
func (t *Table) Rows() int { return len(t.Times) }

// Observed converts the table to the request form keyed by column name.
func (t *Table) Observed() model.Observed {
	obs := make(model.Observed, len(t.Columns)+1)
	times := make([]*float64, len(t.Times))
	for i, v := range t.Times {
		times[i] = model.Float(v)
	}
	obs[model.ObservedTimeColumn] = times
	for name, vals := range t.Columns {
		obs[name] = vals
	}
	return obs
}

// Group builds a fitting group from the table. mappings go from observed
// column to model variable.
func (t *Table) Group(doses []model.Dose, mappings map[string]string) model.FittingGroup {
	return model.FittingGroup{Name: t.Name, Doses: doses, Observed: t.Observed(), Mappings: mappings}
}

type builder struct {
	table   *Table
	timeIdx int
}

// newBuilder locates the time column in header, matching case-insensitively.
func newBuilder(name string, header []string) (*builder, error) {
	b := &builder{table: &Table{Name: name, Columns: make(map[string][]*float64)}, timeIdx: -1}
	for i, h := range header {
		h = strings.TrimSpace(h)
		if strings.EqualFold(h, model.ObservedTimeColumn) {
			if b.timeIdx >= 0 {
				return nil, fmt.Errorf("%w: %s: more than one time column", model.ErrInvalidInput, name)
			}
			b.timeIdx = i
			continue
		}
		if _, dup := b.table.Columns[h]; dup || h == "" {
			return nil, fmt.Errorf("%w: %s: column %d has an empty or duplicate name %q", model.ErrInvalidInput, name, i+1, h)
		}
		b.table.Columns[h] = nil
		b.table.Order = append(b.table.Order, h)
	}
	if b.timeIdx < 0 {
		return nil, fmt.Errorf("%w: %s: %q column missing", model.ErrInvalidInput, name, model.ObservedTimeColumn)
	}
	return b, nil
}

// add appends one row. Rows without a numeric time are skipped.
func (b *builder) add(cells []*float64) bool {
	tp := cells[b.timeIdx]
	if tp == nil {
		return false
	}
	b.table.Times = append(b.table.Times, *tp)
	k := 0
	for i, c := range cells {
		if i == b.timeIdx {
			continue
		}
		name := b.table.Order[k]
		b.table.Columns[name] = append(b.table.Columns[name], c)
		k++
	}
	return true
}

// parseCell reads a numeric cell. Empty, NA, NaN and unparsable text are
// missing.
func parseCell(s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "NA") {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
