package holdings

import (
	"context"
	"math"
	"sort"

	"github.com/bobmcallan/fundwatch/internal/models"
)

// SortPreference returns the stored preference, nil for original order.
func (s *Service) SortPreference(ctx context.Context) (*models.SortPreference, error) {
	return s.store.LoadSortPreference(ctx)
}

// SetSortPreference stores pref; nil restores original order.
func (s *Service) SetSortPreference(ctx context.Context, pref *models.SortPreference) error {
	if err := s.store.SaveSortPreference(ctx, pref); err != nil {
		return err
	}
	s.changed()
	return nil
}

// CycleSort advances the header state for field: none → desc → asc → none.
// Selecting a different field starts that field at desc.
func (s *Service) CycleSort(ctx context.Context, field models.SortField) (*models.SortPreference, error) {
	s.mu.Lock()
	cur, err := s.store.LoadSortPreference(ctx)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	next := NextSort(cur, field)
	if err := s.SetSortPreference(ctx, next); err != nil {
		return nil, err
	}
	return next, nil
}

// NextSort is the pure transition used by CycleSort.
func NextSort(cur *models.SortPreference, field models.SortField) *models.SortPreference {
	switch {
	case cur == nil || cur.Field != field:
		return &models.SortPreference{Field: field, Order: models.SortDesc}
	case cur.Order == models.SortDesc:
		return &models.SortPreference{Field: field, Order: models.SortAsc}
	default:
		return nil
	}
}

// Order returns row indices in display order. NaN values always sort last; ties keep stored order.
func Order(rows []models.ProfitRow, pref *models.SortPreference) []int {
	idx := make([]int, len(rows))
	for i := range idx {
		idx[i] = i
	}
	if pref == nil {
		return idx
	}

	value := func(r models.ProfitRow) float64 {
		if pref.Field == models.SortByProfit {
			if math.IsNaN(r.Percent) {
				return math.NaN()
			}
			return r.RowProfit
		}
		return r.Percent
	}

	sort.SliceStable(idx, func(a, b int) bool {
		av, bv := value(rows[idx[a]]), value(rows[idx[b]])
		aNaN, bNaN := math.IsNaN(av), math.IsNaN(bv)
		switch {
		case aNaN && bNaN:
			return false
		case aNaN:
			return false
		case bNaN:
			return true
		case pref.Order == models.SortAsc:
			return av < bv
		default:
			return av > bv
		}
	})
	return idx
}
