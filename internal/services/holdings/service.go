// Package holdings manages the user's fund list and its display order.
package holdings

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bobmcallan/fundwatch/internal/common"
	"github.com/bobmcallan/fundwatch/internal/interfaces"
	"github.com/bobmcallan/fundwatch/internal/models"
)

var (
	ErrDuplicateCode = errors.New("fund code already in holdings")
	ErrNotFound      = errors.New("holding not found")
	ErrEmptyHolding  = errors.New("holding needs a name containing a 6-digit fund code")
)

var (
	codeInName      = regexp.MustCompile(`(\d{6})`)
	bareCode        = regexp.MustCompile(`^\d{6}$`)
	resolvedPattern = regexp.MustCompile(`^\d{6}\s{2}.+`)
)

// ParseCode returns the first 6-digit run in name, or "".
func ParseCode(name string) string {
	m := codeInName.FindStringSubmatch(name)
	if m == nil {
		return ""
	}
	return m[1]
}

// IsResolved reports whether name already has the "{code}  {fund name}" form.
func IsResolved(name string) bool {
	return resolvedPattern.MatchString(name)
}

// Service implements interfaces.HoldingsService.
type Service struct {
	store    interfaces.StorageManager
	quotes   interfaces.QuoteClient
	logger   *common.Logger
	mu       sync.Mutex
	hookMu   sync.RWMutex
	onChange func()
	now      func() time.Time
}

// NewService creates a holdings service. quotes may be nil, in which case names are not resolved.
func NewService(store interfaces.StorageManager, quotes interfaces.QuoteClient, logger *common.Logger) *Service {
	if logger == nil {
		logger = common.NewSilentLogger()
	}
	return &Service{
		store:  store,
		quotes: quotes,
		logger: logger,
		now:    time.Now,
	}
}

// OnChange registers fn to run after every successful mutation.
func (s *Service) OnChange(fn func()) {
	s.hookMu.Lock()
	s.onChange = fn
	s.hookMu.Unlock()
}

// changed runs the change hook. Callers may hold s.mu, so the hook is read under its own lock.
func (s *Service) changed() {
	s.hookMu.RLock()
	fn := s.onChange
	s.hookMu.RUnlock()
	if fn != nil {
		fn()
	}
}

// List returns the stored holdings in stored order.
func (s *Service) List(ctx context.Context) ([]models.Holding, error) {
	return s.store.LoadHoldings(ctx)
}

// normalize derives Code from Name, clamps capital to finite non-negative values and trims the name.
// A bare 6-digit Code stands in for a missing Name; any other caller-supplied Code is ignored.
func normalize(h models.Holding) models.Holding {
	h.Name = strings.TrimSpace(h.Name)
	if code := strings.TrimSpace(h.Code); h.Name == "" && bareCode.MatchString(code) {
		h.Name = code
	}
	h.Code = ParseCode(h.Name)
	h.CapitalA = clampCapital(h.CapitalA)
	h.CapitalB = clampCapital(h.CapitalB)
	return h
}

func clampCapital(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return 0
	}
	return v
}

// resolveName replaces an unresolved name with "{code}  {fund name}". Failures keep the typed name.
func (s *Service) resolveName(ctx context.Context, h *models.Holding) {
	if s.quotes == nil || h.Code == "" || IsResolved(h.Name) {
		return
	}
	info, err := s.quotes.FetchInfo(ctx, h.Code)
	if err != nil {
		s.logger.Warn().Err(err).Str("code", h.Code).Msg("Could not resolve fund name")
		return
	}
	h.Name = h.Code + "  " + info.Name
}

func hasCode(list []models.Holding, code, exceptID string) bool {
	if code == "" {
		return false
	}
	for _, h := range list {
		if h.Code == code && h.ID != exceptID {
			return true
		}
	}
	return false
}

// Add appends a holding after resolving its name.
func (s *Service) Add(ctx context.Context, h models.Holding) (*models.Holding, error) {
	h = normalize(h)
	if h.Code == "" {
		return nil, ErrEmptyHolding
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.store.LoadHoldings(ctx)
	if err != nil {
		return nil, fmt.Errorf("load holdings: %w", err)
	}
	if hasCode(list, h.Code, "") {
		return nil, fmt.Errorf("%s: %w", h.Code, ErrDuplicateCode)
	}

	s.resolveName(ctx, &h)
	h.ID = uuid.New().String()
	list = append(list, h)

	if err := s.store.SaveHoldings(ctx, list); err != nil {
		return nil, fmt.Errorf("save holdings: %w", err)
	}
	s.logger.Info().Str("code", h.Code).Str("name", h.Name).Msg("Holding added")
	s.changed()
	return &h, nil
}

// AddFromSearch appends each selected search result that is not already held.
// It returns how many were added and how many were skipped as duplicates.
func (s *Service) AddFromSearch(ctx context.Context, picks []models.FundSearchResult) (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.store.LoadHoldings(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("load holdings: %w", err)
	}

	added, dupes := 0, 0
	for _, p := range picks {
		if p.Code == "" {
			continue
		}
		if hasCode(list, p.Code, "") {
			dupes++
			continue
		}
		list = append(list, models.Holding{ID: uuid.New().String(), Name: p.Label(), Code: p.Code})
		added++
	}

	if added > 0 {
		if err := s.store.SaveHoldings(ctx, list); err != nil {
			return 0, 0, fmt.Errorf("save holdings: %w", err)
		}
		s.changed()
	}
	s.logger.Info().Int("added", added).Int("duplicates", dupes).Msg("Holdings added from search")
	return added, dupes, nil
}

// Update replaces the holding with the same ID.
func (s *Service) Update(ctx context.Context, h models.Holding) (*models.Holding, error) {
	h = normalize(h)

	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.store.LoadHoldings(ctx)
	if err != nil {
		return nil, fmt.Errorf("load holdings: %w", err)
	}

	idx := -1
	for i := range list {
		if list[i].ID == h.ID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("%s: %w", h.ID, ErrNotFound)
	}
	if hasCode(list, h.Code, h.ID) {
		return nil, fmt.Errorf("%s: %w", h.Code, ErrDuplicateCode)
	}
	if h.Code != list[idx].Code || h.Name != list[idx].Name {
		s.resolveName(ctx, &h)
	}
	list[idx] = h

	if err := s.store.SaveHoldings(ctx, list); err != nil {
		return nil, fmt.Errorf("save holdings: %w", err)
	}
	s.changed()
	return &h, nil
}

// Remove deletes the holding with id.
func (s *Service) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.store.LoadHoldings(ctx)
	if err != nil {
		return fmt.Errorf("load holdings: %w", err)
	}

	out := list[:0]
	found := false
	for _, h := range list {
		if h.ID == id {
			found = true
			continue
		}
		out = append(out, h)
	}
	if !found {
		return fmt.Errorf("%s: %w", id, ErrNotFound)
	}

	if err := s.store.SaveHoldings(ctx, out); err != nil {
		return fmt.Errorf("save holdings: %w", err)
	}
	s.changed()
	return nil
}

// ReplaceAll stores holdings as the whole list, in the given order.
// Empty rows are dropped; later rows repeating an earlier code are dropped too.
func (s *Service) ReplaceAll(ctx context.Context, holdings []models.Holding) ([]models.Holding, error) {
	out := make([]models.Holding, 0, len(holdings))
	seen := make(map[string]bool)
	for _, h := range holdings {
		h = normalize(h)
		if h.IsEmpty() {
			continue
		}
		if h.Code != "" {
			if seen[h.Code] {
				continue
			}
			seen[h.Code] = true
		}
		if h.ID == "" {
			h.ID = uuid.New().String()
		}
		out = append(out, h)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.SaveHoldings(ctx, out); err != nil {
		return nil, fmt.Errorf("save holdings: %w", err)
	}
	s.logger.Info().Int("count", len(out)).Msg("Holdings replaced")
	s.changed()
	return out, nil
}

var _ interfaces.HoldingsService = (*Service)(nil)
