package catalog

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryRepository keeps products in a table indexed by id. Each row has its
// own lock so stock adjustments on different products never contend.
type MemoryRepository struct {
	mu   sync.RWMutex
	rows map[string]*row
}

type row struct {
	mu sync.Mutex
	p  Product
}

func NewMemoryRepository(products ...Product) *MemoryRepository {
	r := &MemoryRepository{rows: make(map[string]*row)}
	now := time.Now().UTC()
	for _, p := range products {
		if p.CreatedAt.IsZero() {
			p.CreatedAt, p.UpdatedAt = now, now
		}
		r.rows[p.ID] = &row{p: p}
	}
	return r
}

func (r *MemoryRepository) lookup(id string) (*row, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rw, ok := r.rows[id]
	return rw, ok
}

func (r *MemoryRepository) GetProduct(ctx context.Context, id string) (*Product, error) {
	rw, ok := r.lookup(id)
	if !ok {
		return nil, ErrProductNotFound
	}
	rw.mu.Lock()
	defer rw.mu.Unlock()
	p := rw.p
	return &p, nil
}

func (r *MemoryRepository) GetStock(ctx context.Context, id string) (int, error) {
	p, err := r.GetProduct(ctx, id)
	if err != nil {
		return 0, err
	}
	return p.Stock, nil
}

// AdjustStock runs fn under the row lock and stores the stock it returns.
// fn sees the current stock; returning an error leaves the row untouched.
func (r *MemoryRepository) AdjustStock(ctx context.Context, id string, fn func(p Product) (int, error)) error {
	rw, ok := r.lookup(id)
	if !ok {
		return ErrProductNotFound
	}
	rw.mu.Lock()
	defer rw.mu.Unlock()
	next, err := fn(rw.p)
	if err != nil {
		return err
	}
	if next < 0 {
		return fmt.Errorf("stock for %s would become negative", id)
	}
	rw.p.Stock = next
	rw.p.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *MemoryRepository) Create(ctx context.Context, p *Product) error {
	if err := p.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.rows[p.ID]; exists {
		return fmt.Errorf("%w: product %s already exists", ErrInvalidProduct, p.ID)
	}
	now := time.Now().UTC()
	p.Active = true
	p.CreatedAt, p.UpdatedAt = now, now
	r.rows[p.ID] = &row{p: *p}
	return nil
}

func (r *MemoryRepository) Update(ctx context.Context, id string, patch Patch) (*Product, error) {
	rw, ok := r.lookup(id)
	if !ok {
		return nil, ErrProductNotFound
	}
	rw.mu.Lock()
	defer rw.mu.Unlock()
	next := rw.p
	if err := patch.apply(&next); err != nil {
		return nil, err
	}
	next.UpdatedAt = time.Now().UTC()
	rw.p = next
	out := next
	return &out, nil
}

func (r *MemoryRepository) Deactivate(ctx context.Context, id string) error {
	rw, ok := r.lookup(id)
	if !ok {
		return ErrProductNotFound
	}
	rw.mu.Lock()
	defer rw.mu.Unlock()
	rw.p.Active = false
	rw.p.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *MemoryRepository) List(ctx context.Context, f ListFilter) ([]*Product, int, error) {
	f = normalizeFilter(f)

	r.mu.RLock()
	rows := make([]*row, 0, len(r.rows))
	for _, rw := range r.rows {
		rows = append(rows, rw)
	}
	r.mu.RUnlock()

	var matched []*Product
	for _, rw := range rows {
		rw.mu.Lock()
		p := rw.p
		rw.mu.Unlock()
		if !p.Active || (f.Category != "" && p.Category != f.Category) {
			continue
		}
		matched = append(matched, &p)
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].Name != matched[j].Name {
			return matched[i].Name < matched[j].Name
		}
		return matched[i].ID < matched[j].ID
	})

	total := len(matched)
	if f.Offset >= total {
		return []*Product{}, total, nil
	}
	end := f.Offset + f.Limit
	if end > total {
		end = total
	}
	return matched[f.Offset:end], total, nil
}

var _ Repository = (*MemoryRepository)(nil)
