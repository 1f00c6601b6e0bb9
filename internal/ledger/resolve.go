package ledger

import (
	"slices"
	"strings"

	"outletpos/backend/internal/domain"
)

// Resolver maps item references onto one outlet's inventory rows.
//
// Recipes and production components are authored against a canonical item
// id, but every outlet holds its own row for the same material. A reference
// resolves to the outlet row with that id, otherwise to the outlet row whose
// name matches the referenced template item.
type Resolver struct {
	outletID string
	local    map[string]domain.InventoryItem
	byName   map[string]domain.InventoryItem
	all      map[string]domain.InventoryItem
}

func NewResolver(outletID string, items []domain.InventoryItem) *Resolver {
	r := &Resolver{
		outletID: outletID,
		local:    make(map[string]domain.InventoryItem),
		byName:   make(map[string]domain.InventoryItem),
		all:      make(map[string]domain.InventoryItem, len(items)),
	}
	for _, item := range items {
		r.all[item.ID] = item
		if item.OutletID != outletID {
			continue
		}
		r.local[item.ID] = item
		key := NameKey(item.Name)
		if _, exists := r.byName[key]; !exists {
			r.byName[key] = item
		}
	}
	return r
}

// ResolveByIDThenName returns the outlet row a reference points at.
func (r *Resolver) ResolveByIDThenName(ref string) (domain.InventoryItem, bool) {
	if item, ok := r.local[ref]; ok {
		return item, true
	}
	template, ok := r.all[ref]
	if !ok {
		return domain.InventoryItem{}, false
	}
	return r.ByName(template.Name)
}

func (r *Resolver) ByName(name string) (domain.InventoryItem, bool) {
	item, ok := r.byName[NameKey(name)]
	return item, ok
}

// Items returns the outlet's own rows ordered by name.
func (r *Resolver) Items() []domain.InventoryItem {
	items := make([]domain.InventoryItem, 0, len(r.local))
	for _, item := range r.local {
		items = append(items, item)
	}
	slices.SortFunc(items, func(a, b domain.InventoryItem) int {
		return strings.Compare(NameKey(a.Name), NameKey(b.Name))
	})
	return items
}

func NameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
