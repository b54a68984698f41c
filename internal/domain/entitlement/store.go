package entitlement

import "sort"

// Store is the in-memory EntitlementRecord: at most one transaction per
// product identifier. It does no locking of its own; callers serialize access.
type Store struct {
	entries map[string]Transaction
}

func NewStore() *Store {
	return &Store{entries: make(map[string]Transaction)}
}

// Upsert stores tx unless the entry already held for the product was purchased
// later. It reports whether the store changed.
func (s *Store) Upsert(tx Transaction) bool {
	if existing, ok := s.entries[tx.ProductID]; ok && tx.PurchaseDate.Before(existing.PurchaseDate) {
		return false
	}
	s.entries[tx.ProductID] = tx
	return true
}

// All returns the held transactions ordered by product identifier.
func (s *Store) All() []Transaction {
	out := make([]Transaction, 0, len(s.entries))
	for _, tx := range s.entries {
		out = append(out, tx)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}

func (s *Store) Contains(productID string) bool {
	_, ok := s.entries[productID]
	return ok
}

func (s *Store) Get(productID string) (Transaction, bool) {
	tx, ok := s.entries[productID]
	return tx, ok
}

func (s *Store) Len() int {
	return len(s.entries)
}
