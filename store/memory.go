package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/avelychko/bookmarket-backend/models"
)

// MemoryStore is an in-process Store used by tests and local development.
// A single mutex serializes transitions, which gives the same exactly-once
// guarantee the database row locks provide.
type MemoryStore struct {
	mu           sync.Mutex
	users        map[uint]*models.User
	listings     map[uint]*models.BookListing
	transactions map[uint]*models.Transaction
	nextID       uint

	// TransitionErr forces Transition to fail for specific transaction ids.
	// Test hook for sweep failure isolation.
	TransitionErr map[uint]error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:        make(map[uint]*models.User),
		listings:     make(map[uint]*models.BookListing),
		transactions: make(map[uint]*models.Transaction),
		nextID:       1,
	}
}

func (s *MemoryStore) allocID() uint {
	id := s.nextID
	s.nextID++
	return id
}

func (s *MemoryStore) CreateUser(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if user.ID == 0 {
		user.ID = s.allocID()
	}
	user.CreatedAt = time.Now()
	cp := *user
	s.users[user.ID] = &cp
	return nil
}

func (s *MemoryStore) CreateListing(_ context.Context, listing *models.BookListing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if listing.ID == 0 {
		listing.ID = s.allocID()
	}
	listing.CreatedAt = time.Now()
	listing.UpdatedAt = listing.CreatedAt
	cp := *listing
	s.listings[listing.ID] = &cp
	return nil
}

func (s *MemoryStore) GetListing(_ context.Context, id uint) (*models.BookListing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	listing, ok := s.listings[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *listing
	return &cp, nil
}

func (s *MemoryStore) ListListings(_ context.Context) ([]models.BookListing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.BookListing, 0, len(s.listings))
	for _, l := range s.listings {
		out = append(out, *l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (s *MemoryStore) CreateTransaction(_ context.Context, txn *models.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if txn.ID == 0 {
		txn.ID = s.allocID()
	}
	txn.CreatedAt = time.Now()
	txn.UpdatedAt = txn.CreatedAt
	cp := *txn
	s.transactions[txn.ID] = &cp
	return nil
}

func (s *MemoryStore) GetTransaction(_ context.Context, id uint) (*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	txn, ok := s.transactions[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *txn
	return &cp, nil
}

func (s *MemoryStore) GetTransactionByProviderID(_ context.Context, providerID string) (*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, txn := range s.transactions {
		if txn.ProviderPaymentID != nil && *txn.ProviderPaymentID == providerID {
			cp := *txn
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) ListTransactionsByBuyer(_ context.Context, buyerID uint) ([]models.Transaction, error) {
	return s.listTransactions(func(t *models.Transaction) bool { return t.BuyerID == buyerID })
}

func (s *MemoryStore) ListTransactionsBySeller(_ context.Context, sellerID uint) ([]models.Transaction, error) {
	return s.listTransactions(func(t *models.Transaction) bool { return t.SellerID == sellerID })
}

func (s *MemoryStore) listTransactions(match func(*models.Transaction) bool) ([]models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Transaction
	for _, txn := range s.transactions {
		if !match(txn) {
			continue
		}
		cp := *txn
		if listing, ok := s.listings[cp.ListingID]; ok {
			lcp := *listing
			cp.Listing = &lcp
		}
		if buyer, ok := s.users[cp.BuyerID]; ok {
			ucp := *buyer
			cp.Buyer = &ucp
		}
		if seller, ok := s.users[cp.SellerID]; ok {
			ucp := *seller
			cp.Seller = &ucp
		}
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (s *MemoryStore) ListExpiredSellerConfirmed(_ context.Context, now time.Time) ([]uint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []uint
	for _, txn := range s.transactions {
		if txn.Status != models.StatusSellerConfirmed {
			continue
		}
		if txn.BuyerConfirmationDeadline != nil && !txn.BuyerConfirmationDeadline.After(now) {
			ids = append(ids, txn.ID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (s *MemoryStore) Transition(_ context.Context, id uint, fn TransitionFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err, ok := s.TransitionErr[id]; ok {
		return err
	}

	txn, ok := s.transactions[id]
	if !ok {
		return ErrNotFound
	}
	listing, ok := s.listings[txn.ListingID]
	if !ok {
		return ErrNotFound
	}

	// Work on copies so a failed fn leaves stored state untouched.
	txnCopy := *txn
	listingCopy := *listing
	if err := fn(&txnCopy, &listingCopy); err != nil {
		return err
	}

	now := time.Now()
	txnCopy.UpdatedAt = now
	listingCopy.UpdatedAt = now
	s.transactions[id] = &txnCopy
	s.listings[listing.ID] = &listingCopy
	return nil
}
