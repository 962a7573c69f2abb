package orderbook

import "sync"

// Store owns every token's InMemoryOrderBook plus the market_id -> (yes
// token, no token) registration needed to compose a MarketOrderBook view.
// It is the single piece of mutable state shared between the market-data
// feed (writer) and strategies (readers) — both access it only through
// these methods, never a shared pointer to book internals, so readers
// always see either a pre- or post-update book, never a half-applied one.
type Store struct {
	mu      sync.RWMutex
	books   map[string]*InMemoryOrderBook // token_id -> book
	markets map[string]marketRegistration // market_id -> token pair
}

type marketRegistration struct {
	yesTokenID  string
	noTokenID   string
	conditionID string
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{
		books:   make(map[string]*InMemoryOrderBook),
		markets: make(map[string]marketRegistration),
	}
}

// BookFor returns the book for tokenID, creating an empty one if absent.
func (s *Store) BookFor(tokenID string) *InMemoryOrderBook {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.books[tokenID]
	if !ok {
		b = NewInMemoryOrderBook(tokenID)
		s.books[tokenID] = b
		BooksTracked.Set(float64(len(s.books)))
	}
	return b
}

// Book returns the existing book for tokenID, if any, without creating one.
func (s *Store) Book(tokenID string) (*InMemoryOrderBook, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.books[tokenID]
	return b, ok
}

// RegisterMarket associates a market with its YES/NO token ids and its
// on-chain condition id so MarketBook can compose a MarketOrderBook view
// for it and downstream signals can carry the condition id through to
// settlement.
func (s *Store) RegisterMarket(marketID, yesTokenID, noTokenID, conditionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markets[marketID] = marketRegistration{yesTokenID: yesTokenID, noTokenID: noTokenID, conditionID: conditionID}
}

// UnregisterMarket removes a market's registration; the underlying token
// books are left in place (they're cheap, and may still be in flight from
// the feed for a moment after unsubscribe).
func (s *Store) UnregisterMarket(marketID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.markets, marketID)
}

// MarketBook composes the current MarketOrderBook view for marketID, or
// false if the market isn't registered.
func (s *Store) MarketBook(marketID string) (*MarketOrderBook, bool) {
	s.mu.RLock()
	reg, ok := s.markets[marketID]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}

	yesBook, _ := s.Book(reg.yesTokenID)
	noBook, _ := s.Book(reg.noTokenID)
	return &MarketOrderBook{
		MarketID:    marketID,
		ConditionID: reg.conditionID,
		YesBook:     yesBook,
		NoBook:      noBook,
	}, true
}

// RegisteredMarkets returns the ids of every currently registered market.
func (s *Store) RegisteredMarkets() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.markets))
	for id := range s.markets {
		ids = append(ids, id)
	}
	return ids
}

// TokensForMarket returns the yes/no token ids registered for marketID.
func (s *Store) TokensForMarket(marketID string) (yesTokenID, noTokenID string, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	reg, ok := s.markets[marketID]
	return reg.yesTokenID, reg.noTokenID, ok
}
