// Package testsupport provides an in-memory store implementing the domain
// persistence interfaces, used by service and scenario tests.
package testsupport

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/poolcard/poolcard_service/internal/domain/entities"
	domainerrors "github.com/poolcard/poolcard_service/internal/domain/errors"
)

type txKey struct{}

type memState struct {
	accounts  map[uuid.UUID]entities.LedgerAccount
	entries   []entities.LedgerEntry
	cards     map[uuid.UUID]entities.Card
	holds     map[uuid.UUID]entities.CardAuthHold
	wallets   map[uuid.UUID]entities.Wallet
	members   map[uuid.UUID][]entities.WalletMember
	requests  map[uuid.UUID]entities.WithdrawalRequest
	transfers map[uuid.UUID]entities.WithdrawalTransfer
	events    map[string]entities.BaasEvent
	processed map[string]entities.ProcessedEvent
	routes    map[string]entities.BaasFundingRoute
}

func newMemState() *memState {
	return &memState{
		accounts:  make(map[uuid.UUID]entities.LedgerAccount),
		cards:     make(map[uuid.UUID]entities.Card),
		holds:     make(map[uuid.UUID]entities.CardAuthHold),
		wallets:   make(map[uuid.UUID]entities.Wallet),
		members:   make(map[uuid.UUID][]entities.WalletMember),
		requests:  make(map[uuid.UUID]entities.WithdrawalRequest),
		transfers: make(map[uuid.UUID]entities.WithdrawalTransfer),
		events:    make(map[string]entities.BaasEvent),
		processed: make(map[string]entities.ProcessedEvent),
		routes:    make(map[string]entities.BaasFundingRoute),
	}
}

func (s *memState) clone() *memState {
	c := newMemState()
	for k, v := range s.accounts {
		c.accounts[k] = v
	}
	c.entries = append(c.entries, s.entries...)
	for k, v := range s.cards {
		c.cards[k] = v
	}
	for k, v := range s.holds {
		c.holds[k] = v
	}
	for k, v := range s.wallets {
		c.wallets[k] = v
	}
	for k, v := range s.members {
		c.members[k] = append([]entities.WalletMember(nil), v...)
	}
	for k, v := range s.requests {
		c.requests[k] = v
	}
	for k, v := range s.transfers {
		c.transfers[k] = v
	}
	for k, v := range s.events {
		c.events[k] = v
	}
	for k, v := range s.processed {
		c.processed[k] = v
	}
	for k, v := range s.routes {
		c.routes[k] = v
	}
	return c
}

// MemStore is an in-memory implementation of the persistence interfaces
// with transaction-in-context semantics: mutations inside RunInTx roll
// back together on error.
type MemStore struct {
	mu    sync.Mutex
	state *memState
}

// NewMemStore creates an empty store
func NewMemStore() *MemStore {
	return &MemStore{state: newMemState()}
}

// RunInTx serializes the callback and rolls the state back if it errors.
// A nested call joins the outer transaction.
func (m *MemStore) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}

	m.mu.Lock()
	snapshot := m.state.clone()
	m.mu.Unlock()

	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		m.mu.Lock()
		m.state = snapshot
		m.mu.Unlock()
		return err
	}
	return nil
}

func eventKey(providerName, providerEventID string) string {
	return providerName + "|" + providerEventID
}

func routeKey(providerName, providerAccountID, reference string) string {
	return strings.Join([]string{providerName, providerAccountID, reference}, "|")
}

// --- seeding helpers ---

// SeedWallet stores a wallet
func (m *MemStore) SeedWallet(wallet entities.Wallet) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.wallets[wallet.ID] = wallet
}

// SeedMember stores a wallet membership
func (m *MemStore) SeedMember(member entities.WalletMember) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.members[member.WalletID] = append(m.state.members[member.WalletID], member)
}

// SeedCard stores a card
func (m *MemStore) SeedCard(card entities.Card) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.cards[card.ID] = card
}

// AgeHold backdates a hold's creation time, for expiry tests
func (m *MemStore) AgeHold(id uuid.UUID, by time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if hold, ok := m.state.holds[id]; ok {
		hold.CreatedAt = hold.CreatedAt.Add(-by)
		m.state.holds[id] = hold
	}
}

// SeedRoute stores a funding route
func (m *MemStore) SeedRoute(route entities.BaasFundingRoute) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.routes[routeKey(route.ProviderName, route.ProviderAccountID, route.Reference)] = route
}

// --- ledger.Store ---

// CreateAccount stores a ledger account
func (m *MemStore) CreateAccount(_ context.Context, account *entities.LedgerAccount) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.state.accounts {
		if existing.CardID == account.CardID && existing.Scope == account.Scope {
			if !account.Scope.RequiresUser() {
				return domainerrors.AlreadyExistsError("LEDGER_ACCOUNT")
			}
			if existing.UserID != nil && account.UserID != nil && *existing.UserID == *account.UserID {
				return domainerrors.AlreadyExistsError("LEDGER_ACCOUNT")
			}
		}
	}
	m.state.accounts[account.ID] = *account
	return nil
}

// AccountByID fetches one account
func (m *MemStore) AccountByID(_ context.Context, id uuid.UUID) (*entities.LedgerAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	account, ok := m.state.accounts[id]
	if !ok {
		return nil, domainerrors.NotFoundError("LEDGER_ACCOUNT")
	}
	return &account, nil
}

// AccountsForUpdate returns the accounts in ascending id order
func (m *MemStore) AccountsForUpdate(_ context.Context, ids []uuid.UUID) ([]*entities.LedgerAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sorted := append([]uuid.UUID(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].String() < sorted[j].String() })

	var accounts []*entities.LedgerAccount
	for _, id := range sorted {
		if account, ok := m.state.accounts[id]; ok {
			a := account
			accounts = append(accounts, &a)
		}
	}
	return accounts, nil
}

// AccountByScope resolves a card's account by scope
func (m *MemStore) AccountByScope(_ context.Context, cardID uuid.UUID, scope entities.AccountScope, userID *uuid.UUID) (*entities.LedgerAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, account := range m.state.accounts {
		if account.CardID != cardID || account.Scope != scope {
			continue
		}
		if userID == nil {
			if account.UserID == nil {
				a := account
				return &a, nil
			}
			continue
		}
		if account.UserID != nil && *account.UserID == *userID {
			a := account
			return &a, nil
		}
	}
	return nil, domainerrors.NotFoundError("LEDGER_ACCOUNT")
}

// AccountsByCard lists a card's accounts
func (m *MemStore) AccountsByCard(_ context.Context, cardID uuid.UUID) ([]*entities.LedgerAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var accounts []*entities.LedgerAccount
	for _, account := range m.state.accounts {
		if account.CardID == cardID {
			a := account
			accounts = append(accounts, &a)
		}
	}
	sort.Slice(accounts, func(i, j int) bool {
		if accounts[i].Scope != accounts[j].Scope {
			return accounts[i].Scope < accounts[j].Scope
		}
		return accounts[i].ID.String() < accounts[j].ID.String()
	})
	return accounts, nil
}

// UpdateAccountBalance writes an account balance
func (m *MemStore) UpdateAccountBalance(_ context.Context, id uuid.UUID, balance int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	account, ok := m.state.accounts[id]
	if !ok {
		return domainerrors.NotFoundError("LEDGER_ACCOUNT")
	}
	account.Balance = balance
	account.UpdatedAt = time.Now().UTC()
	m.state.accounts[id] = account
	return nil
}

// CreateEntry appends a ledger entry
func (m *MemStore) CreateEntry(_ context.Context, entry *entities.LedgerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.entries = append(m.state.entries, *entry)
	return nil
}

// EntriesByTransactionID returns the entries of one transaction
func (m *MemStore) EntriesByTransactionID(_ context.Context, transactionID string) ([]*entities.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var entries []*entities.LedgerEntry
	for i := range m.state.entries {
		if m.state.entries[i].TransactionID == transactionID {
			e := m.state.entries[i]
			entries = append(entries, &e)
		}
	}
	return entries, nil
}

// EntriesByAccountID pages through entries touching one account
func (m *MemStore) EntriesByAccountID(_ context.Context, accountID uuid.UUID, limit, offset int) ([]*entities.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var entries []*entities.LedgerEntry
	for i := range m.state.entries {
		e := m.state.entries[i]
		if e.DebitAccountID == accountID || e.CreditAccountID == accountID {
			entries = append(entries, &e)
		}
	}
	return page(entries, limit, offset), nil
}

// EntriesByCardID pages through a card's entries
func (m *MemStore) EntriesByCardID(_ context.Context, cardID uuid.UUID, limit, offset int) ([]*entities.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var entries []*entities.LedgerEntry
	for i := range m.state.entries {
		e := m.state.entries[i]
		if account, ok := m.state.accounts[e.DebitAccountID]; ok && account.CardID == cardID {
			entries = append(entries, &e)
		}
	}
	return page(entries, limit, offset), nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

// --- card stores ---

// CardByID fetches one card
func (m *MemStore) CardByID(_ context.Context, id uuid.UUID) (*entities.Card, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	card, ok := m.state.cards[id]
	if !ok {
		return nil, domainerrors.NotFoundError("CARD")
	}
	return &card, nil
}

// CardByExternalID resolves a card from its provider identity
func (m *MemStore) CardByExternalID(_ context.Context, providerName, externalCardID string) (*entities.Card, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, card := range m.state.cards {
		if card.ProviderName == providerName && card.ExternalCardID == externalCardID {
			c := card
			return &c, nil
		}
	}
	return nil, domainerrors.NotFoundError("CARD")
}

// CardsByWallet lists a wallet's cards
func (m *MemStore) CardsByWallet(_ context.Context, walletID uuid.UUID) ([]*entities.Card, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var cards []*entities.Card
	for _, card := range m.state.cards {
		if card.WalletID == walletID {
			c := card
			cards = append(cards, &c)
		}
	}
	sort.Slice(cards, func(i, j int) bool { return cards[i].CreatedAt.Before(cards[j].CreatedAt) })
	return cards, nil
}

// AllCardIDs enumerates every card id
func (m *MemStore) AllCardIDs(_ context.Context) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var ids []uuid.UUID
	for id := range m.state.cards {
		ids = append(ids, id)
	}
	return ids, nil
}

// UpdateCardStatus transitions a card's status
func (m *MemStore) UpdateCardStatus(_ context.Context, id uuid.UUID, status entities.CardStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	card, ok := m.state.cards[id]
	if !ok {
		return domainerrors.NotFoundError("CARD")
	}
	card.Status = status
	card.UpdatedAt = time.Now().UTC()
	m.state.cards[id] = card
	return nil
}

// CreateHold stores an authorization hold
func (m *MemStore) CreateHold(_ context.Context, hold *entities.CardAuthHold) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.state.holds {
		if existing.ProviderName == hold.ProviderName && existing.ProviderAuthID == hold.ProviderAuthID {
			return domainerrors.AlreadyExistsError("CARD_AUTH_HOLD")
		}
	}
	m.state.holds[hold.ID] = *hold
	return nil
}

// HoldByProviderAuthID resolves a hold from the provider auth id
func (m *MemStore) HoldByProviderAuthID(_ context.Context, providerName, providerAuthID string) (*entities.CardAuthHold, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, hold := range m.state.holds {
		if hold.ProviderName == providerName && hold.ProviderAuthID == providerAuthID {
			h := hold
			return &h, nil
		}
	}
	return nil, domainerrors.NotFoundError("CARD_AUTH_HOLD")
}

// UpdateHoldStatus transitions a hold's status
func (m *MemStore) UpdateHoldStatus(_ context.Context, id uuid.UUID, status entities.HoldStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	hold, ok := m.state.holds[id]
	if !ok {
		return domainerrors.NotFoundError("CARD_AUTH_HOLD")
	}
	hold.Status = status
	hold.UpdatedAt = time.Now().UTC()
	m.state.holds[id] = hold
	return nil
}

// SumPendingHolds totals a card's live holds
func (m *MemStore) SumPendingHolds(_ context.Context, cardID uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var sum int64
	for _, hold := range m.state.holds {
		if hold.CardID == cardID && hold.Status == entities.HoldStatusPending {
			sum += hold.AmountMinor
		}
	}
	return sum, nil
}

// PendingHoldsBefore returns PENDING holds created before the cutoff
func (m *MemStore) PendingHoldsBefore(_ context.Context, cutoff time.Time, limit int) ([]*entities.CardAuthHold, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var holds []*entities.CardAuthHold
	for _, hold := range m.state.holds {
		if hold.Status == entities.HoldStatusPending && hold.CreatedAt.Before(cutoff) {
			h := hold
			holds = append(holds, &h)
		}
	}
	sort.Slice(holds, func(i, j int) bool { return holds[i].CreatedAt.Before(holds[j].CreatedAt) })
	if limit > 0 && limit < len(holds) {
		holds = holds[:limit]
	}
	return holds, nil
}

// --- wallet stores ---

// WalletByID fetches one wallet
func (m *MemStore) WalletByID(_ context.Context, id uuid.UUID) (*entities.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	wallet, ok := m.state.wallets[id]
	if !ok {
		return nil, domainerrors.NotFoundError("WALLET")
	}
	return &wallet, nil
}

// UpdateSplitPolicy writes a wallet's split policy
func (m *MemStore) UpdateSplitPolicy(_ context.Context, walletID uuid.UUID, policy entities.SplitPolicy) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	wallet, ok := m.state.wallets[walletID]
	if !ok {
		return domainerrors.NotFoundError("WALLET")
	}
	wallet.SplitPolicy = policy
	wallet.UpdatedAt = time.Now().UTC()
	m.state.wallets[walletID] = wallet
	return nil
}

// IsMember reports wallet membership
func (m *MemStore) IsMember(_ context.Context, walletID, userID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, member := range m.state.members[walletID] {
		if member.UserID == userID {
			return true, nil
		}
	}
	return false, nil
}

// Members lists wallet members ordered by join time
func (m *MemStore) Members(_ context.Context, walletID uuid.UUID) ([]*entities.WalletMember, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := m.state.members[walletID]
	members := make([]*entities.WalletMember, 0, len(stored))
	for i := range stored {
		member := stored[i]
		members = append(members, &member)
	}
	sort.Slice(members, func(i, j int) bool { return members[i].JoinedAt.Before(members[j].JoinedAt) })
	return members, nil
}

// --- withdrawal.Store ---

// CreateRequest stores a withdrawal request
func (m *MemStore) CreateRequest(_ context.Context, req *entities.WithdrawalRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.state.requests[req.ID]; ok {
		return domainerrors.AlreadyExistsError("WITHDRAWAL_REQUEST")
	}
	m.state.requests[req.ID] = *req
	return nil
}

// RequestByID fetches one withdrawal request
func (m *MemStore) RequestByID(_ context.Context, id uuid.UUID) (*entities.WithdrawalRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	req, ok := m.state.requests[id]
	if !ok {
		return nil, domainerrors.NotFoundError("WITHDRAWAL_REQUEST")
	}
	return &req, nil
}

// RequestsByWallet pages through a wallet's withdrawal requests
func (m *MemStore) RequestsByWallet(_ context.Context, walletID uuid.UUID, status *entities.WithdrawalStatus, limit, offset int) ([]*entities.WithdrawalRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var requests []*entities.WithdrawalRequest
	for _, req := range m.state.requests {
		if req.WalletID != walletID {
			continue
		}
		if status != nil && req.Status != *status {
			continue
		}
		r := req
		requests = append(requests, &r)
	}
	sort.Slice(requests, func(i, j int) bool { return requests[i].CreatedAt.After(requests[j].CreatedAt) })
	return page(requests, limit, offset), nil
}

// UpdateRequest writes a withdrawal request
func (m *MemStore) UpdateRequest(_ context.Context, req *entities.WithdrawalRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.state.requests[req.ID]; !ok {
		return domainerrors.NotFoundError("WITHDRAWAL_REQUEST")
	}
	m.state.requests[req.ID] = *req
	return nil
}

// CreateTransfer stores a withdrawal transfer
func (m *MemStore) CreateTransfer(_ context.Context, transfer *entities.WithdrawalTransfer) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.state.transfers[transfer.ID]; ok {
		return domainerrors.AlreadyExistsError("WITHDRAWAL_TRANSFER")
	}
	m.state.transfers[transfer.ID] = *transfer
	return nil
}

// TransferByRequestID fetches the transfer of one withdrawal
func (m *MemStore) TransferByRequestID(_ context.Context, requestID uuid.UUID) (*entities.WithdrawalTransfer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, transfer := range m.state.transfers {
		if transfer.WithdrawalRequestID == requestID {
			t := transfer
			return &t, nil
		}
	}
	return nil, domainerrors.NotFoundError("WITHDRAWAL_TRANSFER")
}

// TransferByProviderID resolves a transfer from the provider id
func (m *MemStore) TransferByProviderID(_ context.Context, providerName, providerTransferID string) (*entities.WithdrawalTransfer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, transfer := range m.state.transfers {
		if transfer.ProviderName == providerName &&
			transfer.ProviderTransferID != nil && *transfer.ProviderTransferID == providerTransferID {
			t := transfer
			return &t, nil
		}
	}
	return nil, domainerrors.NotFoundError("WITHDRAWAL_TRANSFER")
}

// UpdateTransfer writes a withdrawal transfer
func (m *MemStore) UpdateTransfer(_ context.Context, transfer *entities.WithdrawalTransfer) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.state.transfers[transfer.ID]; !ok {
		return domainerrors.NotFoundError("WITHDRAWAL_TRANSFER")
	}
	m.state.transfers[transfer.ID] = *transfer
	return nil
}

// --- webhooks.EventStore ---

// InsertBaasEvent journals a delivery; duplicates are a no-op
func (m *MemStore) InsertBaasEvent(_ context.Context, event *entities.BaasEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := eventKey(event.ProviderName, event.ProviderEventID)
	if _, ok := m.state.events[key]; ok {
		return nil
	}
	m.state.events[key] = *event
	return nil
}

// MarkBaasEventProcessed stamps the journal row
func (m *MemStore) MarkBaasEventProcessed(_ context.Context, providerName, providerEventID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := eventKey(providerName, providerEventID)
	if event, ok := m.state.events[key]; ok {
		now := time.Now().UTC()
		event.ProcessedAt = &now
		m.state.events[key] = event
	}
	return nil
}

// InsertProcessedEvent claims an event; a second claim fails
func (m *MemStore) InsertProcessedEvent(_ context.Context, providerName, providerEventID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := eventKey(providerName, providerEventID)
	if _, ok := m.state.processed[key]; ok {
		return domainerrors.AlreadyExistsError("PROCESSED_EVENT")
	}
	m.state.processed[key] = entities.ProcessedEvent{
		ProviderName:    providerName,
		ProviderEventID: providerEventID,
		ProcessedAt:     time.Now().UTC(),
	}
	return nil
}

// BaasEvent returns a journaled delivery, for assertions
func (m *MemStore) BaasEvent(providerName, providerEventID string) (entities.BaasEvent, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	event, ok := m.state.events[eventKey(providerName, providerEventID)]
	return event, ok
}

// --- funding.RouteStore ---

// RouteByKey resolves a funding route
func (m *MemStore) RouteByKey(_ context.Context, providerName, providerAccountID, reference string) (*entities.BaasFundingRoute, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	route, ok := m.state.routes[routeKey(providerName, providerAccountID, reference)]
	if !ok {
		return nil, domainerrors.NotFoundError("FUNDING_ROUTE")
	}
	return &route, nil
}

// UpsertRoute stores a funding route
func (m *MemStore) UpsertRoute(_ context.Context, route *entities.BaasFundingRoute) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.routes[routeKey(route.ProviderName, route.ProviderAccountID, route.Reference)] = *route
	return nil
}

// RoutesByWallet lists a wallet's routes
func (m *MemStore) RoutesByWallet(_ context.Context, walletID uuid.UUID) ([]*entities.BaasFundingRoute, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var routes []*entities.BaasFundingRoute
	for _, route := range m.state.routes {
		if route.WalletID == walletID {
			r := route
			routes = append(routes, &r)
		}
	}
	sort.Slice(routes, func(i, j int) bool { return routes[i].CreatedAt.Before(routes[j].CreatedAt) })
	return routes, nil
}
