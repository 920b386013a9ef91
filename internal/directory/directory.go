// Package directory records which role each account holds on the contract
// and answers the facts the projector needs about the administrator.
package directory

import (
	"errors"
	"fmt"
	"sync"

	"ndisview/internal/model"
	"ndisview/internal/projector"
)

var (
	ErrNotFound          = errors.New("account not registered")
	ErrAlreadyRegistered = errors.New("account already registered")
)

// Account is a registered address and its role.
type Account struct {
	Address string     `json:"address"`
	Role    model.Role `json:"role"`
}

// Store abstracts the account backend. Keys are normalized addresses.
type Store interface {
	// Insert stores acct unless its address is present; inserted is false
	// when it was.
	Insert(acct Account) (inserted bool, err error)
	Get(address string) (Account, bool)
	Range(fn func(acct Account) error) error
	// LoadAll replaces the store contents with all.
	LoadAll(all []Account) error
}

// InMemoryStore is a simple thread-safe map store.
type InMemoryStore struct {
	mu   sync.RWMutex
	data map[string]Account
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{data: make(map[string]Account)}
}

func (s *InMemoryStore) LoadAll(all []Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = make(map[string]Account, len(all))
	for _, a := range all {
		a.Address = projector.NormalizeAddress(a.Address)
		s.data[a.Address] = a
	}
	return nil
}

func (s *InMemoryStore) Insert(acct Account) (bool, error) {
	acct.Address = projector.NormalizeAddress(acct.Address)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[acct.Address]; ok {
		return false, nil
	}
	s.data[acct.Address] = acct
	return true, nil
}

func (s *InMemoryStore) Get(address string) (Account, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.data[projector.NormalizeAddress(address)]
	return a, ok
}

func (s *InMemoryStore) Range(fn func(acct Account) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.data {
		if err := fn(a); err != nil {
			return fmt.Errorf("range callback failed: %w", err)
		}
	}
	return nil
}

// Resolver answers role and administrator questions over a Store and tracks
// the participant fund balance.
type Resolver struct {
	store Store

	mu    sync.RWMutex
	admin string
	funds model.Wei
}

// NewResolver seeds the administrator account into st when it is not yet
// registered. An empty admin leaves the contract without one; administrator
// calls are then withheld from every caller.
func NewResolver(st Store, admin string) (*Resolver, error) {
	admin = projector.NormalizeAddress(admin)
	if admin != "" {
		if _, err := st.Insert(Account{Address: admin, Role: model.RoleAdministrator}); err != nil {
			return nil, fmt.Errorf("seed administrator: %w", err)
		}
	}
	return &Resolver{store: st, admin: admin}, nil
}

func (r *Resolver) administrator() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.admin
}

// Facts returns the contract facts the projector consults.
func (r *Resolver) Facts() projector.Facts {
	return projector.Facts{Administrator: r.administrator()}
}

// Contract is the contract-level state shown next to the views.
type Contract struct {
	Administrator    string    `json:"administrator"`
	ParticipantFunds model.Wei `json:"participantFunds"`
}

func (r *Resolver) Contract() Contract {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Contract{Administrator: r.admin, ParticipantFunds: r.funds}
}

// RoleOf returns the registered role of address.
func (r *Resolver) RoleOf(address string) (model.Role, error) {
	a, ok := r.store.Get(address)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, projector.NormalizeAddress(address))
	}
	return a.Role, nil
}

// Register adds account with role on behalf of caller. Only the
// administrator may register, and an address is registered at most once.
func (r *Resolver) Register(caller, account string, role model.Role) error {
	if !projector.SameAddress(caller, r.administrator()) {
		return projector.PolicyDenial{Action: model.ActionRegisterAccount, Reason: "caller is not the administrator"}
	}
	if projector.NormalizeAddress(account) == "" {
		return fmt.Errorf("register: empty account")
	}
	parsed, ok := model.ParseRole(string(role))
	if !ok {
		return fmt.Errorf("register: %w: %q", projector.ErrUnknownRole, role)
	}
	ok, err := r.store.Insert(Account{Address: account, Role: parsed})
	if err != nil {
		return fmt.Errorf("register: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, projector.NormalizeAddress(account))
	}
	return nil
}

// Deposit credits amount to the participant funds on behalf of caller, who
// must be the administrator.
func (r *Resolver) Deposit(caller string, amount model.Wei) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !projector.SameAddress(caller, r.admin) {
		return projector.PolicyDenial{Action: model.ActionDeposit, Reason: "caller is not the administrator"}
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("deposit: negative amount %s", amount)
	}
	r.funds = r.funds.Add(amount)
	return nil
}

// Restore replaces the directory with a contract state dump. The dump's
// administrator is adopted when none is configured and must match otherwise.
func (r *Resolver) Restore(d Dump) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	admin := projector.NormalizeAddress(d.Administrator)
	switch {
	case admin == "":
		admin = r.admin
	case r.admin != "" && admin != r.admin:
		return fmt.Errorf("restore: dump administrator %s does not match %s", admin, r.admin)
	}
	accts := make([]Account, 0, len(d.Accounts)+1)
	seeded := admin == ""
	for _, a := range d.Accounts {
		if _, ok := model.ParseRole(string(a.Role)); !ok {
			return fmt.Errorf("restore: account %s: %w: %q", a.Address, projector.ErrUnknownRole, a.Role)
		}
		if projector.SameAddress(a.Address, admin) {
			a.Role = model.RoleAdministrator
			seeded = true
		}
		accts = append(accts, a)
	}
	if !seeded {
		accts = append(accts, Account{Address: admin, Role: model.RoleAdministrator})
	}
	if err := r.store.LoadAll(accts); err != nil {
		return fmt.Errorf("restore: %w", err)
	}
	r.admin = admin
	r.funds = d.ParticipantFunds
	return nil
}

// Accounts lists every registered account.
func (r *Resolver) Accounts() ([]Account, error) {
	out := []Account{}
	err := r.store.Range(func(a Account) error {
		out = append(out, a)
		return nil
	})
	return out, err
}
