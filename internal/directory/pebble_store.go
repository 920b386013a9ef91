package directory

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/pebble"

	"ndisview/internal/projector"
)

// PebbleStore implements Store using PebbleDB.
type PebbleStore struct {
	// mu serializes Insert's read-then-write.
	mu sync.Mutex
	db *pebble.DB
}

func NewPebbleStore(dir string) (*PebbleStore, error) {
	d, err := pebble.Open(filepath.Clean(dir), &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("pebble open: %w", err)
	}
	return &PebbleStore{db: d}, nil
}

func (p *PebbleStore) Close() error { return p.db.Close() }

func decodeAccount(val []byte) (Account, error) {
	var a Account
	if err := json.Unmarshal(val, &a); err != nil {
		return Account{}, err
	}
	return a, nil
}

func (p *PebbleStore) Insert(acct Account) (bool, error) {
	acct.Address = projector.NormalizeAddress(acct.Address)
	k := []byte(acct.Address)

	p.mu.Lock()
	defer p.mu.Unlock()
	_, closer, err := p.db.Get(k)
	if err == nil {
		_ = closer.Close()
		return false, nil
	}
	if !errors.Is(err, pebble.ErrNotFound) {
		return false, err
	}
	b, err := json.Marshal(acct)
	if err != nil {
		return false, err
	}
	// Registrations are rare; sync so an acknowledged one survives a crash.
	if err := p.db.Set(k, b, pebble.Sync); err != nil {
		return false, err
	}
	return true, nil
}

func (p *PebbleStore) Get(address string) (Account, bool) {
	v, closer, err := p.db.Get([]byte(projector.NormalizeAddress(address)))
	if err != nil {
		return Account{}, false
	}
	defer closer.Close()
	a, e := decodeAccount(v)
	if e != nil {
		return Account{}, false
	}
	return a, true
}

func (p *PebbleStore) Range(fn func(acct Account) error) error {
	it, err := p.db.NewIter(nil)
	if err != nil {
		return err
	}
	defer it.Close()
	for it.First(); it.Valid(); it.Next() {
		v := append([]byte(nil), it.Value()...)
		a, err := decodeAccount(v)
		if err != nil {
			return err
		}
		if err := fn(a); err != nil {
			return err
		}
	}
	return nil
}

// LoadAll replaces all keys with the given accounts in one synced batch.
func (p *PebbleStore) LoadAll(all []Account) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	wb := p.db.NewBatch()
	defer wb.Close()

	it, err := p.db.NewIter(nil)
	if err != nil {
		return err
	}
	for it.First(); it.Valid(); it.Next() {
		if err := wb.Delete(append([]byte(nil), it.Key()...), nil); err != nil {
			it.Close()
			return fmt.Errorf("batch delete: %w", err)
		}
	}
	if err := it.Close(); err != nil {
		return err
	}
	for _, a := range all {
		a.Address = projector.NormalizeAddress(a.Address)
		b, err := json.Marshal(a)
		if err != nil {
			return fmt.Errorf("encode %s: %w", a.Address, err)
		}
		if err := wb.Set([]byte(a.Address), b, nil); err != nil {
			return fmt.Errorf("batch set: %w", err)
		}
	}
	return wb.Commit(pebble.Sync)
}
