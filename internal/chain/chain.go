// Package chain defines the boundary to the ledger: readers that supply
// records and writers that submit actions. Implementations live with their
// transport (eventlog, snapshot, Kafka).
package chain

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"ndisview/internal/model"
)

var (
	// ErrConnection wraps failures reaching the record source.
	ErrConnection = errors.New("chain source unreachable")
	// ErrConfiguration wraps a missing or malformed contract/ABI/source setting.
	ErrConfiguration = errors.New("chain source misconfigured")
)

// Block is a block number or one of the tags Genesis and Latest.
type Block int64

const (
	Genesis Block = 0
	Latest  Block = -1
)

// ParseBlock accepts "genesis", "earliest", "latest" or a decimal number.
func ParseBlock(s string) (Block, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "genesis", "earliest":
		return Genesis, nil
	case "latest":
		return Latest, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: bad block %q", ErrConfiguration, s)
	}
	return Block(n), nil
}

func (b Block) String() string {
	if b == Latest {
		return "latest"
	}
	return strconv.FormatInt(int64(b), 10)
}

// BlockRange bounds a log scan. Both ends are inclusive.
type BlockRange struct {
	From Block
	To   Block
}

// FullRange scans from genesis to the latest block.
func FullRange() BlockRange { return BlockRange{From: Genesis, To: Latest} }

// LatestOnly scans the latest block only.
func LatestOnly() BlockRange { return BlockRange{From: Latest, To: Latest} }

// Contains reports whether block falls in the range, given the current head.
func (r BlockRange) Contains(block, head uint64) bool {
	from, to := r.resolve(r.From, head), r.resolve(r.To, head)
	return block >= from && block <= to
}

func (r BlockRange) resolve(b Block, head uint64) uint64 {
	if b == Latest {
		return head
	}
	return uint64(b)
}

func (r BlockRange) String() string { return r.From.String() + ".." + r.To.String() }

// Reader supplies the records of one chain read, in chain order. An empty
// result is not an error.
type Reader interface {
	ReadRecords(ctx context.Context, r BlockRange) ([]model.Record, error)
}

// MultiReader concatenates readers in order, e.g. a call-result snapshot
// followed by a log scan.
type MultiReader struct {
	readers []Reader
}

func NewMultiReader(rs ...Reader) *MultiReader {
	return &MultiReader{readers: rs}
}

func (m *MultiReader) ReadRecords(ctx context.Context, r BlockRange) ([]model.Record, error) {
	var out []model.Record
	for _, rd := range m.readers {
		recs, err := rd.ReadRecords(ctx, r)
		if err != nil {
			return nil, err
		}
		out = append(out, recs...)
	}
	return out, nil
}
