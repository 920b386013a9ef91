package projector

import (
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/sha3"

	"ndisview/internal/model"
)

// Key is the de-duplication identity of a record within one projection pass.
type Key struct {
	Kind  model.Kind
	Value string
}

// String returns kind#value, e.g. WithdrawalRequest#0xab..#u1#physio.
func (k Key) String() string { return string(k.Kind) + "#" + k.Value }

func (k Key) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *Key) UnmarshalText(b []byte) error {
	kind, value, ok := strings.Cut(string(b), "#")
	if !ok {
		return fmt.Errorf("bad record key %q", b)
	}
	k.Kind, k.Value = model.Kind(kind), value
	return nil
}

// keyPart escapes "#" and backslash so joined parts split back unambiguously.
var keyPart = strings.NewReplacer(`\`, `\\`, "#", `\#`)

// IdentityKey prefers the contract request id; withdrawal requests without one
// use requester#participantId#description, every other record falls back to
// the single-slot requester key. Free-text parts are escaped, so distinct
// tuples never share a key.
func IdentityKey(r model.Record) Key {
	if id := strings.TrimSpace(r.RequestID); id != "" {
		return Key{Kind: r.Kind, Value: "id:" + keyPart.Replace(strings.ToLower(id))}
	}
	addr := keyPart.Replace(NormalizeAddress(r.RequesterAddress))
	if r.Kind == model.KindWithdrawalRequest {
		return Key{Kind: r.Kind, Value: addr + "#" + keyPart.Replace(r.ParticipantID) + "#" + keyPart.Replace(r.Description)}
	}
	return Key{Kind: r.Kind, Value: addr}
}

// WidgetKey is a stable UI element key for a row: Keccak-256 of the identity
// key, hex encoded. Identical across renders for the same record.
func WidgetKey(k Key) string {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(k.String()))
	return hex.EncodeToString(h.Sum(nil)[:12])
}

// NormalizeAddress lowercases a hex account so checksum casing does not
// split identities.
func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// SameAddress compares two accounts ignoring checksum casing. Empty never
// matches.
func SameAddress(a, b string) bool {
	na, nb := NormalizeAddress(a), NormalizeAddress(b)
	return na != "" && na == nb
}
