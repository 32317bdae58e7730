package atproto

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bluesky-social/indigo/repo"
	"github.com/ipfs/go-cid"
)

// RecordEntry is one MST leaf, dereferenced and ready to decode
type RecordEntry struct {
	Collection string
	Rkey       string
	Record     []byte
	Rev        string
}

var errStopWalk = errors.New("atproto: walk stopped by consumer")

// Walk parses a CAR archive containing a single root commit and returns a
// Go 1.23 range-over-func iterator over its records: a finite, lazy,
// not-restartable sequence, same as spec.md's decoder contract. Structural
// CAR/MST malformation aborts the walk: the last yielded value carries the
// error with a zero-value entry (for a bad CAR or missing commit it is the
// only value; an MST error can follow entries already yielded); an individual record's
// CBOR bytes are handed back undecoded so a decode failure surfaces to the
// caller as a normal per-record error rather than a silently skipped entry.
func Walk(ctx context.Context, car []byte) func(func(RecordEntry, error) bool) {
	return func(yield func(RecordEntry, error) bool) {
		r, err := repo.ReadRepoFromCar(ctx, bytes.NewReader(car))
		if err != nil {
			yield(RecordEntry{}, fmt.Errorf("atproto: read car: %w", err))
			return
		}

		sc := r.SignedCommit()
		if sc == nil {
			yield(RecordEntry{}, errors.New("atproto: car has no root commit"))
			return
		}
		rev := sc.Rev

		walkErr := r.ForEach(ctx, "", func(key string, val cid.Cid) error {
			collection, rkey, ok := splitMSTKey(key)
			if !ok {
				return fmt.Errorf("atproto: malformed mst key %q", key)
			}

			blk, err := r.Blockstore().Get(ctx, val)
			if err != nil {
				return fmt.Errorf("atproto: dereference %s/%s (%s): %w", collection, rkey, val, err)
			}

			entry := RecordEntry{
				Collection: collection,
				Rkey:       rkey,
				Record:     blk.RawData(),
				Rev:        rev,
			}
			if !yield(entry, nil) {
				return errStopWalk
			}
			return nil
		})

		if walkErr != nil && !errors.Is(walkErr, errStopWalk) {
			yield(RecordEntry{}, walkErr)
		}
	}
}

// splitMSTKey splits an MST key of the form "<collection>/<rkey>"
func splitMSTKey(key string) (collection, rkey string, ok bool) {
	i := strings.LastIndex(key, "/")
	if i <= 0 || i == len(key)-1 {
		return "", "", false
	}
	return key[:i], key[i+1:], true
}
