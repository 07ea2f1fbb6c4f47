// Package capstore persists frozen-bit capacity rankings and resumable
// analysis checkpoints.
package capstore

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/Observe-l/tdc-polar/polar"
)

var (
	// ErrNotFound is returned by Get when no ranking is stored for a key.
	ErrNotFound = errors.New("capstore: no ranking stored")
	// ErrBadRecords is returned for capacity records that do not parse or do
	// not list every position exactly once.
	ErrBadRecords = errors.New("capstore: malformed capacity records")
	// ErrBadCheckpoint is returned for checkpoints with a wrong header or body.
	ErrBadCheckpoint = errors.New("capstore: malformed checkpoint")
)

// FileName is the record file name of key.
func FileName(key polar.CapacityKey) string {
	ch := key.Channel
	name := fmt.Sprintf("td2c_capacities_n%d_t%d_ps%g_r%g_v%g_md%d_seg%d",
		key.CodeLength, key.Trials, ch.Ps, ch.PassRatio, ch.DriftStddev, ch.MaxDrift, key.NumSegments)
	if ch.OffsetRate != 0 {
		name += fmt.Sprintf("_o%g", ch.OffsetRate)
	}
	return name + ".dat"
}

func numDigits(n int) int {
	d := 1
	for n >= 10 {
		n /= 10
		d++
	}
	return d
}

// WriteRecords writes r in ranked order, one "index capacity" line per
// position. Indices are zero padded to the width of the code length.
func WriteRecords(w io.Writer, r polar.Ranking) error {
	width := numDigits(len(r))
	bw := bufio.NewWriter(w)
	for _, c := range r {
		if _, err := fmt.Fprintf(bw, "%0*d %.16e\n", width, c.Index, c.Value); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// ReadRecords reads the n records of a code of length n. Indices are
// decimal; their zero padding is not an octal prefix.
func ReadRecords(rd io.Reader, n int) (polar.Ranking, error) {
	sc := bufio.NewScanner(rd)
	r := make(polar.Ranking, n)
	seen := make([]bool, n)
	for i := range r {
		if !sc.Scan() {
			if err := sc.Err(); err != nil {
				return nil, fmt.Errorf("%w: record %d: %v", ErrBadRecords, i, err)
			}
			return nil, fmt.Errorf("%w: %d records, want %d", ErrBadRecords, i, n)
		}
		f := strings.Fields(sc.Text())
		if len(f) != 2 {
			return nil, fmt.Errorf("%w: record %d has %d fields", ErrBadRecords, i, len(f))
		}
		idx, err := strconv.Atoi(f[0])
		if err != nil {
			return nil, fmt.Errorf("%w: record %d: %v", ErrBadRecords, i, err)
		}
		v, err := strconv.ParseFloat(f[1], 64)
		if err != nil {
			return nil, fmt.Errorf("%w: record %d: %v", ErrBadRecords, i, err)
		}
		if idx < 0 || idx >= n || seen[idx] {
			return nil, fmt.Errorf("%w: record %d has index %d", ErrBadRecords, i, idx)
		}
		seen[idx] = true
		r[i] = polar.Capacity{Index: idx, Value: v}
	}
	return r, nil
}

// Get loads key from s and reports a miss as ErrNotFound.
func Get(ctx context.Context, s polar.RankingStore, key polar.CapacityKey) (polar.Ranking, error) {
	r, ok, err := s.Load(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, FileName(key))
	}
	return r, nil
}

// Chain consults its stores in order and saves to all of them.
type Chain []polar.RankingStore

// Load returns the first ranking found. Errors from earlier stores are
// only reported when no store has the key.
func (c Chain) Load(ctx context.Context, key polar.CapacityKey) (polar.Ranking, bool, error) {
	var errs []error
	for _, s := range c {
		r, ok, err := s.Load(ctx, key)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			return r, true, nil
		}
	}
	return nil, false, errors.Join(errs...)
}

// Save writes r to every store.
func (c Chain) Save(ctx context.Context, key polar.CapacityKey, r polar.Ranking) error {
	var errs []error
	for _, s := range c {
		if err := s.Save(ctx, key, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
