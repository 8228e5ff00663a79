package service

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

// ReferenceGenerator produces a candidate booking reference for a booking
// created at now.  Candidates may collide; the caller checks uniqueness.
type ReferenceGenerator func(now time.Time) (string, error)

// NewReferenceGenerator returns a generator for references of the form
// <prefix>-<yymm>-<4 digits>, e.g. WB-2607-0412.  The month is taken in loc.
func NewReferenceGenerator(prefix string, loc *time.Location) ReferenceGenerator {
	if loc == nil {
		loc = time.UTC
	}
	limit := big.NewInt(10000)
	return func(now time.Time) (string, error) {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("booking reference: %w", err)
		}
		return fmt.Sprintf("%s-%s-%04d", prefix, now.In(loc).Format("0601"), n.Int64()), nil
	}
}
