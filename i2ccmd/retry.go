// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package i2ccmd

import (
	"context"
	"time"

	"github.com/jpillora/backoff"
)

// RetryPolicy describes how failed register accesses are retried. The zero
// value never retries.
type RetryPolicy struct {
	// Attempts is the number of additional attempts after the first failure.
	Attempts int
	// Min and Max bound the delay between attempts. Min defaults to 1ms and
	// Max to 100ms.
	Min time.Duration
	Max time.Duration
	// Factor multiplies the delay after each attempt. Defaults to 2.
	Factor float64
}

// Enabled returns true when the policy retries at all.
func (p RetryPolicy) Enabled() bool {
	return p.Attempts > 0
}

func (p RetryPolicy) backoff() *backoff.Backoff {
	b := &backoff.Backoff{Min: p.Min, Max: p.Max, Factor: p.Factor}
	if b.Min <= 0 {
		b.Min = time.Millisecond
	}
	if b.Max <= 0 {
		b.Max = 100 * time.Millisecond
	}
	if b.Factor <= 0 {
		b.Factor = 2
	}
	return b
}

// Retrying decorates a RegisterIO with a RetryPolicy. Each attempt is a new
// transaction with its own timeout.
type Retrying struct {
	Next   RegisterIO
	Policy RetryPolicy
}

// WriteRegister implements RegisterIO.
func (r *Retrying) WriteRegister(ctx context.Context, ch Channel, addr uint8, reg byte, data []byte) error {
	return r.do(ctx, func() error {
		return r.Next.WriteRegister(ctx, ch, addr, reg, data)
	})
}

// ReadRegister implements RegisterIO.
func (r *Retrying) ReadRegister(ctx context.Context, ch Channel, addr uint8, reg byte, buf []byte) error {
	return r.do(ctx, func() error {
		return r.Next.ReadRegister(ctx, ch, addr, reg, buf)
	})
}

func (r *Retrying) do(ctx context.Context, f func() error) error {
	b := r.Policy.backoff()
	err := f()
	for i := 0; err != nil && i < r.Policy.Attempts; i++ {
		if err == ErrInvalidAddress || err == ErrNotInstalled {
			return err
		}
		t := time.NewTimer(b.Duration())
		select {
		case <-ctx.Done():
			t.Stop()
			return err
		case <-t.C:
		}
		err = f()
	}
	return err
}

var _ RegisterIO = &Retrying{}
