package capital

import (
	"testing"

	"github.com/shopspring/decimal"
)

func dollars(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestAllocateAndRelease(t *testing.T) {
	b := NewBook(dollars("1000"))

	if !b.CanAllocate(dollars("100")) {
		t.Fatal("expected to be able to allocate 100 out of 1000")
	}
	if err := b.Allocate("pair-1", dollars("100")); err != nil {
		t.Fatalf("Allocate: %v", err)
	}

	summary := b.Summary()
	if !summary.Available.Equal(dollars("900")) {
		t.Fatalf("available = %s, want 900", summary.Available)
	}
	if !summary.Deployed.Equal(dollars("100")) {
		t.Fatalf("deployed = %s, want 100", summary.Deployed)
	}
	if summary.OpenPairs != 1 {
		t.Fatalf("open pairs = %d, want 1", summary.OpenPairs)
	}

	b.Release("pair-1", dollars("5"))
	summary = b.Summary()
	if !summary.Available.Equal(dollars("1005")) {
		t.Fatalf("available after release = %s, want 1005", summary.Available)
	}
	if summary.OpenPairs != 0 {
		t.Fatalf("open pairs after release = %d, want 0", summary.OpenPairs)
	}
	if !b.Invariant() {
		t.Fatal("invariant violated after allocate+release")
	}
}

func TestAllocateDuplicate(t *testing.T) {
	b := NewBook(dollars("1000"))
	if err := b.Allocate("pair-1", dollars("100")); err != nil {
		t.Fatalf("first allocate: %v", err)
	}
	if err := b.Allocate("pair-1", dollars("50")); err == nil {
		t.Fatal("expected duplicate allocation to fail")
	}
}

func TestAllocateInsufficientBalance(t *testing.T) {
	b := NewBook(dollars("100"))
	if b.CanAllocate(dollars("200")) {
		t.Fatal("expected CanAllocate to reject amount exceeding available")
	}
	if err := b.Allocate("pair-1", dollars("200")); err == nil {
		t.Fatal("expected over-allocation to fail")
	}
}

func TestReleaseOneSidedLoss(t *testing.T) {
	b := NewBook(dollars("500"))
	if err := b.Allocate("pair-1", dollars("50")); err != nil {
		t.Fatalf("allocate: %v", err)
	}

	b.Release("pair-1", dollars("-12.50"))
	summary := b.Summary()
	if !summary.Available.Equal(dollars("487.50")) {
		t.Fatalf("available = %s, want 487.50", summary.Available)
	}
	if !b.Invariant() {
		t.Fatal("invariant violated after one-sided loss release")
	}
}

func TestReallocateDuringRecovery(t *testing.T) {
	b := NewBook(dollars("1000"))
	b.Reallocate("pair-recovered", dollars("75"))

	summary := b.Summary()
	if !summary.Available.Equal(dollars("925")) {
		t.Fatalf("available = %s, want 925", summary.Available)
	}
	if summary.OpenPairs != 1 {
		t.Fatalf("open pairs = %d, want 1", summary.OpenPairs)
	}
}
