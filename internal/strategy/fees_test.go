package strategy

import (
	"testing"
)

func TestMakerFeeDollarsRoundsUpToCent(t *testing.T) {
	fee := MakerFeeDollars(48, 1)
	got, _ := fee.Float64()
	if got != 0.01 {
		t.Fatalf("MakerFeeDollars(48,1) = %v, want 0.01", got)
	}
}

func TestMakerFeeDollarsScalesWithSize(t *testing.T) {
	small := MakerFeeDollars(50, 1)
	large := MakerFeeDollars(50, 100)
	if !large.GreaterThan(small) {
		t.Fatalf("fee should grow with size: small=%s large=%s", small, large)
	}
}

func TestTakerFeeExceedsMakerFee(t *testing.T) {
	maker := MakerFeeDollars(50, 10)
	taker := TakerFeeDollars(50, 10)
	if !taker.GreaterThan(maker) {
		t.Fatalf("taker fee (%s) should exceed maker fee (%s) at the same price/size", taker, maker)
	}
}
