package quote

import (
	"errors"
	"fmt"
	"testing"
)

func TestCanonical(t *testing.T) {
	for in, want := range map[string]string{
		"aapl":   "AAPL",
		" msft ": "MSFT",
		"FxAiX":  "FXAIX",
		"":       "",
	} {
		if got := Canonical(in); got != want {
			t.Fatalf("Canonical(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestValidate_Empty(t *testing.T) {
	if _, err := Validate("   "); !errors.Is(err, ErrEmptySymbol) {
		t.Fatalf("expected ErrEmptySymbol, got %v", err)
	}
}

func TestParseSourceClass(t *testing.T) {
	if c, err := ParseSourceClass("B"); err != nil || c != ClassSlow {
		t.Fatalf("got %q, %v", c, err)
	}
	if c, err := ParseSourceClass(""); err != nil || c != ClassFast {
		t.Fatalf("got %q, %v", c, err)
	}
	if _, err := ParseSourceClass("medium"); err == nil {
		t.Fatal("expected error for unknown class")
	}
}

func TestScale_KeepsPercentChange(t *testing.T) {
	q := Quote{
		Price:         400,
		Change:        Float(4),
		PercentChange: Float(1.0),
		High:          Float(800),
		APIMetadata:   map[string]any{"source": "finnhub"},
	}

	got := q.Scale(4)

	if got.Price != 100 {
		t.Fatalf("price: got %v, want 100", got.Price)
	}
	if *got.Change != 1 {
		t.Fatalf("change: got %v, want 1", *got.Change)
	}
	if *got.High != 200 {
		t.Fatalf("high: got %v, want 200", *got.High)
	}
	if *got.PercentChange != 1.0 {
		t.Fatalf("percentChange changed: %v", *got.PercentChange)
	}
	if got.Low != nil {
		t.Fatal("absent field must stay absent")
	}
	if got.Source() != "finnhub" {
		t.Fatalf("metadata not propagated: %v", got.APIMetadata)
	}

	// The original must be untouched.
	got.APIMetadata["source"] = "x"
	if q.Source() != "finnhub" || q.Price != 400 {
		t.Fatal("Scale mutated its receiver")
	}
}

func TestFetchErrorClassification(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", NewFetchError(RateLimited, "finnhub", "GOOG", "429", nil))

	if !IsRateLimited(err) {
		t.Fatal("expected rate limited")
	}
	if KindOf(err) != RateLimited {
		t.Fatalf("got kind %v", KindOf(err))
	}
	if KindOf(errors.New("boom")) != Transient {
		t.Fatal("plain errors are transient")
	}
	if IsTransient(nil) {
		t.Fatal("nil is not transient")
	}
}
