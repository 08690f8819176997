package app

import (
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLimiter(cooldown time.Duration) (*CityLimiter, *fakeClock) {
	clk := &fakeClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	l := NewCityLimiter(cooldown)
	l.now = clk.now
	return l, clk
}

func TestCityLimiter_OncePerCooldown(t *testing.T) {
	l, clk := newTestLimiter(10 * time.Minute)

	if !l.Allow("rosario") {
		t.Fatal("first call should pass")
	}
	if l.Allow("rosario") {
		t.Fatal("second call inside cooldown should be denied")
	}
	if !l.Allow("cordoba") {
		t.Fatal("cities are limited independently")
	}
	clk.advance(9 * time.Minute)
	if l.Allow("rosario") {
		t.Fatal("still inside cooldown")
	}
	clk.advance(time.Minute + time.Second)
	if !l.Allow("rosario") {
		t.Fatal("cooldown elapsed, should pass")
	}
}

func TestCityLimiter_Forget(t *testing.T) {
	l, _ := newTestLimiter(time.Hour)
	l.Allow("salta")
	l.Forget("salta")
	if !l.Allow("salta") {
		t.Fatal("forgotten city should pass again")
	}
}

func TestCityLimiter_Sweep(t *testing.T) {
	l, clk := newTestLimiter(time.Minute)
	l.Allow("a")
	clk.advance(30 * time.Second)
	l.Allow("b")
	clk.advance(45 * time.Second)

	if n := l.Sweep(); n != 1 {
		t.Fatalf("swept %d, want 1", n)
	}
	if l.Len() != 1 {
		t.Fatalf("len = %d, want 1", l.Len())
	}
}

func TestNewCityLimiter_DefaultCooldown(t *testing.T) {
	if l := NewCityLimiter(0); l.cooldown != 10*time.Minute {
		t.Fatalf("cooldown = %v", l.cooldown)
	}
}
