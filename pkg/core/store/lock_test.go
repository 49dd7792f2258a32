package store

import "testing"

func TestLockKeyDeterministic(t *testing.T) {
	a := LockKey("proposal-123")
	b := LockKey("proposal-123")
	if a != b {
		t.Errorf("LockKey not deterministic: %d vs %d", a, b)
	}
	if a < 0 {
		t.Errorf("LockKey = %d, 32-bit hash must widen non-negative", a)
	}
}

func TestLockKeyDiscriminates(t *testing.T) {
	if LockKey("proposal-1") == LockKey("proposal-2") {
		t.Error("adjacent proposal ids collided; the hash is likely broken")
	}
}
