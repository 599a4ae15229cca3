package store

import (
	"testing"
	"time"
)

func at(seconds int) time.Time {
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(seconds) * time.Second)
}

func TestAcquireLease(t *testing.T) {
	cases := []struct {
		name     string
		lease    Lease
		duration int32
		proposed string
		wantErr  Kind
	}{
		{"available to fixed", AvailableLease(), 30, "L1", ""},
		{"available infinite", AvailableLease(), -1, "", ""},
		{"breaking rejected", Lease{LeaseState: LeaseStateBreaking, LeaseStatus: LeaseStatusLocked}, 30, "L1", KindLeaseAlreadyPresent},
		{"leased mismatched id rejected", Lease{LeaseState: LeaseStateLeased, LeaseStatus: LeaseStatusLocked, LeaseID: "L1"}, 30, "L2", KindLeaseAlreadyPresent},
		{"leased same id idempotent", Lease{LeaseState: LeaseStateLeased, LeaseStatus: LeaseStatusLocked, LeaseID: "L1"}, 30, "L1", ""},
		{"leased empty proposed rejected", Lease{LeaseState: LeaseStateLeased, LeaseStatus: LeaseStatusLocked, LeaseID: "L1"}, 30, "", KindLeaseAlreadyPresent},
		{"invalid duration too short", AvailableLease(), 5, "", KindInvalidLeaseDuration},
		{"invalid duration too long", AvailableLease(), 61, "", KindInvalidLeaseDuration},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			now := at(0)
			l, err := AcquireLease("rid", c.lease, now, c.duration, c.proposed)
			if c.wantErr != "" {
				kind, ok := KindOf(err)
				if !ok || kind != c.wantErr {
					t.Fatalf("want kind %s, got %v", c.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if l.LeaseState != LeaseStateLeased || l.LeaseStatus != LeaseStatusLocked {
				t.Fatalf("expected leased/locked, got %v/%v", l.LeaseState, l.LeaseStatus)
			}
			if c.proposed != "" && l.LeaseID != c.proposed {
				t.Fatalf("expected lease id %s, got %s", c.proposed, l.LeaseID)
			}
		})
	}
}

func TestRenewLease(t *testing.T) {
	expire := at(30)
	leased := Lease{
		LeaseState: LeaseStateLeased, LeaseStatus: LeaseStatusLocked,
		LeaseID: "L1", LeaseDurationType: LeaseDurationFixed, LeaseDurationSeconds: 30,
		LeaseExpireTime: &expire,
	}

	l, err := RenewLease("rid", leased, at(20), "L1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if l.LeaseExpireTime == nil || !l.LeaseExpireTime.Equal(at(50)) {
		t.Fatalf("expected expire at t=50, got %v", l.LeaseExpireTime)
	}

	if _, err := RenewLease("rid", AvailableLease(), at(0), "L1"); err == nil {
		t.Fatal("expected error renewing an available lease")
	} else if kind, _ := KindOf(err); kind != KindLeaseIdMismatchWithLeaseOperation {
		t.Fatalf("unexpected kind %v", kind)
	}

	broken := Lease{LeaseState: LeaseStateBroken, LeaseStatus: LeaseStatusUnlocked, LeaseID: "L1"}
	if _, err := RenewLease("rid", broken, at(0), "L1"); err == nil {
		t.Fatal("expected error renewing a broken lease")
	} else if kind, _ := KindOf(err); kind != KindLeaseIsBrokenAndCannotBeRenewed {
		t.Fatalf("unexpected kind %v", kind)
	}
}

func TestReleaseLease(t *testing.T) {
	leased := Lease{LeaseState: LeaseStateLeased, LeaseStatus: LeaseStatusLocked, LeaseID: "L1"}

	l, err := ReleaseLease("rid", leased, "L1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if l != AvailableLease() {
		t.Fatalf("expected available lease, got %+v", l)
	}

	if _, err := ReleaseLease("rid", leased, "wrong"); err == nil {
		t.Fatal("expected mismatch error")
	} else if kind, _ := KindOf(err); kind != KindLeaseIdMismatch {
		t.Fatalf("unexpected kind %v", kind)
	}

	if _, err := ReleaseLease("rid", AvailableLease(), "L1"); err == nil {
		t.Fatal("expected error releasing an available lease")
	}
}

func TestBreakLeaseThenAcquire(t *testing.T) {
	// S3: acquire infinite lease, break at t=10 with period 30, attempt
	// acquire at t=20 (still breaking), observe broken at t=45.
	leased := Lease{
		LeaseState: LeaseStateLeased, LeaseStatus: LeaseStatusLocked,
		LeaseID: "L1", LeaseDurationType: LeaseDurationInfinite, LeaseDurationSeconds: -1,
	}

	period := int32(30)
	broken, leaseTime, err := BreakLease("rid", leased, at(10), &period)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if broken.LeaseState != LeaseStateBreaking || leaseTime != 30 {
		t.Fatalf("expected breaking/30s, got %v/%d", broken.LeaseState, leaseTime)
	}

	projectedAt20 := ProjectLease(broken, at(20))
	if _, err := AcquireLease("rid", projectedAt20, at(20), 30, ""); err == nil {
		t.Fatal("expected LeaseAlreadyPresent while breaking")
	} else if kind, _ := KindOf(err); kind != KindLeaseAlreadyPresent {
		t.Fatalf("unexpected kind %v", kind)
	}

	projectedAt45 := ProjectLease(broken, at(45))
	if projectedAt45.LeaseState != LeaseStateBroken {
		t.Fatalf("expected broken at t=45, got %v", projectedAt45.LeaseState)
	}
	if _, err := AcquireLease("rid", projectedAt45, at(45), 30, ""); err != nil {
		t.Fatalf("expected acquire to succeed once broken: %v", err)
	}
}

func TestProjectLeaseIdempotent(t *testing.T) {
	expire := at(10)
	leased := Lease{
		LeaseState: LeaseStateLeased, LeaseStatus: LeaseStatusLocked,
		LeaseID: "L1", LeaseDurationType: LeaseDurationFixed, LeaseDurationSeconds: 10,
		LeaseExpireTime: &expire,
	}
	once := ProjectLease(leased, at(20))
	twice := ProjectLease(once, at(20))
	if once.LeaseState != twice.LeaseState || once.LeaseStatus != twice.LeaseStatus {
		t.Fatalf("projection not idempotent: %+v vs %+v", once, twice)
	}
}

func TestCheckWriteGate(t *testing.T) {
	locked := Lease{LeaseStatus: LeaseStatusLocked, LeaseID: "L1"}

	if err := CheckWriteGate("rid", locked, AccessConditions{}); err == nil {
		t.Fatal("expected LeaseIdMissing")
	} else if kind, _ := KindOf(err); kind != KindLeaseIdMissing {
		t.Fatalf("unexpected kind %v", kind)
	}

	if err := CheckWriteGate("rid", locked, AccessConditions{LeaseID: "wrong"}); err == nil {
		t.Fatal("expected mismatch")
	} else if kind, _ := KindOf(err); kind != KindLeaseIdMismatchWithBlobOperation {
		t.Fatalf("unexpected kind %v", kind)
	}

	if err := CheckWriteGate("rid", locked, AccessConditions{LeaseID: "l1"}); err != nil {
		t.Fatalf("expected case-insensitive match to pass: %v", err)
	}

	unlocked := AvailableLease()
	if err := CheckWriteGate("rid", unlocked, AccessConditions{LeaseID: "whatever"}); err == nil {
		t.Fatal("expected LeaseLost")
	} else if kind, _ := KindOf(err); kind != KindLeaseLost {
		t.Fatalf("unexpected kind %v", kind)
	}
}
