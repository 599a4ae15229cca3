package store

import (
	"time"

	"github.com/NVIDIA/aistore-blobmeta/cmn"
	"github.com/NVIDIA/aistore-blobmeta/cmn/debug"
)

// lease.go implements the pure lease state machine of spec §4.2 as a set
// of functions over the immutable Lease value type: (lease, now, args) ->
// (lease, error). Nothing here touches the backing store; callers
// (container.go, blob.go) are responsible for projecting, validating, and
// persisting around these calls inside a transaction.

const (
	minLeaseDurationSeconds = 15
	maxLeaseDurationSeconds = 60
	minBreakPeriodSeconds   = 0
	maxBreakPeriodSeconds   = 60
	infiniteDuration        = -1
)

// AccessConditions carries the caller-supplied lease id used to gate
// reads/writes/deletes (spec §4.2 write-gate/read-gate/delete-gate).
type AccessConditions struct {
	LeaseID string
}

// ProjectLease applies the time-driven transitions of spec §4.2 and MUST
// be called with the request's logical clock (never wall-clock) before
// every operation that inspects lease state.
func ProjectLease(l Lease, now time.Time) Lease {
	switch l.LeaseState {
	case LeaseStateLeased:
		if l.LeaseDurationType == LeaseDurationFixed && l.LeaseExpireTime != nil && now.After(*l.LeaseExpireTime) {
			l.LeaseState = LeaseStateExpired
			l.LeaseStatus = LeaseStatusUnlocked
			l.LeaseDurationType = ""
			l.LeaseExpireTime = nil
			l.LeaseBreakTime = nil
		}
	case LeaseStateBreaking:
		if l.LeaseBreakTime != nil && now.After(*l.LeaseBreakTime) {
			l.LeaseState = LeaseStateBroken
			l.LeaseStatus = LeaseStatusUnlocked
			l.LeaseDurationType = ""
			l.LeaseExpireTime = nil
			l.LeaseBreakTime = nil
		}
	}
	return l
}

func validateDuration(requestID string, duration int32) (LeaseDurationType, error) {
	if duration == infiniteDuration {
		return LeaseDurationInfinite, nil
	}
	if duration < minLeaseDurationSeconds || duration > maxLeaseDurationSeconds {
		return "", newErr(requestID, KindInvalidLeaseDuration, "duration %d out of [%d,%d]", duration, minLeaseDurationSeconds, maxLeaseDurationSeconds)
	}
	return LeaseDurationFixed, nil
}

// AcquireLease implements spec §4.2 Acquire. l must already be
// time-projected against now.
func AcquireLease(requestID string, l Lease, now time.Time, duration int32, proposedID string) (Lease, error) {
	switch l.LeaseState {
	case LeaseStateBreaking:
		return l, newErr(requestID, KindLeaseAlreadyPresent, "lease is breaking")
	case LeaseStateLeased:
		if !equalFoldID(proposedID, l.LeaseID) {
			return l, newErr(requestID, KindLeaseAlreadyPresent, "already leased by %s", l.LeaseID)
		}
		// idempotent refresh: same id, fall through to re-acquire below.
	case LeaseStateAvailable, LeaseStateExpired, LeaseStateBroken:
		// proceed
	}

	durationType, err := validateDuration(requestID, duration)
	if err != nil {
		return l, err
	}

	id := proposedID
	if id == "" {
		id = cmn.GenUUID()
	}
	debug.Assert(cmn.IsValidUUID(id), "lease id not a UUID: ", id)

	out := Lease{
		LeaseID:              id,
		LeaseStatus:           LeaseStatusLocked,
		LeaseState:            LeaseStateLeased,
		LeaseDurationType:     durationType,
		LeaseDurationSeconds:  duration,
	}
	if durationType == LeaseDurationFixed {
		t := now.Add(time.Duration(duration) * time.Second)
		out.LeaseExpireTime = &t
	}
	assertLeasePairing(out)
	return out, nil
}

// RenewLease implements spec §4.2 Renew.
func RenewLease(requestID string, l Lease, now time.Time, leaseID string) (Lease, error) {
	switch l.LeaseState {
	case LeaseStateAvailable:
		return l, newErr(requestID, KindLeaseIdMismatchWithLeaseOperation, "no lease present")
	case LeaseStateBreaking, LeaseStateBroken:
		return l, newErr(requestID, KindLeaseIsBrokenAndCannotBeRenewed, "")
	}
	if !equalFoldID(leaseID, l.LeaseID) {
		return l, newErr(requestID, KindLeaseIdMismatchWithLeaseOperation, "lease id mismatch")
	}
	out := l
	out.LeaseState = LeaseStateLeased
	out.LeaseStatus = LeaseStatusLocked
	if l.LeaseDurationType == LeaseDurationInfinite {
		out.LeaseDurationType = LeaseDurationInfinite
		out.LeaseExpireTime = nil
	} else {
		out.LeaseDurationType = LeaseDurationFixed
		t := now.Add(time.Duration(l.LeaseDurationSeconds) * time.Second)
		out.LeaseExpireTime = &t
	}
	assertLeasePairing(out)
	return out, nil
}

// ChangeLease implements spec §4.2 Change.
func ChangeLease(requestID string, l Lease, currentID, proposedID string) (Lease, error) {
	switch l.LeaseState {
	case LeaseStateAvailable, LeaseStateExpired, LeaseStateBroken:
		return l, newErr(requestID, KindLeaseNotPresent, "no lease present")
	case LeaseStateBreaking:
		return l, newErr(requestID, KindLeaseIsBreakingAndCannotBeChanged, "")
	}
	if !equalFoldID(currentID, l.LeaseID) && !equalFoldID(currentID, proposedID) {
		return l, newErr(requestID, KindLeaseIdMismatchWithLeaseOperation, "current id matches neither existing nor proposed")
	}
	out := l
	out.LeaseID = proposedID
	assertLeasePairing(out)
	return out, nil
}

// ReleaseLease implements spec §4.2 Release.
func ReleaseLease(requestID string, l Lease, leaseID string) (Lease, error) {
	if l.LeaseState == LeaseStateAvailable {
		return l, newErr(requestID, KindLeaseIdMismatch, "no lease present")
	}
	if !equalFoldID(leaseID, l.LeaseID) {
		return l, newErr(requestID, KindLeaseIdMismatch, "lease id mismatch")
	}
	return AvailableLease(), nil
}

// BreakLease implements spec §4.2 Break, returning the new lease and the
// remaining lease time in whole seconds.
func BreakLease(requestID string, l Lease, now time.Time, breakPeriod *int32) (Lease, int64, error) {
	if l.LeaseState == LeaseStateAvailable {
		return l, 0, newErr(requestID, KindLeaseNotPresent, "no lease present")
	}
	if breakPeriod != nil {
		if *breakPeriod < minBreakPeriodSeconds || *breakPeriod > maxBreakPeriodSeconds {
			return l, 0, newErr(requestID, KindInvalidLeaseBreakPeriod, "period %d out of [%d,%d]", *breakPeriod, minBreakPeriodSeconds, maxBreakPeriodSeconds)
		}
	}

	if l.LeaseState == LeaseStateExpired || l.LeaseState == LeaseStateBroken || breakPeriod == nil || *breakPeriod == 0 {
		out := l
		out.LeaseState = LeaseStateBroken
		out.LeaseStatus = LeaseStatusUnlocked
		out.LeaseDurationType = ""
		out.LeaseExpireTime = nil
		out.LeaseBreakTime = nil
		assertLeasePairing(out)
		return out, 0, nil
	}

	out := l
	out.LeaseState = LeaseStateBreaking
	out.LeaseStatus = LeaseStatusLocked

	var newBreakTime time.Time
	if l.LeaseDurationType == LeaseDurationInfinite {
		newBreakTime = now.Add(time.Duration(*breakPeriod) * time.Second)
	} else {
		candidate := now.Add(time.Duration(*breakPeriod) * time.Second)
		if l.LeaseExpireTime != nil && l.LeaseExpireTime.Before(candidate) {
			newBreakTime = *l.LeaseExpireTime
		} else {
			newBreakTime = candidate
		}
	}
	if l.LeaseBreakTime != nil && l.LeaseBreakTime.Before(newBreakTime) {
		newBreakTime = *l.LeaseBreakTime
	}
	out.LeaseBreakTime = &newBreakTime
	leaseTime := int64((newBreakTime.Sub(now) + 500*time.Millisecond) / time.Second)
	assertLeasePairing(out)
	return out, leaseTime, nil
}

// assertLeasePairing enforces spec §8 invariant 4: the (state, status)
// pair is always one of (Available,Unlocked), (Leased,Locked),
// (Expired,Unlocked), (Breaking,Locked), (Broken,Unlocked).
func assertLeasePairing(l Lease) {
	var want LeaseStatusType
	switch l.LeaseState {
	case LeaseStateLeased, LeaseStateBreaking:
		want = LeaseStatusLocked
	default:
		want = LeaseStatusUnlocked
	}
	debug.Assertf(l.LeaseStatus == want, "lease state/status pairing violated: %v/%v", l.LeaseState, l.LeaseStatus)
}

// CheckWriteGate implements spec §4.2's write-gate/delete-gate (they are
// identical, keyed by whichever lease -- container or blob -- is passed
// in; the spec's error-identifier list carries no separate container
// variant, so both call sites share this one Kind).
func CheckWriteGate(requestID string, l Lease, ac AccessConditions) error {
	if l.LeaseStatus == LeaseStatusLocked {
		if ac.LeaseID == "" {
			return newErr(requestID, KindLeaseIdMissing, "")
		}
		if !equalFoldID(ac.LeaseID, l.LeaseID) {
			return newErr(requestID, KindLeaseIdMismatchWithBlobOperation, "")
		}
		return nil
	}
	if ac.LeaseID != "" {
		return newErr(requestID, KindLeaseLost, "")
	}
	return nil
}

// CheckReadGate implements spec §4.2's read-gate: only the Locked case is
// enforced.
func CheckReadGate(requestID string, l Lease, ac AccessConditions) error {
	if l.LeaseStatus != LeaseStatusLocked {
		return nil
	}
	if ac.LeaseID == "" {
		return newErr(requestID, KindLeaseIdMissing, "")
	}
	if !equalFoldID(ac.LeaseID, l.LeaseID) {
		return newErr(requestID, KindLeaseIdMismatchWithBlobOperation, "")
	}
	return nil
}

// CollapseIfExpiredOrBroken implements the "post-write lease update"
// design note: after a successful write against a blob whose projected
// state was Expired or Broken, the lease collapses to Available/Unlocked.
func CollapseIfExpiredOrBroken(l Lease) Lease {
	if l.LeaseState == LeaseStateExpired || l.LeaseState == LeaseStateBroken {
		return AvailableLease()
	}
	return l
}

func equalFoldID(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}
