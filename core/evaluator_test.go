package core

import (
	"errors"
	"testing"
	"time"

	"github.com/peterldowns/testy/check"
)

func submitThree(t *testing.T, ledger *Ledger) {
	t.Helper()
	mustSubmit(t, ledger, "alice", "1000", testEpoch)
	mustSubmit(t, ledger, "bob", "800", testEpoch.Add(time.Second))
	mustSubmit(t, ledger, "carol", "1200", testEpoch.Add(2*time.Second))
}

func TestEvaluateMinimumSelectsLowest(t *testing.T) {
	ledger, svc := newTestLedger(t)
	submitThree(t, ledger)

	eval := NewEvaluator(ledger)
	check.Nil(t, eval.EvaluateMinimum(testEpoch.Add(time.Minute)))

	min, ok := eval.Minimum()
	check.True(t, ok)

	value, err := svc.decrypt(min, "organizer")
	check.Nil(t, err)
	check.Equal(t, "800", value.String())
}

func TestEvaluateMinimumEmptyLedger(t *testing.T) {
	ledger, _ := newTestLedger(t)

	eval := NewEvaluator(ledger)
	err := eval.EvaluateMinimum(testEpoch)
	check.True(t, errors.Is(err, ErrEmptyLedger))

	_, ok := eval.Minimum()
	check.False(t, ok)
}

func TestEvaluateMinimumSingleBid(t *testing.T) {
	ledger, svc := newTestLedger(t)
	mustSubmit(t, ledger, "alice", "1000", testEpoch)

	eval := NewEvaluator(ledger)
	check.Nil(t, eval.EvaluateMinimum(testEpoch.Add(time.Minute)))

	min, ok := eval.Minimum()
	check.True(t, ok)
	check.Equal(t, 0, svc.compares)
	check.Equal(t, 0, svc.selects)

	value, err := svc.decrypt(min, "organizer")
	check.Nil(t, err)
	check.Equal(t, "1000", value.String())
}

func TestEvaluateMinimumTiedLowest(t *testing.T) {
	ledger, svc := newTestLedger(t)
	mustSubmit(t, ledger, "alice", "800", testEpoch)
	mustSubmit(t, ledger, "bob", "800", testEpoch.Add(time.Second))
	mustSubmit(t, ledger, "carol", "900", testEpoch.Add(2*time.Second))

	eval := NewEvaluator(ledger)
	check.Nil(t, eval.EvaluateMinimum(testEpoch.Add(time.Minute)))

	min, _ := eval.Minimum()
	value, err := svc.decrypt(min, "organizer")
	check.Nil(t, err)
	check.Equal(t, "800", value.String())
}

// The fold visits every bid with one comparison and one selection, even when
// the lowest price arrives first. The service never learns which steps kept
// the running value.
func TestEvaluateMinimumFoldIsLinear(t *testing.T) {
	ledger, svc := newTestLedger(t)
	mustSubmit(t, ledger, "alice", "100", testEpoch)
	mustSubmit(t, ledger, "bob", "500", testEpoch.Add(time.Second))
	mustSubmit(t, ledger, "carol", "600", testEpoch.Add(2*time.Second))
	mustSubmit(t, ledger, "dave", "700", testEpoch.Add(3*time.Second))
	mustSubmit(t, ledger, "erin", "800", testEpoch.Add(4*time.Second))

	eval := NewEvaluator(ledger)
	check.Nil(t, eval.EvaluateMinimum(testEpoch.Add(time.Minute)))

	check.Equal(t, 4, svc.compares)
	check.Equal(t, 4, svc.selects)

	min, _ := eval.Minimum()
	value, err := svc.decrypt(min, "organizer")
	check.Nil(t, err)
	check.Equal(t, "100", value.String())
}

func TestEvaluateMinimumIdempotent(t *testing.T) {
	ledger, svc := newTestLedger(t)
	submitThree(t, ledger)

	eval := NewEvaluator(ledger)
	check.Nil(t, eval.EvaluateMinimum(testEpoch.Add(time.Minute)))
	check.Nil(t, eval.EvaluateMinimum(testEpoch.Add(2*time.Minute)))

	min, ok := eval.Minimum()
	check.True(t, ok)
	value, err := svc.decrypt(min, "organizer")
	check.Nil(t, err)
	check.Equal(t, "800", value.String())
}

func TestMinimumInvalidatedByNewBid(t *testing.T) {
	ledger, _ := newTestLedger(t)
	submitThree(t, ledger)

	eval := NewEvaluator(ledger)
	check.Nil(t, eval.EvaluateMinimum(testEpoch.Add(time.Minute)))
	mustSubmit(t, ledger, "dave", "700", testEpoch.Add(2*time.Minute))

	_, ok := eval.Minimum()
	check.False(t, ok)
}

func TestMinimumInvalidatedByResubmission(t *testing.T) {
	ledger, _ := newTestLedger(t)
	submitThree(t, ledger)

	eval := NewEvaluator(ledger)
	check.Nil(t, eval.EvaluateMinimum(testEpoch.Add(time.Minute)))
	mustSubmit(t, ledger, "bob", "750", testEpoch.Add(2*time.Minute))

	_, ok := eval.Minimum()
	check.False(t, ok)
}

func TestEvaluateMinimumRecomputeReflectsUpdate(t *testing.T) {
	ledger, svc := newTestLedger(t)
	submitThree(t, ledger)

	eval := NewEvaluator(ledger)
	check.Nil(t, eval.EvaluateMinimum(testEpoch.Add(time.Minute)))
	mustSubmit(t, ledger, "dave", "700", testEpoch.Add(2*time.Minute))
	check.Nil(t, eval.EvaluateMinimum(testEpoch.Add(3*time.Minute)))

	min, ok := eval.Minimum()
	check.True(t, ok)
	value, err := svc.decrypt(min, "organizer")
	check.Nil(t, err)
	check.Equal(t, "700", value.String())
}

func TestEvaluateMinimumGrantsOrganizerOnlyByDefault(t *testing.T) {
	ledger, svc := newTestLedger(t)
	submitThree(t, ledger)

	eval := NewEvaluator(ledger)
	check.Nil(t, eval.EvaluateMinimum(testEpoch.Add(time.Minute)))

	min, _ := eval.Minimum()
	_, err := svc.decrypt(min, "organizer")
	check.Nil(t, err)
	_, err = svc.decrypt(min, "alice")
	check.NotNil(t, err)
	_, err = svc.decrypt(min, "bob")
	check.NotNil(t, err)
}

func TestEvaluateMinimumPublicResultGrantsParticipants(t *testing.T) {
	svc := newStubCipher()
	ledger, err := NewLedger(LedgerConfig{Cipher: svc, Organizer: "organizer", PublicResult: true})
	check.Nil(t, err)
	submitThree(t, ledger)

	eval := NewEvaluator(ledger)
	check.Nil(t, eval.EvaluateMinimum(testEpoch.Add(time.Minute)))

	min, _ := eval.Minimum()
	for _, principal := range []Principal{"organizer", "alice", "bob", "carol"} {
		value, err := svc.decrypt(min, principal)
		check.Nil(t, err)
		check.Equal(t, "800", value.String())
	}
	_, err = svc.decrypt(min, "mallory")
	check.NotNil(t, err)
}

func TestEvaluateMinimumCompareFailureKeepsPriorResult(t *testing.T) {
	ledger, svc := newTestLedger(t)
	submitThree(t, ledger)

	eval := NewEvaluator(ledger)
	check.Nil(t, eval.EvaluateMinimum(testEpoch.Add(time.Minute)))

	svc.compareErr = errors.New("coprocessor unreachable")
	check.NotNil(t, eval.EvaluateMinimum(testEpoch.Add(2*time.Minute)))

	min, ok := eval.Minimum()
	check.True(t, ok)
	value, err := svc.decrypt(min, "organizer")
	check.Nil(t, err)
	check.Equal(t, "800", value.String())
}

func TestEvaluateMinimumSelectFailureLeavesNothingPublished(t *testing.T) {
	ledger, svc := newTestLedger(t)
	submitThree(t, ledger)
	svc.selectErr = errors.New("coprocessor unreachable")

	eval := NewEvaluator(ledger)
	check.NotNil(t, eval.EvaluateMinimum(testEpoch.Add(time.Minute)))

	_, ok := eval.Minimum()
	check.False(t, ok)
}

func TestEvaluateMinimumGrantFailureLeavesNothingPublished(t *testing.T) {
	ledger, svc := newTestLedger(t)
	submitThree(t, ledger)
	svc.grantErr = errors.New("authorization service unavailable")

	eval := NewEvaluator(ledger)
	check.NotNil(t, eval.EvaluateMinimum(testEpoch.Add(time.Minute)))

	_, ok := eval.Minimum()
	check.False(t, ok)
}

func TestEvaluateMinimumEmitsEvent(t *testing.T) {
	svc := newStubCipher()
	sink := &recordingSink{}
	ledger, err := NewLedger(LedgerConfig{Cipher: svc, Organizer: "organizer", Events: sink})
	check.Nil(t, err)
	mustSubmit(t, ledger, "alice", "1000", testEpoch)

	eval := NewEvaluator(ledger)
	check.Nil(t, eval.EvaluateMinimum(testEpoch.Add(time.Minute)))
	check.Equal(t, 1, sink.minCalcs)
}

func TestEvaluateMinimumFailureEmitsNothing(t *testing.T) {
	svc := newStubCipher()
	sink := &recordingSink{}
	ledger, err := NewLedger(LedgerConfig{Cipher: svc, Organizer: "organizer", Events: sink})
	check.Nil(t, err)
	mustSubmit(t, ledger, "alice", "1000", testEpoch)
	svc.grantErr = errors.New("authorization service unavailable")

	eval := NewEvaluator(ledger)
	check.NotNil(t, eval.EvaluateMinimum(testEpoch.Add(time.Minute)))
	check.Equal(t, 0, sink.minCalcs)
}
