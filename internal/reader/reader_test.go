package reader

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"aetos-counter/go-backend/internal/stacks"
	"aetos-counter/go-backend/pkg/models"

	"github.com/google/go-cmp/cmp"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const (
	counterSeven   = "0x0701000000000000000000000000000007"
	someCaller     = "0x0a0516c227867db69f289971dbe5a5977ef43f75fade61"
	callerAddress  = "SP312F1KXPTFJH6BHVFJTB5VYYGZQBYPYC7VT62SV"
	noneCaller     = "0x09"
	contractAddr   = "SP2J6ZY48GV1EZ5V2V5RB9MP66SW86PYKKNRV9EJ7"
	contractName   = "counter"
	transportError = "connection refused"
)

var testContract = stacks.ContractRef{Address: contractAddr, Name: contractName}

type reply struct {
	result string
	err    error
}

type fakeQuerier struct {
	mu      sync.Mutex
	replies map[string]reply
	calls   []stacks.ReadOnlyCall
	gate    chan struct{}
}

func newFakeQuerier() *fakeQuerier {
	return &fakeQuerier{replies: make(map[string]reply)}
}

func (f *fakeQuerier) set(function, result string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies[function] = reply{result: result, err: err}
}

func (f *fakeQuerier) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeQuerier) CallReadOnly(ctx context.Context, call stacks.ReadOnlyCall) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.replies[call.FunctionName]
	if !ok {
		return "", errors.New("no reply configured")
	}
	return r.result, r.err
}

func fixedClock() func() time.Time {
	t0 := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return func() time.Time { return t0 }
}

func TestInitialSnapshotIsUnknown(t *testing.T) {
	r := New(testContract, newFakeQuerier())
	snap := r.Snapshot()
	assert.False(t, snap.ValueKnown())
	assert.Empty(t, snap.LastCaller)
	assert.Equal(t, "-", snap.ValueString("-"))
	assert.Equal(t, testContract.ID(), snap.Contract)
}

func TestRefreshDecodesBothValues(t *testing.T) {
	q := newFakeQuerier()
	q.set(FunctionGetCounter, counterSeven, nil)
	q.set(FunctionGetLastCaller, someCaller, nil)

	r := New(testContract, q, WithClock(fixedClock()))
	r.Refresh(context.Background())

	want := models.CounterSnapshot{
		Contract:   testContract.ID(),
		Value:      uint256.NewInt(7),
		LastCaller: callerAddress,
		UpdatedAt:  fixedClock()(),
		Version:    2,
	}
	got := r.Snapshot()
	if diff := cmp.Diff(want, got, cmp.Comparer(func(a, b *uint256.Int) bool {
		if a == nil || b == nil {
			return a == b
		}
		return a.Eq(b)
	})); diff != "" {
		t.Fatalf("snapshot mismatch (-want +got):\n%s", diff)
	}

	for _, call := range q.calls {
		assert.Equal(t, contractAddr, call.Sender, "reads are issued as the contract itself")
		assert.Empty(t, call.Args)
		assert.Equal(t, testContract, call.Contract)
	}
}

func TestRefreshTransportFailureKeepsPreviousState(t *testing.T) {
	q := newFakeQuerier()
	q.set(FunctionGetCounter, counterSeven, nil)
	q.set(FunctionGetLastCaller, someCaller, nil)
	r := New(testContract, q)
	r.Refresh(context.Background())
	before := r.Snapshot()

	q.set(FunctionGetCounter, "", &stacks.TransportError{Function: FunctionGetCounter, Err: errors.New(transportError)})
	q.set(FunctionGetLastCaller, "", stacks.ErrCallRejected)
	r.Refresh(context.Background())

	after := r.Snapshot()
	require.NotNil(t, after.Value)
	assert.True(t, after.Value.Eq(before.Value))
	assert.Equal(t, before.LastCaller, after.LastCaller)
	assert.Equal(t, before.Version, after.Version)
}

func TestRefreshNoneKeepsPreviousLastCaller(t *testing.T) {
	q := newFakeQuerier()
	q.set(FunctionGetCounter, counterSeven, nil)
	q.set(FunctionGetLastCaller, someCaller, nil)
	r := New(testContract, q)
	r.Refresh(context.Background())

	q.set(FunctionGetLastCaller, noneCaller, nil)
	r.Refresh(context.Background())

	assert.Equal(t, callerAddress, r.Snapshot().LastCaller)
}

func TestRefreshDecodeErrorLogsPayload(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	q := newFakeQuerier()
	q.set(FunctionGetCounter, "0x0801", nil)
	q.set(FunctionGetLastCaller, noneCaller, nil)
	r := New(testContract, q, WithLogger(logger))
	r.Refresh(context.Background())

	assert.False(t, r.Snapshot().ValueKnown())
	out := buf.String()
	assert.Contains(t, out, "decode failed")
	assert.Contains(t, out, "payload=0x0801")
	assert.Contains(t, out, "function=get-counter")
}

func TestSnapshotIsACopy(t *testing.T) {
	q := newFakeQuerier()
	q.set(FunctionGetCounter, counterSeven, nil)
	q.set(FunctionGetLastCaller, noneCaller, nil)
	r := New(testContract, q)
	r.Refresh(context.Background())

	snap := r.Snapshot()
	snap.Value.SetUint64(99)
	assert.Equal(t, "7", r.Snapshot().ValueString(""))
}

func TestSubscribeReceivesLatest(t *testing.T) {
	q := newFakeQuerier()
	q.set(FunctionGetCounter, counterSeven, nil)
	q.set(FunctionGetLastCaller, someCaller, nil)
	r := New(testContract, q)

	ch, cancel := r.Subscribe()
	defer cancel()

	r.Refresh(context.Background())

	select {
	case snap := <-ch:
		assert.Equal(t, uint64(2), snap.Version, "buffer keeps only the newest snapshot")
		assert.Equal(t, "7", snap.ValueString(""))
		assert.Equal(t, callerAddress, snap.LastCaller)
	case <-time.After(time.Second):
		t.Fatal("no snapshot delivered")
	}

	cancel()
	_, open := <-ch
	assert.False(t, open)
	cancel()
}

func TestStartRefreshesImmediatelyAndPeriodically(t *testing.T) {
	q := newFakeQuerier()
	q.set(FunctionGetCounter, counterSeven, nil)
	q.set(FunctionGetLastCaller, someCaller, nil)
	r := New(testContract, q)

	r.Start(context.Background(), 20*time.Millisecond)
	r.Start(context.Background(), 20*time.Millisecond)

	require.Eventually(t, func() bool {
		return r.Snapshot().ValueKnown()
	}, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		return q.callCount() >= 6
	}, 2*time.Second, 5*time.Millisecond)

	r.Stop()
	r.Stop()
	r.Wait()

	settled := q.callCount()
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, settled, q.callCount(), "no refreshes after Stop")
}

func TestInFlightRefreshPublishesAfterStop(t *testing.T) {
	q := newFakeQuerier()
	q.set(FunctionGetCounter, counterSeven, nil)
	q.set(FunctionGetLastCaller, someCaller, nil)
	q.gate = make(chan struct{})
	r := New(testContract, q)

	r.Start(context.Background(), time.Hour)
	require.Eventually(t, func() bool { return q.callCount() == 2 }, time.Second, 5*time.Millisecond)

	r.Stop()
	close(q.gate)
	r.Wait()

	snap := r.Snapshot()
	assert.Equal(t, "7", snap.ValueString(""))
	assert.Equal(t, callerAddress, snap.LastCaller)
}
