package billstore

import (
	"context"
	"io"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/splitqr/internal/docstore"
	"github.com/mmynk/splitqr/internal/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seeded(t *testing.T) (*Adapter, *docstore.Memory) {
	t.Helper()
	store := docstore.NewMemory()
	a := New(store, testLogger())
	require.NoError(t, a.Create(context.Background(), models.SampleBill()))
	return a, store
}

func TestRoundTrip(t *testing.T) {
	bill := models.SampleBill()
	bill.Items[0].AssignedTo = []string{"userA", "userB"}
	bill.Participants[0].PhotoURL = "https://example.com/a.png"
	bill.Status = models.BillStatusClosed

	fields, err := ToDocument(bill)
	require.NoError(t, err)
	assert.Equal(t, "hotel A", fields["hotelName"])
	member := fields["participants"].([]any)[0].(map[string]any)
	assert.Equal(t, "userA", member["uid"])
	assert.NotContains(t, member, "id")

	got, err := FromSnapshot(docstore.Snapshot{Ref: Ref(bill.ID), Exists: true, Fields: fields})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, bill.CreatedAt.Equal(got.CreatedAt))
	got.CreatedAt = bill.CreatedAt
	assert.Equal(t, bill, *got)
}

func TestFromSnapshot_Defaults(t *testing.T) {
	got, err := FromSnapshot(docstore.Snapshot{
		Ref:    Ref("b1"),
		Exists: true,
		Fields: docstore.Fields{"items": []any{map[string]any{"id": "i1", "price": 10.0}}},
	})
	require.NoError(t, err)
	assert.Equal(t, "b1", got.ID)
	assert.Zero(t, got.ServiceCharge)
	assert.Zero(t, got.GST)
	assert.Equal(t, models.BillStatusActive, got.Status)
	assert.NotNil(t, got.Participants)
	assert.Equal(t, []string{}, got.Items[0].AssignedTo)
}

func TestFromSnapshot_Errors(t *testing.T) {
	missing, err := FromSnapshot(docstore.Snapshot{Ref: Ref("b1")})
	assert.NoError(t, err)
	assert.Nil(t, missing)

	tests := []struct {
		name   string
		fields docstore.Fields
	}{
		{"unknown status", docstore.Fields{"status": "archived"}},
		{"items not a list", docstore.Fields{"items": "pizza"}},
		{"fractional qty", docstore.Fields{"items": []any{map[string]any{"qty": 1.5}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromSnapshot(docstore.Snapshot{Ref: Ref("b1"), Exists: true, Fields: tt.fields})
			assert.ErrorIs(t, err, ErrMalformedBill)
		})
	}
}

func TestCreateAndGet(t *testing.T) {
	a, _ := seeded(t)
	ctx := context.Background()

	err := a.Create(ctx, models.SampleBill())
	assert.ErrorIs(t, err, ErrBillExists)

	bill, err := a.Get(ctx, models.DefaultBillID)
	require.NoError(t, err)
	assert.Len(t, bill.Items, 7)

	_, err = a.Get(ctx, "nope")
	assert.ErrorIs(t, err, ErrBillNotFound)

	replaced := models.SampleBill()
	replaced.Name = "hotel B"
	require.NoError(t, a.Put(ctx, replaced))
	bill, err = a.Get(ctx, models.DefaultBillID)
	require.NoError(t, err)
	assert.Equal(t, "hotel B", bill.Name)
}

func TestAssign(t *testing.T) {
	a, store := seeded(t)
	ctx := context.Background()

	require.NoError(t, a.Assign(ctx, models.DefaultBillID, "item1", "userA"))
	bill, err := a.Get(ctx, models.DefaultBillID)
	require.NoError(t, err)
	assert.Equal(t, []string{"userA"}, bill.Items[0].AssignedTo)

	require.NoError(t, a.Assign(ctx, models.DefaultBillID, "item1", "userA"))
	bill, err = a.Get(ctx, models.DefaultBillID)
	require.NoError(t, err)
	assert.Empty(t, bill.Items[0].AssignedTo)

	before, err := store.Get(ctx, Ref(models.DefaultBillID))
	require.NoError(t, err)
	require.NoError(t, a.Assign(ctx, models.DefaultBillID, "missing-item", "userA"))
	require.NoError(t, a.Assign(ctx, models.DefaultBillID, "item1", "stranger"))
	after, err := store.Get(ctx, Ref(models.DefaultBillID))
	require.NoError(t, err)
	assert.Equal(t, before.Version, after.Version, "stale references must not write")

	err = a.Assign(ctx, "nope", "item1", "userA")
	assert.ErrorIs(t, err, ErrBillNotFound)
}

func TestAddParticipant(t *testing.T) {
	a, store := seeded(t)
	ctx := context.Background()
	p := models.Participant{ID: "u9", Initials: "NP", Color: "#00897B", Name: "New Person"}

	require.NoError(t, a.AddParticipant(ctx, models.DefaultBillID, p))
	snap, err := store.Get(ctx, Ref(models.DefaultBillID))
	require.NoError(t, err)

	require.NoError(t, a.AddParticipant(ctx, models.DefaultBillID, p))
	again, err := store.Get(ctx, Ref(models.DefaultBillID))
	require.NoError(t, err)
	assert.Equal(t, snap.Version, again.Version)

	bill, err := a.Get(ctx, models.DefaultBillID)
	require.NoError(t, err)
	assert.Len(t, bill.Participants, 4)
	assert.Equal(t, p, bill.Participants[3])

	err = a.AddParticipant(ctx, models.DefaultBillID, models.Participant{ID: "bad", Initials: "toolong", Color: "red"})
	assert.Error(t, err)
}

func TestRemoveParticipant_SingleVersion(t *testing.T) {
	a, store := seeded(t)
	ctx := context.Background()
	require.NoError(t, a.Assign(ctx, models.DefaultBillID, "item1", "userB"))
	require.NoError(t, a.Assign(ctx, models.DefaultBillID, "item2", "userB"))

	before, err := store.Get(ctx, Ref(models.DefaultBillID))
	require.NoError(t, err)

	var mu sync.Mutex
	var seen []*models.Bill
	stop := a.Subscribe(ctx, models.DefaultBillID, func(b *models.Bill) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, b)
	}, nil)
	defer stop()
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 1
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, a.RemoveParticipant(ctx, models.DefaultBillID, "userB"))

	after, err := store.Get(ctx, Ref(models.DefaultBillID))
	require.NoError(t, err)
	assert.Equal(t, before.Version+1, after.Version)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 2
	}, 5*time.Second, 10*time.Millisecond)

	mu.Lock()
	bill := seen[1]
	mu.Unlock()
	assert.False(t, bill.HasParticipant("userB"))
	for _, item := range bill.Items {
		assert.False(t, item.IsClaimedBy("userB"), "item %s still claimed", item.ID)
	}

	// Removing again is a stale no-op.
	require.NoError(t, a.RemoveParticipant(ctx, models.DefaultBillID, "userB"))
	again, err := store.Get(ctx, Ref(models.DefaultBillID))
	require.NoError(t, err)
	assert.Equal(t, after.Version, again.Version)
}

func TestClosedBill(t *testing.T) {
	a, _ := seeded(t)
	ctx := context.Background()
	require.NoError(t, a.SetStatus(ctx, models.DefaultBillID, models.BillStatusClosed))

	assert.ErrorIs(t, a.Assign(ctx, models.DefaultBillID, "item1", "userA"), ErrBillClosed)
	assert.ErrorIs(t, a.RemoveParticipant(ctx, models.DefaultBillID, "userA"), ErrBillClosed)
	assert.ErrorIs(t, a.AddParticipant(ctx, models.DefaultBillID,
		models.Participant{ID: "u9", Initials: "NP", Color: "#00897B"}), ErrBillClosed)

	require.NoError(t, a.SetStatus(ctx, models.DefaultBillID, models.BillStatusActive))
	assert.NoError(t, a.Assign(ctx, models.DefaultBillID, "item1", "userA"))

	assert.Error(t, a.SetStatus(ctx, models.DefaultBillID, "archived"))
}

// contendedStore makes a competing write land between the adapter's read and its write.
type contendedStore struct {
	docstore.Store
	remaining atomic.Int32
	updates   atomic.Int32
}

func (s *contendedStore) Update(ctx context.Context, ref docstore.Ref, fields docstore.Fields, opts ...docstore.UpdateOption) (int64, error) {
	s.updates.Add(1)
	if s.remaining.Add(-1) >= 0 {
		if _, err := s.Store.Update(ctx, ref, docstore.Fields{"gst": 31}); err != nil {
			return 0, err
		}
	}
	return s.Store.Update(ctx, ref, fields, opts...)
}

func TestAssign_RetriesOnConflict(t *testing.T) {
	store := &contendedStore{Store: docstore.NewMemory()}
	a := New(store, testLogger())
	ctx := context.Background()
	require.NoError(t, a.Create(ctx, models.SampleBill()))

	store.remaining.Store(2)
	require.NoError(t, a.Assign(ctx, models.DefaultBillID, "item1", "userA"))
	assert.Equal(t, int32(3), store.updates.Load())

	bill, err := a.Get(ctx, models.DefaultBillID)
	require.NoError(t, err)
	assert.Equal(t, []string{"userA"}, bill.Items[0].AssignedTo)
	assert.Equal(t, 31.0, bill.GST)
}

func TestAssign_GivesUpUnderContention(t *testing.T) {
	store := &contendedStore{Store: docstore.NewMemory()}
	a := New(store, testLogger())
	ctx := context.Background()
	require.NoError(t, a.Create(ctx, models.SampleBill()))

	store.remaining.Store(100)
	err := a.Assign(ctx, models.DefaultBillID, "item1", "userA")
	assert.ErrorIs(t, err, ErrTooMuchContention)
	assert.Equal(t, int32(DefaultMaxAttempts), store.updates.Load())
}

func TestConcurrentAssignsKeepEveryToggle(t *testing.T) {
	a, _ := seeded(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for _, id := range []string{"userA", "userB", "userC"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, a.Assign(ctx, models.DefaultBillID, "item5", id))
		}()
	}
	wg.Wait()

	bill, err := a.Get(ctx, models.DefaultBillID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"userA", "userB", "userC"}, bill.Items[4].AssignedTo)
}

func TestSubscribe_MissingAndMalformed(t *testing.T) {
	store := docstore.NewMemory()
	a := New(store, testLogger())
	ctx := context.Background()

	updates := make(chan *models.Bill, 4)
	errs := make(chan error, 4)
	stop := a.Subscribe(ctx, "b1", func(b *models.Bill) { updates <- b }, func(err error) { errs <- err })
	defer stop()

	select {
	case b := <-updates:
		assert.Nil(t, b)
	case <-time.After(5 * time.Second):
		t.Fatal("no initial delivery")
	}

	_, err := store.Create(ctx, Ref("b1"), docstore.Fields{"status": "archived"})
	require.NoError(t, err)
	select {
	case err := <-errs:
		assert.ErrorIs(t, err, ErrMalformedBill)
	case <-time.After(5 * time.Second):
		t.Fatal("malformed document not reported")
	}
}

func TestBillIDSelection(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"https://splitqr.app/?bill=T12", "T12"},
		{"https://splitqr.app/?bill=%20T12%20", "T12"},
		{"https://splitqr.app/", models.DefaultBillID},
		{"https://splitqr.app/?bill=a/b", models.DefaultBillID},
		{"%zz", models.DefaultBillID},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, BillIDFromURL(tt.raw))
		})
	}
	assert.Equal(t, "X1", BillIDFromQuery(url.Values{"bill": {"X1"}}))
}
