package lifecycle_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/md-rashed-zaman/sqip/services/queue-service/internal/actor"
	"github.com/md-rashed-zaman/sqip/services/queue-service/internal/apperr"
	"github.com/md-rashed-zaman/sqip/services/queue-service/internal/availability"
	"github.com/md-rashed-zaman/sqip/services/queue-service/internal/lifecycle"
	"github.com/md-rashed-zaman/sqip/services/queue-service/internal/locks"
	"github.com/md-rashed-zaman/sqip/services/queue-service/internal/model"
	"github.com/md-rashed-zaman/sqip/services/queue-service/internal/queue"
	"github.com/md-rashed-zaman/sqip/services/queue-service/internal/schedule"
	"github.com/md-rashed-zaman/sqip/services/queue-service/internal/storage"
)

var now = time.Date(2026, 3, 2, 7, 0, 0, 0, time.UTC) // Monday

type fixture struct {
	svc    *lifecycle.Service
	store  *storage.Memory
	locker locks.Locker
}

func setup(t *testing.T) fixture {
	return setupWith(t, nil)
}

// setupWith builds the fixture with the engines reading through wrap(store)
// when wrap is set.
func setupWith(t *testing.T, wrap func(*storage.Memory) storage.Store) fixture {
	t.Helper()
	store := storage.NewMemory()
	locker := locks.NewLocal()

	var h schedule.Hours
	h.Opening[time.Monday] = []schedule.Window{{Start: 9 * 60, End: 17 * 60}}

	store.PutOrganization(model.Organization{ID: "org-1", Name: "Clinic", Status: model.EntityActive})
	store.PutOrganization(model.Organization{ID: "org-2", Name: "Closed", Status: model.EntityInactive})
	store.PutCategory(model.Category{ID: "walk-in", OrganizationID: "org-1", Status: model.EntityActive})
	store.PutCategory(model.Category{ID: "paused", OrganizationID: "org-1", Status: model.EntityInactive})
	store.PutCategory(model.Category{ID: "closed-org-cat", OrganizationID: "org-2", Status: model.EntityActive})
	store.PutCategory(model.Category{
		ID: "consult", OrganizationID: "org-1", Status: model.EntityActive,
		IsScheduled: true, TimeZone: "UTC", Hours: h, Interval: 30 * time.Minute, MaxAdvanceDays: 3,
	})

	var engineStore storage.Store = store
	if wrap != nil {
		engineStore = wrap(store)
	}
	q := queue.NewEngine(engineStore, locker, nil)
	slots := availability.NewEngine(engineStore, locker, nil).WithClock(func() time.Time { return now })
	return fixture{svc: lifecycle.NewService(engineStore, store, q, slots, nil), store: store, locker: locker}
}

func (f fixture) walkIn(t *testing.T, user string) model.Appointment {
	t.Helper()
	a, err := f.svc.Create(context.Background(), lifecycle.CreateRequest{OrganizationID: "org-1", CategoryID: "walk-in", UserID: user})
	require.NoError(t, err)
	return a
}

func TestNext(t *testing.T) {
	tests := []struct {
		from model.Status
		ev   lifecycle.Event
		to   model.Status
		ok   bool
	}{
		{model.StatusActive, lifecycle.EventCheckIn, model.StatusCheckin, true},
		{model.StatusInactive, lifecycle.EventCheckIn, "", false},
		{model.StatusActive, lifecycle.EventCancel, model.StatusCancel, true},
		{model.StatusInactive, lifecycle.EventCancel, model.StatusCancel, true},
		{model.StatusCheckin, lifecycle.EventCancel, "", false},
		{model.StatusCancel, lifecycle.EventCancel, "", false},
		{model.StatusActive, lifecycle.EventDeactivate, model.StatusInactive, true},
		{model.StatusCheckin, lifecycle.EventDeactivate, "", false},
		{model.StatusInactive, lifecycle.EventActivate, model.StatusActive, true},
		{model.StatusCancel, lifecycle.EventActivate, "", false},
		{model.StatusActive, lifecycle.Event("teleport"), "", false},
	}
	for _, tt := range tests {
		got, err := lifecycle.Next(tt.from, tt.ev)
		if tt.ok {
			require.NoError(t, err)
			assert.Equal(t, tt.to, got)
			continue
		}
		assert.ErrorIs(t, err, apperr.ErrInvalidTransition, "%s from %s", tt.ev, tt.from)
		assert.ErrorIs(t, err, apperr.ErrState)
	}
}

func TestCreate_DispatchesOnCategory(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	a := f.walkIn(t, "u1")
	assert.False(t, a.IsScheduled)
	assert.Equal(t, "1", a.Counter.String())

	b, err := f.svc.Create(ctx, lifecycle.CreateRequest{
		OrganizationID: "org-1", CategoryID: "consult", UserID: "u1",
		Start: time.Date(2026, 3, 2, 10, 30, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.True(t, b.IsScheduled)
	assert.True(t, b.ScheduledEndTime.Equal(time.Date(2026, 3, 2, 11, 0, 0, 0, time.UTC)))
}

func TestCreate_Rejections(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.walkIn(t, "dup")

	tests := []struct {
		name string
		req  lifecycle.CreateRequest
		want error
	}{
		{"category of other org", lifecycle.CreateRequest{OrganizationID: "org-2", CategoryID: "walk-in", UserID: "u"}, apperr.ErrCategoryMismatch},
		{"unknown org", lifecycle.CreateRequest{OrganizationID: "nope", CategoryID: "walk-in", UserID: "u"}, apperr.ErrNotFound},
		{"unknown category", lifecycle.CreateRequest{OrganizationID: "org-1", CategoryID: "nope", UserID: "u"}, apperr.ErrNotFound},
		{"inactive org", lifecycle.CreateRequest{OrganizationID: "org-2", CategoryID: "closed-org-cat", UserID: "u"}, apperr.ErrOrganizationInactive},
		{"inactive category", lifecycle.CreateRequest{OrganizationID: "org-1", CategoryID: "paused", UserID: "u"}, apperr.ErrCategoryInactive},
		{"duplicate", lifecycle.CreateRequest{OrganizationID: "org-1", CategoryID: "walk-in", UserID: "dup"}, apperr.ErrDuplicateAppointment},
		{"scheduled without time", lifecycle.CreateRequest{OrganizationID: "org-1", CategoryID: "consult", UserID: "u"}, apperr.ErrSlotOutOfRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Create(ctx, tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestCheckIn(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	a := f.walkIn(t, "u1")

	got, err := f.svc.CheckIn(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCheckin, got.Status)

	_, err = f.svc.CheckIn(ctx, a.ID)
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)
	_, err = f.svc.Cancel(ctx, a.ID)
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)

	// Checked-in user may queue again.
	f.walkIn(t, "u1")
}

func TestCheckIn_ScheduledRejected(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	b, err := f.svc.Create(ctx, lifecycle.CreateRequest{
		OrganizationID: "org-1", CategoryID: "consult", UserID: "u1",
		Start: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	_, err = f.svc.CheckIn(ctx, b.ID)
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)
}

func TestCancel_ScheduledFreesSlot(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	b, err := f.svc.Create(ctx, lifecycle.CreateRequest{OrganizationID: "org-1", CategoryID: "consult", UserID: "u1", Start: start})
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, lifecycle.CreateRequest{OrganizationID: "org-1", CategoryID: "consult", UserID: "u2", Start: start})
	require.ErrorIs(t, err, apperr.ErrSlotNotAvailable)

	cancelled, err := f.svc.Cancel(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancel, cancelled.Status)

	_, err = f.svc.Create(ctx, lifecycle.CreateRequest{OrganizationID: "org-1", CategoryID: "consult", UserID: "u2", Start: start})
	require.NoError(t, err)

	day, err := f.svc.Slots(ctx, "consult", start)
	require.NoError(t, err)
	assert.Equal(t, 15, day.AvailableCount)
}

func TestDeactivateThenActivate(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	a := f.walkIn(t, "a")
	f.walkIn(t, "b")
	done := f.walkIn(t, "c")
	_, err := f.svc.CheckIn(ctx, done.ID)
	require.NoError(t, err)

	changed, err := f.svc.DeactivateCategory(ctx, "walk-in")
	require.NoError(t, err)
	assert.Len(t, changed, 2)

	_, err = f.svc.CheckIn(ctx, a.ID)
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)

	d := f.walkIn(t, "d")
	got, err := f.svc.Activate(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusActive, got.Status)
	assert.True(t, d.Counter.Less(got.Counter))

	_, err = f.svc.Activate(ctx, a.ID)
	assert.ErrorIs(t, err, apperr.ErrInvalidState)

	queued, err := f.svc.Queue(ctx, model.PartitionKey{OrganizationID: "org-1", CategoryID: "walk-in"}, model.StatusActive)
	require.NoError(t, err)
	require.Len(t, queued, 2)
	assert.Equal(t, []string{"d", "a"}, []string{queued[0].UserID, queued[1].UserID})
}

func TestCancel_InactiveAppointment(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	a := f.walkIn(t, "a")
	_, err := f.svc.DeactivateCategory(ctx, "walk-in")
	require.NoError(t, err)

	got, err := f.svc.Cancel(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancel, got.Status)

	_, err = f.svc.Activate(ctx, a.ID)
	assert.ErrorIs(t, err, apperr.ErrInvalidState)
}

func TestMove(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	a := f.walkIn(t, "A")
	f.walkIn(t, "B")
	c := f.walkIn(t, "C")

	_, err := f.svc.Move(ctx, c.ID, &a.ID)
	require.NoError(t, err)

	queued, err := f.svc.Queue(ctx, model.PartitionKey{OrganizationID: "org-1", CategoryID: "walk-in"})
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "C", "B"}, []string{queued[0].UserID, queued[1].UserID, queued[2].UserID})
}

func TestSetCategoryStatus(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.walkIn(t, "a")

	changed, err := f.svc.SetCategoryStatus(ctx, "walk-in", model.EntityInactive)
	require.NoError(t, err)
	require.Len(t, changed, 1)
	assert.Equal(t, model.StatusInactive, changed[0].Status)

	_, err = f.svc.Create(ctx, lifecycle.CreateRequest{OrganizationID: "org-1", CategoryID: "walk-in", UserID: "b"})
	assert.ErrorIs(t, err, apperr.ErrCategoryInactive)

	changed, err = f.svc.SetCategoryStatus(ctx, "walk-in", model.EntityActive)
	require.NoError(t, err)
	assert.Empty(t, changed)
	f.walkIn(t, "b")

	_, err = f.svc.SetCategoryStatus(ctx, "walk-in", "archived")
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = f.svc.SetCategoryStatus(ctx, "missing", model.EntityInactive)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

// deactivatingStore flips the category to inactive the first time a partition
// is listed, i.e. while a transition already holds the partition lock and has
// read the appointment as active.
type deactivatingStore struct {
	*storage.Memory
	once sync.Once
}

func (s *deactivatingStore) ListPartition(ctx context.Context, p model.PartitionKey) ([]model.Appointment, error) {
	s.once.Do(func() { _, _ = s.Memory.DeactivateCategory(ctx, p.CategoryID) })
	return s.Memory.ListPartition(ctx, p)
}

func TestCheckIn_DoesNotOverwriteConcurrentDeactivation(t *testing.T) {
	f := setupWith(t, func(m *storage.Memory) storage.Store { return &deactivatingStore{Memory: m} })
	ctx := context.Background()
	a, err := f.store.CreateAppointment(ctx, model.Appointment{
		OrganizationID: "org-1", CategoryID: "walk-in", UserID: "a",
		Status: model.StatusActive, Counter: model.NewCounter(1),
	})
	require.NoError(t, err)

	_, err = f.svc.CheckIn(ctx, a.ID)
	require.ErrorIs(t, err, apperr.ErrStaleAppointment)
	assert.ErrorIs(t, err, apperr.ErrConflict)

	got, err := f.svc.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusInactive, got.Status)

	_, err = f.svc.CheckIn(ctx, a.ID)
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)
}

func TestDeactivateCategory_WaitsForQueueLock(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	a := f.walkIn(t, "a")

	unlock, err := f.locker.Lock(ctx, locks.QueueKey(a.Partition()))
	require.NoError(t, err)

	done := make(chan int)
	go func() {
		changed, err := f.svc.DeactivateCategory(ctx, "walk-in")
		assert.NoError(t, err)
		done <- len(changed)
	}()
	select {
	case <-done:
		t.Fatal("deactivation ran while the queue was locked")
	case <-time.After(50 * time.Millisecond):
	}
	unlock()
	assert.Equal(t, 1, <-done)
}

func TestDeactivateCategory_WaitsForSlotLock(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	b, err := f.svc.Create(ctx, lifecycle.CreateRequest{
		OrganizationID: "org-1", CategoryID: "consult", UserID: "u1",
		Start: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	unlock, err := f.locker.Lock(ctx, locks.SlotKey("consult", time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)))
	require.NoError(t, err)

	done := make(chan []model.Appointment)
	go func() {
		changed, err := f.svc.DeactivateCategory(ctx, "consult")
		assert.NoError(t, err)
		done <- changed
	}()
	select {
	case <-done:
		t.Fatal("deactivation ran while a booking day was locked")
	case <-time.After(50 * time.Millisecond):
	}
	unlock()
	changed := <-done
	require.Len(t, changed, 1)
	assert.Equal(t, b.ID, changed[0].ID)
}

func TestCreate_RechecksCategoryUnderLock(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	key := model.PartitionKey{OrganizationID: "org-1", CategoryID: "walk-in"}

	unlock, err := f.locker.Lock(ctx, locks.QueueKey(key))
	require.NoError(t, err)

	done := make(chan error)
	go func() {
		_, err := f.svc.Create(ctx, lifecycle.CreateRequest{OrganizationID: "org-1", CategoryID: "walk-in", UserID: "late"})
		done <- err
	}()
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, f.store.SetCategoryStatus(ctx, "walk-in", model.EntityInactive))
	unlock()

	assert.ErrorIs(t, <-done, apperr.ErrCategoryInactive)
	members, err := f.svc.Queue(ctx, key)
	require.NoError(t, err)
	assert.Empty(t, members)
}

func TestTransitions_RecordActor(t *testing.T) {
	f := setup(t)
	ctx := actor.With(context.Background(), "admin-1")

	a, err := f.svc.Create(ctx, lifecycle.CreateRequest{OrganizationID: "org-1", CategoryID: "walk-in", UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, "admin-1", a.CreatedBy)
	assert.Equal(t, "admin-1", a.UpdatedBy)

	changed, err := f.svc.DeactivateCategory(context.Background(), "walk-in")
	require.NoError(t, err)
	require.Len(t, changed, 1)
	assert.Equal(t, actor.System, changed[0].UpdatedBy)

	got, err := f.svc.Cancel(actor.With(context.Background(), "u1"), a.ID)
	require.NoError(t, err)
	assert.Equal(t, "admin-1", got.CreatedBy)
	assert.Equal(t, "u1", got.UpdatedBy)
}

func TestInactiveBookingKeepsItsSlot(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	b, err := f.svc.Create(ctx, lifecycle.CreateRequest{OrganizationID: "org-1", CategoryID: "consult", UserID: "u1", Start: start})
	require.NoError(t, err)

	_, err = f.svc.SetCategoryStatus(ctx, "consult", model.EntityInactive)
	require.NoError(t, err)
	_, err = f.svc.SetCategoryStatus(ctx, "consult", model.EntityActive)
	require.NoError(t, err)

	_, err = f.svc.Create(ctx, lifecycle.CreateRequest{OrganizationID: "org-1", CategoryID: "consult", UserID: "u2", Start: start})
	assert.ErrorIs(t, err, apperr.ErrSlotNotAvailable)

	got, err := f.svc.Activate(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusActive, got.Status)
	assert.True(t, got.ScheduledTime.Equal(start))
}
