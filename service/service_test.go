package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/jmoiron/sqlx"
	"github.com/oriser/tramper/notification"
	"github.com/oriser/tramper/request"
	"github.com/oriser/tramper/shipment"
	"github.com/oriser/tramper/storage/db"
	"github.com/oriser/tramper/user"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	lock   sync.Mutex
	events []notification.Event
}

func (r *recordingNotifier) Notify(event notification.Event) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingNotifier) Events() []notification.Event {
	r.lock.Lock()
	defer r.lock.Unlock()
	return append([]notification.Event(nil), r.events...)
}

type serviceTest struct {
	service  *Service
	store    *db.DBStore
	notifier *recordingNotifier
}

func newServiceTest(t *testing.T, cfg Config) *serviceTest {
	t.Helper()

	sqlDB, err := sqlx.Connect("sqlite3", db.SQLiteDSN(":memory:"))
	require.NoError(t, err)

	driver, err := sqlite3.WithInstance(sqlDB.DB, &sqlite3.Config{})
	require.NoError(t, err)

	store, err := db.New(sqlDB, driver, db.DialectSQLite, "")
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, store.Close())
	})

	notifier := &recordingNotifier{}
	svc, err := New(cfg, store, store, store, store, store, notifier)
	require.NoError(t, err)

	return &serviceTest{service: svc, store: store, notifier: notifier}
}

func (s *serviceTest) addUser(t *testing.T, name string) user.Actor {
	t.Helper()
	u := &user.User{ID: name, FullName: name}
	require.NoError(t, s.store.AddUser(context.Background(), u))
	return user.Actor{ID: u.ID}
}

func (s *serviceTest) addShipment(t *testing.T, owner user.Actor, weight int64) *shipment.Shipment {
	t.Helper()
	sh, err := s.service.CreateShipment(context.Background(), owner, CreateShipmentInput{
		Name:   "Parcel",
		Weight: decimal.NewFromInt(weight),
		Reward: decimal.NewFromInt(20),
	})
	require.NoError(t, err)
	return sh
}

func (s *serviceTest) addTrip(t *testing.T, traveler user.Actor, capacity int64) string {
	t.Helper()
	tr, err := s.service.CreateTrip(context.Background(), traveler, CreateTripInput{
		FromLocation: "Tel Aviv",
		ToLocation:   "Berlin",
		DepartureAt:  time.Now().Add(48 * time.Hour),
		TotalWeight:  decimal.NewFromInt(capacity),
	})
	require.NoError(t, err)
	return tr.ID
}

func strPtr(s string) *string {
	return &s
}

func TestNegotiationScenario(t *testing.T) {
	t.Parallel()

	st := newServiceTest(t, Config{})
	ctx := context.Background()
	alice := st.addUser(t, "alice")
	bob := st.addUser(t, "bob")
	sh := st.addShipment(t, alice, 3)

	// 1. Alice recruits Bob for her shipment.
	r, err := st.service.CreateRequest(ctx, alice, CreateRequestInput{
		ReceiverID:   bob.ID,
		ShipmentID:   &sh.ID,
		OfferedPrice: decimal.NewFromInt(50),
	})
	require.NoError(t, err)
	assert.Equal(t, request.StatusPending, r.Status)
	assert.Equal(t, "50", r.CurrentPrice().String())

	// 2. Bob counters with 40.
	r, err = st.service.AppendCounterOffer(ctx, bob, r.ID, decimal.NewFromInt(40), nil)
	require.NoError(t, err)
	assert.Equal(t, request.StatusCountered, r.Status)
	assert.Equal(t, "40", r.CurrentPrice().String())
	assert.Equal(t, bob.ID, r.LatestCounterOffer().SenderID)
	assert.Equal(t, alice.ID, r.LatestCounterOffer().ReceiverID)

	// 3. Alice counters with 45.
	r, err = st.service.AppendCounterOffer(ctx, alice, r.ID, decimal.NewFromInt(45), strPtr("meet me halfway"))
	require.NoError(t, err)
	assert.Equal(t, request.StatusCountered, r.Status)
	assert.Equal(t, "45", r.CurrentPrice().String())
	assert.Equal(t, alice.ID, r.LatestCounterOffer().SenderID)
	assert.Equal(t, bob.ID, r.LatestCounterOffer().ReceiverID)

	// 4. Bob accepts and becomes the traveler.
	r, err = st.service.UpdateRequestStatus(ctx, bob, r.ID, request.StatusAccepted)
	require.NoError(t, err)
	assert.Equal(t, request.StatusAccepted, r.Status)

	gotShipment, err := st.store.GetShipment(ctx, sh.ID)
	require.NoError(t, err)
	assert.Equal(t, shipment.StatusAccepted, gotShipment.Status)
	require.NotNil(t, gotShipment.TravelerID)
	assert.Equal(t, bob.ID, *gotShipment.TravelerID)

	// 5. Nothing moves a finalized request.
	_, err = st.service.UpdateRequestStatus(ctx, alice, r.ID, request.StatusAccepted)
	assert.Equal(t, request.KindState, request.KindOf(err))
	_, err = st.service.UpdateRequestStatus(ctx, bob, r.ID, request.StatusAccepted)
	assert.Equal(t, request.KindState, request.KindOf(err))
	_, err = st.service.AppendCounterOffer(ctx, bob, r.ID, decimal.NewFromInt(30), nil)
	assert.Equal(t, request.KindState, request.KindOf(err))

	persisted, err := st.store.GetRequest(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, request.StatusAccepted, persisted.Status)
	assert.Len(t, persisted.CounterOffers, 2)
	assert.Equal(t, "45", persisted.CurrentPrice().String())

	events := st.notifier.Events()
	require.Len(t, events, 4)
	assert.Equal(t, notification.KindRequestCreated, events[0].Kind)
	assert.Equal(t, bob.ID, events[0].RecipientID)
	assert.Equal(t, "alice", events[0].ActorName)
	assert.Equal(t, notification.KindCounterOfferCreated, events[1].Kind)
	assert.Equal(t, alice.ID, events[1].RecipientID)
	assert.Equal(t, "40", events[1].Price.String())
	assert.Equal(t, notification.KindCounterOfferCreated, events[2].Kind)
	assert.Equal(t, bob.ID, events[2].RecipientID)
	assert.Equal(t, notification.KindRequestAccepted, events[3].Kind)
	assert.Equal(t, alice.ID, events[3].RecipientID)
}

func TestCounterOfferZeroPrice(t *testing.T) {
	t.Parallel()

	st := newServiceTest(t, Config{})
	ctx := context.Background()
	alice := st.addUser(t, "alice")
	bob := st.addUser(t, "bob")
	sh := st.addShipment(t, alice, 1)

	r, err := st.service.CreateRequest(ctx, alice, CreateRequestInput{ReceiverID: bob.ID, ShipmentID: &sh.ID, OfferedPrice: decimal.NewFromInt(50)})
	require.NoError(t, err)

	_, err = st.service.AppendCounterOffer(ctx, bob, r.ID, decimal.Zero, nil)
	assert.Equal(t, request.KindValidation, request.KindOf(err))

	_, err = st.service.AppendCounterOffer(ctx, user.Actor{ID: "mallory"}, r.ID, decimal.NewFromInt(10), nil)
	assert.Equal(t, request.KindAuthorization, request.KindOf(err))

	_, err = st.service.AppendCounterOffer(ctx, bob, "missing", decimal.NewFromInt(10), nil)
	assert.Equal(t, request.KindNotFound, request.KindOf(err))

	persisted, err := st.store.GetRequest(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, request.StatusPending, persisted.Status)
	assert.Empty(t, persisted.CounterOffers)
}

func TestCreateRequestErrors(t *testing.T) {
	t.Parallel()

	st := newServiceTest(t, Config{})
	ctx := context.Background()
	alice := st.addUser(t, "alice")
	bob := st.addUser(t, "bob")
	sh := st.addShipment(t, alice, 1)

	tests := []struct {
		name          string
		input         CreateRequestInput
		expectedKind  request.Kind
		expectedField string
	}{
		{
			name:          "no subject",
			input:         CreateRequestInput{ReceiverID: bob.ID, OfferedPrice: decimal.NewFromInt(5)},
			expectedKind:  request.KindValidation,
			expectedField: "shipment_id",
		},
		{
			name:          "self request",
			input:         CreateRequestInput{ReceiverID: alice.ID, ShipmentID: &sh.ID, OfferedPrice: decimal.NewFromInt(5)},
			expectedKind:  request.KindValidation,
			expectedField: "receiver_id",
		},
		{
			name:          "negative price",
			input:         CreateRequestInput{ReceiverID: bob.ID, ShipmentID: &sh.ID, OfferedPrice: decimal.NewFromInt(-1)},
			expectedKind:  request.KindValidation,
			expectedField: "offered_price",
		},
		{
			name:         "missing shipment",
			input:        CreateRequestInput{ReceiverID: bob.ID, ShipmentID: strPtr("nope"), OfferedPrice: decimal.NewFromInt(5)},
			expectedKind: request.KindNotFound,
		},
		{
			name:         "missing trip",
			input:        CreateRequestInput{ReceiverID: bob.ID, TripID: strPtr("nope"), OfferedPrice: decimal.NewFromInt(5)},
			expectedKind: request.KindNotFound,
		},
		{
			name:         "missing receiver",
			input:        CreateRequestInput{ReceiverID: "ghost", ShipmentID: &sh.ID, OfferedPrice: decimal.NewFromInt(5)},
			expectedKind: request.KindNotFound,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			_, err := st.service.CreateRequest(ctx, alice, tc.input)
			require.Error(t, err)
			assert.Equal(t, tc.expectedKind, request.KindOf(err))
			if tc.expectedField != "" {
				var validationErr *request.ValidationError
				require.ErrorAs(t, err, &validationErr)
				assert.Equal(t, tc.expectedField, validationErr.Field)
			}
		})
	}

	all, err := st.store.ListRequests(ctx, request.ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, all)
	assert.Empty(t, st.notifier.Events())
}

func TestFinalizationTraveler(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name             string
		shipmentOwnerIdx int
		senderIdx        int
		expectedTraveler int
	}{
		{
			name:             "owner recruits traveler",
			shipmentOwnerIdx: 0,
			senderIdx:        0,
			expectedTraveler: 1,
		},
		{
			name:             "traveler offers to carry",
			shipmentOwnerIdx: 1,
			senderIdx:        0,
			expectedTraveler: 0,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			st := newServiceTest(t, Config{})
			ctx := context.Background()
			users := []user.Actor{st.addUser(t, "alice"), st.addUser(t, "bob")}
			sh := st.addShipment(t, users[tc.shipmentOwnerIdx], 2)

			sender := users[tc.senderIdx]
			receiver := users[1-tc.senderIdx]
			r, err := st.service.CreateRequest(ctx, sender, CreateRequestInput{ReceiverID: receiver.ID, ShipmentID: &sh.ID, OfferedPrice: decimal.NewFromInt(10)})
			require.NoError(t, err)

			_, err = st.service.UpdateRequestStatus(ctx, receiver, r.ID, request.StatusAccepted)
			require.NoError(t, err)

			got, err := st.store.GetShipment(ctx, sh.ID)
			require.NoError(t, err)
			assert.Equal(t, shipment.StatusAccepted, got.Status)
			require.NotNil(t, got.TravelerID)
			assert.Equal(t, users[tc.expectedTraveler].ID, *got.TravelerID)
		})
	}
}

func TestAcceptOnMatchedShipmentReassignsTraveler(t *testing.T) {
	t.Parallel()

	st := newServiceTest(t, Config{})
	ctx := context.Background()
	alice := st.addUser(t, "alice")
	bob := st.addUser(t, "bob")
	carol := st.addUser(t, "carol")
	sh := st.addShipment(t, alice, 2)

	toBob, err := st.service.CreateRequest(ctx, alice, CreateRequestInput{ReceiverID: bob.ID, ShipmentID: &sh.ID, OfferedPrice: decimal.NewFromInt(10)})
	require.NoError(t, err)
	toCarol, err := st.service.CreateRequest(ctx, alice, CreateRequestInput{ReceiverID: carol.ID, ShipmentID: &sh.ID, OfferedPrice: decimal.NewFromInt(12)})
	require.NoError(t, err)

	_, err = st.service.UpdateRequestStatus(ctx, bob, toBob.ID, request.StatusAccepted)
	require.NoError(t, err)
	_, err = st.service.UpdateRequestStatus(ctx, carol, toCarol.ID, request.StatusAccepted)
	require.NoError(t, err)

	// The latest acceptance wins the shipment; the earlier request stays accepted.
	got, err := st.store.GetShipment(ctx, sh.ID)
	require.NoError(t, err)
	assert.Equal(t, shipment.StatusAccepted, got.Status)
	require.NotNil(t, got.TravelerID)
	assert.Equal(t, carol.ID, *got.TravelerID)

	first, err := st.store.GetRequest(ctx, toBob.ID)
	require.NoError(t, err)
	assert.Equal(t, request.StatusAccepted, first.Status)
}

func TestTransitionRoles(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		actor        string
		to           request.Status
		expectedKind request.Kind
	}{
		{name: "sender cannot accept", actor: "alice", to: request.StatusAccepted, expectedKind: request.KindAuthorization},
		{name: "sender cannot reject", actor: "alice", to: request.StatusRejected, expectedKind: request.KindAuthorization},
		{name: "receiver cannot cancel", actor: "bob", to: request.StatusCancelled, expectedKind: request.KindAuthorization},
		{name: "admin has no role", actor: "admin", to: request.StatusAccepted, expectedKind: request.KindAuthorization},
		{name: "expired is not requestable", actor: "bob", to: request.StatusExpired, expectedKind: request.KindValidation},
		{name: "countered is not requestable", actor: "bob", to: request.StatusCountered, expectedKind: request.KindValidation},
		{name: "receiver rejects", actor: "bob", to: request.StatusRejected},
		{name: "sender cancels", actor: "alice", to: request.StatusCancelled},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			st := newServiceTest(t, Config{})
			ctx := context.Background()
			alice := st.addUser(t, "alice")
			bob := st.addUser(t, "bob")
			sh := st.addShipment(t, alice, 1)

			r, err := st.service.CreateRequest(ctx, alice, CreateRequestInput{ReceiverID: bob.ID, ShipmentID: &sh.ID, OfferedPrice: decimal.NewFromInt(10)})
			require.NoError(t, err)

			actor := user.Actor{ID: tc.actor, IsAdmin: tc.actor == "admin"}
			updated, err := st.service.UpdateRequestStatus(ctx, actor, r.ID, tc.to)
			persisted, getErr := st.store.GetRequest(ctx, r.ID)
			require.NoError(t, getErr)

			if tc.expectedKind != "" {
				assert.Equal(t, tc.expectedKind, request.KindOf(err))
				assert.Equal(t, request.StatusPending, persisted.Status)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.to, updated.Status)
			assert.Equal(t, tc.to, persisted.Status)

			// Rejection and cancellation leave the shipment alone.
			got, err := st.store.GetShipment(ctx, sh.ID)
			require.NoError(t, err)
			assert.Equal(t, shipment.StatusPending, got.Status)
			assert.Nil(t, got.TravelerID)
		})
	}
}

func TestCancelSendsNoNotification(t *testing.T) {
	t.Parallel()

	st := newServiceTest(t, Config{})
	ctx := context.Background()
	alice := st.addUser(t, "alice")
	bob := st.addUser(t, "bob")
	sh := st.addShipment(t, alice, 1)

	r, err := st.service.CreateRequest(ctx, alice, CreateRequestInput{ReceiverID: bob.ID, ShipmentID: &sh.ID, OfferedPrice: decimal.NewFromInt(10)})
	require.NoError(t, err)
	_, err = st.service.UpdateRequestStatus(ctx, alice, r.ID, request.StatusCancelled)
	require.NoError(t, err)

	events := st.notifier.Events()
	require.Len(t, events, 1)
	assert.Equal(t, notification.KindRequestCreated, events[0].Kind)
}

func TestStrictCapacity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		strict         bool
		capacity       int64
		weight         int64
		expectedKind   request.Kind
		expectedUsed   string
		expectedStatus request.Status
	}{
		{name: "lenient ignores capacity", strict: false, capacity: 2, weight: 5, expectedUsed: "0", expectedStatus: request.StatusAccepted},
		{name: "strict debits trip", strict: true, capacity: 10, weight: 4, expectedUsed: "4", expectedStatus: request.StatusAccepted},
		{name: "strict exact fit", strict: true, capacity: 4, weight: 4, expectedUsed: "4", expectedStatus: request.StatusAccepted},
		{name: "strict over capacity rolls back", strict: true, capacity: 3, weight: 4, expectedKind: request.KindState, expectedUsed: "0", expectedStatus: request.StatusPending},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			st := newServiceTest(t, Config{StrictCapacity: tc.strict})
			ctx := context.Background()
			alice := st.addUser(t, "alice")
			bob := st.addUser(t, "bob")
			sh := st.addShipment(t, alice, tc.weight)
			tripID := st.addTrip(t, bob, tc.capacity)

			r, err := st.service.CreateRequest(ctx, alice, CreateRequestInput{ReceiverID: bob.ID, ShipmentID: &sh.ID, TripID: &tripID, OfferedPrice: decimal.NewFromInt(10)})
			require.NoError(t, err)

			_, err = st.service.UpdateRequestStatus(ctx, bob, r.ID, request.StatusAccepted)
			if tc.expectedKind != "" {
				assert.Equal(t, tc.expectedKind, request.KindOf(err))
				assert.Contains(t, err.Error(), "trip capacity exceeded")
			} else {
				require.NoError(t, err)
			}

			persisted, err := st.store.GetRequest(ctx, r.ID)
			require.NoError(t, err)
			assert.Equal(t, tc.expectedStatus, persisted.Status)

			gotTrip, err := st.store.GetTrip(ctx, tripID)
			require.NoError(t, err)
			assert.Equal(t, tc.expectedUsed, gotTrip.UsedWeight.String())

			gotShipment, err := st.store.GetShipment(ctx, sh.ID)
			require.NoError(t, err)
			if tc.expectedStatus == request.StatusAccepted {
				assert.Equal(t, shipment.StatusAccepted, gotShipment.Status)
			} else {
				assert.Equal(t, shipment.StatusPending, gotShipment.Status)
				assert.Nil(t, gotShipment.TravelerID)
			}
		})
	}
}

func TestTripOnlyAcceptHasNoSideEffects(t *testing.T) {
	t.Parallel()

	st := newServiceTest(t, Config{StrictCapacity: true})
	ctx := context.Background()
	alice := st.addUser(t, "alice")
	bob := st.addUser(t, "bob")
	tripID := st.addTrip(t, bob, 5)

	r, err := st.service.CreateRequest(ctx, alice, CreateRequestInput{ReceiverID: bob.ID, TripID: &tripID, OfferedPrice: decimal.NewFromInt(10)})
	require.NoError(t, err)
	_, err = st.service.UpdateRequestStatus(ctx, bob, r.ID, request.StatusAccepted)
	require.NoError(t, err)

	gotTrip, err := st.store.GetTrip(ctx, tripID)
	require.NoError(t, err)
	assert.Equal(t, "0", gotTrip.UsedWeight.String())
}

func TestConcurrentAcceptSucceedsOnce(t *testing.T) {
	t.Parallel()

	st := newServiceTest(t, Config{StrictCapacity: true})
	ctx := context.Background()
	alice := st.addUser(t, "alice")
	bob := st.addUser(t, "bob")
	sh := st.addShipment(t, alice, 3)
	tripID := st.addTrip(t, bob, 10)

	r, err := st.service.CreateRequest(ctx, alice, CreateRequestInput{ReceiverID: bob.ID, ShipmentID: &sh.ID, TripID: &tripID, OfferedPrice: decimal.NewFromInt(10)})
	require.NoError(t, err)

	const attempts = 8
	errs := make(chan error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := st.service.UpdateRequestStatus(ctx, bob, r.ID, request.StatusAccepted)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.Contains(t, []request.Kind{request.KindState, request.KindConflict}, request.KindOf(err))
	}
	assert.Equal(t, 1, succeeded)

	// Capacity was debited exactly once.
	gotTrip, err := st.store.GetTrip(ctx, tripID)
	require.NoError(t, err)
	assert.Equal(t, "3", gotTrip.UsedWeight.String())
}

func TestDeleteRequest(t *testing.T) {
	t.Parallel()

	st := newServiceTest(t, Config{})
	ctx := context.Background()
	alice := st.addUser(t, "alice")
	bob := st.addUser(t, "bob")
	sh := st.addShipment(t, alice, 1)

	create := func() *request.Request {
		r, err := st.service.CreateRequest(ctx, alice, CreateRequestInput{ReceiverID: bob.ID, ShipmentID: &sh.ID, OfferedPrice: decimal.NewFromInt(10)})
		require.NoError(t, err)
		_, err = st.service.AppendCounterOffer(ctx, bob, r.ID, decimal.NewFromInt(8), nil)
		require.NoError(t, err)
		return r
	}

	r := create()
	err := st.service.DeleteRequest(ctx, bob, r.ID)
	assert.Equal(t, request.KindAuthorization, request.KindOf(err))

	// Sender deletes even a finalized request.
	_, err = st.service.UpdateRequestStatus(ctx, bob, r.ID, request.StatusRejected)
	require.NoError(t, err)
	require.NoError(t, st.service.DeleteRequest(ctx, alice, r.ID))
	_, err = st.service.GetRequest(ctx, alice, r.ID)
	assert.Equal(t, request.KindNotFound, request.KindOf(err))

	r = create()
	require.NoError(t, st.service.DeleteRequest(ctx, user.Actor{ID: "root", IsAdmin: true}, r.ID))

	err = st.service.DeleteRequest(ctx, alice, r.ID)
	assert.Equal(t, request.KindNotFound, request.KindOf(err))
}

func TestGetRequestPermissions(t *testing.T) {
	t.Parallel()

	st := newServiceTest(t, Config{})
	ctx := context.Background()
	alice := st.addUser(t, "alice")
	bob := st.addUser(t, "bob")
	sh := st.addShipment(t, alice, 1)

	r, err := st.service.CreateRequest(ctx, alice, CreateRequestInput{ReceiverID: bob.ID, ShipmentID: &sh.ID, OfferedPrice: decimal.NewFromInt(10)})
	require.NoError(t, err)

	for _, actor := range []user.Actor{alice, bob, {ID: "root", IsAdmin: true}} {
		got, err := st.service.GetRequest(ctx, actor, r.ID)
		require.NoError(t, err)
		assert.Equal(t, r.ID, got.ID)
	}

	_, err = st.service.GetRequest(ctx, user.Actor{ID: "mallory"}, r.ID)
	assert.Equal(t, request.KindAuthorization, request.KindOf(err))
}

func TestListRequests(t *testing.T) {
	t.Parallel()

	st := newServiceTest(t, Config{})
	ctx := context.Background()
	alice := st.addUser(t, "alice")
	bob := st.addUser(t, "bob")
	carol := st.addUser(t, "carol")
	sh := st.addShipment(t, alice, 1)
	tripID := st.addTrip(t, bob, 5)

	toBob, err := st.service.CreateRequest(ctx, alice, CreateRequestInput{ReceiverID: bob.ID, ShipmentID: &sh.ID, OfferedPrice: decimal.NewFromInt(10)})
	require.NoError(t, err)
	fromCarol, err := st.service.CreateRequest(ctx, carol, CreateRequestInput{ReceiverID: alice.ID, ShipmentID: &sh.ID, OfferedPrice: decimal.NewFromInt(12)})
	require.NoError(t, err)
	carolTrip, err := st.service.CreateRequest(ctx, carol, CreateRequestInput{ReceiverID: bob.ID, TripID: &tripID, OfferedPrice: decimal.NewFromInt(7)})
	require.NoError(t, err)
	_, err = st.service.AppendCounterOffer(ctx, bob, toBob.ID, decimal.NewFromInt(9), nil)
	require.NoError(t, err)

	ids := func(summaries []*request.Summary) []string {
		res := make([]string, 0, len(summaries))
		for _, s := range summaries {
			res = append(res, s.ID)
		}
		return res
	}

	sent, err := st.service.ListRequestsForUser(ctx, alice, request.DirectionSent, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{toBob.ID}, ids(sent))
	assert.Equal(t, 1, sent[0].CounterOffersCount)

	all, err := st.service.ListRequestsForUser(ctx, alice, request.DirectionAll, nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{toBob.ID, fromCarol.ID}, ids(all))

	countered := request.StatusCountered
	filtered, err := st.service.ListRequestsForUser(ctx, bob, request.DirectionReceived, &countered)
	require.NoError(t, err)
	assert.Equal(t, []string{toBob.ID}, ids(filtered))

	bogus := request.Status("bogus")
	_, err = st.service.ListRequestsForUser(ctx, bob, request.DirectionAll, &bogus)
	assert.Equal(t, request.KindValidation, request.KindOf(err))

	// The shipment owner sees every request, others only their own.
	ownerView, err := st.service.ListRequestsForShipment(ctx, alice, sh.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{toBob.ID, fromCarol.ID}, ids(ownerView))

	bobView, err := st.service.ListRequestsForShipment(ctx, bob, sh.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{toBob.ID}, ids(bobView))

	tripView, err := st.service.ListRequestsForTrip(ctx, bob, tripID)
	require.NoError(t, err)
	assert.Equal(t, []string{carolTrip.ID}, ids(tripView))

	_, err = st.service.ListRequestsForTrip(ctx, bob, "missing")
	assert.Equal(t, request.KindNotFound, request.KindOf(err))
}

func TestExpireStale(t *testing.T) {
	t.Parallel()

	st := newServiceTest(t, Config{RequestExpiryAfter: time.Hour, ExpirySweepInterval: time.Minute})
	ctx := context.Background()
	alice := st.addUser(t, "alice")
	bob := st.addUser(t, "bob")
	sh := st.addShipment(t, alice, 1)

	stale := request.New(alice.ID, bob.ID, &sh.ID, nil, decimal.NewFromInt(10), nil)
	stale.CreatedAt = time.Now().UTC().Add(-2 * time.Hour)
	stale.UpdatedAt = stale.CreatedAt
	require.NoError(t, st.store.RunInTx(ctx, func(tx request.Tx) error {
		return tx.InsertRequest(ctx, stale)
	}))

	fresh, err := st.service.CreateRequest(ctx, alice, CreateRequestInput{ReceiverID: bob.ID, ShipmentID: &sh.ID, OfferedPrice: decimal.NewFromInt(10)})
	require.NoError(t, err)

	expired, err := st.service.ExpireStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, expired)

	got, err := st.store.GetRequest(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, request.StatusExpired, got.Status)

	got, err = st.store.GetRequest(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, request.StatusPending, got.Status)

	// Expired is final.
	_, err = st.service.UpdateRequestStatus(ctx, bob, stale.ID, request.StatusAccepted)
	assert.Equal(t, request.KindState, request.KindOf(err))
	_, err = st.service.AppendCounterOffer(ctx, bob, stale.ID, decimal.NewFromInt(5), nil)
	assert.Equal(t, request.KindState, request.KindOf(err))

	expired, err = st.service.ExpireStale(ctx)
	require.NoError(t, err)
	assert.Zero(t, expired)
}

func TestExpiryDisabled(t *testing.T) {
	t.Parallel()

	st := newServiceTest(t, Config{})
	expired, err := st.service.ExpireStale(context.Background())
	require.NoError(t, err)
	assert.Zero(t, expired)

	done := make(chan struct{})
	go func() {
		st.service.ExpiryWorker(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		require.FailNow(t, "expiry worker should return immediately when disabled")
	}
}

func TestNewValidatesConfig(t *testing.T) {
	t.Parallel()

	_, err := New(Config{RequestExpiryAfter: -time.Second}, nil, nil, nil, nil, nil, nil)
	assert.Error(t, err)
	_, err = New(Config{RequestExpiryAfter: time.Hour}, nil, nil, nil, nil, nil, nil)
	assert.Error(t, err)
}

func TestCatalogValidation(t *testing.T) {
	t.Parallel()

	st := newServiceTest(t, Config{})
	ctx := context.Background()
	alice := st.addUser(t, "alice")

	_, err := st.service.CreateShipment(ctx, alice, CreateShipmentInput{Name: "", Weight: decimal.NewFromInt(1)})
	assert.Equal(t, request.KindValidation, request.KindOf(err))
	_, err = st.service.CreateShipment(ctx, alice, CreateShipmentInput{Name: "x", Weight: decimal.Zero})
	assert.Equal(t, request.KindValidation, request.KindOf(err))
	_, err = st.service.CreateTrip(ctx, alice, CreateTripInput{FromLocation: "A", ToLocation: "B", DepartureAt: time.Now(), TotalWeight: decimal.NewFromInt(-2)})
	assert.Equal(t, request.KindValidation, request.KindOf(err))

	amountTests := []struct {
		name  string
		call  func() error
		field string
	}{
		{
			name: "shipment weight below a hundredth",
			call: func() error {
				_, err := st.service.CreateShipment(ctx, alice, CreateShipmentInput{Name: "x", Weight: decimal.RequireFromString("1.005")})
				return err
			},
			field: "weight",
		},
		{
			name: "shipment reward fraction of a cent",
			call: func() error {
				_, err := st.service.CreateShipment(ctx, alice, CreateShipmentInput{Name: "x", Weight: decimal.NewFromInt(1), Reward: decimal.RequireFromString("0.001")})
				return err
			},
			field: "reward",
		},
		{
			name: "trip capacity too large",
			call: func() error {
				_, err := st.service.CreateTrip(ctx, alice, CreateTripInput{FromLocation: "A", ToLocation: "B", DepartureAt: time.Now(), TotalWeight: decimal.New(1, 12)})
				return err
			},
			field: "total_weight",
		},
	}
	for _, tc := range amountTests {
		err := tc.call()
		var validationErr *request.ValidationError
		require.ErrorAs(t, err, &validationErr, tc.name)
		assert.Equal(t, tc.field, validationErr.Field, tc.name)
	}
	_, err = st.service.GetShipment(ctx, "missing")
	assert.Equal(t, request.KindNotFound, request.KindOf(err))

	_, err = st.service.RegisterUser(ctx, alice, user.User{FullName: "Alice Again"})
	assert.Equal(t, request.KindValidation, request.KindOf(err))
	registered, err := st.service.RegisterUser(ctx, user.Actor{ID: "dave"}, user.User{FullName: "Dave"})
	require.NoError(t, err)
	assert.Equal(t, "dave", registered.ID)
}
