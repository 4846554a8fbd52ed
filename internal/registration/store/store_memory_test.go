package store

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	credmodels "voltgrid/internal/credentials/models"
	"voltgrid/internal/registration/models"
	vermodels "voltgrid/internal/versions/models"
	"voltgrid/pkg/domain"
	"voltgrid/pkg/platform/sentinel"
)

var partyB = domain.PartyIdentity{CountryCode: "US", PartyID: "MSP", Role: domain.RoleEMSP}

func registeredRecord(identity domain.PartyIdentity, remoteToken string) *models.Record {
	now := time.Now().UTC().Truncate(time.Microsecond)
	r, _ := models.NewRecord(identity, now)
	r.ApplyRegistration(
		credmodels.Credentials{Token: "local-" + remoteToken, URL: "https://a.example/ocpi/versions"},
		credmodels.Credentials{Token: remoteToken, URL: "https://b.example/ocpi/versions"},
		domain.Version22,
		[]vermodels.EndpointCapability{{Identifier: vermodels.ModuleCredentials, Role: vermodels.InterfaceReceiver, URL: "https://b.example/creds"}},
		now,
	)
	return r
}

type InMemoryStoreSuite struct {
	suite.Suite
	store *InMemory
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryStoreSuite))
}

func (s *InMemoryStoreSuite) SetupTest() {
	s.store = NewInMemory()
}

func (s *InMemoryStoreSuite) TestGetMissing() {
	_, err := s.store.Get(context.Background(), partyB)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *InMemoryStoreSuite) TestCommitAndReadCopies() {
	ctx := context.Background()
	rec := registeredRecord(partyB, "b1")
	s.Require().NoError(s.store.Commit(ctx, rec, models.StatusUnregistered))

	got, err := s.store.Get(ctx, partyB)
	s.Require().NoError(err)
	s.Equal(rec.ID, got.ID)
	s.Equal(models.StatusRegistered, got.Status)

	got.NegotiatedEndpoints[0].URL = "mutated"
	again, err := s.store.Get(ctx, partyB)
	s.Require().NoError(err)
	s.Equal("https://b.example/creds", again.NegotiatedEndpoints[0].URL)

	rec.RemoteCredentials.Token = "mutated-after-commit"
	_, err = s.store.FindByRemoteToken(ctx, "b1")
	s.NoError(err, "store keeps its own copy")
}

func (s *InMemoryStoreSuite) TestCommitWithStaleStatusConflicts() {
	ctx := context.Background()
	s.Require().NoError(s.store.Commit(ctx, registeredRecord(partyB, "b1"), models.StatusUnregistered))

	err := s.store.Commit(ctx, registeredRecord(partyB, "b2"), models.StatusUnregistered)
	s.ErrorIs(err, sentinel.ErrConflict)

	got, err := s.store.Get(ctx, partyB)
	s.Require().NoError(err)
	s.Equal("b1", got.RemoteCredentials.Token)
}

func (s *InMemoryStoreSuite) TestRotationMovesTokenIndex() {
	ctx := context.Background()
	s.Require().NoError(s.store.Commit(ctx, registeredRecord(partyB, "b1"), models.StatusUnregistered))

	cur, err := s.store.Get(ctx, partyB)
	s.Require().NoError(err)
	cur.RemoteCredentials.Token = "b2"
	s.Require().NoError(s.store.Commit(ctx, cur, models.StatusRegistered))

	_, err = s.store.FindByRemoteToken(ctx, "b1")
	s.ErrorIs(err, sentinel.ErrNotFound)
	got, err := s.store.FindByRemoteToken(ctx, "b2")
	s.Require().NoError(err)
	s.Equal(partyB, got.Identity)
}

func (s *InMemoryStoreSuite) TestRotationsFromSameReadCommitOnce() {
	ctx := context.Background()
	s.Require().NoError(s.store.Commit(ctx, registeredRecord(partyB, "b1"), models.StatusUnregistered))

	first, err := s.store.Get(ctx, partyB)
	s.Require().NoError(err)
	second, err := s.store.Get(ctx, partyB)
	s.Require().NoError(err)
	first.RemoteCredentials.Token = "b2"
	second.RemoteCredentials.Token = "b3"

	s.Require().NoError(s.store.Commit(ctx, first, models.StatusRegistered))
	err = s.store.Commit(ctx, second, models.StatusRegistered)
	s.ErrorIs(err, sentinel.ErrConflict)

	got, err := s.store.Get(ctx, partyB)
	s.Require().NoError(err)
	s.Equal("b2", got.RemoteCredentials.Token)
	s.Equal(int64(2), got.Revision)
	_, err = s.store.FindByRemoteToken(ctx, "b3")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *InMemoryStoreSuite) TestCommitAdvancesRevision() {
	ctx := context.Background()
	rec := registeredRecord(partyB, "b1")
	s.Require().NoError(s.store.Commit(ctx, rec, models.StatusUnregistered))
	s.Equal(int64(1), rec.Revision)

	rec.RemoteCredentials.Token = "b2"
	s.Require().NoError(s.store.Commit(ctx, rec, models.StatusRegistered))
	s.Equal(int64(2), rec.Revision)

	got, err := s.store.Get(ctx, partyB)
	s.Require().NoError(err)
	s.Equal(int64(2), got.Revision)
}

func (s *InMemoryStoreSuite) TestDeregisteredIsRetainedAndReplacedByNewRecord() {
	ctx := context.Background()
	first := registeredRecord(partyB, "b1")
	s.Require().NoError(s.store.Commit(ctx, first, models.StatusUnregistered))

	dereg := first.Clone()
	dereg.ApplyDeregistration(time.Now())
	s.Require().NoError(s.store.Commit(ctx, dereg, models.StatusRegistered))
	_, err := s.store.FindByRemoteToken(ctx, "b1")
	s.ErrorIs(err, sentinel.ErrNotFound)

	revived := dereg.Clone()
	revived.Status = models.StatusRegistered
	revived.RemoteCredentials.Token = "b2"
	s.Error(s.store.Commit(ctx, revived, models.StatusDeregistered))

	fresh := registeredRecord(partyB, "b3")
	s.Require().NoError(s.store.Commit(ctx, fresh, models.StatusDeregistered))

	history, err := s.store.History(ctx, partyB)
	s.Require().NoError(err)
	s.Require().Len(history, 1)
	s.Equal(first.ID, history[0].ID)
	s.Equal(models.StatusDeregistered, history[0].Status)
}

func (s *InMemoryStoreSuite) TestCancelledCommitLeavesStoreUntouched() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.store.Commit(ctx, registeredRecord(partyB, "b1"), models.StatusUnregistered)
	s.ErrorIs(err, context.Canceled)

	_, err = s.store.Get(context.Background(), partyB)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

// TestConcurrentCommitsSameIdentity verifies that simultaneous commits with
// the same expected status result in exactly one success.
func (s *InMemoryStoreSuite) TestConcurrentCommitsSameIdentity() {
	ctx := context.Background()
	const goroutines = 50

	var wg sync.WaitGroup
	var successCount atomic.Int32
	var conflictCount atomic.Int32

	for i := range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec := registeredRecord(partyB, "b-"+string(rune('A'+i)))
			err := s.store.Commit(ctx, rec, models.StatusUnregistered)
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, sentinel.ErrConflict):
				conflictCount.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), successCount.Load())
	s.Equal(int32(goroutines-1), conflictCount.Load())
}

func (s *InMemoryStoreSuite) TestDistinctIdentitiesDoNotConflict() {
	ctx := context.Background()
	other := domain.PartyIdentity{CountryCode: "NL", PartyID: "ABC", Role: domain.RoleEMSP}

	s.NoError(s.store.Commit(ctx, registeredRecord(partyB, "b1"), models.StatusUnregistered))
	s.NoError(s.store.Commit(ctx, registeredRecord(other, "c1"), models.StatusUnregistered))

	all, err := s.store.List(ctx)
	s.Require().NoError(err)
	s.Len(all, 2)
}
