// Package storetest holds the behaviour every cooldown store backend shares.
// Backends embed Suite and supply NewStore.
package storetest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stretchr/testify/suite"

	"enlist/internal/cooldown/models"
	"enlist/pkg/domain"
)

var errTooSoon = errors.New("too soon")

// Suite exercises the models.Store contract.
type Suite struct {
	suite.Suite
	// NewStore returns an empty store. It is called before every test.
	NewStore func() models.Store
	Store    models.Store
}

func (s *Suite) SetupTest() {
	s.Require().NotNil(s.NewStore, "NewStore must be set")
	s.Store = s.NewStore()
}

var base = time.Date(2025, 1, 10, 9, 30, 0, 0, time.UTC)

// Base is the reference timestamp the suite writes.
func Base() time.Time { return base }

func (s *Suite) TestGet() {
	ctx := context.Background()

	s.Run("missing identity returns nil without error", func() {
		record, err := s.Store.Get(ctx, "never-acted")
		s.NoError(err)
		s.Nil(record)
	})

	s.Run("written timestamp reads back exactly", func() {
		at := base.Add(123 * time.Millisecond)
		s.Require().NoError(s.Store.Set(ctx, "u1", at))

		record, err := s.Store.Get(ctx, "u1")
		s.Require().NoError(err)
		s.Require().NotNil(record)
		s.Equal(domain.IdentityID("u1"), record.IdentityID)
		s.True(at.Equal(record.LastActionAt), "got %s want %s", record.LastActionAt, at)
	})

	s.Run("sub-millisecond precision is dropped", func() {
		s.Require().NoError(s.Store.Set(ctx, "u-precise", base.Add(1500*time.Microsecond)))
		record, err := s.Store.Get(ctx, "u-precise")
		s.Require().NoError(err)
		s.Equal(base.Add(time.Millisecond).UnixMilli(), record.LastActionAt.UnixMilli())
		s.Zero(record.LastActionAt.Nanosecond() % int(time.Millisecond))
	})
}

func (s *Suite) TestSet() {
	ctx := context.Background()

	s.Run("later write overwrites", func() {
		s.Require().NoError(s.Store.Set(ctx, "u2", base))
		s.Require().NoError(s.Store.Set(ctx, "u2", base.Add(time.Hour)))
		record, err := s.Store.Get(ctx, "u2")
		s.Require().NoError(err)
		s.True(base.Add(time.Hour).Equal(record.LastActionAt))
	})

	s.Run("earlier write never lowers the stored value", func() {
		s.Require().NoError(s.Store.Set(ctx, "u3", base.Add(time.Hour)))
		s.Require().NoError(s.Store.Set(ctx, "u3", base))
		record, err := s.Store.Get(ctx, "u3")
		s.Require().NoError(err)
		s.True(base.Add(time.Hour).Equal(record.LastActionAt))
	})

	s.Run("identities are independent", func() {
		s.Require().NoError(s.Store.Set(ctx, "a", base))
		s.Require().NoError(s.Store.Set(ctx, "b", base.Add(time.Minute)))
		a, err := s.Store.Get(ctx, "a")
		s.Require().NoError(err)
		b, err := s.Store.Get(ctx, "b")
		s.Require().NoError(err)
		s.True(base.Equal(a.LastActionAt))
		s.True(base.Add(time.Minute).Equal(b.LastActionAt))
	})
}

func (s *Suite) TestExecute() {
	ctx := context.Background()

	s.Run("absent record is validated as zero and written", func() {
		var seen *models.CooldownRecord
		record, err := s.Store.Execute(ctx, "fresh", func(r *models.CooldownRecord) error {
			seen = r
			return nil
		}, base)
		s.Require().NoError(err)
		s.Require().NotNil(seen)
		s.True(seen.LastActionAt.IsZero())
		s.True(base.Equal(record.LastActionAt))

		stored, err := s.Store.Get(ctx, "fresh")
		s.Require().NoError(err)
		s.True(base.Equal(stored.LastActionAt))
	})

	s.Run("validation error leaves the record unchanged", func() {
		s.Require().NoError(s.Store.Set(ctx, "blocked", base))
		_, err := s.Store.Execute(ctx, "blocked", func(r *models.CooldownRecord) error {
			s.True(base.Equal(r.LastActionAt))
			return errTooSoon
		}, base.Add(time.Hour))
		s.ErrorIs(err, errTooSoon)

		stored, err := s.Store.Get(ctx, "blocked")
		s.Require().NoError(err)
		s.True(base.Equal(stored.LastActionAt))
	})

	s.Run("validation error on absent record creates nothing", func() {
		_, err := s.Store.Execute(ctx, "rejected", func(*models.CooldownRecord) error {
			return errTooSoon
		}, base)
		s.ErrorIs(err, errTooSoon)

		stored, err := s.Store.Get(ctx, "rejected")
		s.NoError(err)
		s.Nil(stored)
	})
}

// Concurrent Execute calls for one identity with a "never acted" check must
// admit exactly one writer.
func (s *Suite) TestExecuteAdmitsOneConcurrentWriter() {
	ctx := context.Background()
	const workers = 8

	var (
		wg       sync.WaitGroup
		admitted atomic.Int32
		rejected atomic.Int32
		start    = make(chan struct{})
	)
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := s.Store.Execute(ctx, "racer", func(r *models.CooldownRecord) error {
				if !r.LastActionAt.IsZero() {
					return errTooSoon
				}
				return nil
			}, base.Add(time.Duration(i)*time.Millisecond))
			switch {
			case err == nil:
				admitted.Add(1)
			case errors.Is(err, errTooSoon):
				rejected.Add(1)
			default:
				s.T().Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	s.Equal(int32(1), admitted.Load())
	s.Equal(int32(workers-1), rejected.Load())
}

func (s *Suite) TestCancelledContext() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Store.Get(ctx, "u1")
	s.Error(err)
}
