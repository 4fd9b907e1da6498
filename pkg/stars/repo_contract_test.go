package stars

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"starnotary/pkg/testhelpers"
)

var (
	decimalEqual = cmp.Comparer(func(a, b decimal.Decimal) bool { return a.Equal(b) })
	// postgres truncates timestamps to microseconds
	ignoreTimes = cmp.Options{
		cmpopts.IgnoreFields(Star{}, "CreatedAt"),
		cmpopts.IgnoreFields(Event{}, "CreatedAt"),
	}
)

func starRepositories(t *testing.T) map[string]func(t *testing.T) StarRepository {
	t.Helper()
	return map[string]func(t *testing.T) StarRepository{
		"memory": func(t *testing.T) StarRepository {
			return NewMemoryStarRepository()
		},
		"sqlite": func(t *testing.T) StarRepository {
			return NewSQLiteStarRepository(testhelpers.SQLite(t))
		},
		"postgres": func(t *testing.T) StarRepository {
			pool := testhelpers.PostgresPool(t)
			testhelpers.TruncateLedger(t, pool)
			return NewPostgresStarRepository(pool)
		},
	}
}

func insertStars(t *testing.T, repo StarRepository, stars ...Star) {
	t.Helper()
	err := repo.Atomically(context.Background(), func(ctx context.Context, tx StarTx) error {
		for _, s := range stars {
			if s.CreatedAt.IsZero() {
				s.CreatedAt = time.Now().UTC()
			}
			if err := tx.InsertStar(ctx, s); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
}

func TestStarRepository_InsertAndGet(t *testing.T) {
	for name, open := range starRepositories(t) {
		t.Run(name, func(t *testing.T) {
			repo := open(t)
			ctx := context.Background()

			want := Star{ID: 1, Name: "Polaris", Owner: "alice"}
			insertStars(t, repo, want)

			got, err := repo.GetStar(ctx, 1)
			require.NoError(t, err)
			if diff := cmp.Diff(want, got, decimalEqual, ignoreTimes); diff != "" {
				t.Fatalf("star mismatch (-want +got):\n%s", diff)
			}
			require.False(t, got.CreatedAt.IsZero())

			_, err = repo.GetStar(ctx, 2)
			require.ErrorIs(t, err, ErrUnknownID)
		})
	}
}

func TestStarRepository_DuplicateInsert(t *testing.T) {
	for name, open := range starRepositories(t) {
		t.Run(name, func(t *testing.T) {
			repo := open(t)
			ctx := context.Background()
			insertStars(t, repo, Star{ID: 1, Name: "Polaris", Owner: "alice"})

			err := repo.Atomically(ctx, func(ctx context.Context, tx StarTx) error {
				return tx.InsertStar(ctx, Star{ID: 1, Name: "Impostor", Owner: "bob", CreatedAt: time.Now()})
			})
			require.ErrorIs(t, err, ErrDuplicateID)

			got, err := repo.GetStar(ctx, 1)
			require.NoError(t, err)
			require.Equal(t, "Polaris", got.Name)
		})
	}
}

func TestStarRepository_UpdateStar(t *testing.T) {
	for name, open := range starRepositories(t) {
		t.Run(name, func(t *testing.T) {
			repo := open(t)
			ctx := context.Background()
			insertStars(t, repo, Star{ID: 1, Name: "Polaris", Owner: "alice"})

			err := repo.Atomically(ctx, func(ctx context.Context, tx StarTx) error {
				return tx.UpdateStar(ctx, Star{ID: 1, Name: "ignored", Owner: "bob", ForSale: true, Price: decimal.RequireFromString("0.125")})
			})
			require.NoError(t, err)

			got, err := repo.GetStar(ctx, 1)
			require.NoError(t, err)
			want := Star{ID: 1, Name: "Polaris", Owner: "bob", ForSale: true, Price: decimal.RequireFromString("0.125")}
			if diff := cmp.Diff(want, got, decimalEqual, ignoreTimes); diff != "" {
				t.Fatalf("star mismatch (-want +got):\n%s", diff)
			}

			err = repo.Atomically(ctx, func(ctx context.Context, tx StarTx) error {
				return tx.UpdateStar(ctx, Star{ID: 42, Owner: "bob"})
			})
			require.ErrorIs(t, err, ErrUnknownID)
		})
	}
}

func TestStarRepository_RollbackOnError(t *testing.T) {
	for name, open := range starRepositories(t) {
		t.Run(name, func(t *testing.T) {
			repo := open(t)
			ctx := context.Background()
			insertStars(t, repo, Star{ID: 1, Name: "Polaris", Owner: "alice"})

			boom := errors.New("abort")
			err := repo.Atomically(ctx, func(ctx context.Context, tx StarTx) error {
				if err := tx.UpdateStar(ctx, Star{ID: 1, Owner: "mallory"}); err != nil {
					return err
				}
				if err := tx.SetBalance(ctx, "mallory", decimal.NewFromInt(100)); err != nil {
					return err
				}
				if err := tx.InsertStar(ctx, Star{ID: 2, Name: "Extra", Owner: "mallory", CreatedAt: time.Now()}); err != nil {
					return err
				}
				// writes are visible inside the transaction
				s, err := tx.GetStar(ctx, 1)
				if err != nil {
					return err
				}
				if s.Owner != "mallory" {
					return errors.New("uncommitted write not visible")
				}
				return boom
			})
			require.ErrorIs(t, err, boom)

			got, err := repo.GetStar(ctx, 1)
			require.NoError(t, err)
			require.Equal(t, "alice", got.Owner)

			_, err = repo.GetStar(ctx, 2)
			require.ErrorIs(t, err, ErrUnknownID)

			balance, err := repo.Balance(ctx, "mallory")
			require.NoError(t, err)
			require.True(t, balance.IsZero())
		})
	}
}

func TestStarRepository_Balances(t *testing.T) {
	for name, open := range starRepositories(t) {
		t.Run(name, func(t *testing.T) {
			repo := open(t)
			ctx := context.Background()

			balance, err := repo.Balance(ctx, "nobody")
			require.NoError(t, err)
			require.True(t, balance.IsZero())

			for _, amount := range []string{"1.5", "0.000000000000000001"} {
				err = repo.Atomically(ctx, func(ctx context.Context, tx StarTx) error {
					return tx.SetBalance(ctx, "alice", decimal.RequireFromString(amount))
				})
				require.NoError(t, err)

				balance, err = repo.Balance(ctx, "alice")
				require.NoError(t, err)
				require.True(t, balance.Equal(decimal.RequireFromString(amount)), "got %s", balance)
			}
		})
	}
}

func TestStarRepository_ListStars(t *testing.T) {
	for name, open := range starRepositories(t) {
		t.Run(name, func(t *testing.T) {
			repo := open(t)
			ctx := context.Background()
			insertStars(t, repo,
				Star{ID: 3, Name: "C", Owner: "bob"},
				Star{ID: 1, Name: "A", Owner: "alice"},
				Star{ID: 2, Name: "B", Owner: "alice", ForSale: true, Price: decimal.NewFromInt(5)},
			)

			all, total, err := repo.ListStars(ctx, StarFilters{}, 10, 0)
			require.NoError(t, err)
			require.Equal(t, int64(3), total)
			require.Equal(t, []int64{1, 2, 3}, starIDs(all))

			page, total, err := repo.ListStars(ctx, StarFilters{}, 1, 1)
			require.NoError(t, err)
			require.Equal(t, int64(3), total)
			require.Equal(t, []int64{2}, starIDs(page))

			alice := "alice"
			owned, total, err := repo.ListStars(ctx, StarFilters{Owner: &alice}, 10, 0)
			require.NoError(t, err)
			require.Equal(t, int64(2), total)
			require.Equal(t, []int64{1, 2}, starIDs(owned))

			forSale := true
			listed, total, err := repo.ListStars(ctx, StarFilters{Owner: &alice, ForSale: &forSale}, 10, 0)
			require.NoError(t, err)
			require.Equal(t, int64(1), total)
			require.True(t, listed[0].Price.Equal(decimal.NewFromInt(5)))

			notForSale := false
			unlisted, _, err := repo.ListStars(ctx, StarFilters{ForSale: &notForSale}, 10, 0)
			require.NoError(t, err)
			require.Equal(t, []int64{1, 3}, starIDs(unlisted))

			empty, total, err := repo.ListStars(ctx, StarFilters{}, 10, 50)
			require.NoError(t, err)
			require.Equal(t, int64(3), total)
			require.Empty(t, empty)
		})
	}
}

func TestStarRepository_History(t *testing.T) {
	for name, open := range starRepositories(t) {
		t.Run(name, func(t *testing.T) {
			repo := open(t)
			ctx := context.Background()
			insertStars(t, repo, Star{ID: 1, Name: "A", Owner: "alice"}, Star{ID: 2, Name: "B", Owner: "bob"})

			now := time.Now().UTC()
			want := []Event{
				{ID: uuid.New(), StarID: 1, Kind: EventCreated, To: "alice", Amount: decimal.Zero, CreatedAt: now},
				{ID: uuid.New(), StarID: 1, Kind: EventListed, From: "alice", Amount: decimal.RequireFromString("2.75"), CreatedAt: now},
				{ID: uuid.New(), StarID: 1, RelatedStarID: 2, Kind: EventExchanged, From: "alice", To: "bob", Amount: decimal.Zero, CreatedAt: now},
			}
			other := Event{ID: uuid.New(), StarID: 2, Kind: EventCreated, To: "bob", Amount: decimal.Zero, CreatedAt: now}

			err := repo.Atomically(ctx, func(ctx context.Context, tx StarTx) error {
				for _, e := range append(want[:2:2], other, want[2]) {
					if err := tx.AppendEvent(ctx, e); err != nil {
						return err
					}
				}
				return nil
			})
			require.NoError(t, err)

			got, err := repo.History(ctx, 1)
			require.NoError(t, err)
			if diff := cmp.Diff(want, got, decimalEqual, ignoreTimes); diff != "" {
				t.Fatalf("history mismatch (-want +got):\n%s", diff)
			}

			none, err := repo.History(ctx, 99)
			require.NoError(t, err)
			require.Empty(t, none)
		})
	}
}

func TestPostgresStarRepository_SharedFixtures(t *testing.T) {
	pool := testhelpers.PostgresPool(t)
	testhelpers.TruncateLedger(t, pool)
	repo := NewPostgresStarRepository(pool)
	ctx := context.Background()

	owner := testhelpers.CreateTestAccount(t, pool)
	id := testhelpers.CreateTestStar(t, pool, owner)

	got, err := repo.GetStar(ctx, id)
	require.NoError(t, err)
	require.Equal(t, owner, got.Owner)
	require.False(t, got.ForSale)
}

func TestStarRepository_ServiceRoundTrip(t *testing.T) {
	for name, open := range starRepositories(t) {
		t.Run(name, func(t *testing.T) {
			svc := NewStarService(open(t), nil, nil)
			ctx := context.Background()

			_, err := svc.CreateStar(ctx, "Star for sale", 3, user1)
			require.NoError(t, err)
			_, err = svc.PutUpForSale(ctx, 3, decimal.RequireFromString("0.01"), user1)
			require.NoError(t, err)
			_, err = svc.Deposit(ctx, user2, decimal.NewFromInt(1))
			require.NoError(t, err)

			_, err = svc.BuyStar(ctx, 3, user2, decimal.RequireFromString("0.05"))
			require.NoError(t, err)

			owner, err := svc.OwnerOf(ctx, 3)
			require.NoError(t, err)
			require.Equal(t, user2, owner)
			requireBalance(t, svc, user1, "0.01")
			requireBalance(t, svc, user2, "0.99")

			history, err := svc.History(ctx, 3)
			require.NoError(t, err)
			kinds := make([]EventKind, 0, len(history))
			for _, e := range history {
				kinds = append(kinds, e.Kind)
			}
			require.Equal(t, []EventKind{EventCreated, EventListed, EventSold}, kinds)
		})
	}
}

func TestStarRepository_ConcurrentBuyers(t *testing.T) {
	for name, open := range starRepositories(t) {
		t.Run(name, func(t *testing.T) {
			svc := NewStarService(open(t), nil, nil)
			ctx := context.Background()

			_, err := svc.CreateStar(ctx, "Contested", 50, user1)
			require.NoError(t, err)
			_, err = svc.PutUpForSale(ctx, 50, dec("3"), user1)
			require.NoError(t, err)

			const buyers = 16
			for i := 0; i < buyers; i++ {
				_, err := svc.Deposit(ctx, fmt.Sprintf("buyer-%d", i), dec("5"))
				require.NoError(t, err)
			}

			results := make([]error, buyers)
			var g errgroup.Group
			for i := 0; i < buyers; i++ {
				g.Go(func() error {
					_, results[i] = svc.BuyStar(ctx, 50, fmt.Sprintf("buyer-%d", i), dec("4"))
					return nil
				})
				// readers run alongside the writers
				g.Go(func() error {
					if _, err := svc.OwnerOf(ctx, 50); err != nil {
						return err
					}
					_, _, err := svc.ListStars(ctx, StarFilters{}, 1, 10)
					return err
				})
			}
			require.NoError(t, g.Wait())

			winner := ""
			for i, err := range results {
				if err == nil {
					require.Empty(t, winner, "more than one buyer succeeded")
					winner = fmt.Sprintf("buyer-%d", i)
					continue
				}
				require.ErrorIs(t, err, ErrNotListed)
			}
			require.NotEmpty(t, winner)

			owner, err := svc.OwnerOf(ctx, 50)
			require.NoError(t, err)
			require.Equal(t, winner, owner)
			requireBalance(t, svc, user1, "3")
			requireBalance(t, svc, winner, "2")
			for i := 0; i < buyers; i++ {
				if buyer := fmt.Sprintf("buyer-%d", i); buyer != winner {
					requireBalance(t, svc, buyer, "5")
				}
			}

			history, err := svc.History(ctx, 50)
			require.NoError(t, err)
			require.Len(t, history, 3)
		})
	}
}

func starIDs(stars []Star) []int64 {
	ids := make([]int64, 0, len(stars))
	for _, s := range stars {
		ids = append(ids, s.ID)
	}
	return ids
}
