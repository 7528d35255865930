package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/okian/gubs/internal/adapters/repository"
	service "github.com/okian/gubs/internal/app"
	"github.com/okian/gubs/internal/domain/fault"
	"github.com/okian/gubs/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestSanitizeUsername(t *testing.T) {
	Convey("Given raw usernames", t, func() {
		So(service.SanitizeUsername("Gub Lord!"), ShouldEqual, "gublord")
		So(service.SanitizeUsername("snake_CASE_99"), ShouldEqual, "snake_case_99")
		So(service.SanitizeUsername("abcdefghijklmnopqrstuvwxyz"), ShouldEqual, "abcdefghijklmnopqrst")
		So(service.SanitizeUsername("ñandú"), ShouldEqual, "and")
	})
}

func TestSetUsername(t *testing.T) {
	Convey("Given a service and a player", t, func() {
		f := newFixture(t, service.StrategyMerged)
		f.fund("u1", 10)

		Convey("When claiming a free name", func() {
			p, err := f.svc.SetUsername(f.ctx, "u1", service.UsernameRequest{Username: "Gubber"})

			Convey("Then the claim and the ledger agree", func() {
				So(err, ShouldBeNil)
				So(p, ShouldResemble, service.Profile{UID: "u1", Username: "gubber"})
				owner, _ := f.store.Read(f.ctx, model.UsernamePath("gubber"))
				So(owner, ShouldEqual, "u1")
				name, _ := f.store.Read(f.ctx, model.LedgerPath("u1/username"))
				So(name, ShouldEqual, "gubber")
				So(f.score("u1"), ShouldEqual, 10)
			})

			Convey("Then another player cannot take it", func() {
				_, err := f.svc.SetUsername(f.ctx, "u2", service.UsernameRequest{Username: "gubber"})
				So(errors.Is(err, fault.ErrFailedPrecondition), ShouldBeTrue)
				So(fault.Message(err), ShouldEqual, "Username already taken")
				v, _ := f.store.Read(f.ctx, model.LedgerPath("u2"))
				So(v, ShouldBeNil)
			})

			Convey("Then renaming releases the old claim", func() {
				_, err := f.svc.SetUsername(f.ctx, "u1", service.UsernameRequest{Username: "gubmaster"})
				So(err, ShouldBeNil)
				old, _ := f.store.Read(f.ctx, model.UsernamePath("gubber"))
				So(old, ShouldBeNil)
				owner, _ := f.store.Read(f.ctx, model.UsernamePath("gubmaster"))
				So(owner, ShouldEqual, "u1")
			})

			Convey("Then setting the same name again is a no-op", func() {
				p, err := f.svc.SetUsername(f.ctx, "u1", service.UsernameRequest{Username: "GUBBER"})
				So(err, ShouldBeNil)
				So(p.Username, ShouldEqual, "gubber")
			})
		})

		Convey("When the sanitized name is too short", func() {
			_, err := f.svc.SetUsername(f.ctx, "u1", service.UsernameRequest{Username: "a!"})
			So(errors.Is(err, fault.ErrInvalidArgument), ShouldBeTrue)
		})

		Convey("When the name is missing", func() {
			_, err := f.svc.SetUsername(f.ctx, "u1", service.UsernameRequest{})
			So(fault.Message(err), ShouldEqual, "Invalid username")
		})
	})
}

// slowStore widens the window between reading and committing a transaction.
type slowStore struct {
	*repository.MemoryStore
}

func (s slowStore) Transact(ctx context.Context, path string, fn repository.TxFunc) (repository.TxResult, error) {
	time.Sleep(2 * time.Millisecond)
	return s.MemoryStore.Transact(ctx, path, fn)
}

func TestConcurrentRenames(t *testing.T) {
	Convey("Given a player renaming concurrently on a slow store", t, func() {
		f := newFixture(t, service.StrategyMerged)
		svc := f.build(t, slowStore{f.store}, service.StrategyMerged)
		names := []string{"alpha", "bravo", "charlie"}

		for round := 0; round < 20; round++ {
			var wg sync.WaitGroup
			for _, n := range names {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, _ = svc.SetUsername(f.ctx, "u1", service.UsernameRequest{Username: n})
				}()
			}
			wg.Wait()

			current, err := f.store.Read(f.ctx, model.LedgerPath("u1/username"))
			So(err, ShouldBeNil)
			held := 0
			for _, n := range names {
				owner, _ := f.store.Read(f.ctx, model.UsernamePath(n))
				if owner == "u1" {
					held++
					So(n, ShouldEqual, current)
				}
			}
			So(held, ShouldEqual, 1)
		}
	})
}

func TestAdminOperations(t *testing.T) {
	Convey("Given an admin, a player and a started service", t, func() {
		f := newFixture(t, service.StrategyMerged)
		f.put(model.AdminPath("boss"), true)
		f.fund("u1", 500)
		f.put(model.ItemPath("u1", "passiveMaker"), int64(3))
		f.put(model.UpgradePath("u1", "upg1"), true)
		_, err := f.svc.SetUsername(f.ctx, "u1", service.UsernameRequest{Username: "victim"})
		So(err, ShouldBeNil)
		So(f.svc.Start(f.ctx), ShouldBeNil)

		Convey("When a non-admin overwrites a score", func() {
			_, err := f.svc.UpdateUserScore(f.ctx, "u1", service.AdminScoreRequest{Username: "victim", Score: 1})
			So(errors.Is(err, fault.ErrPermissionDenied), ShouldBeTrue)
			So(f.score("u1"), ShouldEqual, 500)
		})

		Convey("When the username is unknown", func() {
			_, err := f.svc.DeleteUser(f.ctx, "boss", service.AdminDeleteRequest{Username: "nobody"})
			So(errors.Is(err, fault.ErrNotFound), ShouldBeTrue)
			So(fault.Message(err), ShouldEqual, "User not found")
		})

		Convey("When the admin overwrites a score", func() {
			res, err := f.svc.UpdateUserScore(f.ctx, "boss", service.AdminScoreRequest{Username: "Victim", Score: 9_000})
			So(err, ShouldBeNil)
			So(res, ShouldResemble, service.AdminResult{UID: "u1", Username: "victim", Score: 9_000})
			So(f.score("u1"), ShouldEqual, 9_000)

			Convey("Then the action is audited", func() {
				f.svc.Stop()
				entries := f.logs(model.LogAdmin)
				So(len(entries), ShouldEqual, 1)
				So(entries[0]["function"], ShouldEqual, "updateUserScore")
				So(entries[0]["uid"], ShouldEqual, "boss")
			})
		})

		Convey("When the admin deletes the player", func() {
			res, err := f.svc.DeleteUser(f.ctx, "boss", service.AdminDeleteRequest{Username: "victim"})
			So(err, ShouldBeNil)
			So(res.UID, ShouldEqual, "u1")

			Convey("Then every record of the player is gone", func() {
				for _, p := range []string{
					model.LedgerPath("u1"),
					model.ShopPath("u1"),
					model.UpgradesPath("u1"),
					model.UsernamePath("victim"),
				} {
					v, _ := f.store.Read(f.ctx, p)
					So(v, ShouldBeNil)
				}
				admin, _ := f.store.Read(f.ctx, model.AdminPath("boss"))
				So(admin, ShouldEqual, true)
			})
		})

		Convey("When a negative score is requested", func() {
			_, err := f.svc.UpdateUserScore(f.ctx, "boss", service.AdminScoreRequest{Username: "victim", Score: -5})
			So(fault.Message(err), ShouldEqual, "Invalid score")
		})

		Reset(func() { f.svc.Stop() })
	})
}

func TestErrorAudit(t *testing.T) {
	Convey("Given a started service", t, func() {
		f := newFixture(t, service.StrategyMerged)
		So(f.svc.Start(f.ctx), ShouldBeNil)

		Convey("When an operation fails", func() {
			_, err := f.svc.PurchaseItem(f.ctx, "u1", service.PurchaseItemRequest{Item: "passiveMaker", Quantity: 1})
			So(errors.Is(err, fault.ErrFailedPrecondition), ShouldBeTrue)
			_, err = f.svc.SyncGubs(f.ctx, "", service.SyncRequest{Delta: 1})
			So(errors.Is(err, fault.ErrUnauthenticated), ShouldBeTrue)
			f.svc.Stop()

			Convey("Then the failure is written to the server log", func() {
				entries := f.logs(model.LogServer)
				So(len(entries), ShouldEqual, 1)
				So(entries[0]["function"], ShouldEqual, "purchaseItem")
				So(entries[0]["uid"], ShouldEqual, "u1")
				So(entries[0]["message"], ShouldEqual, "Not enough gubs: have 0, need 100")
				So(entries[0]["timestamp"], ShouldEqual, int64(1_000))
			})
		})
	})
}

func TestReads(t *testing.T) {
	Convey("Given a populated leaderboard", t, func() {
		f := newFixture(t, service.StrategyMerged)
		for uid, score := range map[string]int64{"a": 30, "b": 50, "c": 50, "d": 10} {
			f.fund(uid, score)
		}
		f.put(model.LedgerPath("legacy"), int64(40))

		Convey("When reading the top three", func() {
			top, err := f.svc.TopN(f.ctx, 3)
			So(err, ShouldBeNil)

			Convey("Then ties share a rank", func() {
				So(len(top), ShouldEqual, 3)
				So(top[0].Rank, ShouldEqual, 1)
				So(top[1].Rank, ShouldEqual, 1)
				So(top[0].Score, ShouldEqual, 50)
				So(top[2].UID, ShouldEqual, "a")
				So(top[2].Rank, ShouldEqual, 2)
			})
		})

		Convey("When asking for a huge page", func() {
			top, err := f.svc.TopN(f.ctx, 1_000_000)
			So(err, ShouldBeNil)
			So(len(top), ShouldEqual, 5)
		})

		Convey("When ranking individual users", func() {
			e, err := f.svc.Rank(f.ctx, "a")
			So(err, ShouldBeNil)
			So(e.Rank, ShouldEqual, 3)

			e, err = f.svc.Rank(f.ctx, "legacy")
			So(err, ShouldBeNil)
			So(e.Score, ShouldEqual, 40)
			So(e.Rank, ShouldEqual, 2)

			_, err = f.svc.Rank(f.ctx, "ghost")
			So(errors.Is(err, fault.ErrNotFound), ShouldBeTrue)
		})

		Convey("When reading an unknown user's state", func() {
			st, err := f.svc.State(f.ctx, "ghost")
			So(err, ShouldBeNil)
			So(st.Score, ShouldEqual, 0)
			So(st.Rate, ShouldEqual, 0)
			So(st.Owned, ShouldBeEmpty)
		})
	})
}
