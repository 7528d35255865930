package service

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/okian/gubs/internal/adapters/repository"
	"github.com/okian/gubs/internal/domain/catalog"
	"github.com/okian/gubs/internal/domain/fault"
	"github.com/okian/gubs/internal/domain/model"
)

const (
	opTopN  = "topN"
	opRank  = "rank"
	opState = "state"
)

// TopN returns the n highest scores. n is clamped to [1, max leaderboard
// limit]; zero selects the default page size.
func (s *Service) TopN(ctx context.Context, n int) ([]Entry, error) {
	switch {
	case n <= 0:
		n = DefaultLeaderboardLimit
	case n > s.maxLeaderboardLimit:
		n = s.maxLeaderboardLimit
	}

	rows, err := s.store.Query(ctx, model.RootLeaderboard, repository.Query{
		OrderByChild: model.ScoreChild,
		Descending:   true,
		Limit:        n,
	})
	if err != nil {
		return nil, classify(opTopN, err)
	}

	entries := make([]Entry, len(rows))
	for i, row := range rows {
		led := model.LedgerFrom(row.Value)
		entries[i] = Entry{UID: row.Key, Username: led.Username, Score: led.Score}
	}
	assignRanksWithTies(entries)
	return entries, nil
}

// assignRanksWithTies gives equal scores the same rank; the next distinct
// score takes the following rank (1, 1, 2, ...). entries must be sorted by
// score, highest first.
func assignRanksWithTies(entries []Entry) {
	rank := 0
	for i := range entries {
		if i == 0 || entries[i].Score != entries[i-1].Score {
			rank++
		}
		entries[i].Rank = rank
	}
}

// Rank returns uid's leaderboard position using the same tie rule as TopN.
func (s *Service) Rank(ctx context.Context, uid string) (Entry, error) {
	if !model.ValidSegment(uid) {
		return Entry{}, fault.InvalidArgument(opRank, "Invalid user id")
	}
	raw, err := s.store.Read(ctx, model.LedgerPath(uid))
	if err != nil {
		return Entry{}, classify(opRank, err)
	}
	if raw == nil {
		return Entry{}, fault.NotFound(opRank, msgUserNotFound)
	}
	self := model.LedgerFrom(raw)

	// Legacy bare-number ledgers have no score child, so order alone cannot
	// bound the scan.
	rows, err := s.store.Query(ctx, model.RootLeaderboard, repository.Query{OrderByChild: model.ScoreChild})
	if err != nil {
		return Entry{}, classify(opRank, err)
	}
	higher := make(map[int64]struct{})
	for _, row := range rows {
		if sc := model.LedgerFrom(row.Value).Score; sc > self.Score {
			higher[sc] = struct{}{}
		}
	}
	return Entry{Rank: len(higher) + 1, UID: uid, Username: self.Username, Score: self.Score}, nil
}

// State returns the ledger, inventory, upgrades and effective passive rate
// of uid. An unknown uid reads as an empty ledger.
func (s *Service) State(ctx context.Context, uid string) (State, error) {
	if err := requireUID(opState, uid); err != nil {
		return State{}, err
	}

	var led model.Ledger
	var owned map[string]int64
	var upgrades map[string]bool
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		led, err = s.readLedger(gctx, uid)
		return err
	})
	g.Go(func() error {
		var err error
		owned, upgrades, err = s.readInventory(gctx, uid)
		return err
	})
	if err := g.Wait(); err != nil {
		return State{}, classify(opState, err)
	}

	return State{
		UID:         uid,
		Username:    led.Username,
		Score:       led.Score,
		LastUpdated: led.LastUpdated,
		Owned:       owned,
		Upgrades:    upgrades,
		Rate:        s.catalog.PassiveRate(owned, upgrades),
	}, nil
}

// Catalog returns the item and upgrade tables.
func (s *Service) Catalog() *catalog.Catalog { return s.catalog }
