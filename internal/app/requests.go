package service

import (
	"errors"
	"math"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/okian/gubs/internal/domain/fault"
)

// MaxQuantity is the largest batch a single PurchaseItem may buy.
const MaxQuantity = 1000

// SyncRequest reports clicks accumulated client-side since the last sync.
type SyncRequest struct {
	Delta   float64 `json:"delta" validate:"finite,gte=0"`
	Offline bool    `json:"offline"`
}

// SyncResult is the ledger after a sync.
type SyncResult struct {
	Score         int64 `json:"score"`
	OfflineEarned int64 `json:"offlineEarned"`
}

// PurchaseItemRequest buys quantity units of a generator.
type PurchaseItemRequest struct {
	Item     string `json:"item" validate:"required"`
	Quantity int64  `json:"quantity" validate:"gte=1,lte=1000"`
	DryRun   bool   `json:"dryRun"`
}

// PurchaseItemResult reports the balance and inventory after a purchase,
// or the quote when DryRun was set. A quote also carries Affordable, the
// largest quantity the current balance could buy in one request.
type PurchaseItemResult struct {
	Score      int64 `json:"score"`
	Owned      int64 `json:"owned"`
	Cost       int64 `json:"cost"`
	Affordable int64 `json:"affordable,omitempty"`
}

// PurchaseUpgradeRequest buys a one-time upgrade.
type PurchaseUpgradeRequest struct {
	Upgrade string `json:"upgrade" validate:"required"`
	DryRun  bool   `json:"dryRun"`
}

// PurchaseUpgradeResult reports the balance after an upgrade purchase.
type PurchaseUpgradeResult struct {
	Score int64 `json:"score"`
	Owned bool  `json:"owned"`
	Cost  int64 `json:"cost"`
}

// UsernameRequest claims a display name.
type UsernameRequest struct {
	Username string `json:"username" validate:"required,max=64"`
}

// Profile is the public identity of a user.
type Profile struct {
	UID      string `json:"uid"`
	Username string `json:"username"`
}

// AdminScoreRequest overwrites a user's score.
type AdminScoreRequest struct {
	Username string `json:"username" validate:"required"`
	Score    int64  `json:"score" validate:"gte=0"`
}

// AdminDeleteRequest removes a user and everything they own.
type AdminDeleteRequest struct {
	Username string `json:"username" validate:"required"`
}

// AdminResult describes the user an admin action touched.
type AdminResult struct {
	UID      string `json:"uid"`
	Username string `json:"username"`
	Score    int64  `json:"score"`
}

// Entry is one leaderboard row.
type Entry struct {
	Rank     int    `json:"rank"`
	UID      string `json:"uid"`
	Username string `json:"username,omitempty"`
	Score    int64  `json:"score"`
}

// State is everything the server knows about one user.
type State struct {
	UID         string           `json:"uid"`
	Username    string           `json:"username,omitempty"`
	Score       int64            `json:"score"`
	LastUpdated int64            `json:"lastUpdated"`
	Owned       map[string]int64 `json:"owned"`
	Upgrades    map[string]bool  `json:"upgrades"`
	Rate        float64          `json:"rate"`
}

var fieldMessages = map[string]string{
	"Delta":    "Invalid delta",
	"Quantity": "Quantity must be between 1 and 1000",
	"Item":     "Unknown item",
	"Upgrade":  "Unknown upgrade",
	"Username": "Invalid username",
	"Score":    "Invalid score",
}

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("finite", validateFinite)
	return v
}

// validateFinite rejects NaN and infinities.
func validateFinite(fl validator.FieldLevel) bool {
	f := fl.Field().Float()
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// check validates req and maps the first failing field to a user-visible
// InvalidArgument.
func (s *Service) check(op string, req any) error {
	err := s.validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		f := verrs[0]
		msg, ok := fieldMessages[f.StructField()]
		if !ok {
			msg = "Invalid " + strings.ToLower(f.Field())
		}
		return fault.Wrap(op, fault.ErrInvalidArgument, msg, err)
	}
	return fault.Internal(op, "", err)
}
