// Package model contains domain models passed between layers.
package model

import "strings"

// Store roots.
const (
	RootLeaderboard = "leaderboard"
	RootShop        = "shop"
	RootUpgrades    = "upgrades"
	RootLocks       = "locks"
	RootUsernames   = "usernames"
	RootAdmins      = "admins"
	RootLogs        = "logs"
)

// Join builds a store path from segments.
func Join(segments ...string) string {
	return strings.Join(segments, "/")
}

// LedgerPath is the UserLedger record of uid.
func LedgerPath(uid string) string { return Join(RootLeaderboard, uid) }

// ShopPath is the inventory map of uid.
func ShopPath(uid string) string { return Join(RootShop, uid) }

// ItemPath is the owned count of one item.
func ItemPath(uid, item string) string { return Join(RootShop, uid, item) }

// UpgradesPath is the upgrade set of uid.
func UpgradesPath(uid string) string { return Join(RootUpgrades, uid) }

// UpgradePath is one upgrade flag.
func UpgradePath(uid, upgrade string) string { return Join(RootUpgrades, uid, upgrade) }

// LockPath is the per-user lock record.
func LockPath(uid string) string { return Join(RootLocks, uid) }

// UsernamePath is the claim record for a username.
func UsernamePath(name string) string { return Join(RootUsernames, name) }

// AdminPath is the admin flag of uid.
func AdminPath(uid string) string { return Join(RootAdmins, uid) }

// LogPath is one entry in a log collection.
func LogPath(collection, id string) string { return Join(RootLogs, collection, id) }

// ValidSegment reports whether s can be used as a single path segment.
func ValidSegment(s string) bool {
	if s == "" || s == "." || s == ".." {
		return false
	}
	return !strings.ContainsAny(s, "/#$[]")
}
