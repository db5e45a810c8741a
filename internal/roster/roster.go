package roster

import (
	"log/slog"

	"github.com/squadsync/squadsync/internal/model"
)

// Provider exposes the member roster to components that need it. The roster is
// fixed for the lifetime of the process.
type Provider interface {
	Members() []model.User
	ByID(id string) (model.User, bool)
}

// DefaultMembers is the built-in roster used when no valid persisted override
// exists.
func DefaultMembers() []model.User {
	return []model.User{
		{ID: "u1", Name: "Fion", Icon: "🦊", Color: "#86efac", Birthday: "11-22", BirthYear: 1993},
		{ID: "u2", Name: "Sally", Icon: "🐱", Color: "#dbcd37", Birthday: "08-30", BirthYear: 1995},
		{ID: "u3", Name: "Eun", Icon: "🐰", Color: "#7393b3", Birthday: "03-05", BirthYear: 1994},
		{ID: "u4", Name: "Kaka", Icon: "🐼", Color: "#ffd2d2", Birthday: "02-05", BirthYear: 1996},
		{ID: "u5", Name: "Long²", Icon: "🐲", Color: "#318f40", Birthday: "04-29", BirthYear: 1993},
		{ID: "u6", Name: "Han", Icon: "🐯", Color: "#35bdcc", Birthday: "09-05"},
		{ID: "u7", Name: "Jake", Icon: "🐶", Color: "#2279f2", Birthday: "12-06", BirthYear: 1991},
		{ID: "u8", Name: "Vennie", Icon: "🦄", Color: "#9272bb", Birthday: "09-23", BirthYear: 1993},
		{ID: "u9", Name: "Rex", Icon: "🦖", Color: "#5f5a9c", Birthday: "05-30", BirthYear: 1994},
	}
}

// Static is a Provider over a fixed member list.
type Static struct {
	members []model.User
	byID    map[string]model.User
}

// NewStatic builds a Static provider from the given members.
func NewStatic(members []model.User) *Static {
	byID := make(map[string]model.User, len(members))
	for _, m := range members {
		byID[m.ID] = m
	}
	return &Static{members: members, byID: byID}
}

func (s *Static) Members() []model.User {
	out := make([]model.User, len(s.members))
	copy(out, s.members)
	return out
}

func (s *Static) ByID(id string) (model.User, bool) {
	m, ok := s.byID[id]
	return m, ok
}

// Cache is the subset of the slot store the roster loader needs.
type Cache interface {
	LoadUsers() ([]model.User, bool, error)
}

// Load builds the process roster: the persisted override when one validates,
// otherwise the built-in default. Malformed persisted data is discarded
// silently per the cache contract.
func Load(cache Cache, logger *slog.Logger) *Static {
	users, ok, err := cache.LoadUsers()
	if err != nil {
		logger.Warn("roster load failed, using defaults", "error", err)
		return NewStatic(DefaultMembers())
	}
	if !ok {
		return NewStatic(DefaultMembers())
	}
	logger.Info("loaded persisted roster", "members", len(users))
	return NewStatic(users)
}
