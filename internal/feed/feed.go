package feed

import (
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/mbecker/reel/internal/domain"
)

// DefaultExpiry is how long a story stays in the feed after posting.
const DefaultExpiry = 24 * time.Hour

// AuthorMatch is one author search result with match metadata.
type AuthorMatch struct {
	GroupIndex int
	Author     domain.Author
	Score      int // Levenshtein distance (lower is better)
}

// Service assembles raw story groups into a playable feed: validation,
// expiry filtering, unviewed-first ordering, and author search.
type Service struct {
	expiry time.Duration
	logger *slog.Logger
}

func NewService(expiry time.Duration, logger *slog.Logger) *Service {
	if expiry <= 0 {
		expiry = DefaultExpiry
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{expiry: expiry, logger: logger}
}

// Assemble validates groups, drops expired stories, and orders the feed
// unviewed-first. Groups left empty by expiry are removed rather than
// failing validation. Returns a new slice; the input is not modified.
func (s *Service) Assemble(groups []domain.StoryGroup, now time.Time) ([]domain.StoryGroup, error) {
	if err := Validate(groups); err != nil {
		return nil, err
	}

	fresh := FilterExpired(groups, now, s.expiry)
	dropped := len(groups) - len(fresh)
	if dropped > 0 {
		s.logger.Debug("dropped empty groups after expiry", "count", dropped)
	}

	return SortUnviewedFirst(fresh), nil
}

// SearchAuthors fuzzy-matches query against author display names and
// returns matching groups ranked best-first. An empty query matches
// nothing.
func (s *Service) SearchAuthors(groups []domain.StoryGroup, query string) []AuthorMatch {
	if query == "" {
		return nil
	}

	names := make([]string, len(groups))
	for i, g := range groups {
		names[i] = strings.ToLower(g.Author.Name)
	}

	ranks := fuzzy.RankFindFold(strings.ToLower(query), names)
	sort.Slice(ranks, func(i, j int) bool {
		return ranks[i].Distance < ranks[j].Distance
	})

	results := make([]AuthorMatch, 0, len(ranks))
	for _, r := range ranks {
		results = append(results, AuthorMatch{
			GroupIndex: r.OriginalIndex,
			Author:     groups[r.OriginalIndex].Author,
			Score:      r.Distance,
		})
	}
	return results
}

// Validate checks every group and rejects duplicate group IDs across the
// feed.
func Validate(groups []domain.StoryGroup) error {
	seen := make(map[string]struct{}, len(groups))
	for _, g := range groups {
		if err := g.Validate(); err != nil {
			return err
		}
		if _, dup := seen[g.ID]; dup {
			return &domain.ValidationError{Field: "id", Reason: "duplicate group id " + g.ID}
		}
		seen[g.ID] = struct{}{}
	}
	return nil
}

// FilterExpired drops stories posted more than maxAge before now. Stories
// with a zero CreatedAt never expire. Groups left with no stories are
// dropped entirely.
func FilterExpired(groups []domain.StoryGroup, now time.Time, maxAge time.Duration) []domain.StoryGroup {
	out := make([]domain.StoryGroup, 0, len(groups))
	for _, g := range groups {
		kept := make([]domain.Story, 0, len(g.Stories))
		for _, story := range g.Stories {
			created := story.Base().CreatedAt
			if created.IsZero() || now.Sub(created) <= maxAge {
				kept = append(kept, story)
			}
		}
		if len(kept) == 0 {
			continue
		}
		g.Stories = kept
		out = append(out, g)
	}
	return out
}

// SortUnviewedFirst moves fully-viewed groups to the back of the feed.
// Relative order within each partition is preserved.
func SortUnviewedFirst(groups []domain.StoryGroup) []domain.StoryGroup {
	out := make([]domain.StoryGroup, len(groups))
	copy(out, groups)
	sort.SliceStable(out, func(i, j int) bool {
		return !out[i].AllViewed() && out[j].AllViewed()
	})
	return out
}
