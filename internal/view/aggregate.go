// internal/view/aggregate.go
// Package view turns a user's watched-movie collection into presentation-ready
// ordered structures. Every function here is pure: no I/O, no shared state,
// and the input slice is never mutated.
package view

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cinetrack/cinetrack-go/internal/model"
)

// SortOption selects the comparator applied to a movie list.
type SortOption string

const (
	SortWatchTimeAsc  SortOption = "watchTimeAsc"
	SortWatchTimeDesc SortOption = "watchTimeDesc"
	SortRatingAsc     SortOption = "ratingAsc"
	SortRatingDesc    SortOption = "ratingDesc"
)

// unknownGroupLabel buckets records whose watch date could not be parsed.
// Zero-time records compare as oldest, so they land at the end under the
// default descending sort.
const unknownGroupLabel = "Unknown"

// Group is a labeled run of movies sharing a watch month and year.
type Group struct {
	Label  string               `json:"label"`
	Movies []model.WatchedMovie `json:"movies"`
}

// ListView is the presentation model returned to the client. Exactly one of
// Movies or Groups is populated depending on whether grouping was requested.
type ListView struct {
	Movies  []model.WatchedMovie `json:"movies,omitempty"`
	Groups  []Group              `json:"groups,omitempty"`
	Grouped bool                 `json:"grouped"`
	Empty   bool                 `json:"empty"`
}

// Sort returns a copy of movies ordered by the given option. Ties keep their
// input-relative order. An unknown option returns the input order unchanged.
func Sort(movies []model.WatchedMovie, option SortOption) []model.WatchedMovie {
	out := append([]model.WatchedMovie(nil), movies...)

	switch option {
	case SortWatchTimeAsc:
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].WatchTime.Before(out[j].WatchTime)
		})
	case SortWatchTimeDesc:
		sort.SliceStable(out, func(i, j int) bool {
			return out[j].WatchTime.Before(out[i].WatchTime)
		})
	case SortRatingAsc:
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].Rating < out[j].Rating
		})
	case SortRatingDesc:
		sort.SliceStable(out, func(i, j int) bool {
			return out[j].Rating < out[i].Rating
		})
	}
	return out
}

// Filter keeps movies whose title contains query, case-insensitively. An
// empty query keeps everything. Relative order is preserved.
func Filter(movies []model.WatchedMovie, query string) []model.WatchedMovie {
	if query == "" {
		return append([]model.WatchedMovie(nil), movies...)
	}

	needle := strings.ToLower(query)
	out := make([]model.WatchedMovie, 0, len(movies))
	for _, movie := range movies {
		if strings.Contains(strings.ToLower(movie.Title), needle) {
			out = append(out, movie)
		}
	}
	return out
}

// GroupByMonth buckets movies by the calendar month and year of their watch
// date.
// Grouping never re-orders: group order follows the first appearance of each
// month in the input, and members keep their input order. Callers sort first.
func GroupByMonth(movies []model.WatchedMovie) []Group {
	var groups []Group
	index := make(map[string]int)

	for _, movie := range movies {
		label := monthLabel(movie)
		at, seen := index[label]
		if !seen {
			at = len(groups)
			index[label] = at
			groups = append(groups, Group{Label: label})
		}
		groups[at].Movies = append(groups[at].Movies, movie)
	}
	return groups
}

// Compose applies sort, then filter, then optional grouping, in that fixed
// order, and flags an empty final result explicitly.
func Compose(movies []model.WatchedMovie, option SortOption, query string, groupByMonth bool) ListView {
	result := Filter(Sort(movies, option), query)

	if groupByMonth {
		return ListView{
			Groups:  GroupByMonth(result),
			Grouped: true,
			Empty:   len(result) == 0,
		}
	}

	return ListView{
		Movies: result,
		Empty:  len(result) == 0,
	}
}

func monthLabel(movie model.WatchedMovie) string {
	if movie.WatchTime.IsZero() {
		return unknownGroupLabel
	}
	return fmt.Sprintf("%s %d", movie.WatchTime.Month(), movie.WatchTime.Year())
}
