// Package ledger holds the like/dislike state of a single sauce and the
// transition applied when a user votes on it.
package ledger

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidVoteValue = errors.New("invalid vote value")
	ErrInvalidCaller    = errors.New("caller identity is required")
)

// Vote is the value a caller submits: 1 likes, -1 dislikes, 0 clears.
type Vote int

const (
	Dislike Vote = -1
	Clear   Vote = 0
	Like    Vote = 1
)

// ParseVote accepts only the three wire values. Anything else is rejected
// instead of being treated as a clear.
func ParseVote(n int) (Vote, error) {
	v := Vote(n)
	if !v.Valid() {
		return 0, fmt.Errorf("%w: %d", ErrInvalidVoteValue, n)
	}
	return v, nil
}

func (v Vote) Valid() bool {
	return v == Like || v == Dislike || v == Clear
}

func (v Vote) String() string {
	switch v {
	case Like:
		return "like"
	case Dislike:
		return "dislike"
	case Clear:
		return "clear"
	}
	return fmt.Sprintf("vote(%d)", int(v))
}

// Position is where a caller currently stands on a sauce.
type Position int

const (
	Neutral Position = iota
	Liked
	Disliked
)

func (p Position) String() string {
	switch p {
	case Liked:
		return "liked"
	case Disliked:
		return "disliked"
	}
	return "neutral"
}

// State is the vote state of one sauce. Likes and Dislikes always equal the
// sizes of LikedBy and DislikedBy, and no identity is in both lists.
type State struct {
	LikedBy    []string
	DislikedBy []string
	Likes      int
	Dislikes   int
}

// Empty returns the state every sauce starts with.
func Empty() State {
	return State{LikedBy: []string{}, DislikedBy: []string{}}
}

// PositionOf reports the caller's position in s.
func PositionOf(s State, caller string) Position {
	switch {
	case contains(s.LikedBy, caller):
		return Liked
	case contains(s.DislikedBy, caller):
		return Disliked
	}
	return Neutral
}

// Apply returns the state after caller submits v. s is not modified.
//
// Submitting the vote the caller already holds clears it, submitting the
// opposite vote swaps it, and Clear always ends neutral.
func Apply(s State, caller string, v Vote) (State, error) {
	if !v.Valid() {
		return s, fmt.Errorf("%w: %d", ErrInvalidVoteValue, int(v))
	}
	if caller == "" {
		return s, ErrInvalidCaller
	}

	cur := Normalize(s)
	target := next(PositionOf(cur, caller), v)

	out := State{
		LikedBy:    without(cur.LikedBy, caller),
		DislikedBy: without(cur.DislikedBy, caller),
	}
	switch target {
	case Liked:
		out.LikedBy = append(out.LikedBy, caller)
	case Disliked:
		out.DislikedBy = append(out.DislikedBy, caller)
	}
	out.Likes = len(out.LikedBy)
	out.Dislikes = len(out.DislikedBy)
	return out, nil
}

func next(cur Position, v Vote) Position {
	switch v {
	case Like:
		if cur == Liked {
			return Neutral
		}
		return Liked
	case Dislike:
		if cur == Disliked {
			return Neutral
		}
		return Disliked
	}
	return Neutral
}

// Normalize rebuilds s from its lists alone. Empty identities and duplicates
// are dropped, an identity present in both lists is dropped from both, and the
// counters are recomputed. The result never shares memory with s.
func Normalize(s State) State {
	liked := dedupe(s.LikedBy)
	disliked := dedupe(s.DislikedBy)

	both := make(map[string]struct{})
	for _, id := range liked {
		if contains(disliked, id) {
			both[id] = struct{}{}
		}
	}
	if len(both) > 0 {
		liked = drop(liked, both)
		disliked = drop(disliked, both)
	}

	return State{
		LikedBy:    liked,
		DislikedBy: disliked,
		Likes:      len(liked),
		Dislikes:   len(disliked),
	}
}

// Repairs lists the identities other than caller whose position Normalize
// changes in s: anyone found in both lists, since Normalize drops them from
// both. Duplicates and empty entries change no one's position.
func Repairs(s State, caller string) []string {
	disliked := dedupe(s.DislikedBy)
	var out []string
	for _, id := range dedupe(s.LikedBy) {
		if id != caller && contains(disliked, id) {
			out = append(out, id)
		}
	}
	return out
}

// Check reports the first broken invariant in s, or nil.
func Check(s State) error {
	if s.Likes != len(s.LikedBy) {
		return fmt.Errorf("likes = %d, but %d users liked", s.Likes, len(s.LikedBy))
	}
	if s.Dislikes != len(s.DislikedBy) {
		return fmt.Errorf("dislikes = %d, but %d users disliked", s.Dislikes, len(s.DislikedBy))
	}
	seen := make(map[string]bool, len(s.LikedBy))
	for _, id := range s.LikedBy {
		if seen[id] {
			return fmt.Errorf("user %q liked twice", id)
		}
		seen[id] = true
	}
	seenDis := make(map[string]bool, len(s.DislikedBy))
	for _, id := range s.DislikedBy {
		if seenDis[id] {
			return fmt.Errorf("user %q disliked twice", id)
		}
		if seen[id] {
			return fmt.Errorf("user %q both liked and disliked", id)
		}
		seenDis[id] = true
	}
	return nil
}

func contains(list []string, id string) bool {
	for _, v := range list {
		if v == id {
			return true
		}
	}
	return false
}

func without(list []string, id string) []string {
	out := make([]string, 0, len(list)+1)
	for _, v := range list {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

func dedupe(list []string) []string {
	out := make([]string, 0, len(list))
	seen := make(map[string]struct{}, len(list))
	for _, v := range list {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func drop(list []string, ids map[string]struct{}) []string {
	out := list[:0]
	for _, v := range list {
		if _, ok := ids[v]; !ok {
			out = append(out, v)
		}
	}
	return out
}
