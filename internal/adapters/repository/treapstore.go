package repository

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/okian/crmscore/internal/domain/scoring"
	"github.com/okian/crmscore/pkg/metrics"
)

// Treap-based, in-memory RankStore.
//
// Ordering: score DESC, then entityID ASC. "less" means ranks earlier, so an
// in-order traversal yields the leaderboard from best to worst. Subtree sizes
// give positional access for paging.

type node struct {
	id    string
	score int
	prio  uint64
	left  *node
	right *node
	size  int
}

func nsize(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix(n *node) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

// less returns true if (aScore, aID) appears before (bScore, bID).
func less(aScore int, aID string, bScore int, bID string) bool {
	if aScore != bScore {
		return aScore > bScore
	}
	return aID < bID
}

func rotateRight(y *node) *node {
	x := y.left
	y.left = x.right
	x.right = y
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	x.right = y.left
	y.left = x
	fix(x)
	fix(y)
	return y
}

func insert(n, nn *node) *node {
	if n == nil {
		return nn
	}
	if less(nn.score, nn.id, n.score, n.id) {
		n.left = insert(n.left, nn)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, nn)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

func deleteNode(n *node, id string, score int) *node {
	if n == nil {
		return nil
	}
	switch {
	case score == n.score && id == n.id:
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = deleteNode(n.right, id, score)
		} else {
			n = rotateLeft(n)
			n.left = deleteNode(n.left, id, score)
		}
	case less(score, id, n.score, n.id):
		n.left = deleteNode(n.left, id, score)
	default:
		n.right = deleteNode(n.right, id, score)
	}
	fix(n)
	return n
}

// collect appends nodes in rank order, skipping the first *skip and stopping
// once out holds limit entries.
func collect(n *node, skip *int, limit int, out *[]Entry) {
	if n == nil || len(*out) >= limit {
		return
	}
	if *skip >= nsize(n) {
		*skip -= nsize(n)
		return
	}
	collect(n.left, skip, limit, out)
	if len(*out) >= limit {
		return
	}
	if *skip > 0 {
		*skip--
	} else {
		*out = append(*out, Entry{EntityID: n.id, Score: n.score})
	}
	collect(n.right, skip, limit, out)
}

// TreapStore implements RankStore.
type TreapStore struct {
	mu   sync.RWMutex
	root *node
	byID map[string]int
	// buckets counts entities per score; a dense rank is one plus the
	// number of non-empty buckets above the score.
	buckets [scoring.MaxScore + 1]int
	seed    uint64
	rng     *rand.Rand
}

var _ RankStore = (*TreapStore)(nil)

// NewTreapStore constructs a treap store.
func NewTreapStore(opts ...Option) *TreapStore {
	s := &TreapStore{
		byID: make(map[string]int),
		seed: uint64(time.Now().UnixNano()), //nolint:gosec // priorities need no crypto randomness
	}
	for _, opt := range opts {
		opt(s)
	}
	s.rng = rand.New(rand.NewPCG(s.seed, s.seed^0x9e3779b97f4a7c15)) //nolint:gosec // see above
	return s
}

// Upsert implements RankStore.Upsert in O(log n) expected time.
func (s *TreapStore) Upsert(_ context.Context, entityID string, score int) (bool, error) {
	if entityID == "" {
		return false, ErrMissingIdentifier
	}
	if score < 0 || score > scoring.MaxScore {
		metrics.RecordErrorByComponent("repository", "score_out_of_range")
		return false, ErrScoreOutOfRange
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.byID[entityID]; ok {
		if old == score {
			return false, nil
		}
		s.root = deleteNode(s.root, entityID, old)
		s.buckets[old]--
	}
	s.byID[entityID] = score
	s.buckets[score]++
	s.root = insert(s.root, &node{id: entityID, score: score, prio: s.rng.Uint64(), size: 1})
	metrics.RecordLeaderboardUpdate()
	return true, nil
}

// Remove implements RankStore.Remove.
func (s *TreapStore) Remove(_ context.Context, entityID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	score, ok := s.byID[entityID]
	if !ok {
		return false
	}
	s.root = deleteNode(s.root, entityID, score)
	s.buckets[score]--
	delete(s.byID, entityID)
	metrics.RecordLeaderboardUpdate()
	return true
}

// Rank implements RankStore.Rank in O(MaxScore).
func (s *TreapStore) Rank(_ context.Context, entityID string) (Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	score, ok := s.byID[entityID]
	if !ok {
		metrics.RecordErrorByComponent("repository", "not_found")
		return Entry{}, ErrNotFound
	}
	return Entry{Rank: s.denseRank(score), EntityID: entityID, Score: score}, nil
}

// TopN implements RankStore.TopN.
func (s *TreapStore) TopN(ctx context.Context, n int) ([]Entry, error) {
	if n < 1 {
		metrics.RecordErrorByComponent("repository", "invalid_limit")
		return nil, ErrInvalidLimit
	}
	return s.Page(ctx, 0, n)
}

// Page implements RankStore.Page.
func (s *TreapStore) Page(_ context.Context, offset, limit int) ([]Entry, error) {
	if limit < 1 {
		return nil, ErrInvalidLimit
	}
	if offset < 0 {
		return nil, ErrInvalidOffset
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Entry, 0, min(limit, len(s.byID)))
	skip := offset
	collect(s.root, &skip, limit, &out)

	// Ranks only change where the score does, so one bucket scan seeds the
	// page and the rest follows in order.
	for i := range out {
		switch {
		case i == 0:
			out[i].Rank = s.denseRank(out[i].Score)
		case out[i].Score == out[i-1].Score:
			out[i].Rank = out[i-1].Rank
		default:
			out[i].Rank = out[i-1].Rank + 1
		}
	}
	return out, nil
}

// Count returns the number of ranked entities.
func (s *TreapStore) Count(_ context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// denseRank must be called with the lock held.
func (s *TreapStore) denseRank(score int) int {
	rank := 1
	for sc := scoring.MaxScore; sc > score; sc-- {
		if s.buckets[sc] > 0 {
			rank++
		}
	}
	return rank
}
