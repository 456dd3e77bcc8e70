package queue

import (
	"testing"

	"gitlab.com/mipimipi/mpdgo/src/internal/song"
)

func newTestSong(uri string) *song.Song {
	return song.NewInDatabase(uri, "/music", 0, song.New())
}

func fillQueue(t *testing.T, q *Queue, n int) []int32 {
	t.Helper()
	ids := make([]int32, n)
	for i := 0; i < n; i++ {
		id, err := q.Append(newTestSong("song.mp3"), 0)
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
		ids[i] = id
	}
	return ids
}

// property 1 (spec.md §8): id-to-position bookkeeping stays consistent
// across append, move, delete and shuffle.
func TestIDToPositionInvariant(t *testing.T) {
	q := New(16)
	fillQueue(t, q, 8)

	if !q.IDToPositionInvariant() {
		t.Fatal("invariant broken after append")
	}
	if err := q.Move(0, 5); err != nil {
		t.Fatalf("move: %v", err)
	}
	if !q.IDToPositionInvariant() {
		t.Fatal("invariant broken after move")
	}
	if err := q.MoveRange(1, 4, 6); err != nil {
		t.Fatalf("moverange: %v", err)
	}
	if !q.IDToPositionInvariant() {
		t.Fatal("invariant broken after moverange")
	}
	if err := q.Delete(2); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !q.IDToPositionInvariant() {
		t.Fatal("invariant broken after delete")
	}
	if err := q.ShuffleRange(0, q.Len()); err != nil {
		t.Fatalf("shuffle: %v", err)
	}
	if !q.IDToPositionInvariant() {
		t.Fatal("invariant broken after shuffle")
	}
}

// Move must preserve the order permutation's identity: the id that was
// playing at a given order index keeps being the one played at that index,
// even though its position has changed.
func TestMovePreservesOrderIdentity(t *testing.T) {
	q := New(16)
	ids := fillQueue(t, q, 5)

	before := make([]int32, len(ids))
	for o := range before {
		pos, err := q.PositionAtOrder(o)
		if err != nil {
			t.Fatalf("positionatorder %d: %v", o, err)
		}
		before[o] = q.items[pos].ID
	}

	if err := q.Move(0, 3); err != nil {
		t.Fatalf("move: %v", err)
	}

	for o := range before {
		pos, err := q.PositionAtOrder(o)
		if err != nil {
			t.Fatalf("positionatorder %d after move: %v", o, err)
		}
		if q.items[pos].ID != before[o] {
			t.Fatalf("order index %d: expected id %d, got %d", o, before[o], q.items[pos].ID)
		}
	}
}

// property 2 (spec.md §8): in random mode the order permutation is grouped
// by descending priority, highest-priority band first.
func TestShuffleOrderRespectsPriorityBands(t *testing.T) {
	q := New(16)
	q.Random = true

	lowIDs := make(map[int32]bool)
	highIDs := make(map[int32]bool)
	for i := 0; i < 5; i++ {
		id, _ := q.Append(newTestSong("low.mp3"), 0)
		lowIDs[id] = true
	}
	for i := 0; i < 5; i++ {
		id, _ := q.Append(newTestSong("high.mp3"), 10)
		highIDs[id] = true
	}
	q.ShuffleOrder()

	sawLow := false
	for _, id := range q.order {
		if highIDs[id] && sawLow {
			t.Fatalf("found high-priority id %d after a low-priority id in order", id)
		}
		if lowIDs[id] {
			sawLow = true
		}
	}
}

// property 3 (spec.md §8): SetPriorityRange is idempotent.
func TestSetPriorityRangeIdempotent(t *testing.T) {
	q := New(16)
	q.Random = true
	fillQueue(t, q, 6)
	q.ShuffleOrder()

	if err := q.SetPriorityRange(1, 4, 7, -1, -1); err != nil {
		t.Fatalf("first call: %v", err)
	}
	first := append([]int32(nil), q.order...)

	if err := q.SetPriorityRange(1, 4, 7, -1, -1); err != nil {
		t.Fatalf("second call: %v", err)
	}
	second := append([]int32(nil), q.order...)

	if len(first) != len(second) {
		t.Fatalf("order length changed: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("order changed on repeat application at index %d: %d vs %d", i, first[i], second[i])
		}
	}
}

func TestSetPriorityNeverMovesCurrentlyPlaying(t *testing.T) {
	q := New(16)
	q.Random = true
	fillQueue(t, q, 4)
	q.ShuffleOrder()

	currentPos, err := q.PositionAtOrder(1)
	if err != nil {
		t.Fatalf("positionatorder: %v", err)
	}
	currentID := q.items[currentPos].ID

	if err := q.SetPriority(currentPos, 9, 1, -1); err != nil {
		t.Fatalf("setpriority: %v", err)
	}
	pos, err := q.PositionAtOrder(1)
	if err != nil {
		t.Fatalf("positionatorder after: %v", err)
	}
	if q.items[pos].ID != currentID {
		t.Fatalf("currently playing item moved in order: expected id %d at order 1, got %d", currentID, q.items[pos].ID)
	}
}

func TestNextOrderSingleRepeatNoConsumeRepeatsSameIndex(t *testing.T) {
	q := New(16)
	q.Single = true
	q.Repeat = true
	fillQueue(t, q, 3)

	if got := q.NextOrder(1); got != 1 {
		t.Fatalf("expected next order to stay at 1, got %d", got)
	}
}

func TestNextOrderEndOfQueueWithoutRepeatStops(t *testing.T) {
	q := New(16)
	fillQueue(t, q, 3)

	if got := q.NextOrder(2); got != -1 {
		t.Fatalf("expected -1 at end without repeat, got %d", got)
	}
}

func TestNextOrderEndOfQueueWithRepeatWraps(t *testing.T) {
	q := New(16)
	q.Repeat = true
	fillQueue(t, q, 3)

	if got := q.NextOrder(2); got != 0 {
		t.Fatalf("expected wraparound to 0, got %d", got)
	}
}

func TestAppendRejectsOverMaxLength(t *testing.T) {
	q := New(2)
	fillQueue(t, q, 2)
	if _, err := q.Append(newTestSong("one-too-many.mp3"), 0); err != ErrTooLarge {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
}

func TestDeleteReleasesDetachedSong(t *testing.T) {
	q := New(4)
	s := song.NewDetached("http://example.com/stream", song.New())
	s.Acquire()
	id, err := q.Append(s, 0)
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	pos, _ := q.PositionOf(id)
	if err := q.Delete(pos); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !s.Release() {
		t.Fatal("expected queue delete to drop exactly one reference, leaving one held by this test")
	}
}

func TestVersionWrapsAtCeiling(t *testing.T) {
	q := New(4)
	q.version = versionCeiling
	fillQueue(t, q, 1)
	if q.version != 1 {
		t.Fatalf("expected version reset to 1 after ceiling, got %d", q.version)
	}
}
