// Package queue implements the mpdgo song queue: a bounded, ordered list of
// playable items addressable by position, id and playback order, with
// random/repeat/single/consume modes and priority-biased shuffling.
//
// Grounded on spec.md §4.2 and original_source/src/queue.c.
package queue

import (
	"math/rand"

	"github.com/pkg/errors"
	"gitlab.com/mipimipi/mpdgo/src/internal/song"
)

// Errors returned by queue operations (mapped to ACK kinds by the client
// dispatch layer).
var (
	ErrTooLarge   = errors.New("queue: too large")
	ErrBadRange   = errors.New("queue: bad range")
	ErrNoSuchSong = errors.New("queue: no such song")
)

const versionCeiling = uint32(1<<31 - 1)

// Item is one slot of the queue.
type Item struct {
	Song     *song.Song
	ID       int32
	Version  uint32
	Priority uint8
}

// Queue is the live, in-memory ordered list of songs to be played.
//
// The playback order permutation is stored as a sequence of item ids rather
// than positions: ids are stable across Move/Swap/Shuffle, so the order
// slice never needs remapping when positions change underneath it. Only
// deletion and append touch it directly.
type Queue struct {
	items   []Item
	order   []int32 // sequence of item ids, a permutation of the live id set
	idToPos []int32 // idToPos[id] = position, or -1 if unused
	nextID  int32   // next id to probe when allocating
	maxLen  int
	version uint32
	Repeat  bool
	Single  bool
	Consume bool
	Random  bool
}

// New creates an empty queue with the given maximum length and an id space
// sized maxLen*4 (spec.md §4.2 / original_source/src/queue.c).
func New(maxLen int) *Queue {
	idSpace := maxLen * 4
	if idSpace == 0 {
		idSpace = 4
	}
	q := &Queue{
		maxLen:  maxLen,
		idToPos: make([]int32, idSpace),
		version: 1,
	}
	for i := range q.idToPos {
		q.idToPos[i] = -1
	}
	return q
}

// Len returns the number of items currently queued.
func (q *Queue) Len() int { return len(q.items) }

// Version returns the queue's current monotonic version counter.
func (q *Queue) Version() uint32 { return q.version }

// incrementVersion bumps the counter, resetting every item to version 0
// when it would overflow 2^31-1 (spec.md §4.2).
func (q *Queue) incrementVersion() {
	if q.version >= versionCeiling {
		for i := range q.items {
			q.items[i].Version = 0
		}
		q.version = 1
		return
	}
	q.version++
}

func (q *Queue) touch(pos int) { q.items[pos].Version = q.version }

// allocID draws the next free id via a linear scan from the last
// allocation point, wrapping around. The space is sized larger than the
// population so the scan cannot fail.
func (q *Queue) allocID() int32 {
	n := int32(len(q.idToPos))
	for i := int32(0); i < n; i++ {
		id := (q.nextID + i) % n
		if q.idToPos[id] == -1 {
			q.nextID = (id + 1) % n
			return id
		}
	}
	panic("queue: id space exhausted (invariant violated)")
}

// PositionOf returns the position of the item with the given id.
func (q *Queue) PositionOf(id int32) (int, bool) {
	if id < 0 || int(id) >= len(q.idToPos) {
		return 0, false
	}
	p := q.idToPos[id]
	if p < 0 {
		return 0, false
	}
	return int(p), true
}

// At returns the item at the given position.
func (q *Queue) At(pos int) (Item, error) {
	if pos < 0 || pos >= len(q.items) {
		return Item{}, ErrBadRange
	}
	return q.items[pos], nil
}

// orderIndexOfID returns the index within q.order of the given id.
func (q *Queue) orderIndexOfID(id int32) int {
	for i, oid := range q.order {
		if oid == id {
			return i
		}
	}
	return -1
}

// OrderOf returns the order index at which position pos is played.
func (q *Queue) OrderOf(pos int) int {
	if pos < 0 || pos >= len(q.items) {
		return -1
	}
	return q.orderIndexOfID(q.items[pos].ID)
}

// PositionAtOrder returns the position played at order index o.
func (q *Queue) PositionAtOrder(o int) (int, error) {
	if o < 0 || o >= len(q.order) {
		return 0, ErrBadRange
	}
	pos, ok := q.PositionOf(q.order[o])
	if !ok {
		return 0, ErrBadRange
	}
	return pos, nil
}

// Append adds a song at the end of the queue with the given priority and
// returns its id. It fails with ErrTooLarge at max length.
func (q *Queue) Append(s *song.Song, priority uint8) (int32, error) {
	if q.maxLen > 0 && len(q.items) >= q.maxLen {
		return 0, ErrTooLarge
	}
	id := q.allocID()
	pos := len(q.items)
	q.items = append(q.items, Item{Song: s, ID: id, Priority: priority})
	q.idToPos[id] = int32(pos)
	q.order = append(q.order, id)
	q.incrementVersion()
	q.touch(pos)
	if q.Random {
		q.sortOrderByPriorityBands()
	}
	return id, nil
}

// delAt removes the item at position pos, compacting positions and
// dropping its id from the order permutation, releasing a detached song's
// reference.
func (q *Queue) delAt(pos int) {
	id := q.items[pos].ID
	if s := q.items[pos].Song; s != nil {
		s.Release()
	}

	q.items = append(q.items[:pos], q.items[pos+1:]...)
	q.idToPos[id] = -1
	for p := pos; p < len(q.items); p++ {
		q.idToPos[q.items[p].ID] = int32(p)
	}

	if oi := q.orderIndexOfID(id); oi >= 0 {
		q.order = append(q.order[:oi], q.order[oi+1:]...)
	}
}

// Delete removes the item at the given position.
func (q *Queue) Delete(pos int) error {
	if pos < 0 || pos >= len(q.items) {
		return ErrBadRange
	}
	q.delAt(pos)
	q.incrementVersion()
	return nil
}

// DeleteID removes the item with the given id.
func (q *Queue) DeleteID(id int32) error {
	pos, ok := q.PositionOf(id)
	if !ok {
		return ErrNoSuchSong
	}
	return q.Delete(pos)
}

// DeleteRange removes items in [start,end).
func (q *Queue) DeleteRange(start, end int) error {
	if start < 0 || end > len(q.items) || start >= end {
		return ErrBadRange
	}
	for p := end - 1; p >= start; p-- {
		q.delAt(p)
	}
	q.incrementVersion()
	return nil
}

// Clear removes every item from the queue.
func (q *Queue) Clear() {
	for p := range q.items {
		if s := q.items[p].Song; s != nil {
			s.Release()
		}
		q.idToPos[q.items[p].ID] = -1
	}
	q.items = q.items[:0]
	q.order = q.order[:0]
	q.incrementVersion()
}

// rebuildPositions recomputes idToPos from the current q.items slice. The
// order permutation, being id-addressed, needs no adjustment.
func (q *Queue) rebuildPositions() {
	for p, it := range q.items {
		q.idToPos[it.ID] = int32(p)
	}
}

// Move relocates the item at position from to position to.
func (q *Queue) Move(from, to int) error {
	if from < 0 || from >= len(q.items) || to < 0 || to >= len(q.items) {
		return ErrBadRange
	}
	if from == to {
		return nil
	}
	it := q.items[from]
	q.items = append(q.items[:from], q.items[from+1:]...)
	tail := append([]Item{it}, q.items[to:]...)
	q.items = append(q.items[:to], tail...)

	q.rebuildPositions()
	q.incrementVersion()
	q.touch(to)
	return nil
}

// MoveRange relocates items [start,end) so that the item currently at
// start ends up at position to.
func (q *Queue) MoveRange(start, end, to int) error {
	if start < 0 || end > len(q.items) || start >= end {
		return ErrBadRange
	}
	if to >= start && to < end {
		return ErrBadRange
	}
	n := end - start
	moved := append([]Item(nil), q.items[start:end]...)
	rest := append(append([]Item(nil), q.items[:start]...), q.items[end:]...)

	insertAt := to
	if to > start {
		insertAt = to - n
	}
	newItems := append(append([]Item(nil), rest[:insertAt]...), moved...)
	newItems = append(newItems, rest[insertAt:]...)
	q.items = newItems

	q.rebuildPositions()
	q.incrementVersion()
	for p := 0; p < n; p++ {
		q.touch(insertAt + p)
	}
	return nil
}

// Swap exchanges the items at two positions.
func (q *Queue) Swap(pos1, pos2 int) error {
	if pos1 < 0 || pos1 >= len(q.items) || pos2 < 0 || pos2 >= len(q.items) {
		return ErrBadRange
	}
	q.items[pos1], q.items[pos2] = q.items[pos2], q.items[pos1]
	q.idToPos[q.items[pos1].ID] = int32(pos1)
	q.idToPos[q.items[pos2].ID] = int32(pos2)
	q.incrementVersion()
	q.touch(pos1)
	q.touch(pos2)
	return nil
}

// ShuffleRange randomizes the physical position of items within
// [start,end).
func (q *Queue) ShuffleRange(start, end int) error {
	if start < 0 || end > len(q.items) || start > end {
		return ErrBadRange
	}
	sub := q.items[start:end]
	rand.Shuffle(len(sub), func(i, j int) { sub[i], sub[j] = sub[j], sub[i] })
	q.rebuildPositions()
	q.incrementVersion()
	for p := start; p < end; p++ {
		q.touch(p)
	}
	if q.Random {
		q.sortOrderByPriorityBands()
	}
	return nil
}

// NextOrder implements the spec.md §4.2 next_order rule.
func (q *Queue) NextOrder(current int) int {
	if q.Single && q.Repeat && !q.Consume {
		return current
	}
	if current+1 < len(q.order) {
		return current + 1
	}
	if q.Repeat && (current > 0 || !q.Consume) {
		return 0
	}
	return -1
}

// SetRandom toggles random mode, regenerating the order permutation.
func (q *Queue) SetRandom(on bool) {
	if q.Random == on {
		return
	}
	q.Random = on
	q.ShuffleOrder()
}

// ShuffleOrder regenerates the order permutation: identity in sequential
// mode; sorted by priority descending with Fisher-Yates within each
// priority band in random mode (spec.md §4.2, testable property 2).
func (q *Queue) ShuffleOrder() {
	q.order = make([]int32, len(q.items))
	for p, it := range q.items {
		q.order[p] = it.ID
	}
	if q.Random {
		q.sortOrderByPriorityBands()
	}
}

// sortOrderByPriorityBands stable-groups order entries by descending
// priority and Fisher-Yates-shuffles within each band.
func (q *Queue) sortOrderByPriorityBands() {
	if len(q.order) == 0 {
		return
	}
	priorityOf := func(id int32) uint8 {
		p, _ := q.PositionOf(id)
		return q.items[p].Priority
	}

	var priorities []uint8
	byPriority := make(map[uint8][]int32)
	for _, id := range q.order {
		pr := priorityOf(id)
		if _, ok := byPriority[pr]; !ok {
			priorities = append(priorities, pr)
		}
		byPriority[pr] = append(byPriority[pr], id)
	}
	for i := 0; i < len(priorities); i++ {
		for j := i + 1; j < len(priorities); j++ {
			if priorities[j] > priorities[i] {
				priorities[i], priorities[j] = priorities[j], priorities[i]
			}
		}
	}
	out := q.order[:0]
	for _, pr := range priorities {
		band := byPriority[pr]
		rand.Shuffle(len(band), func(i, j int) { band[i], band[j] = band[j], band[i] })
		out = append(out, band...)
	}
	q.order = out
}

// SetPriority implements spec.md §4.2's set_priority re-placement rule.
// currentOrder is the order index of the song currently playing, or -1 if
// none. afterOrder is the order index after which a re-inserted item
// should land.
func (q *Queue) SetPriority(pos int, newPriority uint8, currentOrder, afterOrder int) error {
	if pos < 0 || pos >= len(q.items) {
		return ErrBadRange
	}
	if q.items[pos].Priority == newPriority {
		return nil
	}
	q.items[pos].Priority = newPriority
	q.incrementVersion()
	q.touch(pos)

	if !q.Random {
		return nil
	}

	order := q.OrderOf(pos)
	if order == currentOrder {
		// currently playing: never move it.
		return nil
	}
	if afterOrder == currentOrder && order < currentOrder {
		// open question (spec.md §9): after_order pointing at the current
		// order leaves history untouched.
		return nil
	}
	if order < currentOrder && currentOrder >= 0 && currentOrder < len(q.order) {
		// already played: leave in history unless the new priority beats
		// the currently playing song's priority.
		curPos, ok := q.PositionOf(q.order[currentOrder])
		if ok && newPriority <= q.items[curPos].Priority {
			return nil
		}
	}

	q.reinsertAfter(order, afterOrder, newPriority)
	return nil
}

// SetPriorityRange applies SetPriority to every position in [start,end).
// Idempotent: since priority assignment and re-placement only depend on
// the (already-applied) priority value, running it twice with the same
// arguments a second time is a no-op.
func (q *Queue) SetPriorityRange(start, end int, newPriority uint8, currentOrder, afterOrder int) error {
	if start < 0 || end > len(q.items) || start > end {
		return ErrBadRange
	}
	for pos := start; pos < end; pos++ {
		if err := q.SetPriority(pos, newPriority, currentOrder, afterOrder); err != nil {
			return err
		}
	}
	return nil
}

// reinsertAfter removes the order entry currently at fromOrder and
// reinserts it at the first slot after afterOrder whose neighbours have
// priority >= pr, then shuffles within the resulting band.
func (q *Queue) reinsertAfter(fromOrder, afterOrder int, pr uint8) {
	if fromOrder < 0 || fromOrder >= len(q.order) {
		return
	}
	id := q.order[fromOrder]
	order := append(q.order[:fromOrder:fromOrder], q.order[fromOrder+1:]...)

	priorityAt := func(i int) uint8 {
		p, _ := q.PositionOf(order[i])
		return q.items[p].Priority
	}

	insertAt := len(order)
	start := afterOrder + 1
	if start < 0 {
		start = 0
	}
	if start > len(order) {
		start = len(order)
	}
	for i := start; i < len(order); i++ {
		if priorityAt(i) < pr {
			insertAt = i
			break
		}
	}

	newOrder := make([]int32, 0, len(order)+1)
	newOrder = append(newOrder, order[:insertAt]...)
	newOrder = append(newOrder, id)
	newOrder = append(newOrder, order[insertAt:]...)
	q.order = newOrder

	bandStart, bandEnd := insertAt, insertAt+1
	priorityOf := func(i int) uint8 {
		p, _ := q.PositionOf(q.order[i])
		return q.items[p].Priority
	}
	for bandStart > 0 && priorityOf(bandStart-1) == pr {
		bandStart--
	}
	for bandEnd < len(q.order) && priorityOf(bandEnd) == pr {
		bandEnd++
	}
	band := q.order[bandStart:bandEnd]
	rand.Shuffle(len(band), func(i, j int) { band[i], band[j] = band[j], band[i] })
}

// ChangedSince returns every item whose version is >= v, or whose version
// is 0 (meaning "changed before the last wraparound") when v is still
// below the current counter (spec.md §4.2 "plchanges").
func (q *Queue) ChangedSince(v uint32) []Item {
	var out []Item
	for _, it := range q.items {
		if it.Version >= v || (it.Version == 0 && v <= q.version) {
			out = append(out, it)
		}
	}
	return out
}

// IDToPositionInvariant reports whether the id->position bookkeeping is
// consistent with Items (spec.md §8 property 1), used by tests.
func (q *Queue) IDToPositionInvariant() bool {
	for p, it := range q.items {
		if int(q.idToPos[it.ID]) != p {
			return false
		}
	}
	return true
}

// Items returns a read-only snapshot of the queue's items in position
// order.
func (q *Queue) Items() []Item {
	out := make([]Item, len(q.items))
	copy(out, q.items)
	return out
}

// Order returns a read-only snapshot of the order permutation, expressed
// as positions (not ids), for callers outside the package.
func (q *Queue) Order() []int32 {
	out := make([]int32, len(q.order))
	for i, id := range q.order {
		p, _ := q.PositionOf(id)
		out[i] = int32(p)
	}
	return out
}
