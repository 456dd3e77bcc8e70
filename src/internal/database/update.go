package database

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rjeczalik/notify"
)

// maxQueuedJobs bounds the backlog of pending update requests
// (spec.md §4.1: "implementation keeps ≤32 queued").
const maxQueuedJobs = 32

type updateJob struct {
	id      uint32
	uri     string
	discard bool
}

// UpdateResult is delivered on Database.Results after an update job
// finishes.
type UpdateResult struct {
	JobID    uint32
	Modified bool
	Err      error
}

// Update enqueues an asynchronous rescan of uri (the whole tree if uri is
// empty) and returns the job id assigned to it, or 0 if the backlog of
// ≤32 pending jobs is full (spec.md §4.1).
func (db *Database) Update(uri string, discard bool) uint32 {
	db.jobsMu.Lock()
	defer db.jobsMu.Unlock()

	if len(db.jobs) >= maxQueuedJobs {
		return 0
	}
	db.nextJob++
	job := updateJob{id: db.nextJob, uri: uri, discard: discard}
	db.jobs = append(db.jobs, job)
	if !db.running {
		db.running = true
		go db.drainJobs()
	}
	return job.id
}

// results is where drainJobs publishes job outcomes; Results returns the
// receive-only view of it, created lazily so a Database built without a
// consumer never blocks on it (spec.md §5: update thread runs at most one
// job at a time, additional requests queue).
func (db *Database) resultsChan() chan UpdateResult {
	db.jobsMu.Lock()
	defer db.jobsMu.Unlock()
	if db.results == nil {
		db.results = make(chan UpdateResult, maxQueuedJobs)
	}
	return db.results
}

// Results returns the channel update job outcomes are published on.
func (db *Database) Results() <-chan UpdateResult { return db.resultsChan() }

func (db *Database) drainJobs() {
	results := db.resultsChan()
	for {
		db.jobsMu.Lock()
		if len(db.jobs) == 0 {
			db.running = false
			db.jobsMu.Unlock()
			return
		}
		job := db.jobs[0]
		db.jobs = db.jobs[1:]
		db.jobsMu.Unlock()

		modified, err := db.scan(job.uri, job.discard)
		select {
		case results <- UpdateResult{JobID: job.id, Modified: modified, Err: err}:
		default:
			log.Warn("dropping update result, consumer too slow")
		}
	}
}

// Watcher drives mpdgo's optional inotify-backed live update thread
// (spec.md §5 "Optionally one 'inotify' thread for live filesystem
// events"), grounded on the teacher's content/notifier.go control loop:
// batch raw fs events, then fold them into one rescan per burst instead of
// one per event.
type Watcher struct {
	db       *Database
	interval time.Duration

	mu      sync.Mutex
	changed bool
}

// NewWatcher creates a watcher for db's music directory. interval bounds
// how often a burst of inotify events is folded into one rescan.
func NewWatcher(db *Database, interval time.Duration) *Watcher {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Watcher{db: db, interval: interval}
}

// Run watches the music directory via inotify and triggers a rescan of the
// whole tree for every burst of changes, until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	events := make(chan notify.EventInfo, 64)
	if err := notify.Watch(filepath.Join(w.db.musicDir, "..."), events, notify.All); err != nil {
		log.Error(errors.Wrapf(err, "cannot watch music directory '%s'", w.db.musicDir))
		return
	}
	defer notify.Stop(events)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-events:
			w.mu.Lock()
			w.changed = true
			w.mu.Unlock()
		case <-ticker.C:
			w.mu.Lock()
			changed := w.changed
			w.changed = false
			w.mu.Unlock()
			if changed {
				w.db.Update("", false)
			}
		}
	}
}
