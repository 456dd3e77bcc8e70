// Package server wires together mpdgo's components - database, queue,
// player, playlist controller and client session listener - into the
// running service, and owns its main control loop.
//
// Grounded on the teacher's own server.Run
// (gitlab.com/mipimipi/muserv/src/internal/server/server.go): config
// load/validate, logging setup, root context construction, signal
// handling and a waitgroup-tracked set of long-running goroutines are
// kept in the same shape, re-pointed at mpdgo's playback-core components
// instead of muserv's content/UPnP pair.
package server

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/pkg/errors"
	l "github.com/sirupsen/logrus"

	"gitlab.com/mipimipi/mpdgo/src/internal/client"
	"gitlab.com/mipimipi/mpdgo/src/internal/config"
	"gitlab.com/mipimipi/mpdgo/src/internal/database"
	"gitlab.com/mipimipi/mpdgo/src/internal/pipe"
	"gitlab.com/mipimipi/mpdgo/src/internal/player"
	"gitlab.com/mipimipi/mpdgo/src/internal/playlist"
	"gitlab.com/mipimipi/mpdgo/src/internal/queue"
	"gitlab.com/mipimipi/mpdgo/src/internal/statefile"
)

var log *l.Entry = l.WithFields(l.Fields{"srv": "server"})

// defaultAudioFormat is the format mpdgo's bundled RawPCMDecoder assumes
// for every song (spec.md Non-goals: real codec plugins are out of
// scope).
var defaultAudioFormat = pipe.AudioFormat{SampleRate: 44100, Channels: 2, SampleSize: 2}

// idleClientTimeout closes a client connection that has sent no command
// for this long (spec.md §4.4).
const idleClientTimeout = 60 * time.Second

// Run implements mpdgo's main control loop: it loads and validates
// configuration, restores the database and queue from disk, starts the
// player/decoder workers and the client listener, and blocks until an OS
// termination signal arrives, at which point it persists state and
// returns.
func Run(version string) (err error) {
	var cfg config.Cfg
	if cfg, err = config.Load(""); err != nil {
		return errors.Wrap(err, "cannot run mpdgo")
	}
	if err = cfg.Validate(); err != nil {
		return errors.Wrap(err, "cannot run mpdgo")
	}

	if err = setupLogging(cfg.LogFile, cfg.LogLevel); err != nil {
		return errors.Wrap(err, "cannot run mpdgo")
	}
	log.Trace("running ...")

	ctx := context.WithValue(context.Background(), config.KeyCfg, cfg)
	ctx = context.WithValue(ctx, config.KeyVersion, version)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	db := database.New(cfg.MusicDirectory, cfg.Symlinks)
	if f, ferr := os.Open(cfg.DBFile); ferr == nil {
		ferr2 := db.Load(f)
		f.Close()
		if ferr2 != nil {
			log.Warnf("cannot load database file '%s': %v", cfg.DBFile, ferr2)
		}
	} else {
		id := db.Update("", false)
		log.Tracef("initial database scan queued as job %d", id)
	}

	q := queue.New(cfg.MaxPlaylistLength)
	var savedState statefile.State
	if f, ferr := os.Open(cfg.StateFile); ferr == nil {
		savedState, ferr = statefile.Load(f)
		f.Close()
		if ferr != nil {
			log.Warnf("cannot load state file '%s': %v", cfg.StateFile, ferr)
		} else {
			restoreQueue(q, db, savedState)
		}
	}

	p := pipe.New(cfg.PipeCapacity(pipe.ChunkSize))
	decoder := player.NewRawPCMDecoder(defaultAudioFormat)
	decWorker, decCtrl := player.NewDecoderWorker(p, decoder)

	events := make(chan player.Event, 8)
	pipeCap := cfg.PipeCapacity(pipe.ChunkSize)
	playerCfg := player.Config{
		PipeSize:           pipeCap,
		BufferedBeforePlay: int(float64(pipeCap) * cfg.Player.BufferedBeforePlay),
		CrossFadeSeconds:   cfg.Player.CrossFadeSeconds,
		ReplayGainPreamp:   cfg.Player.ReplayGainPreampDB,
		ReplayGainMode:     replayGainModeOf(cfg.Player.ReplayGainMode),
	}
	worker, playerCtrl := player.NewWorker(p, decCtrl, player.NewWriterOutput(discardWriter{}), playerCfg, events)

	pl := playlist.New(q, playerCtrl)
	applySavedPlaybackModes(pl, savedState)

	disp := client.New(db, q, pl, playerCtrl)
	disp.PlaylistDir = cfg.PlaylistDirectory
	disp.MaxPlaylistLength = cfg.MaxPlaylistLength

	var wg sync.WaitGroup

	wg.Add(1)
	go func() { defer wg.Done(); decWorker.Run(ctx) }()

	wg.Add(1)
	go func() { defer wg.Done(); worker.Run(ctx) }()

	wg.Add(1)
	go runEventLoop(ctx, &wg, events, pl, disp)

	if cfg.AutoUpdate {
		watcher := database.NewWatcher(db, cfg.Duration())
		wg.Add(1)
		go watcher.Run(ctx, &wg)
	}

	wg.Add(1)
	go func() { defer wg.Done(); drainUpdateResults(ctx, db, disp) }()

	listener, err := listen(cfg)
	if err != nil {
		return errors.Wrap(err, "cannot run mpdgo")
	}
	wg.Add(1)
	go runListener(ctx, &wg, listener, disp)

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	sig := <-interrupt
	log.Tracef("signal received: %v", sig)
	log.Trace("stopping ...")

	cancel()
	listener.Close()
	wg.Wait()
	log.Trace("stopped")

	if err := saveState(cfg, q, pl, playerCtrl); err != nil {
		log.Warnf("cannot save state file: %v", err)
	}
	if err := saveDatabase(cfg, db); err != nil {
		log.Warnf("cannot save database file: %v", err)
	}
	return nil
}

func replayGainModeOf(s string) player.ReplayGainMode {
	switch s {
	case "track":
		return player.ReplayGainTrack
	case "album":
		return player.ReplayGainAlbum
	default:
		return player.ReplayGainOff
	}
}

// discardWriter is the default audio sink when no real backend is wired
// (spec.md Non-goals: concrete output devices are out of scope).
type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

// listen opens the client-session socket: a unix domain socket if
// configured, otherwise TCP (spec.md §4.4).
func listen(cfg config.Cfg) (net.Listener, error) {
	if cfg.Network.SocketPath != "" {
		_ = os.Remove(cfg.Network.SocketPath)
		return net.Listen("unix", cfg.Network.SocketPath)
	}
	addr := fmt.Sprintf("%s:%d", cfg.Network.BindAddress, cfg.Network.Port)
	return net.Listen("tcp", addr)
}

func runListener(ctx context.Context, wg *sync.WaitGroup, ln net.Listener, disp *client.Dispatcher) {
	defer wg.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				log.Warnf("accept failed: %v", err)
				return
			}
		}
		go handleConnection(ctx, conn, disp)
	}
}

// handleConnection runs one client session's greeting, read loop and
// command dispatch (spec.md §4.4). A dedicated reader goroutine keeps
// consuming lines so a `noidle` sent while the session is parked inside
// `idle` is processed immediately instead of queuing behind it.
func handleConnection(ctx context.Context, conn net.Conn, disp *client.Dispatcher) {
	s := client.NewSession(disp.NextSessionID(), conn, disp.DefaultPerm, 0)
	disp.Broker.Register(s)
	defer disp.Broker.Deregister(s)
	defer s.Close()

	if _, err := conn.Write([]byte("OK MPD " + client.ProtocolVersion + "\n")); err != nil {
		return
	}

	lines := make(chan string, 16)
	readErr := make(chan error, 1)
	go func() {
		for {
			line, err := s.ReadLine()
			if err != nil {
				readErr <- err
				return
			}
			if s.Idling() && line == "noidle" {
				s.RequestNoIdle()
				continue
			}
			lines <- line
		}
	}()

	for {
		if s.TimedOut(idleClientTimeout) {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-readErr:
			return
		case line := <-lines:
			closeNow := disp.Dispatch(s, line)
			if err := s.Flush(); err != nil || s.Expired() {
				return
			}
			if closeNow {
				return
			}
		case <-time.After(time.Second):
		}
	}
}

func runEventLoop(ctx context.Context, wg *sync.WaitGroup, events chan player.Event, pl *playlist.Controller, disp *client.Dispatcher) {
	defer wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			if ev.Kind == player.EventError {
				disp.SetLastError(fmt.Sprintf("problem playing current song (error kind %d)", ev.Err))
			}
			pl.HandleEvent(ev)
			disp.Broker.Raise(client.SubPlayer)
		}
	}
}

func drainUpdateResults(ctx context.Context, db *database.Database, disp *client.Dispatcher) {
	for {
		select {
		case <-ctx.Done():
			return
		case res := <-db.Results():
			if res.Err != nil {
				log.Warnf("update job %d failed: %v", res.JobID, res.Err)
			}
			disp.Broker.Raise(client.SubDatabase)
		}
	}
}

func restoreQueue(q *queue.Queue, db *database.Database, st statefile.State) {
	for _, e := range st.Playlist {
		if e.URI == "" {
			continue
		}
		s, err := db.GetSong(e.URI)
		if err != nil {
			continue
		}
		if _, err := q.Append(s, e.Priority); err != nil {
			log.Warnf("cannot restore queued song '%s': %v", e.URI, err)
		}
	}
}

func applySavedPlaybackModes(pl *playlist.Controller, st statefile.State) {
	pl.SetRandom(st.Random)
	pl.SetRepeat(st.Repeat)
	pl.SetSingle(st.Single)
	pl.SetConsume(st.Consume)
}

func saveState(cfg config.Cfg, q *queue.Queue, pl *playlist.Controller, pc *player.PlayerControl) error {
	f, err := os.Create(cfg.StateFile)
	if err != nil {
		return err
	}
	defer f.Close()

	state := statefile.State{
		PlayState: statefile.StateStop,
		Current:   pl.CurrentOrder(),
		Random:    q.Random,
		Repeat:    q.Repeat,
		Single:    q.Single,
		Consume:   q.Consume,
		SWVolume:  pc.SoftwareVolume() / 10,
	}
	switch pc.State() {
	case player.PlayerPlay:
		state.PlayState = statefile.StatePlay
	case player.PlayerPause:
		state.PlayState = statefile.StatePause
	}
	for pos, it := range q.Items() {
		state.Playlist = append(state.Playlist, statefile.SongEntry{Position: pos, URI: it.Song.URI, Priority: it.Priority})
	}
	bw := bufio.NewWriter(f)
	if err := statefile.Save(bw, state); err != nil {
		return err
	}
	return bw.Flush()
}

func saveDatabase(cfg config.Cfg, db *database.Database) error {
	f, err := os.Create(cfg.DBFile)
	if err != nil {
		return err
	}
	defer f.Close()
	return db.Save(f)
}
