// Package playback fetches the clips a soundscape server announces and plays
// them on the local audio device.
package playback

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	lru "github.com/hashicorp/golang-lru/v2"

	"soundscape/server/audio"
)

// Fetcher loads a clip by its resource path.
type Fetcher interface {
	Fetch(ctx context.Context, path string) (audio.Clip, error)
}

// Sink plays one clip at a time; Play replaces whatever is playing.
type Sink interface {
	Play(clip audio.Clip, volume float64, loop bool) error
	Stop()
}

// Request is one sound announcement.
type Request struct {
	Path   string
	Volume float64
	Loop   bool
}

type RetryPolicy struct {
	Attempts   int
	MinBackoff time.Duration
	MaxBackoff time.Duration
}

var DefaultRetry = RetryPolicy{Attempts: 5, MinBackoff: 100 * time.Millisecond, MaxBackoff: 2 * time.Second}

// DefaultCacheSize bounds the number of decoded clips a worker keeps.
const DefaultCacheSize = 64

// Worker serializes fetches and playback on its own goroutine. Requests at
// volume 0 only warm the cache.
type Worker struct {
	fetch Fetcher
	sink  Sink
	retry RetryPolicy
	log   *log.Logger

	jobs  chan Request
	cache *lru.Cache[string, audio.Clip]

	mu     sync.Mutex
	played int
}

func NewWorker(fetch Fetcher, sink Sink, retry RetryPolicy, cacheSize int, logger *log.Logger) (*Worker, error) {
	if logger == nil {
		logger = log.Default()
	}
	if retry.Attempts <= 0 {
		retry.Attempts = 1
	}
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[string, audio.Clip](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("playback cache: %w", err)
	}
	return &Worker{
		fetch: fetch,
		sink:  sink,
		retry: retry,
		log:   logger,
		jobs:  make(chan Request, 64),
		cache: cache,
	}, nil
}

// Enqueue never blocks; it reports false when the queue is full.
func (w *Worker) Enqueue(req Request) bool {
	select {
	case w.jobs <- req:
		return true
	default:
		return false
	}
}

// Run handles requests until ctx is done, then stops the sink.
func (w *Worker) Run(ctx context.Context) {
	defer w.sink.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-w.jobs:
			if err := w.handle(ctx, req); err != nil && ctx.Err() == nil {
				w.log.Printf("playback %s: %v", req.Path, err)
			}
		}
	}
}

func (w *Worker) handle(ctx context.Context, req Request) error {
	if req.Volume <= 0 {
		if _, ok := w.cached(req.Path); ok {
			return nil
		}
		_, err := w.fetchWithRetry(ctx, req.Path)
		return err
	}
	// Audible clips are fetched again: the shared output is rewritten on every render.
	clip, err := w.fetchWithRetry(ctx, req.Path)
	if err != nil {
		stale, ok := w.cached(req.Path)
		if !ok {
			return err
		}
		w.log.Printf("playback %s: using cached copy: %v", req.Path, err)
		clip = stale
	}
	if err := w.sink.Play(clip, req.Volume, req.Loop); err != nil {
		return fmt.Errorf("play: %w", err)
	}
	w.mu.Lock()
	w.played++
	w.mu.Unlock()
	return nil
}

func (w *Worker) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = w.retry.MinBackoff
	b.MaxInterval = w.retry.MaxBackoff
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(w.retry.Attempts-1)), ctx)
}

// fetchWithRetry retries transient failures; a clip in the wrong format is
// not retried.
func (w *Worker) fetchWithRetry(ctx context.Context, path string) (audio.Clip, error) {
	clip, err := backoff.RetryWithData(func() (audio.Clip, error) {
		clip, err := w.fetch.Fetch(ctx, path)
		if errors.Is(err, audio.ErrUnsupportedFormat) {
			return nil, backoff.Permanent(err)
		}
		return clip, err
	}, w.backOff(ctx))
	if err != nil {
		return nil, err
	}
	w.cache.Add(path, clip)
	return clip, nil
}

func (w *Worker) cached(path string) (audio.Clip, bool) {
	return w.cache.Get(path)
}

// Played counts clips handed to the sink.
func (w *Worker) Played() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.played
}
