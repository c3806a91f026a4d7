package audio

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"soundscape/server/fest"
)

var (
	// ErrRenderSuperseded is returned by a render that was cancelled because a
	// newer one started. Such a render never touches the output clip.
	ErrRenderSuperseded = errors.New("render superseded")
	// ErrRenderTimeout is returned when a render exceeds Config.Timeout.
	ErrRenderTimeout = errors.New("render timed out")
)

// Status is the state of the most recently started render.
type Status int32

const (
	StatusIdle Status = iota
	StatusInProgress
	StatusComplete
)

func (s Status) String() string {
	switch s {
	case StatusInProgress:
		return "in_progress"
	case StatusComplete:
		return "complete"
	default:
		return "idle"
	}
}

type Config struct {
	// ResourceRoot resolves every descriptor path and the output locations.
	ResourceRoot string
	// OutputPath is the shared mixed clip, relative to ResourceRoot.
	OutputPath string
	// InstrumentDir receives "<tile id>.wav" per rendered instrument, relative to ResourceRoot.
	InstrumentDir string
	ShortRead     ShortRead
	Rhythm        Rhythm
	CacheSize     int
	Timeout       time.Duration
}

// Result describes one finished render attempt.
type Result struct {
	Generation uint64
	OutputPath string
	Sources    int
	Skipped    []string
	Peak       float64
	Limited    bool
	Elapsed    time.Duration
	Err        error
}

type cachedClip struct {
	clip    Clip
	modTime time.Time
	size    int64
}

// Renderer owns the shared output clip. At most one render is current: starting
// a new one cancels the previous, and only the current one may promote its
// temporary file over the output clip.
type Renderer struct {
	cfg     Config
	log     *log.Logger
	samples *lru.Cache[string, cachedClip]

	mu     sync.Mutex
	latest uint64
	cancel context.CancelFunc

	status  atomic.Int32
	results chan Result
	closed  chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
}

func NewRenderer(cfg Config, logger *log.Logger) (*Renderer, error) {
	if cfg.OutputPath == "" {
		return nil, fmt.Errorf("renderer: empty output path")
	}
	if cfg.Rhythm == nil {
		cfg.Rhythm = TimedSequence
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 32
	}
	if logger == nil {
		logger = log.Default()
	}
	cache, err := lru.New[string, cachedClip](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("renderer: sample cache: %w", err)
	}
	return &Renderer{
		cfg:     cfg,
		log:     logger,
		samples: cache,
		results: make(chan Result, 8),
		closed:  make(chan struct{}),
	}, nil
}

// Results delivers the outcome of every Submit.
func (r *Renderer) Results() <-chan Result { return r.results }

func (r *Renderer) Status() Status { return Status(r.status.Load()) }

// OutputFile is the absolute location of the shared output clip.
func (r *Renderer) OutputFile() string { return r.resolvePath(r.cfg.OutputPath) }

// InstrumentPath is the clip location (relative to the resource root) for a tile's rendered instrument.
func (r *Renderer) InstrumentPath(tileID int) string {
	return filepath.ToSlash(filepath.Join(r.cfg.InstrumentDir, strconv.Itoa(tileID)+".wav"))
}

// Submit starts rendering descs in the background, superseding any render still
// in flight, and returns the new generation. descs must not be mutated afterwards.
func (r *Renderer) Submit(ctx context.Context, descs []fest.Descriptor) uint64 {
	gen, jobCtx, done := r.begin(ctx)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer done()
		res := r.render(jobCtx, gen, descs)
		select {
		case r.results <- res:
		case <-r.closed:
		}
	}()
	return gen
}

// Render runs one render synchronously. It still supersedes (and can be
// superseded by) Submit calls.
func (r *Renderer) Render(ctx context.Context, descs []fest.Descriptor) Result {
	gen, jobCtx, done := r.begin(ctx)
	defer done()
	return r.render(jobCtx, gen, descs)
}

// Close cancels the in-flight render and waits for background renders to exit.
func (r *Renderer) Close() {
	r.once.Do(func() {
		r.mu.Lock()
		if r.cancel != nil {
			r.cancel()
		}
		r.mu.Unlock()
		close(r.closed)
	})
	r.wg.Wait()
}

func (r *Renderer) begin(parent context.Context) (uint64, context.Context, context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cancel != nil {
		r.cancel()
	}
	r.latest++
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if r.cfg.Timeout > 0 {
		ctx, cancel = context.WithTimeout(parent, r.cfg.Timeout)
	} else {
		ctx, cancel = context.WithCancel(parent)
	}
	r.cancel = cancel
	r.status.Store(int32(StatusInProgress))
	return r.latest, ctx, cancel
}

func (r *Renderer) current(gen uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return gen == r.latest
}

func (r *Renderer) interrupted(ctx context.Context, gen uint64) error {
	if ctx.Err() == nil {
		return nil
	}
	if !r.current(gen) {
		return fmt.Errorf("%w: generation %d", ErrRenderSuperseded, gen)
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: generation %d", ErrRenderTimeout, gen)
	}
	return ctx.Err()
}

func (r *Renderer) render(ctx context.Context, gen uint64, descs []fest.Descriptor) (res Result) {
	start := time.Now()
	res = Result{Generation: gen, OutputPath: r.cfg.OutputPath}
	defer func() {
		res.Elapsed = time.Since(start)
		if res.Err != nil && !errors.Is(res.Err, ErrRenderSuperseded) {
			r.status.CompareAndSwap(int32(StatusInProgress), int32(StatusIdle))
		}
	}()

	clips := make([]Clip, 0, len(descs))
	for _, d := range descs {
		if err := r.interrupted(ctx, gen); err != nil {
			res.Err = err
			return res
		}
		clip, ok, err := r.resolve(ctx, gen, d)
		if err != nil {
			r.log.Printf("render %d: skip %s: %v", gen, d.Encode(), err)
			res.Skipped = append(res.Skipped, d.Path)
			continue
		}
		if ok {
			clips = append(clips, clip)
		}
	}

	mixed, stats, err := Mix(ctx, clips)
	if err != nil {
		if ierr := r.interrupted(ctx, gen); ierr != nil {
			err = ierr
		}
		res.Err = err
		return res
	}
	res.Sources, res.Peak, res.Limited = stats.Sources, stats.Peak, stats.Limited()

	out := r.OutputFile()
	tmp, err := writeTempClip(out, mixed)
	if err != nil {
		res.Err = fmt.Errorf("write output clip: %w", err)
		return res
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if gen != r.latest {
		_ = os.Remove(tmp)
		res.Err = fmt.Errorf("%w: generation %d", ErrRenderSuperseded, gen)
		return res
	}
	if err := os.Rename(tmp, out); err != nil {
		_ = os.Remove(tmp)
		res.Err = fmt.Errorf("promote output clip: %w", err)
		return res
	}
	r.status.Store(int32(StatusComplete))
	return res
}

// resolve turns a descriptor into the clip to mix. ok is false for sources that
// contribute nothing, such as an instrument with an empty sequence. An
// interrupted render does not write per-tile clips.
func (r *Renderer) resolve(ctx context.Context, gen uint64, d fest.Descriptor) (Clip, bool, error) {
	switch d.Kind {
	case fest.KindInstrument:
		if len(d.Sequence) == 0 {
			return nil, false, nil
		}
		scale, err := r.load(d.Path)
		if err != nil {
			return nil, false, err
		}
		clip := RenderInstrument(scale, d.Sequence, r.cfg.Rhythm, r.cfg.ShortRead)
		if r.interrupted(ctx, gen) != nil {
			return clip, true, nil
		}
		if err := WriteClipFile(r.resolvePath(r.InstrumentPath(d.TileID)), clip); err != nil {
			// The in-memory clip is still mixed; only the per-tile copy is lost.
			r.log.Printf("instrument %d: %v", d.TileID, err)
		}
		return clip, true, nil
	default:
		clip, err := r.load(d.Path)
		if err != nil {
			return nil, false, err
		}
		return clip, true, nil
	}
}

func (r *Renderer) load(rel string) (Clip, error) {
	path := r.resolvePath(rel)
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMissingSource, rel, err)
	}
	if c, ok := r.samples.Get(path); ok && c.modTime.Equal(info.ModTime()) && c.size == info.Size() {
		return c.clip, nil
	}
	clip, err := ReadClipFile(path)
	if err != nil {
		return nil, err
	}
	r.samples.Add(path, cachedClip{clip: clip, modTime: info.ModTime(), size: info.Size()})
	return clip, nil
}

func (r *Renderer) resolvePath(rel string) string {
	if filepath.IsAbs(rel) {
		return rel
	}
	return filepath.Join(r.cfg.ResourceRoot, filepath.FromSlash(rel))
}
