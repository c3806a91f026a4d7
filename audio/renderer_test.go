package audio

import (
	"context"
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"soundscape/server/fest"
)

func newTestRenderer(t *testing.T) (*Renderer, string) {
	t.Helper()
	root := t.TempDir()
	r, err := NewRenderer(Config{
		ResourceRoot:  root,
		OutputPath:    "sound/fest/output.wav",
		InstrumentDir: "sound/fest/instruments",
	}, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(r.Close)
	return r, root
}

func writeClip(t *testing.T, root, rel string, c Clip) {
	t.Helper()
	if err := WriteClipFile(filepath.Join(root, filepath.FromSlash(rel)), c); err != nil {
		t.Fatal(err)
	}
}

func TestRenderMixesAndSkipsMissing(t *testing.T) {
	r, root := newTestRenderer(t)
	writeClip(t, root, "sound/fest/bass.wav", constant(2000, ClipSamples))
	writeClip(t, root, "sound/fest/i1.wav", scale(8))

	res := r.Render(context.Background(), []fest.Descriptor{
		fest.Loop(fest.AmbientTileID, "sound/fest/bass.wav"),
		fest.Instrument(1, "sound/fest/i1.wav", []int{3, 5}),
		fest.Instrument(2, "sound/fest/i1.wav", nil),
		fest.Loop(7, "sound/fest/gone.wav"),
	})
	if res.Err != nil {
		t.Fatal(res.Err)
	}
	if res.Sources != 2 {
		t.Fatalf("sources = %d, want 2", res.Sources)
	}
	if len(res.Skipped) != 1 || res.Skipped[0] != "sound/fest/gone.wav" {
		t.Fatalf("skipped = %v", res.Skipped)
	}
	if r.Status() != StatusComplete {
		t.Fatalf("status = %v", r.Status())
	}

	out, err := ReadClipFile(r.OutputFile())
	if err != nil {
		t.Fatal(err)
	}
	if out[0] != 1150 || out[ClipSamples-1] != 1250 {
		t.Fatalf("mix = %d..%d, want 1150..1250", out[0], out[ClipSamples-1])
	}
	if _, err := os.Stat(filepath.Join(root, filepath.FromSlash(r.InstrumentPath(1)))); err != nil {
		t.Fatalf("instrument clip not written: %v", err)
	}
}

func TestSupersededRenderKeepsInstrumentClip(t *testing.T) {
	r, root := newTestRenderer(t)
	writeClip(t, root, "sound/fest/i1.wav", scale(8))
	inst := fest.Instrument(1, "sound/fest/i1.wav", []int{3})

	staleGen, staleCtx, _ := r.begin(context.Background())
	gen, ctx, done := r.begin(context.Background())
	defer done()

	if _, ok, err := r.resolve(ctx, gen, fest.Instrument(1, "sound/fest/i1.wav", []int{5})); err != nil || !ok {
		t.Fatalf("current resolve: ok=%v err=%v", ok, err)
	}
	path := filepath.Join(root, filepath.FromSlash(r.InstrumentPath(1)))
	want, err := ReadClipFile(path)
	if err != nil {
		t.Fatal(err)
	}

	if _, ok, err := r.resolve(staleCtx, staleGen, inst); err != nil || !ok {
		t.Fatalf("stale resolve: ok=%v err=%v", ok, err)
	}
	got, err := ReadClipFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if got[0] != want[0] || got[0] != 500 {
		t.Fatalf("instrument clip starts at %d, want the current render's 500", got[0])
	}
}

func TestStaleRenderNeverPromoted(t *testing.T) {
	r, root := newTestRenderer(t)
	writeClip(t, root, "sound/fest/bass.wav", constant(100, ClipSamples))
	descs := []fest.Descriptor{fest.Loop(fest.AmbientTileID, "sound/fest/bass.wav")}

	stale, _, _ := r.begin(context.Background())
	r.begin(context.Background())

	res := r.render(context.Background(), stale, descs)
	if !errors.Is(res.Err, ErrRenderSuperseded) {
		t.Fatalf("err = %v, want ErrRenderSuperseded", res.Err)
	}
	if _, err := os.Stat(r.OutputFile()); !os.IsNotExist(err) {
		t.Fatalf("stale render touched output: %v", err)
	}
	entries, err := os.ReadDir(filepath.Dir(r.OutputFile()))
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Fatalf("leftover temp file %s", e.Name())
		}
	}
}

func TestSupersededRenderCancelled(t *testing.T) {
	r, root := newTestRenderer(t)
	writeClip(t, root, "sound/fest/bass.wav", constant(100, ClipSamples))
	descs := []fest.Descriptor{fest.Loop(fest.AmbientTileID, "sound/fest/bass.wav")}

	stale, ctx, done := r.begin(context.Background())
	defer done()
	r.begin(context.Background())

	if ctx.Err() == nil {
		t.Fatal("starting a newer render should cancel the older one")
	}
	res := r.render(ctx, stale, descs)
	if !errors.Is(res.Err, ErrRenderSuperseded) {
		t.Fatalf("err = %v, want ErrRenderSuperseded", res.Err)
	}
}

func TestSubmitDeliversResult(t *testing.T) {
	r, root := newTestRenderer(t)
	writeClip(t, root, "sound/fest/bass.wav", constant(100, ClipSamples))

	gen := r.Submit(context.Background(), []fest.Descriptor{fest.Loop(fest.AmbientTileID, "sound/fest/bass.wav")})
	select {
	case res := <-r.Results():
		if res.Generation != gen || res.Err != nil {
			t.Fatalf("result = %+v", res)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no render result")
	}
	if r.Status() != StatusComplete {
		t.Fatalf("status = %v", r.Status())
	}
}

func TestSampleCacheSeesRewrites(t *testing.T) {
	r, root := newTestRenderer(t)
	writeClip(t, root, "sound/fest/bass.wav", constant(100, ClipSamples))
	if _, err := r.load("sound/fest/bass.wav"); err != nil {
		t.Fatal(err)
	}
	writeClip(t, root, "sound/fest/bass.wav", constant(300, ClipSamples/2))
	c, err := r.load("sound/fest/bass.wav")
	if err != nil {
		t.Fatal(err)
	}
	if len(c) != ClipSamples/2 || c[0] != 300 {
		t.Fatalf("cache returned stale clip: len %d first %d", len(c), c[0])
	}
}
