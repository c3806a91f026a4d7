package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"

	"soundscape/server/audio"
	"soundscape/server/fest"
	"soundscape/server/messages"
	"soundscape/server/models"
	"soundscape/server/persistence"
)

const (
	preloadVolume = 0.0
	playVolume    = 0.5

	// maxRenderRetries bounds resubmissions of a snapshot whose render failed.
	maxRenderRetries = 3
)

var (
	ErrPlayerNotFound   = errors.New("player not found")
	ErrInvalidDirection = errors.New("invalid direction")
	ErrOutOfBounds      = errors.New("cannot walk outside the room")
	ErrRoomStopped      = errors.New("room stopped")
)

// Recipient is a connected client the room talks to.
type Recipient interface {
	fest.Recipient
	Send(msg messages.BaseMessage) error
}

// MixRenderer turns descriptor snapshots into the shared output clip.
type MixRenderer interface {
	Submit(ctx context.Context, descs []fest.Descriptor) uint64
	Results() <-chan audio.Result
	Status() audio.Status
}

// RenderListener is told about every finished render.
type RenderListener interface {
	OnRender(res audio.Result)
}

type RoomConfig struct {
	Layout     models.RoomLayout
	Origin     models.Coord
	TileSize   int
	Catalog    TileCatalog
	TickRateHz int
	// OutputPath is the mixed clip clients are told to play.
	OutputPath string
}

type JoinRequest struct {
	Player *models.Player
	To     Recipient
	Resp   chan error
}

type MoveRequest struct {
	PlayerID  string
	Direction string
	Resp      chan MoveResult
}

type MoveResult struct {
	Pos models.Coord
	Err error
}

type ChatRequest struct {
	PlayerID string
	Text     string
}

// RoomStatus is a read-only view served over HTTP.
type RoomStatus struct {
	Room       string         `json:"room"`
	Players    []string       `json:"players"`
	Render     string         `json:"render"`
	Generation uint64         `json:"generation"`
	LastRender *RenderSummary `json:"last_render,omitempty"`
	Active     fest.Envelope  `json:"active"`
	Tiles      []TileStatus   `json:"tiles"`
}

type RenderSummary struct {
	Generation uint64   `json:"generation"`
	Sources    int      `json:"sources"`
	Skipped    []string `json:"skipped,omitempty"`
	Peak       float64  `json:"peak"`
	Limited    bool     `json:"limited"`
	Error      string   `json:"error,omitempty"`
}

type TileStatus struct {
	ID       int    `json:"id"`
	Path     string `json:"path"`
	Sequence []int  `json:"sequence,omitempty"`
}

// Room is one soundscape map. Run is the only goroutine that touches the tile
// map, the composite and the player table; everything else talks to it
// through channels.
type Room struct {
	cfg       RoomConfig
	log       *log.Logger
	tiles     *TileMap
	composite *fest.Composite
	renderer  MixRenderer
	db        persistence.Storage
	listeners []RenderListener

	players    map[string]*models.Player
	recipients map[string]Recipient
	order      []string
	loadQueue  []string
	last       *audio.Result
	generation uint64
	retries    int
	retrying   bool

	join     chan JoinRequest
	leave    chan string
	move     chan MoveRequest
	chat     chan ChatRequest
	resource chan string
	status   chan chan RoomStatus
	stop     chan struct{}
	done     chan struct{}
}

// NewRoom builds the tile map, seeds the composite with the backing track and
// restores persisted sequences. db may be nil.
func NewRoom(cfg RoomConfig, renderer MixRenderer, db persistence.Storage, logger *log.Logger) (*Room, error) {
	if logger == nil {
		logger = log.Default()
	}
	if cfg.TickRateHz <= 0 {
		cfg.TickRateHz = 5
	}
	tiles, err := NewTileMap(cfg.Origin, cfg.TileSize, cfg.Catalog, logger)
	if err != nil {
		return nil, fmt.Errorf("room %s: %w", cfg.Layout.Name, err)
	}

	r := &Room{
		cfg:        cfg,
		log:        logger,
		tiles:      tiles,
		composite:  fest.NewComposite(cfg.Catalog.BackingTrack),
		renderer:   renderer,
		db:         db,
		players:    make(map[string]*models.Player),
		recipients: make(map[string]Recipient),
		join:       make(chan JoinRequest),
		leave:      make(chan string),
		move:       make(chan MoveRequest),
		chat:       make(chan ChatRequest, 64),
		resource:   make(chan string, 64),
		status:     make(chan chan RoomStatus),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	// The room keeps the composite in step with the tiles, so it observes first.
	tiles.AddObserver(r)

	if db != nil {
		seqs, err := db.LoadSequences(cfg.Layout.Name)
		if err != nil {
			return nil, fmt.Errorf("room %s: load sequences: %w", cfg.Layout.Name, err)
		}
		for id, seq := range seqs {
			if !tiles.RestoreSequence(id, seq) {
				logger.Printf("room %s: ignoring stored sequence for tile %d", cfg.Layout.Name, id)
			}
		}
	}
	return r, nil
}

func (r *Room) Name() string { return r.cfg.Layout.Name }

// AddObserver registers an extra tile observer, such as the journal. Call before Run.
func (r *Room) AddObserver(o TileObserver) { r.tiles.AddObserver(o) }

// AddRenderListener registers l for render outcomes. Call before Run.
func (r *Room) AddRenderListener(l RenderListener) { r.listeners = append(r.listeners, l) }

// Run processes requests and ticks until ctx is done or Stop is called.
func (r *Room) Run(ctx context.Context) error {
	defer close(r.done)
	ticker := time.NewTicker(time.Second / time.Duration(r.cfg.TickRateHz))
	defer ticker.Stop()

	var results <-chan audio.Result
	if r.renderer != nil {
		results = r.renderer.Results()
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.stop:
			return nil
		case req := <-r.join:
			req.Resp <- r.handleJoin(req.Player, req.To)
		case id := <-r.leave:
			r.handleLeave(id)
		case req := <-r.move:
			pos, err := r.handleMove(req.PlayerID, req.Direction)
			req.Resp <- MoveResult{Pos: pos, Err: err}
		case req := <-r.chat:
			r.handleChat(req.PlayerID, req.Text)
		case path := <-r.resource:
			r.handleResourceChanged(path)
		case reply := <-r.status:
			reply <- r.snapshotStatus()
		case res := <-results:
			r.handleRenderResult(res)
		case <-ticker.C:
			r.step(ctx)
		}
	}
}

func (r *Room) Stop() {
	select {
	case <-r.stop:
	default:
		close(r.stop)
	}
}

// Join adds a player and its connection to the room.
func (r *Room) Join(ctx context.Context, p *models.Player, to Recipient) error {
	resp := make(chan error, 1)
	if err := send(ctx, r, r.join, JoinRequest{Player: p, To: to, Resp: resp}); err != nil {
		return err
	}
	joinErr, err := wait(ctx, r, resp)
	if err != nil {
		return err
	}
	return joinErr
}

func (r *Room) Leave(ctx context.Context, playerID string) error {
	return send(ctx, r, r.leave, playerID)
}

func (r *Room) Move(ctx context.Context, playerID, direction string) (models.Coord, error) {
	resp := make(chan MoveResult, 1)
	if err := send(ctx, r, r.move, MoveRequest{PlayerID: playerID, Direction: direction, Resp: resp}); err != nil {
		return models.Coord{}, err
	}
	res, err := wait(ctx, r, resp)
	if err != nil {
		return models.Coord{}, err
	}
	return res.Pos, res.Err
}

func (r *Room) Chat(ctx context.Context, playerID, text string) error {
	return send(ctx, r, r.chat, ChatRequest{PlayerID: playerID, Text: text})
}

// ResourceChanged tells the room a file under the resource root changed.
// It never blocks; a full queue drops the notification.
func (r *Room) ResourceChanged(path string) {
	select {
	case r.resource <- path:
	default:
		r.log.Printf("room %s: resource queue full, dropping %s", r.Name(), path)
	}
}

func (r *Room) Status(ctx context.Context) (RoomStatus, error) {
	reply := make(chan RoomStatus, 1)
	if err := send(ctx, r, r.status, reply); err != nil {
		return RoomStatus{}, err
	}
	return wait(ctx, r, reply)
}

func send[T any](ctx context.Context, r *Room, ch chan<- T, v T) error {
	select {
	case ch <- v:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-r.done:
		return ErrRoomStopped
	}
}

func wait[T any](ctx context.Context, r *Room, ch <-chan T) (T, error) {
	var zero T
	select {
	case v := <-ch:
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-r.done:
		return zero, ErrRoomStopped
	}
}

func (r *Room) handleJoin(p *models.Player, to Recipient) error {
	if p == nil || to == nil {
		return errors.New("join needs a player and a recipient")
	}
	if _, ok := r.players[p.ID]; ok {
		return fmt.Errorf("player %s already in room %s", p.ID, r.Name())
	}
	p.Room = r.Name()
	if !r.cfg.Layout.InBounds(p.CurrentPosition()) {
		p.X, p.Y = r.cfg.Layout.Entry.X, r.cfg.Layout.Entry.Y
	}
	r.players[p.ID] = p
	r.recipients[p.ID] = to
	r.order = append(r.order, p.ID)
	r.loadQueue = append(r.loadQueue, p.ID)
	r.composite.MarkDirty()
	r.tiles.CheckPosition(p)
	r.log.Printf("room %s: %s joined at (%d,%d)", r.Name(), p.Username, p.X, p.Y)
	return nil
}

func (r *Room) handleLeave(id string) {
	p, ok := r.players[id]
	if !ok {
		return
	}
	r.tiles.Leave(p)
	delete(r.players, id)
	delete(r.recipients, id)
	r.order = lo.Without(r.order, id)
	r.loadQueue = lo.Without(r.loadQueue, id)
	r.savePlayer(p)
	r.log.Printf("room %s: %s left", r.Name(), p.Username)
}

func (r *Room) handleMove(id, direction string) (models.Coord, error) {
	p, ok := r.players[id]
	if !ok {
		return models.Coord{}, ErrPlayerNotFound
	}

	newPos := p.CurrentPosition()
	switch direction {
	case "north":
		newPos.Y--
	case "south":
		newPos.Y++
	case "east":
		newPos.X++
	case "west":
		newPos.X--
	case "northeast":
		newPos.X++
		newPos.Y--
	case "northwest":
		newPos.X--
		newPos.Y--
	case "southeast":
		newPos.X++
		newPos.Y++
	case "southwest":
		newPos.X--
		newPos.Y++
	default:
		return p.CurrentPosition(), ErrInvalidDirection
	}
	if !r.cfg.Layout.InBounds(newPos) {
		return p.CurrentPosition(), ErrOutOfBounds
	}

	p.X, p.Y = newPos.X, newPos.Y
	tileID, tile, path := r.tiles.CheckPosition(p)
	if tile != nil {
		text := fmt.Sprintf("Player %s is in Tile %d", p.Username, tileID)
		if tile.Sequenced {
			text += ". Enter a number (1-8) in chat."
		}
		r.sendTo(id, messages.BaseMessage{
			Type: messages.MessageTypeTile,
			Payload: messages.TileMessage{
				TileID:    tileID,
				Path:      path,
				Sequenced: tile.Sequenced,
				Sequence:  tile.Sequence(),
				Text:      text,
			},
		})
	}
	return newPos, nil
}

func (r *Room) handleChat(id, text string) {
	p, ok := r.players[id]
	if !ok {
		return
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	if tile := r.tiles.CurrentTile(id); tile != nil && tile.Sequenced {
		if reply, handled := r.instrumentInput(tile, text); handled {
			r.sendTo(id, messages.Server(reply))
			return
		}
	}

	msg := messages.BaseMessage{
		Type: messages.MessageTypeChat,
		Payload: messages.ChatMessage{
			Sender:    p.Username,
			Message:   text,
			Timestamp: time.Now().Unix(),
		},
	}
	for _, rid := range r.order {
		r.sendTo(rid, msg)
	}
}

// instrumentInput interprets chat typed on a sequenced tile. handled is false
// for ordinary chat.
func (r *Room) instrumentInput(tile *Tile, text string) (reply string, handled bool) {
	switch {
	case text == "/clear":
		if err := r.tiles.ClearSequence(tile); err != nil {
			return err.Error(), true
		}
		return fmt.Sprintf("Cleared tile %d sequence.", tile.ID), true

	case strings.HasPrefix(text, "/add"):
		fields := strings.Fields(strings.TrimPrefix(text, "/add"))
		if len(fields) == 0 {
			return "Usage: /add <digits 1-8>", true
		}
		digits := make([]int, 0, len(fields))
		for _, f := range fields {
			n, err := strconv.Atoi(f)
			if err != nil || n < 1 || n > MaxDigit {
				return "Invalid. Enter 1-8.", true
			}
			digits = append(digits, n)
		}
		if err := r.tiles.StoreDigits(tile, digits...); err != nil {
			return err.Error(), true
		}
		return fmt.Sprintf("Added %v; tile %d sequence: %v", digits, tile.ID, tile.Sequence()), true
	}

	n, err := strconv.Atoi(text)
	if err != nil {
		return "", false
	}
	if n < 1 || n > MaxDigit {
		return "Invalid. Enter 1-8.", true
	}
	if err := r.tiles.StoreDigits(tile, n); err != nil {
		return err.Error(), true
	}
	return fmt.Sprintf("You entered %d; tile %d sequence: %v", n, tile.ID, tile.Sequence()), true
}

func (r *Room) handleResourceChanged(path string) {
	if r.composite.References(path) {
		r.log.Printf("room %s: %s changed, re-rendering", r.Name(), path)
		r.composite.MarkDirty()
	}
}

func (r *Room) handleRenderResult(res audio.Result) {
	for _, l := range r.listeners {
		l.OnRender(res)
	}
	if errors.Is(res.Err, audio.ErrRenderSuperseded) {
		r.log.Printf("room %s: render %d superseded", r.Name(), res.Generation)
		return
	}
	r.last = &res
	if res.Err != nil {
		r.log.Printf("room %s: render %d failed: %v", r.Name(), res.Generation, res.Err)
		if res.Generation == r.generation && r.retries < maxRenderRetries {
			r.retries++
			r.retrying = true
			r.composite.MarkDirty()
			r.log.Printf("room %s: retrying render (%d/%d)", r.Name(), r.retries, maxRenderRetries)
		}
		return
	}
	r.retries = 0
	for _, skipped := range res.Skipped {
		r.log.Printf("room %s: render %d skipped %s", r.Name(), res.Generation, skipped)
	}
	for _, id := range r.order {
		r.sendTo(id, messages.Sound(r.cfg.OutputPath, playVolume))
	}

	if r.db != nil {
		rec := &models.RenderRecord{
			Room:       r.Name(),
			Generation: res.Generation,
			OutputPath: res.OutputPath,
			Sources:    res.Sources,
			Skipped:    res.Skipped,
			Peak:       res.Peak,
			Limited:    res.Limited,
			DurationMS: res.Elapsed.Milliseconds(),
			CreatedAt:  time.Now(),
		}
		if err := r.db.SaveRender(rec); err != nil {
			r.log.Printf("room %s: save render %d: %v", r.Name(), res.Generation, err)
		}
	}
}

// step is one tick: preload newcomers, then render and resend if anything changed.
func (r *Room) step(ctx context.Context) {
	for _, id := range r.loadQueue {
		for _, path := range r.cfg.Catalog.All() {
			r.sendTo(id, messages.Sound(path, preloadVolume))
		}
		r.sendSnapshot(id)
	}
	fresh := r.loadQueue
	r.loadQueue = r.loadQueue[:0]

	if !r.composite.Dirty() {
		return
	}
	if !r.retrying {
		r.retries = 0
	}
	r.retrying = false
	descs := r.composite.Descriptors()
	if r.renderer != nil {
		r.generation = r.renderer.Submit(ctx, descs)
	}
	r.composite.ClearDirty()
	for _, id := range r.order {
		if slices.Contains(fresh, id) {
			continue
		}
		r.sendSnapshot(id)
	}
}

func (r *Room) sendSnapshot(id string) {
	to, ok := r.recipients[id]
	if !ok {
		return
	}
	snap := r.composite.SnapshotFor(to)
	if err := to.Send(messages.Fest(snap.Envelope())); err != nil {
		r.log.Printf("room %s: send snapshot to %s: %v", r.Name(), id, err)
	}
}

func (r *Room) sendTo(id string, msg messages.BaseMessage) {
	to, ok := r.recipients[id]
	if !ok {
		return
	}
	if err := to.Send(msg); err != nil {
		r.log.Printf("room %s: send %s to %s: %v", r.Name(), msg.Type, id, err)
	}
}

func (r *Room) savePlayer(p *models.Player) {
	if r.db == nil {
		return
	}
	p.UpdatedAt = time.Now()
	if err := r.db.SavePlayer(p); err != nil {
		r.log.Printf("room %s: save player %s: %v", r.Name(), p.ID, err)
	}
}

func (r *Room) saveSequence(tile *Tile) {
	if r.db == nil || !tile.Sequenced {
		return
	}
	if err := r.db.SaveSequence(r.Name(), tile.ID, tile.Sequence()); err != nil {
		r.log.Printf("room %s: save %s sequence: %v", r.Name(), tile, err)
	}
}

func (r *Room) snapshotStatus() RoomStatus {
	st := RoomStatus{
		Room:       r.Name(),
		Players:    lo.Map(r.order, func(id string, _ int) string { return r.players[id].Username }),
		Render:     audio.StatusIdle.String(),
		Generation: r.generation,
		Active:     r.composite.SnapshotFor(nil).Envelope(),
		Tiles: lo.Map(r.tiles.Tiles(), func(t *Tile, _ int) TileStatus {
			return TileStatus{ID: t.ID, Path: t.SoundPath, Sequence: t.Sequence()}
		}),
	}
	if r.renderer != nil {
		st.Render = r.renderer.Status().String()
	}
	if r.last != nil {
		st.LastRender = &RenderSummary{
			Generation: r.last.Generation,
			Sources:    r.last.Sources,
			Skipped:    r.last.Skipped,
			Peak:       r.last.Peak,
			Limited:    r.last.Limited,
		}
		if r.last.Err != nil {
			st.LastRender.Error = r.last.Err.Error()
		}
	}
	return st
}

// OnTileActivated adds the tile's source to the composite.
func (r *Room) OnTileActivated(tile *Tile, _ models.Occupant) error {
	if tile.SoundPath == "" {
		return nil
	}
	r.composite.Add(tile.Descriptor())
	return nil
}

// OnTileDeactivated drops the tile's source once nobody stands on it. The
// tile map has already wiped a sequenced tile's digits.
func (r *Room) OnTileDeactivated(tile *Tile, who models.Occupant) error {
	r.saveSequence(tile)
	if r.tiles.OccupiedByOthers(tile, who) {
		if tile.Sequenced {
			r.composite.Add(tile.Descriptor())
		}
		return nil
	}
	r.composite.RemoveByTileID(tile.ID)
	return nil
}

// OnSequenceUpdated refreshes an active instrument and persists its digits.
func (r *Room) OnSequenceUpdated(tile *Tile) error {
	r.saveSequence(tile)
	if _, ok := r.composite.Get(tile.ID); ok {
		r.composite.Add(tile.Descriptor())
	}
	return nil
}
