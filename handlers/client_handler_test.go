package handlers

import (
	"context"
	"fmt"
	"io"
	"log"
	"slices"
	"sync/atomic"
	"testing"

	"soundscape/server/messages"
	"soundscape/server/models"
	"soundscape/server/services"
)

type quietRecipient struct{ seq atomic.Uint64 }

func (q *quietRecipient) NextSeq() uint64                 { return q.seq.Add(1) }
func (q *quietRecipient) Send(messages.BaseMessage) error { return nil }

func TestAbandonedJoinLeavesNoPlayerBehind(t *testing.T) {
	room, err := services.NewRoom(services.RoomConfig{
		Layout:     models.RoomLayout{Name: "FunFestHouse", Width: 36, Height: 40, Entry: models.Coord{X: 17, Y: 39}},
		Origin:     models.Coord{X: 10, Y: 10},
		TileSize:   4,
		Catalog:    services.DefaultCatalog(),
		TickRateHz: 50,
		OutputPath: "sound/fest/output.wav",
	}, nil, nil, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatal(err)
	}
	runCtx, stop := context.WithCancel(context.Background())
	defer stop()
	go func() { _ = room.Run(runCtx) }()

	// With ctx already done the room may or may not have taken the join;
	// either way the outcome must match the room's player list.
	for i := range 50 {
		p := &models.Player{ID: fmt.Sprintf("p%d", i), Username: fmt.Sprintf("user%d", i), X: 17, Y: 39}
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		joinErr := joinRoom(ctx, room, p, &quietRecipient{})

		st, err := room.Status(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		present := slices.Contains(st.Players, p.Username)
		if joinErr != nil && present {
			t.Fatalf("join %d failed (%v) but %s is still in the room", i, joinErr, p.Username)
		}
		if joinErr == nil && !present {
			t.Fatalf("join %d succeeded but %s is missing", i, p.Username)
		}
	}
}
