package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/GiGurra/boa/pkg/boa"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"soundscape/server/messages"
	"soundscape/server/playback"
)

type Params struct {
	Username  string `short:"u" required:"true" help:"Name to log in with."`
	URL       string `optional:"true" default:"ws://localhost:8080/ws" help:"Websocket endpoint of the server."`
	Resources string `short:"r" optional:"true" help:"Read clips from this local resource root instead of downloading them."`
}

func main() {
	boa.CmdT[Params]{
		Use:   "soundscape-listen",
		Short: "Join a soundscape room and play what it sends",
		ParamEnrich: boa.ParamEnricherCombine(
			boa.ParamEnricherBool,
			boa.ParamEnricherName,
			boa.ParamEnricherShort,
		),
		RunFunc: func(params *Params, cmd *cobra.Command, args []string) {
			if err := run(params); err != nil {
				fmt.Fprintf(os.Stderr, "listen: %v\n", err)
				os.Exit(1)
			}
		},
	}.Run()
}

func run(params *Params) error {
	logger := log.New(os.Stdout, "[listen] ", log.LstdFlags)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var fetcher playback.Fetcher
	if params.Resources != "" {
		fetcher = playback.FileFetcher{Root: params.Resources}
	} else {
		base, err := httpBase(params.URL)
		if err != nil {
			return err
		}
		fetcher = playback.HTTPFetcher{BaseURL: base}
	}
	if !playback.AudioAvailable {
		logger.Printf("built without audio support, clips are only logged")
	}
	worker, err := playback.NewWorker(fetcher, playback.NewSpeakerSink(), playback.DefaultRetry, playback.DefaultCacheSize, logger)
	if err != nil {
		return err
	}
	go worker.Run(ctx)

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, params.URL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", params.URL, err)
	}
	defer ws.Close()

	// gorilla/websocket allows one concurrent writer.
	var writeMu sync.Mutex
	write := func(typ messages.MessageType, payload any) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return ws.WriteJSON(messages.BaseMessage{Type: typ, Payload: payload})
	}
	go func() {
		<-ctx.Done()
		writeMu.Lock()
		_ = ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
		writeMu.Unlock()
		_ = ws.Close()
	}()

	if err := write(messages.MessageTypeLogin, messages.LoginMessage{Username: params.Username}); err != nil {
		return err
	}
	go readInput(logger, write)

	for {
		var msg struct {
			Type    messages.MessageType `json:"type"`
			Payload json.RawMessage      `json:"payload"`
		}
		if err := ws.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		handle(logger, worker, msg.Type, msg.Payload)
	}
}

func handle(logger *log.Logger, worker *playback.Worker, typ messages.MessageType, payload json.RawMessage) {
	switch typ {
	case messages.MessageTypeSound:
		var s messages.SoundMessage
		if err := json.Unmarshal(payload, &s); err != nil {
			logger.Printf("bad sound message: %v", err)
			return
		}
		if !worker.Enqueue(playback.Request{Path: s.Path, Volume: s.Volume, Loop: s.Loop}) {
			logger.Printf("playback queue full, dropped %s", s.Path)
		}
	case messages.MessageTypeLoginSuccess:
		var ok messages.LoginSuccessMessage
		if err := json.Unmarshal(payload, &ok); err == nil {
			logger.Printf("joined %s as %s at (%d,%d)", ok.Room, ok.PlayerID, ok.X, ok.Y)
		}
	case messages.MessageTypeServer:
		var s messages.ServerMessage
		if err := json.Unmarshal(payload, &s); err == nil {
			logger.Print(s.Text)
		}
	case messages.MessageTypeTile:
		var t messages.TileMessage
		if err := json.Unmarshal(payload, &t); err == nil && t.Text != "" {
			logger.Print(t.Text)
		}
	case messages.MessageTypeError:
		var e messages.ErrorMessage
		if err := json.Unmarshal(payload, &e); err == nil {
			logger.Printf("error %s: %s", e.Code, e.Message)
		}
	}
}

// readInput turns stdin lines into moves ("north", "s", ...) or chat.
func readInput(logger *log.Logger, write func(messages.MessageType, any) error) {
	directions := map[string]string{
		"n": "north", "s": "south", "e": "east", "w": "west",
		"north": "north", "south": "south", "east": "east", "west": "west",
	}
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var err error
		if dir, ok := directions[strings.ToLower(line)]; ok {
			err = write(messages.MessageTypeMove, messages.MoveMessage{Direction: dir})
		} else {
			err = write(messages.MessageTypeChat, messages.ChatMessage{Message: line})
		}
		if err != nil {
			logger.Printf("send: %v", err)
			return
		}
	}
}

// httpBase maps ws://host/ws to http://host.
func httpBase(wsURL string) (string, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "wss":
		u.Scheme = "https"
	default:
		u.Scheme = "http"
	}
	u.Path, u.RawQuery = "", ""
	return u.String(), nil
}
