package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/GiGurra/boa/pkg/boa"
	"github.com/spf13/cobra"

	"soundscape/server/audio"
	"soundscape/server/catalog"
	"soundscape/server/config"
	"soundscape/server/handlers"
	"soundscape/server/journal"
	"soundscape/server/persistence"
	"soundscape/server/services"
)

type ServeParams struct {
	Config string `short:"c" optional:"true" help:"Path to the YAML config file."`
	Addr   string `optional:"true" help:"Listen address, overrides the config file."`
}

type JournalParams struct {
	Kind  string   `short:"k" optional:"true" help:"Only print events of this kind."`
	Files []string `pos:"true" help:"Journal files (*.jsonl.zst) to print."`
}

func paramEnricher() boa.ParamEnricher {
	return boa.ParamEnricherCombine(
		boa.ParamEnricherBool,
		boa.ParamEnricherName,
		boa.ParamEnricherShort,
	)
}

func main() {
	boa.CmdT[ServeParams]{
		Use:         "soundscape-server",
		Short:       "Serve a shared soundscape room over websockets",
		ParamEnrich: paramEnricher(),
		SubCmds:     []*cobra.Command{journalCmd()},
		RunFunc: func(params *ServeParams, cmd *cobra.Command, args []string) {
			if err := serve(cmd.Context(), params); err != nil {
				log.Fatalf("server: %v", err)
			}
		},
	}.Run()
}

func newLogger(prefix string) *log.Logger {
	return log.New(os.Stdout, "["+prefix+"] ", log.LstdFlags|log.Lmicroseconds)
}

func serve(ctx context.Context, params *ServeParams) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := newLogger("server")

	cfg, err := config.Load(params.Config)
	if err != nil {
		return err
	}
	if params.Addr != "" {
		cfg.Addr = params.Addr
	}

	db, err := persistence.Open(cfg.Store.Kind, cfg.Store.DSN, cfg.Store.File)
	if err != nil {
		return fmt.Errorf("initialize persistence: %w", err)
	}
	defer db.Close()
	logger.Printf("Using %s persistence", cfg.Store.Kind)

	renderer, err := audio.NewRenderer(cfg.RendererConfig(), newLogger("render"))
	if err != nil {
		return err
	}
	defer renderer.Close()

	room, err := services.NewRoom(cfg.RoomConfig(), renderer, db, newLogger("room"))
	if err != nil {
		return err
	}
	if cfg.JournalDir != "" {
		j := journal.Open(cfg.JournalDir, room.Name(), logger)
		defer j.Close()
		room.AddObserver(j)
		room.AddRenderListener(j)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := room.Run(ctx); err != nil {
			logger.Printf("room %s stopped: %v", room.Name(), err)
		}
	}()

	if cfg.WatchResources {
		watcher, err := catalog.NewWatcher(cfg.ResourceRoot, room, newLogger("catalog"))
		if err != nil {
			logger.Printf("resource watching disabled: %v", err)
		} else {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = watcher.Run(ctx)
			}()
		}
	}

	clients := handlers.NewClientManager(logger)
	deps := handlers.Deps{
		Players: services.NewPlayerService(db, room.Name(), cfg.Room.Entry),
		Room:    room,
		Clients: clients,
		Store:   db,
		Log:     logger,
	}
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handlers.Routes(ctx, deps, cfg.ResourceRoot),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		clients.CloseAll("server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Printf("shutdown: %v", err)
		}
	}()

	logger.Printf("Server starting on %s", cfg.Addr)
	err = srv.ListenAndServe()
	stop()
	wg.Wait()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	logger.Printf("Server stopped")
	return nil
}

func journalCmd() *cobra.Command {
	return boa.CmdT[JournalParams]{
		Use:         "journal",
		Short:       "Print journal files as JSON lines",
		ParamEnrich: paramEnricher(),
		RunFunc: func(params *JournalParams, cmd *cobra.Command, args []string) {
			enc := json.NewEncoder(os.Stdout)
			for _, path := range params.Files {
				err := journal.ReadFile(path, func(ev journal.Event) error {
					if params.Kind != "" && ev.Kind != params.Kind {
						return nil
					}
					return enc.Encode(ev)
				})
				if err != nil {
					fmt.Fprintf(os.Stderr, "journal: %v\n", err)
					os.Exit(1)
				}
			}
		},
	}.ToCobra()
}
