package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/GiGurra/boa/pkg/boa"
	"github.com/spf13/cobra"

	"soundscape/server/audio"
	"soundscape/server/fest"
)

type Params struct {
	Envelope  string `pos:"true" help:"File holding one fest envelope as JSON."`
	Resources string `short:"r" optional:"true" default:"." help:"Resource root the descriptor paths are relative to."`
	Output    string `short:"o" optional:"true" default:"sound/fest/output.wav" help:"Output clip, relative to the resource root."`
	ShortRead string `optional:"true" default:"truncate" alts:"truncate,pad" help:"How to treat a scale clip shorter than a slice."`
	TimeoutMs int    `optional:"true" default:"30000" help:"Give up after this many milliseconds."`
}

func main() {
	boa.CmdT[Params]{
		Use:   "soundscape-render",
		Short: "Render a fest envelope into one mixed clip",
		ParamEnrich: boa.ParamEnricherCombine(
			boa.ParamEnricherBool,
			boa.ParamEnricherName,
			boa.ParamEnricherShort,
		),
		RunFunc: func(params *Params, cmd *cobra.Command, args []string) {
			if err := run(cmd.Context(), params); err != nil {
				fmt.Fprintf(os.Stderr, "render: %v\n", err)
				os.Exit(1)
			}
		},
	}.Run()
}

func run(ctx context.Context, params *Params) error {
	if ctx == nil {
		ctx = context.Background()
	}
	raw, err := os.ReadFile(params.Envelope)
	if err != nil {
		return err
	}
	descs, dropped, err := fest.ParseEnvelope(raw)
	if err != nil {
		return err
	}
	for _, e := range dropped {
		fmt.Fprintf(os.Stderr, "warning: %v\n", e)
	}

	mode, err := audio.ParseShortRead(params.ShortRead)
	if err != nil {
		return err
	}
	renderer, err := audio.NewRenderer(audio.Config{
		ResourceRoot:  params.Resources,
		OutputPath:    params.Output,
		InstrumentDir: "sound/fest/instruments",
		ShortRead:     mode,
		Timeout:       time.Duration(params.TimeoutMs) * time.Millisecond,
	}, log.New(os.Stderr, "[render] ", log.LstdFlags))
	if err != nil {
		return err
	}
	defer renderer.Close()

	res := renderer.Render(ctx, descs)
	for _, path := range res.Skipped {
		fmt.Fprintf(os.Stderr, "warning: skipped %s\n", path)
	}
	if res.Err != nil {
		return res.Err
	}
	fmt.Printf("%s: %d sources, peak %.3f, limited %v, %s\n",
		renderer.OutputFile(), res.Sources, res.Peak, res.Limited, res.Elapsed.Round(time.Millisecond))
	return nil
}
