// Command gbadisasm disassembles a flat ARMv5TE memory image (such as a
// Nintendo DS ROM) into a GNU-assembler listing, following the teacher
// CLI's shape (github.com/urfave/cli/v2, single subcommand, cli.Exit
// for fatal errors) adapted to this disassembler's one real operation.
package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	cli "github.com/urfave/cli/v2"

	"github.com/PikalaxALT/gbadisasm"
	"github.com/PikalaxALT/gbadisasm/internal/armdecode"
)

func parseAddr(s string) (uint32, error) {
	s = strings.TrimPrefix(s, "0x")
	s = strings.TrimPrefix(s, "0X")
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q: %w", s, err)
	}
	return uint32(v), nil
}

func run(c *cli.Context) error {
	args := c.Args()
	if args.Len() < 1 {
		return cli.Exit("image file required", 1)
	}
	file := args.First()

	data, err := os.ReadFile(file)
	if err != nil {
		return cli.Exit(err, 1)
	}

	base, err := parseAddr(c.String("base"))
	if err != nil {
		return cli.Exit(err, 1)
	}
	entry, err := parseAddr(c.String("entry"))
	if err != nil {
		return cli.Exit(err, 1)
	}
	ramFloor, err := parseAddr(c.String("ram-floor"))
	if err != nil {
		return cli.Exit(err, 1)
	}

	var cfg *gbadisasm.Config
	if path := c.String("config"); path != "" {
		f, err := os.Open(path)
		if err != nil {
			return cli.Exit(err, 1)
		}
		cfg, err = gbadisasm.LoadConfig(f)
		f.Close()
		if err != nil {
			return cli.Exit(err, 1)
		}
		if cfg.HasFloor && !c.IsSet("ram-floor") {
			ramFloor = cfg.RAMFloor
		}
		if cfg.HasOrg && !c.IsSet("base") {
			base = cfg.Org
		}
	}

	img := gbadisasm.NewImage(base, data)
	store := gbadisasm.NewLabelStore(img, ramFloor)
	if cfg != nil {
		cfg.Apply(store)
	}

	entryKind := gbadisasm.KindARMCode
	if c.String("mode") == "thumb" {
		entryKind = gbadisasm.KindThumbCode
	}
	store.AddOrUpdate(entry, entryKind, "")

	decoder, err := armdecode.New()
	if err != nil {
		return cli.Exit(err, 1)
	}
	defer decoder.Close()

	ctx := gbadisasm.NewContext(img, store, decoder)
	ctx.Analyze()

	renderer := &gbadisasm.Renderer{
		ShowAddresses:   c.Bool("show-addresses"),
		DataColumnWidth: c.Int("column-width"),
	}
	if err := renderer.Render(ctx, os.Stdout); err != nil {
		return cli.Exit(err, 1)
	}
	return nil
}

func main() {
	app := cli.NewApp()
	app.Name = "gbadisasm"
	app.Usage = "recursive-descent disassembler for ARMv5TE memory images"
	app.Commands = []*cli.Command{
		{
			Name:      "disasm",
			Aliases:   []string{"d"},
			Usage:     "disassemble a flat memory image",
			ArgsUsage: "image",
			Action:    run,
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  "base",
					Value: "0x08000000",
					Usage: "base load address of the image, hex",
				},
				&cli.StringFlag{
					Name:  "entry",
					Value: "0x08000000",
					Usage: "entry point address, hex",
				},
				&cli.StringFlag{
					Name:  "mode",
					Value: "arm",
					Usage: "entry point mode, \"arm\" or \"thumb\"",
				},
				&cli.StringFlag{
					Name:  "ram-floor",
					Value: "0x00000000",
					Usage: "addresses below this are silently dropped as labels, hex",
				},
				&cli.StringFlag{
					Name:  "config",
					Usage: "label config file (.arm_func/.thumb_func/.ram_floor/.org)",
				},
				&cli.BoolFlag{
					Name:  "show-addresses",
					Usage: "print /*0xADDR*/ comments instead of symbolic operands",
				},
				&cli.IntFlag{
					Name:  "column-width",
					Value: 16,
					Usage: "bytes per .byte line in gap regions",
				},
			},
		},
	}
	app.Action = func(c *cli.Context) error {
		cli.ShowAppHelp(c)
		return nil
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
