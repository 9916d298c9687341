package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/starford/livetext/internal"
	"github.com/starford/livetext/internal/editor"
	"github.com/starford/livetext/internal/parser"
	"github.com/starford/livetext/internal/storage"
	"github.com/starford/livetext/internal/textitem"
)

func sectionsCommand() *cli.Command {
	return &cli.Command{
		Name:      "sections",
		Usage:     "Print the sections of a file",
		ArgsUsage: "FILE",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "grammar", Aliases: []string{"g"}, Usage: "Grammar name (default: by file suffix)"},
		},
		Action: func(_ context.Context, cmd *cli.Command) error {
			file := cmd.Args().First()
			if file == "" {
				return errors.New("sections: FILE is required")
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			g, err := resolveGrammar(cfg, file, cmd.String("grammar"))
			if err != nil {
				return err
			}
			text, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("sections: %w", err)
			}
			printSections(os.Stdout, g, text)
			return nil
		},
	}
}

func exposeCommand() *cli.Command {
	return &cli.Command{
		Name:      "expose",
		Usage:     "Mirror a file into the mirror directory and report the authoritative text",
		ArgsUsage: "FILE",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "grammar", Aliases: []string{"g"}, Usage: "Grammar name (default: by file suffix)"},
			&cli.BoolFlag{Name: "overwrite", Usage: "Replace an edited mirror with the file's content"},
			&cli.BoolFlag{Name: "open", Usage: "Open the mirror in the configured editor"},
			&cli.BoolFlag{Name: "watch", Aliases: []string{"w"}, Usage: "Keep polling the mirror and report edits"},
			&cli.BoolFlag{Name: "write-back", Usage: "With --watch, copy adopted edits back into FILE"},
		},
		Action: expose,
	}
}

func expose(ctx context.Context, cmd *cli.Command) error {
	file := cmd.Args().First()
	if file == "" {
		return errors.New("expose: FILE is required")
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	g, err := resolveGrammar(cfg, file, cmd.String("grammar"))
	if err != nil {
		return err
	}
	text, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("expose: %w", err)
	}
	if limit := cfg.Workspace.MaxArtifactBytes; limit > 0 && len(text) > limit {
		return fmt.Errorf("expose: %s is %d bytes, limit is %d", file, len(text), limit)
	}
	if err := os.MkdirAll(cfg.Mirror.Dir, 0o755); err != nil {
		return fmt.Errorf("expose: create mirror dir: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.App.LogLevel}))
	suffix := g.Suffix
	if suffix == "" {
		suffix = filepath.Ext(file)
	}
	it, err := textitem.New(text, textitem.Config{
		Overwrite:       cmd.Bool("overwrite") || cfg.Mirror.Overwrite,
		Prefix:          filepath.Clean(cfg.Mirror.Dir) + string(os.PathSeparator),
		Suffix:          suffix,
		MinOverrideSize: cfg.Mirror.MinOverrideSize,
	}, logger, cfg.Mirror.Options(logger)...)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "%s\t%s\n", it.Path(), it.Source())
	current, err := it.CurrentText()
	if err != nil {
		return err
	}
	printSections(os.Stdout, g, current)

	if cmd.Bool("open") {
		if cfg.Editor.Command == "" {
			return errors.New("expose: no editor command configured")
		}
		l := editor.NewCommand(cfg.Editor.Command, cfg.Editor.Args, cfg.Editor.BackgroundArgs, logger)
		if err := it.OpenInEditor(l, true); err != nil {
			return err
		}
	}

	if !cmd.Bool("watch") {
		return nil
	}
	interval := cfg.Mirror.PollInterval.Std()
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		changed, err := it.PollForChanges(ctx)
		if err != nil {
			logger.Warn("poll failed", slog.String("error", err.Error()))
			continue
		}
		if !changed {
			continue
		}
		current, err := it.CurrentText()
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "changed\t%s\t%d bytes\n", it.Path(), len(current))
		printSections(os.Stdout, g, current)
		if cmd.Bool("write-back") {
			if err := storage.WriteFile(file, current); err != nil {
				logger.Warn("write-back failed", slog.String("error", err.Error()))
			}
		}
	}
}

func resolveGrammar(cfg *internal.Config, file, name string) (parser.Grammar, error) {
	gs := cfg.GrammarTable()
	if name != "" {
		return gs.Lookup(name)
	}
	g, _ := gs.ForPath(file)
	return g, nil
}

func printSections(w io.Writer, g parser.Grammar, text []byte) {
	for i, sec := range g.Split(text).Sections() {
		fmt.Fprintf(w, "%d\t%s\t%d\t%d\t%s\n", i, g.Marker(sec.MarkerIndex), sec.Offset, sec.Length, sec.Header(text))
	}
}
