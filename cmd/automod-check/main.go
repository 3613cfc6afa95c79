package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"discord-automod/internal/engine/pattern"
	"discord-automod/internal/presets"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"
)

func main() {
	app := cli.App{
		Name:  "automod-check",
		Usage: "offline tool to try automod rules against sample content",
	}
	app.Commands = []*cli.Command{
		&cli.Command{
			Name:      "check",
			Usage:     "evaluate content against a rules file and print the resulting plans",
			ArgsUsage: "[content, read from stdin when omitted]",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  "rules",
					Usage: "YAML rules file",
				},
				&cli.StringSliceFlag{
					Name:  "preset",
					Usage: "also load a built-in preset (repeatable)",
				},
				&cli.StringFlag{
					Name:  "as",
					Usage: "deliver the content as a message, nickname or reaction",
					Value: "message",
				},
				&cli.IntFlag{
					Name:  "repeat",
					Usage: "deliver the content this many times to exercise escalation",
					Value: 1,
				},
				&cli.StringSliceFlag{
					Name:  "role",
					Usage: "role id held by the author (repeatable)",
				},
				&cli.StringFlag{
					Name:  "channel",
					Usage: "channel id the content is posted in",
					Value: "channel",
				},
			},
			Action: runCheck,
		},
		&cli.Command{
			Name:      "wildcard",
			Usage:     "translate a wildcard expression into rule patterns",
			ArgsUsage: "<expression>",
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:  "allow-partial",
					Usage: "print the valid patterns even when some tokens are rejected",
				},
			},
			Action: runWildcard,
		},
		&cli.Command{
			Name:  "presets",
			Usage: "list the built-in presets",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  "show",
					Usage: "print the rule of one preset as YAML",
				},
			},
			Action: runPresets,
		},
	}
	app.RunAndExitOnError()
}

func runCheck(cctx *cli.Context) error {
	catalogue, err := presets.Builtin()
	if err != nil {
		return err
	}

	var file RulesFile
	if path := cctx.String("rules"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		if file, err = ParseRulesFile(data); err != nil {
			return err
		}
	}
	for _, id := range cctx.StringSlice("preset") {
		r, err := catalogue.Instantiate(id, checkGuild)
		if err != nil {
			return err
		}
		file.Rules = append(file.Rules, *r)
	}
	if len(file.Rules) == 0 {
		return cli.Exit("no rules: pass --rules or --preset", 1)
	}

	content := strings.Join(cctx.Args().Slice(), " ")
	if content == "" {
		data, err := io.ReadAll(cctx.App.Reader)
		if err != nil {
			return err
		}
		content = strings.TrimRight(string(data), "\n")
	}

	checker, err := NewChecker(file)
	if err != nil {
		return err
	}
	defer checker.Close()

	delivery := Delivery{
		As:        cctx.String("as"),
		Content:   content,
		ChannelID: cctx.String("channel"),
		Roles:     cctx.StringSlice("role"),
	}
	enc := json.NewEncoder(cctx.App.Writer)
	enc.SetIndent("", "  ")
	for i := 0; i < cctx.Int("repeat"); i++ {
		plan, err := checker.Check(cctx.Context, delivery)
		if err != nil {
			return err
		}
		if err := enc.Encode(plan); err != nil {
			return err
		}
	}
	return nil
}

func runWildcard(cctx *cli.Context) error {
	expr := strings.Join(cctx.Args().Slice(), " ")
	if expr == "" {
		return cli.Exit("missing expression", 1)
	}

	patterns, errs := pattern.Translate(expr)
	for _, e := range errs {
		fmt.Fprintln(cctx.App.ErrWriter, "skipped", e.Error())
	}
	if len(errs) > 0 && !cctx.Bool("allow-partial") {
		return cli.Exit("expression rejected, use --allow-partial to keep the valid tokens", 1)
	}

	out, err := yaml.Marshal(map[string]interface{}{"patterns": patterns})
	if err != nil {
		return err
	}
	_, err = cctx.App.Writer.Write(out)
	return err
}

func runPresets(cctx *cli.Context) error {
	catalogue, err := presets.Builtin()
	if err != nil {
		return err
	}

	if id := cctx.String("show"); id != "" {
		r, err := catalogue.Instantiate(id, checkGuild)
		if err != nil {
			return err
		}
		out, err := yaml.Marshal(r)
		if err != nil {
			return err
		}
		_, err = cctx.App.Writer.Write(out)
		return err
	}

	for _, p := range catalogue.List() {
		fmt.Fprintf(cctx.App.Writer, "%-26s %s\n", p.ID, p.Description)
	}
	return nil
}
