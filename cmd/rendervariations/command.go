package main

import (
	"context"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"stdimage/internal/batch"
	"stdimage/internal/models"
	"stdimage/internal/registry"
	"stdimage/internal/render"
)

// Records lists the stored originals of a route and records finished renders.
type Records interface {
	Keys(ctx context.Context, route string, offset int) ([]string, error)
	MarkRendered(ctx context.Context, route, key string) error
}

type env struct {
	fields   *registry.Registry
	records  Records
	renderer *render.Renderer
	render   models.RenderConfig
	close    func()
}

type opener func(ctx context.Context, configPath string) (*env, error)

type flags struct {
	config   string
	replace  bool
	workers  int
	failFast bool
}

func newCommand(open opener, out io.Writer) *cobra.Command {
	var f flags

	cmd := &cobra.Command{
		Use:   "rendervariations <app.model.field[:start]>...",
		Short: "Render missing variations of stored images",
		Long: "Render the variations of every stored image of the given fields.\n" +
			"Existing variation files are kept unless --replace is set. A route may end\n" +
			"in :N to skip the first N records.",
		Args:         cobra.MinimumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			routes, err := batch.ParseRoutes(args)
			if err != nil {
				return err
			}

			e, err := open(cmd.Context(), f.config)
			if err != nil {
				return err
			}
			if e.close != nil {
				defer e.close()
			}

			workers, failFast := e.render.Workers, e.render.FailFast
			if cmd.Flags().Changed("workers") {
				workers = f.workers
			}
			if cmd.Flags().Changed("fail-fast") {
				failFast = f.failFast
			}

			failed := 0
			for _, route := range routes {
				n, err := renderRoute(cmd.Context(), out, e, route, f.replace, workers, failFast)
				if err != nil {
					return err
				}
				failed += n
			}
			if failed > 0 {
				return fmt.Errorf("%d records failed to render", failed)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&f.config, "config", "c", "config.yaml", "path to the configuration file")
	cmd.Flags().BoolVar(&f.replace, "replace", false, "replace existing variation files")
	cmd.Flags().IntVarP(&f.workers, "workers", "w", 0, "number of parallel render jobs (default from config)")
	cmd.Flags().BoolVar(&f.failFast, "fail-fast", false, "stop at the first failed record")

	return cmd
}

func renderRoute(
	ctx context.Context,
	out io.Writer,
	e *env,
	route batch.Route,
	replace bool,
	workers int,
	failFast bool,
) (int, error) {
	fld, err := e.fields.Field(route.String())
	if err != nil {
		return 0, err
	}
	keys, err := e.records.Keys(ctx, route.String(), route.Start)
	if err != nil {
		return 0, err
	}

	var done []string
	reporter := batch.ReporterFunc(func(p batch.Progress) {
		if p.Err == nil && !p.Declined {
			done = append(done, p.Key)
		}
		fmt.Fprintf(out, "\r%s %d/%d", route, p.Done, p.Total)
	})

	driver := batch.New(e.renderer,
		batch.WithWorkers(workers),
		batch.WithFailFast(failFast),
		batch.WithReporter(reporter),
	)
	res, runErr := driver.Run(ctx, keys, batch.Options{
		Route:   route.String(),
		Specs:   fld.Set.Specs(),
		Storage: fld.Storage,
		Replace: replace,
		Policy:  fld.Policy,
	})
	if len(keys) > 0 {
		fmt.Fprintln(out)
	}

	for _, key := range done {
		if err := e.records.MarkRendered(ctx, route.String(), key); err != nil {
			return 0, err
		}
	}

	printSummary(out, route, res)
	if runErr != nil {
		return 0, runErr
	}
	return res.Failed(), nil
}

func printSummary(out io.Writer, route batch.Route, res batch.Result) {
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	fmt.Fprintf(out, "%s: %s rendered, %s skipped, %s failed of %d\n",
		route,
		green(res.Rendered),
		yellow(res.Skipped),
		red(res.Failed()),
		res.Total,
	)
	for _, f := range res.Failures {
		fmt.Fprintf(out, "  %s %s: %v\n", red("x"), f.Key, f.Err)
	}
}
