package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/haldardhruv/foamchalak/internal/backend"
	"github.com/haldardhruv/foamchalak/internal/broadcast"
	"github.com/haldardhruv/foamchalak/internal/config"
	"github.com/haldardhruv/foamchalak/internal/domain"
	"github.com/haldardhruv/foamchalak/internal/pipeline"
	"github.com/haldardhruv/foamchalak/internal/provision"
	"github.com/haldardhruv/foamchalak/internal/tutorials"
	"github.com/haldardhruv/foamchalak/web/api"
)

var (
	servePort   int
	serveStatic string
	runTutorial string
	runBackend  string
)

func init() {
	// serve command
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the web control surface",
		RunE:  runServe,
	}
	serveCmd.Flags().IntVar(&servePort, "port", 0, "port to listen on (overrides config)")
	serveCmd.Flags().StringVar(&serveStatic, "static", "web/ui", "static UI directory")
	rootCmd.AddCommand(serveCmd)

	// run command
	runCmd := &cobra.Command{
		Use:   "run [CASE_DIR]",
		Short: "Run the pipeline once and stream output to stdout",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runOnce,
	}
	runCmd.Flags().StringVar(&runTutorial, "tutorial", "", "clone and run the named tutorial case")
	runCmd.Flags().StringVar(&runBackend, "backend", "", "execution backend: local or docker (overrides config)")
	rootCmd.AddCommand(runCmd)

	// tutorials command
	tutorialsCmd := &cobra.Command{
		Use:   "tutorials",
		Short: "List loadable tutorial cases",
		RunE:  runTutorials,
	}
	rootCmd.AddCommand(tutorialsCmd)
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = config.DefaultConfigPath()
	}
	return config.Load(path)
}

// buildBackend constructs the configured execution backend. For local
// execution the OpenFOAM environment file is sourced up front so every
// step sees FOAM_* and the solver binaries on PATH.
func buildBackend(cfg *config.Config) backend.Backend {
	if cfg.Runner.Backend == "docker" {
		d := backend.NewDocker(cfg.Docker.Image, cfg.Docker.BashrcPath)
		if cfg.Docker.MemoryLimit != "" {
			d.MemoryLimit = cfg.Docker.MemoryLimit
		}
		return d
	}

	var env []string
	if cfg.Runner.BashrcPath != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		loaded, err := backend.LoadFoamEnv(ctx, cfg.Runner.BashrcPath)
		if err != nil {
			log.Printf("could not source %s: %v (continuing with current environment)", cfg.Runner.BashrcPath, err)
		} else {
			env = loaded
		}
	}
	return backend.NewLocal(env)
}

func pipelineSteps(cfg *config.Config) []domain.StepDefinition {
	if steps := cfg.Steps(); steps != nil {
		return steps
	}
	return pipeline.DefaultSteps(cfg.Pipeline.Solver)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if servePort > 0 {
		cfg.Web.Port = servePort
	}
	store := config.NewStore(cfg)

	bc := broadcast.New()
	// Resolve the backend and steps from the store on every start, so
	// config edits through the control surface apply to the next run.
	runner := pipeline.NewRunner(func() (backend.Backend, []domain.StepDefinition, error) {
		c := store.Get()
		return buildBackend(&c), pipelineSteps(&c), nil
	}, bc, pipeline.Options{
		StopGrace: time.Duration(cfg.Runner.StopGraceSeconds) * time.Second,
	})

	prov, err := provision.New(cfg.Runner.RunsDir)
	if err != nil {
		return err
	}

	catalog, err := tutorials.NewCatalog(cfg.Case.TutorialsDir)
	if err != nil {
		return err
	}
	watcher, err := tutorials.NewWatcher(catalog)
	if err != nil {
		log.Printf("tutorial watching disabled: %v", err)
	} else {
		watcher.Start(context.Background())
		defer watcher.Stop()
	}

	if cfg.Cleanup.Enabled {
		janitor, err := provision.NewJanitor(prov,
			cfg.Cleanup.Schedule,
			time.Duration(cfg.Cleanup.MaxAgeHours)*time.Hour,
			func() map[string]bool {
				st := runner.Status()
				if st.WorkDir == "" {
					return nil
				}
				return map[string]bool{st.WorkDir: true}
			})
		if err != nil {
			return fmt.Errorf("cleanup schedule: %w", err)
		}
		go janitor.Start()
		defer janitor.Stop()
	}

	path := configPath
	if path == "" {
		path = config.DefaultConfigPath()
	}
	addr := fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port)
	srv := api.NewServer(runner, bc, catalog, prov, store, path, addr, serveStatic)

	log.Printf("foamchalak listening on http://%s (backend: %s)", addr, cfg.Runner.Backend)
	return srv.Start()
}

func runOnce(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if runBackend != "" {
		cfg.Runner.Backend = runBackend
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	workDir := cfg.Case.Dir
	if len(args) > 0 {
		workDir = args[0]
	}
	if runTutorial != "" {
		catalog, err := tutorials.NewCatalog(cfg.Case.TutorialsDir)
		if err != nil {
			return err
		}
		cs, ok := catalog.Find(runTutorial)
		if !ok {
			return fmt.Errorf("unknown tutorial %q", runTutorial)
		}
		prov, err := provision.New(cfg.Runner.RunsDir)
		if err != nil {
			return err
		}
		workDir, err = prov.CloneCase(cs.Path)
		if err != nil {
			return err
		}
		fmt.Printf("Provisioned %s into %s\n", runTutorial, workDir)
	}

	bc := broadcast.New()
	terminal := make(chan *domain.Run, 1)
	runner := pipeline.NewRunner(pipeline.Static(buildBackend(cfg), pipelineSteps(cfg)), bc, pipeline.Options{
		StopGrace:  time.Duration(cfg.Runner.StopGraceSeconds) * time.Second,
		OnTerminal: func(run *domain.Run) { terminal <- run },
	})

	sub := bc.Subscribe(0)
	go func() {
		for line := range sub.Lines() {
			fmt.Println(line.Text)
		}
	}()

	if _, err := runner.Start(workDir); err != nil {
		return err
	}

	run := <-terminal
	bc.Unsubscribe(sub)

	if run.State != domain.RunCompleted {
		os.Exit(run.ExitCode)
	}
	return nil
}

func runTutorials(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	catalog, err := tutorials.NewCatalog(cfg.Case.TutorialsDir)
	if err != nil {
		return err
	}

	cases := catalog.List()
	if len(cases) == 0 {
		fmt.Printf("No tutorial cases under %s\n", cfg.Case.TutorialsDir)
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSOLVER")
	for _, cs := range cases {
		fmt.Fprintf(w, "%s\t%s\n", cs.Name, cs.Solver)
	}
	return w.Flush()
}
