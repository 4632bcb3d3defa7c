// Command archoctopus-cli downloads the images of the pages given as
// arguments and prints a summary once every task has finished.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/archoctopus/archoctopus-go/internal/config"
	"github.com/archoctopus/archoctopus-go/internal/core"
	"github.com/archoctopus/archoctopus-go/internal/logging"
	"github.com/archoctopus/archoctopus-go/internal/models"
	"github.com/archoctopus/archoctopus-go/internal/pipeline"
	"github.com/archoctopus/archoctopus-go/internal/tasks"
)

func main() {
	flags := pflag.NewFlagSet("archoctopus-cli", pflag.ExitOnError)
	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: archoctopus-cli [flags] URL...\n\n")
		flags.PrintDefaults()
	}
	flags.StringP("dir", "d", "", "download folder")
	flags.IntP("threads", "t", 0, "downloader workers per task")
	flags.Bool("no-index", false, "do not prefix file names with their index")
	flags.String("proxy", "", "HTTP proxy URL")
	flags.String("db", "", "history database path")
	flags.String("plugins", "", "folder of strategy scripts")
	flags.BoolP("rerun", "r", false, "download URLs already in the history again")
	flags.BoolP("verbose", "v", false, "log at debug level")
	flags.Parse(os.Args[1:])

	if flags.NArg() == 0 {
		flags.Usage()
		os.Exit(2)
	}

	// Flags override config.yml and the environment.
	for key, name := range map[string]string{
		"download.dir":     "dir",
		"download.threads": "threads",
		"network.proxy":    "proxy",
		"database.path":    "db",
		"plugins.path":     "plugins",
	} {
		if f := flags.Lookup(name); f.Changed {
			viper.BindPFlag(key, f)
		}
	}
	if noIndex, _ := flags.GetBool("no-index"); noIndex {
		viper.Set("download.index", false)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	level := cfg.Log.Level
	if verbose, _ := flags.GetBool("verbose"); verbose {
		level = "debug"
	}
	logger, err := logging.New(true, level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	app, err := core.New(cfg, logger)
	if err != nil {
		logger.Fatal("Fatal error during application setup", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rerun, _ := flags.GetBool("rerun")
	code := run(ctx, app, flags.Args(), rerun)

	closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.Close(closeCtx); err != nil {
		logger.Error("Shutdown incomplete", zap.Error(err))
	}
	os.Exit(code)
}

func run(ctx context.Context, app *core.App, urls []string, rerun bool) int {
	m := app.Tasks()
	var submitted []*models.Task
	code := 0
	for _, u := range urls {
		task, err := m.Submit(ctx, u, rerun)
		switch {
		case errors.Is(err, tasks.ErrAlreadyDownloaded):
			fmt.Printf("skip  %s (already downloaded, use --rerun)\n", task.URL)
		case err != nil:
			fmt.Printf("fail  %s: %v\n", u, err)
			code = 1
		default:
			submitted = append(submitted, task)
		}
	}

	for _, task := range submitted {
		state, err := m.Wait(ctx, task.ID)
		if err != nil {
			// Interrupted: stop everything and report what was stored.
			m.StopAll()
			state, _ = m.Wait(context.Background(), task.ID)
		}
		got, err := m.Get(task.ID)
		if err != nil {
			fmt.Printf("fail  %s: %v\n", task.URL, err)
			code = 1
			continue
		}
		counts := app.Store().CountItems(task.ID)
		fmt.Printf("%-5s %s\n      %s: %d downloaded, %d filtered, %d failed of %d\n",
			label(state), got.URL, got.Name,
			counts[models.StatusDownloaded], counts[models.StatusFiltered], counts[models.StatusError], got.TotalCount)
		if state == pipeline.StateError || counts[models.StatusError] > 0 {
			code = 1
		}
	}
	return code
}

func label(s pipeline.State) string {
	switch s {
	case pipeline.StateCompleted, pipeline.StateIdle:
		return "done"
	case pipeline.StateAborted:
		return "abort"
	case pipeline.StateStopped:
		return "stop"
	}
	return "fail"
}
