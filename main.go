package main

import (
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"

	"github.com/flowfs/afio/afio"
)

func main() {
	slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      slog.LevelDebug,
		TimeFormat: time.TimeOnly,
	})))

	d := afio.New()
	defer d.Shutdown()

	dirs, err := d.Dir([]afio.PathOpReq{{Path: os.TempDir()}})
	if err != nil {
		slog.Error("afio: dir failed", "err", err)
		os.Exit(1)
	}
	if _, err := dirs[0].Wait(); err != nil {
		slog.Error("afio: dir op failed", "err", err)
		os.Exit(1)
	}

	slog.Info("afio dispatcher ready", "queue_depth", d.QueueDepth(), "registry_size", d.RegistrySize())
}
