package main

import (
	"os"
	"os/signal"
	"syscall"

	"pairwatch/internal/bootstrap"
)

func main() {
	container := bootstrap.NewContainer()
	container.MustInit()

	log := container.Log

	if err := container.Start(); err != nil {
		log.Errorf("Startup failed: %v", err)
		container.Shutdown()
		os.Exit(1)
	}

	waitForShutdown(container)
}

// waitForShutdown blocks until a shutdown signal arrives or a fatal
// component error cancels the application context
func waitForShutdown(container *bootstrap.Container) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		container.Log.Infof("Received signal %s, shutting down...", sig)
	case <-container.Context.Done():
		container.Log.Info("Application context cancelled, shutting down...")
	}

	container.Shutdown()
}
