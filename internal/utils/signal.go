package utils

import (
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
)

// SetupSignalHandling flips the shutdown flag on SIGINT/SIGTERM. The
// orchestrator consults the flag between accounts and resources, so an
// in-flight renewal always finishes before the process stops.
func SetupSignalHandling(shutdownRequested *int32) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Fprintf(os.Stderr, "\n⚠️ received signal %v, finishing current work before stopping\n", sig)
		atomic.StoreInt32(shutdownRequested, 1)
	}()
}
