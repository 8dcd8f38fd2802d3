package telemetry

import (
	"fmt"
	"runtime"

	"github.com/grafana/pyroscope-go"
	log "github.com/sirupsen/logrus"
)

const (
	appName = "bitswapd"

	// Sampling rates for the mutex and block profiles, off by default in the
	// go runtime.
	mutexProfileFraction = 5
	blockProfileRate     = 5
)

// InitPyroscope pushes continuous profiles of the daemon to serverURL and
// returns the function stopping it. Nothing is started when serverURL is
// empty.
func InitPyroscope(serverURL, version string) (func(), error) {
	if serverURL == "" {
		return nil, nil
	}

	runtime.SetMutexProfileFraction(mutexProfileFraction)
	runtime.SetBlockProfileRate(blockProfileRate)

	profiler, err := pyroscope.Start(pyroscope.Config{
		ApplicationName: appName,
		ServerAddress:   serverURL,
		Tags:            map[string]string{"version": version},
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileInuseSpace,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileGoroutines,
			pyroscope.ProfileMutexDuration,
			pyroscope.ProfileBlockDuration,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start pyroscope profiler: %w", err)
	}
	log.WithFields(log.Fields{"server": serverURL, "version": version}).Info("pyroscope profiler started")

	return func() {
		runtime.SetMutexProfileFraction(0)
		runtime.SetBlockProfileRate(0)
		if err := profiler.Stop(); err != nil {
			log.WithError(err).Warn("failed to stop pyroscope profiler")
		}
	}, nil
}
