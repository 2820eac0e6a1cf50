package docker

import (
	"time"
)

// Config holds the configuration for Docker-backed environments.
type Config struct {
	// Image is the Docker image every environment is created from.
	Image string
	// MemoryLimit is the maximum amount of memory the container can use (in bytes).
	MemoryLimit int64
	// CPULimit is the number of CPUs the container can use.
	CPULimit float64
	// PidsLimit caps the number of processes inside the container.
	PidsLimit int64
	// NetworkMode is passed to the container host config. "none" isolates the
	// guest completely but then packages must already be in the image.
	NetworkMode string
	// WorkDir is where staged inputs land and where guest code runs.
	WorkDir string
	// ExecTimeout bounds a single Run. Expiry is reported as a guest fault.
	ExecTimeout time.Duration
	// PullTimeout bounds the image check/pull performed by New.
	PullTimeout time.Duration
}

// DefaultConfig provides sensible defaults for a pandas-capable Python sandbox.
func DefaultConfig() Config {
	return Config{
		Image: "python:3.12-slim",
		// 512 MB, dataframes need more than a plain script
		MemoryLimit: 512 * 1024 * 1024,
		CPULimit:    1,
		PidsLimit:   128,
		// bridge so missing packages can be installed on demand
		NetworkMode: "bridge",
		WorkDir:     "/workspace",
		ExecTimeout: 60 * time.Second,
		PullTimeout: 5 * time.Minute,
	}
}
