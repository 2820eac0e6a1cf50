package docker

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	cerrdefs "github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/rs/xid"

	"github.com/sakif/analysis-runner/internal/executor"
)

const (
	// stateDir holds runner bookkeeping and user-installed packages. It is
	// kept outside WorkDir so guest code listing its inputs does not see it.
	stateDir  = "/var/lib/analysis"
	faultPath = stateDir + "/fault.json"

	labelManaged  = "analysis-runner.managed"
	labelDeadline = "analysis-runner.deadline"

	// exitTimeout mirrors the unix timeout command.
	exitTimeout = 124
	exitKilled  = 137

	maxFaultBytes = 64 * 1024
)

//go:embed harness.py
var harnessSource string

// Provider implements executor.Provider with one Docker container per
// environment.
type Provider struct {
	cli    *client.Client
	config Config
	logger *slog.Logger
}

var _ executor.Provider = (*Provider)(nil)

// New creates a Docker Provider and makes sure the configured image is present.
func New(cfg Config, logger *slog.Logger) (*Provider, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}

	p := &Provider{
		cli:    cli,
		config: cfg,
		logger: logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.PullTimeout)
	defer cancel()

	if err := p.ensureImage(ctx); err != nil {
		cli.Close()
		return nil, err
	}

	return p, nil
}

// ensureImage pulls the image if it doesn't exist locally.
func (p *Provider) ensureImage(ctx context.Context) error {
	if _, err := p.cli.ImageInspect(ctx, p.config.Image); err == nil {
		return nil
	}

	p.logger.Info("pulling docker image", slog.String("image", p.config.Image))
	reader, err := p.cli.ImagePull(ctx, p.config.Image, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image %s: %w", p.config.Image, err)
	}
	defer reader.Close()

	// Read everything to block until the pull is complete
	if _, err := io.Copy(io.Discard, reader); err != nil {
		return fmt.Errorf("failed to pull image %s: %w", p.config.Image, err)
	}
	p.logger.Info("docker image is ready", slog.String("image", p.config.Image))
	return nil
}

// Close releases the docker client.
func (p *Provider) Close() error {
	return p.cli.Close()
}

// Ping checks that the Docker daemon is reachable.
func (p *Provider) Ping(ctx context.Context) error {
	_, err := p.cli.Ping(ctx)
	return err
}

// Create starts a fresh container whose main process sleeps for the budget,
// so the daemon reaps it on its own if nobody destroys it in time.
func (p *Provider) Create(ctx context.Context, budget time.Duration) (executor.Handle, error) {
	if budget <= 0 {
		budget = executor.DefaultBudget
	}
	deadline := time.Now().Add(budget)
	name := "analysis-" + xid.New().String()
	seconds := int64(budget.Round(time.Second) / time.Second)
	if seconds < 1 {
		seconds = 1
	}

	hostConfig := &container.HostConfig{
		NetworkMode: container.NetworkMode(p.config.NetworkMode),
		Resources: container.Resources{
			Memory:     p.config.MemoryLimit,
			MemorySwap: p.config.MemoryLimit,
			NanoCPUs:   int64(p.config.CPULimit * 1e9),
			PidsLimit:  &p.config.PidsLimit,
		},
		CapDrop:     []string{"ALL"},
		SecurityOpt: []string{"no-new-privileges:true"},
		AutoRemove:  false,
	}

	resp, err := p.cli.ContainerCreate(ctx, &container.Config{
		Image:      p.config.Image,
		Cmd:        []string{"sleep", strconv.FormatInt(seconds, 10)},
		WorkingDir: p.config.WorkDir,
		User:       fmt.Sprintf("%d:%d", guestUID, guestUID),
		Env: []string{
			"HOME=" + stateDir,
			"PYTHONUSERBASE=" + stateDir + "/.local",
			"PYTHONDONTWRITEBYTECODE=1",
			"PYTHONUNBUFFERED=1",
			"PIP_DISABLE_PIP_VERSION_CHECK=1",
			"PIP_NO_CACHE_DIR=1",
			"MPLBACKEND=Agg",
		},
		Labels: map[string]string{
			labelManaged:  "true",
			labelDeadline: deadline.UTC().Format(time.RFC3339),
		},
	}, hostConfig, nil, nil, name)
	if err != nil {
		return executor.Handle{}, fmt.Errorf("ContainerCreate failed: %w", err)
	}

	env := executor.Handle{ID: resp.ID, Name: name, Deadline: deadline}

	// The directories are created before start so they belong to the guest
	// user; WorkingDir alone would leave them owned by root.
	layout, err := dirArchive(p.config.WorkDir, stateDir)
	if err == nil {
		err = p.cli.CopyToContainer(ctx, resp.ID, "/", layout, container.CopyToContainerOptions{})
	}
	if err == nil {
		err = p.cli.ContainerStart(ctx, resp.ID, container.StartOptions{})
	}
	if err != nil {
		p.removeContainer(resp.ID)
		return executor.Handle{}, fmt.Errorf("preparing container %s: %w", name, err)
	}

	p.logger.Debug("environment created",
		slog.String("environment", name),
		slog.Time("deadline", deadline),
	)
	return env, nil
}

// WriteFile copies content into the working directory under name. An
// existing file with the same name is replaced.
func (p *Provider) WriteFile(ctx context.Context, env executor.Handle, name, content string) error {
	if err := ValidateName(name); err != nil {
		return err
	}

	archive, err := fileArchive(name, []byte(content))
	if err != nil {
		return fmt.Errorf("archiving %s: %w", name, err)
	}

	if err := p.cli.CopyToContainer(ctx, env.ID, p.config.WorkDir, archive, container.CopyToContainerOptions{}); err != nil {
		return fmt.Errorf("copying %s into %s: %w", name, env.Name, err)
	}
	return nil
}

// Run executes Python code inside the environment through the fault
// recording harness.
func (p *Provider) Run(ctx context.Context, env executor.Handle, code string) (executor.Outcome, error) {
	// We apply a timeout context purely for the guest process
	executeCtx, executeCancel := context.WithTimeout(ctx, p.config.ExecTimeout)
	defer executeCancel()

	execConfig := container.ExecOptions{
		AttachStdout: true,
		AttachStderr: true,
		WorkingDir:   p.config.WorkDir,
		Cmd:          []string{"python", "-c", harnessSource, faultPath, code},
	}

	execResp, err := p.cli.ContainerExecCreate(executeCtx, env.ID, execConfig)
	if err != nil {
		return executor.Outcome{}, fmt.Errorf("failed to create exec: %w", err)
	}

	attachResp, err := p.cli.ContainerExecAttach(executeCtx, execResp.ID, container.ExecStartOptions{})
	if err != nil {
		return executor.Outcome{}, fmt.Errorf("failed to attach to exec: %w", err)
	}
	defer attachResp.Close()

	var stdout, stderr bytes.Buffer

	done := make(chan error, 1)
	go func() {
		// Use stdcopy to demultiplex stdout from stderr
		_, err := stdcopy.StdCopy(&stdout, &stderr, attachResp.Reader)
		done <- err
	}()

	var exitCode int

	select {
	case err := <-done:
		if err != nil {
			return executor.Outcome{}, fmt.Errorf("failed to read exec output: %w", err)
		}
		inspectResp, err := p.cli.ContainerExecInspect(ctx, execResp.ID)
		if err != nil {
			return executor.Outcome{}, fmt.Errorf("failed to inspect exec: %w", err)
		}
		exitCode = inspectResp.ExitCode
	case <-executeCtx.Done():
		if err := ctx.Err(); err != nil {
			return executor.Outcome{}, err
		}
		// Closing the hijacked connection unblocks the copier before we read
		// the buffers.
		attachResp.Close()
		<-done
		stderr.WriteString("\nExecution timed out.\n")
		return executor.Outcome{
			Stdout: stdout.String(),
			Stderr: stderr.String(),
			Fault: &executor.Fault{
				Kind:   "TimeoutError",
				Detail: fmt.Sprintf("execution exceeded %s", p.config.ExecTimeout),
			},
		}, nil
	}

	outcome := executor.Outcome{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if exitCode == 0 {
		return outcome, nil
	}

	fault, err := p.readFault(ctx, env)
	if err != nil {
		return executor.Outcome{}, err
	}
	if fault == nil {
		fault = exitFault(exitCode)
	}
	outcome.Fault = fault
	return outcome, nil
}

// readFault loads the record the harness leaves behind when guest code
// raises. A missing record means the process died without raising.
func (p *Provider) readFault(ctx context.Context, env executor.Handle) (*executor.Fault, error) {
	rc, _, err := p.cli.CopyFromContainer(ctx, env.ID, faultPath)
	if cerrdefs.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading fault record: %w", err)
	}
	defer rc.Close()

	raw, err := readArchivedFile(rc, maxFaultBytes)
	if errors.Is(err, errNoFile) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading fault record: %w", err)
	}
	return decodeFault(raw)
}

func decodeFault(raw []byte) (*executor.Fault, error) {
	var rec struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	}
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decoding fault record: %w", err)
	}
	if rec.Name == "" {
		rec.Name = "Error"
	}
	return &executor.Fault{Kind: rec.Name, Detail: rec.Value}, nil
}

func exitFault(code int) *executor.Fault {
	switch code {
	case exitKilled:
		return &executor.Fault{
			Kind:   "Killed",
			Detail: fmt.Sprintf("process was killed (exit status %d), possibly out of memory", code),
		}
	case exitTimeout:
		return &executor.Fault{Kind: "TimeoutError", Detail: "process timed out"}
	default:
		return &executor.Fault{
			Kind:   "ExitError",
			Detail: fmt.Sprintf("process exited with status %d", code),
		}
	}
}

// Destroy force removes the environment's container. A container that is
// already gone counts as destroyed.
func (p *Provider) Destroy(ctx context.Context, env executor.Handle) error {
	err := p.cli.ContainerRemove(ctx, env.ID, container.RemoveOptions{
		Force: true,
	})
	if err != nil && !cerrdefs.IsNotFound(err) {
		return fmt.Errorf("removing %s: %w", env.Name, err)
	}
	return nil
}

// removeContainer force removes a container by ID.
func (p *Provider) removeContainer(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := p.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: true}); err != nil {
		p.logger.Error("failed to remove container", slog.String("id", id), slog.String("error", err.Error()))
	}
}

