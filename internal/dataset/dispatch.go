package dataset

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/san-kum/posegen/internal/logging"
	"github.com/san-kum/posegen/internal/recorder"
	"github.com/san-kum/posegen/internal/scene"
	"github.com/san-kum/posegen/internal/session"
)

// Job is one seed's unit of work.
type Job struct {
	Dir    string
	Scene  scene.Config
	Seed   int64
	Frames int
}

// Dispatcher runs jobs. Dispatch may be called from Workers() goroutines at
// once; each call must give the job its own simulation session.
type Dispatcher interface {
	Dispatch(ctx context.Context, job Job) (recorder.Result, error)
	Workers() int
}

// InProcess records chunks in the calling process, one at a time.
type InProcess struct {
	rec *recorder.Recorder
}

func NewInProcess(rec *recorder.Recorder) *InProcess {
	return &InProcess{rec: rec}
}

func (d *InProcess) Dispatch(ctx context.Context, job Job) (recorder.Result, error) {
	return d.rec.RecordChunk(ctx, job.Dir, job.Scene, job.Seed, job.Frames)
}

func (d *InProcess) Workers() int { return 1 }

// WorkerCommand is the hidden subcommand a Subprocess worker runs.
const WorkerCommand = "record-chunk"

// Subprocess records each chunk in a fresh child process so that every
// in-flight seed owns its engine connection. The child reads the scene
// configuration from the dataset's config.yaml and replies with a JSON
// Result on its last stdout line.
type Subprocess struct {
	executable string
	args       []string
	workers    int
	slots      chan string
	stderr     io.Writer
	log        *slog.Logger
}

type SubprocessOptions struct {
	// Executable defaults to the running binary.
	Executable string
	// Args precede the worker command, e.g. global flags.
	Args    []string
	Workers int
	// Devices are handed out round-robin as the visible GPU of each slot.
	Devices []string
	Stderr  io.Writer
	Logger  *slog.Logger
}

func NewSubprocess(opts SubprocessOptions) (*Subprocess, error) {
	if opts.Executable == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("locate worker binary: %w", err)
		}
		opts.Executable = exe
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	slots := make(chan string, opts.Workers)
	for i := 0; i < opts.Workers; i++ {
		dev := ""
		if len(opts.Devices) > 0 {
			dev = opts.Devices[i%len(opts.Devices)]
		}
		slots <- dev
	}
	return &Subprocess{
		executable: opts.Executable,
		args:       opts.Args,
		workers:    opts.Workers,
		slots:      slots,
		stderr:     opts.Stderr,
		log:        logging.OrDiscard(opts.Logger),
	}, nil
}

func (d *Subprocess) Workers() int { return d.workers }

func (d *Subprocess) Dispatch(ctx context.Context, job Job) (recorder.Result, error) {
	var dev string
	select {
	case dev = <-d.slots:
	case <-ctx.Done():
		return recorder.Result{}, ctx.Err()
	}
	defer func() { d.slots <- dev }()

	args := append(append([]string{}, d.args...), WorkerCommand,
		"--dataset", job.Dir,
		"--seed", strconv.FormatInt(job.Seed, 10),
		"--frames", strconv.Itoa(job.Frames),
	)
	cmd := exec.CommandContext(ctx, d.executable, args...)
	cmd.Env = os.Environ()
	if dev != "" {
		cmd.Env = append(cmd.Env, session.VisibleDevicesVar+"="+dev)
	}
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = d.stderr

	d.log.Debug("worker started", "seed", job.Seed, "device", dev)
	if err := cmd.Run(); err != nil {
		return recorder.Result{}, fmt.Errorf("worker for seed %d: %w", job.Seed, err)
	}
	res, err := parseReply(stdout.Bytes())
	if err != nil {
		return recorder.Result{}, fmt.Errorf("worker for seed %d: %w", job.Seed, err)
	}
	if res.Seed != job.Seed {
		return recorder.Result{}, fmt.Errorf("worker for seed %d replied for seed %d", job.Seed, res.Seed)
	}
	return res, nil
}

func parseReply(out []byte) (recorder.Result, error) {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	last := lines[len(lines)-1]
	var res recorder.Result
	if err := json.Unmarshal([]byte(last), &res); err != nil {
		return res, fmt.Errorf("malformed reply %q: %w", last, err)
	}
	return res, nil
}

// ServeChunk is the worker side of Subprocess: it records one chunk and
// writes the reply to w.
func ServeChunk(ctx context.Context, w io.Writer, rec *recorder.Recorder, job Job) error {
	res, err := rec.RecordChunk(ctx, job.Dir, job.Scene, job.Seed, job.Frames)
	if err != nil {
		return err
	}
	return json.NewEncoder(w).Encode(res)
}
