package viz

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/san-kum/posegen/internal/recorder"
)

type (
	RunStartedMsg struct {
		Total   int
		Pending int
	}
	ChunkDoneMsg struct {
		Seed   int64
		Frames int
		Done   int
		Total  int
	}
	// RunFinishedMsg ends the program; Err is nil on success.
	RunFinishedMsg struct{ Err error }
	// StoppingMsg reports that the run was cancelled from outside the view.
	StoppingMsg struct{}
	tickMsg        time.Time
)

const recentSeeds = 5

// ProgressModel shows a live view of a recording run.
type ProgressModel struct {
	styles    Styles
	dir       string
	total     int
	pending   int
	done      int
	frames    int
	recent    []int64
	durations []float64
	lastChunk time.Time
	started   time.Time
	spin      int
	finished  bool
	stopping  bool
	err       error
	interrupt func()
	now       func() time.Time
	width     int
}

// NewProgressModel returns the model for dir. interrupt is called once when
// the user presses ctrl+c; recording keeps running until the in-flight
// chunks finish.
func NewProgressModel(dir string, theme Theme, interrupt func()) ProgressModel {
	return ProgressModel{
		styles:    NewStyles(theme),
		dir:       dir,
		interrupt: interrupt,
		now:       time.Now,
		width:     40,
	}
}

func (m ProgressModel) Init() tea.Cmd { return tick() }

func tick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m ProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || msg.String() == "q" {
			if !m.stopping && m.interrupt != nil {
				m.interrupt()
			}
			m.stopping = true
		}
		return m, nil
	case StoppingMsg:
		m.stopping = true
		return m, nil
	case tea.WindowSizeMsg:
		m.width = max(10, min(60, msg.Width-30))
		return m, nil
	case RunStartedMsg:
		m.total, m.pending = msg.Total, msg.Pending
		m.done = msg.Total - msg.Pending
		m.started = m.now()
		m.lastChunk = m.started
		return m, nil
	case ChunkDoneMsg:
		now := m.now()
		m.done = msg.Done
		m.frames += msg.Frames
		m.durations = append(m.durations, now.Sub(m.lastChunk).Seconds())
		m.lastChunk = now
		m.recent = append(m.recent, msg.Seed)
		if len(m.recent) > recentSeeds {
			m.recent = m.recent[len(m.recent)-recentSeeds:]
		}
		return m, nil
	case RunFinishedMsg:
		m.finished = true
		m.err = msg.Err
		return m, tea.Quit
	case tickMsg:
		m.spin++
		if m.finished {
			return m, nil
		}
		return m, tick()
	}
	return m, nil
}

func (m ProgressModel) View() string {
	s := m.styles
	var b strings.Builder

	status := s.Running.Render(AnimatedSpinner(m.spin) + " recording")
	switch {
	case m.finished && m.err != nil:
		status = s.Failed.Render("✗ failed")
	case m.finished:
		status = s.Done.Render("✓ done")
	case m.stopping:
		status = s.Failed.Render("◼ stopping after in-flight chunks")
	}
	b.WriteString(s.Title.Render("posegen") + "  " + s.Subtle.Render(m.dir) + "  " + status + "\n\n")

	pct := 0.0
	if m.total > 0 {
		pct = float64(m.done) / float64(m.total)
	}
	b.WriteString(s.ProgressBar(pct, m.width))
	b.WriteString(fmt.Sprintf(" %3.0f%%  %d/%d chunks\n", pct*100, m.done, m.total))

	b.WriteString(s.Metric("frames", fmt.Sprintf("%d", m.frames)) + "   ")
	b.WriteString(s.Metric("eta", m.eta()) + "\n")
	if len(m.durations) > 1 {
		b.WriteString(s.MetricLabel.Render("chunk time ") + s.Sparkline(m.durations, m.width) + "\n")
	}
	if len(m.recent) > 0 {
		seeds := make([]string, len(m.recent))
		for i, seed := range m.recent {
			seeds[i] = fmt.Sprintf("%d", seed)
		}
		b.WriteString(s.Metric("last seeds", strings.Join(seeds, " ")) + "\n")
	}
	if m.err != nil {
		b.WriteString(s.Failed.Render(m.err.Error()) + "\n")
	}
	if !m.finished {
		b.WriteString(s.KeyHint.Render("ctrl+c: stop after in-flight chunks") + "\n")
	}
	return s.Panel.Render(strings.TrimRight(b.String(), "\n")) + "\n"
}

func (m ProgressModel) eta() string {
	n := len(m.durations)
	left := m.total - m.done
	if n == 0 || left <= 0 {
		return "-"
	}
	var sum float64
	for _, d := range m.durations {
		sum += d
	}
	return time.Duration(sum / float64(n) * float64(left) * float64(time.Second)).Round(time.Second).String()
}

// Done returns the finished state and the run error, if any.
func (m ProgressModel) Done() (bool, error) { return m.finished, m.err }

// TeaObserver forwards orchestrator progress to a running program.
type TeaObserver struct {
	P *tea.Program
}

func (o TeaObserver) RunStarted(total, pending int) {
	o.P.Send(RunStartedMsg{Total: total, Pending: pending})
}

func (o TeaObserver) ChunkDone(res recorder.Result, done, total int) {
	o.P.Send(ChunkDoneMsg{Seed: res.Seed, Frames: len(res.Keys), Done: done, Total: total})
}
