package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/tturner/labctl/internal/frame"
)

// PollFunc performs one report exchange.
type PollFunc func(ctx context.Context) (frame.Result, error)

const defaultHistory = 20

type sample struct {
	at  time.Time
	rtt time.Duration
	res frame.Result
	err error
}

type watchTickMsg time.Time

type watchSampleMsg sample

// WatchModel polls a report command on an interval and shows recent values.
type WatchModel struct {
	ctx      context.Context
	title    string
	interval time.Duration
	poll     PollFunc
	now      func() time.Time

	history  []sample
	max      int
	paused   bool
	polls    int
	failures int
	status   string
	width    int
}

// NewWatchModel creates a watch screen titled title.
func NewWatchModel(ctx context.Context, title string, interval time.Duration, poll PollFunc) WatchModel {
	if interval <= 0 {
		interval = time.Second
	}
	return WatchModel{
		ctx:      ctx,
		title:    title,
		interval: interval,
		poll:     poll,
		now:      time.Now,
		max:      defaultHistory,
	}
}

// Init implements tea.Model.
func (m WatchModel) Init() tea.Cmd {
	return m.pollCmd()
}

func (m WatchModel) pollCmd() tea.Cmd {
	ctx, poll, now := m.ctx, m.poll, m.now
	return func() tea.Msg {
		start := now()
		res, err := poll(ctx)
		return watchSampleMsg{at: start, rtt: now().Sub(start), res: res, err: err}
	}
}

func (m WatchModel) tickCmd() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg {
		return watchTickMsg(t)
	})
}

// Update implements tea.Model.
func (m WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case watchTickMsg:
		if m.paused {
			return m, m.tickCmd()
		}
		return m, m.pollCmd()

	case watchSampleMsg:
		s := sample(msg)
		m.polls++
		if s.err != nil {
			m.failures++
		}
		m.history = append(m.history, s)
		if len(m.history) > m.max {
			m.history = m.history[len(m.history)-m.max:]
		}
		return m, m.tickCmd()

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "p", " ":
			m.paused = !m.paused
			if m.paused {
				m.status = "Paused"
			} else {
				m.status = "Resumed"
			}
		case "c":
			m.history = nil
			m.status = "History cleared"
		case "y":
			last, ok := m.lastGood()
			if !ok {
				m.status = "Nothing to copy"
				break
			}
			if err := CopyToClipboard(FormatValue(last.res)); err != nil {
				m.status = fmt.Sprintf("Copy failed: %v", err)
			} else {
				m.status = "Value copied to clipboard"
			}
		}
		return m, nil
	}
	return m, nil
}

func (m WatchModel) lastGood() (sample, bool) {
	for i := len(m.history) - 1; i >= 0; i-- {
		if m.history[i].err == nil {
			return m.history[i], true
		}
	}
	return sample{}, false
}

// View implements tea.Model.
func (m WatchModel) View() string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render(m.title))
	sb.WriteString("\n")
	state := successStyle.Render("polling")
	if m.paused {
		state = warningStyle.Render("paused")
	}
	sb.WriteString(dimStyle.Render(fmt.Sprintf("every %s  polls %d  failures %d  ", m.interval, m.polls, m.failures)))
	sb.WriteString(state)
	sb.WriteString("\n\n")

	if len(m.history) == 0 {
		sb.WriteString(dimStyle.Render("waiting for first response..."))
		sb.WriteString("\n")
	}
	for i := len(m.history) - 1; i >= 0; i-- {
		s := m.history[i]
		ts := dimStyle.Render(s.at.Format("15:04:05.000"))
		if s.err != nil {
			fmt.Fprintf(&sb, "%s %s\n", ts, errorStyle.Render(s.err.Error()))
			continue
		}
		fmt.Fprintf(&sb, "%s %s %s\n", ts, successStyle.Render(FormatValue(s.res)), dimStyle.Render(fmt.Sprintf("%.1fms", float64(s.rtt.Microseconds())/1000)))
	}

	view := borderStyle.Render(strings.TrimRight(sb.String(), "\n"))
	footer := footerStyle.Render("p pause  y copy value  c clear  q quit")
	if m.status != "" {
		footer = footerStyle.Render(m.status) + "  " + footer
	}
	return view + "\n" + footer + "\n"
}

// RunWatch runs the watch screen until the user quits or ctx is done.
func RunWatch(ctx context.Context, m WatchModel) error {
	program := tea.NewProgram(m, tea.WithContext(ctx))
	_, err := program.Run()
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}
