package ui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/tturner/labctl/internal/command"
	"github.com/tturner/labctl/internal/frame"
)

// Selection is what the command form collects.
type Selection struct {
	Command string
	Param   string
	Targets string // comma-separated actuator indices, empty for one exchange
}

// Request parses the collected parameter and target list.
func (s Selection) Request() (frame.Param, []uint16, error) {
	p, err := frame.ParseParam(s.Param)
	if err != nil {
		return frame.NoParam, nil, err
	}
	targets, err := ParseTargets(s.Targets)
	if err != nil {
		return frame.NoParam, nil, err
	}
	return p, targets, nil
}

// ParseTargets parses "0,1,2" or ranges like "0-3".
func ParseTargets(s string) ([]uint16, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var out []uint16
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		lo, hi, isRange := strings.Cut(part, "-")
		start, err := parseTarget(lo)
		if err != nil {
			return nil, err
		}
		end := start
		if isRange {
			if end, err = parseTarget(hi); err != nil {
				return nil, err
			}
			if end < start {
				return nil, fmt.Errorf("invalid target range %q", part)
			}
		}
		for t := start; t <= end; t++ {
			out = append(out, uint16(t))
		}
	}
	return out, nil
}

func parseTarget(s string) (int, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(s), 0, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid target %q", s)
	}
	return int(n), nil
}

// BuildCommandForm builds the form that picks a command from tbl and
// collects its parameter. Results land in sel.
func BuildCommandForm(tbl *command.Table, sel *Selection) *huh.Form {
	options := make([]huh.Option[string], 0, tbl.Len())
	for _, s := range tbl.Specs() {
		options = append(options, huh.NewOption(fmt.Sprintf("%s (%s)", s.Name, s.Kind), s.Name))
	}
	if sel.Command == "" && len(options) > 0 {
		sel.Command = options[0].Value
	}

	return huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Command").
				Description(fmt.Sprintf("Commands from %s.", tableLabel(tbl))).
				Key("command").
				Options(options...).
				Value(&sel.Command),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Parameter (optional)").
				Description("Integer, 0x hex, on/off or empty.").
				Key("param").
				Validate(func(v string) error {
					_, err := frame.ParseParam(v)
					return err
				}).
				Value(&sel.Param),
			huh.NewInput().
				Title("Targets (optional)").
				Description("Actuator indices such as 0,1,2 or 0-7.").
				Key("targets").
				Validate(func(v string) error {
					_, err := ParseTargets(v)
					return err
				}).
				Value(&sel.Targets),
		),
	)
}

// RunCommandForm shows the command form and returns the selection.
func RunCommandForm(tbl *command.Table) (Selection, error) {
	var sel Selection
	if tbl.Len() == 0 {
		return sel, fmt.Errorf("command table is empty")
	}
	if err := BuildCommandForm(tbl, &sel).Run(); err != nil {
		return sel, err
	}
	return sel, nil
}

func tableLabel(tbl *command.Table) string {
	if tbl.Name() != "" {
		return tbl.Name()
	}
	return "the command table"
}
