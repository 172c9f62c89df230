package scenario

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"os"
	"regexp"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/vango-dev/cellkit/internal/errors"
)

// Cell kinds.
const (
	KindPlain  = "plain"
	KindSpread = "spread"
	KindPulse  = "pulse"
)

// Watch channels.
const (
	ChannelChanged   = "changed"
	ChannelActivated = "activated"
)

// Step actions.
const (
	ActionSet        = "set"
	ActionAdd        = "add"
	ActionTrig       = "trig"
	ActionReset      = "reset"
	ActionDispose    = "dispose"
	ActionDisconnect = "disconnect"
	ActionSignal     = "signal"
	ActionExpect     = "expect"
	ActionLog        = "log"
)

// Scenario is a parsed scenario file.
type Scenario struct {
	Name        string        `yaml:"name"`
	Description string        `yaml:"description"`
	Cells       []CellDecl    `yaml:"cells"`
	Derived     []DerivedDecl `yaml:"derived"`
	Hosts       []HostDecl    `yaml:"hosts"`
	Watches     []WatchDecl   `yaml:"watch"`
	Steps       []Step        `yaml:"steps"`

	// File is the path the scenario was read from.
	File string `yaml:"-"`

	src []byte
}

// CellDecl declares a settable cell or a pulse.
type CellDecl struct {
	Name      string `yaml:"name"`
	Kind      string `yaml:"kind"`
	Value     any    `yaml:"value"`
	Fallback  any    `yaml:"fallback"`
	Sensitive bool   `yaml:"sensitive"`
	Silent    bool   `yaml:"silent"`
	Transient bool   `yaml:"transient"`

	Pos
}

// DerivedDecl declares a derived cell over named sources and constants.
type DerivedDecl struct {
	Name      string   `yaml:"name"`
	Op        string   `yaml:"op"`
	Of        []string `yaml:"of"`
	With      []any    `yaml:"with"`
	Sensitive bool     `yaml:"sensitive"`

	Pos
}

// HostDecl declares a lifetime scope. Disposing a host disposes its children.
type HostDecl struct {
	Name   string `yaml:"name"`
	Parent string `yaml:"parent"`

	Pos
}

// WatchDecl subscribes a log recorder to a cell.
type WatchDecl struct {
	ID      string `yaml:"id"`
	Cell    string `yaml:"cell"`
	Channel string `yaml:"channel"`
	Host    string `yaml:"host"`
	// Key is the callback identity; it defaults to ID.
	Key  string `yaml:"key"`
	Once bool   `yaml:"once"`

	Pos
}

// Step is one action of a scenario.
type Step struct {
	Action string
	Target string

	Value    any
	HasValue bool
	Times    int
	Host     string
	Watch    string
	Error    *bool
	Log      []string

	Pos
}

// Pos is a position in the scenario file.
type Pos struct {
	Line   int `yaml:"-"`
	Column int `yaml:"-"`
}

func (p *Pos) at(n *yaml.Node) {
	p.Line, p.Column = n.Line, n.Column
}

var (
	cellKeys    = []string{"name", "kind", "value", "fallback", "sensitive", "silent", "transient"}
	derivedKeys = []string{"name", "op", "of", "with", "sensitive"}
	hostKeys    = []string{"name", "parent"}
	watchKeys   = []string{"id", "cell", "channel", "host", "key", "once"}
)

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *CellDecl) UnmarshalYAML(n *yaml.Node) error {
	if err := checkKeys(n, "cell", cellKeys); err != nil {
		return err
	}
	type plain CellDecl
	if err := n.Decode((*plain)(d)); err != nil {
		return err
	}
	d.at(n)
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *DerivedDecl) UnmarshalYAML(n *yaml.Node) error {
	if err := checkKeys(n, "derived cell", derivedKeys); err != nil {
		return err
	}
	type plain DerivedDecl
	if err := n.Decode((*plain)(d)); err != nil {
		return err
	}
	d.at(n)
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *HostDecl) UnmarshalYAML(n *yaml.Node) error {
	if err := checkKeys(n, "host", hostKeys); err != nil {
		return err
	}
	type plain HostDecl
	if err := n.Decode((*plain)(d)); err != nil {
		return err
	}
	d.at(n)
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *WatchDecl) UnmarshalYAML(n *yaml.Node) error {
	if err := checkKeys(n, "watch", watchKeys); err != nil {
		return err
	}
	type plain WatchDecl
	if err := n.Decode((*plain)(d)); err != nil {
		return err
	}
	d.at(n)
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler. A step is a mapping with
// exactly one action key plus the parameters of that action.
func (s *Step) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.MappingNode {
		return errorAt(errors.New("C116").WithDetail("a step must be a mapping"), n)
	}
	s.at(n)

	for i := 0; i+1 < len(n.Content); i += 2 {
		k, v := n.Content[i], n.Content[i+1]
		var err error
		switch k.Value {
		case ActionSet, ActionAdd, ActionTrig, ActionReset, ActionDispose, ActionDisconnect, ActionSignal, ActionExpect:
			if err = s.setAction(k); err == nil {
				err = v.Decode(&s.Target)
			}
		case ActionLog:
			if err = s.setAction(k); err == nil {
				err = v.Decode(&s.Log)
				if s.Log == nil {
					s.Log = []string{}
				}
			}
		case "value":
			s.HasValue = true
			err = v.Decode(&s.Value)
		case "times":
			err = v.Decode(&s.Times)
		case "host":
			err = v.Decode(&s.Host)
		case "watch":
			err = v.Decode(&s.Watch)
		case "error":
			var b bool
			err = v.Decode(&b)
			s.Error = &b
		default:
			return errorAt(errors.New("C116").WithDetailf("unknown step key %q", k.Value), k)
		}
		if err != nil {
			return err
		}
	}

	if s.Action == "" {
		return errorAt(errors.New("C116").WithDetail("the step has no action"), n)
	}
	return nil
}

func (s *Step) setAction(k *yaml.Node) error {
	if s.Action != "" {
		return errorAt(errors.New("C116").WithDetailf("step has both %s and %s", s.Action, k.Value), k)
	}
	s.Action = k.Value
	return nil
}

func checkKeys(n *yaml.Node, what string, allowed []string) error {
	if n.Kind != yaml.MappingNode {
		return errorAt(errors.New("C111").WithDetailf("a %s must be a mapping", what), n)
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		k := n.Content[i]
		if !contains(allowed, k.Value) {
			return errorAt(errors.New("C111").WithDetailf("unknown %s key %q", what, k.Value), k)
		}
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

func errorAt(e *errors.Error, n *yaml.Node) *errors.Error {
	e.Location = &errors.Location{Line: n.Line, Column: n.Column}
	return e
}

// Load reads and parses a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New("C110").WithDetail(path).Wrap(err)
	}
	return Parse(data, path)
}

var yamlLine = regexp.MustCompile(`line (\d+)`)

// Parse parses a scenario. file is used in error locations only.
func Parse(data []byte, file string) (*Scenario, error) {
	s := &Scenario{File: file, src: data}
	if err := yaml.Unmarshal(data, s); err != nil {
		var ce *errors.Error
		if !stderrors.As(err, &ce) {
			ce = errors.New("C111").WithDetail(err.Error()).Wrap(err)
			if m := yamlLine.FindStringSubmatch(err.Error()); m != nil {
				line, _ := strconv.Atoi(m[1])
				ce.Location = &errors.Location{Line: line}
			}
		}
		return nil, s.locate(ce)
	}
	s.File, s.src = file, data
	if s.Name == "" {
		s.Name = file
	}
	return s, nil
}

// locate fills the file name and the surrounding source lines of e.
func (s *Scenario) locate(e *errors.Error) *errors.Error {
	if e.Location == nil {
		if s.File != "" {
			e.Location = &errors.Location{File: s.File}
		}
		return e
	}
	e.Location.File = s.File
	if e.Location.Line > 0 {
		e.Context = sourceLines(s.src, e.Location.Line, 5)
	}
	return e
}

// errorFor builds a coded error positioned at p.
func (s *Scenario) errorFor(code string, p Pos, format string, args ...any) *errors.Error {
	e := errors.New(code).WithDetail(fmt.Sprintf(format, args...))
	if p.Line > 0 {
		e.Location = &errors.Location{Line: p.Line, Column: p.Column}
	}
	return s.locate(e)
}

func sourceLines(src []byte, target, size int) []string {
	lines := bytes.Split(src, []byte("\n"))
	start := target - size/2
	if start < 1 {
		start = 1
	}
	end := target + size/2
	if end > len(lines) {
		end = len(lines)
	}
	var out []string
	for i := start; i <= end; i++ {
		out = append(out, string(lines[i-1]))
	}
	return out
}
