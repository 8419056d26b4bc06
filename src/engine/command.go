package engine

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jinjor/desktop-synth/src/component"
	"github.com/jinjor/desktop-synth/src/dsp"
	"github.com/jinjor/desktop-synth/src/params"
)

var ErrCommand = errors.New("invalid command")

// ParseCommand splits a line on spaces and URL-unescapes every field.
func ParseCommand(line string) ([]string, error) {
	fields := strings.Split(strings.TrimSpace(line), " ")
	for i, item := range fields {
		escaped, err := url.QueryUnescape(item)
		if err != nil {
			return nil, err
		}
		fields[i] = escaped
	}
	return fields, nil
}

func usage(format string, args ...any) error {
	return fmt.Errorf("%w: usage: "+format, append([]any{ErrCommand}, args...)...)
}

// Apply runs one line command and returns its text reply.
func (e *Engine) Apply(command []string) (string, error) {
	if len(command) == 0 || command[0] == "" {
		return "", fmt.Errorf("%w: empty", ErrCommand)
	}
	args := command[1:]
	switch command[0] {
	case "create":
		if len(args) < 1 || len(args) > 3 {
			return "", usage("create TYPE [NAME] [CONFIG]")
		}
		t, err := component.ParseType(args[0])
		if err != nil {
			return "", err
		}
		var name string
		var doc []byte
		if len(args) > 1 {
			name = args[1]
		}
		if len(args) > 2 {
			doc = []byte(args[2])
		}
		id, err := e.CreateComponent(t, name, doc)
		if err != nil {
			return "", err
		}
		return id.String(), nil
	case "remove":
		if len(args) != 1 {
			return "", usage("remove ID")
		}
		id, err := component.ParseID(args[0])
		if err != nil {
			return "", err
		}
		return "", e.RemoveComponent(id)
	case "set":
		if len(args) != 3 && len(args) != 4 {
			return "", usage("set ID PARAM VALUE [LEVEL]")
		}
		id, t, level, err := parseTarget(args[0], args[1], args[3:])
		if err != nil {
			return "", err
		}
		kind := params.TraitsOf(t).Kind
		if level > 0 {
			kind = params.TraitsOf(params.Depth).Kind
		}
		v, err := parseParameterValue(t, kind, args[2])
		if err != nil {
			return "", err
		}
		return "", e.SetParameterAt(id, t, level, v)
	case "get":
		if len(args) != 2 && len(args) != 3 {
			return "", usage("get ID PARAM [LEVEL]")
		}
		id, t, level, err := parseTarget(args[0], args[1], args[2:])
		if err != nil {
			return "", err
		}
		v, err := e.ParameterAt(id, t, level)
		if err != nil {
			return "", err
		}
		return v.String(), nil
	case "connect", "disconnect":
		r, err := parseConnection(args)
		if err != nil {
			return "", err
		}
		if command[0] == "disconnect" {
			return "", e.Disconnect(r)
		}
		return "", e.Connect(r)
	case "state":
		if len(args) == 0 {
			return e.State().String(), nil
		}
		s, err := ParseState(args[0])
		if err != nil {
			return "", err
		}
		if err := e.SetState(context.Background(), s); err != nil {
			return "", err
		}
		return e.State().String(), nil
	case "list":
		return e.list(args)
	case "note_on":
		if len(args) != 1 && len(args) != 2 {
			return "", usage("note_on NOTE [VELOCITY]")
		}
		note, err := parseUint7(args[0])
		if err != nil {
			return "", err
		}
		velocity := uint8(100)
		if len(args) == 2 {
			if velocity, err = parseUint7(args[1]); err != nil {
				return "", err
			}
		}
		if !e.NoteOn(note, velocity) {
			return "", fmt.Errorf("note %d: %w", note, ErrBusy)
		}
		return "", nil
	case "note_off":
		if len(args) != 1 {
			return "", usage("note_off NOTE")
		}
		note, err := parseUint7(args[0])
		if err != nil {
			return "", err
		}
		if !e.NoteOff(note) {
			return "", fmt.Errorf("note %d: %w", note, ErrBusy)
		}
		return "", nil
	case "seq":
		return e.sequenceCommand(args)
	case "response":
		if len(args) != 1 {
			return "", usage("response ID")
		}
		id, err := component.ParseID(args[0])
		if err != nil {
			return "", err
		}
		values, err := e.FilterResponse(id)
		if err != nil {
			return "", err
		}
		s := "response"
		for _, v := range values {
			s += " " + strconv.FormatFloat(v, 'f', 6, 64)
		}
		return s, nil
	case "patch":
		b, err := yaml.Marshal(e.Snapshot())
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	return "", fmt.Errorf("%w: unknown command %q", ErrCommand, command[0])
}

func parseUint7(s string) (uint8, error) {
	v, err := strconv.ParseUint(s, 10, 8)
	if err != nil || v > 127 {
		return 0, fmt.Errorf("%w: %q is not in 0..127", ErrCommand, s)
	}
	return uint8(v), nil
}

func parseLevel(rest []string) (int, error) {
	if len(rest) == 0 {
		return 0, nil
	}
	level, err := strconv.Atoi(rest[0])
	if err != nil {
		return 0, fmt.Errorf("%w: invalid level %q", ErrCommand, rest[0])
	}
	return level, nil
}

func parseTarget(idStr, paramStr string, rest []string) (component.ID, params.Type, int, error) {
	id, err := component.ParseID(idStr)
	if err != nil {
		return 0, 0, 0, err
	}
	t, err := params.ParseType(paramStr)
	if err != nil {
		return 0, 0, 0, err
	}
	level, err := parseLevel(rest)
	if err != nil {
		return 0, 0, 0, err
	}
	return id, t, level, nil
}

// parseParameterValue also accepts waveform and filter names for the
// enumerated parameters.
func parseParameterValue(t params.Type, kind params.Kind, s string) (params.Value, error) {
	switch t {
	case params.Waveform:
		if w, err := dsp.ParseWaveform(s); err == nil {
			return params.Uint8(uint8(w)), nil
		}
	case params.FilterType:
		if f, err := dsp.ParseFilterType(s); err == nil {
			return params.Uint8(uint8(f)), nil
		}
	}
	return params.ParseValue(kind, s)
}

func parseEndpoint(s string, zero ...string) (component.ID, error) {
	for _, z := range zero {
		if s == z {
			return 0, nil
		}
	}
	return component.ParseID(s)
}

// parseConnection reads
//
//	signal FROM TO|sink
//	midi FROM|device TO
//	mod FROM TO PARAM [LEVEL]
func parseConnection(args []string) (ConnectionRequest, error) {
	if len(args) < 3 {
		return ConnectionRequest{}, usage("connect signal|midi|mod FROM TO [PARAM [LEVEL]]")
	}
	switch args[0] {
	case "signal":
		from, err := component.ParseID(args[1])
		if err != nil {
			return ConnectionRequest{}, err
		}
		to, err := parseEndpoint(args[2], "sink")
		if err != nil {
			return ConnectionRequest{}, err
		}
		return Signal(from, to), nil
	case "midi":
		from, err := parseEndpoint(args[1], "device")
		if err != nil {
			return ConnectionRequest{}, err
		}
		to, err := component.ParseID(args[2])
		if err != nil {
			return ConnectionRequest{}, err
		}
		return Midi(from, to), nil
	case "mod":
		if len(args) != 4 && len(args) != 5 {
			return ConnectionRequest{}, usage("connect mod FROM TO PARAM [LEVEL]")
		}
		from, err := component.ParseID(args[1])
		if err != nil {
			return ConnectionRequest{}, err
		}
		to, t, level, err := parseTarget(args[2], args[3], args[4:])
		if err != nil {
			return ConnectionRequest{}, err
		}
		return Modulation(from, to, t, level), nil
	}
	return ConnectionRequest{}, fmt.Errorf("%w: unknown connection kind %q", ErrCommand, args[0])
}

func (e *Engine) list(args []string) (string, error) {
	what := "components"
	if len(args) > 0 {
		what = args[0]
	}
	var lines []string
	switch what {
	case "components":
		for _, c := range e.Components() {
			lines = append(lines, c.String())
		}
	case "types":
		for _, d := range e.Descriptors() {
			lines = append(lines, fmt.Sprintf("%v %v", d.Name, d.Capabilities))
		}
	case "waveforms":
		lines = e.Waveforms()
	case "filters":
		lines = e.FilterTypes()
	case "devices":
		devices, err := e.Devices()
		if err != nil {
			return "", err
		}
		lines = devices
	default:
		return "", usage("list [components|types|waveforms|filters|devices]")
	}
	return strings.Join(lines, "\n"), nil
}

// sequenceCommand reads
//
//	seq ID add|remove PITCH VELOCITY START DURATION
//	seq ID clear|list
func (e *Engine) sequenceCommand(args []string) (string, error) {
	if len(args) < 2 {
		return "", usage("seq ID add|remove|clear|list ...")
	}
	id, err := component.ParseID(args[0])
	if err != nil {
		return "", err
	}
	switch args[1] {
	case "clear":
		return "", e.ClearSequence(id)
	case "list":
		notes, err := e.SequenceNotes(id)
		if err != nil {
			return "", err
		}
		var lines []string
		for _, n := range notes {
			lines = append(lines, n.String())
		}
		return strings.Join(lines, "\n"), nil
	case "add", "remove":
		if len(args) != 6 {
			return "", usage("seq ID %s PITCH VELOCITY START DURATION", args[1])
		}
		n, err := parseSequenceNote(args[2:])
		if err != nil {
			return "", err
		}
		if args[1] == "add" {
			return "", e.AddSequenceNote(id, n)
		}
		return "", e.RemoveSequenceNote(id, n)
	}
	return "", fmt.Errorf("%w: unknown seq command %q", ErrCommand, args[1])
}

func parseSequenceNote(args []string) (component.SequenceNote, error) {
	pitch, err := parseUint7(args[0])
	if err != nil {
		return component.SequenceNote{}, err
	}
	velocity, err := parseUint7(args[1])
	if err != nil {
		return component.SequenceNote{}, err
	}
	start, err := strconv.ParseFloat(args[2], 64)
	if err != nil {
		return component.SequenceNote{}, fmt.Errorf("%w: invalid start %q", ErrCommand, args[2])
	}
	duration, err := strconv.ParseFloat(args[3], 64)
	if err != nil {
		return component.SequenceNote{}, fmt.Errorf("%w: invalid duration %q", ErrCommand, args[3])
	}
	return component.SequenceNote{Pitch: pitch, Velocity: velocity, Start: start, Duration: duration}, nil
}
