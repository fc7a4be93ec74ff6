package netlist

import (
	"bufio"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

type AnalysisType int

const (
	AnalysisOP AnalysisType = iota
	AnalysisTRAN
	AnalysisAC
	AnalysisDC
	AnalysisNOISE
)

func (a AnalysisType) String() string {
	switch a {
	case AnalysisTRAN:
		return "tran"
	case AnalysisAC:
		return "ac"
	case AnalysisDC:
		return "dc"
	case AnalysisNOISE:
		return "noise"
	default:
		return "op"
	}
}

// ErrSyntax marks malformed netlist lines.
var ErrSyntax = errors.New("netlist: syntax error")

type NetlistData struct {
	Title     string
	Elements  []Element             // Top level elements
	Models    map[string]Model      // Model cards by name
	Subckts   map[string]*SubcktDef // .subckt bodies by name
	Options   map[string]string     // .options and .temp, lower-case keys
	Analysis  AnalysisType
	TranParam struct {
		TStep  float64 // timestep
		TStop  float64 // stop time
		TStart float64 // start time
		TMax   float64 // max timestep
		UIC    bool    // Use Initial Conditions
	}
	ACParam struct {
		Sweep  string  // DEC, OCT, LIN
		FStart float64 // start frequency
		Points int     // points per interval
		FStop  float64 // stop frequency
	}
	DCParam struct {
		Source1    string
		Start1     float64
		Stop1      float64
		Increment1 float64
		Source2    string
		Start2     float64
		Stop2      float64
		Increment2 float64
	}
	NoiseParam struct {
		Output string // output node
		Ref    string // reference node, ground when empty
		Input  string // input source name
		Sweep  string
		Points int
		FStart float64
		FStop  float64
	}
}

type Element struct {
	Type   string            // Part type (R, L, C, V, Q, M, X ...)
	Name   string            // Part name
	Nodes  []string          // Node names, empty for Q, M and X until resolved
	Value  float64           // Part value
	Args   []string          // Positional tokens after the name
	Params map[string]string // key=value parameters, lower-case keys
	Off    bool
}

// Model is a .model card. Type is lower case (d, npn, pnp, nmos, pmos).
type Model struct {
	Name   string
	Type   string
	Params map[string]float64
}

// SubcktDef is a parsed .subckt body.
type SubcktDef struct {
	Name     string
	Pins     []string
	Elements []Element
}

var unitMap = map[string]float64{
	"t":   1e12,    // tera
	"g":   1e9,     // giga
	"meg": 1e6,     // mega
	"k":   1e3,     // kilo
	"mil": 25.4e-6, // thousandth of an inch
	"m":   1e-3,    // milli
	"u":   1e-6,    // micro
	"n":   1e-9,    // nano
	"p":   1e-12,   // pico
	"f":   1e-15,   // femto
}

var (
	valueRe = regexp.MustCompile(`^([-+]?(?:\d+\.?\d*|\.\d+)(?:[eE][-+]?\d+)?)(meg|mil|[tgkmunpf])?[a-z]*$`)
	spaceRe = regexp.MustCompile(`\s+`)
)

// ParseValue - Parse value and factor. 1k -> 1000, 1meg -> 1e6, 10pF -> 1e-11
func ParseValue(val string) (float64, error) {
	matches := valueRe.FindStringSubmatch(strings.ToLower(strings.TrimSpace(val)))
	if matches == nil {
		return 0, errors.Wrapf(ErrSyntax, "invalid value format %q", val)
	}
	num, err := strconv.ParseFloat(matches[1], 64)
	if err != nil {
		return 0, errors.Wrapf(ErrSyntax, "invalid value %q", val)
	}
	if multiplier, ok := unitMap[matches[2]]; ok {
		num *= multiplier
	}
	return num, nil
}

// Parse reads a SPICE netlist. The first line is the title.
func Parse(input string) (*NetlistData, error) {
	scanner := bufio.NewScanner(strings.NewReader(input))
	p := &parser{data: &NetlistData{
		Models:  make(map[string]Model),
		Subckts: make(map[string]*SubcktDef),
		Options: make(map[string]string),
	}}

	if scanner.Scan() {
		p.data.Title = strings.TrimSpace(strings.TrimPrefix(scanner.Text(), "*"))
	}

	var current string
	lineNo, start := 1, 1
	flush := func() error {
		if current == "" {
			return nil
		}
		err := p.parseLine(current)
		current = ""
		return errors.Wrapf(err, "line %d", start)
	}

	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "*") {
			continue
		}
		// inline comments
		for _, mark := range []string{";", "$ "} {
			if idx := strings.Index(line, mark); idx >= 0 {
				line = strings.TrimSpace(line[:idx])
			}
		}
		if strings.HasPrefix(line, "+") {
			current += " " + strings.TrimSpace(line[1:])
			continue
		}
		if err := flush(); err != nil {
			return nil, err
		}
		current, start = line, lineNo
	}
	if err := flush(); err != nil {
		return nil, err
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "reading netlist")
	}
	if p.subckt != nil {
		return nil, errors.Wrapf(ErrSyntax, ".subckt %s without .ends", p.subckt.Name)
	}
	if err := p.data.checkSubckts(); err != nil {
		return nil, err
	}
	return p.data, nil
}

type parser struct {
	data   *NetlistData
	subckt *SubcktDef // definition being read
	done   bool       // .end seen
}

func (p *parser) parseLine(line string) error {
	if p.done {
		return nil
	}
	line = spaceRe.ReplaceAllString(line, " ")
	// "a = b" -> "a=b"
	line = strings.ReplaceAll(strings.ReplaceAll(line, " =", "="), "= ", "=")

	if strings.HasPrefix(line, ".") {
		return p.parseDotOperator(line)
	}

	element, err := parseElement(line)
	if err != nil {
		return err
	}
	if p.subckt != nil {
		p.subckt.Elements = append(p.subckt.Elements, *element)
	} else {
		p.data.Elements = append(p.data.Elements, *element)
	}
	return nil
}

// Parse .op, .tran, .ac, .dc, .noise, .model, .subckt, .options, .temp
func (p *parser) parseDotOperator(line string) error {
	var err error
	data := p.data

	fields := strings.Fields(line)
	cmd := strings.ToLower(fields[0])

	if p.subckt != nil && cmd != ".ends" && cmd != ".model" {
		return errors.Wrapf(ErrSyntax, "%s inside .subckt %s", cmd, p.subckt.Name)
	}

	switch cmd {
	case ".model":
		return parseModel(data, line)

	case ".subckt":
		if len(fields) < 3 {
			return errors.Wrap(ErrSyntax, ".subckt needs a name and pins")
		}
		name := strings.ToLower(fields[1])
		if _, exists := data.Subckts[name]; exists {
			return errors.Wrapf(ErrSyntax, "duplicate .subckt %s", fields[1])
		}
		p.subckt = &SubcktDef{Name: fields[1], Pins: fields[2:]}

	case ".ends":
		if p.subckt == nil {
			return errors.Wrap(ErrSyntax, ".ends without .subckt")
		}
		data.Subckts[strings.ToLower(p.subckt.Name)] = p.subckt
		p.subckt = nil

	case ".end":
		p.done = true

	case ".op":
		data.Analysis = AnalysisOP

	case ".options", ".option", ".opt":
		for _, f := range fields[1:] {
			key, value, found := strings.Cut(f, "=")
			if !found {
				value = "1"
			}
			data.Options[strings.ToLower(key)] = value
		}

	case ".temp":
		if len(fields) < 2 {
			return errors.Wrap(ErrSyntax, ".temp needs a value")
		}
		if _, err := ParseValue(fields[1]); err != nil {
			return err
		}
		data.Options["temp"] = fields[1]

	case ".tran":
		data.Analysis = AnalysisTRAN
		if len(fields) < 3 {
			return errors.Wrap(ErrSyntax, "insufficient tran parameters, need at least tstep and tstop")
		}
		if data.TranParam.TStep, err = ParseValue(fields[1]); err != nil {
			return errors.Wrap(err, "tstep")
		}
		if data.TranParam.TStop, err = ParseValue(fields[2]); err != nil {
			return errors.Wrap(err, "tstop")
		}
		pos := 0
		for _, f := range fields[3:] {
			if strings.EqualFold(f, "uic") {
				data.TranParam.UIC = true
				continue
			}
			v, err := ParseValue(f)
			if err != nil {
				return err
			}
			if pos == 0 {
				data.TranParam.TStart = v
			} else {
				data.TranParam.TMax = v
			}
			pos++
		}
		if data.TranParam.TMax == 0 {
			data.TranParam.TMax = data.TranParam.TStep
		}

	case ".ac":
		data.Analysis = AnalysisAC
		if len(fields) < 5 {
			return errors.Wrap(ErrSyntax, "insufficient AC parameters, need sweep type, points, fstart, and fstop")
		}
		ac := &data.ACParam
		if ac.Sweep, ac.Points, ac.FStart, ac.FStop, err = parseSweep(fields[1:5]); err != nil {
			return err
		}

	case ".dc":
		data.Analysis = AnalysisDC
		if len(fields) != 5 && len(fields) != 9 {
			return errors.Wrap(ErrSyntax, "dc sweep needs source start stop incr [source2 start2 stop2 incr2]")
		}
		dc := &data.DCParam
		dc.Source1 = fields[1]
		if dc.Start1, dc.Stop1, dc.Increment1, err = parseRange(fields[2:5]); err != nil {
			return err
		}
		if len(fields) == 9 {
			dc.Source2 = fields[5]
			if dc.Start2, dc.Stop2, dc.Increment2, err = parseRange(fields[6:9]); err != nil {
				return err
			}
		}

	case ".noise":
		data.Analysis = AnalysisNOISE
		// the output may be written v(out, ref) with a space after the comma
		rest := strings.Join(fields[1:], " ")
		rest = strings.ReplaceAll(rest, ", ", ",")
		f := strings.Fields(rest)
		if len(f) < 6 {
			return errors.Wrap(ErrSyntax, "noise needs v(out[,ref]) src sweep points fstart fstop")
		}
		np := &data.NoiseParam
		if np.Output, np.Ref, err = parseOutput(f[0]); err != nil {
			return err
		}
		np.Input = f[1]
		if np.Sweep, np.Points, np.FStart, np.FStop, err = parseSweep(f[2:6]); err != nil {
			return err
		}

	default:
		return errors.Wrapf(ErrSyntax, "unsupported control line %s", fields[0])
	}
	return nil
}

func parseSweep(f []string) (sweep string, points int, start, stop float64, err error) {
	sweep = strings.ToUpper(f[0])
	if sweep != "DEC" && sweep != "OCT" && sweep != "LIN" {
		return "", 0, 0, 0, errors.Wrapf(ErrSyntax, "invalid sweep type %s", f[0])
	}
	if points, err = strconv.Atoi(f[1]); err != nil || points < 1 {
		return "", 0, 0, 0, errors.Wrapf(ErrSyntax, "invalid points number %s", f[1])
	}
	if start, err = ParseValue(f[2]); err != nil {
		return "", 0, 0, 0, err
	}
	if stop, err = ParseValue(f[3]); err != nil {
		return "", 0, 0, 0, err
	}
	if start <= 0 && sweep != "LIN" || stop < start {
		return "", 0, 0, 0, errors.Wrapf(ErrSyntax, "invalid frequency range %g..%g", start, stop)
	}
	return sweep, points, start, stop, nil
}

func parseRange(f []string) (start, stop, incr float64, err error) {
	if start, err = ParseValue(f[0]); err != nil {
		return
	}
	if stop, err = ParseValue(f[1]); err != nil {
		return
	}
	if incr, err = ParseValue(f[2]); err != nil {
		return
	}
	if incr == 0 {
		err = errors.Wrap(ErrSyntax, "zero sweep increment")
	}
	return
}

// parseOutput splits v(out) or v(out,ref).
func parseOutput(s string) (out, ref string, err error) {
	lower := strings.ToLower(s)
	if !strings.HasPrefix(lower, "v(") || !strings.HasSuffix(s, ")") {
		return "", "", errors.Wrapf(ErrSyntax, "noise output must be v(node), got %s", s)
	}
	inner := s[2 : len(s)-1]
	out, ref, _ = strings.Cut(inner, ",")
	return strings.TrimSpace(out), strings.TrimSpace(ref), nil
}

var modelTypes = map[string]bool{"d": true, "npn": true, "pnp": true, "nmos": true, "pmos": true}

func parseModel(data *NetlistData, line string) error {
	line = strings.NewReplacer("(", " ", ")", " ").Replace(line)
	fields := strings.Fields(line)
	if len(fields) < 3 {
		return errors.Wrap(ErrSyntax, "insufficient model parameters")
	}

	modelName := fields[1]
	modelType := strings.ToLower(fields[2])
	if !modelTypes[modelType] {
		return errors.Wrapf(ErrSyntax, "unsupported model type %s", fields[2])
	}

	params := make(map[string]float64)
	for _, pair := range fields[3:] {
		name, value, found := strings.Cut(pair, "=")
		if !found {
			return errors.Wrapf(ErrSyntax, "model %s: parameter %q without value", modelName, pair)
		}
		v, err := ParseValue(value)
		if err != nil {
			return errors.Wrapf(err, "model %s parameter %s", modelName, name)
		}
		params[strings.ToLower(name)] = v
	}

	if level, ok := params["level"]; ok {
		if level != 1 {
			return errors.Wrapf(ErrSyntax, "model %s: only level 1 is supported", modelName)
		}
		delete(params, "level")
	}

	data.Models[strings.ToLower(modelName)] = Model{
		Name:   modelName,
		Type:   modelType,
		Params: params,
	}
	return nil
}

// Parse circuit element
func parseElement(line string) (*Element, error) {
	fields := strings.Fields(line)
	if len(fields) < 3 {
		return nil, errors.Wrapf(ErrSyntax, "invalid element format: %s", line)
	}

	elem := &Element{
		Name:   fields[0],
		Type:   strings.ToUpper(fields[0][:1]),
		Params: make(map[string]string),
	}

	switch elem.Type {
	case "V", "I":
		return parseSource(elem, fields)

	case "R", "C", "L":
		if len(fields) < 4 {
			return nil, errors.Wrapf(ErrSyntax, "%s needs two nodes and a value", elem.Name)
		}
		elem.Nodes = fields[1:3]
		splitArgs(elem, fields[3:])
		if len(elem.Args) != 1 {
			return nil, errors.Wrapf(ErrSyntax, "%s needs exactly one value", elem.Name)
		}
		value, err := ParseValue(elem.Args[0])
		if err != nil {
			return nil, err
		}
		elem.Value = value
		return elem, nil

	case "K":
		if len(fields) != 4 {
			return nil, errors.Wrapf(ErrSyntax, "%s needs two inductors and a coefficient", elem.Name)
		}
		coefficient, err := ParseValue(fields[3])
		if err != nil {
			return nil, errors.Wrap(err, "coupling coefficient")
		}
		if coefficient < -1 || coefficient > 1 {
			return nil, errors.Wrapf(ErrSyntax, "coupling coefficient must be between -1 and 1: %g", coefficient)
		}
		elem.Args = fields[1:3]
		elem.Value = coefficient
		return elem, nil

	case "D", "Q", "M", "X":
		splitArgs(elem, fields[1:])
		return elem, nil
	}
	return nil, errors.Wrapf(ErrSyntax, "unsupported element %s", elem.Name)
}

// splitArgs sorts tokens into positional arguments, key=value parameters
// and the OFF flag.
func splitArgs(elem *Element, tokens []string) {
	for _, t := range tokens {
		switch key, value, found := strings.Cut(t, "="); {
		case found:
			elem.Params[strings.ToLower(key)] = value
		case strings.EqualFold(t, "off"):
			elem.Off = true
		default:
			elem.Args = append(elem.Args, t)
		}
	}
}

// parseSource reads "[DC] v", "AC mag [phase]" and one of SIN, PULSE or
// PWL in any order.
func parseSource(elem *Element, fields []string) (*Element, error) {
	if len(fields) < 4 {
		return nil, errors.Wrapf(ErrSyntax, "insufficient %s source parameters", elem.Name)
	}
	elem.Nodes = []string{fields[1], fields[2]}
	elem.Params["type"] = "dc"

	remaining := strings.Join(fields[3:], " ")
	remaining = strings.ReplaceAll(remaining, "(", " ( ")
	remaining = strings.ReplaceAll(remaining, ")", " ) ")
	words := strings.Fields(remaining)

	for i := 0; i < len(words); i++ {
		word := strings.ToLower(words[i])
		switch word {
		case "dc":
			if i+1 >= len(words) {
				return nil, errors.Wrap(ErrSyntax, "missing DC value")
			}
			i++
			elem.Params["dc"] = words[i]

		case "ac":
			if i+1 >= len(words) {
				return nil, errors.Wrap(ErrSyntax, "missing AC magnitude")
			}
			i++
			elem.Params["ac"] = words[i]
			if i+1 < len(words) {
				if _, err := ParseValue(words[i+1]); err == nil {
					i++
					elem.Params["acphase"] = words[i]
				}
			}

		case "sin", "pulse", "pwl":
			var args []string
			j := i + 1
			if j < len(words) && words[j] == "(" {
				j++
			}
			for ; j < len(words) && words[j] != ")"; j++ {
				args = append(args, words[j])
			}
			elem.Params["type"] = word
			elem.Params[word] = strings.Join(args, " ")
			i = j

		case "(", ")":

		default:
			if _, err := ParseValue(words[i]); err != nil {
				return nil, errors.Wrapf(ErrSyntax, "unsupported source parameter %s", words[i])
			}
			elem.Params["dc"] = words[i]
		}
	}

	if dc, ok := elem.Params["dc"]; ok {
		v, err := ParseValue(dc)
		if err != nil {
			return nil, err
		}
		elem.Value = v
	}
	return elem, nil
}

// checkSubckts rejects instances of unknown or recursive definitions.
func (n *NetlistData) checkSubckts() error {
	const (
		visiting = 1
		done     = 2
	)
	state := make(map[string]int)
	var visit func(name string) error
	visit = func(name string) error {
		def, ok := n.Subckts[name]
		if !ok {
			return errors.Wrapf(ErrSyntax, "undefined subcircuit %s", name)
		}
		switch state[name] {
		case visiting:
			return errors.Wrapf(ErrSyntax, "recursive subcircuit %s", def.Name)
		case done:
			return nil
		}
		state[name] = visiting
		for _, e := range def.Elements {
			if e.Type == "X" && len(e.Args) > 0 {
				if err := visit(strings.ToLower(e.Args[len(e.Args)-1])); err != nil {
					return err
				}
			}
		}
		state[name] = done
		return nil
	}
	for _, e := range n.Elements {
		if e.Type == "X" && len(e.Args) > 0 {
			if err := visit(strings.ToLower(e.Args[len(e.Args)-1])); err != nil {
				return err
			}
		}
	}
	for name := range n.Subckts {
		if err := visit(name); err != nil {
			return err
		}
	}
	return nil
}
