package netlist

import (
	"strconv"
	"strings"

	"github.com/edp1096/semispice/pkg/device"
	"github.com/edp1096/semispice/pkg/subckt"
	"github.com/pkg/errors"
)

// ErrUndefinedModel is returned for an instance naming a missing .model.
var ErrUndefinedModel = errors.New("netlist: undefined model")

// Builder turns parsed elements into devices. Every instance naming the
// same .model shares one model object.
type Builder struct {
	data *NetlistData

	// Mode is the default for X instances without a mode= parameter.
	Mode subckt.Mode
	// MaxLocalIterations is handed to local instances.
	MaxLocalIterations int

	bjtModels map[string]*device.BJTModel
	mosModels map[string]*device.MosfetModel
	defs      map[string]*subckt.Definition
}

func NewBuilder(data *NetlistData, mode subckt.Mode) *Builder {
	return &Builder{
		data:               data,
		Mode:               mode,
		MaxLocalIterations: 1,
		bjtModels:          make(map[string]*device.BJTModel),
		mosModels:          make(map[string]*device.MosfetModel),
		defs:               make(map[string]*subckt.Definition),
	}
}

// Devices creates the top level devices.
func (b *Builder) Devices() ([]device.Device, error) {
	return b.build(b.data.Elements, "")
}

func (b *Builder) build(elems []Element, prefix string) ([]device.Device, error) {
	devs := make([]device.Device, 0, len(elems))
	inductors := make(map[string]*device.Inductor)
	var mutuals []*device.Mutual

	for _, elem := range elems {
		local := elem.Name
		if prefix != "" {
			elem.Name = prefix + "/" + elem.Name
		}
		dev, err := b.CreateDevice(elem)
		if err != nil {
			return nil, errors.Wrapf(err, "creating device %s", elem.Name)
		}
		switch d := dev.(type) {
		case *device.Inductor:
			inductors[strings.ToLower(local)] = d
		case *device.Mutual:
			mutuals = append(mutuals, d)
		}
		devs = append(devs, dev)
	}

	for _, k := range mutuals {
		for i, name := range k.GetInductorNames() {
			ind, ok := inductors[strings.ToLower(name)]
			if !ok {
				return nil, errors.Errorf("mutual %s: inductor %s not found", k.GetName(), name)
			}
			if err := k.SetInductor(i, ind); err != nil {
				return nil, errors.Wrapf(err, "mutual %s", k.GetName())
			}
		}
	}
	return devs, nil
}

func (b *Builder) model(name string, types ...string) (Model, error) {
	m, ok := b.data.Models[strings.ToLower(name)]
	if !ok {
		return Model{}, errors.Wrapf(ErrUndefinedModel, "%s", name)
	}
	for _, t := range types {
		if m.Type == t {
			return m, nil
		}
	}
	return Model{}, errors.Errorf("model %s is %s, want %s", name, m.Type, strings.Join(types, "/"))
}

func (b *Builder) bjtModel(name string) (*device.BJTModel, error) {
	key := strings.ToLower(name)
	if m, ok := b.bjtModels[key]; ok {
		return m, nil
	}
	card, err := b.model(name, "npn", "pnp")
	if err != nil {
		return nil, err
	}
	m := device.NewBJTModel(card.Name, card.Type)
	if err := m.SetParameters(card.Params); err != nil {
		return nil, errors.Wrapf(err, "model %s", card.Name)
	}
	b.bjtModels[key] = m
	return m, nil
}

func (b *Builder) mosModel(name string) (*device.MosfetModel, error) {
	key := strings.ToLower(name)
	if m, ok := b.mosModels[key]; ok {
		return m, nil
	}
	card, err := b.model(name, "nmos", "pmos")
	if err != nil {
		return nil, err
	}
	m := device.NewMosfetModel(card.Name, card.Type)
	if err := m.SetParameters(card.Params); err != nil {
		return nil, errors.Wrapf(err, "model %s", card.Name)
	}
	b.mosModels[key] = m
	return m, nil
}

// definition wraps a .subckt body so every instance builds its own devices.
func (b *Builder) definition(name string) (*subckt.Definition, error) {
	key := strings.ToLower(name)
	if def, ok := b.defs[key]; ok {
		return def, nil
	}
	body, ok := b.data.Subckts[key]
	if !ok {
		return nil, errors.Errorf("undefined subcircuit %s", name)
	}
	def := &subckt.Definition{
		Name: body.Name,
		Pins: body.Pins,
		Build: func(prefix string) ([]device.Device, error) {
			return b.build(body.Elements, prefix)
		},
	}
	b.defs[key] = def
	return def, nil
}

// CreateDevice builds one device from a parsed element.
func (b *Builder) CreateDevice(elem Element) (device.Device, error) {
	switch elem.Type {
	case "R":
		r := device.NewResistor(elem.Name, elem.Nodes, elem.Value)
		for name, target := range map[string]*float64{"tc1": &r.Tc1, "tc2": &r.Tc2} {
			if s, ok := elem.Params[name]; ok {
				v, err := ParseValue(s)
				if err != nil {
					return nil, err
				}
				*target = v
			}
		}
		return r, nil

	case "C":
		c := device.NewCapacitor(elem.Name, elem.Nodes, elem.Value)
		if err := setIC(elem, &c.IC); err != nil {
			return nil, err
		}
		return c, nil

	case "L":
		l := device.NewInductor(elem.Name, elem.Nodes, elem.Value)
		if err := setIC(elem, &l.IC); err != nil {
			return nil, err
		}
		return l, nil

	case "K":
		return device.NewMutual(elem.Name, elem.Args, elem.Value), nil

	case "V", "I":
		return createSource(elem)

	case "D":
		return b.createDiode(elem)

	case "Q":
		return b.createBJT(elem)

	case "M":
		return b.createMosfet(elem)

	case "X":
		return b.createInstance(elem)
	}
	return nil, errors.Errorf("unsupported device type: %s", elem.Type)
}

func setIC(elem Element, p *device.Param) error {
	s, ok := elem.Params["ic"]
	if !ok {
		return nil
	}
	v, err := ParseValue(s)
	if err != nil {
		return err
	}
	p.Set(v)
	return nil
}

func parseList(s string) ([]float64, error) {
	var values []float64
	for _, f := range strings.Split(s, ",") {
		if f = strings.TrimSpace(f); f == "" {
			continue
		}
		v, err := ParseValue(f)
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, nil
}

// instanceParams hands key=value parameters other than ic to set.
func instanceParams(elem Element, set func(name string, v float64) error) error {
	for name, s := range elem.Params {
		if name == "ic" {
			continue
		}
		v, err := ParseValue(s)
		if err != nil {
			return errors.Wrapf(err, "parameter %s", name)
		}
		if err := set(name, v); err != nil {
			return err
		}
	}
	return nil
}

func (b *Builder) createDiode(elem Element) (device.Device, error) {
	if len(elem.Args) < 2 {
		return nil, errors.Wrap(ErrSyntax, "diode needs two nodes")
	}
	d := device.NewDiode(elem.Name, elem.Args[:2])
	d.Off = elem.Off
	if len(elem.Args) > 2 {
		card, err := b.model(elem.Args[2], "d")
		if err != nil {
			return nil, err
		}
		if err := d.SetModelParameters(card.Params); err != nil {
			return nil, err
		}
	}
	if len(elem.Args) > 3 {
		area, err := ParseValue(elem.Args[3])
		if err != nil {
			return nil, err
		}
		d.Area = area
	}
	if s, ok := elem.Params["area"]; ok {
		area, err := ParseValue(s)
		if err != nil {
			return nil, err
		}
		d.Area = area
	}
	return d, nil
}

// createBJT reads "Q c b e [s] model [area] [OFF] [IC=vbe,vce] [key=value]".
func (b *Builder) createBJT(elem Element) (device.Device, error) {
	args := elem.Args
	at := -1
	for i := 3; i < len(args) && i <= 4; i++ {
		if m, ok := b.data.Models[strings.ToLower(args[i])]; ok && (m.Type == "npn" || m.Type == "pnp") {
			at = i
			break
		}
	}
	if at < 0 {
		if len(args) < 4 {
			return nil, errors.Wrap(ErrSyntax, "bjt needs three nodes and a model")
		}
		return nil, errors.Wrapf(ErrUndefinedModel, "%s", args[len(args)-1])
	}
	model, err := b.bjtModel(args[at])
	if err != nil {
		return nil, err
	}
	q := device.NewBJT(elem.Name, args[:at], model)
	q.Off = elem.Off
	if at+1 < len(args) {
		area, err := ParseValue(args[at+1])
		if err != nil {
			return nil, err
		}
		q.Area.Set(area)
	}
	if err := instanceParams(elem, q.SetParameter); err != nil {
		return nil, err
	}
	if s, ok := elem.Params["ic"]; ok {
		values, err := parseList(s)
		if err != nil {
			return nil, err
		}
		if err := q.SetIC(values); err != nil {
			return nil, err
		}
	}
	return q, nil
}

// createMosfet reads "M d g s b model [key=value] [OFF] [IC=vds,vgs,vbs]".
func (b *Builder) createMosfet(elem Element) (device.Device, error) {
	if len(elem.Args) < 5 {
		return nil, errors.Wrap(ErrSyntax, "mosfet needs four nodes and a model")
	}
	model, err := b.mosModel(elem.Args[4])
	if err != nil {
		return nil, err
	}
	m := device.NewMosfet(elem.Name, elem.Args[:4], model)
	m.Off = elem.Off
	if err := instanceParams(elem, m.SetParameter); err != nil {
		return nil, err
	}
	if s, ok := elem.Params["ic"]; ok {
		values, err := parseList(s)
		if err != nil {
			return nil, err
		}
		if err := m.SetIC(values); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// createInstance reads "X pins... name [mode=flat|local] [iter=n]".
func (b *Builder) createInstance(elem Element) (device.Device, error) {
	if len(elem.Args) < 1 {
		return nil, errors.Wrap(ErrSyntax, "subcircuit instance needs a definition")
	}
	n := len(elem.Args)
	def, err := b.definition(elem.Args[n-1])
	if err != nil {
		return nil, err
	}
	mode := b.Mode
	if s, ok := elem.Params["mode"]; ok {
		if mode, err = subckt.ParseMode(s); err != nil {
			return nil, err
		}
	}
	x, err := subckt.NewInstance(elem.Name, def, elem.Args[:n-1], mode)
	if err != nil {
		return nil, err
	}
	x.MaxLocalIterations = b.MaxLocalIterations
	if s, ok := elem.Params["iter"]; ok {
		iter, err := strconv.Atoi(s)
		if err != nil {
			return nil, errors.Wrapf(ErrSyntax, "iter=%s", s)
		}
		x.MaxLocalIterations = iter
	}
	return x, nil
}

func createSource(elem Element) (device.Device, error) {
	var w device.Waveform
	switch elem.Params["type"] {
	case "sin":
		offset, amplitude, freq, phase, err := parseSinParams(elem.Params["sin"])
		if err != nil {
			return nil, err
		}
		w = device.Waveform{Type: device.SIN, DC: offset, Amplitude: amplitude, Freq: freq, Phase: phase}
	case "pulse":
		v1, v2, delay, rise, fall, pWidth, period, err := parsePulseParams(elem.Params["pulse"])
		if err != nil {
			return nil, err
		}
		w = device.Waveform{Type: device.PULSE, V1: v1, V2: v2, Delay: delay, Rise: rise, Fall: fall, PWidth: pWidth, Period: period}
	case "pwl":
		times, values, err := parsePWLParams(elem.Params["pwl"])
		if err != nil {
			return nil, err
		}
		w = device.Waveform{Type: device.PWL, Times: times, Values: values}
	default:
		w = device.Waveform{Type: device.DC, DC: elem.Value}
	}

	var mag, phase float64
	if s, ok := elem.Params["ac"]; ok {
		var err error
		if mag, err = ParseValue(s); err != nil {
			return nil, errors.Wrap(err, "AC magnitude")
		}
		if s, ok := elem.Params["acphase"]; ok {
			if phase, err = ParseValue(s); err != nil {
				return nil, errors.Wrap(err, "AC phase")
			}
		}
	}

	if elem.Type == "V" {
		v := device.NewVoltageSource(elem.Name, elem.Nodes, w)
		v.SetAC(mag, phase)
		return v, nil
	}
	i := device.NewCurrentSource(elem.Name, elem.Nodes, w)
	i.SetAC(mag, phase)
	return i, nil
}

func parseSinParams(params string) (offset, amplitude, freq, phase float64, err error) {
	values, err := parseFields(params, 3, 4)
	if err != nil {
		return 0, 0, 0, 0, errors.Wrap(err, "SIN")
	}
	if len(values) > 3 {
		phase = values[3]
	}
	return values[0], values[1], values[2], phase, nil
}

func parsePulseParams(params string) (v1, v2, delay, rise, fall, pWidth, period float64, err error) {
	values, err := parseFields(params, 7, 7)
	if err != nil {
		return 0, 0, 0, 0, 0, 0, 0, errors.Wrap(err, "PULSE")
	}
	return values[0], values[1], values[2], values[3], values[4], values[5], values[6], nil
}

func parsePWLParams(params string) (times []float64, values []float64, err error) {
	pwlParams, err := parseFields(params, 4, -1)
	if err != nil || len(pwlParams)%2 != 0 {
		return nil, nil, errors.Wrap(ErrSyntax, "PWL needs pairs of time-value")
	}

	numPoints := len(pwlParams) / 2
	times = make([]float64, numPoints)
	values = make([]float64, numPoints)
	for i := 0; i < numPoints; i++ {
		times[i], values[i] = pwlParams[2*i], pwlParams[2*i+1]
		if i > 0 && times[i] <= times[i-1] {
			return nil, nil, errors.Wrap(ErrSyntax, "PWL time points must be strictly increasing")
		}
	}
	return times, values, nil
}

// parseFields reads between lo and hi values, hi < 0 meaning no limit.
func parseFields(params string, lo, hi int) ([]float64, error) {
	fields := strings.Fields(strings.ReplaceAll(params, ",", " "))
	if len(fields) < lo || hi >= 0 && len(fields) > hi {
		return nil, errors.Wrapf(ErrSyntax, "got %d parameters", len(fields))
	}
	values := make([]float64, len(fields))
	for i, f := range fields {
		v, err := ParseValue(f)
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	return values, nil
}
