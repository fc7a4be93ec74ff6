package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"math"
	"os"

	"github.com/edp1096/semispice/internal/ctxlog"
	"github.com/edp1096/semispice/pkg/analysis"
	"github.com/edp1096/semispice/pkg/circuit"
	"github.com/edp1096/semispice/pkg/device"
	"github.com/edp1096/semispice/pkg/util"
)

func createCircuit() (*circuit.Circuit, error) {
	// 2N2222 NPN transistor
	model := device.NewBJTModel("Q2N2222", "npn")
	err := model.SetParameters(map[string]float64{
		"is":  1.8e-14,
		"bf":  100,
		"vaf": 100,
		"ikf": 0.3,
		"rc":  0.3,
		"re":  0.2,
		"rb":  10,
		"cje": 22e-12,
		"cjc": 8e-12,
		"tf":  0.3e-9,
		"kf":  1e-15,
	})
	if err != nil {
		return nil, err
	}

	ckt := circuit.New("BJT Common Emitter Amplifier Circuit")
	ckt.Add(
		device.NewDCVoltageSource("Vcc", []string{"vcc", "0"}, 12),
		device.NewACVoltageSource("Vin", []string{"in", "0"}, 0, 1, 0),
		// Bias network
		device.NewResistor("Rc", []string{"vcc", "c"}, 1e3),
		device.NewResistor("Rb1", []string{"vcc", "b"}, 10e3),
		device.NewResistor("Rb2", []string{"b", "0"}, 2.2e3),
		device.NewResistor("Re", []string{"e", "0"}, 220),
		// Coupling and bypass
		device.NewCapacitor("Cin", []string{"in", "b"}, 10e-6),
		device.NewCapacitor("Cout", []string{"c", "out"}, 10e-6),
		device.NewCapacitor("Ce", []string{"e", "0"}, 100e-6),
		device.NewResistor("RL", []string{"out", "0"}, 10e3),
		device.NewBJT("Q1", []string{"c", "b", "e"}, model),
	)
	return ckt, nil
}

func main() {
	fmt.Print("===== BJT Common Emitter Amplifier Example =====\n\n")

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	ctx := ctxlog.WithLogger(context.Background(), logger)

	ckt, err := createCircuit()
	if err != nil {
		log.Fatalf("error circuit generation: %v", err)
	}
	if err := ckt.Setup(ctx); err != nil {
		log.Fatalf("error circuit setup: %v", err)
	}
	defer ckt.Destroy()

	fmt.Println("Circuit information:")
	fmt.Printf("  Name: %s\n", ckt.Name())
	fmt.Printf("  Node count: %d (except GND)\n\n", ckt.GetNumNodes())

	fmt.Println("Running operating point analysis...")
	op := analysis.NewOP()
	if err := op.Setup(ctx, ckt); err != nil {
		log.Fatalf("error setting up operating point: %v", err)
	}
	if err := op.Execute(ctx); err != nil {
		log.Fatalf("error running operating point: %v", err)
	}
	bias := op.GetResults()

	vbe := bias["V(b)"][0] - bias["V(e)"][0]
	vce := bias["V(c)"][0] - bias["V(e)"][0]
	ic := (bias["V(vcc)"][0] - bias["V(c)"][0]) / 1e3
	fmt.Println("\nTransistor Q1 bias point:")
	fmt.Printf("  VBE = %s\n", util.FormatValueFactor(vbe, "V"))
	fmt.Printf("  VCE = %s\n", util.FormatValueFactor(vce, "V"))
	fmt.Printf("  IC  = %s\n", util.FormatValueFactor(ic, "A"))

	fmt.Println("\nRunning AC analysis...")
	ac := analysis.NewAC(10, 10e6, 5, "DEC")
	if err := ac.Setup(ctx, ckt); err != nil {
		log.Fatalf("error setting up ac analysis: %v", err)
	}
	if err := ac.Execute(ctx); err != nil {
		log.Fatalf("error running ac analysis: %v", err)
	}
	res := ac.GetResults()
	for i, f := range res["FREQ"] {
		gain := res["V(out)_MAG"][i]
		fmt.Printf("  %s  gain=%s (%6.2f dB)  phase=%s\n", util.FormatFrequency(f),
			util.FormatMagnitude(gain), 20*math.Log10(gain), util.FormatPhase(res["V(out)_PHASE"][i]))
	}

	fmt.Println("\nRunning noise analysis...")
	noise := analysis.NewNoise("out", "", "Vin", "DEC", 2, 100, 1e6)
	if err := noise.Setup(ctx, ckt); err != nil {
		log.Fatalf("error setting up noise analysis: %v", err)
	}
	if err := noise.Execute(ctx); err != nil {
		log.Fatalf("error running noise analysis: %v", err)
	}
	res = noise.GetResults()
	for i, f := range res["FREQ"] {
		fmt.Printf("  %s  onoise=%s  inoise=%s\n", util.FormatFrequency(f),
			util.FormatNoise(res["ONOISE"][i], "V"), util.FormatNoise(res["INOISE"][i], "V"))
	}

	fmt.Println("\nDone!")
}
