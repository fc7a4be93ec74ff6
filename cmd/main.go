package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/edp1096/semispice/internal/config"
	"github.com/edp1096/semispice/internal/ctxlog"
	"github.com/edp1096/semispice/pkg/analysis"
	"github.com/edp1096/semispice/pkg/circuit"
	"github.com/edp1096/semispice/pkg/netlist"
	"github.com/edp1096/semispice/pkg/util"
)

var (
	configPath = flag.String("config", "", "HCL options file")
	plotPath   = flag.String("plot", "", "write a PNG plot of the results")
	verbose    = flag.Bool("v", false, "debug logging")
	dump       = flag.Bool("dump", false, "print the stamped system before solving")
)

func getKeys(m map[string][]float64, prefix string, skip ...string) []string {
	keys := make([]string, 0, len(m))
outer:
	for k := range m {
		for _, s := range skip {
			if k == s {
				continue outer
			}
		}
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

func unitOf(name string) string {
	if strings.HasPrefix(name, "I(") {
		return "A"
	}
	return "V"
}

func printResults(kind netlist.AnalysisType, results map[string][]float64) {
	fmt.Println("\nAnalysis Results:")
	fmt.Println("================")

	switch kind {
	case netlist.AnalysisNOISE:
		freqs := results["FREQ"]
		fmt.Printf("\nNoise Analysis Results (%d frequency points):\n", len(freqs))
		fmt.Println("Frequency      Output noise              Input noise")
		fmt.Println("-----------------------------------------------------------")
		for i, freq := range freqs {
			fmt.Printf("%-13s  %-24s  %s\n", util.FormatFrequency(freq),
				util.FormatNoise(results["ONOISE"][i], "V"), util.FormatNoise(results["INOISE"][i], ""))
		}

	case netlist.AnalysisAC:
		freqs := results["FREQ"]
		fmt.Printf("\nAC Analysis Results (%d frequency points):\n", len(freqs))
		fmt.Println("Frequency      Node Voltages and Branch Currents (Magnitude/Phase)")
		fmt.Println("-----------------------------------------------------------------------------")
		var names []string
		for _, name := range getKeys(results, "") {
			if strings.HasSuffix(name, "_MAG") {
				names = append(names, strings.TrimSuffix(name, "_MAG"))
			}
		}
		for i, freq := range freqs {
			fmt.Printf("%-13s", util.FormatFrequency(freq))
			for _, name := range names {
				fmt.Printf("%s=%s<%sdeg  ", name,
					util.FormatMagnitude(results[name+"_MAG"][i]), util.FormatPhase(results[name+"_PHASE"][i]))
			}
			fmt.Println()
		}

	case netlist.AnalysisDC:
		sweep1 := results["SWEEP1"]
		sweep2, nested := results["SWEEP2"]
		fmt.Printf("\nDC Sweep Analysis Results (%d points):\n", len(sweep1))
		names := getKeys(results, "", "SWEEP1", "SWEEP2")
		for i := range sweep1 {
			if nested {
				fmt.Printf("S1=%-11s S2=%-11s  ", util.FormatValueFactor(sweep1[i], ""), util.FormatValueFactor(sweep2[i], ""))
			} else {
				fmt.Printf("S=%-11s  ", util.FormatValueFactor(sweep1[i], ""))
			}
			for _, name := range names {
				fmt.Printf("%s=%s  ", name, util.FormatValueFactor(results[name][i], unitOf(name)))
			}
			fmt.Println()
		}

	case netlist.AnalysisTRAN:
		times := results["TIME"]
		fmt.Printf("\nTransient Analysis Results (%d time points):\n", len(times))
		names := getKeys(results, "", "TIME")
		for i, t := range times {
			fmt.Printf("%11s  ", util.FormatValueFactor(t, "s"))
			for _, name := range names {
				fmt.Printf("%s=%s  ", name, util.FormatValueFactor(results[name][i], unitOf(name)))
			}
			fmt.Println()
		}

	default:
		fmt.Println("\nNode Voltages:")
		for _, name := range getKeys(results, "V(") {
			fmt.Printf("%s = %s\n", name, util.FormatValueFactor(results[name][0], "V"))
		}
		fmt.Println("\nBranch Currents:")
		for _, name := range getKeys(results, "I(") {
			fmt.Printf("%s = %s\n", name, util.FormatValueFactor(results[name][0], "A"))
		}
	}
}

func run(ctx context.Context, path string) error {
	logger := ctxlog.FromContext(ctx)

	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading netlist file: %w", err)
	}
	data, err := netlist.Parse(string(content))
	if err != nil {
		return fmt.Errorf("parsing netlist: %w", err)
	}
	logger.Info("netlist parsed", "title", data.Title, "elements", len(data.Elements),
		"models", len(data.Models), "subckts", len(data.Subckts), "analysis", data.Analysis)

	opts, err := config.Load(ctx, *configPath)
	if err != nil {
		return fmt.Errorf("loading options: %w", err)
	}
	if err := opts.ApplyNetlist(data.Options); err != nil {
		return fmt.Errorf("netlist options: %w", err)
	}
	method, err := opts.IntegrationMethod()
	if err != nil {
		return err
	}

	ckt, err := circuit.NewFromNetlist(data, opts.SubcktMode(), opts.LocalIter)
	if err != nil {
		return fmt.Errorf("creating circuit: %w", err)
	}
	ckt.Options = circuit.Options{Method: method, MaxOrder: opts.MaxOrd, Parallel: opts.Parallel}
	opts.ApplyStatus(ckt.Status)
	if err := ckt.Setup(ctx); err != nil {
		return fmt.Errorf("circuit setup: %w", err)
	}
	defer ckt.Destroy()
	logger.Info("circuit ready", "equations", ckt.Size(), "nodes", ckt.GetNumNodes(), "subckt mode", opts.SubcktMode())

	analyzer, err := analysis.FromNetlist(data, analysis.Settings{
		Itl1:      opts.Itl1,
		Itl4:      opts.Itl4,
		GminSteps: opts.GminSteps,
		SrcSteps:  opts.SrcSteps,
	})
	if err != nil {
		return err
	}
	if err := analyzer.Setup(ctx, ckt); err != nil {
		return fmt.Errorf("analysis setup: %w", err)
	}
	if *dump {
		if err := ckt.Load(); err != nil {
			return err
		}
		ckt.GetMatrix().PrintSystem(os.Stdout)
	}
	if err := analyzer.Execute(ctx); err != nil {
		return fmt.Errorf("analysis execution: %w", err)
	}

	results := analyzer.GetResults()
	printResults(data.Analysis, results)
	if *plotPath != "" {
		if err := plotResults(data.Title, data.Analysis, results, *plotPath); err != nil {
			return fmt.Errorf("plotting: %w", err)
		}
		logger.Info("plot written", "path", *plotPath)
	}
	return nil
}

func main() {
	flag.Parse()
	if flag.NArg() != 1 {
		log.Fatal("Usage: semispice [-config options.hcl] [-plot out.png] [-v] <netlist_file>")
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	ctx := ctxlog.WithLogger(context.Background(), logger)

	if err := run(ctx, flag.Arg(0)); err != nil {
		log.Fatalf("Error: %v", err)
	}
}
