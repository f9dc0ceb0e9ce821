package main

import (
	"fmt"
	"os"
	"time"

	"github.com/akamensky/argparse"
	"github.com/cyclopcam/logs"
	"github.com/roadsight/roadsight/pkg/config"
	"github.com/roadsight/roadsight/pkg/format"
	"github.com/roadsight/roadsight/pkg/historydb"
	"github.com/roadsight/roadsight/pkg/nn"
	"github.com/roadsight/roadsight/pkg/nnload"
	"github.com/roadsight/roadsight/pkg/predict"
	"github.com/roadsight/roadsight/pkg/traffic"
)

func check(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// stdoutNotifier prints batch progress to the terminal
type stdoutNotifier struct{}

func (stdoutNotifier) Progress(done, total int) {
	fmt.Printf("\r%v/%v", done, total)
	if done == total {
		fmt.Println()
	}
}

func (stdoutNotifier) ItemDone(item *predict.ItemResult) {
	if item.Err != nil {
		fmt.Printf("\n%v: FAILED: %v\n", item.SourcePath, item.Err)
		return
	}
	fmt.Printf("\n%v: %v detections", item.SourcePath, len(item.Detections))
	for _, w := range item.Warnings {
		fmt.Printf("  [%v]", w)
	}
	fmt.Println()
}

func main() {
	parser := argparse.NewParser("roadsight", "Batch traffic perception over images")
	configFile := parser.String("c", "config", &argparse.Options{Help: "Configuration file (JSON)", Default: ""})
	input := parser.String("i", "input", &argparse.Options{Help: "Input image or directory of images", Default: ""})
	modelDir := parser.String("n", "model", &argparse.Options{Help: "Primary (multi-task) model directory", Default: ""})
	secondaryDir := parser.String("", "secondary", &argparse.Options{Help: "Secondary (COCO) model directory", Default: ""})
	outputDir := parser.String("o", "output", &argparse.Options{Help: "Output directory for annotated images", Default: ""})
	confidence := parser.Float("", "confidence", &argparse.Options{Help: "Confidence threshold override (0..1)", Default: 0.0})
	noImages := parser.Flag("", "noimages", &argparse.Options{Help: "Do not save annotated images", Default: false})
	noLabels := parser.Flag("", "nolabels", &argparse.Options{Help: "Do not save label files", Default: false})
	showHistory := parser.Flag("", "history", &argparse.Options{Help: "List prediction history and exit", Default: false})
	search := parser.String("", "search", &argparse.Options{Help: "Filter --history by keyword", Default: ""})
	showStats := parser.Flag("", "stats", &argparse.Options{Help: "Print history statistics and exit", Default: false})
	clearHistory := parser.Flag("", "clearhistory", &argparse.Options{Help: "Delete all prediction history and exit", Default: false})
	err := parser.Parse(os.Args)
	if err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	logger, err := logs.NewLog()
	check(err)

	cfg, err := config.Load(*configFile)
	check(err)
	if *confidence != 0 {
		cfg.ConfidenceThreshold = float32(*confidence)
	}
	if *outputDir != "" {
		cfg.OutputDir = *outputDir
	}
	if *modelDir == "" {
		*modelDir = cfg.ModelPath
	}
	if *secondaryDir == "" {
		*secondaryDir = cfg.SecondaryModelPath
	}

	history, err := historydb.Open(logger, cfg.HistoryDir)
	check(err)
	defer history.Close()

	if *showHistory {
		printHistory(history, *search)
		return
	}
	if *showStats {
		printStats(history)
		return
	}
	if *clearHistory {
		check(history.Clear())
		fmt.Println("History cleared")
		return
	}

	if *input == "" || *modelDir == "" {
		fmt.Print(parser.Usage("need --input and --model to run a prediction"))
		os.Exit(1)
	}

	logger.Infof("Inference device: %v", cfg.Device())
	primary, err := nnload.LoadMultiTaskDetector(logger, *modelDir)
	check(err)
	defer primary.Close()

	secondary := loadSecondary(logger, *secondaryDir)
	if secondary != nil {
		defer secondary.Close()
	}

	runner := predict.NewRunner(logger, primary, secondary, predict.Options{
		OutputDir:       cfg.RunDir(),
		SaveImages:      cfg.SaveImages && !*noImages,
		SaveLabels:      cfg.SaveLabels && !*noLabels,
		DetectionParams: cfg.DetectionParams(),
		RenderOptions: traffic.RenderOptions{
			ShowBoxes:      cfg.ShowBoxes,
			ShowLabels:     cfg.ShowLabels,
			ShowConfidence: cfg.ShowConfidence,
		},
		History:            history,
		ModelPath:          *modelDir,
		SecondaryModelPath: *secondaryDir,
		Notifier:           stdoutNotifier{},
	})

	result, err := runner.Run(*input)
	check(err)

	fmt.Printf("Done: %v images in %v", len(result.Items), format.Duration(result.Duration))
	if result.NumFailed != 0 {
		fmt.Printf(", %v failed", result.NumFailed)
	}
	fmt.Println()
	if result.OutputDir != "" {
		fmt.Printf("Results in %v\n", result.OutputDir)
	}
	if result.NumFailed != 0 {
		os.Exit(1)
	}
}

func loadSecondary(logger logs.Log, dir string) nn.ObjectDetector {
	if dir == "" {
		return nil
	}
	secondary, err := nnload.LoadDetector(logger, dir)
	check(err)
	return secondary
}

func printHistory(history *historydb.HistoryDB, search string) {
	records, err := history.List(historydb.Query{SearchText: search, Limit: 50})
	check(err)
	if len(records) == 0 {
		fmt.Println("No history")
		return
	}
	for _, r := range records {
		status := "ok"
		if !r.Success {
			status = "FAILED"
		}
		fmt.Printf("%6d  %v  %-9v  %-6v  %4d det  %8v  %v\n",
			r.ID, r.CreatedAt.Get().Format("2006-01-02 15:04:05"), r.SourceType, status,
			r.NumDetections, format.Duration(time.Duration(r.InferenceMS)*time.Millisecond), r.SourcePath)
	}
}

func printStats(history *historydb.HistoryDB) {
	stats, err := history.Statistics()
	check(err)
	fmt.Printf("Total runs:       %v\n", stats.Total)
	fmt.Printf("Succeeded:        %v\n", stats.Succeeded)
	fmt.Printf("Failed:           %v\n", stats.Failed)
	fmt.Printf("Avg inference:    %v\n", format.Duration(time.Duration(stats.AvgInferenceMS)*time.Millisecond))
	fmt.Printf("Total detections: %v\n", stats.TotalDetections)
	for sourceType, n := range stats.BySourceType {
		fmt.Printf("  %-10v %v\n", sourceType, n)
	}
}
