package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/akamensky/argparse"
	"github.com/cyclopcam/logs"
	"github.com/roadsight/roadsight/pkg/config"
	"github.com/roadsight/roadsight/pkg/nn"
	"github.com/roadsight/roadsight/pkg/nnload"
	"github.com/roadsight/roadsight/pkg/stream"
	"github.com/roadsight/roadsight/pkg/traffic"
)

func check(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func main() {
	parser := argparse.NewParser("roadstream", "Run the traffic perception pipeline on a frame stream")
	configFile := parser.String("c", "config", &argparse.Options{Help: "Configuration file (JSON)", Default: ""})
	input := parser.String("i", "input", &argparse.Options{Help: "Directory of frames to stream", Required: true})
	loop := parser.Flag("", "loop", &argparse.Options{Help: "Loop the input forever, like a live feed", Default: false})
	modelDir := parser.String("n", "model", &argparse.Options{Help: "Primary (multi-task) model directory", Default: ""})
	secondaryDir := parser.String("", "secondary", &argparse.Options{Help: "Secondary (COCO) model directory", Default: ""})
	record := parser.String("r", "record", &argparse.Options{Help: "Record the stream to this base path (extension chosen by codec)", Default: ""})
	metricsAddr := parser.String("", "metrics", &argparse.Options{Help: "Serve Prometheus metrics on this address, eg :9091", Default: ""})
	confidence := parser.Float("", "confidence", &argparse.Options{Help: "Confidence threshold override (0..1)", Default: 0.0})
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
	if *modelDir == "" {
		*modelDir = cfg.ModelPath
	}
	if *modelDir == "" {
		fmt.Print(parser.Usage("need --model to run the pipeline"))
		os.Exit(1)
	}

	logger.Infof("Inference device: %v", cfg.Device())
	primary, err := nnload.LoadMultiTaskDetector(logger, *modelDir)
	check(err)
	defer primary.Close()

	var secondary nn.ObjectDetector
	if *secondaryDir != "" {
		secondary, err = nnload.LoadDetector(logger, *secondaryDir)
		check(err)
		defer secondary.Close()
	}

	source, err := stream.NewImageDirSource(*input)
	check(err)
	source.Loop = *loop

	options := stream.DefaultPipelineOptions()
	options.DetectionParams = cfg.DetectionParams()
	options.RenderOptions = traffic.RenderOptions{
		ShowBoxes:      cfg.ShowBoxes,
		ShowLabels:     cfg.ShowLabels,
		ShowConfidence: cfg.ShowConfidence,
	}
	options.RecordPath = *record

	pipeline := stream.NewPipeline(logger, source, primary, secondary, options)

	if *metricsAddr != "" {
		go func() {
			logger.Infof("Serving metrics on %v", *metricsAddr)
			if err := http.ListenAndServe(*metricsAddr, pipeline.Metrics().Handler()); err != nil {
				logger.Errorf("Metrics server: %v", err)
			}
		}()
	}

	check(pipeline.Start())

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	nFrames := int64(0)
	for {
		select {
		case <-interrupt:
			logger.Infof("Interrupted, stopping")
			pipeline.Stop()
			printSummary(pipeline, nFrames)
			return
		case result, ok := <-pipeline.Results():
			if !ok {
				// Source drained
				pipeline.Stop()
				printSummary(pipeline, nFrames)
				return
			}
			nFrames++
			for _, warning := range result.Warnings {
				fmt.Printf("frame %v: %v\n", result.FrameIndex, warning)
			}
			if result.FrameIndex%50 == 0 {
				logger.Infof("Frame %v, %.1f FPS", result.FrameIndex, result.FPS)
			}
		}
	}
}

func printSummary(pipeline *stream.Pipeline, nFrames int64) {
	m := pipeline.Metrics()
	fmt.Printf("Processed %v frames (%v received, %v dropped)\n",
		m.FramesProcessed.Load(), nFrames, m.FramesDropped.Load())
	if m.FramesRecorded.Load() != 0 {
		fmt.Printf("Recorded %v frames\n", m.FramesRecorded.Load())
	}
	if summary := pipeline.FrameTimeSummary(); summary.Samples != 0 {
		fmt.Printf("%v\n", summary)
	}
}
