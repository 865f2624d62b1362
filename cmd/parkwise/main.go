package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/krishnanrx/parkwise/internal/api"
	"github.com/krishnanrx/parkwise/internal/config"
	"github.com/krishnanrx/parkwise/internal/detect"
	"github.com/krishnanrx/parkwise/internal/ocr"
	"github.com/krishnanrx/parkwise/internal/pipeline"
	"github.com/krishnanrx/parkwise/internal/plate"
	"github.com/krishnanrx/parkwise/internal/sink"
	"github.com/krishnanrx/parkwise/internal/vision"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to yaml config file")
		source     = flag.String("source", "", "frame source: camera index, file path or stream URL (overrides config)")
		serverPort = flag.String("serve", "", "HTTP service port (overrides config)")
	)
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("configuration invalid")
	}
	if *source != "" {
		cfg.Source = *source
	}
	if *serverPort != "" {
		cfg.ServerPort = *serverPort
	}
	if cfg.Source == "" && cfg.ServerPort == "" {
		log.Fatal().Msg("nothing to do: set a frame source (-source) and/or an HTTP port (-serve)")
	}

	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		log = log.Level(level)
	}

	runID := uuid.NewString()
	stats := pipeline.NewStats(runID)
	log.Info().Str("run_id", runID).Msg("starting parkwise")

	detector, err := detect.NewTFLiteDetector(detect.Options{
		ModelPath: cfg.Detector.ModelPath,
		LabelPath: cfg.Detector.LabelPath,
		Kind:      cfg.Detector.Kind,
		ScoreTh:   cfg.Detector.ScoreTh,
		NMSTh:     cfg.Detector.NMSTh,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("load detector")
	}
	defer detector.Close()

	recognizer, err := ocr.NewTFLiteRecognizer(ocr.Options{
		ModelPath: cfg.Recognizer.ModelPath,
		MinLength: cfg.Recognizer.MinLength,
		MinScore:  cfg.Recognizer.MinScore,
		Enhance:   cfg.Recognizer.Enhance,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("load recognizer")
	}
	defer recognizer.Close()

	inference := pipeline.NewInference(detector, recognizer, cfg.Detector.VehicleIDs, motorcycleClass(cfg.Detector.VehicleIDs), stats, log.With().Str("component", "inference").Logger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		log.Info().Msg("shutdown requested, draining")
		cancel()
	}()

	var wg sync.WaitGroup
	var srv *http.Server

	if cfg.ServerPort != "" {
		post := plate.NewPostprocessor(cfg.Plate.Patterns, cfg.Plate.Confusion, cfg.Plate.DedupWindow, cfg.Plate.LogInvalid, log.With().Str("component", "postprocessor").Logger())
		svc := api.NewRecognizeService(inference, post)
		srv = &http.Server{
			Addr:    ":" + cfg.ServerPort,
			Handler: api.NewRouter(svc, stats, cfg.StaticDir),
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Info().Str("port", cfg.ServerPort).Msg("HTTP service listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("HTTP service failed")
				cancel()
			}
		}()
	}

	var runErr error
	if cfg.Source != "" {
		runErr = runPipeline(ctx, cfg, inference, stats, log)
	} else {
		<-ctx.Done()
	}

	if srv != nil {
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancelShutdown()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("HTTP shutdown")
		}
	}
	wg.Wait()

	if runErr != nil {
		// A video file at EOF and a dropped stream both surface here; the
		// run drained cleanly either way, so neither is a failure exit.
		if errors.Is(runErr, vision.ErrSourceUnavailable) {
			log.Warn().Err(runErr).Msg("frame source ended")
		} else {
			log.Fatal().Err(runErr).Msg("pipeline failed")
		}
	}
	log.Info().Msg("parkwise stopped")
}

func runPipeline(ctx context.Context, cfg *config.Config, inference *pipeline.Inference, stats *pipeline.Stats, log zerolog.Logger) error {
	src, err := vision.OpenSource(cfg.Source, cfg.Detector.InputSize)
	if err != nil {
		return err
	}
	defer src.Close()

	var recorders []sink.Sink
	if cfg.Output.CSVPath != "" {
		csvLog, err := sink.NewCSVLogger(cfg.Output.CSVPath)
		if err != nil {
			return err
		}
		recorders = append(recorders, csvLog)
	}
	if cfg.Output.JSONLPath != "" {
		jsonlLog, err := sink.NewJSONLLogger(cfg.Output.JSONLPath)
		if err != nil {
			return err
		}
		recorders = append(recorders, jsonlLog)
	}
	if cfg.MQTT.Broker != "" {
		pub, err := sink.NewMQTTPublisher(cfg.MQTT.Broker, cfg.MQTT.ClientID, cfg.MQTT.Topic)
		if err != nil {
			// Gate control is optional; run without it rather than abort.
			log.Warn().Err(err).Msg("mqtt publisher unavailable, continuing without it")
		} else {
			recorders = append(recorders, pub)
		}
	}

	var display pipeline.Display
	if cfg.Display {
		window := vision.NewDisplay("parkwise")
		defer window.Close()
		display = window
	}

	post := plate.NewPostprocessor(cfg.Plate.Patterns, cfg.Plate.Confusion, cfg.Plate.DedupWindow, cfg.Plate.LogInvalid, log.With().Str("component", "postprocessor").Logger())

	p := pipeline.New(pipeline.Options{
		Source:    src,
		Inference: inference,
		Post:      post,
		Gate:      pipeline.NewGate(cfg.Pipeline.SkipFactor, cfg.Pipeline.BacklogCeiling),
		Recorders: recorders,
		Display:   display,
		Stats:     stats,
		QueueSize: cfg.Pipeline.QueueSize,
		Log:       log.With().Str("component", "pipeline").Logger(),
	})
	return p.Run(ctx)
}

// motorcycleClass picks the motorcycle id out of the configured vehicle
// classes; COCO's is 3. Motorcycles get the full detection box as plate
// region instead of the lower quarter.
func motorcycleClass(vehicleIDs []int) int {
	for _, id := range vehicleIDs {
		if id == 3 {
			return id
		}
	}
	return -1
}
