package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds every knob the pipeline and the HTTP service read. It is built
// once at startup and never mutated afterwards.
type Config struct {
	// Source is the frame origin: a camera index ("0"), a video file path or
	// a network stream URL. Empty disables the streaming pipeline.
	Source string `yaml:"source"`

	Detector   DetectorConfig   `yaml:"detector"`
	Recognizer RecognizerConfig `yaml:"recognizer"`
	Plate      PlateConfig      `yaml:"plate"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Output     OutputConfig     `yaml:"output"`
	MQTT       MQTTConfig       `yaml:"mqtt"`

	Display    bool   `yaml:"display"`
	ServerPort string `yaml:"server_port"` // empty disables the HTTP service
	StaticDir  string `yaml:"static_dir"`
	LogLevel   string `yaml:"log_level"`
}

type DetectorConfig struct {
	ModelPath  string  `yaml:"model"`
	LabelPath  string  `yaml:"labels"`
	Kind       string  `yaml:"kind"` // "yolo" or "ssd"
	InputSize  int     `yaml:"input_size"`
	ScoreTh    float32 `yaml:"score_threshold"`
	NMSTh      float32 `yaml:"nms_threshold"`
	VehicleIDs []int   `yaml:"vehicle_classes"` // COCO ids, car=2 motorcycle=3
}

type RecognizerConfig struct {
	ModelPath string  `yaml:"model"`
	MinLength int     `yaml:"min_length"`
	MinScore  float32 `yaml:"min_score"`
	Enhance   bool    `yaml:"enhance"` // CLAHE + denoise + sharpen before OCR
}

type PlateConfig struct {
	// Patterns are positional plate grammars, 'L' for letter and 'D' for
	// digit, e.g. "LLDDLLDDDD". Spaces are ignored.
	Patterns []string `yaml:"patterns"`
	// Confusion maps visually-confusable letter/digit pairs, e.g. O: "0".
	// Each pair is applied in both directions.
	Confusion   map[string]string `yaml:"confusion"`
	DedupWindow time.Duration     `yaml:"dedup_window"`
	LogInvalid  bool              `yaml:"log_invalid"`
}

type PipelineConfig struct {
	SkipFactor     int `yaml:"skip_factor"`
	BacklogCeiling int `yaml:"backlog_ceiling"`
	QueueSize      int `yaml:"queue_size"`
}

type OutputConfig struct {
	CSVPath   string `yaml:"csv"`
	JSONLPath string `yaml:"jsonl"`
}

type MQTTConfig struct {
	Broker   string `yaml:"broker"` // empty disables publishing
	ClientID string `yaml:"client_id"`
	Topic    string `yaml:"topic"`
}

// Default returns the configuration used when no file and no environment
// overrides are present.
func Default() *Config {
	return &Config{
		Detector: DetectorConfig{
			ModelPath:  "models/vehicle-yolov5.tflite",
			LabelPath:  "models/coco.names",
			Kind:       "yolo",
			InputSize:  640,
			ScoreTh:    0.5,
			NMSTh:      0.5,
			VehicleIDs: []int{2, 3},
		},
		Recognizer: RecognizerConfig{
			ModelPath: "models/plate-crnn.tflite",
			MinLength: 4,
			MinScore:  0.3,
			Enhance:   true,
		},
		Plate: PlateConfig{
			Patterns: []string{"LLDDLLDDDD"},
			Confusion: map[string]string{
				"O": "0", "I": "1", "B": "8", "S": "5", "Z": "2", "G": "6",
			},
			DedupWindow: 5 * time.Second,
			LogInvalid:  false,
		},
		Pipeline: PipelineConfig{
			SkipFactor:     3,
			BacklogCeiling: 8,
			QueueSize:      16,
		},
		Output: OutputConfig{
			CSVPath:   "plates.csv",
			JSONLPath: "plates.jsonl",
		},
		MQTT: MQTTConfig{
			ClientID: "parkwise",
			Topic:    "parkwise/plates",
		},
		Display:    false,
		ServerPort: "",
		StaticDir:  "./static",
		LogLevel:   "info",
	}
}

// Load builds the configuration from defaults, an optional yaml file and
// environment overrides, in that order. A missing .env file is not an error.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Source = getEnv("PARKWISE_SOURCE", cfg.Source)
	cfg.ServerPort = getEnv("PARKWISE_SERVER_PORT", cfg.ServerPort)
	cfg.LogLevel = getEnv("PARKWISE_LOG_LEVEL", cfg.LogLevel)
	cfg.MQTT.Broker = getEnv("PARKWISE_MQTT_BROKER", cfg.MQTT.Broker)
	cfg.Output.CSVPath = getEnv("PARKWISE_CSV", cfg.Output.CSVPath)
	cfg.Output.JSONLPath = getEnv("PARKWISE_JSONL", cfg.Output.JSONLPath)
	if v, ok := os.LookupEnv("PARKWISE_SKIP_FACTOR"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Pipeline.SkipFactor = n
		}
	}
	if v, ok := os.LookupEnv("PARKWISE_DISPLAY"); ok {
		cfg.Display = v == "1" || v == "true"
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// Validate rejects malformed settings at configuration time so the pipeline
// never has to handle them at runtime.
func (c *Config) Validate() error {
	if c.Pipeline.SkipFactor < 1 {
		return fmt.Errorf("pipeline.skip_factor must be >= 1, got %d", c.Pipeline.SkipFactor)
	}
	if c.Pipeline.BacklogCeiling < 1 {
		return fmt.Errorf("pipeline.backlog_ceiling must be >= 1, got %d", c.Pipeline.BacklogCeiling)
	}
	if c.Pipeline.QueueSize < 1 {
		return fmt.Errorf("pipeline.queue_size must be >= 1, got %d", c.Pipeline.QueueSize)
	}
	if c.Detector.InputSize < 0 {
		return fmt.Errorf("detector.input_size must not be negative, got %d", c.Detector.InputSize)
	}
	if c.Detector.ScoreTh <= 0 || c.Detector.ScoreTh > 1 {
		return fmt.Errorf("detector.score_threshold must be in (0,1], got %v", c.Detector.ScoreTh)
	}
	if c.Detector.Kind != "yolo" && c.Detector.Kind != "ssd" {
		return fmt.Errorf("detector.kind must be \"yolo\" or \"ssd\", got %q", c.Detector.Kind)
	}
	if len(c.Plate.Patterns) == 0 {
		return fmt.Errorf("plate.patterns must not be empty")
	}
	for _, p := range c.Plate.Patterns {
		for _, r := range p {
			if r != 'L' && r != 'D' && r != ' ' {
				return fmt.Errorf("plate pattern %q: only 'L', 'D' and spaces allowed", p)
			}
		}
	}
	for k, v := range c.Plate.Confusion {
		if len(k) != 1 || len(v) != 1 {
			return fmt.Errorf("plate.confusion entries must map single characters, got %q: %q", k, v)
		}
	}
	if c.Plate.DedupWindow < 0 {
		return fmt.Errorf("plate.dedup_window must not be negative")
	}
	return nil
}
