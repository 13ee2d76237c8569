package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Compression struct {
		Quality           int `yaml:"quality"`
		MaxWidth          int `yaml:"max_width"`
		MaxHeight         int `yaml:"max_height"`
		ThresholdKB       int `yaml:"threshold_kb"`
		FallbackQuality   int `yaml:"fallback_quality"`
		FallbackMaxWidth  int `yaml:"fallback_max_width"`
		FallbackMaxHeight int `yaml:"fallback_max_height"`
		FrameQuality      int `yaml:"frame_quality"`
		AnalysisFrames    int `yaml:"analysis_frames"`
	} `yaml:"compression"`
	Analysis struct {
		Model       string  `yaml:"model"`
		MaxTokens   int     `yaml:"max_tokens"`
		Temperature float64 `yaml:"temperature"`
		MaxAttempts int     `yaml:"max_attempts"`
	} `yaml:"analysis"`
	Transcription struct {
		Language string `yaml:"language"`
	} `yaml:"transcription"`
	Geocoding struct {
		BaseURL string `yaml:"base_url"`
	} `yaml:"geocoding"`
	Storage struct {
		KeyPrefix         string `yaml:"key_prefix"`
		VideoDBPath       string `yaml:"video_db_path"`
		RetentionDays     int    `yaml:"retention_days"`
		SessionTTLMinutes int    `yaml:"session_ttl_minutes"`
	} `yaml:"storage"`
	Server struct {
		Addr   string `yaml:"addr"`
		Origin string `yaml:"origin"`
	} `yaml:"server"`
}

func LoadConfig(path string) (*Config, error) {
	config := &Config{}
	config.setDefaults()

	_, err := os.Stat(path)
	if os.IsNotExist(err) {
		return config, nil
	}

	file, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	err = yaml.Unmarshal(file, config)
	if err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) setDefaults() {
	c.Compression.Quality = 80
	c.Compression.MaxWidth = 1920
	c.Compression.MaxHeight = 1080
	c.Compression.ThresholdKB = 500
	c.Compression.FallbackQuality = 60
	c.Compression.FallbackMaxWidth = 800
	c.Compression.FallbackMaxHeight = 600
	c.Compression.FrameQuality = 70
	c.Compression.AnalysisFrames = 3
	c.Analysis.Model = "gpt-4o-mini"
	c.Analysis.MaxTokens = 1000
	c.Analysis.Temperature = 0.7
	c.Analysis.MaxAttempts = 3
	c.Transcription.Language = "en"
	c.Geocoding.BaseURL = "https://nominatim.openstreetmap.org"
	c.Storage.KeyPrefix = "task_creator"
	c.Storage.VideoDBPath = "videos.db"
	c.Storage.RetentionDays = 7
	c.Storage.SessionTTLMinutes = 60
	c.Server.Addr = ":8080"
	c.Server.Origin = "http://localhost:8080"
}
