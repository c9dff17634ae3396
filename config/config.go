package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
)

type Config struct {
	Input             InputConfig        `json:"Input" validate:"required"`
	Output            OutputConfig       `json:"Output" validate:"required"`
	Storage           StorageConfig      `json:"Storage"`
	Derivatives       []DerivativeConfig `json:"Derivatives" validate:"dive"`
	MaxConcurrentJobs int                `json:"MaxConcurrentJobs" validate:"required,min=1"`
	ForceRewrite      bool               `json:"ForceRewrite"`
	PageMODS          bool               `json:"PageMODS"`
	PDFDPI            float64            `json:"PDFDPI" validate:"required,gt=0,max=1200"`
	LedgerPath        string             `json:"LedgerPath"`
}

type InputConfig struct {
	KnownExtensions []string `json:"KnownExtensions" validate:"required,min=1,dive,min=1"`
}

type OutputConfig struct {
	FilePermissionMode       string `json:"FilePermissionMode" validate:"required,numeric"`
	DirPermissionMode        string `json:"DirPermissionMode" validate:"required,numeric"`
	AttributesImplementation string `json:"AttributesImplementation" validate:"required,oneof=xattr none"`
}

// StorageConfig carries credentials for remote locations. The bucket and
// prefix come from the location itself (b2://bucket/prefix, s3://bucket/prefix).
type StorageConfig struct {
	B2 *B2Config `json:"B2" validate:"omitempty"`
	S3 *S3Config `json:"S3" validate:"omitempty"`
}

type B2Config struct {
	KeyID          string `json:"KeyID" validate:"required,min=1"`
	ApplicationKey string `json:"ApplicationKey" validate:"required,min=1"`
}

type S3Config struct {
	Endpoint        string `json:"Endpoint" validate:"required,min=1"`
	Region          string `json:"Region"`
	AccessKeyID     string `json:"AccessKeyID"`
	SecretAccessKey string `json:"SecretAccessKey"`
	UseSSL          bool   `json:"UseSSL"`
}

type DerivativeConfig struct {
	DSID   string `json:"DSID" validate:"required,alphanum,uppercase,ne=OBJ,ne=MODS"`
	Type   string `json:"Type" validate:"required,oneof=jpeg webp tiff"`
	Config any    `json:"Config" validate:"required"`
}

func (dc *DerivativeConfig) UnmarshalJSON(data []byte) error {
	var tmp struct {
		DSID   string          `json:"DSID"`
		Type   string          `json:"Type"`
		Config json.RawMessage `json:"Config"`
	}

	if err := json.Unmarshal(data, &tmp); err != nil {
		return err
	}

	dc.DSID = tmp.DSID
	dc.Type = tmp.Type

	switch tmp.Type {
	case "jpeg":
		var jpegConfig JpegConfig
		if err := json.Unmarshal(tmp.Config, &jpegConfig); err != nil {
			return fmt.Errorf("unmarshal JpegConfig: %w", err)
		}
		dc.Config = &jpegConfig
	case "webp":
		var webpConfig WebpConfig
		if err := json.Unmarshal(tmp.Config, &webpConfig); err != nil {
			return fmt.Errorf("unmarshal WebpConfig: %w", err)
		}
		dc.Config = &webpConfig
	case "tiff":
		var tiffConfig TiffConfig
		if err := json.Unmarshal(tmp.Config, &tiffConfig); err != nil {
			return fmt.Errorf("unmarshal TiffConfig: %w", err)
		}
		dc.Config = &tiffConfig
	default:
		return fmt.Errorf("unsupported derivative type: %s", tmp.Type)
	}

	return nil
}

type JpegConfig struct {
	Quality int        `json:"Quality" validate:"required,min=1,max=100"`
	Size    SizeConfig `json:"Size"`
}

type WebpConfig struct {
	Quality int        `json:"Quality" validate:"required,min=1,max=100"`
	Size    SizeConfig `json:"Size"`
}

type TiffConfig struct {
	Compression string     `json:"Compression" validate:"required,oneof=none deflate"`
	Size        SizeConfig `json:"Size"`
}

// SizeConfig bounds a derivative; zero means unbounded on that axis.
type SizeConfig struct {
	MaxWidth  int `json:"MaxWidth" validate:"min=0"`
	MaxHeight int `json:"MaxHeight" validate:"min=0"`
}

// Default returns the configuration used when no configuration file is given:
// local output without extended attributes and the JPG/TN derivatives
// Islandora shows in its newspaper viewer.
func Default() *Config {
	return &Config{
		Input: InputConfig{
			KnownExtensions: []string{"tif", "tiff", "jpg", "jpeg", "png", "webp", "pdf"},
		},
		Output: OutputConfig{
			FilePermissionMode:       "0644",
			DirPermissionMode:        "0755",
			AttributesImplementation: "none",
		},
		Derivatives: []DerivativeConfig{
			{DSID: "JPG", Type: "jpeg", Config: &JpegConfig{Quality: 85, Size: SizeConfig{MaxWidth: 1600}}},
			{DSID: "TN", Type: "jpeg", Config: &JpegConfig{Quality: 75, Size: SizeConfig{MaxWidth: 200, MaxHeight: 200}}},
		},
		MaxConcurrentJobs: 1,
		PageMODS:          true,
		PDFDPI:            300,
	}
}

func LoadConfig(path string, config *Config) error {
	fileBytes, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	expandedFileBytes := []byte(os.ExpandEnv(string(fileBytes)))

	if err = json.Unmarshal(expandedFileBytes, config); err != nil {
		return err
	}

	return nil
}

// InitConfig loads path over the defaults and validates the result. An empty
// path yields the validated defaults.
func InitConfig(path string) (*Config, error) {
	config := Default()
	if path != "" {
		if err := LoadConfig(path, config); err != nil {
			return nil, fmt.Errorf("fail to load config '%s': %w", path, err)
		}
	}

	if err := Validate(config); err != nil {
		return nil, err
	}

	return config, nil
}

func Validate(config *Config) error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(config); err != nil {
		return fmt.Errorf("fail to validate config: %w", err)
	}

	seen := make(map[string]bool, len(config.Derivatives))
	for _, d := range config.Derivatives {
		if seen[d.DSID] {
			return fmt.Errorf("fail to validate config: duplicate derivative DSID '%s'", d.DSID)
		}
		seen[d.DSID] = true
	}

	return nil
}
