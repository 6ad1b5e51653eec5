package config

import (
	"errors"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// ConversionPolicy holds the tunable limits of the conversion endpoint.
type ConversionPolicy struct {
	DailyLimit         int      `mapstructure:"dailyLimit"`
	MaxUploadBytes     int64    `mapstructure:"maxUploadBytes"`
	Formats            []string `mapstructure:"formats"`
	DefaultFormat      string   `mapstructure:"defaultFormat"`
	UnlimitedRemaining int      `mapstructure:"unlimitedRemaining"`
	PremiumPeriodDays  int      `mapstructure:"premiumPeriodDays"`
	FreeFilenamePrefix string   `mapstructure:"freeFilenamePrefix"`
}

func DefaultConversionPolicy() ConversionPolicy {
	return ConversionPolicy{
		DailyLimit:         5,
		MaxUploadBytes:     50 * 1024 * 1024,
		Formats:            []string{"mp3", "wav", "flac", "m4a", "ogg"},
		DefaultFormat:      "mp3",
		UnlimitedRemaining: 999,
		PremiumPeriodDays:  30,
		FreeFilenamePrefix: "talechto_",
	}
}

// AllowsFormat reports whether format is on the allow-list.
func (p ConversionPolicy) AllowsFormat(format string) bool {
	format = strings.ToLower(strings.TrimSpace(format))
	for _, allowed := range p.Formats {
		if allowed == format {
			return true
		}
	}
	return false
}

// MaxUploadMB is the upload ceiling expressed in whole megabytes.
func (p ConversionPolicy) MaxUploadMB() int64 {
	return p.MaxUploadBytes / (1024 * 1024)
}

type PolicyHolder struct {
	current atomic.Value // holds ConversionPolicy
}

// NewStaticPolicyHolder returns a holder that never reloads.
func NewStaticPolicyHolder(policy ConversionPolicy) *PolicyHolder {
	holder := &PolicyHolder{}
	holder.current.Store(policy)
	return holder
}

func NewPolicyHolder(log *zap.Logger) (*PolicyHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("config.policy")

	v := viper.New()
	v.SetConfigName("policy")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/talechto")
	v.AddConfigPath(".")

	v.SetEnvPrefix("TALECHTO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultConversionPolicy()
	v.SetDefault("conversion.dailyLimit", defaults.DailyLimit)
	v.SetDefault("conversion.maxUploadBytes", defaults.MaxUploadBytes)
	v.SetDefault("conversion.formats", defaults.Formats)
	v.SetDefault("conversion.defaultFormat", defaults.DefaultFormat)
	v.SetDefault("conversion.unlimitedRemaining", defaults.UnlimitedRemaining)
	v.SetDefault("conversion.premiumPeriodDays", defaults.PremiumPeriodDays)
	v.SetDefault("conversion.freeFilenamePrefix", defaults.FreeFilenamePrefix)

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileFound = false
	}

	policy, err := decodePolicy(v)
	if err != nil {
		return nil, err
	}
	if err := validatePolicy(policy); err != nil {
		return nil, err
	}

	holder := NewStaticPolicyHolder(policy)
	if !fileFound {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodePolicy(v)
		if err != nil {
			log.Warn("policy reload failed", zap.Error(err))
			return
		}
		if err := validatePolicy(updated); err != nil {
			log.Warn("invalid policy ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("policy reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *PolicyHolder) Get() ConversionPolicy {
	return h.current.Load().(ConversionPolicy)
}

func decodePolicy(v *viper.Viper) (ConversionPolicy, error) {
	var file struct {
		Conversion ConversionPolicy `mapstructure:"conversion"`
	}
	if err := v.Unmarshal(&file); err != nil {
		return ConversionPolicy{}, err
	}
	return normalizePolicy(file.Conversion), nil
}

func normalizePolicy(p ConversionPolicy) ConversionPolicy {
	formats := make([]string, 0, len(p.Formats))
	for _, f := range p.Formats {
		f = strings.ToLower(strings.TrimSpace(f))
		if f != "" {
			formats = append(formats, f)
		}
	}
	p.Formats = formats
	p.DefaultFormat = strings.ToLower(strings.TrimSpace(p.DefaultFormat))
	return p
}

func validatePolicy(p ConversionPolicy) error {
	if p.DailyLimit <= 0 {
		return errors.New("conversion.dailyLimit must be positive")
	}
	if p.MaxUploadBytes <= 0 {
		return errors.New("conversion.maxUploadBytes must be positive")
	}
	if len(p.Formats) == 0 {
		return errors.New("conversion.formats cannot be empty")
	}
	if !p.AllowsFormat(p.DefaultFormat) {
		return errors.New("conversion.defaultFormat must be an allowed format")
	}
	if p.UnlimitedRemaining < p.DailyLimit {
		return errors.New("conversion.unlimitedRemaining must not be below the daily limit")
	}
	if p.PremiumPeriodDays <= 0 {
		return errors.New("conversion.premiumPeriodDays must be positive")
	}
	return nil
}
