package config

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"
	pkgerrors "github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/charlie0129/lcqe/pkg/corrector"
	"github.com/charlie0129/lcqe/pkg/errdefs"
	"github.com/charlie0129/lcqe/pkg/flux"
	"github.com/charlie0129/lcqe/pkg/utils/ptr"
)

// EnvPrefix prefixes every environment override, e.g. LCQE_TOLERANCE.
const EnvPrefix = "LCQE"

var (
	defaultFileConfig = &RawFileConfig{
		Tolerance:          ptr.To(corrector.DefaultTolerance),
		MaxIterations:      ptr.To(corrector.DefaultMaxIterations),
		SpectrumKind:       ptr.To(flux.KindGlobal.String()),
		SpectrumFile:       ptr.To(""),
		MinSpan:            ptr.To(0.0),
		AllowNonRootAccess: ptr.To(false),
		SessionIdleMinutes: ptr.To(30),
		PruneSchedule:      ptr.To("@every 10m"),
	}

	// CronParser parses pruneSchedule: standard cron with optional seconds,
	// plus descriptors such as "@every 10m".
	CronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

	validate = newValidator()
)

var _ Config = &File{}

type File struct {
	c *RawFileConfig
	// env holds LCQE_* overrides. They win over the file and are never
	// written back by Save.
	env      *RawFileConfig
	mu       *sync.RWMutex
	filepath string
}

func NewFile(configPath string) (*File, error) {
	f := &File{
		filepath: configPath,
		mu:       &sync.RWMutex{},
	}
	err := f.Load()
	if err != nil {
		return nil, err
	}

	return f, nil
}

// NewFileFromConfig wraps c without reading configPath or the environment.
func NewFileFromConfig(c *RawFileConfig, configPath string) *File {
	if c == nil {
		c = &RawFileConfig{}
	}

	return &File{
		c:        c,
		env:      &RawFileConfig{},
		mu:       &sync.RWMutex{},
		filepath: configPath,
	}
}

type RawFileConfig struct {
	Tolerance          *float64 `json:"tolerance,omitempty" toml:"tolerance,omitempty" yaml:"tolerance,omitempty" envconfig:"TOLERANCE" validate:"omitempty,gt=0"`
	MaxIterations      *int     `json:"maxIterations,omitempty" toml:"maxIterations,omitempty" yaml:"maxIterations,omitempty" envconfig:"MAX_ITERATIONS" validate:"omitempty,min=1,max=100000"`
	SpectrumKind       *string  `json:"spectrumKind,omitempty" toml:"spectrumKind,omitempty" yaml:"spectrumKind,omitempty" envconfig:"SPECTRUM_KIND" validate:"omitempty,oneof=direct global custom"`
	SpectrumFile       *string  `json:"spectrumFile,omitempty" toml:"spectrumFile,omitempty" yaml:"spectrumFile,omitempty" envconfig:"SPECTRUM_FILE"`
	MinSpan            *float64 `json:"minSpan,omitempty" toml:"minSpan,omitempty" yaml:"minSpan,omitempty" envconfig:"MIN_SPAN" validate:"omitempty,gte=0"`
	AllowNonRootAccess *bool    `json:"allowNonRootAccess,omitempty" toml:"allowNonRootAccess,omitempty" yaml:"allowNonRootAccess,omitempty" envconfig:"ALLOW_NON_ROOT_ACCESS"`
	SessionIdleMinutes *int     `json:"sessionIdleMinutes,omitempty" toml:"sessionIdleMinutes,omitempty" yaml:"sessionIdleMinutes,omitempty" envconfig:"SESSION_IDLE_MINUTES" validate:"omitempty,min=1"`
	PruneSchedule      *string  `json:"pruneSchedule,omitempty" toml:"pruneSchedule,omitempty" yaml:"pruneSchedule,omitempty" envconfig:"PRUNE_SCHEDULE" validate:"omitnil,cron"`
}

// NewRawFileConfigFromConfig flattens the effective values of c.
func NewRawFileConfigFromConfig(c Config) (*RawFileConfig, error) {
	if c == nil {
		return nil, pkgerrors.New("config is nil")
	}

	rawConfig := &RawFileConfig{
		Tolerance:          ptr.To(c.Tolerance()),
		MaxIterations:      ptr.To(c.MaxIterations()),
		SpectrumKind:       ptr.To(c.SpectrumKind().String()),
		SpectrumFile:       ptr.To(c.SpectrumFile()),
		MinSpan:            ptr.To(c.MinSpan()),
		AllowNonRootAccess: ptr.To(c.AllowNonRootAccess()),
		SessionIdleMinutes: ptr.To(int(c.SessionIdleTimeout() / time.Minute)),
		PruneSchedule:      ptr.To(c.PruneSchedule()),
	}

	return rawConfig, nil
}

// get resolves one key: environment, then file, then default.
func get[T any](f *File, field func(*RawFileConfig) *T) T {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.env != nil {
		if v := field(f.env); v != nil {
			return *v
		}
	}
	if v := field(f.c); v != nil {
		return *v
	}
	return *field(defaultFileConfig)
}

func (f *File) Tolerance() float64 {
	return get(f, func(c *RawFileConfig) *float64 { return c.Tolerance })
}

func (f *File) MaxIterations() int {
	return get(f, func(c *RawFileConfig) *int { return c.MaxIterations })
}

func (f *File) SpectrumKind() flux.Kind {
	s := get(f, func(c *RawFileConfig) *string { return c.SpectrumKind })
	k, err := flux.ParseKind(s)
	if err != nil {
		// Validated on Load; only reachable through NewFileFromConfig.
		logrus.WithError(err).Warn("invalid spectrum kind in config, using global")
		return flux.KindGlobal
	}
	return k
}

func (f *File) SpectrumFile() string {
	return get(f, func(c *RawFileConfig) *string { return c.SpectrumFile })
}

func (f *File) MinSpan() float64 {
	return get(f, func(c *RawFileConfig) *float64 { return c.MinSpan })
}

func (f *File) AllowNonRootAccess() bool {
	return get(f, func(c *RawFileConfig) *bool { return c.AllowNonRootAccess })
}

func (f *File) SessionIdleTimeout() time.Duration {
	return time.Duration(get(f, func(c *RawFileConfig) *int { return c.SessionIdleMinutes })) * time.Minute
}

func (f *File) PruneSchedule() string {
	return get(f, func(c *RawFileConfig) *string { return c.PruneSchedule })
}

func (f *File) CorrectorOptions() corrector.Options {
	return corrector.Options{
		Tolerance:     f.Tolerance(),
		MaxIterations: f.MaxIterations(),
		MinSpan:       f.MinSpan(),
	}
}

// set validates the single key held by candidate, then stores it and drops
// any environment override for it.
func set[T any](f *File, candidate *RawFileConfig, field func(*RawFileConfig) **T) error {
	if f.c == nil {
		panic("config is nil")
	}
	if err := validateRaw(candidate); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	*field(f.c) = *field(candidate)
	if f.env != nil {
		*field(f.env) = nil
	}
	return nil
}

func (f *File) SetTolerance(v float64) error {
	return set(f, &RawFileConfig{Tolerance: &v}, func(c *RawFileConfig) **float64 { return &c.Tolerance })
}

func (f *File) SetMaxIterations(v int) error {
	return set(f, &RawFileConfig{MaxIterations: &v}, func(c *RawFileConfig) **int { return &c.MaxIterations })
}

func (f *File) SetSpectrumKind(k flux.Kind) {
	s := k.String()
	_ = set(f, &RawFileConfig{SpectrumKind: &s}, func(c *RawFileConfig) **string { return &c.SpectrumKind })
}

func (f *File) SetSpectrumFile(p string) {
	_ = set(f, &RawFileConfig{SpectrumFile: &p}, func(c *RawFileConfig) **string { return &c.SpectrumFile })
}

func (f *File) SetMinSpan(v float64) error {
	return set(f, &RawFileConfig{MinSpan: &v}, func(c *RawFileConfig) **float64 { return &c.MinSpan })
}

func (f *File) SetAllowNonRootAccess(b bool) {
	_ = set(f, &RawFileConfig{AllowNonRootAccess: &b}, func(c *RawFileConfig) **bool { return &c.AllowNonRootAccess })
}

// Path is the file backing the configuration.
func (f *File) Path() string { return f.filepath }

// Load reads the file, then applies LCQE_* environment overrides. A missing
// or empty file yields the defaults.
func (f *File) Load() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	env := &RawFileConfig{}
	if err := envconfig.Process(EnvPrefix, env); err != nil {
		return pkgerrors.Wrapf(err, "failed to read %s_* environment", EnvPrefix)
	}
	if err := validateRaw(env); err != nil {
		return pkgerrors.Wrapf(err, "invalid %s_* environment", EnvPrefix)
	}

	conf, err := f.read()
	if err != nil {
		return err
	}
	if err := validateRaw(conf); err != nil {
		return pkgerrors.Wrapf(err, "invalid config file %s", f.filepath)
	}

	f.c = conf
	f.env = env
	return nil
}

func (f *File) read() (*RawFileConfig, error) {
	fp, err := os.Open(f.filepath)
	if err != nil {
		if os.IsNotExist(err) {
			return &RawFileConfig{}, nil
		}
		return nil, pkgerrors.Wrapf(err, "failed to open file %s", f.filepath)
	}
	defer func(fp *os.File) {
		err := fp.Close()
		if err != nil {
			logrus.Warnf("failed to close file %s", f.filepath)
		}
	}(fp)

	b, err := io.ReadAll(fp)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to read file %s", f.filepath)
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return &RawFileConfig{}, nil
	}

	conf := &RawFileConfig{}
	switch format(f.filepath) {
	case "toml":
		err = toml.Unmarshal(b, conf)
	case "yaml":
		err = yaml.Unmarshal(b, conf)
	default:
		err = json.Unmarshal(b, conf)
	}
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal config from file %s", f.filepath)
	}
	return conf, nil
}

func (f *File) Save() error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.c == nil {
		return pkgerrors.New("config is nil")
	}

	fp, err := os.OpenFile(f.filepath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to open file %s", f.filepath)
	}
	defer func(fp *os.File) {
		err := fp.Close()
		if err != nil {
			logrus.Warnf("failed to close file %s", f.filepath)
		}
	}(fp)

	switch format(f.filepath) {
	case "toml":
		err = toml.NewEncoder(fp).Encode(f.c)
	case "yaml":
		enc := yaml.NewEncoder(fp)
		enc.SetIndent(2)
		err = enc.Encode(f.c)
		if err == nil {
			err = enc.Close()
		}
	default:
		enc := json.NewEncoder(fp)
		enc.SetIndent("", "  ")
		err = enc.Encode(f.c)
	}
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to encode config to file %s", f.filepath)
	}

	return nil
}

func (f *File) LogrusFields() logrus.Fields {
	if f.c == nil {
		panic("config is nil")
	}

	return logrus.Fields{
		"tolerance":          f.Tolerance(),
		"maxIterations":      f.MaxIterations(),
		"spectrumKind":       f.SpectrumKind().String(),
		"spectrumFile":       f.SpectrumFile(),
		"minSpan":            f.MinSpan(),
		"allowNonRootAccess": f.AllowNonRootAccess(),
		"sessionIdleTimeout": f.SessionIdleTimeout().String(),
		"pruneSchedule":      f.PruneSchedule(),
	}
}

func format(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return "toml"
	case ".yaml", ".yml":
		return "yaml"
	default:
		return "json"
	}
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("cron", func(fl validator.FieldLevel) bool {
		_, err := CronParser.Parse(fl.Field().String())
		return err == nil
	})
	return v
}

// validateRaw reports the first offending key as a ValidationError.
func validateRaw(c *RawFileConfig) error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !pkgerrors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	return errdefs.NewValidationError(fe.Field(), "%v fails %q", fe.Value(), fe.Tag()+optionalParam(fe.Param()))
}

func optionalParam(p string) string {
	if p == "" {
		return ""
	}
	return "=" + p
}
