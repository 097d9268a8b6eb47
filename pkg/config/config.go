// Package config loads sinkhorn CLI settings from a YAML file.
package config

import (
	"io"
	"os"
	"path/filepath"

	"github.com/go-faster/errors"
	"gopkg.in/yaml.v3"
	"k3l.io/go-sinkhorn/pkg/experiment"
	"k3l.io/go-sinkhorn/pkg/oracle"
	"k3l.io/go-sinkhorn/pkg/sinkhorn"
)

// DefaultFileName is looked up in the home directory
// when no config file is given.
const DefaultFileName = ".sinkhorn.yaml"

type Normalize struct {
	Iterations int `yaml:"iterations"`
	// Tolerance enables early stopping when nonzero; it must be positive.
	Tolerance float64 `yaml:"tolerance"`
	Format    string  `yaml:"format"`
}

type Oracle struct {
	Method string `yaml:"method"`
	// MaxIterations and Tolerance select the solver's defaults when zero.
	MaxIterations int     `yaml:"maxIterations"`
	Tolerance     float64 `yaml:"tolerance"`
}

type Serve struct {
	ListenAddress string `yaml:"listenAddress"`
	TLS           bool   `yaml:"tls"`
	TLSCert       string `yaml:"tlsCert"`
	TLSKey        string `yaml:"tlsKey"`
}

type Playground struct {
	ListenAddress string `yaml:"listenAddress"`
}

type Config struct {
	LogLevel   string            `yaml:"logLevel"`
	Normalize  Normalize         `yaml:"normalize"`
	Oracle     Oracle            `yaml:"oracle"`
	Serve      Serve             `yaml:"serve"`
	Playground Playground        `yaml:"playground"`
	Experiment experiment.Config `yaml:"experiment"`
}

func Default() Config {
	return Config{
		LogLevel: "info",
		Normalize: Normalize{
			Iterations: sinkhorn.DefaultIterations,
			Format:     "auto",
		},
		Oracle: Oracle{Method: string(oracle.MethodQP)},
		Serve: Serve{
			TLSCert: "server.crt",
			TLSKey:  "server.key",
		},
		Playground: Playground{ListenAddress: ":8080"},
		Experiment: experiment.DefaultConfig(),
	}
}

// Decode overlays the YAML document read from r onto cfg.
// Unknown keys are errors.
func Decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return err
	}
	return nil
}

// Load returns the defaults overlaid with the given file.
// If path is empty, $HOME/.sinkhorn.yaml is used if it exists.
func Load(path string) (Config, error) {
	cfg := Default()
	explicit := path != ""
	if !explicit {
		home, err := os.UserHomeDir()
		if err != nil {
			return cfg, nil
		}
		path = filepath.Join(home, DefaultFileName)
	}
	f, err := os.Open(path)
	switch {
	case err == nil:
	case !explicit && errors.Is(err, os.ErrNotExist):
		return cfg, nil
	default:
		return cfg, errors.Wrap(err, "cannot open config file")
	}
	defer func() { _ = f.Close() }()
	if err = Decode(f, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "cannot parse config file %#v", path)
	}
	return cfg, nil
}
