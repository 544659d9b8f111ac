// Package config loads broker connection settings from a YAML file
package config

import (
	"io/ioutil"
	"os"
	"time"

	"github.com/pkg/errors"
	yaml "gopkg.in/yaml.v2"

	rabbit "github.com/w1ck3dg0ph3r/rabbit-patterns"
)

// Config holds broker connection settings
type Config struct {
	Protocol          string        `yaml:"protocol"`
	Hostnames         []string      `yaml:"hostnames"`
	Vhost             string        `yaml:"vhost"`
	Username          string        `yaml:"username"`
	Password          string        `yaml:"password"`
	DialTimeout       time.Duration `yaml:"dial_timeout"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
	ConnectionBackoff time.Duration `yaml:"connection_backoff"`
	Heartbeat         time.Duration `yaml:"heartbeat"`
}

// Default returns settings of a local broker with the guest account
func Default() Config {
	return Config{
		Protocol:          "amqp",
		Hostnames:         []string{"127.0.0.1:5672"},
		Vhost:             "/",
		Username:          "guest",
		Password:          "guest",
		DialTimeout:       3 * time.Second,
		ConnectionTimeout: 10 * time.Second,
		ConnectionBackoff: 1 * time.Second,
		Heartbeat:         10 * time.Second,
	}
}

// Load reads settings from a YAML file on top of the defaults
//
// Empty path and a missing file yield the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	b, err := ioutil.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, errors.Wrapf(err, "cant read config %s", path)
	}
	if err := Parse(b, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "cant parse config %s", path)
	}
	return cfg, nil
}

// Parse overrides cfg with settings present in YAML document b
func Parse(b []byte, cfg *Config) error {
	if err := yaml.UnmarshalStrict(b, cfg); err != nil {
		return err
	}
	if len(cfg.Hostnames) == 0 {
		return errors.New("no hostnames")
	}
	return nil
}

// Connection returns a broker connection with the settings
func (c Config) Connection(logger rabbit.Logger) *rabbit.Connection {
	return &rabbit.Connection{
		Protocol:          c.Protocol,
		Hostnames:         c.Hostnames,
		Vhost:             c.Vhost,
		Username:          c.Username,
		Password:          c.Password,
		DialTimeout:       c.DialTimeout,
		ConnectionTimeout: c.ConnectionTimeout,
		ConnectionBackoff: c.ConnectionBackoff,
		Heartbeat:         c.Heartbeat,
		Logger:            logger,
	}
}
