package smb1

import (
	"fmt"
	"os"
	"time"

	"golang.org/x/text/encoding/charmap"
	"gopkg.in/yaml.v3"

	"github.com/ineffectivecoder/cifsgoose/internal/encoding"
	"github.com/ineffectivecoder/cifsgoose/pkg/smb1/trans"
)

// Config lists the client settings.
type Config struct {
	Unicode    bool   `yaml:"unicode"`
	OEMCharset string `yaml:"oemCharset"`

	// TransactionBufferSize stages the serialized parameters and data of
	// one transaction.
	TransactionBufferSize int `yaml:"transactionBufferSize"`
	// MaxBufferSize is offered in session setup; the smaller of it and the
	// server's value bounds every packet.
	MaxBufferSize int    `yaml:"maxBufferSize"`
	MaxMpxCount   uint16 `yaml:"maxMpxCount"`
	// MaxResponseTotal caps the reassembly buffer of a transaction response.
	MaxResponseTotal int `yaml:"maxResponseTotal"`

	Timeout time.Duration `yaml:"timeout"`
	PID     uint32        `yaml:"pid"`

	NativeOS     string `yaml:"nativeOS"`
	NativeLanMan string `yaml:"nativeLanMan"`

	DfsTTL    time.Duration `yaml:"dfsTTL"`
	Socks5URL string        `yaml:"socks5"`

	oem *charmap.Charmap
}

// DefaultConfig returns the settings of a typical NT LM 0.12 client.
func DefaultConfig() Config {
	return Config{
		Unicode:               true,
		OEMCharset:            "cp850",
		TransactionBufferSize: trans.DefaultBufferSize,
		MaxBufferSize:         16644,
		MaxMpxCount:           10,
		MaxResponseTotal:      trans.DefaultMaxTotal,
		Timeout:               30 * time.Second,
		PID:                   uint32(os.Getpid()) & 0xFFFF,
		NativeOS:              "Unix",
		NativeLanMan:          "cifsgoose",
		DfsTTL:                5 * time.Minute,
	}
}

// LoadConfig reads YAML settings from path over DefaultConfig.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	f, err := os.Open(path)
	if err != nil {
		return cfg, err
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks ranges and resolves the OEM code page.
func (c *Config) Validate() error {
	if c.MaxBufferSize < 1024 || c.MaxBufferSize > 0xFFFF {
		return fmt.Errorf("maxBufferSize %d out of range", c.MaxBufferSize)
	}
	if c.TransactionBufferSize <= 0 {
		return fmt.Errorf("transactionBufferSize %d out of range", c.TransactionBufferSize)
	}
	cm, err := encoding.OEMByName(c.OEMCharset)
	if err != nil {
		return err
	}
	c.oem = cm
	return nil
}

// OEM returns the configured code page.
func (c *Config) OEM() *charmap.Charmap {
	if c.oem == nil {
		if cm, err := encoding.OEMByName(c.OEMCharset); err == nil {
			c.oem = cm
		} else {
			c.oem = encoding.DefaultOEM
		}
	}
	return c.oem
}
