// Package config loads and holds the tunables for the storage engine.
// Grounded on the teacher's config/db_config.go (JSON + key=value
// loader) and extended with a YAML loader, since the AMBIENT STACK
// (SPEC_FULL.md §1a) pulls gopkg.in/yaml.v3 from the tinySQL example.
package config

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jmcarbo/reldb/internal/errs"
)

// PageSize is the compile-time page size named by spec.md §3 ("PAGE_SIZE
// is a compile-time constant (typical 4096)"). New uses this value;
// NewWithPageSize and a config file's "pagesize" key (read by Load)
// override it, and Load falls back to it when the key is absent.
const PageSize = 4096

// CompressAlgorithm names the optional framing applied to log-file
// payloads (SPEC_FULL.md §1b). Record pages are never compressed.
type CompressAlgorithm string

const (
	CompressNone   CompressAlgorithm = ""
	CompressSnappy CompressAlgorithm = "snappy"
	CompressLZ4    CompressAlgorithm = "lz4"
)

// Config holds the tunables for one open database.
type Config struct {
	DBPath            string            `json:"dbpath" yaml:"dbpath"`
	PageSize          int               `json:"pagesize" yaml:"pagesize"`
	BufferPoolFrames  int               `json:"buffer_frames" yaml:"buffer_frames"`
	BufferPoolPolicy  string            `json:"buffer_policy" yaml:"buffer_policy"`
	LogCompression    CompressAlgorithm `json:"log_compression" yaml:"log_compression"`
	DeadlockProbeHops int               `json:"deadlock_probe_hops" yaml:"deadlock_probe_hops"`
}

// New builds a Config for dbPath with the engine's defaults.
func New(dbPath string) *Config {
	return &Config{
		DBPath:            dbPath,
		PageSize:          PageSize,
		BufferPoolFrames:  64,
		BufferPoolPolicy:  "LRU",
		LogCompression:    CompressNone,
		DeadlockProbeHops: 8,
	}
}

// NewWithPageSize is New with an explicit page size, used by tests that
// want a page size other than PageSize.
func NewWithPageSize(dbPath string, pageSize int) *Config {
	c := New(dbPath)
	c.PageSize = pageSize
	return c
}

// Load reads a config file. JSON and YAML are detected by extension
// (.json, .yml/.yaml); anything else falls back to the teacher's
// simple `key = value` / `key: value` line format.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Wrap(errs.FileNotFound, err, "read config")
	}
	if len(data) == 0 {
		return nil, errs.New(errs.Internal, "empty config file")
	}

	var c Config
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yml", ".yaml":
		if err := yaml.Unmarshal(data, &c); err != nil {
			return nil, errs.Wrap(errs.Internal, err, "parse yaml config")
		}
	case ".json":
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, errs.Wrap(errs.Internal, err, "parse json config")
		}
	default:
		if err := json.Unmarshal(data, &c); err != nil || c.DBPath == "" {
			parseKeyValue(string(data), &c)
		}
	}
	if c.DBPath == "" {
		return nil, errs.New(errs.Internal, "dbpath not found in config")
	}
	applyDefaults(&c)
	return &c, nil
}

func parseKeyValue(text string, c *Config) {
	scanner := bufio.NewScanner(strings.NewReader(text))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		sep := "="
		if !strings.Contains(line, "=") && strings.Contains(line, ":") {
			sep = ":"
		}
		parts := strings.SplitN(line, sep, 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		val := strings.Trim(strings.TrimSpace(parts[1]), `"'`)
		switch key {
		case "dbpath":
			c.DBPath = val
		case "pagesize":
			if v, err := strconv.Atoi(val); err == nil {
				c.PageSize = v
			}
		case "buffer_frames":
			if v, err := strconv.Atoi(val); err == nil {
				c.BufferPoolFrames = v
			}
		case "buffer_policy":
			c.BufferPoolPolicy = val
		case "log_compression":
			c.LogCompression = CompressAlgorithm(val)
		}
	}
}

func applyDefaults(c *Config) {
	if c.PageSize == 0 {
		c.PageSize = PageSize
	}
	if c.BufferPoolFrames == 0 {
		c.BufferPoolFrames = 64
	}
	if c.BufferPoolPolicy == "" {
		c.BufferPoolPolicy = "LRU"
	}
	if c.DeadlockProbeHops == 0 {
		c.DeadlockProbeHops = 8
	}
}
