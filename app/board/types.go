package board

import (
	"strconv"
	"time"
)

// LegacyKeyThreshold separates legacy thread keys, which are decimal epoch
// seconds, from the opaque identifiers newer boards assign. Ten decimal
// digits of epoch seconds cover dates well past the boards' lifetime.
const LegacyKeyThreshold = int64(10_000_000_000)

// Subject is one entry of a board's subject.txt index, in server order.
type Subject struct {
	Key   string
	Title string
	Count int
}

// Post is one entry of a thread's DAT stream, in server order.
type Post struct {
	Name       string
	Mail       string
	DateString string
	ID         string
	Body       string
	Ordinal    int
}

// DecodeLegacyKey interprets a thread key as epoch seconds. Opaque keys
// (non-numeric or at/above LegacyKeyThreshold) report false.
func DecodeLegacyKey(key string) (time.Time, bool) {
	n, err := strconv.ParseInt(key, 10, 64)
	if err != nil || n <= 0 || n >= LegacyKeyThreshold {
		return time.Time{}, false
	}
	return time.Unix(n, 0), true
}

// Configuration types

type Config struct {
	Name     string         // Derived from filename (without .yml extension)
	URL      string         `yaml:"url"`
	Settings ConfigSettings `yaml:"settings"`
}

type ConfigSettings struct {
	Enabled         bool `yaml:"enabled"`
	RefreshInterval int  `yaml:"refresh_interval"` // seconds
	Timeout         int  `yaml:"timeout"`          // seconds
}

// SubjectURL returns the board's thread index resource.
func (c *Config) SubjectURL() string {
	return c.URL + "/subject.txt"
}

// DatURL returns the post stream resource for a thread key.
func (c *Config) DatURL(key string) string {
	return c.URL + "/dat/" + key + ".dat"
}
