package oui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	DefaultPath   = "/usr/local/share/oui.csv"
	DefaultURL    = "https://standards-oui.ieee.org/oui/oui.csv"
	DefaultMaxAge = 7 * 24 * time.Hour
)

// Cache keeps a local copy of the IEEE OUI CSV and refreshes it when it is
// older than MaxAge.
type Cache struct {
	Path   string
	URL    string
	MaxAge time.Duration
	Client *http.Client
	Log    logrus.FieldLogger

	now func() time.Time
}

func (c *Cache) defaults() {
	if c.Path == "" {
		c.Path = DefaultPath
	}
	if c.URL == "" {
		c.URL = DefaultURL
	}
	if c.MaxAge <= 0 {
		c.MaxAge = DefaultMaxAge
	}
	if c.Client == nil {
		c.Client = &http.Client{Timeout: 2 * time.Minute}
	}
	if c.Log == nil {
		c.Log = logrus.StandardLogger()
	}
	if c.now == nil {
		c.now = time.Now
	}
}

// Stale reports whether the cache file is missing or older than MaxAge.
func (c *Cache) Stale() (bool, error) {
	c.defaults()
	info, err := os.Stat(c.Path)
	if errors.Is(err, os.ErrNotExist) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("cannot get metadata for oui db file: %w", err)
	}
	age := c.now().Sub(info.ModTime())
	c.Log.Infof("OUI database file last modified %s ago", age.Round(time.Second))
	return age > c.MaxAge, nil
}

// Refresh downloads the database next to Path and renames it into place,
// so readers never see a partial file.
func (c *Cache) Refresh(ctx context.Context) error {
	c.defaults()
	c.Log.Infof("will download OUI database from %s to %s", c.URL, c.Path)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL, nil)
	if err != nil {
		return fmt.Errorf("build oui request: %w", err)
	}
	resp, err := c.Client.Do(req)
	if err != nil {
		return fmt.Errorf("download oui database: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download oui database: unexpected status %s", resp.Status)
	}

	if err := os.MkdirAll(filepath.Dir(c.Path), 0o755); err != nil {
		return fmt.Errorf("create oui directory: %w", err)
	}
	tmp := c.Path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("cannot create database: %w", err)
	}
	n, err := io.Copy(f, resp.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return fmt.Errorf("cannot write to database: %w", err)
	}
	if err := os.Rename(tmp, c.Path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("cannot move database file: %w", err)
	}

	c.Log.WithField("bytes", n).Info("OUI database download completed")
	return nil
}

// Load refreshes the cache when it is stale and parses it. A failed refresh
// falls back to an existing stale copy.
func (c *Cache) Load(ctx context.Context) (*Database, error) {
	c.defaults()

	stale, err := c.Stale()
	if err != nil {
		return nil, err
	}
	if stale {
		if err := c.Refresh(ctx); err != nil {
			if _, statErr := os.Stat(c.Path); statErr != nil {
				return nil, err
			}
			c.Log.WithError(err).Warn("OUI refresh failed, using stale database")
		}
	} else {
		c.Log.Info("OUI database is recent enough, not downloading")
	}

	return c.Open()
}

// Open parses the cache file as it is, without refreshing it.
func (c *Cache) Open() (*Database, error) {
	c.defaults()
	f, err := os.Open(c.Path)
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}
	defer f.Close()

	db, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.Path, err)
	}
	c.Log.WithField("entries", db.Len()).Info("OUI database loaded")
	return db, nil
}
