// Package config stores adminctl profiles in ~/.adminctl/config.json.
//
// A profile names one admin deployment: the API it serves and, for the
// database commands, the DSN, engine table prefix and site file behind it.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
)

// CurrentVersion is written by Save. Version 1 files had no database keys.
const CurrentVersion = 2

// Profile is one saved admin deployment.
type Profile struct {
	Name        string `json:"name"`
	APIURL      string `json:"apiUrl"`
	Token       string `json:"token"`
	Insecure    bool   `json:"insecure"`
	DSN         string `json:"dsn,omitempty"`
	TablePrefix string `json:"tablePrefix,omitempty"`
	Site        string `json:"site,omitempty"`
}

// Keys lists the profile keys Set accepts.
var Keys = []string{"api-url", "token", "insecure", "dsn", "table-prefix", "site"}

// Set assigns one profile key by its flag name.
func (p *Profile) Set(key, value string) error {
	switch key {
	case "api-url":
		p.APIURL = value
	case "token":
		p.Token = value
	case "insecure":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("insecure: %w", err)
		}
		p.Insecure = b
	case "dsn":
		p.DSN = value
	case "table-prefix":
		p.TablePrefix = value
	case "site":
		if value != "" {
			value = filepath.Clean(value)
		}
		p.Site = value
	default:
		return fmt.Errorf("unknown key %q (want one of %v)", key, Keys)
	}
	return nil
}

type File struct {
	Active   string             `json:"active"`
	Profiles map[string]Profile `json:"profiles"`
	Version  int                `json:"version"`
}

// Names returns the profile names in order.
func (f *File) Names() []string {
	names := make([]string, 0, len(f.Profiles))
	for n := range f.Profiles {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Path returns the config file path, creating its directory.
func Path() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, ".adminctl")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

func empty() *File {
	return &File{Active: "default", Profiles: map[string]Profile{}, Version: CurrentVersion}
}

// Load reads the config file. A missing file yields an empty config.
func Load() (*File, error) {
	p, err := Path()
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(p) // #nosec G304 -- path under the user's home
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return empty(), nil
		}
		return nil, err
	}
	var f File
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("%s: %w", p, err)
	}
	if f.Version > CurrentVersion {
		return nil, fmt.Errorf("%s: version %d is newer than this adminctl", p, f.Version)
	}
	if f.Profiles == nil {
		f.Profiles = map[string]Profile{}
	}
	for name, prof := range f.Profiles {
		if prof.Name == "" {
			prof.Name = name
			f.Profiles[name] = prof
		}
	}
	if f.Active == "" {
		f.Active = "default"
	}
	f.Version = CurrentVersion
	return &f, nil
}

// Save writes f atomically with owner-only permissions.
func Save(f *File) error {
	p, err := Path()
	if err != nil {
		return err
	}
	f.Version = CurrentVersion
	b, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return err
	}
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, p)
}
