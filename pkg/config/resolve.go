package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// Resolved is the endpoint a command talks to.
type Resolved struct {
	APIURL   string
	Token    string
	Profile  string
	Insecure bool
}

// Selected returns the profile chosen by --profile, else the active one.
// Unknown or unreadable configs yield an empty profile.
func Selected(cmd *cobra.Command) Profile {
	cfg, err := Load()
	if err != nil {
		cfg = empty()
	}
	name := cfg.Active
	if p, _ := cmd.Root().PersistentFlags().GetString("profile"); p != "" {
		name = p
	}
	prof := cfg.Profiles[name]
	prof.Name = name
	return prof
}

// Resolve picks the API URL and token from flags, then ADMINCTL_API_URL and
// ADMINCTL_TOKEN, then the selected profile.
func Resolve(cmd *cobra.Command) (Resolved, error) {
	flagURL, _ := cmd.Root().PersistentFlags().GetString("api-url")
	flagToken, _ := cmd.Root().PersistentFlags().GetString("token")
	cp := Selected(cmd)

	url := firstNonEmpty(flagURL, os.Getenv("ADMINCTL_API_URL"), cp.APIURL)
	tok := firstNonEmpty(flagToken, os.Getenv("ADMINCTL_TOKEN"), cp.Token)
	if url == "" {
		return Resolved{}, fmt.Errorf("API URL not set (flag/env/profile %s)", cp.Name)
	}
	if tok == "" {
		return Resolved{}, fmt.Errorf("token not set (flag/env/profile %s)", cp.Name)
	}
	return Resolved{APIURL: url, Token: tok, Profile: cp.Name, Insecure: cp.Insecure}, nil
}

// Database is what the database commands connect with.
type Database struct {
	DSN         string
	TablePrefix string
}

// ResolveDB fills the DSN and table prefix the flags left unset from the
// selected profile. prefixSet reports whether --table-prefix was given.
func ResolveDB(cmd *cobra.Command, dsn, prefix string, prefixSet bool) (Database, error) {
	cp := Selected(cmd)
	db := Database{DSN: firstNonEmpty(dsn, cp.DSN), TablePrefix: prefix}
	if !prefixSet && cp.TablePrefix != "" {
		db.TablePrefix = cp.TablePrefix
	}
	if db.DSN == "" {
		return Database{}, fmt.Errorf("database DSN not set (--db, ADMIN_DSN or profile %s)", cp.Name)
	}
	return db, nil
}

// SitePath returns flagSite when given, else the profile's site file, else def.
func SitePath(cmd *cobra.Command, flagSite, def string) string {
	return firstNonEmpty(flagSite, Selected(cmd).Site, def)
}

func firstNonEmpty(ss ...string) string {
	for _, s := range ss {
		if strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}
