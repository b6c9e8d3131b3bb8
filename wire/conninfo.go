// File: wire/conninfo.go
// Author: momentics <momentics@gmail.com>
//
// Connection-string parsing: keyword/value and postgres:// URI forms,
// consulting ~/.pgpass and ~/.pg_service.conf the way libpq and pgx do.

package wire

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/jackc/pgpassfile"
	"github.com/jackc/pgservicefile"
)

// ConnInfo holds the resolved connection parameters used by StartConnection.
// Opaque to the rest of the core (spec.md §6: "connection string ... opaque
// to the core"); only wire uses these fields.
type ConnInfo struct {
	Host          string
	Port          string
	Database      string
	User          string
	Password      string
	RuntimeParams map[string]string
}

// ParseConnInfo accepts either a libpq keyword/value string
// ("host=localhost port=5432 user=postgres dbname=mydb") or a postgres://
// URI, resolves a service name via pgservicefile and a missing password via
// pgpassfile, and returns the resolved ConnInfo.
func ParseConnInfo(conninfo string) (ConnInfo, error) {
	raw, err := parseRaw(conninfo)
	if err != nil {
		return ConnInfo{}, err
	}

	if service := raw["service"]; service != "" {
		if err := mergeService(raw, service); err != nil {
			return ConnInfo{}, err
		}
	}

	info := ConnInfo{
		Host:          firstNonEmpty(raw["host"], "localhost"),
		Port:          firstNonEmpty(raw["port"], "5432"),
		Database:      firstNonEmpty(raw["dbname"], raw["user"]),
		User:          raw["user"],
		Password:      raw["password"],
		RuntimeParams: make(map[string]string),
	}
	if info.User == "" {
		return ConnInfo{}, fmt.Errorf("wire: conninfo missing user")
	}
	if info.Password == "" {
		info.Password = lookupPassfile(info.Host, info.Port, info.Database, info.User)
	}
	for k, v := range raw {
		switch k {
		case "host", "port", "dbname", "user", "password", "service":
			continue
		default:
			info.RuntimeParams[k] = v
		}
	}
	if _, err := strconv.Atoi(info.Port); err != nil {
		return ConnInfo{}, fmt.Errorf("wire: invalid port %q: %w", info.Port, err)
	}
	return info, nil
}

func parseRaw(conninfo string) (map[string]string, error) {
	conninfo = strings.TrimSpace(conninfo)
	if strings.HasPrefix(conninfo, "postgres://") || strings.HasPrefix(conninfo, "postgresql://") {
		return parseURI(conninfo)
	}
	return parseKeywordValue(conninfo)
}

func parseKeywordValue(s string) (map[string]string, error) {
	raw := make(map[string]string)
	for _, field := range splitFields(s) {
		if field == "" {
			continue
		}
		kv := strings.SplitN(field, "=", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("wire: malformed conninfo field %q", field)
		}
		raw[strings.ToLower(kv[0])] = unquote(kv[1])
	}
	return raw, nil
}

// splitFields splits on unquoted space characters, so a single-quoted
// value may contain spaces. Tabs and newlines are not separators, and a
// backslash-escaped quote still toggles quoting.
func splitFields(s string) []string {
	var fields []string
	var cur strings.Builder
	inQuotes := false
	for _, r := range s {
		switch {
		case r == '\'':
			inQuotes = !inQuotes
			cur.WriteRune(r)
		case r == ' ' && !inQuotes:
			if cur.Len() > 0 {
				fields = append(fields, cur.String())
				cur.Reset()
			}
		default:
			cur.WriteRune(r)
		}
	}
	if cur.Len() > 0 {
		fields = append(fields, cur.String())
	}
	return fields
}

func unquote(v string) string {
	if len(v) >= 2 && v[0] == '\'' && v[len(v)-1] == '\'' {
		return strings.ReplaceAll(v[1:len(v)-1], `\'`, "'")
	}
	return v
}

func parseURI(s string) (map[string]string, error) {
	u, err := url.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("wire: invalid conninfo URI: %w", err)
	}
	raw := make(map[string]string)
	if u.User != nil {
		raw["user"] = u.User.Username()
		if pw, ok := u.User.Password(); ok {
			raw["password"] = pw
		}
	}
	host := u.Hostname()
	port := u.Port()
	if host != "" {
		raw["host"] = host
	}
	if port != "" {
		raw["port"] = port
	}
	if db := strings.TrimPrefix(u.Path, "/"); db != "" {
		raw["dbname"] = db
	}
	for k, values := range u.Query() {
		if len(values) > 0 {
			raw[strings.ToLower(k)] = values[0]
		}
	}
	return raw, nil
}

func mergeService(raw map[string]string, serviceName string) error {
	path := os.Getenv("PGSERVICEFILE")
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil
		}
		path = filepath.Join(home, ".pg_service.conf")
	}
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	servicefile, err := pgservicefile.ReadServicefile(path)
	if err != nil {
		return fmt.Errorf("wire: read service file: %w", err)
	}
	service, err := servicefile.GetService(serviceName)
	if err != nil {
		return fmt.Errorf("wire: service %q: %w", serviceName, err)
	}
	for k, v := range service.Settings {
		if _, ok := raw[strings.ToLower(k)]; !ok {
			raw[strings.ToLower(k)] = v
		}
	}
	return nil
}

func lookupPassfile(host, port, database, user string) string {
	path := os.Getenv("PGPASSFILE")
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		if runtime.GOOS == "windows" {
			path = filepath.Join(home, "AppData", "Roaming", "postgresql", "pgpass.conf")
		} else {
			path = filepath.Join(home, ".pgpass")
		}
	}
	passfile, err := pgpassfile.ReadPassfile(path)
	if err != nil {
		return ""
	}
	return passfile.FindPassword(host, port, database, user)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
