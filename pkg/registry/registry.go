// Package registry maps product lines to the firmware version bundled with
// the test environment.
package registry

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/fwci/fw-updater/pkg/errors"
	"github.com/spf13/viper"
)

// Registry looks up the bundled firmware version for a product line.
type Registry interface {
	BundledVersion(productLine string) (string, bool)
}

// Table is an in-memory registry keyed by upper-cased product line or family
// key ("D400", "D4XX").
type Table map[string]string

// BundledVersion tries the product line itself, then its family keys:
// "SR300" -> "SR3XX", then "SRXX".
func (t Table) BundledVersion(productLine string) (string, bool) {
	for _, key := range Keys(productLine) {
		if v, ok := t[key]; ok && v != "" {
			return v, true
		}
	}
	return "", false
}

// Keys returns the lookup keys for a product line in priority order.
func Keys(productLine string) []string {
	pl := strings.ToUpper(strings.TrimSpace(productLine))
	if pl == "" {
		return nil
	}
	keys := []string{pl}
	if strings.HasSuffix(pl, "00") && len(pl) > 2 {
		keys = append(keys, pl[:len(pl)-2]+"XX")
	}
	if len(pl) >= 2 {
		if fam := pl[:2] + "XX"; fam != keys[len(keys)-1] {
			keys = append(keys, fam)
		}
	}
	return keys
}

var defineRE = regexp.MustCompile(`^\s*#define\s+(\w+)_RECOMMENDED_FIRMWARE_VERSION\s+"([^"]+)"`)

// ParseHeader reads a C header with lines such as
//
//	#define D4XX_RECOMMENDED_FIRMWARE_VERSION "5.13.0.50"
func ParseHeader(r io.Reader) (Table, error) {
	t := Table{}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		m := defineRE.FindStringSubmatch(scanner.Text())
		if m == nil {
			continue
		}
		t[strings.ToUpper(m[1])] = m[2]
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to read header")
	}
	return t, nil
}

// LoadFile loads a registry from a firmware header (.h) or from any config
// format viper understands holding a "firmware" map of product line to version.
func LoadFile(path string) (Table, error) {
	slog.Info("registry_load", "path", path)

	if strings.EqualFold(filepath.Ext(path), ".h") {
		f, err := os.Open(path)
		if err != nil {
			slog.Error("registry_open_failed", "path", path, "error", err)
			return nil, errors.Wrap(err, "failed to open versions file")
		}
		defer f.Close()

		t, err := ParseHeader(f)
		if err != nil {
			return nil, err
		}
		slog.Info("registry_loaded", "path", path, "entries", len(t))
		return t, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		slog.Error("registry_read_failed", "path", path, "error", err)
		return nil, errors.Wrap(err, "failed to read versions file")
	}

	entries := v.GetStringMap("firmware")
	if len(entries) == 0 {
		return nil, fmt.Errorf("versions file %s has no firmware entries", path)
	}

	// Unquoted YAML like 5.10 decodes as a number and loses digits.
	t := Table{}
	for k, raw := range entries {
		ver, ok := raw.(string)
		if !ok {
			slog.Error("registry_version_not_string", "path", path, "product_line", k, "value", raw)
			return nil, fmt.Errorf("versions file %s: version for %s must be a quoted string, got %v", path, k, raw)
		}
		t[strings.ToUpper(k)] = ver
	}
	slog.Info("registry_loaded", "path", path, "entries", len(t))
	return t, nil
}
