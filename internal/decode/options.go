package decode

import (
	"sort"
	"strconv"
	"strings"
)

// Options carries decoder-specific settings as raw strings, the shape they
// arrive in from job files and HTTP requests.
type Options map[string]string

func (o Options) lookup(key string) (string, bool) {
	if o == nil {
		return "", false
	}
	v, ok := o[key]
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

// Only rejects keys outside allowed.
func (o Options) Only(allowed ...string) error {
	known := make(map[string]struct{}, len(allowed))
	for _, k := range allowed {
		known[k] = struct{}{}
	}
	unknown := make([]string, 0)
	for k := range o {
		if _, ok := known[k]; !ok {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) == 0 {
		return nil
	}
	sort.Strings(unknown)
	return Configf("unknown options %s", strings.Join(unknown, ","))
}

func (o Options) String(key, def string) string {
	v, ok := o.lookup(key)
	if !ok {
		return def
	}
	return strings.ToLower(v)
}

func (o Options) Int(key string, def int) (int, error) {
	v, ok := o.lookup(key)
	if !ok {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, Configf("option %s=%q is not an integer", key, v)
	}
	return n, nil
}

func (o Options) Float(key string, def float64) (float64, error) {
	v, ok := o.lookup(key)
	if !ok {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, Configf("option %s=%q is not a number", key, v)
	}
	return f, nil
}

func (o Options) Bool(key string, def bool) (bool, error) {
	v, ok := o.lookup(key)
	if !ok {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, Configf("option %s=%q is not a bool", key, v)
	}
	return b, nil
}
