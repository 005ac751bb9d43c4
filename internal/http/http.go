package http

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

func GetParam(name string, defaultValue string, r *http.Request) string {
	value := r.PathValue(name)

	if value == "" {
		value = r.URL.Query().Get(name)
	}

	if value == "" {
		return defaultValue
	} else {
		return value
	}
}

func GetParamArray(name string, defaultValue []string, r *http.Request) []string {
	value := r.PathValue(name)
	var values []string

	if value == "" {
		values = r.URL.Query()[name]
	} else {
		values = []string{value}
	}

	if len(values) == 0 {
		return defaultValue
	} else {
		return values
	}
}

// GetInt reads a path or query parameter as an integer.
func GetInt(name string, defaultValue int, r *http.Request) (int, error) {
	value := GetParam(name, "", r)
	if value == "" {
		return defaultValue, nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue, fmt.Errorf("parameter %q: %w", name, err)
	}
	return i, nil
}

// GetInts accepts both repeated parameters and comma separated lists.
func GetInts(name string, r *http.Request) ([]int, error) {
	ints := []int{}
	for _, value := range GetParamArray(name, nil, r) {
		for part := range strings.SplitSeq(value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			i, err := strconv.Atoi(part)
			if err != nil {
				return nil, fmt.Errorf("parameter %q: %w", name, err)
			}
			ints = append(ints, i)
		}
	}
	return ints, nil
}

func GetBool(name string, defaultValue bool, r *http.Request) (bool, error) {
	value := GetParam(name, "", r)
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue, fmt.Errorf("parameter %q: %w", name, err)
	}
	return b, nil
}
