// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package config

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// IntFromString parses an int from the string produced by r.
func IntFromString(r Reader[string]) Reader[int] {
	return Map(r, func(ctx context.Context, s string) (int, error) {
		return strconv.Atoi(strings.TrimSpace(s))
	})
}

// Int64FromString parses an int64 from the string produced by r.
func Int64FromString(r Reader[string]) Reader[int64] {
	return Map(r, func(ctx context.Context, s string) (int64, error) {
		return strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	})
}

// Float64FromString parses a float64 from the string produced by r.
func Float64FromString(r Reader[string]) Reader[float64] {
	return Map(r, func(ctx context.Context, s string) (float64, error) {
		return strconv.ParseFloat(strings.TrimSpace(s), 64)
	})
}

// BoolFromString parses a bool from the string produced by r.
func BoolFromString(r Reader[string]) Reader[bool] {
	return Map(r, func(ctx context.Context, s string) (bool, error) {
		return strconv.ParseBool(strings.TrimSpace(s))
	})
}

// DurationFromString parses a [time.Duration] from the string produced by r.
func DurationFromString(r Reader[string]) Reader[time.Duration] {
	return Map(r, func(ctx context.Context, s string) (time.Duration, error) {
		return time.ParseDuration(strings.TrimSpace(s))
	})
}

// MillisFromString parses a whole number of milliseconds from the string produced by r.
func MillisFromString(r Reader[string]) Reader[time.Duration] {
	return Map(Int64FromString(r), func(ctx context.Context, ms int64) (time.Duration, error) {
		if ms < 0 {
			return 0, fmt.Errorf("config: negative interval: %dms", ms)
		}
		return time.Duration(ms) * time.Millisecond, nil
	})
}

// File reads the entire contents of the file whose path is produced by r.
// A path which does not exist produces no value.
func File(r Reader[string]) Reader[io.Reader] {
	return ReaderFunc[io.Reader](func(ctx context.Context) (Value[io.Reader], error) {
		path, err := Read(ctx, r)
		if errors.Is(err, ErrValueNotSet) {
			return Value[io.Reader]{}, nil
		}
		if err != nil {
			return Value[io.Reader]{}, err
		}

		b, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			return Value[io.Reader]{}, nil
		}
		if err != nil {
			return Value[io.Reader]{}, err
		}
		return ValueOf[io.Reader](bytes.NewReader(b)), nil
	})
}

// UnmarshalJSON decodes a T from the JSON document produced by r.
func UnmarshalJSON[T any](r Reader[io.Reader]) Reader[T] {
	return Map(r, func(ctx context.Context, rd io.Reader) (T, error) {
		var v T
		err := json.NewDecoder(rd).Decode(&v)
		return v, err
	})
}

// UnmarshalYAML decodes a T from the YAML document produced by r.
func UnmarshalYAML[T any](r Reader[io.Reader]) Reader[T] {
	return Map(r, func(ctx context.Context, rd io.Reader) (T, error) {
		var v T
		err := yaml.NewDecoder(rd).Decode(&v)
		if errors.Is(err, io.EOF) {
			return v, nil
		}
		return v, err
	})
}

// Field projects a single field out of the structured value produced by r.
// Zero values of the field are treated as unset so that lower precedence
// readers can still provide a value.
func Field[S any, T comparable](r Reader[S], f func(S) T) Reader[T] {
	return ReaderFunc[T](func(ctx context.Context) (Value[T], error) {
		val, err := r.Read(ctx)
		if err != nil {
			return Value[T]{}, err
		}
		s, set := val.Value()
		if !set {
			return Value[T]{}, nil
		}
		var zero T
		v := f(s)
		if v == zero {
			return Value[T]{}, nil
		}
		return ValueOf(v), nil
	})
}

// Cache reads r at most once and replays the outcome on every subsequent read.
func Cache[T any](r Reader[T]) Reader[T] {
	var (
		once sync.Once
		val  Value[T]
		err  error
	)
	return ReaderFunc[T](func(ctx context.Context) (Value[T], error) {
		once.Do(func() {
			val, err = r.Read(ctx)
		})
		return val, err
	})
}
