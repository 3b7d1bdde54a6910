// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package config provides composable, typed configuration readers.
//
// A [Reader] produces an optional [Value]. Readers are combined with helpers
// like [Or], [Default] and [Map] so that a single setting can be sourced from
// positional arguments, environment variables or a YAML file, in that order of
// precedence, without any of the consuming code knowing where it came from.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrValueNotSet is returned by [Read] when a [Reader] produced no value.
var ErrValueNotSet = errors.New("config: value not set")

// Value is an optional configuration value.
type Value[T any] struct {
	v   T
	set bool
}

// ValueOf returns a [Value] which is set to v.
func ValueOf[T any](v T) Value[T] {
	return Value[T]{v: v, set: true}
}

// Value returns the underlying value and whether or not it was set.
func (v Value[T]) Value() (T, bool) {
	return v.v, v.set
}

// Reader reads a single configuration value.
type Reader[T any] interface {
	Read(context.Context) (Value[T], error)
}

// ReaderFunc is a func type of the [Reader] interface.
type ReaderFunc[T any] func(context.Context) (Value[T], error)

// Read implements the [Reader] interface.
func (f ReaderFunc[T]) Read(ctx context.Context) (Value[T], error) {
	return f(ctx)
}

// EmptyReader returns a [Reader] which never produces a value.
func EmptyReader[T any]() Reader[T] {
	return ReaderFunc[T](func(ctx context.Context) (Value[T], error) {
		return Value[T]{}, nil
	})
}

// ReaderOf returns a [Reader] which always produces v.
func ReaderOf[T any](v T) Reader[T] {
	return ReaderFunc[T](func(ctx context.Context) (Value[T], error) {
		return ValueOf(v), nil
	})
}

// Env reads the environment variable with the given name.
// An empty variable is treated the same as an unset one.
func Env(name string) Reader[string] {
	return ReaderFunc[string](func(ctx context.Context) (Value[string], error) {
		v, ok := os.LookupEnv(name)
		if !ok || v == "" {
			return Value[string]{}, nil
		}
		return ValueOf(v), nil
	})
}

// ArgMissingError is returned by [Arg] when a required positional argument is absent.
type ArgMissingError struct {
	Index int
	Name  string
}

// Error implements the [error] interface.
func (e ArgMissingError) Error() string {
	return fmt.Sprintf("config: missing positional argument %d (%s)", e.Index, e.Name)
}

// Arg reads the i-th positional argument. Missing or blank arguments are not set.
func Arg(args []string, i int) Reader[string] {
	return ReaderFunc[string](func(ctx context.Context) (Value[string], error) {
		if i < 0 || i >= len(args) {
			return Value[string]{}, nil
		}
		v := strings.TrimSpace(args[i])
		if v == "" {
			return Value[string]{}, nil
		}
		return ValueOf(v), nil
	})
}

// RequiredArg is like [Arg] but returns an [ArgMissingError] when the argument is absent.
func RequiredArg(args []string, i int, name string) Reader[string] {
	return ReaderFunc[string](func(ctx context.Context) (Value[string], error) {
		val, err := Arg(args, i).Read(ctx)
		if err != nil {
			return Value[string]{}, err
		}
		if _, set := val.Value(); !set {
			return Value[string]{}, ArgMissingError{Index: i, Name: name}
		}
		return val, nil
	})
}

// Or returns the value of the first [Reader] which produces one.
// Nil readers are skipped.
func Or[T any](readers ...Reader[T]) Reader[T] {
	return ReaderFunc[T](func(ctx context.Context) (Value[T], error) {
		for _, r := range readers {
			if r == nil {
				continue
			}
			val, err := r.Read(ctx)
			if err != nil {
				return Value[T]{}, err
			}
			if _, set := val.Value(); set {
				return val, nil
			}
		}
		return Value[T]{}, nil
	})
}

// Default returns def whenever r does not produce a value.
func Default[T any](def T, r Reader[T]) Reader[T] {
	return Or(r, ReaderOf(def))
}

// Map transforms the value produced by r. Unset values are passed through untouched.
func Map[A, B any](r Reader[A], f func(context.Context, A) (B, error)) Reader[B] {
	return ReaderFunc[B](func(ctx context.Context) (Value[B], error) {
		if r == nil {
			return Value[B]{}, nil
		}
		val, err := r.Read(ctx)
		if err != nil {
			return Value[B]{}, err
		}
		a, set := val.Value()
		if !set {
			return Value[B]{}, nil
		}
		b, err := f(ctx, a)
		if err != nil {
			return Value[B]{}, err
		}
		return ValueOf(b), nil
	})
}

// Read reads the value from r.
func Read[T any](ctx context.Context, r Reader[T]) (T, error) {
	var zero T
	if r == nil {
		return zero, ErrValueNotSet
	}
	val, err := r.Read(ctx)
	if err != nil {
		return zero, err
	}
	v, set := val.Value()
	if !set {
		return zero, ErrValueNotSet
	}
	return v, nil
}

// Must is like [Read] but panics on any error, including an unset value.
func Must[T any](ctx context.Context, r Reader[T]) T {
	v, err := Read(ctx, r)
	if err != nil {
		panic(err)
	}
	return v
}

// MustOr is like [Must] but falls back to def when r is nil or produces no value.
func MustOr[T any](ctx context.Context, def T, r Reader[T]) T {
	v, err := Read(ctx, r)
	if errors.Is(err, ErrValueNotSet) {
		return def
	}
	if err != nil {
		panic(err)
	}
	return v
}
