// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package config

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEnv(t *testing.T) {
	t.Run("will not be set", func(t *testing.T) {
		t.Run("if the variable is empty", func(t *testing.T) {
			t.Setenv("PRINTQ_TEST_ENV", "")

			val, err := Env("PRINTQ_TEST_ENV").Read(context.Background())
			require.NoError(t, err)

			_, set := val.Value()
			require.False(t, set)
		})
	})

	t.Run("will be set", func(t *testing.T) {
		t.Run("if the variable has a value", func(t *testing.T) {
			t.Setenv("PRINTQ_TEST_ENV", "amqp")

			v, err := Read(context.Background(), Env("PRINTQ_TEST_ENV"))
			require.NoError(t, err)
			require.Equal(t, "amqp", v)
		})
	})
}

func TestRequiredArg(t *testing.T) {
	testCases := []struct {
		name    string
		args    []string
		index   int
		want    string
		wantErr bool
	}{
		{
			name:  "present",
			args:  []string{"host", "user"},
			index: 1,
			want:  "user",
		},
		{
			name:    "out of range",
			args:    []string{"host"},
			index:   3,
			wantErr: true,
		},
		{
			name:    "blank",
			args:    []string{"host", "  "},
			index:   1,
			wantErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			v, err := Read(context.Background(), RequiredArg(tc.args, tc.index, "arg"))
			if tc.wantErr {
				var missing ArgMissingError
				require.ErrorAs(t, err, &missing)
				require.Equal(t, tc.index, missing.Index)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, v)
		})
	}
}

func TestOr(t *testing.T) {
	t.Run("will return the first set value", func(t *testing.T) {
		r := Or(nil, EmptyReader[string](), ReaderOf("b"), ReaderOf("c"))

		v, err := Read(context.Background(), r)
		require.NoError(t, err)
		require.Equal(t, "b", v)
	})

	t.Run("will stop on the first error", func(t *testing.T) {
		readErr := errors.New("failed")
		r := Or(
			ReaderFunc[string](func(ctx context.Context) (Value[string], error) {
				return Value[string]{}, readErr
			}),
			ReaderOf("b"),
		)

		_, err := Read(context.Background(), r)
		require.ErrorIs(t, err, readErr)
	})
}

func TestMustOr(t *testing.T) {
	t.Run("will return the default", func(t *testing.T) {
		t.Run("if the reader is nil", func(t *testing.T) {
			require.Equal(t, 5, MustOr(context.Background(), 5, nil))
		})

		t.Run("if the reader has no value", func(t *testing.T) {
			require.Equal(t, 5, MustOr(context.Background(), 5, EmptyReader[int]()))
		})
	})

	t.Run("will panic", func(t *testing.T) {
		t.Run("if the reader fails", func(t *testing.T) {
			r := IntFromString(ReaderOf("not-a-number"))

			require.Panics(t, func() {
				MustOr(context.Background(), 5, r)
			})
		})
	})
}

func TestMust(t *testing.T) {
	t.Run("will panic if the value is not set", func(t *testing.T) {
		require.PanicsWithError(t, ErrValueNotSet.Error(), func() {
			Must(context.Background(), EmptyReader[string]())
		})
	})
}

func TestMillisFromString(t *testing.T) {
	testCases := []struct {
		name    string
		in      string
		want    time.Duration
		wantErr bool
	}{
		{name: "whole millis", in: "1000", want: time.Second},
		{name: "surrounding whitespace", in: " 250 ", want: 250 * time.Millisecond},
		{name: "negative", in: "-1", wantErr: true},
		{name: "not a number", in: "5s", wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			d, err := Read(context.Background(), MillisFromString(ReaderOf(tc.in)))
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, d)
		})
	}
}

func TestFile(t *testing.T) {
	t.Run("will not be set", func(t *testing.T) {
		t.Run("if the file does not exist", func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "missing.yaml")

			val, err := File(ReaderOf(path)).Read(context.Background())
			require.NoError(t, err)

			_, set := val.Value()
			require.False(t, set)
		})

		t.Run("if no path is given", func(t *testing.T) {
			val, err := File(EmptyReader[string]()).Read(context.Background())
			require.NoError(t, err)

			_, set := val.Value()
			require.False(t, set)
		})
	})

	t.Run("will decode yaml fields", func(t *testing.T) {
		type fileConfig struct {
			Driver string `yaml:"driver"`
			Queue  string `yaml:"queue"`
		}

		path := filepath.Join(t.TempDir(), "printq.yaml")
		err := os.WriteFile(path, []byte("driver: kafka\n"), 0o600)
		require.NoError(t, err)

		cfg := UnmarshalYAML[fileConfig](File(ReaderOf(path)))

		driver, err := Read(context.Background(), Field(cfg, func(c fileConfig) string { return c.Driver }))
		require.NoError(t, err)
		require.Equal(t, "kafka", driver)

		_, err = Read(context.Background(), Field(cfg, func(c fileConfig) string { return c.Queue }))
		require.ErrorIs(t, err, ErrValueNotSet)
	})
}

func TestUnmarshalYAML(t *testing.T) {
	t.Run("will return the zero value for an empty document", func(t *testing.T) {
		type fileConfig struct {
			Driver string `yaml:"driver"`
		}

		cfg, err := Read(context.Background(), UnmarshalYAML[fileConfig](ReaderOf[io.Reader](strings.NewReader(""))))
		require.NoError(t, err)
		require.Empty(t, cfg.Driver)
	})
}

func TestCache(t *testing.T) {
	var calls int
	r := Cache(ReaderFunc[int](func(ctx context.Context) (Value[int], error) {
		calls++
		return ValueOf(calls), nil
	}))

	for range 3 {
		v, err := Read(context.Background(), r)
		require.NoError(t, err)
		require.Equal(t, 1, v)
	}
	require.Equal(t, 1, calls)
}
