// Package config loads process configuration from environment variables
// (optionally backed by a .env file via godotenv), the way the teacher's
// component bootstrap packages do: a plain struct with `env:"..."` tags,
// populated by reflection, with a required/default convention per field.
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Load reads a .env file at path if present (a missing file is not an
// error — production deployments set real environment variables instead),
// then populates dst, a pointer to a struct whose fields carry `env:"NAME"`
// tags and optionally `envDefault:"value"`.
func Load(path string, dst any) error {
	if path != "" {
		if err := godotenv.Load(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("config: load %s: %w", path, err)
		}
	}

	v := reflect.ValueOf(dst)
	if v.Kind() != reflect.Ptr || v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("config: Load requires a pointer to struct, got %T", dst)
	}

	return populate(v.Elem())
}

func populate(v reflect.Value) error {
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}

		if field.Type.Kind() == reflect.Struct {
			if err := populate(v.Field(i)); err != nil {
				return err
			}

			continue
		}

		envName := field.Tag.Get("env")
		if envName == "" {
			continue
		}

		raw, ok := os.LookupEnv(envName)
		if !ok {
			raw, ok = field.Tag.Lookup("envDefault")
			if !ok {
				if field.Tag.Get("envRequired") == "true" {
					return fmt.Errorf("config: required environment variable %s is not set", envName)
				}

				continue
			}
		}

		if err := setField(v.Field(i), raw); err != nil {
			return fmt.Errorf("config: field %s (env %s): %w", field.Name, envName, err)
		}
	}

	return nil
}

func setField(field reflect.Value, raw string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(raw)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return err
		}

		field.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return err
		}

		field.SetInt(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return err
		}

		field.SetFloat(f)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice element kind %s", field.Type().Elem().Kind())
		}

		parts := strings.Split(raw, ",")
		out := reflect.MakeSlice(field.Type(), len(parts), len(parts))

		for i, p := range parts {
			out.Index(i).SetString(strings.TrimSpace(p))
		}

		field.Set(out)
	default:
		return fmt.Errorf("unsupported field kind %s", field.Kind())
	}

	return nil
}
