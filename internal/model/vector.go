package model

import (
	"database/sql/driver"
	"fmt"
	"strconv"
	"strings"
)

// Vector maps a pgvector column to []float32. It serializes to the
// "[x,y,z]" literal form pgvector accepts as text input, so similarity
// queries can pass embeddings as ordinary query arguments.
type Vector []float32

func (v Vector) Value() (driver.Value, error) {
	if v == nil {
		return nil, nil
	}
	var b strings.Builder
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String(), nil
}

func (v *Vector) Scan(src any) error {
	if src == nil {
		*v = nil
		return nil
	}

	var s string
	switch t := src.(type) {
	case string:
		s = t
	case []byte:
		s = string(t)
	default:
		return fmt.Errorf("cannot scan %T into Vector", src)
	}

	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "[") || !strings.HasSuffix(s, "]") {
		return fmt.Errorf("malformed vector literal: %q", s)
	}

	inner := strings.TrimSpace(s[1 : len(s)-1])
	if inner == "" {
		*v = Vector{}
		return nil
	}

	fields := strings.Split(inner, ",")
	out := make(Vector, len(fields))
	for i, f := range fields {
		val, err := strconv.ParseFloat(strings.TrimSpace(f), 32)
		if err != nil {
			return fmt.Errorf("malformed vector element %d: %w", i, err)
		}
		out[i] = float32(val)
	}
	*v = out
	return nil
}
