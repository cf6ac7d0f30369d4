package db

import (
	"database/sql/driver"
	"fmt"
	"strconv"
	"strings"
)

// U64 mapeia uint64 para colunas NUMERIC(20,0); int8 do Postgres não comporta o intervalo todo
type U64 uint64

func (u U64) Value() (driver.Value, error) {
	return strconv.FormatUint(uint64(u), 10), nil
}

func (u *U64) Scan(src any) error {
	var s string
	switch v := src.(type) {
	case nil:
		*u = 0
		return nil
	case int64:
		if v < 0 {
			return fmt.Errorf("scan u64: negative value %d", v)
		}
		*u = U64(v)
		return nil
	case []byte:
		s = string(v)
	case string:
		s = v
	default:
		return fmt.Errorf("scan u64: unsupported type %T", src)
	}

	// NUMERIC pode vir como "123" ou "123.0" dependendo da escala
	if i := strings.IndexByte(s, '.'); i >= 0 {
		if strings.Trim(s[i+1:], "0") != "" {
			return fmt.Errorf("scan u64: fractional value %q", s)
		}
		s = s[:i]
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return fmt.Errorf("scan u64: %w", err)
	}
	*u = U64(n)
	return nil
}
