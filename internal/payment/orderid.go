package payment

import (
	"errors"
	"strconv"
	"strings"
)

// OrderIDCodec maps local order ids to the identifiers sent to the processor.
type OrderIDCodec struct {
	prefix string
}

func NewOrderIDCodec(prefix string) (*OrderIDCodec, error) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return nil, configErrorf("order id prefix is empty")
	}
	if strings.Contains(prefix, "-") {
		return nil, configErrorf("order id prefix %q must not contain '-'", prefix)
	}
	return &OrderIDCodec{prefix: prefix}, nil
}

// Build returns "<prefix>-<id>".
func (c *OrderIDCodec) Build(id int64) string {
	return c.prefix + "-" + strconv.FormatInt(id, 10)
}

// Parse is the inverse of Build. Anything Build could not have produced is a
// data error.
func (c *OrderIDCodec) Parse(ref string) (int64, error) {
	rest, ok := strings.CutPrefix(ref, c.prefix+"-")
	if !ok {
		return 0, &FieldError{Field: KeyOrderID, Err: errors.New("foreign order id prefix")}
	}
	if rest == "" || rest[0] == '0' {
		return 0, &FieldError{Field: KeyOrderID, Err: errors.New("malformed order id")}
	}
	for i := 0; i < len(rest); i++ {
		if rest[i] < '0' || rest[i] > '9' {
			return 0, &FieldError{Field: KeyOrderID, Err: errors.New("malformed order id")}
		}
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		return 0, &FieldError{Field: KeyOrderID, Err: err}
	}
	return id, nil
}
