package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// FlexNumber is a numeric setting that may be sent as a JSON number, a
// numeric string, an empty string or null. The raw text is kept so that
// normalization happens in one place.
type FlexNumber string

// Int returns a FlexNumber holding n.
func Int(n int) FlexNumber {
	return FlexNumber(strconv.Itoa(n))
}

// Float returns a FlexNumber holding f.
func Float(f float64) FlexNumber {
	return FlexNumber(strconv.FormatFloat(f, 'f', -1, 64))
}

func (n *FlexNumber) UnmarshalJSON(data []byte) error {
	raw, err := flexText(data)
	if err != nil {
		return fmt.Errorf("invalid numeric value %s: %w", data, err)
	}
	*n = FlexNumber(raw)
	return nil
}

func (n FlexNumber) MarshalJSON() ([]byte, error) {
	return flexJSON(string(n)), nil
}

// Amount is a price that may arrive as a number or as a currency-prefixed
// string such as "$10.00".
type Amount string

func (a *Amount) UnmarshalJSON(data []byte) error {
	raw, err := flexText(data)
	if err != nil {
		return fmt.Errorf("invalid amount %s: %w", data, err)
	}
	*a = Amount(raw)
	return nil
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return flexJSON(string(a)), nil
}

func flexText(data []byte) (string, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return "", nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return "", err
		}
		return s, nil
	}
	var num json.Number
	if err := json.Unmarshal(data, &num); err != nil {
		return "", err
	}
	return num.String(), nil
}

func flexJSON(raw string) []byte {
	if strings.TrimSpace(raw) == "" {
		return []byte("null")
	}
	if _, err := strconv.ParseFloat(raw, 64); err == nil && json.Valid([]byte(raw)) {
		return []byte(raw)
	}
	b, _ := json.Marshal(raw)
	return b
}

// ShippingAddress is either a structured address or the raw string typed by
// the influencer when no lookup result was available.
type ShippingAddress struct {
	Raw        string
	Structured *Address
}

func (s ShippingAddress) MarshalJSON() ([]byte, error) {
	if s.Structured != nil {
		return json.Marshal(s.Structured)
	}
	if s.Raw == "" {
		return []byte("null"), nil
	}
	return json.Marshal(s.Raw)
}

func (s *ShippingAddress) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*s = ShippingAddress{}
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		return nil
	case data[0] == '"':
		return json.Unmarshal(data, &s.Raw)
	}
	var addr Address
	if err := json.Unmarshal(data, &addr); err != nil {
		return err
	}
	s.Structured = &addr
	return nil
}

// String renders the address on one line.
func (s ShippingAddress) String() string {
	if s.Structured == nil {
		return s.Raw
	}
	a := s.Structured
	parts := make([]string, 0, 5)
	for _, p := range []string{a.Address1, a.City, a.Province, a.Zip, a.Country} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}
