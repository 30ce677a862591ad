package app

import "encoding/json"

// Optional JSON fields for partial updates. Set reports whether the field
// appeared in the request body at all; Valid reports whether it carried a
// non-null value. An absent field leaves the stored value untouched, an
// explicit null clears it.

type OptString struct {
	Set   bool
	Valid bool
	Value string
}

func (o *OptString) UnmarshalJSON(data []byte) error {
	o.Set = true
	if string(data) == "null" {
		return nil
	}
	if err := json.Unmarshal(data, &o.Value); err != nil {
		return err
	}
	o.Valid = true
	return nil
}

type OptInt64 struct {
	Set   bool
	Valid bool
	Value int64
}

func (o *OptInt64) UnmarshalJSON(data []byte) error {
	o.Set = true
	if string(data) == "null" {
		return nil
	}
	if err := json.Unmarshal(data, &o.Value); err != nil {
		return err
	}
	o.Valid = true
	return nil
}

type OptFloat64 struct {
	Set   bool
	Valid bool
	Value float64
}

func (o *OptFloat64) UnmarshalJSON(data []byte) error {
	o.Set = true
	if string(data) == "null" {
		return nil
	}
	if err := json.Unmarshal(data, &o.Value); err != nil {
		return err
	}
	o.Valid = true
	return nil
}

type OptBool struct {
	Set   bool
	Valid bool
	Value bool
}

func (o *OptBool) UnmarshalJSON(data []byte) error {
	o.Set = true
	if string(data) == "null" {
		return nil
	}
	if err := json.Unmarshal(data, &o.Value); err != nil {
		return err
	}
	o.Valid = true
	return nil
}

type OptInt64List struct {
	Set   bool
	Valid bool
	Value []int64
}

func (o *OptInt64List) UnmarshalJSON(data []byte) error {
	o.Set = true
	if string(data) == "null" {
		return nil
	}
	if err := json.Unmarshal(data, &o.Value); err != nil {
		return err
	}
	o.Valid = true
	return nil
}
