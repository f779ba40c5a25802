package experiment

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

var unmarshalerType = reflect.TypeOf((*json.Unmarshaler)(nil)).Elem()

// checkKeys rejects object keys that do not exactly match a json tag of t.
// encoding/json matches field names case-insensitively, so without this
// "NUM_EPOCHS" would quietly set num_epochs.
func checkKeys(data json.RawMessage, t reflect.Type, path string) error {
	if reflect.PointerTo(t).Implements(unmarshalerType) {
		return nil
	}
	switch t.Kind() {
	case reflect.Struct:
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(data, &fields); err != nil {
			// not an object; the typed decode reports it
			return nil
		}
		tags := fieldsByTag(t)
		for key, raw := range fields {
			field, ok := tags[key]
			if !ok {
				return malformed(fmt.Sprintf("unknown field %q", path+key), nil)
			}
			if err := checkKeys(raw, field.Type, path+key+"."); err != nil {
				return err
			}
		}
	case reflect.Map:
		if t.Elem().Kind() != reflect.Struct {
			return nil
		}
		var entries map[string]json.RawMessage
		if err := json.Unmarshal(data, &entries); err != nil {
			return nil
		}
		for name, raw := range entries {
			if err := checkKeys(raw, t.Elem(), path+name+"."); err != nil {
				return err
			}
		}
	}
	return nil
}

func fieldsByTag(t reflect.Type) map[string]reflect.StructField {
	out := make(map[string]reflect.StructField, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			continue
		}
		out[name] = f
	}
	return out
}
