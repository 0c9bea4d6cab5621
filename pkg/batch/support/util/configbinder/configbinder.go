// Package configbinder binds loosely typed property maps (YAML sections, environment-expanded
// strings) onto typed configuration structs.
package configbinder

import (
	"github.com/mitchellh/mapstructure"

	"github.com/tigerroll/stepguard/pkg/batch/support/util/exception"
)

const moduleName = "configbinder"

// BindProperties decodes properties into target using the "yaml" struct tags.
// Strings are converted to numbers, booleans and time.Duration, since values coming from
// ${VAR} expansion are always strings. Keys target does not know are ignored.
func BindProperties(properties map[string]interface{}, target interface{}) error {
	return bind(properties, target, nil)
}

// BindPropertiesStrict behaves like BindProperties but fails on keys target does not declare.
func BindPropertiesStrict(properties map[string]interface{}, target interface{}) error {
	var md mapstructure.Metadata
	if err := bind(properties, target, &md); err != nil {
		return err
	}
	if len(md.Unused) > 0 {
		return exception.NewBatchErrorf(moduleName, exception.KindConfig, "unknown properties: %v", md.Unused)
	}
	return nil
}

func bind(properties map[string]interface{}, target interface{}, md *mapstructure.Metadata) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Metadata:         md,
		Result:           target,
		TagName:          "yaml",
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return exception.NewBatchError(moduleName, exception.KindConfig, "cannot create decoder", err)
	}
	if err := decoder.Decode(properties); err != nil {
		return exception.NewBatchError(moduleName, exception.KindConfig, "cannot bind properties", err)
	}
	return nil
}
