package core

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/goliatone/go-config/cfgx"
)

var durationType = reflect.TypeOf(time.Duration(0))

func configBuildOptions(defaults Config) []cfgx.Option[Config] {
	return []cfgx.Option[Config]{
		cfgx.WithDefaults(defaults),
		cfgx.WithoutDefaultHooks[Config](),
		cfgx.WithDecodeHooks[Config](
			DurationDecodeHook(),
			mapstructure.StringToSliceHookFunc(","),
			cfgx.TextUnmarshalerHook(),
		),
		cfgx.WithValidator[Config]((*Config).Validate),
	}
}

// DurationDecodeHook decodes strings into time.Duration with ParseDuration.
func DurationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if from.Kind() != reflect.String || to != durationType {
			return data, nil
		}
		return ParseDuration(data.(string))
	}
}

// ParseDuration accepts time.ParseDuration syntax plus a whole-day "d" suffix.
func ParseDuration(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if days, ok := strings.CutSuffix(value, "d"); ok {
		count, err := strconv.Atoi(days)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", value)
		}
		return time.Duration(count) * 24 * time.Hour, nil
	}
	return time.ParseDuration(value)
}
