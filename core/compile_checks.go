package core

import glog "github.com/goliatone/go-logger/glog"

var (
	_ MetricsRecorder         = NopMetricsRecorder{}
	_ PersistBackoffScheduler = ExponentialBackoffScheduler{}
	_ ConfigProvider          = (*CfgxConfigProvider)(nil)
	_ OptionsResolver         = GoOptionsResolver{}
	_ RawConfigLoader         = staticRawConfigLoader{}
	_ ErrorMapper             = MapError

	_ Logger         = glog.Nop()
	_ LoggerProvider = glog.ProviderFromLogger(glog.Nop())
)
