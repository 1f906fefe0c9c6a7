package features

import "go.uber.org/fx"

// Module provides the feature processor registry.
var Module = fx.Module("features",
	fx.Provide(New),
)
