package launcher

// Defaults bundles the baseline configuration values the launcher uses before
// the config file and CLI flags override them.
type Defaults struct {
	Node    NodeDefaults
	Network NetworkDefaults
	Metrics MetricsDefaults
	Logging LoggingDefaults
}

// NodeDefaults captures top-level node settings.
type NodeDefaults struct {
	DataDir string // filesystem root for chaindata and node state
	Name    string // node name used in logs
}

// NetworkDefaults selects the network preset and the fakenet shape.
type NetworkDefaults struct {
	Name           string // network preset: main, test or fake
	FakeValidators int    // validator slots in the deterministic fakenet
	FakeRounds     int    // rounds to run before exiting; 0 runs until interrupted
	FakeFeeMicro   uint64 // fee attached to every fakenet block, in micro units
}

// MetricsDefaults configures the Prometheus endpoint.
type MetricsDefaults struct {
	Enable bool
	Addr   string
	Port   int
}

// LoggingDefaults controls log verbosity and rendering.
type LoggingDefaults struct {
	Verbosity int    // logrus level numeric (0=panic .. 6=trace)
	Format    string // text or json
	Color     bool
}

// DefaultConfig returns the launcher's baseline configuration.
func DefaultConfig() Defaults {
	return Defaults{
		Node: NodeDefaults{
			DataDir: "~/.dlc",
			Name:    "dlc",
		},
		Network: NetworkDefaults{
			Name:           "fake",
			FakeValidators: 4,
			FakeRounds:     0,
			FakeFeeMicro:   0,
		},
		Metrics: MetricsDefaults{
			Enable: false,
			Addr:   "127.0.0.1",
			Port:   6060,
		},
		Logging: LoggingDefaults{
			Verbosity: 4,
			Format:    "text",
			Color:     true,
		},
	}
}
