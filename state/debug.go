package state

var (
	// DBG_assert turns caller contract violations (e.g. comparing parents of different DAGs) into panics.
	DBG_assert = false
	// DBG_debug serves expvar and pprof on DebugAddr
	DBG_debug = false
	DebugAddr = "127.0.0.1:6060"
	// DBG_log_samples logs every latency sample at debug level
	DBG_log_samples = false
)
