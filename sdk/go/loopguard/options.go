package loopguard

// Option configures a Client at creation time.
type Option func(*clientConfig)

type clientConfig struct {
	configPath string
	ledgerPath string
	jobID      string
}

// WithConfigFile sets the path to a config YAML file. Unset, the client
// loads ~/.loopguard/config.yaml and falls back to defaults when missing.
func WithConfigFile(path string) Option {
	return func(c *clientConfig) { c.configPath = path }
}

// WithLedgerPath overrides the ledger database location from the config.
func WithLedgerPath(path string) Option {
	return func(c *clientConfig) { c.ledgerPath = path }
}

// WithJob sets the client's default job identity. Wrapped tools run under
// this job unless a WrapOption overrides it.
func WithJob(jobID string) Option {
	return func(c *clientConfig) { c.jobID = jobID }
}

// WrapOption configures a single Wrap call.
type WrapOption func(*wrapConfig)

type wrapConfig struct {
	jobID string
}

// WrapForJob overrides the client-level job for this wrap. Lets one client
// guard tools across several concurrent jobs.
func WrapForJob(jobID string) WrapOption {
	return func(w *wrapConfig) { w.jobID = jobID }
}
