// internal/config/model.go
//
// Typed configuration model for the HotBoxHair site.
//
// Context
// -------
// These structs define the shape of the configuration tree that
// `internal/config/loader.go` builds from three overlay layers:
//
//   • optional `.env`                          – dotenv values,
//   • `conf/global.yaml`                       – primary static file,
//   • `HOTBOX_`-prefixed environment overrides – highest precedence.
//
// Any value whose string begins with `vault:` is resolved through a
// SecretResolver before unmarshalling, so the model never stores Vault
// references, only plain strings.
//
// Notes
// -----
//   • Struct tags use `koanf:"…"`.  Durations accept Go syntax ("15s").
//   • Zero values are filled by applyDefaults after unmarshal.
//   • The `Paths` block is filled at runtime; YAML must not try to set it.

package config

import "time"

//
// HTTP section
//

// HTTP holds web-server tunables.
type HTTP struct {
	ListenAddr   string        `koanf:"listen_addr"   validate:"required,hostname_port"`
	ForceHTTPS   bool          `koanf:"force_https"`
	ReadTimeout  time.Duration `koanf:"read_timeout"  validate:"gte=0"`
	WriteTimeout time.Duration `koanf:"write_timeout" validate:"gte=0"`
	IdleTimeout  time.Duration `koanf:"idle_timeout"  validate:"gte=0"`
	CORSOrigins  []string      `koanf:"cors_origins"`
	// Aliases maps extra paths onto routes, e.g. /give → /donate.
	Aliases map[string]string `koanf:"aliases" validate:"dive,keys,startswith=/,endkeys,startswith=/"`
}

//
// Log section
//

// Log selects the level and whether to tee to the console.
type Log struct {
	Level   string `koanf:"level"   validate:"omitempty,oneof=debug info warn error"`
	Console bool   `koanf:"console"`
}

//
// Database section
//

// Database is optional.  An empty DSN runs the site without persistence:
// donations are still charged, and the form `store` action is skipped.
//
// The DSN may carry one `%s` verb, which receives Password.  Operators keep
// the template in YAML and the password in Vault.
type Database struct {
	DSN      string `koanf:"dsn"`
	Password string `koanf:"password"`
	MaxOpen  int    `koanf:"max_open" validate:"gte=0"`
	MaxIdle  int    `koanf:"max_idle" validate:"gte=0"`
	Migrate  bool   `koanf:"migrate"`

	// Retention deletes stored form submissions older than this.  Zero keeps
	// them forever.  Donation records are never pruned.
	Retention     time.Duration `koanf:"retention"      validate:"gte=0"`
	PruneSchedule string        `koanf:"prune_schedule"`
}

//
// Forms section
//

// Forms tunes the form subsystem.
type Forms struct {
	CSRFKey       string        `koanf:"csrf_key"       validate:"omitempty,min=32"`
	Dirs          []string      `koanf:"dirs"`
	MinSubmitTime time.Duration `koanf:"min_submit_time" validate:"gte=0"`
	MaxSubmitAge  time.Duration `koanf:"max_submit_age"  validate:"gte=0"`
	SubmitTimeout time.Duration `koanf:"submit_timeout"  validate:"gte=0"`
}

//
// Donation section
//

// Donation selects the payment processor and the confirmation flow.
type Donation struct {
	Processor     string        `koanf:"processor"      validate:"required,oneof=simulated webhook"`
	WebhookURL    string        `koanf:"webhook_url"`
	WebhookSecret string        `koanf:"webhook_secret"`
	Timeout       time.Duration `koanf:"timeout"        validate:"gte=0"`
	Delay         time.Duration `koanf:"delay"          validate:"gte=0"`
	Currency      string        `koanf:"currency"       validate:"omitempty,len=3,uppercase"`
	Redirect      string        `koanf:"redirect"`
	RedirectDelay time.Duration `koanf:"redirect_delay" validate:"gte=0"`
	ReceiptFrom   string        `koanf:"receipt_from"`
}

//
// Tracking section
//

// Tracking configures the analytics sink.  An empty Endpoint logs events
// instead of posting them.
type Tracking struct {
	Endpoint  string `koanf:"endpoint"   validate:"omitempty,url"`
	APIKey    string `koanf:"api_key"`
	QueueSize int    `koanf:"queue_size" validate:"gte=0"`
	Retries   int    `koanf:"retries"    validate:"gte=0,lte=10"`
}

//
// Mail section
//

// Mail configures outgoing email.  An empty SMTPAddr logs messages instead.
type Mail struct {
	SMTPAddr string `koanf:"smtp_addr" validate:"omitempty,hostname_port"`
	From     string `koanf:"from"      validate:"omitempty,email"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
	Queue    int    `koanf:"queue"     validate:"gte=0"`
	Workers  int    `koanf:"workers"   validate:"gte=0"`
}

//
// GeoIP section
//

// GeoIP points at a MaxMind country or city database.  Empty disables
// country lookups.
type GeoIP struct {
	Path string `koanf:"path"`
}

//
// Paths section (runtime only)
//

// Paths is resolved at runtime, never set in YAML or env.
type Paths struct {
	Root string // HOTBOX_ROOT or discovered parent
}

//
// Root aggregate
//

// Config is the immutable aggregate returned by Load() and cached in an
// atomic.Pointer for lock-free reads.
type Config struct {
	HTTP     HTTP     `koanf:"http"`
	Log      Log      `koanf:"log"`
	Database Database `koanf:"database"`
	Forms    Forms    `koanf:"forms"`
	Donation Donation `koanf:"donation"`
	Tracking Tracking `koanf:"tracking"`
	Mail     Mail     `koanf:"mail"`
	GeoIP    GeoIP    `koanf:"geoip"`
	Paths    Paths    `koanf:"-"`
}

// applyDefaults fills zero values.
func applyDefaults(c *Config) {
	if c.HTTP.ReadTimeout == 0 {
		c.HTTP.ReadTimeout = 10 * time.Second
	}
	if c.HTTP.WriteTimeout == 0 {
		c.HTTP.WriteTimeout = 15 * time.Second
	}
	if c.HTTP.IdleTimeout == 0 {
		c.HTTP.IdleTimeout = 60 * time.Second
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Forms.MinSubmitTime == 0 {
		c.Forms.MinSubmitTime = 2 * time.Second
	}
	if c.Forms.MaxSubmitAge == 0 {
		c.Forms.MaxSubmitAge = 24 * time.Hour
	}
	if c.Forms.SubmitTimeout == 0 {
		c.Forms.SubmitTimeout = 30 * time.Second
	}
	if c.Donation.Processor == "" {
		c.Donation.Processor = "simulated"
	}
	if c.Donation.Timeout == 0 {
		c.Donation.Timeout = 20 * time.Second
	}
	if c.Donation.Currency == "" {
		c.Donation.Currency = "USD"
	}
	if c.Donation.Redirect == "" {
		c.Donation.Redirect = "/thank-you.html"
	}
	if c.Donation.RedirectDelay == 0 {
		c.Donation.RedirectDelay = 3 * time.Second
	}
	if c.Database.Retention > 0 && c.Database.PruneSchedule == "" {
		c.Database.PruneSchedule = "@daily"
	}
	if c.Tracking.QueueSize == 0 {
		c.Tracking.QueueSize = 512
	}
	if c.Mail.Queue == 0 {
		c.Mail.Queue = 256
	}
	if c.Mail.Workers == 0 {
		c.Mail.Workers = 2
	}
}

// DatabaseDSN returns the DSN with the password substituted, or "" when no
// database is configured.
func (c *Config) DatabaseDSN() string {
	return expandDSN(c.Database.DSN, c.Database.Password)
}
