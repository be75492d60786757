package config

// Config is the whole mailblast configuration.
//
// Every section is optional. Values left empty fall back to the environment
// (see ApplyEnv) and then to Defaults.
type Config struct {
	Source   SourceConfig   `json:"source"`
	Mailer   MailerConfig   `json:"mailer"`
	Dispatch DispatchConfig `json:"dispatch"`
	Progress ProgressConfig `json:"progress"`
	Logging  LoggingConfig  `json:"logging"`
	Notify   NotifyConfig   `json:"notify"`
	Schedule ScheduleConfig `json:"schedule"`
}

// SourceConfig selects where recipients come from.
//
// Example:
//
//	"source": { "driver": "supabase", "url": "https://abc.supabase.co", "key": "..." }
type SourceConfig struct {
	Driver   string `json:"driver"`             // supabase (default) | postgres | csv
	URL      string `json:"url,omitempty"`      // supabase project URL
	Key      string `json:"key,omitempty"`      // supabase service key (do not log)
	Function string `json:"function,omitempty"` // RPC name; default select_from_auth_users

	DSN   string `json:"dsn,omitempty"` // postgres (do not log)
	Query string `json:"query,omitempty"`

	Path       string `json:"path,omitempty"` // csv
	SkipHeader bool   `json:"skip_header,omitempty"`

	// Timeout is a Go duration string (e.g. "30s").
	Timeout    string `json:"timeout,omitempty"`
	MaxRetries int    `json:"max_retries,omitempty"`
}

type MailerConfig struct {
	Driver   string `json:"driver"` // smtp (default) | ses
	From     string `json:"from,omitempty"`
	Subject  string `json:"subject,omitempty"`
	Template string `json:"template,omitempty"`

	SMTP SMTPConfig `json:"smtp"`
	SES  SESConfig  `json:"ses"`
}

type SMTPConfig struct {
	Host     string `json:"host,omitempty"`
	Port     int    `json:"port,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"` // do not log
	Timeout  string `json:"timeout,omitempty"`
}

type SESConfig struct {
	Region           string `json:"region,omitempty"`
	ConfigurationSet string `json:"configuration_set,omitempty"`
}

// DispatchConfig controls pacing. Delays are Go duration strings.
// These are the only settings applied to a running send loop on reload.
type DispatchConfig struct {
	BatchSize            int    `json:"batch_size,omitempty"`
	DelayBetweenEmails   string `json:"delay_between_emails,omitempty"`
	DelayBetweenBatches  string `json:"delay_between_batches,omitempty"`
	SleepAfterFinalBatch bool   `json:"sleep_after_final_batch,omitempty"`
	DryRun               bool   `json:"dry_run,omitempty"`
}

type ProgressConfig struct {
	Dir         string `json:"dir,omitempty"`
	SegmentSize int    `json:"segment_size,omitempty"`
	Index       string `json:"index,omitempty"` // dir (default) | sqlite
	IndexPath   string `json:"index_path,omitempty"`
}

type LoggingConfig struct {
	Level        string          `json:"level"`
	Console      bool            `json:"console"`
	RedactEmails *bool           `json:"redact_emails,omitempty"` // default true
	File         LoggingFile     `json:"file"`
	Telegram     LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingTelegram forwards log lines to the notify chat.
type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

type NotifyConfig struct {
	Token    string `json:"token,omitempty"` // do not log
	ChatID   int64  `json:"chat_id,omitempty"`
	ThreadID int    `json:"thread_id,omitempty"`
	Timeout  string `json:"timeout,omitempty"`
}

// ScheduleConfig keeps the process resident when Spec is set.
//
// Spec is a cron expression ("0 9 * * 1"), a descriptor ("@daily"),
// an interval ("24h") or HH:MM ("02:30").
type ScheduleConfig struct {
	Spec       string `json:"spec,omitempty"`
	Timezone   string `json:"timezone,omitempty"`
	RunOnStart bool   `json:"run_on_start,omitempty"`
}

// RedactEmailsEnabled resolves the optional flag; addresses are masked unless
// explicitly disabled.
func (l LoggingConfig) RedactEmailsEnabled() bool {
	return l.RedactEmails == nil || *l.RedactEmails
}
