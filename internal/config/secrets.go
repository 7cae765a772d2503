package config

// RedactedConfig returns a shallow copy of cfg with sensitive fields replaced
// by the redaction placeholder "***". Use this when logging or printing the
// active configuration so secrets are never accidentally exposed.
func RedactedConfig(cfg *Config) Config {
	out := *cfg // shallow copy of the top-level struct

	// Redis
	out.Redis = cfg.Redis
	redact(&out.Redis.Password)

	// Server
	out.Server = cfg.Server
	redact(&out.Server.APIKey)
	if cfg.Server.CORSOrigins != nil {
		out.Server.CORSOrigins = make([]string, len(cfg.Server.CORSOrigins))
		copy(out.Server.CORSOrigins, cfg.Server.CORSOrigins)
	}

	// Notify
	out.Notify = cfg.Notify
	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)
	if cfg.Notify.Events != nil {
		out.Notify.Events = append([]string(nil), cfg.Notify.Events...)
	}

	// Livefeed
	out.Strategies.Livefeed = cfg.Strategies.Livefeed
	redact(&out.Strategies.Livefeed.APIKey)

	// Copy maps and slices so mutations to the redacted copy do not affect
	// the original.
	if cfg.Strategies.Crypto.Fees != nil {
		out.Strategies.Crypto.Fees = make(map[string]VenueFees, len(cfg.Strategies.Crypto.Fees))
		for k, v := range cfg.Strategies.Crypto.Fees {
			out.Strategies.Crypto.Fees[k] = v
		}
	}
	out.Strategies.Mirror.Sources = copySources(cfg.Strategies.Mirror.Sources)
	out.Strategies.Sports.Sources = copySources(cfg.Strategies.Sports.Sources)
	out.Strategies.Crypto.Sources = copySources(cfg.Strategies.Crypto.Sources)
	out.Strategies.Livefeed.Sources = copySources(cfg.Strategies.Livefeed.Sources)

	return out
}

func copySources(in []SourceConfig) []SourceConfig {
	if in == nil {
		return nil
	}
	out := make([]SourceConfig, len(in))
	copy(out, in)
	return out
}

const redacted = "***"

// redact replaces a non-empty string with the redacted placeholder.
func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}
