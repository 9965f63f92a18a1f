package config

import "slices"

// ConfigDiff describes what changed between two configs. Only settings that
// can be applied without a restart are tracked; everything else needs one.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// ChatChanged is set when the chat prompt or sampling settings changed.
	ChatChanged bool

	// VoicePersonaChanged is set when instructions, voice, temperature or
	// turn detection of new voice sessions changed.
	VoicePersonaChanged bool

	// RestartRequired is set when providers, listen address, upload limits
	// or telemetry settings changed.
	RestartRequired bool
}

// Empty reports whether d records no change at all.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.ChatChanged && !d.VoicePersonaChanged && !d.RestartRequired
}

// Diff compares old and new.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	oc, nc := old.Chat, new.Chat
	d.ChatChanged = oc.SystemPrompt != nc.SystemPrompt ||
		oc.HistoryLimit != nc.HistoryLimit ||
		oc.MaxTokens != nc.MaxTokens ||
		oc.Temperature != nc.Temperature

	ov, nv := old.Voice, new.Voice
	d.VoicePersonaChanged = ov.Instructions != nv.Instructions ||
		ov.Voice != nv.Voice ||
		ov.Temperature != nv.Temperature ||
		ov.UseServerVAD() != nv.UseServerVAD()

	osrv, nsrv := old.Server, new.Server
	d.RestartRequired = osrv.ListenAddr != nsrv.ListenAddr ||
		osrv.UploadDir != nsrv.UploadDir ||
		osrv.MaxUploadBytes != nsrv.MaxUploadBytes ||
		!slices.Equal(osrv.CORSOrigins, nsrv.CORSOrigins) ||
		!entryEqual(old.Document, new.Document) ||
		!entryEqual(old.Completion, new.Completion) ||
		!entryEqual(ov.ProviderEntry, nv.ProviderEntry) ||
		ov.SampleRate != nv.SampleRate ||
		ov.ClientSampleRate != nv.ClientSampleRate ||
		ov.FrameSize != nv.FrameSize ||
		ov.BlockSize != nv.BlockSize ||
		old.Chat.IsEnabled() != new.Chat.IsEnabled() ||
		old.Generation != new.Generation ||
		old.Resilience != new.Resilience ||
		old.Observe != new.Observe

	return d
}

func entryEqual(a, b ProviderEntry) bool {
	if a.Name != b.Name || a.APIKey != b.APIKey || a.BaseURL != b.BaseURL || a.Model != b.Model {
		return false
	}
	if len(a.Options) != len(b.Options) {
		return false
	}
	for k := range a.Options {
		if a.OptionString(k) != b.OptionString(k) {
			return false
		}
	}
	return true
}
