// Custom YAML unmarshalling so durations read as "10s" / "60m" instead of
// raw nanosecond integers. Absent fields keep whatever value the struct
// already holds, which is how defaults survive a partial config file.

package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

func parseDur(s string, into *time.Duration) error {
	if s == "" {
		return nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("bad duration %q: %w", s, err)
	}
	*into = d
	return nil
}

func (c *GatewayConfig) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		Host         *string `yaml:"host"`
		Port         *int    `yaml:"port"`
		ReadTimeout  string  `yaml:"readTimeout"`
		WriteTimeout string  `yaml:"writeTimeout"`
		MaxWSConns   *int    `yaml:"maxWsConns"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	if raw.Host != nil {
		c.Host = *raw.Host
	}
	if raw.Port != nil {
		c.Port = *raw.Port
	}
	if raw.MaxWSConns != nil {
		c.MaxWSConns = *raw.MaxWSConns
	}
	if err := parseDur(raw.ReadTimeout, &c.ReadTimeout); err != nil {
		return err
	}
	return parseDur(raw.WriteTimeout, &c.WriteTimeout)
}

func (c *OrchestratorConfig) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		DebounceWindow   string `yaml:"debounceWindow"`
		SummaryWindow    string `yaml:"summaryWindow"`
		CooldownInterval string `yaml:"cooldownInterval"`
		ReplyDelayText   string `yaml:"replyDelayText"`
		ReplyDelayMedia  string `yaml:"replyDelayMedia"`
		NotifyDelay      string `yaml:"notifyDelay"`
		HistoryLines     *int   `yaml:"historyLines"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	if raw.HistoryLines != nil {
		c.HistoryLines = *raw.HistoryLines
	}
	for _, p := range []struct {
		s    string
		into *time.Duration
	}{
		{raw.DebounceWindow, &c.DebounceWindow},
		{raw.SummaryWindow, &c.SummaryWindow},
		{raw.CooldownInterval, &c.CooldownInterval},
		{raw.ReplyDelayText, &c.ReplyDelayText},
		{raw.ReplyDelayMedia, &c.ReplyDelayMedia},
		{raw.NotifyDelay, &c.NotifyDelay},
	} {
		if err := parseDur(p.s, p.into); err != nil {
			return err
		}
	}
	return nil
}

func (c *LLMConfig) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		GeminiAPIKey  *string  `yaml:"geminiApiKey"`
		GeminiModel   *string  `yaml:"geminiModel"`
		GroqAPIKey    *string  `yaml:"groqApiKey"`
		GroqBaseURL   *string  `yaml:"groqBaseUrl"`
		VisionModel   *string  `yaml:"visionModel"`
		VoiceModel    *string  `yaml:"voiceModel"`
		Temperature   *float32 `yaml:"temperature"`
		MaxTokens     *int     `yaml:"maxTokens"`
		HistoryTokens *int     `yaml:"historyTokens"`
		Timeout       string   `yaml:"timeout"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	if raw.GeminiAPIKey != nil {
		c.GeminiAPIKey = *raw.GeminiAPIKey
	}
	if raw.GeminiModel != nil {
		c.GeminiModel = *raw.GeminiModel
	}
	if raw.GroqAPIKey != nil {
		c.GroqAPIKey = *raw.GroqAPIKey
	}
	if raw.GroqBaseURL != nil {
		c.GroqBaseURL = *raw.GroqBaseURL
	}
	if raw.VisionModel != nil {
		c.VisionModel = *raw.VisionModel
	}
	if raw.VoiceModel != nil {
		c.VoiceModel = *raw.VoiceModel
	}
	if raw.Temperature != nil {
		c.Temperature = *raw.Temperature
	}
	if raw.MaxTokens != nil {
		c.MaxTokens = *raw.MaxTokens
	}
	if raw.HistoryTokens != nil {
		c.HistoryTokens = *raw.HistoryTokens
	}
	return parseDur(raw.Timeout, &c.Timeout)
}

func (c *PlannerConfig) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		ReminderInterval string `yaml:"reminderInterval"`
		ReminderWindow   string `yaml:"reminderWindow"`
		AgendaDays       *int   `yaml:"agendaDays"`
		AgendaLimit      *int   `yaml:"agendaLimit"`
		TaskLimit        *int   `yaml:"taskLimit"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	if raw.AgendaDays != nil {
		c.AgendaDays = *raw.AgendaDays
	}
	if raw.AgendaLimit != nil {
		c.AgendaLimit = *raw.AgendaLimit
	}
	if raw.TaskLimit != nil {
		c.TaskLimit = *raw.TaskLimit
	}
	if err := parseDur(raw.ReminderInterval, &c.ReminderInterval); err != nil {
		return err
	}
	return parseDur(raw.ReminderWindow, &c.ReminderWindow)
}
