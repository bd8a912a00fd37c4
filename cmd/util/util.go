package util

import (
	"strings"

	"github.com/framelink/framelink/link"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// helpWrapWidth is the column budget for flag help text
const helpWrapWidth = 52

// WrapString reflows flag help text to the help output's column budget.
func WrapString(text string) string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return ""
	}

	var sb strings.Builder
	lineWidth := 0
	for i, word := range words {
		switch {
		case i == 0:
		case lineWidth+1+len(word) > helpWrapWidth:
			sb.WriteString("\n")
			lineWidth = 0
		default:
			sb.WriteString(" ")
			lineWidth++
		}
		sb.WriteString(word)
		lineWidth += len(word)
	}
	return sb.String()
}

// SetupAdapterFlags adds the common adapter tuning flags to a command
func SetupAdapterFlags(cmd *cobra.Command) {
	key := "max-outbound"
	cmd.PersistentFlags().Int(key, link.DefaultMaxOutboundBytes, WrapString("Outbound queue byte bound per connection. Sends fail fast once exceeded (0 disables the bound)"))

	key = "max-frame"
	cmd.PersistentFlags().Int(key, link.DefaultMaxFrameSize, WrapString("Largest accepted frame size in bytes (0 disables the check)"))

	key = "read-buffer"
	cmd.PersistentFlags().Int(key, link.DefaultReadBufferSize, WrapString("Read chunk size for stream transports (in bytes)"))

	key = "flush-timeout"
	cmd.PersistentFlags().Duration(key, link.DefaultFlushTimeout, WrapString("How long a closing connection may spend flushing queued frames to a stalled peer before the transport is forced closed (0 waits indefinitely)"))

	key = "log-level"
	cmd.PersistentFlags().String(key, "info", WrapString("Log level (debug, info, warn, error)"))
}

// InitConfig initializes configuration from environment variables. The
// format of the environment variables is FRAMELINK_<flag>
// (e.g. FRAMELINK_MAX_OUTBOUND=1048576)
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("framelink")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// GetAdapterConfig reads the adapter configuration from viper
func GetAdapterConfig() link.Config {
	cfg := link.DefaultConfig()
	cfg.MaxOutboundBytes = viper.GetInt("max-outbound")
	cfg.MaxFrameSize = viper.GetInt("max-frame")
	cfg.ReadBufferSize = viper.GetInt("read-buffer")
	cfg.FlushTimeout = viper.GetDuration("flush-timeout")
	cfg.LogLevel = viper.GetString("log-level")
	return cfg
}
