// Package sqlitepath resolves which transcript database a command works on.
package sqlitepath

import (
	"errors"
	"os"
)

// EnvTranscript names the environment variable holding the default
// transcript database.
const EnvTranscript = "PROMPTLINE_TRANSCRIPT"

// ErrNoPath is returned when neither a flag nor the environment names a
// database.
var ErrNoPath = errors.New("no transcript database given: pass --sqlite or set " + EnvTranscript)

// ResolveSQLitePath returns flagValue when set, otherwise $PROMPTLINE_TRANSCRIPT.
func ResolveSQLitePath(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if env := os.Getenv(EnvTranscript); env != "" {
		return env, nil
	}
	return "", ErrNoPath
}
