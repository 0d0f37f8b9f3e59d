package metrics

import "fmt"

// ConfigError reports a fatal configuration problem: a required input that is
// missing, unreadable or dimensionally inconsistent. It always aborts the
// run. Soft skips and data-quality warnings are log events, not errors.
type ConfigError struct {
	// Path names the offending file when one is known.
	Path string

	// Msg describes the failure.
	Msg string

	// Err is the underlying cause, if any.
	Err error
}

func (e *ConfigError) Error() string {
	s := e.Msg
	if e.Path != "" {
		s = e.Path + ": " + s
	}
	if e.Err != nil {
		s = fmt.Sprintf("%s: %v", s, e.Err)
	}
	return s
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// configErrf builds a ConfigError with a formatted message.
func configErrf(path, format string, args ...interface{}) *ConfigError {
	return &ConfigError{Path: path, Msg: fmt.Sprintf(format, args...)}
}
