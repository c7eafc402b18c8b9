package logx

import "strings"

// Level is the reactor's own leveled-logging scale. It does not map
// one-to-one onto logrus.Level (logrus has no NOTICE or CRIT), so we keep
// our own enum and drive a single logrus entry per line through a custom
// formatter, the way nabbar-golib layers a Level type with Code() names
// ("Crit", "Err", ...) over logrus underneath.
type Level int

const (
	TRACE Level = iota
	DEBUG
	INFO
	NOTICE
	WARN
	ERROR
	CRIT
)

func (l Level) String() string {
	switch l {
	case TRACE:
		return "TRACE"
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case NOTICE:
		return "NOTICE"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	case CRIT:
		return "CRIT"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel parses one of the §6 CLI level names, case-insensitively.
func ParseLevel(s string) (Level, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE":
		return TRACE, true
	case "DEBUG":
		return DEBUG, true
	case "INFO":
		return INFO, true
	case "NOTICE":
		return NOTICE, true
	case "WARN":
		return WARN, true
	case "ERROR":
		return ERROR, true
	case "CRIT":
		return CRIT, true
	default:
		return INFO, false
	}
}
