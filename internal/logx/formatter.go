package logx

import (
	"bytes"
	"fmt"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
)

const timeLayout = "2006-01-02 15:04:05"

// lineFormatter renders every entry as "YYYY-MM-DD HH:MM:SS [LEVEL] message\n",
// per §6 of the specification. The "jklevel" field (set by Logger.log) carries
// our own Level so the bracketed tag is never logrus's own vocabulary.
type lineFormatter struct {
	colorize bool
}

var levelColor = map[Level]*color.Color{
	TRACE:  color.New(color.FgHiBlack),
	DEBUG:  color.New(color.FgCyan),
	INFO:   color.New(color.FgGreen),
	NOTICE: color.New(color.FgBlue),
	WARN:   color.New(color.FgYellow),
	ERROR:  color.New(color.FgRed),
	CRIT:   color.New(color.FgHiRed, color.Bold),
}

func (f *lineFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	lvl, _ := entry.Data["jklevel"].(Level)

	tag := fmt.Sprintf("[%s]", lvl.String())
	if f.colorize {
		if c, ok := levelColor[lvl]; ok {
			tag = c.Sprint(tag)
		}
	}

	var buf bytes.Buffer
	buf.WriteString(entry.Time.Format(timeLayout))
	buf.WriteByte(' ')
	buf.WriteString(tag)
	buf.WriteByte(' ')
	buf.WriteString(entry.Message)
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}
