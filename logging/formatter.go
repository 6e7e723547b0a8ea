package logging

import (
	"bytes"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
)

const timestampLayout = "02-01-2006 15:04:05.000"

// LineFormatter renders `DD-MM-YYYY HH:MM:SS.mmm LEVEL: message | request #N`.
// Fields other than the request number are not printed.
type LineFormatter struct{}

func (f *LineFormatter) Format(e *log.Entry) ([]byte, error) {
	b := e.Buffer
	if b == nil {
		b = &bytes.Buffer{}
	}
	b.WriteString(e.Time.Format(timestampLayout))
	b.WriteByte(' ')
	b.WriteString(strings.ToUpper(e.Level.String()))
	b.WriteString(": ")
	b.WriteString(e.Message)
	if n, ok := e.Data[RequestField]; ok {
		fmt.Fprintf(b, " | request #%v", n)
	}
	b.WriteByte('\n')
	return b.Bytes(), nil
}
