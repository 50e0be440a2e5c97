package atomfs

import (
	"bytes"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
)

func init() {
	var debug string
	debug = os.Getenv("DEBUG")
	if debug == "1" {
		log.SetLevel(log.DebugLevel)
	}
	log.SetReportCaller(true)
	formatter := &log.TextFormatter{
		CallerPrettyfier: caller(),
		FieldMap: log.FieldMap{
			log.FieldKeyFile: "caller",
		},
	}
	formatter.TimestampFormat = "15:04:05.999999999"
	log.SetFormatter(formatter)
}

// SetLevel parses a level name such as "debug" or "warn" and applies
// it to the standard logger.  DEBUG=1 in the environment wins over
// whatever is passed here.
func SetLevel(name string) (err error) {
	if os.Getenv("DEBUG") == "1" || name == "" {
		return
	}
	level, err := log.ParseLevel(name)
	if err != nil {
		return
	}
	log.SetLevel(level)
	return
}

// caller prints the log site relative to the working directory plus
// the goroutine id, e.g. `/fuse/dispatch.go:25 gid 7`, so interleaved
// FUSE requests can be told apart.
func caller() func(*runtime.Frame) (function string, file string) {
	return func(f *runtime.Frame) (function string, file string) {
		p, _ := os.Getwd()
		return "", fmt.Sprintf("%s:%d gid %d", strings.TrimPrefix(f.File, p), f.Line, GetGID())
	}
}

// GetGID returns the goroutine ID of its calling function, for logging purposes.
func GetGID() uint64 {
	b := make([]byte, 64)
	b = b[:runtime.Stack(b, false)]
	b = bytes.TrimPrefix(b, []byte("goroutine "))
	b = b[:bytes.IndexByte(b, ' ')]
	n, _ := strconv.ParseUint(string(b), 10, 64)
	return n
}
